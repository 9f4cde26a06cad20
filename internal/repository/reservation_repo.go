package repository

import (
	"context"
	"time"

	"chargeslot/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReservationStore is the persistence boundary of the reservation lifecycle.
// Lock* methods take row-level locks and are only meaningful inside Transaction.
type ReservationStore interface {
	Transaction(ctx context.Context, fn func(tx ReservationStore) error) error

	LockStation(ctx context.Context, stationID int64) (*domain.Station, error)
	GetUser(ctx context.Context, userID int64) (*domain.User, error)

	Create(ctx context.Context, r *domain.Reservation) error
	GetByID(ctx context.Context, id int64) (*domain.Reservation, error)
	GetWithRelations(ctx context.Context, id int64) (*domain.Reservation, error)
	LockByID(ctx context.Context, id int64) (*domain.Reservation, error)

	CountOverlapping(ctx context.Context, stationID int64, start, end time.Time, excludeID int64) (int64, error)
	TransitionStatus(ctx context.Context, id int64, from []domain.ReservationStatus, to domain.ReservationStatus, reason *string) (bool, error)
	SetReceiptPath(ctx context.Context, id int64, path string) error

	List(ctx context.Context, f ReservationFilter) ([]domain.Reservation, int64, error)

	FindStalePending(ctx context.Context, createdBefore time.Time) ([]domain.Reservation, error)
	FindPastStartPending(ctx context.Context, now time.Time) ([]domain.Reservation, error)
	CancelPending(ctx context.Context, ids []int64) (int64, error)
}

type ReservationFilter struct {
	Status    domain.ReservationStatus
	StationID int64
	UserID    int64
	OwnerID   int64
	From      *time.Time
	To        *time.Time
	Page      int
	PerPage   int
}

func (f ReservationFilter) limitOffset() (int, int) {
	perPage := f.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	return perPage, (page - 1) * perPage
}

type ReservationRepository struct {
	db *gorm.DB
}

func NewReservationRepository(db *gorm.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

var _ ReservationStore = (*ReservationRepository)(nil)

func (r *ReservationRepository) Transaction(ctx context.Context, fn func(tx ReservationStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ReservationRepository{db: tx})
	})
}

// LockStation loads the station with FOR UPDATE. Creation and acceptance both
// go through it so writes against one station are serialized.
func (r *ReservationRepository) LockStation(ctx context.Context, stationID int64) (*domain.Station, error) {
	var st domain.Station
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&st, stationID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &st, nil
}

func (r *ReservationRepository) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	var u domain.User
	if err := r.db.WithContext(ctx).First(&u, userID).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *ReservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	return translate(r.db.WithContext(ctx).Omit(clause.Associations).Create(res).Error)
}

func (r *ReservationRepository) GetByID(ctx context.Context, id int64) (*domain.Reservation, error) {
	var res domain.Reservation
	if err := r.db.WithContext(ctx).First(&res, id).Error; err != nil {
		return nil, translate(err)
	}
	return &res, nil
}

func (r *ReservationRepository) GetWithRelations(ctx context.Context, id int64) (*domain.Reservation, error) {
	var res domain.Reservation
	err := r.db.WithContext(ctx).
		Preload("Station").
		Preload("User").
		First(&res, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &res, nil
}

// LockByID locks the reservation row and preloads its station for the owner check.
func (r *ReservationRepository) LockByID(ctx context.Context, id int64) (*domain.Reservation, error) {
	var res domain.Reservation
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&res, id).Error
	if err != nil {
		return nil, translate(err)
	}

	var st domain.Station
	if err := r.db.WithContext(ctx).First(&st, res.StationID).Error; err != nil {
		return nil, translate(err)
	}
	res.Station = &st
	return &res, nil
}

// CountOverlapping counts live reservations on the station intersecting [start, end).
// excludeID of zero excludes nothing.
func (r *ReservationRepository) CountOverlapping(
	ctx context.Context,
	stationID int64,
	start, end time.Time,
	excludeID int64,
) (int64, error) {
	var cnt int64
	q := r.db.WithContext(ctx).
		Model(&domain.Reservation{}).
		Where("station_id = ?", stationID).
		Where("status IN ?", domain.LiveStatuses).
		Where("start_time < ? AND ? < end_time", end.UTC(), start.UTC())
	if excludeID > 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&cnt).Error; err != nil {
		return 0, err
	}
	return cnt, nil
}

// TransitionStatus moves the reservation to `to` only if it is currently in one
// of `from`. It reports false when no row matched.
func (r *ReservationRepository) TransitionStatus(
	ctx context.Context,
	id int64,
	from []domain.ReservationStatus,
	to domain.ReservationStatus,
	reason *string,
) (bool, error) {
	updates := map[string]any{"status": to}
	if reason != nil {
		updates["refusal_reason"] = *reason
	}
	tx := r.db.WithContext(ctx).
		Model(&domain.Reservation{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if tx.Error != nil {
		return false, translate(tx.Error)
	}
	return tx.RowsAffected == 1, nil
}

func (r *ReservationRepository) SetReceiptPath(ctx context.Context, id int64, path string) error {
	tx := r.db.WithContext(ctx).
		Model(&domain.Reservation{}).
		Where("id = ?", id).
		Update("receipt_path", path)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns one page of reservations matching f, newest start first, with
// station and requester preloaded.
func (r *ReservationRepository) List(ctx context.Context, f ReservationFilter) ([]domain.Reservation, int64, error) {
	var (
		items []domain.Reservation
		total int64
	)

	if err := r.db.WithContext(ctx).Model(&domain.Reservation{}).Scopes(f.scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit, offset := f.limitOffset()
	err := r.db.WithContext(ctx).
		Scopes(f.scope).
		Preload("Station").
		Preload("User").
		Order("reservations.start_time DESC").
		Order("reservations.id DESC").
		Limit(limit).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (f ReservationFilter) scope(q *gorm.DB) *gorm.DB {
	if f.OwnerID > 0 {
		q = q.Joins("JOIN stations ON stations.id = reservations.station_id").
			Where("stations.owner_id = ?", f.OwnerID)
	}
	if f.Status != "" {
		q = q.Where("reservations.status = ?", f.Status)
	}
	if f.StationID > 0 {
		q = q.Where("reservations.station_id = ?", f.StationID)
	}
	if f.UserID > 0 {
		q = q.Where("reservations.user_id = ?", f.UserID)
	}
	if f.From != nil {
		q = q.Where("reservations.end_time > ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("reservations.start_time < ?", f.To.UTC())
	}
	return q
}

func (r *ReservationRepository) FindStalePending(ctx context.Context, createdBefore time.Time) ([]domain.Reservation, error) {
	var items []domain.Reservation
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", domain.ReservationPending, createdBefore.UTC()).
		Order("id").
		Find(&items).Error
	return items, err
}

func (r *ReservationRepository) FindPastStartPending(ctx context.Context, now time.Time) ([]domain.Reservation, error) {
	var items []domain.Reservation
	err := r.db.WithContext(ctx).
		Where("status = ? AND start_time <= ?", domain.ReservationPending, now.UTC()).
		Order("id").
		Find(&items).Error
	return items, err
}

// CancelPending cancels the given reservations in one statement. Rows that left
// pending in the meantime are skipped.
func (r *ReservationRepository) CancelPending(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx := r.db.WithContext(ctx).
		Model(&domain.Reservation{}).
		Where("id IN ? AND status = ?", ids, domain.ReservationPending).
		Update("status", domain.ReservationCancelled)
	return tx.RowsAffected, tx.Error
}
