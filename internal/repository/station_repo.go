package repository

import (
	"context"

	"chargeslot/internal/domain"

	"gorm.io/gorm"
)

type StationRepository struct {
	db *gorm.DB
}

func NewStationRepository(db *gorm.DB) *StationRepository {
	return &StationRepository{db: db}
}

func (r *StationRepository) Create(ctx context.Context, st *domain.Station) error {
	return r.db.WithContext(ctx).Create(st).Error
}

func (r *StationRepository) GetByID(ctx context.Context, id int64) (*domain.Station, error) {
	var st domain.Station
	if err := r.db.WithContext(ctx).First(&st, id).Error; err != nil {
		return nil, translate(err)
	}
	return &st, nil
}

// ListByOwner returns the owner's stations ordered by id.
func (r *StationRepository) ListByOwner(ctx context.Context, ownerID int64) ([]domain.Station, error) {
	var items []domain.Station
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("id").
		Find(&items).Error
	return items, err
}

// UpdateStatus is used by station management and by the seeder; reservations
// never change a station's status.
func (r *StationRepository) UpdateStatus(ctx context.Context, id int64, status domain.StationStatus) error {
	tx := r.db.WithContext(ctx).
		Model(&domain.Station{}).
		Where("id = ?", id).
		Update("status", status)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
