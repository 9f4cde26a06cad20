package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chargeslot/internal/domain"
	"chargeslot/internal/pkg/pricing"
	"chargeslot/internal/repository"

	"github.com/sirupsen/logrus"
)

type Service struct {
	store    repository.ReservationStore
	receipts ReceiptGenerator
	log      *logrus.Entry
	now      func() time.Time
}

func NewService(store repository.ReservationStore, receipts ReceiptGenerator, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		store:    store,
		receipts: receipts,
		log:      log.WithField("component", "reservation"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create books [start, end) on the station for the requester. The station row
// stays locked from the conflict check until the insert commits.
func (s *Service) Create(ctx context.Context, requesterID, stationID int64, start, end time.Time) (*domain.Reservation, error) {
	start, end = start.UTC(), end.UTC()

	var id int64
	err := s.store.Transaction(ctx, func(tx repository.ReservationStore) error {
		station, err := tx.LockStation(ctx, stationID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if _, err := tx.GetUser(ctx, requesterID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return newError(ErrNotFound, fmt.Sprintf("user %d not found", requesterID))
			}
			return err
		}

		candidate := &domain.Reservation{
			StationID: stationID,
			UserID:    requesterID,
			StartTime: start,
			EndTime:   end,
			Status:    domain.ReservationPending,
		}
		result, err := NewValidator(tx, s.now()).ValidateReservationCreation(ctx, candidate, station)
		if err != nil {
			return err
		}
		if err := result.Err(); err != nil {
			return err
		}

		candidate.RatePerMinute = station.RatePerMinute
		candidate.TotalPrice = pricing.CalculateTotalPrice(station.RatePerMinute, start, end)
		if err := tx.Create(ctx, candidate); err != nil {
			return err
		}
		id = candidate.ID
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}

	s.log.WithFields(logrus.Fields{
		"reservation_id": id,
		"station_id":     stationID,
		"user_id":        requesterID,
	}).Info("reservation created")

	return s.reload(ctx, id)
}

// Cancel is available to the requester while the reservation is pending.
func (s *Service) Cancel(ctx context.Context, id, requesterID int64) (*domain.Reservation, error) {
	err := s.store.Transaction(ctx, func(tx repository.ReservationStore) error {
		r, err := tx.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if err := RequesterMayActOn(r, requesterID, ActionCancel).Err(); err != nil {
			return err
		}
		if err := ValidateCanBeCancelled(r).Err(); err != nil {
			return err
		}
		return transition(ctx, tx, r, domain.ReservationCancelled, nil, domain.ReservationPending)
	})
	if err != nil {
		return nil, storeError(err)
	}

	s.log.WithFields(logrus.Fields{"reservation_id": id, "user_id": requesterID}).Info("reservation cancelled")
	return s.reload(ctx, id)
}

// Accept confirms a pending reservation on behalf of the station owner. It takes
// the same station lock as Create and re-checks conflicts before confirming.
// Receipt generation runs after commit and never undoes the acceptance.
func (s *Service) Accept(ctx context.Context, id, ownerID int64) (*domain.Reservation, error) {
	err := s.store.Transaction(ctx, func(tx repository.ReservationStore) error {
		current, err := tx.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if _, err := tx.LockStation(ctx, current.StationID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return newError(ErrNotFound, fmt.Sprintf("station %d not found", current.StationID))
			}
			return err
		}
		r, err := tx.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if err := OwnerMayActOn(r, ownerID, ActionAccept).Err(); err != nil {
			return err
		}
		if err := ValidateCanBeAccepted(r).Err(); err != nil {
			return err
		}

		conflicts, err := NewValidator(tx, s.now()).ValidateNoConflicts(ctx, r.StationID, r.StartTime, r.EndTime, r.ID)
		if err != nil {
			return err
		}
		if err := conflicts.Err(); err != nil {
			return err
		}
		return transition(ctx, tx, r, domain.ReservationConfirmed, nil, domain.ReservationPending)
	})
	if err != nil {
		return nil, storeError(err)
	}

	s.log.WithFields(logrus.Fields{"reservation_id": id, "owner_id": ownerID}).Info("reservation accepted")

	s.attachReceipt(ctx, id)
	return s.reload(ctx, id)
}

// Refuse declines a pending reservation. An empty reason is stored as null.
func (s *Service) Refuse(ctx context.Context, id, ownerID int64, reason string) (*domain.Reservation, error) {
	var stored *string
	if trimmed := strings.TrimSpace(reason); trimmed != "" {
		stored = &trimmed
	}

	err := s.store.Transaction(ctx, func(tx repository.ReservationStore) error {
		r, err := tx.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if err := OwnerMayActOn(r, ownerID, ActionRefuse).Err(); err != nil {
			return err
		}
		if err := ValidateCanBeRefused(r).Err(); err != nil {
			return err
		}
		return transition(ctx, tx, r, domain.ReservationRefused, stored, domain.ReservationPending)
	})
	if err != nil {
		return nil, storeError(err)
	}

	s.log.WithFields(logrus.Fields{"reservation_id": id, "owner_id": ownerID}).Info("reservation refused")
	return s.reload(ctx, id)
}

// Complete finishes a confirmed or active reservation. No actor check is
// applied here; callers decide who may complete.
func (s *Service) Complete(ctx context.Context, id int64) (*domain.Reservation, error) {
	err := s.store.Transaction(ctx, func(tx repository.ReservationStore) error {
		r, err := tx.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if err := ValidateCanBeCompleted(r).Err(); err != nil {
			return err
		}
		return transition(ctx, tx, r, domain.ReservationCompleted, nil, domain.ReservationConfirmed, domain.ReservationActive)
	})
	if err != nil {
		return nil, storeError(err)
	}

	s.log.WithField("reservation_id", id).Info("reservation completed")
	return s.reload(ctx, id)
}

func (s *Service) GetByID(ctx context.Context, id int64) (*domain.Reservation, error) {
	return s.reload(ctx, id)
}

// GetForActor returns the reservation if actorID is its requester or the
// station owner.
func (s *Service) GetForActor(ctx context.Context, id, actorID int64) (*domain.Reservation, error) {
	r, err := s.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	if !RequesterMayActOn(r, actorID, ActionView).Allowed && !OwnerMayActOn(r, actorID, ActionView).Allowed {
		return nil, newError(ErrForbidden, fmt.Sprintf("reservation %d is not visible to user %d", id, actorID))
	}
	return r, nil
}

func (s *Service) ListByRequester(ctx context.Context, userID int64, page, perPage int) ([]domain.Reservation, int64, error) {
	return s.store.List(ctx, repository.ReservationFilter{UserID: userID, Page: page, PerPage: perPage})
}

func (s *Service) ListByStation(ctx context.Context, stationID int64, page, perPage int) ([]domain.Reservation, int64, error) {
	return s.store.List(ctx, repository.ReservationFilter{StationID: stationID, Page: page, PerPage: perPage})
}

func (s *Service) ListByOwner(ctx context.Context, ownerID int64, page, perPage int) ([]domain.Reservation, int64, error) {
	return s.store.List(ctx, repository.ReservationFilter{OwnerID: ownerID, Page: page, PerPage: perPage})
}

func (s *Service) Search(ctx context.Context, f repository.ReservationFilter) ([]domain.Reservation, int64, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, newError(ErrValidation, fmt.Sprintf("unknown status %q", f.Status))
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return nil, 0, newError(ErrValidation, "from must be before to")
	}
	return s.store.List(ctx, f)
}

// ReceiptContent returns the rendered receipt to the requester or station owner.
func (s *Service) ReceiptContent(ctx context.Context, id, actorID int64) ([]byte, error) {
	r, err := s.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	if !RequesterMayActOn(r, actorID, ActionViewReceipt).Allowed {
		if err := OwnerMayActOn(r, actorID, ActionViewReceipt).Err(); err != nil {
			return nil, err
		}
	}
	if r.ReceiptPath == nil || s.receipts == nil {
		return nil, newError(ErrNotFound, fmt.Sprintf("reservation %d has no receipt", id))
	}
	content, err := s.receipts.GetContent(ctx, *r.ReceiptPath)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(ErrNotFound, fmt.Sprintf("receipt of reservation %d not found", id))
	}
	if err != nil {
		return nil, err
	}
	return content, nil
}

func (s *Service) attachReceipt(ctx context.Context, id int64) {
	if s.receipts == nil {
		return
	}
	entry := s.log.WithField("reservation_id", id)

	r, err := s.store.GetWithRelations(ctx, id)
	if err != nil {
		entry.WithError(err).Warn("receipt skipped: reload failed")
		return
	}
	handle, err := s.receipts.Generate(ctx, r)
	if err != nil {
		entry.WithError(err).Warn("receipt generation failed")
		return
	}
	if err := s.store.SetReceiptPath(ctx, id, handle); err != nil {
		entry.WithError(err).Warn("receipt handle not stored")
	}
}

func (s *Service) reload(ctx context.Context, id int64) (*domain.Reservation, error) {
	r, err := s.store.GetWithRelations(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	return r, nil
}

func transition(
	ctx context.Context,
	tx repository.ReservationStore,
	r *domain.Reservation,
	to domain.ReservationStatus,
	reason *string,
	from ...domain.ReservationStatus,
) error {
	ok, err := tx.TransitionStatus(ctx, r.ID, from, to, reason)
	if err != nil {
		return err
	}
	if !ok {
		return newError(ErrIllegalState, fmt.Sprintf("reservation %d is no longer %s", r.ID, r.Status))
	}
	return nil
}

// storeError maps repository failures onto the reservation error kinds and
// passes everything else through.
func storeError(err error) error {
	var e *Error
	switch {
	case errors.As(err, &e):
		return e
	case errors.Is(err, repository.ErrNotFound):
		return newError(ErrNotFound, "reservation not found")
	case errors.Is(err, repository.ErrOverlap):
		return newError(ErrConflict, "station is already reserved for an overlapping window")
	}
	return err
}
