package reservation

import (
	"context"
	"fmt"
	"time"

	"chargeslot/internal/domain"
	"chargeslot/internal/repository"
)

type Violation struct {
	Kind    error
	Message string
}

// ValidationResult lists every violation found; an empty list means valid.
type ValidationResult struct {
	Violations []Violation
}

func (v ValidationResult) Valid() bool { return len(v.Violations) == 0 }

// Err returns the first violation as an *Error, or nil.
func (v ValidationResult) Err() error {
	if v.Valid() {
		return nil
	}
	first := v.Violations[0]
	return newError(first.Kind, first.Message)
}

func (v ValidationResult) Messages() []string {
	out := make([]string, 0, len(v.Violations))
	for _, violation := range v.Violations {
		out = append(out, violation.Message)
	}
	return out
}

func (v *ValidationResult) add(kind error, format string, args ...any) {
	v.Violations = append(v.Violations, Violation{Kind: kind, Message: fmt.Sprintf(format, args...)})
}

// Validator runs conflict and state checks against a store. Inside a
// transaction it must be built on the transactional store.
type Validator struct {
	store repository.ReservationStore
	now   time.Time
}

func NewValidator(store repository.ReservationStore, now time.Time) *Validator {
	return &Validator{store: store, now: now}
}

// HasOverlap reports whether a live reservation on the station intersects
// [start, end). excludeID of zero excludes nothing.
func (v *Validator) HasOverlap(ctx context.Context, stationID int64, start, end time.Time, excludeID int64) (bool, error) {
	cnt, err := v.store.CountOverlapping(ctx, stationID, start, end, excludeID)
	if err != nil {
		return false, err
	}
	return cnt > 0, nil
}

// ValidateReservationCreation checks the candidate window and station, then
// looks for overlaps only if the structural checks passed.
func (v *Validator) ValidateReservationCreation(ctx context.Context, candidate *domain.Reservation, station *domain.Station) (ValidationResult, error) {
	var res ValidationResult

	switch {
	case candidate.StartTime.IsZero() || candidate.EndTime.IsZero():
		res.add(ErrValidation, "start_time and end_time are required")
	case !candidate.StartTime.Before(candidate.EndTime):
		res.add(ErrValidation, "start_time must be before end_time")
	case candidate.StartTime.Before(v.now):
		res.add(ErrValidation, "start_time must not be in the past")
	}

	if station == nil {
		res.add(ErrNotFound, "station %d not found", candidate.StationID)
	} else if station.Status == domain.StationFaulted {
		res.add(ErrValidation, "station %d is faulted", station.ID)
	}

	if !res.Valid() {
		return res, nil
	}

	conflicts, err := v.ValidateNoConflicts(ctx, station.ID, candidate.StartTime, candidate.EndTime, candidate.ID)
	if err != nil {
		return res, err
	}
	res.Violations = append(res.Violations, conflicts.Violations...)
	return res, nil
}

func (v *Validator) ValidateNoConflicts(ctx context.Context, stationID int64, start, end time.Time, excludeID int64) (ValidationResult, error) {
	var res ValidationResult
	overlap, err := v.HasOverlap(ctx, stationID, start, end, excludeID)
	if err != nil {
		return res, err
	}
	if overlap {
		res.add(ErrConflict, "station %d is already reserved between %s and %s",
			stationID, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
	}
	return res, nil
}

func ValidateCanBeCancelled(r *domain.Reservation) ValidationResult {
	return requireStatus(r, "cancelled", domain.ReservationPending)
}

func ValidateCanBeAccepted(r *domain.Reservation) ValidationResult {
	return requireStatus(r, "accepted", domain.ReservationPending)
}

func ValidateCanBeRefused(r *domain.Reservation) ValidationResult {
	return requireStatus(r, "refused", domain.ReservationPending)
}

func ValidateCanBeCompleted(r *domain.Reservation) ValidationResult {
	return requireStatus(r, "completed", domain.ReservationConfirmed, domain.ReservationActive)
}

func requireStatus(r *domain.Reservation, verb string, allowed ...domain.ReservationStatus) ValidationResult {
	var res ValidationResult
	for _, s := range allowed {
		if r.Status == s {
			return res
		}
	}
	res.add(ErrIllegalState, "reservation %d is %s and cannot be %s", r.ID, r.Status, verb)
	return res
}
