// Package events describes reservation lifecycle events and the publishers
// that deliver them to the broker and to connected clients.
package events

import (
	"context"
	"errors"
	"time"

	"chargeslot/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Type string

const (
	ReservationCreated   Type = "reservation.created"
	ReservationAccepted  Type = "reservation.accepted"
	ReservationRefused   Type = "reservation.refused"
	ReservationCancelled Type = "reservation.cancelled"
	ReservationCompleted Type = "reservation.completed"
)

type ReservationEvent struct {
	ID            string                   `json:"id"`
	Type          Type                     `json:"type"`
	ReservationID int64                    `json:"reservation_id"`
	StationID     int64                    `json:"station_id"`
	UserID        int64                    `json:"user_id"`
	OwnerID       int64                    `json:"owner_id,omitempty"`
	Status        domain.ReservationStatus `json:"status"`
	StartTime     time.Time                `json:"start_time"`
	EndTime       time.Time                `json:"end_time"`
	TotalPrice    decimal.Decimal          `json:"total_price"`
	Reason        string                   `json:"reason,omitempty"`
	OccurredAt    time.Time                `json:"occurred_at"`
}

// FromReservation builds an event from a reservation loaded with its station.
func FromReservation(t Type, r *domain.Reservation) ReservationEvent {
	ev := ReservationEvent{
		ID:            uuid.NewString(),
		Type:          t,
		ReservationID: r.ID,
		StationID:     r.StationID,
		UserID:        r.UserID,
		Status:        r.Status,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		TotalPrice:    r.TotalPrice,
		OccurredAt:    time.Now().UTC(),
	}
	if r.Station != nil {
		ev.OwnerID = r.Station.OwnerID
	}
	if r.RefusalReason != nil {
		ev.Reason = *r.RefusalReason
	}
	return ev
}

type Publisher interface {
	Publish(ctx context.Context, ev ReservationEvent) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ReservationEvent) error { return nil }

// Fanout delivers to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev ReservationEvent) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
