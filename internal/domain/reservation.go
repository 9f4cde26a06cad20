package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationActive    ReservationStatus = "active"
	ReservationRefused   ReservationStatus = "refused"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationCompleted ReservationStatus = "completed"
)

// LiveStatuses are the states that occupy a station window.
var LiveStatuses = []ReservationStatus{
	ReservationPending,
	ReservationConfirmed,
	ReservationActive,
}

func (s ReservationStatus) IsLive() bool {
	switch s {
	case ReservationPending, ReservationConfirmed, ReservationActive:
		return true
	}
	return false
}

func (s ReservationStatus) IsTerminal() bool {
	switch s {
	case ReservationRefused, ReservationCancelled, ReservationCompleted:
		return true
	}
	return false
}

func (s ReservationStatus) Valid() bool {
	return s.IsLive() || s.IsTerminal()
}

// Reservation occupies the half-open window [StartTime, EndTime) on a station.
// RatePerMinute and TotalPrice are fixed at creation.
type Reservation struct {
	ID            int64             `json:"id" gorm:"primaryKey"`
	StationID     int64             `json:"station_id" gorm:"not null;index:idx_reservations_station_start,priority:1"`
	UserID        int64             `json:"user_id" gorm:"not null;index"`
	StartTime     time.Time         `json:"start_time" gorm:"not null;index:idx_reservations_station_start,priority:2"`
	EndTime       time.Time         `json:"end_time" gorm:"not null"`
	RatePerMinute decimal.Decimal   `json:"rate_per_minute" gorm:"type:numeric(10,4);not null"`
	TotalPrice    decimal.Decimal   `json:"total_price" gorm:"type:numeric(12,2);not null"`
	Status        ReservationStatus `json:"status" gorm:"type:varchar(16);not null;index"`
	ReceiptPath   *string           `json:"receipt_path,omitempty" gorm:"type:varchar(255)"`
	RefusalReason *string           `json:"refusal_reason,omitempty" gorm:"type:text"`
	CreatedAt     time.Time         `json:"created_at" gorm:"index"`
	UpdatedAt     time.Time         `json:"updated_at"`

	Station *Station `json:"station,omitempty" gorm:"foreignKey:StationID"`
	User    *User    `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (Reservation) TableName() string { return "reservations" }

// Overlaps reports whether [start, end) intersects the reservation window.
func (r *Reservation) Overlaps(start, end time.Time) bool {
	return r.StartTime.Before(end) && start.Before(r.EndTime)
}
