package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type StationStatus string

const (
	StationAvailable   StationStatus = "available"
	StationOccupied    StationStatus = "occupied"
	StationFaulted     StationStatus = "faulted"
	StationMaintenance StationStatus = "maintenance"
)

// Station is managed elsewhere; reservations only read it.
type Station struct {
	ID            int64           `json:"id" gorm:"primaryKey"`
	OwnerID       int64           `json:"owner_id" gorm:"not null;index"`
	PlaceID       *int64          `json:"place_id,omitempty" gorm:"index"`
	Name          string          `json:"name" gorm:"type:varchar(120);not null"`
	PowerKW       float64         `json:"power_kw,omitempty"`
	RatePerMinute decimal.Decimal `json:"rate_per_minute" gorm:"type:numeric(10,4);not null"`
	Status        StationStatus   `json:"status" gorm:"type:varchar(16);not null;default:available"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (Station) TableName() string { return "stations" }
