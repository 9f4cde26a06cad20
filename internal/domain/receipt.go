package domain

import "time"

// Receipt records a rendered document for a confirmed reservation. Path is the
// opaque handle stored on the reservation.
type Receipt struct {
	ID            string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	ReservationID int64     `json:"reservation_id" gorm:"not null;index"`
	Path          string    `json:"path" gorm:"type:varchar(255);not null;uniqueIndex"`
	Size          int64     `json:"size"`
	MimeType      string    `json:"mime_type" gorm:"type:varchar(64)"`
	CreatedAt     time.Time `json:"created_at"`
}

func (Receipt) TableName() string { return "receipts" }
