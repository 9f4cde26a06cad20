package reservation

import (
	"time"

	"chargeslot/internal/domain"
	"chargeslot/internal/pkg/pricing"

	"github.com/shopspring/decimal"
)

type CreateReservationRequest struct {
	StationID int64     `json:"station_id" binding:"required,gt=0"`
	StartTime time.Time `json:"start_time" binding:"required"`
	EndTime   time.Time `json:"end_time" binding:"required"`
}

type RefuseRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// SearchQuery is bound from the query string of the admin search endpoint.
type SearchQuery struct {
	Status    string `form:"status" validate:"omitempty,oneof=pending confirmed active refused cancelled completed"`
	StationID int64  `form:"station_id" validate:"omitempty,gt=0"`
	UserID    int64  `form:"user_id" validate:"omitempty,gt=0"`
	From      string `form:"from" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	To        string `form:"to" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Page      int    `form:"page" validate:"omitempty,gte=1"`
	PerPage   int    `form:"per_page" validate:"omitempty,gte=1,lte=100"`
}

type StationSummary struct {
	ID      int64                `json:"id"`
	Name    string               `json:"name"`
	OwnerID int64                `json:"owner_id"`
	Status  domain.StationStatus `json:"status"`
}

type UserSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type ReservationResponse struct {
	ID             int64                    `json:"id"`
	StationID      int64                    `json:"station_id"`
	UserID         int64                    `json:"user_id"`
	StartTime      time.Time                `json:"start_time"`
	EndTime        time.Time                `json:"end_time"`
	DurationMin    int64                    `json:"duration_minutes"`
	RatePerMinute  decimal.Decimal          `json:"rate_per_minute"`
	TotalPrice     decimal.Decimal          `json:"total_price"`
	PriceFormatted string                   `json:"price_formatted"`
	Status         domain.ReservationStatus `json:"status"`
	HasReceipt     bool                     `json:"has_receipt"`
	RefusalReason  *string                  `json:"refusal_reason,omitempty"`
	CreatedAt      time.Time                `json:"created_at"`
	UpdatedAt      time.Time                `json:"updated_at"`
	Station        *StationSummary          `json:"station,omitempty"`
	User           *UserSummary             `json:"user,omitempty"`
}

func toResponse(r *domain.Reservation, currency string) ReservationResponse {
	out := ReservationResponse{
		ID:             r.ID,
		StationID:      r.StationID,
		UserID:         r.UserID,
		StartTime:      r.StartTime,
		EndTime:        r.EndTime,
		DurationMin:    pricing.DurationMinutes(r.StartTime, r.EndTime),
		RatePerMinute:  r.RatePerMinute,
		TotalPrice:     r.TotalPrice,
		PriceFormatted: pricing.FormatPrice(r.TotalPrice, currency),
		Status:         r.Status,
		HasReceipt:     r.ReceiptPath != nil,
		RefusalReason:  r.RefusalReason,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.Station != nil {
		out.Station = &StationSummary{
			ID:      r.Station.ID,
			Name:    r.Station.Name,
			OwnerID: r.Station.OwnerID,
			Status:  r.Station.Status,
		}
	}
	if r.User != nil {
		out.User = &UserSummary{ID: r.User.ID, Name: r.User.Name}
	}
	return out
}

func toResponses(items []domain.Reservation, currency string) []ReservationResponse {
	out := make([]ReservationResponse, 0, len(items))
	for i := range items {
		out = append(out, toResponse(&items[i], currency))
	}
	return out
}
