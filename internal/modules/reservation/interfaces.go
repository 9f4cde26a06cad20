package reservation

import (
	"context"

	"chargeslot/internal/domain"
)

// ReceiptGenerator renders a receipt for a confirmed reservation and returns an
// opaque handle that can later be resolved to its content.
type ReceiptGenerator interface {
	Generate(ctx context.Context, r *domain.Reservation) (string, error)
	GetContent(ctx context.Context, handle string) ([]byte, error)
}
