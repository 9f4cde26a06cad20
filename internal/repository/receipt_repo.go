package repository

import (
	"context"

	"chargeslot/internal/domain"

	"gorm.io/gorm"
)

type ReceiptRepository struct {
	db *gorm.DB
}

func NewReceiptRepository(db *gorm.DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

func (r *ReceiptRepository) Create(ctx context.Context, rec *domain.Receipt) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *ReceiptRepository) GetByPath(ctx context.Context, path string) (*domain.Receipt, error) {
	var rec domain.Receipt
	if err := r.db.WithContext(ctx).Where("path = ?", path).First(&rec).Error; err != nil {
		return nil, translate(err)
	}
	return &rec, nil
}

func (r *ReceiptRepository) ListByReservation(ctx context.Context, reservationID int64) ([]domain.Receipt, error) {
	var items []domain.Receipt
	err := r.db.WithContext(ctx).
		Where("reservation_id = ?", reservationID).
		Order("created_at DESC").
		Find(&items).Error
	return items, err
}
