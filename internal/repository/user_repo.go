package repository

import (
	"context"
	"strings"

	"chargeslot/internal/domain"

	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	u.Email = normalizeEmail(u.Email)
	return r.db.WithContext(ctx).Create(u).Error
}

// GetOrCreate returns the user with u.Email, inserting u if it does not exist yet.
func (r *UserRepository) GetOrCreate(ctx context.Context, u *domain.User) (*domain.User, error) {
	existing, err := r.GetByEmail(ctx, u.Email)
	if err == nil {
		return existing, nil
	}
	if err != ErrNotFound {
		return nil, err
	}
	if err := r.Create(ctx, u); err != nil {
		if isUniqueConstraintError(err) {
			return r.GetByEmail(ctx, u.Email)
		}
		return nil, err
	}
	return u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	tx := r.db.WithContext(ctx).
		Where("LOWER(email) = ?", normalizeEmail(email)).
		First(&u)
	if tx.Error != nil {
		return nil, translate(tx.Error)
	}
	return &u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}
