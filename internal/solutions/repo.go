package solutions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/flowdesk-backend/pkg/db/models"
)

// Repository reads solutions and writes the one-time upsell discount.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Solution, error)
	GrantDiscount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a solutions repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindByID returns (nil, nil) when the solution does not exist.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Solution, error) {
	var solution models.Solution
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&solution).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &solution, nil
}

// GrantDiscount sets the discount only while it is unset or zero. It reports
// whether this call wrote it.
func (r *repository) GrantDiscount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error) {
	if amount.IsNegative() {
		return false, errors.New("discount must not be negative")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Solution{}).
		Where("id = ? AND (discount IS NULL OR discount = 0)", id).
		Updates(map[string]any{
			"discount":   amount,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
