package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/flowdesk-backend/pkg/db/models"
	"github.com/angelmondragon/flowdesk-backend/pkg/enums"
	"github.com/angelmondragon/flowdesk-backend/pkg/types"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.PaymentStatus == "" {
		order.PaymentStatus = enums.PaymentStatusPending
	}
	if order.Metadata == nil {
		order.Metadata = types.Metadata{}
	}
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindByStripeSessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	return r.first(r.db.WithContext(ctx).Where("stripe_session_id = ?", sessionID))
}

// FindByPaymentIntentID returns the most recent order charged through the intent.
func (r *repository) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Order, error) {
	return r.first(r.db.WithContext(ctx).
		Where("payment_intent_id = ?", paymentIntentID).
		Order("created_at DESC"))
}

func (r *repository) first(query *gorm.DB) (*models.Order, error) {
	var order models.Order
	if err := query.First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// CompareAndSetStatus writes update only while the row still holds the observed
// status. It reports false when a concurrent writer moved the order first.
func (r *repository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, observed enums.PaymentStatus, update StatusUpdate) (bool, error) {
	if !update.Status.IsValid() {
		return false, errors.New("invalid payment status " + string(update.Status))
	}
	values := map[string]any{
		"payment_status":          update.Status,
		"stripe_payment_captured": update.Captured,
		"updated_at":              time.Now().UTC(),
	}
	if update.Metadata != nil {
		values["metadata"] = update.Metadata
	}
	if update.PaymentIntentID != nil {
		values["payment_intent_id"] = *update.PaymentIntentID
	}
	if update.LastEventAt != nil {
		values["last_event_at"] = update.LastEventAt.UTC()
	}

	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", id, observed).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) SetPaymentIntentID(ctx context.Context, id uuid.UUID, paymentIntentID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"payment_intent_id": paymentIntentID,
			"updated_at":        time.Now().UTC(),
		}).Error
}

// ListUnsettled returns orders with a payment intent that are still in flight,
// or that succeeded without a confirmed capture.
func (r *repository) ListUnsettled(ctx context.Context) ([]models.Order, error) {
	var out []models.Order
	err := r.db.WithContext(ctx).
		Where("payment_intent_id IS NOT NULL").
		Where(
			r.db.Where("payment_status IN ?", []enums.PaymentStatus{enums.PaymentStatusPending, enums.PaymentStatusProcessing}).
				Or("payment_status = ? AND stripe_payment_captured = ?", enums.PaymentStatusSucceeded, false),
		).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
