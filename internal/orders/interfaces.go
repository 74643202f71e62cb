package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/flowdesk-backend/pkg/db/models"
	"github.com/angelmondragon/flowdesk-backend/pkg/enums"
	"github.com/angelmondragon/flowdesk-backend/pkg/types"
)

// Repository defines persistence operations for the order ledger.
// Finders return (nil, nil) when no row matches.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByStripeSessionID(ctx context.Context, sessionID string) (*models.Order, error)
	FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Order, error)
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, observed enums.PaymentStatus, update StatusUpdate) (bool, error)
	SetPaymentIntentID(ctx context.Context, id uuid.UUID, paymentIntentID string) error
	ListUnsettled(ctx context.Context) ([]models.Order, error)
}

// StatusUpdate is the full set of columns written by a payment state change.
type StatusUpdate struct {
	Status          enums.PaymentStatus
	Captured        bool
	PaymentIntentID *string
	Metadata        types.Metadata
	LastEventAt     *time.Time
}
