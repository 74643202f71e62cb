package events

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/flowdesk-backend/pkg/db/models"
)

// Repository persists the append-only Stripe event log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Record(ctx context.Context, entry *models.PaymentEvent) (bool, error)
	Exists(ctx context.Context, eventID string) (bool, error)
	AttachOrder(ctx context.Context, eventID string, orderID uuid.UUID) error
	FindByEventID(ctx context.Context, eventID string) (*models.PaymentEvent, error)
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.PaymentEvent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an event log repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Record appends entry unless an entry with the same event id already exists.
// The returned flag is false for duplicates.
func (r *repository) Record(ctx context.Context, entry *models.PaymentEvent) (bool, error) {
	if entry == nil {
		return false, errors.New("event entry required")
	}
	if entry.EventID == "" {
		return false, errors.New("event id required")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(entry)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) Exists(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PaymentEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AttachOrder links a logged event to the order it resolved to.
func (r *repository) AttachOrder(ctx context.Context, eventID string, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentEvent{}).
		Where("event_id = ?", eventID).
		Update("order_id", orderID).Error
}

func (r *repository) FindByEventID(ctx context.Context, eventID string) (*models.PaymentEvent, error) {
	var entry models.PaymentEvent
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.PaymentEvent, error) {
	var entries []models.PaymentEvent
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("event_created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
