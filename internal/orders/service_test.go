package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/flowdesk-backend/pkg/db/dbtest"
	"github.com/angelmondragon/flowdesk-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/flowdesk-backend/pkg/errors"
)

type stubEventLister struct {
	entries []models.PaymentEvent
	err     error
}

func (s stubEventLister) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.PaymentEvent, error) {
	return s.entries, s.err
}

func TestDetailReturnsOrderAndEvents(t *testing.T) {
	repo := NewRepository(dbtest.New(t))
	order := mustCreateOrder(t, repo, func(o *models.Order) { o.StripeSessionID = strPtr("cs_9") })
	status := "paid"
	svc, err := NewService(repo, stubEventLister{entries: []models.PaymentEvent{{
		EventID:        "evt_9",
		EventType:      "checkout.session.completed",
		Status:         &status,
		EventCreatedAt: time.Unix(1700000000, 0).UTC(),
	}}})
	require.NoError(t, err)

	detail, err := svc.Detail(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, detail.Order.ID)
	require.Len(t, detail.Events, 1)
	assert.Equal(t, "evt_9", detail.Events[0].EventID)
}

func TestDetailNotFound(t *testing.T) {
	svc, err := NewService(NewRepository(dbtest.New(t)), stubEventLister{})
	require.NoError(t, err)

	_, err = svc.Detail(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, stubEventLister{})
	require.Error(t, err)
	_, err = NewService(NewRepository(dbtest.New(t)), nil)
	require.Error(t, err)
}
