package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/flowdesk-backend/pkg/db/dbtest"
	"github.com/angelmondragon/flowdesk-backend/pkg/db/models"
	"github.com/angelmondragon/flowdesk-backend/pkg/enums"
	"github.com/angelmondragon/flowdesk-backend/pkg/types"
)

func strPtr(v string) *string { return &v }

func mustCreateOrder(t *testing.T, repo Repository, mutate func(*models.Order)) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:            uuid.New(),
		SolutionID:    uuid.New(),
		PaymentStatus: enums.PaymentStatusPending,
		Amount:        decimal.NewFromInt(100),
		Currency:      "usd",
		CustomerEmail: "buyer@example.com",
		PlanType:      enums.PlanTypePremium,
		Metadata:      types.Metadata{},
	}
	if mutate != nil {
		mutate(order)
	}
	created, err := repo.Create(context.Background(), order)
	require.NoError(t, err)
	return created
}

func TestFindersReturnNilWhenMissing(t *testing.T) {
	repo := NewRepository(dbtest.New(t))
	ctx := context.Background()

	order, err := repo.FindByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, order)

	order, err = repo.FindByStripeSessionID(ctx, "cs_missing")
	require.NoError(t, err)
	assert.Nil(t, order)

	order, err = repo.FindByPaymentIntentID(ctx, "pi_missing")
	require.NoError(t, err)
	assert.Nil(t, order)
}

func TestFindBySessionAndIntent(t *testing.T) {
	repo := NewRepository(dbtest.New(t))
	ctx := context.Background()
	created := mustCreateOrder(t, repo, func(o *models.Order) {
		o.StripeSessionID = strPtr("cs_1")
		o.PaymentIntentID = strPtr("pi_1")
	})

	bySession, err := repo.FindByStripeSessionID(ctx, "cs_1")
	require.NoError(t, err)
	require.NotNil(t, bySession)
	assert.Equal(t, created.ID, bySession.ID)
	assert.True(t, decimal.NewFromInt(100).Equal(bySession.Amount))

	byIntent, err := repo.FindByPaymentIntentID(ctx, "pi_1")
	require.NoError(t, err)
	require.NotNil(t, byIntent)
	assert.Equal(t, created.ID, byIntent.ID)
}

func TestCreateRejectsDuplicateSession(t *testing.T) {
	repo := NewRepository(dbtest.New(t))
	mustCreateOrder(t, repo, func(o *models.Order) { o.StripeSessionID = strPtr("cs_dup") })

	_, err := repo.Create(context.Background(), &models.Order{
		SolutionID:      uuid.New(),
		StripeSessionID: strPtr("cs_dup"),
		Amount:          decimal.NewFromInt(5),
		CustomerEmail:   "x@example.com",
		PlanType:        enums.PlanTypePro,
	})
	require.Error(t, err)
}

func TestCompareAndSetStatus(t *testing.T) {
	repo := NewRepository(dbtest.New(t))
	ctx := context.Background()
	order := mustCreateOrder(t, repo, nil)
	at := time.Unix(1700000000, 0).UTC()

	ok, err := repo.CompareAndSetStatus(ctx, order.ID, enums.PaymentStatusPending, StatusUpdate{
		Status:          enums.PaymentStatusSucceeded,
		Captured:        true,
		PaymentIntentID: strPtr("pi_cas"),
		Metadata:        types.Metadata{"payment_status": "succeeded"},
		LastEventAt:     &at,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusSucceeded, stored.PaymentStatus)
	assert.True(t, stored.StripePaymentCaptured)
	require.NotNil(t, stored.PaymentIntentID)
	assert.Equal(t, "pi_cas", *stored.PaymentIntentID)
	assert.Equal(t, "succeeded", stored.Metadata.String("payment_status"))
	require.NotNil(t, stored.LastEventAt)
	assert.True(t, at.Equal(*stored.LastEventAt))

	// the stored status moved on, so a writer that observed pending loses
	ok, err = repo.CompareAndSetStatus(ctx, order.ID, enums.PaymentStatusPending, StatusUpdate{Status: enums.PaymentStatusFailed})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.CompareAndSetStatus(ctx, order.ID, enums.PaymentStatusSucceeded, StatusUpdate{Status: "paid"})
	require.Error(t, err)
}

func TestSetPaymentIntentID(t *testing.T) {
	repo := NewRepository(dbtest.New(t))
	ctx := context.Background()
	order := mustCreateOrder(t, repo, nil)

	require.NoError(t, repo.SetPaymentIntentID(ctx, order.ID, "pi_new"))
	found, err := repo.FindByPaymentIntentID(ctx, "pi_new")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, order.ID, found.ID)
}

func TestListUnsettled(t *testing.T) {
	repo := NewRepository(dbtest.New(t))
	ctx := context.Background()

	pending := mustCreateOrder(t, repo, func(o *models.Order) { o.PaymentIntentID = strPtr("pi_a") })
	processing := mustCreateOrder(t, repo, func(o *models.Order) {
		o.PaymentIntentID = strPtr("pi_b")
		o.PaymentStatus = enums.PaymentStatusProcessing
	})
	uncaptured := mustCreateOrder(t, repo, func(o *models.Order) {
		o.PaymentIntentID = strPtr("pi_c")
		o.PaymentStatus = enums.PaymentStatusSucceeded
	})
	mustCreateOrder(t, repo, func(o *models.Order) {
		o.PaymentIntentID = strPtr("pi_d")
		o.PaymentStatus = enums.PaymentStatusSucceeded
		o.StripePaymentCaptured = true
	})
	mustCreateOrder(t, repo, func(o *models.Order) {
		o.PaymentIntentID = strPtr("pi_e")
		o.PaymentStatus = enums.PaymentStatusFailed
	})
	mustCreateOrder(t, repo, nil)

	list, err := repo.ListUnsettled(ctx)
	require.NoError(t, err)

	ids := map[uuid.UUID]bool{}
	for _, o := range list {
		ids[o.ID] = true
	}
	assert.Len(t, list, 3)
	assert.True(t, ids[pending.ID])
	assert.True(t, ids[processing.ID])
	assert.True(t, ids[uncaptured.ID])
}
