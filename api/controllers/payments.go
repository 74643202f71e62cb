package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/flowdesk-backend/api/middleware"
	"github.com/angelmondragon/flowdesk-backend/api/responses"
	"github.com/angelmondragon/flowdesk-backend/api/validators"
	"github.com/angelmondragon/flowdesk-backend/internal/orders"
	"github.com/angelmondragon/flowdesk-backend/internal/reconcile"
	"github.com/angelmondragon/flowdesk-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/flowdesk-backend/pkg/errors"
	"github.com/angelmondragon/flowdesk-backend/pkg/logger"
)

// PaymentRefresher pulls current state from Stripe into the ledger.
type PaymentRefresher interface {
	RefreshOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	RefreshAll(ctx context.Context) (reconcile.BulkResult, error)
}

type refreshRequest struct {
	OrderID string `json:"orderId" validate:"required,uuid"`
}

type refreshTransactionsResponse struct {
	Updated int `json:"updated"`
}

// PaymentsRefresh re-reads one order's payment from Stripe and returns the
// updated order.
func PaymentsRefresh(svc PaymentRefresher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refresh service unavailable"))
			return
		}

		var payload refreshRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		orderID, err := uuid.Parse(payload.OrderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid orderId"))
			return
		}
		middleware.Annotate(ctx, "order_id", orderID.String())

		order, err := svc.RefreshOrder(ctx, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteJSON(w, http.StatusOK, orders.ToView(order))
	}
}

// PaymentsRefreshTransactions syncs settlement state from recent balance
// transactions. Per-order write failures are logged and do not fail the call.
func PaymentsRefreshTransactions(svc PaymentRefresher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refresh service unavailable"))
			return
		}

		result, err := svc.RefreshAll(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if result.Failures != nil && logg != nil {
			logg.Error(logg.WithField(ctx, "updated", result.Updated), "payments.refresh_transactions.partial", result.Failures)
		}
		responses.WriteJSON(w, http.StatusOK, refreshTransactionsResponse{Updated: result.Updated})
	}
}

// OrderDetail returns an order with its processor event history.
func OrderDetail(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
			return
		}
		middleware.Annotate(ctx, "order_id", orderID.String())

		detail, err := svc.Detail(ctx, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}
