package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/flowdesk-backend/api/middleware"
	"github.com/angelmondragon/flowdesk-backend/api/responses"
	"github.com/angelmondragon/flowdesk-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/flowdesk-backend/internal/checkout"
	"github.com/angelmondragon/flowdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/flowdesk-backend/pkg/errors"
	"github.com/angelmondragon/flowdesk-backend/pkg/logger"
)

type checkoutRequest struct {
	Email      string          `json:"email" validate:"required,email"`
	Amount     decimal.Decimal `json:"amount" validate:"money"`
	Title      string          `json:"title" validate:"max=200"`
	SolutionID string          `json:"solutionId" validate:"required,uuid"`
	PlanType   string          `json:"planType" validate:"required,oneof=premium pro"`
}

type checkoutResponse struct {
	URL string `json:"url"`
}

// Checkout opens a Stripe checkout session for one plan of a solution.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		solutionID, err := uuid.Parse(payload.SolutionID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid solutionId"))
			return
		}
		middleware.Annotate(ctx, "solution_id", solutionID.String())

		result, err := svc.CreateSession(ctx, checkoutsvc.CheckoutInput{
			Email:      validators.SanitizeString(payload.Email, 254),
			Amount:     payload.Amount,
			Title:      validators.SanitizeString(payload.Title, 200),
			SolutionID: solutionID,
			PlanType:   enums.PlanType(payload.PlanType),
			Origin:     r.Header.Get("Origin"),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if result.OrderID != uuid.Nil {
			middleware.Annotate(ctx, "order_id", result.OrderID.String())
		}
		responses.WriteJSON(w, http.StatusOK, checkoutResponse{URL: result.URL})
	}
}
