package checkout

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/flowdesk-backend/internal/orders"
	"github.com/angelmondragon/flowdesk-backend/internal/solutions"
	"github.com/angelmondragon/flowdesk-backend/pkg/db"
	"github.com/angelmondragon/flowdesk-backend/pkg/db/models"
	"github.com/angelmondragon/flowdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/flowdesk-backend/pkg/errors"
	"github.com/angelmondragon/flowdesk-backend/pkg/logger"
	"github.com/angelmondragon/flowdesk-backend/pkg/types"
)

const orderSessionConstraint = "ux_orders_stripe_session_id"

type sessionCreator interface {
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
}

// Service opens Stripe checkout sessions and records the pending order.
type Service interface {
	CreateSession(ctx context.Context, input CheckoutInput) (*CheckoutResult, error)
}

// CheckoutInput is a purchase request for one plan of a solution.
type CheckoutInput struct {
	Email      string
	Amount     decimal.Decimal
	Title      string
	SolutionID uuid.UUID
	PlanType   enums.PlanType
	// Origin is the site the customer returns to after checkout.
	Origin string
}

// CheckoutResult carries the hosted checkout URL.
type CheckoutResult struct {
	URL       string    `json:"url"`
	SessionID string    `json:"session_id"`
	OrderID   uuid.UUID `json:"order_id"`
}

type ServiceParams struct {
	Orders    orders.Repository
	Solutions solutions.Repository
	Stripe    sessionCreator
	Currency  string
	SiteURL   string
	Logger    *logger.Logger
}

type service struct {
	orders    orders.Repository
	solutions solutions.Repository
	stripe    sessionCreator
	currency  string
	siteURL   string
	logg      *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if params.Solutions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "solutions repository required")
	}
	if params.Stripe == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "usd"
	}
	return &service{
		orders:    params.Orders,
		solutions: params.Solutions,
		stripe:    params.Stripe,
		currency:  currency,
		siteURL:   strings.TrimRight(params.SiteURL, "/"),
		logg:      params.Logger,
	}, nil
}

// CreateSession prices the plan, opens the Stripe session and stores a pending
// order keyed by the session id. Creating the order again for the same session
// returns the existing one.
func (s *service) CreateSession(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	if !input.PlanType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid plan type")
	}
	solution, err := s.solutions.FindByID(ctx, input.SolutionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load solution")
	}
	if solution == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "solution not found")
	}
	amount, err := ChargeAmount(solution, input.PlanType, input.Amount)
	if err != nil {
		return nil, err
	}

	origin, err := s.returnOrigin(input.Origin)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = solution.Title
	}

	orderID := uuid.New()
	session, err := s.stripe.CreateCheckoutSession(ctx, s.sessionParams(orderID, solution.ID, input, title, origin, amount))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProcessor, err, "create checkout session")
	}

	order, err := s.recordOrder(ctx, orderID, solution.ID, input, amount, session)
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"stripe_session_id": session.ID,
			"plan_type":         input.PlanType,
			"amount":            amount.StringFixed(2),
		})
		s.logg.Info(logCtx, "checkout.session.created")
	}
	return &CheckoutResult{URL: session.URL, SessionID: session.ID, OrderID: order.ID}, nil
}

func (s *service) sessionParams(orderID, solutionID uuid.UUID, input CheckoutInput, title, origin string, amount decimal.Decimal) *stripe.CheckoutSessionCreateParams {
	solutionPath := origin + "/solution/" + solutionID.String()
	metadata := map[string]string{
		"solution_id": solutionID.String(),
		"plan_type":   string(input.PlanType),
		"order_id":    orderID.String(),
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{{
			PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
				Currency: stripe.String(s.currency),
				ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
					Name: stripe.String(title),
				},
				UnitAmount: stripe.Int64(ToCents(amount)),
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:        stripe.String(solutionPath + "?success=true&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(solutionPath + "?canceled=true"),
		CustomerEmail:     stripe.String(input.Email),
		ClientReferenceID: stripe.String(orderID.String()),
		PaymentIntentData: &stripe.CheckoutSessionCreatePaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	return params
}

func (s *service) recordOrder(ctx context.Context, orderID, solutionID uuid.UUID, input CheckoutInput, amount decimal.Decimal, session *stripe.CheckoutSession) (*models.Order, error) {
	existing, err := s.orders.FindByStripeSessionID(ctx, session.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup order by session")
	}
	if existing != nil {
		return existing, nil
	}

	sessionID := session.ID
	metadata := types.Metadata{"checkout_url": session.URL}
	order := &models.Order{
		ID:              orderID,
		SolutionID:      solutionID,
		StripeSessionID: &sessionID,
		PaymentStatus:   enums.PaymentStatusPending,
		Amount:          amount,
		Currency:        s.currency,
		CustomerEmail:   input.Email,
		PlanType:        input.PlanType,
		Metadata:        metadata,
	}
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		intentID := session.PaymentIntent.ID
		order.PaymentIntentID = &intentID
		metadata["payment_intent_id"] = intentID
	}

	created, err := s.orders.Create(ctx, order)
	if err != nil {
		if db.IsUniqueViolation(err, orderSessionConstraint) {
			raced, findErr := s.orders.FindByStripeSessionID(ctx, session.ID)
			if findErr == nil && raced != nil {
				return raced, nil
			}
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
	}
	return created, nil
}

func (s *service) returnOrigin(origin string) (string, error) {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	if origin == "" {
		origin = s.siteURL
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid return origin")
	}
	return origin, nil
}
