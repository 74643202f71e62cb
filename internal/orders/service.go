package orders

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/flowdesk-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/flowdesk-backend/pkg/errors"
)

type eventLister interface {
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.PaymentEvent, error)
}

// Service exposes read operations over the order ledger.
type Service interface {
	Detail(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error)
}

type service struct {
	repo   Repository
	events eventLister
}

func NewService(repo Repository, events eventLister) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "event repository required")
	}
	return &service{repo: repo, events: events}, nil
}

// Detail returns an order with the processor events that touched it.
func (s *service) Detail(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	entries, err := s.events.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order events")
	}
	return &OrderDetail{
		Order:  ToView(order),
		Events: toEventViews(entries),
	}, nil
}
