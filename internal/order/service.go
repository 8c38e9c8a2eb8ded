package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/garment-order-service/internal/auth"
	"github.com/vasiliy-maslov/garment-order-service/internal/product"
)

// Approved orders only move forward through tracking stages; Rejected and
// Canceled are terminal.
var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusApproved: true,
		StatusRejected: true,
		StatusCanceled: true,
	},
	StatusApproved: {},
	StatusRejected: {},
	StatusCanceled: {},
}

func CanTransition(from, to Status) bool {
	return allowedTransitions[from][to]
}

// Catalog is the read side of the product store the engines need.
type Catalog interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*product.Product, error)
}

type Service interface {
	CreateOrder(ctx context.Context, actor auth.Principal, draft BookingDraft) (*Order, error)
	GetOrder(ctx context.Context, actor auth.Principal, id uuid.UUID) (*Order, error)
	ListOrders(ctx context.Context, actor auth.Principal, filter ListFilter) ([]Order, error)
	ApproveOrder(ctx context.Context, actor auth.Principal, id uuid.UUID) (*Order, error)
	RejectOrder(ctx context.Context, actor auth.Principal, id uuid.UUID) (*Order, error)
	CancelOrder(ctx context.Context, actor auth.Principal, id uuid.UUID) (*Order, error)
	AdvanceStage(ctx context.Context, actor auth.Principal, id uuid.UUID, adv StageAdvance) (*Order, error)
	SetCurrentLocation(ctx context.Context, actor auth.Principal, id uuid.UUID, loc Coordinate) (*Order, error)
}

type service struct {
	orderRepo Repository
	catalog   Catalog
	now       func() time.Time
}

func NewService(orderRepo Repository, catalog Catalog) Service {
	return &service{
		orderRepo: orderRepo,
		catalog:   catalog,
		now:       time.Now,
	}
}

// CreateOrder books a cash-on-delivery product. Prepaid products go through
// the payment bridge instead.
func (s *service) CreateOrder(ctx context.Context, actor auth.Principal, draft BookingDraft) (*Order, error) {
	if err := auth.Check(actor, auth.CreateOrder, auth.Resource{}); err != nil {
		log.Warn().Err(err).Stringer("actor_id", actor.ID).Msg("service: order creation denied")
		return nil, err
	}

	p, err := s.catalog.GetProduct(ctx, draft.ProductID)
	if err != nil {
		return nil, err
	}
	if p.PaymentOption == product.PaymentPrepaid {
		return nil, fmt.Errorf("%w: %s", ErrPaymentRequired, p.Name)
	}

	order, err := NewFromSnapshot(actor.ID, p, draft.Quantity, draft.Delivery)
	if err != nil {
		log.Warn().Err(err).Stringer("product_id", p.ID).Int("quantity", draft.Quantity).Msg("service: booking rejected")
		return nil, err
	}

	if _, err := s.orderRepo.Create(ctx, order); err != nil {
		log.Error().Err(err).Msg("service: failed to create order in repository")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	log.Info().
		Stringer("order_id", order.ID).
		Stringer("customer_id", order.CustomerID).
		Str("total_price", order.TotalPrice.StringFixed(2)).
		Msg("service: order created")

	return order, nil
}

// GetOrder checks the caller's role before touching storage so that a
// denied caller cannot tell existing orders from missing ones.
func (s *service) GetOrder(ctx context.Context, actor auth.Principal, id uuid.UUID) (*Order, error) {
	seesAll := auth.Allowed(actor, auth.ViewAllOrders, auth.Resource{}) || auth.Allowed(actor, auth.ViewManagedOrders, auth.Resource{})
	if !seesAll {
		if err := auth.Check(actor, auth.ViewOwnOrders, auth.Resource{}); err != nil {
			return nil, err
		}
	}

	order, err := s.getOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !seesAll && order.CustomerID != actor.ID {
		return nil, &auth.DenyError{Action: auth.ViewOwnOrders, Reason: auth.ErrForbidden}
	}

	return order, nil
}

// ListOrders narrows filter by role: customers only ever see their own
// orders, managers may restrict to orders of products they own.
func (s *service) ListOrders(ctx context.Context, actor auth.Principal, filter ListFilter) ([]Order, error) {
	query := ListQuery{Status: filter.Status}

	switch {
	case auth.Allowed(actor, auth.ViewAllOrders, auth.Resource{}):
		query.CustomerID = filter.CustomerID
	case auth.Allowed(actor, auth.ViewManagedOrders, auth.Resource{}):
		query.CustomerID = filter.CustomerID
		if filter.ManagerScope {
			query.ManagerID = actor.ID
		}
	default:
		if err := auth.Check(actor, auth.ViewOwnOrders, auth.Resource{}); err != nil {
			return nil, err
		}
		query.CustomerID = actor.ID
	}

	orders, err := s.orderRepo.List(ctx, query)
	if err != nil {
		log.Error().Err(err).Stringer("actor_id", actor.ID).Msg("service: failed to list orders")
		return nil, fmt.Errorf("service: failed to list orders: %w", err)
	}

	return orders, nil
}

func (s *service) ApproveOrder(ctx context.Context, actor auth.Principal, id uuid.UUID) (*Order, error) {
	if err := auth.Check(actor, auth.ApproveOrder, auth.Resource{}); err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, id, StatusApproved)
}

func (s *service) RejectOrder(ctx context.Context, actor auth.Principal, id uuid.UUID) (*Order, error) {
	if err := auth.Check(actor, auth.RejectOrder, auth.Resource{}); err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, id, StatusRejected)
}

func (s *service) CancelOrder(ctx context.Context, actor auth.Principal, id uuid.UUID) (*Order, error) {
	if err := auth.Check(actor, auth.CancelOwnOrder, auth.Resource{CustomerID: actor.ID}); err != nil {
		log.Warn().Err(err).Stringer("actor_id", actor.ID).Stringer("order_id", id).Msg("service: cancel denied")
		return nil, err
	}

	order, err := s.getOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.Check(actor, auth.CancelOwnOrder, auth.Resource{CustomerID: order.CustomerID}); err != nil {
		log.Warn().Err(err).Stringer("actor_id", actor.ID).Stringer("order_id", id).Msg("service: cancel denied")
		return nil, err
	}
	return s.apply(ctx, actor, order, StatusCanceled)
}

func (s *service) transition(ctx context.Context, actor auth.Principal, id uuid.UUID, to Status) (*Order, error) {
	order, err := s.getOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, actor, order, to)
}

// apply moves order to the target status with a conditional update on the
// status it was read with.
func (s *service) apply(ctx context.Context, actor auth.Principal, order *Order, to Status) (*Order, error) {
	from := order.Status
	if !CanTransition(from, to) {
		log.Warn().
			Stringer("order_id", order.ID).
			Stringer("current_status", from).
			Stringer("new_status", to).
			Msg("service: invalid status transition attempt")
		return nil, &TransitionError{From: from, To: to}
	}

	at := s.now().UTC()
	err := s.orderRepo.UpdateStatus(ctx, order.ID, from, to, at)
	if errors.Is(err, ErrConflict) {
		current, getErr := s.getOrder(ctx, order.ID)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status != from {
			log.Warn().
				Stringer("order_id", order.ID).
				Stringer("current_status", current.Status).
				Stringer("new_status", to).
				Msg("service: status changed concurrently")
			return nil, &TransitionError{From: current.Status, To: to}
		}
		return nil, ErrConflict
	}
	if err != nil {
		log.Error().Err(err).Stringer("order_id", order.ID).Stringer("new_status", to).Msg("service: failed to update order status in repository")
		return nil, fmt.Errorf("service: failed to update order status: %w", err)
	}

	order.Status = to
	order.UpdatedAt = at
	switch to {
	case StatusApproved:
		order.ApprovedAt = &at
	case StatusRejected:
		order.RejectedAt = &at
	case StatusCanceled:
		order.CanceledAt = &at
	}

	log.Info().
		Stringer("order_id", order.ID).
		Stringer("actor_id", actor.ID).
		Stringer("old_status", from).
		Stringer("new_status", to).
		Msg("service: order status updated successfully")

	return order, nil
}

func (s *service) getOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Stringer("order_id", id).Msg("service: order not found by id")
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to fetch order by id in repository")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}
	return order, nil
}
