package service

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/apperr"
	"github.com/prudhivi99/Distributed-Systems/marketplace-go/internal/models"
)

// OrderStore is the order side's persistence. Lookups return nil, nil when
// the order does not exist.
type OrderStore interface {
	Create(ctx context.Context, order *models.Order) error
	GetByOrderID(ctx context.Context, orderID string) (*models.Order, error)
	GetAll(ctx context.Context) ([]models.Order, error)
	ListByStatus(ctx context.Context, status models.OrderStatus) ([]models.Order, error)
	UpdateStatus(ctx context.Context, orderID string, status models.OrderStatus) (*models.Order, error)
}

type EventPublisher interface {
	PublishShipped(ctx context.Context, orderID string) error
}

type OrderService struct {
	store     OrderStore
	publisher EventPublisher
	strict    bool
}

type OrderOption func(*OrderService)

// WithStrictTransitions limits status changes to the forward lifecycle.
func WithStrictTransitions(strict bool) OrderOption {
	return func(s *OrderService) {
		s.strict = strict
	}
}

func NewOrderService(store OrderStore, publisher EventPublisher, opts ...OrderOption) *OrderService {
	s := &OrderService{store: store, publisher: publisher}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new order in CREATED status
func (s *OrderService) Create(ctx context.Context, req models.CreateOrderRequest) (*models.Order, error) {
	const op = "orders.Create"

	if strings.TrimSpace(req.CustomerID) == "" || strings.TrimSpace(req.SellerID) == "" || strings.TrimSpace(req.ProductID) == "" {
		return nil, apperr.New(op, "", apperr.ErrValidation)
	}
	if req.Price <= 0 || req.Quantity <= 0 {
		return nil, apperr.New(op, "", apperr.ErrValidation)
	}

	order := &models.Order{
		OrderID:    uuid.NewString(),
		Status:     models.StatusCreated,
		CustomerID: req.CustomerID,
		SellerID:   req.SellerID,
		ProductID:  req.ProductID,
		Price:      req.Price,
		Quantity:   req.Quantity,
	}
	if err := s.store.Create(ctx, order); err != nil {
		return nil, err
	}

	log.Printf("✅ Order %s created", order.OrderID)
	return order, nil
}

func (s *OrderService) Get(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.store.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperr.New("orders.Get", orderID, apperr.ErrNotFound)
	}
	return order, nil
}

func (s *OrderService) List(ctx context.Context) ([]models.Order, error) {
	return s.store.GetAll(ctx)
}

// SetStatus overwrites the order's status and, when the result is SHIPPED,
// publishes a ShippedEvent after the write has committed. A failed publish is
// reported as a delivery error together with the committed order; the status
// is not rolled back.
func (s *OrderService) SetStatus(ctx context.Context, orderID, status string) (*models.Order, error) {
	const op = "orders.SetStatus"

	next, ok := models.ParseOrderStatus(status)
	if !ok {
		return nil, apperr.New(op, orderID, apperr.ErrValidation)
	}

	if s.strict {
		current, err := s.store.GetByOrderID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, apperr.New(op, orderID, apperr.ErrNotFound)
		}
		if !models.CanTransition(current.Status, next) {
			return nil, apperr.New(op, orderID, apperr.ErrInvalidTransition)
		}
	}

	order, err := s.store.UpdateStatus(ctx, orderID, next)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperr.New(op, orderID, apperr.ErrNotFound)
	}

	log.Printf("✅ Order %s status set to %s", orderID, order.Status)

	if order.Status != models.StatusShipped {
		return order, nil
	}

	if err := s.publisher.PublishShipped(ctx, orderID); err != nil {
		log.Printf("❌ Order %s is SHIPPED but the event was not published: %v", orderID, err)
		return order, apperr.Wrap(op, orderID, apperr.ErrDelivery, err)
	}

	return order, nil
}

// ReconcileShipped republishes a ShippedEvent for every SHIPPED order. It
// recovers events lost between a status commit and its publish; consumers
// treat the repeats as no-ops.
func (s *OrderService) ReconcileShipped(ctx context.Context) (int, error) {
	orders, err := s.store.ListByStatus(ctx, models.StatusShipped)
	if err != nil {
		return 0, err
	}

	var errs []error
	published := 0
	for _, o := range orders {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := s.publisher.PublishShipped(ctx, o.OrderID); err != nil {
			errs = append(errs, apperr.Wrap("orders.ReconcileShipped", o.OrderID, apperr.ErrDelivery, err))
			continue
		}
		published++
	}

	log.Printf("🔄 Reconciled %d/%d shipped orders", published, len(orders))
	return published, errors.Join(errs...)
}
