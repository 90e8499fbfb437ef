package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/com2u/Pickup/internal/core/domain"
	"github.com/com2u/Pickup/internal/port"
)

// OrderService is the reconciliation engine: it applies batches of order
// mutations against the open-order table as all-or-nothing units.
type OrderService struct {
	orders port.OrderRepository
	events *Events
	log    *zap.Logger
}

func NewOrderService(orders port.OrderRepository, events *Events, log *zap.Logger) *OrderService {
	return &OrderService{
		orders: orders,
		events: events,
		log:    log,
	}
}

func (s *OrderService) ListOrders(ctx context.Context) ([]domain.OpenOrderView, error) {
	return s.orders.ListOrders(ctx)
}

// PlaceOrder sets the caller's own reservation for one item. Unlike batch
// requests, a single order requires quantity >= 1.
func (s *OrderService) PlaceOrder(ctx context.Context, ident domain.Identity, itemID int64, quantity int) error {
	if quantity < 1 {
		return domain.ErrInvalidQuantity
	}

	batch := []domain.OrderMutation{{UserID: ident.UserID, ItemID: itemID, Quantity: quantity}}
	if err := s.orders.ApplyBatch(ctx, batch); err != nil {
		var be *domain.BatchError
		if errors.As(err, &be) {
			return be.Err
		}
		return err
	}

	s.events.Publish(EventOrdersChanged)
	return nil
}

// ApplyBatch validates and applies an ordered batch of mutations.
// Quantity 0 removes a reservation, positive quantities set it exactly;
// the later request wins when a (user, item) key repeats. Either every
// request is applied or none are.
func (s *OrderService) ApplyBatch(ctx context.Context, ident domain.Identity, batch []domain.OrderMutation) error {
	// The whole batch is checked before anything touches storage.
	for i, m := range batch {
		if m.Quantity < 0 {
			return &domain.BatchError{Index: i, Err: domain.ErrInvalidQuantity}
		}
		if !ident.IsPrivileged && m.UserID != ident.UserID {
			return &domain.BatchError{Index: i, Err: domain.ErrForbidden}
		}
	}

	if len(batch) == 0 {
		return nil
	}

	if err := s.orders.ApplyBatch(ctx, batch); err != nil {
		return err
	}

	s.log.Info("order batch applied",
		zap.Int64("actor", ident.UserID),
		zap.Int("requests", len(batch)),
	)
	s.events.Publish(EventOrdersChanged)
	return nil
}
