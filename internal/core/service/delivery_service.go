package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/com2u/Pickup/internal/core/domain"
	"github.com/com2u/Pickup/internal/port"
)

// DeliveryService orchestrates settlement: it converts the open orders
// into ledger postings and clears the order table as one transaction.
//
// Per-user totals are always recomputed from the open-order snapshot and
// catalog prices inside that transaction. A client may still send its own
// totals map; it is treated as a display hint and only compared against
// the recomputation.
type DeliveryService struct {
	settlements port.SettlementRepository
	users       port.UserRepository
	events      *Events
	log         *zap.Logger
}

func NewDeliveryService(settlements port.SettlementRepository, users port.UserRepository, events *Events, log *zap.Logger) *DeliveryService {
	return &DeliveryService{
		settlements: settlements,
		users:       users,
		events:      events,
		log:         log,
	}
}

// ConfirmDelivery settles all open orders. Each consumer is debited their
// recomputed total ("Order payment") and the delivering user is credited
// the grand total ("Payment received"), so the posted deltas sum to zero.
// The deliverer may also be a consumer; their two entries net out.
func (s *DeliveryService) ConfirmDelivery(ctx context.Context, ident domain.Identity, deliveringUserID int64, clientTotals map[string]float64) (*domain.Settlement, error) {
	settlement, err := s.settlements.ConfirmDelivery(ctx, deliveringUserID)
	if err != nil {
		return nil, err
	}

	s.compareClientTotals(settlement, clientTotals)

	s.log.Info("delivery confirmed",
		zap.String("ref", settlement.Ref.String()),
		zap.Int64("actor", ident.UserID),
		zap.Int64("delivering_user", deliveringUserID),
		zap.Int("consumers", len(settlement.Totals)),
		zap.String("total", settlement.Total.String()),
	)
	s.events.Publish(EventDeliveryConfirmed)
	return settlement, nil
}

// compareClientTotals logs any disagreement between what the client
// believed each user owed and what the settlement actually posted.
func (s *DeliveryService) compareClientTotals(settlement *domain.Settlement, clientTotals map[string]float64) {
	if clientTotals == nil {
		return
	}

	posted := make(map[string]domain.Cents, len(settlement.Totals))
	for _, t := range settlement.Totals {
		posted[t.Username] = t.Amount
	}

	for username, amount := range clientTotals {
		want, ok := posted[username]
		if !ok {
			s.log.Warn("client total for user without open orders",
				zap.String("ref", settlement.Ref.String()),
				zap.String("username", username),
			)
			continue
		}
		if domain.CentsFromFloat(amount) != want {
			s.log.Warn("client total disagrees with settlement",
				zap.String("ref", settlement.Ref.String()),
				zap.String("username", username),
				zap.Float64("client", amount),
				zap.String("posted", want.String()),
			)
		}
	}

	for username := range posted {
		if _, ok := clientTotals[username]; !ok {
			s.log.Warn("client totals miss a settled user",
				zap.String("ref", settlement.Ref.String()),
				zap.String("username", username),
			)
		}
	}
}
