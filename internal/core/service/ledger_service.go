package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/com2u/Pickup/internal/core/domain"
	"github.com/com2u/Pickup/internal/port"
)

// LedgerService exposes the append-only balance ledger: balances and
// history are always derived from the entry log, and manual corrections
// are modeled as new entries, never edits.
type LedgerService struct {
	ledger port.LedgerRepository
	users  port.UserRepository
	events *Events
	log    *zap.Logger
}

func NewLedgerService(ledger port.LedgerRepository, users port.UserRepository, events *Events, log *zap.Logger) *LedgerService {
	return &LedgerService{
		ledger: ledger,
		users:  users,
		events: events,
		log:    log,
	}
}

func (s *LedgerService) Balances(ctx context.Context) ([]domain.BalanceView, error) {
	return s.ledger.Balances(ctx)
}

func (s *LedgerService) History(ctx context.Context) ([]domain.LedgerEntryView, error) {
	return s.ledger.History(ctx)
}

func (s *LedgerService) CurrentBalance(ctx context.Context, userID int64) (domain.Cents, error) {
	return s.ledger.CurrentBalance(ctx, userID)
}

// PostCorrection appends a manual adjustment entry. Zero amounts are
// legal; a correction never rewrites posted entries.
func (s *LedgerService) PostCorrection(ctx context.Context, userID int64, amount domain.Cents, description string) (*domain.LedgerEntry, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}

	entry, err := s.ledger.Append(ctx, userID, amount, description)
	if err != nil {
		return nil, err
	}

	s.log.Info("balance correction posted",
		zap.Int64("user", userID),
		zap.String("amount", amount.String()),
		zap.String("ref", entry.EntryRef.String()),
	)
	s.events.Publish(EventLedgerChanged)
	return entry, nil
}
