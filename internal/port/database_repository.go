package port

import (
	"context"

	"github.com/com2u/Pickup/internal/core/domain"
)

type UserRepository interface {
	// CreateUser inserts a new user; the username must be unique.
	CreateUser(ctx context.Context, username, passwordHash string) (*domain.User, error)

	// GetUserByID returns nil, nil when the user does not exist.
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)

	// GetUserByUsername returns nil, nil when the user does not exist.
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)

	ListUsers(ctx context.Context) ([]domain.User, error)

	UpdatePassword(ctx context.Context, id int64, passwordHash string) error

	// DeleteUser removes the user; domain.ErrUserNotFound when absent.
	DeleteUser(ctx context.Context, id int64) error
}

type ItemRepository interface {
	ListItems(ctx context.Context) ([]domain.Item, error)

	// GetItem returns nil, nil when the item does not exist.
	GetItem(ctx context.Context, id int64) (*domain.Item, error)

	CreateItem(ctx context.Context, name string, price domain.Cents) (*domain.Item, error)

	UpdateItem(ctx context.Context, id int64, name string, price domain.Cents) (*domain.Item, error)

	// DeleteItem removes the item and any open orders referencing it
	// in one transaction.
	DeleteItem(ctx context.Context, id int64) error
}

type OrderRepository interface {
	// ListOrders returns all open orders joined with item and user names,
	// newest first.
	ListOrders(ctx context.Context) ([]domain.OpenOrderView, error)

	// ApplyBatch applies the mutations in order inside one transaction.
	// Quantity 0 removes the row, positive quantities replace it. Every
	// referenced user and item must exist; the first failing request is
	// reported as a *domain.BatchError and nothing is committed.
	ApplyBatch(ctx context.Context, batch []domain.OrderMutation) error
}

type LedgerRepository interface {
	// Append posts one immutable entry with a server-assigned id,
	// reference and timestamp.
	Append(ctx context.Context, userID int64, amount domain.Cents, description string) (*domain.LedgerEntry, error)

	// CurrentBalance is the sum of the user's entries, 0 when none exist.
	CurrentBalance(ctx context.Context, userID int64) (domain.Cents, error)

	// Balances returns every user's derived balance, sorted by username.
	Balances(ctx context.Context) ([]domain.BalanceView, error)

	// History returns all entries joined with usernames, newest first.
	History(ctx context.Context) ([]domain.LedgerEntryView, error)
}

type SettlementRepository interface {
	// ConfirmDelivery snapshots the open orders, computes per-user totals
	// from catalog prices, posts the ledger entries (one debit per
	// consumer, one credit for the deliverer) and clears the order table,
	// all in one transaction. domain.ErrNothingToSettle when there are no
	// open orders, domain.ErrUserNotFound for an unknown deliverer.
	ConfirmDelivery(ctx context.Context, deliveringUserID int64) (*domain.Settlement, error)
}
