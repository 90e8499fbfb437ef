package domain

import (
	"time"

	"github.com/google/uuid"
)

// Ledger entry descriptions written by delivery confirmation.
const (
	DescriptionOrderPayment    = "Order payment"
	DescriptionPaymentReceived = "Payment received"
)

// LedgerEntry is one immutable signed monetary record. The ledger is
// append-only: no code path updates or deletes a posted entry, and a
// user's balance is always the sum of their entries.
type LedgerEntry struct {
	ID          int64
	UserID      int64
	Amount      Cents
	Description string
	// EntryRef is an external tracking id assigned at append time.
	EntryRef  uuid.UUID
	CreatedAt time.Time
}

// LedgerEntryView joins an entry with the owning user's display name.
type LedgerEntryView struct {
	LedgerEntry
	Username string
}

// BalanceView is the per-user derived balance projection.
type BalanceView struct {
	UserID   int64
	Username string
	Balance  Cents
}

// ConsumerTotal is one user's share of a settlement, computed from the
// open-order snapshot and catalog prices inside the settlement transaction.
type ConsumerTotal struct {
	UserID   int64
	Username string
	Amount   Cents
}

// Settlement reports what one delivery confirmation posted.
type Settlement struct {
	Ref              uuid.UUID
	DeliveringUserID int64
	Totals           []ConsumerTotal
	Total            Cents
	SettledAt        time.Time
}
