package domain

import "time"

// OpenOrder is one unsettled reservation. At most one row exists per
// (user, item) pair and quantity is always >= 1; a mutation down to zero
// removes the row instead.
type OpenOrder struct {
	ID        int64
	UserID    int64
	ItemID    int64
	Quantity  int
	CreatedAt time.Time
}

// OpenOrderView is the read projection joined with item and user names.
type OpenOrderView struct {
	OpenOrder
	ItemName string
	Username string
}

// OrderMutation is one request of a reconciliation batch.
// Quantity 0 removes the reservation, anything positive sets it exactly.
type OrderMutation struct {
	UserID   int64
	ItemID   int64
	Quantity int
}
