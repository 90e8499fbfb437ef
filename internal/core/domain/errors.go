package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuantity rejects order mutations outside the allowed range.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrForbidden rejects mutations the caller is not allowed to make.
	ErrForbidden = errors.New("forbidden")

	ErrUserNotFound = errors.New("user not found")
	ErrItemNotFound = errors.New("item not found")
	ErrNotFound     = errors.New("not found")

	// ErrInvalidItem rejects catalog writes with a missing name or a
	// negative price.
	ErrInvalidItem = errors.New("item name and non-negative price are required")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrAdminProtected     = errors.New("cannot delete admin user")

	// ErrNothingToSettle rejects a delivery confirmation with no open orders.
	ErrNothingToSettle = errors.New("no open orders to settle")

	// ErrDuplicateRequest signals an idempotency-key replay.
	ErrDuplicateRequest = errors.New("duplicate request")
)

// BatchError reports which request of a reconciliation batch failed.
// The whole batch is rolled back when one is returned.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch request %d: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }
