package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/com2u/Pickup/internal/core/domain"
)

// OrderStore holds the open reservations, one row per (user, item) pair.
// The UNIQUE(user_id, item_id) key backs the upsert semantics.
type OrderStore struct {
	db *sql.DB
}

func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

func (s *OrderStore) ListOrders(ctx context.Context) ([]domain.OpenOrderView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.user_id, o.item_id, o.quantity, o.created_at, i.name, u.username
		FROM orders o
		JOIN items i ON o.item_id = i.id
		JOIN users u ON o.user_id = u.id
		ORDER BY o.created_at DESC, o.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.OpenOrderView
	for rows.Next() {
		var o domain.OpenOrderView
		if err := rows.Scan(&o.ID, &o.UserID, &o.ItemID, &o.Quantity, &o.CreatedAt, &o.ItemName, &o.Username); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// ApplyBatch applies the mutations in request order inside one
// transaction, so the later request wins for a repeated key and a failure
// anywhere leaves the table untouched.
func (s *OrderStore) ApplyBatch(ctx context.Context, batch []domain.OrderMutation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for i, m := range batch {
		if err := applyMutation(ctx, tx, m); err != nil {
			return &domain.BatchError{Index: i, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func applyMutation(ctx context.Context, tx *sql.Tx, m domain.OrderMutation) error {
	// Every request must reference existing entities, removals included.
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, m.UserID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM items WHERE id = ?`, m.ItemID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrItemNotFound
	}
	if err != nil {
		return fmt.Errorf("check item: %w", err)
	}

	if m.Quantity == 0 {
		// Removing an absent reservation is a no-op, not an error.
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM orders WHERE user_id = ? AND item_id = ?`,
			m.UserID, m.ItemID,
		); err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO orders (user_id, item_id, quantity)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE quantity = VALUES(quantity)`,
		m.UserID, m.ItemID, m.Quantity,
	); err != nil {
		return fmt.Errorf("upsert order: %w", err)
	}
	return nil
}
