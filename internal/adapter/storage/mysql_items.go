package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/com2u/Pickup/internal/core/domain"
)

type ItemStore struct {
	db *sql.DB
}

func NewItemStore(db *sql.DB) *ItemStore {
	return &ItemStore{db: db}
}

func (s *ItemStore) ListItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, price_cents, created_at FROM items ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		var it domain.Item
		if err := rows.Scan(&it.ID, &it.Name, &it.Price, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *ItemStore) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	var it domain.Item
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, price_cents, created_at FROM items WHERE id = ?`, id,
	).Scan(&it.ID, &it.Name, &it.Price, &it.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query item: %w", err)
	}
	return &it, nil
}

func (s *ItemStore) CreateItem(ctx context.Context, name string, price domain.Cents) (*domain.Item, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO items (name, price_cents) VALUES (?, ?)`, name, int64(price))
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	return s.GetItem(ctx, id)
}

func (s *ItemStore) UpdateItem(ctx context.Context, id int64, name string, price domain.Cents) (*domain.Item, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE items SET name = ?, price_cents = ? WHERE id = ?`, name, int64(price), id)
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		// A no-change update also reports zero rows; tell the cases apart.
		item, getErr := s.GetItem(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if item == nil {
			return nil, domain.ErrItemNotFound
		}
		return item, nil
	}
	return s.GetItem(ctx, id)
}

// DeleteItem removes the item together with any open orders referencing
// it, in one transaction.
func (s *ItemStore) DeleteItem(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE item_id = ?`, id); err != nil {
		return fmt.Errorf("delete item orders: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrItemNotFound
	}

	return tx.Commit()
}
