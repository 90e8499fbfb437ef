package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/com2u/Pickup/internal/core/domain"
)

// SettlementStore runs the delivery confirmation transaction across the
// orders and balance_history tables.
type SettlementStore struct {
	db *sql.DB
}

func NewSettlementStore(db *sql.DB) *SettlementStore {
	return &SettlementStore{db: db}
}

// ConfirmDelivery snapshots the open orders under row locks, computes the
// per-consumer totals from catalog prices, posts one debit per consumer
// and one credit for the deliverer, and clears the order table. All of it
// commits or none of it does.
func (s *SettlementStore) ConfirmDelivery(ctx context.Context, deliveringUserID int64) (*domain.Settlement, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, deliveringUserID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("check delivering user: %w", err)
	}

	// Lock the snapshot so concurrent batches serialize against the
	// settlement; rows seen here are exactly the rows cleared below.
	rows, err := tx.QueryContext(ctx, `
		SELECT o.user_id, u.username, o.quantity, i.price_cents
		FROM orders o
		JOIN items i ON o.item_id = i.id
		JOIN users u ON o.user_id = u.id
		FOR UPDATE`)
	if err != nil {
		return nil, fmt.Errorf("snapshot orders: %w", err)
	}

	totalsByUser := make(map[int64]*domain.ConsumerTotal)
	for rows.Next() {
		var userID int64
		var username string
		var quantity int
		var price int64
		if err := rows.Scan(&userID, &username, &quantity, &price); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		ct, ok := totalsByUser[userID]
		if !ok {
			ct = &domain.ConsumerTotal{UserID: userID, Username: username}
			totalsByUser[userID] = ct
		}
		ct.Amount += domain.Cents(int64(quantity) * price)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot orders: %w", err)
	}

	if len(totalsByUser) == 0 {
		return nil, domain.ErrNothingToSettle
	}

	settlement := domain.Settlement{
		Ref:              uuid.New(),
		DeliveringUserID: deliveringUserID,
		SettledAt:        time.Now().UTC(),
	}
	for _, ct := range totalsByUser {
		settlement.Totals = append(settlement.Totals, *ct)
		settlement.Total += ct.Amount
	}
	sort.Slice(settlement.Totals, func(i, j int) bool {
		return settlement.Totals[i].Username < settlement.Totals[j].Username
	})

	for _, ct := range settlement.Totals {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO balance_history (user_id, amount_cents, description, entry_ref, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			ct.UserID, -int64(ct.Amount), domain.DescriptionOrderPayment,
			settlement.Ref.String(), settlement.SettledAt,
		); err != nil {
			return nil, fmt.Errorf("post order payment: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO balance_history (user_id, amount_cents, description, entry_ref, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		deliveringUserID, int64(settlement.Total), domain.DescriptionPaymentReceived,
		settlement.Ref.String(), settlement.SettledAt,
	); err != nil {
		return nil, fmt.Errorf("post payment received: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM orders`); err != nil {
		return nil, fmt.Errorf("clear orders: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit settlement: %w", err)
	}
	return &settlement, nil
}
