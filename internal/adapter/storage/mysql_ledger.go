package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/com2u/Pickup/internal/core/domain"
)

// LedgerStore appends to and reads the balance_history table. Nothing in
// this store, or anywhere else, updates or deletes a posted entry.
type LedgerStore struct {
	db *sql.DB
}

func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) Append(ctx context.Context, userID int64, amount domain.Cents, description string) (*domain.LedgerEntry, error) {
	entry := domain.LedgerEntry{
		UserID:      userID,
		Amount:      amount,
		Description: description,
		EntryRef:    uuid.New(),
		CreatedAt:   time.Now().UTC(),
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO balance_history (user_id, amount_cents, description, entry_ref, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		entry.UserID, int64(entry.Amount), entry.Description, entry.EntryRef.String(), entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	entry.ID, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}
	return &entry, nil
}

func (s *LedgerStore) CurrentBalance(ctx context.Context, userID int64) (domain.Cents, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM balance_history WHERE user_id = ?`,
		userID,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("sum balance: %w", err)
	}
	return domain.Cents(balance), nil
}

func (s *LedgerStore) Balances(ctx context.Context) ([]domain.BalanceView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username, COALESCE(SUM(bh.amount_cents), 0)
		FROM users u
		LEFT JOIN balance_history bh ON u.id = bh.user_id
		GROUP BY u.id, u.username
		ORDER BY u.username`)
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}
	defer rows.Close()

	var balances []domain.BalanceView
	for rows.Next() {
		var b domain.BalanceView
		var amount int64
		if err := rows.Scan(&b.UserID, &b.Username, &amount); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		b.Balance = domain.Cents(amount)
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

func (s *LedgerStore) History(ctx context.Context) ([]domain.LedgerEntryView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bh.id, bh.user_id, bh.amount_cents, bh.description, bh.entry_ref, bh.created_at, u.username
		FROM balance_history bh
		JOIN users u ON bh.user_id = u.id
		ORDER BY bh.created_at DESC, bh.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var history []domain.LedgerEntryView
	for rows.Next() {
		var e domain.LedgerEntryView
		var amount int64
		var ref string
		if err := rows.Scan(&e.ID, &e.UserID, &amount, &e.Description, &ref, &e.CreatedAt, &e.Username); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Amount = domain.Cents(amount)
		if e.EntryRef, err = uuid.Parse(ref); err != nil {
			return nil, fmt.Errorf("parse entry ref: %w", err)
		}
		history = append(history, e)
	}
	return history, rows.Err()
}
