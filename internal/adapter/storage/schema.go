package storage

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/com2u/Pickup/internal/core/domain"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(64) NOT NULL UNIQUE,
		password_hash VARCHAR(100) NOT NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
	)`,
	`CREATE TABLE IF NOT EXISTS items (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(128) NOT NULL,
		price_cents BIGINT NOT NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		item_id BIGINT NOT NULL,
		quantity INT NOT NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		UNIQUE KEY uq_orders_user_item (user_id, item_id),
		CONSTRAINT fk_orders_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE,
		CONSTRAINT fk_orders_item FOREIGN KEY (item_id) REFERENCES items (id)
	)`,
	`CREATE TABLE IF NOT EXISTS balance_history (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		amount_cents BIGINT NOT NULL,
		description VARCHAR(255) NOT NULL,
		entry_ref CHAR(36) NOT NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		CONSTRAINT fk_history_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
	)`,
}

// EnsureSchema creates the tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

var defaultItems = []struct {
	name  string
	price domain.Cents
}{
	{"Coffee", 250},
	{"Tea", 200},
	{"Espresso", 220},
	{"Cappuccino", 300},
	{"Latte", 320},
	{"Hot Chocolate", 300},
	{"Croissant", 250},
	{"Muffin", 200},
	{"Bagel", 250},
	{"Cookie", 150},
}

// Seed creates the admin account and the default catalog on first start.
func Seed(ctx context.Context, db *sql.DB) error {
	var adminID int64
	err := db.QueryRowContext(ctx,
		`SELECT id FROM users WHERE username = ?`, domain.AdminUsername,
	).Scan(&adminID)
	if err == sql.ErrNoRows {
		hash, hashErr := bcrypt.GenerateFromPassword([]byte(domain.AdminUsername), 10)
		if hashErr != nil {
			return fmt.Errorf("hash admin password: %w", hashErr)
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO users (username, password_hash) VALUES (?, ?)`,
			domain.AdminUsername, string(hash),
		); err != nil {
			return fmt.Errorf("seed admin user: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("check admin user: %w", err)
	}

	var itemCount int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&itemCount); err != nil {
		return fmt.Errorf("check items: %w", err)
	}
	if itemCount > 0 {
		return nil
	}
	for _, it := range defaultItems {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO items (name, price_cents) VALUES (?, ?)`,
			it.name, int64(it.price),
		); err != nil {
			return fmt.Errorf("seed item %s: %w", it.name, err)
		}
	}
	return nil
}
