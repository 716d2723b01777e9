package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// registers the "pgx" driver for database/sql
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open connects through the pgx stdlib driver and verifies the connection.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate creates the schema when it does not exist yet. Every statement is
// idempotent, so it runs on each start.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		"userId" SERIAL PRIMARY KEY,
		email TEXT NOT NULL,
		password TEXT NOT NULL,
		"firstName" TEXT NOT NULL DEFAULT '',
		"lastName" TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'customer' CHECK (role IN ('customer', 'admin')),
		"createdAt" TIMESTAMPTZ NOT NULL DEFAULT now(),
		"updatedAt" TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (lower(email))`,

	`CREATE TABLE IF NOT EXISTS categories (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS products (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		price NUMERIC(10,2) NOT NULL CHECK (price >= 0),
		image_url TEXT,
		category_id INT REFERENCES categories(id),
		in_stock BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS cart_items (
		id SERIAL PRIMARY KEY,
		user_id INT NOT NULL REFERENCES users("userId") ON DELETE CASCADE,
		product_id INT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		quantity INT NOT NULL CHECK (quantity > 0),
		added_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (user_id, product_id)
	)`,

	`CREATE TABLE IF NOT EXISTS orders (
		"orderID" SERIAL PRIMARY KEY,
		"userID" INT NOT NULL REFERENCES users("userId"),
		payment_reference TEXT NOT NULL,
		status TEXT NOT NULL,
		subtotal BIGINT NOT NULL CHECK (subtotal >= 0),
		surcharge BIGINT NOT NULL CHECK (surcharge >= 0),
		total BIGINT NOT NULL,
		shipping_address JSONB,
		payment_method TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		tracking_number TEXT,
		"createdAt" TIMESTAMPTZ NOT NULL DEFAULT now(),
		"updatedAt" TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT orders_payment_reference_key UNIQUE (payment_reference),
		CONSTRAINT orders_total_check CHECK (subtotal + surcharge = total)
	)`,
	`CREATE INDEX IF NOT EXISTS orders_user_created_idx ON orders ("userID", "createdAt" DESC)`,

	`CREATE TABLE IF NOT EXISTS order_items (
		"orderItemID" SERIAL PRIMARY KEY,
		"orderID" INT NOT NULL REFERENCES orders("orderID"),
		"productID" INT NOT NULL REFERENCES products(id),
		quantity INT NOT NULL CHECK (quantity > 0),
		price BIGINT NOT NULL CHECK (price >= 0),
		"createdAt" TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS order_items_order_idx ON order_items ("orderID")`,

	`CREATE TABLE IF NOT EXISTS activity_logs (
		id SERIAL PRIMARY KEY,
		user_id INT NOT NULL,
		action TEXT NOT NULL,
		reference TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}
