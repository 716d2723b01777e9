package cart

import (
	"context"
	"database/sql"
	"errors"
)

type PostgresRepository struct {
	db *sql.DB
}

const (
	lineColumns = `user_id, product_id, quantity, added_at, updated_at`

	addLineQuery = `
		INSERT INTO cart_items (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = now()
		RETURNING ` + lineColumns
	listLinesQuery = `SELECT ` + lineColumns + ` FROM cart_items WHERE user_id = $1 ORDER BY added_at DESC, product_id`
	setQtyQuery    = `
		UPDATE cart_items SET quantity = $3, updated_at = now()
		WHERE user_id = $1 AND product_id = $2
		RETURNING ` + lineColumns
	removeLineQuery = `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`
	clearCartQuery  = `DELETE FROM cart_items WHERE user_id = $1`
	countLinesQuery = `SELECT COUNT(*) FROM cart_items WHERE user_id = $1`
)

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLine(row rowScanner) (Line, error) {
	var l Line
	err := row.Scan(&l.UserID, &l.ProductID, &l.Quantity, &l.AddedAt, &l.UpdatedAt)
	return l, err
}

func (r *PostgresRepository) Add(ctx context.Context, userID, productID, qty int) (Line, error) {
	return scanLine(r.db.QueryRowContext(ctx, addLineQuery, userID, productID, qty))
}

func (r *PostgresRepository) Lines(ctx context.Context, userID int) ([]Line, error) {
	rows, err := r.db.QueryContext(ctx, listLinesQuery, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Line, 0)
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) SetQuantity(ctx context.Context, userID, productID, qty int) (Line, error) {
	l, err := scanLine(r.db.QueryRowContext(ctx, setQtyQuery, userID, productID, qty))
	if errors.Is(err, sql.ErrNoRows) {
		return Line{}, ErrNotFound
	}
	return l, err
}

func (r *PostgresRepository) Remove(ctx context.Context, userID, productID int) error {
	res, err := r.db.ExecContext(ctx, removeLineQuery, userID, productID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Clear(ctx context.Context, userID int) error {
	_, err := r.db.ExecContext(ctx, clearCartQuery, userID)
	return err
}

func (r *PostgresRepository) Count(ctx context.Context, userID int) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, countLinesQuery, userID).Scan(&n)
	return n, err
}
