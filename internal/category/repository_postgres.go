package category

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRepository implements Repository using Postgres.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(row rowScanner) (Category, error) {
	var (
		c    Category
		desc sql.NullString
	)
	if err := row.Scan(&c.CategoryID, &c.CategoryName, &desc, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Category{}, err
	}
	if desc.Valid {
		c.Description = &desc.String
	}
	return c, nil
}

// List returns category rows ordered by name.
func (r *PostgresRepository) List(ctx context.Context) ([]Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, description, created_at, updated_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Category, 0)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int) (Category, error) {
	c, err := scanCategory(r.db.QueryRowContext(ctx, `SELECT id, name, description, created_at, updated_at FROM categories WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Category{}, ErrNotFound
	}
	return c, err
}
