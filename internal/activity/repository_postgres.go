package activity

import (
	"context"
	"database/sql"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, e Entry) (Entry, error) {
	var ref sql.NullString
	if e.Reference != "" {
		ref = sql.NullString{String: e.Reference, Valid: true}
	}
	err := r.db.QueryRowContext(ctx, `INSERT INTO activity_logs (user_id, action, reference)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`, e.UserID, e.Action, ref).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (r *PostgresRepository) List(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, user_id, action, reference, created_at
		FROM activity_logs ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Entry, 0)
	for rows.Next() {
		var (
			e   Entry
			ref sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &ref, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Reference = ref.String
		out = append(out, e)
	}
	return out, rows.Err()
}
