package user

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

type PostgresRepository struct {
	db *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

const (
	userColumns = `"userId", email, password, "firstName", "lastName", phone, role, "createdAt", "updatedAt"`

	listUsersQuery      = `SELECT ` + userColumns + ` FROM users ORDER BY "userId"`
	getUserByIDQuery    = `SELECT ` + userColumns + ` FROM users WHERE "userId" = $1`
	getUserByEmailQuery = `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`

	insertUserQuery = `
		INSERT INTO users (email, password, "firstName", "lastName", phone, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + userColumns
	updateProfileQuery = `
		UPDATE users
		SET "firstName" = $2,
			"lastName" = $3,
			phone = $4,
			"updatedAt" = now()
		WHERE "userId" = $1
		RETURNING ` + userColumns
	setRoleQuery = `
		UPDATE users SET role = $2, "updatedAt" = now()
		WHERE "userId" = $1
		RETURNING ` + userColumns
	updatePasswordQuery = `UPDATE users SET password = $2, "updatedAt" = now() WHERE "userId" = $1`
	countByRoleQuery    = `SELECT COUNT(*) FROM users WHERE role = $1`
)

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanUser(row rowScanner) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.FirstName, &u.LastName, &u.Phone, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (r *PostgresRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, listUsersQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int) (User, error) {
	return r.one(r.db.QueryRowContext(ctx, getUserByIDQuery, id))
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	return r.one(r.db.QueryRowContext(ctx, getUserByEmailQuery, email))
}

func (r *PostgresRepository) Create(ctx context.Context, u User) (User, error) {
	row := r.db.QueryRowContext(ctx, insertUserQuery, u.Email, u.Password, u.FirstName, u.LastName, u.Phone, u.Role)
	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ErrEmailExists
		}
		return User{}, err
	}
	return created, nil
}

func (r *PostgresRepository) UpdateProfile(ctx context.Context, id int, u User) (User, error) {
	return r.one(r.db.QueryRowContext(ctx, updateProfileQuery, id, u.FirstName, u.LastName, u.Phone))
}

func (r *PostgresRepository) SetRole(ctx context.Context, id int, role string) (User, error) {
	return r.one(r.db.QueryRowContext(ctx, setRoleQuery, id, role))
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id int, hash string) error {
	res, err := r.db.ExecContext(ctx, updatePasswordQuery, id, hash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) CountByRole(ctx context.Context, role string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, countByRoleQuery, role).Scan(&n)
	return n, err
}

func (r *PostgresRepository) one(row *sql.Row) (User, error) {
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}
