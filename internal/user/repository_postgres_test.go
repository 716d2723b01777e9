package user

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

var userRowColumns = []string{"userId", "email", "password", "firstName", "lastName", "phone", "role", "createdAt", "updatedAt"}

func TestPostgresGetByEmail_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	mock.ExpectQuery("FROM users WHERE lower\\(email\\)").WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows(userRowColumns))

	if _, err := repo.GetByEmail(context.Background(), "nobody@example.com"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresCreate_DuplicateEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	mock.ExpectQuery("INSERT INTO users").
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	if _, err := repo.Create(context.Background(), User{Email: "dup@example.com", Role: RoleCustomer}); err != ErrEmailExists {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}
}

func TestPostgresSetRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	now := time.Now()
	mock.ExpectQuery("UPDATE users SET role").WithArgs(3, RoleAdmin).
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(3, "a@example.com", "hash", "A", "B", "", RoleAdmin, now, now))

	u, err := repo.SetRole(context.Background(), 3, RoleAdmin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Role != RoleAdmin || u.ID != 3 {
		t.Fatalf("unexpected user %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresUpdatePassword(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	mock.ExpectExec("UPDATE users SET password").WithArgs(7, "hash").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users SET password").WithArgs(99, "hash").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.UpdatePassword(context.Background(), 7, "hash"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.UpdatePassword(context.Background(), 99, "hash"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresCountByRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM users WHERE role = \\$1").WithArgs(RoleCustomer).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	n, err := NewPostgresRepository(db).CountByRole(context.Background(), RoleCustomer)
	if err != nil || n != 12 {
		t.Fatalf("expected 12 customers, got %d err=%v", n, err)
	}
}
