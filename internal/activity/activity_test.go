package activity

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

func TestAppend_Validates(t *testing.T) {
	s := NewService(NewInMemoryRepository())
	if err := s.Append(context.Background(), 0, "Order 1 placed.", "cs_1"); err != ErrInvalidEntry {
		t.Fatalf("expected ErrInvalidEntry for missing user, got %v", err)
	}
	if err := s.Append(context.Background(), 3, "  ", ""); err != ErrInvalidEntry {
		t.Fatalf("expected ErrInvalidEntry for blank action, got %v", err)
	}
}

func TestRecent_NewestFirst(t *testing.T) {
	s := NewService(NewInMemoryRepository())
	for _, action := range []string{"first", "second", "third"} {
		if err := s.Append(context.Background(), 1, action, ""); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	got, err := s.Recent(context.Background(), 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 || got[0].Action != "third" || got[1].Action != "second" {
		t.Fatalf("unexpected entries %+v", got)
	}
}

func TestAdminList_RequiresAdmin(t *testing.T) {
	s := NewService(NewInMemoryRepository())
	_ = s.Append(context.Background(), 1, "Order 9 placed.", "cs_9")

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user", &jwt.Token{Claims: jwt.MapClaims{"user_id": 1, "role": c.Get("X-Role")}})
		return c.Next()
	})
	NewHandler(s).RegisterAdminRoutes(app)

	res, _ := app.Test(httptest.NewRequest("GET", "/api/v1/admin/activity", nil))
	if res.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", res.StatusCode)
	}

	req := httptest.NewRequest("GET", "/api/v1/admin/activity", nil)
	req.Header.Set("X-Role", "admin")
	res, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var entries []Entry
	if err := json.NewDecoder(res.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 || entries[0].Reference != "cs_9" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestPostgresAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("INSERT INTO activity_logs").WithArgs(4, "Order 12 placed.", "cs_12").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(77, now))

	e, err := NewPostgresRepository(db).Append(context.Background(), Entry{UserID: 4, Action: "Order 12 placed.", Reference: "cs_12"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if e.ID != 77 {
		t.Fatalf("expected id 77, got %d", e.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
