package category

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/wichananm65/smart-cart-backend/internal/product"
)

func TestCategoryDetail(t *testing.T) {
	catID := 5
	products := product.NewInMemoryRepository([]product.Product{
		{ID: 1, Name: "Cat Sweater", Price: decimal.RequireFromString("25"), CategoryID: &catID},
		{ID: 2, Name: "Leash", Price: decimal.RequireFromString("9")},
	})
	repo := NewInMemoryRepository([]Category{{CategoryID: 5, CategoryName: "Clothes"}, {CategoryID: 6, CategoryName: "Accessories"}})
	app := fiber.New()
	NewHandler(NewService(repo, product.NewService(products))).RegisterPublicRoutes(app)

	res, err := app.Test(httptest.NewRequest("GET", "/api/v1/categories/5", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if res.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	var detail Detail
	if err := json.NewDecoder(res.Body).Decode(&detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if detail.CategoryName != "Clothes" || len(detail.Products) != 1 || detail.Products[0].ID != 1 {
		t.Fatalf("unexpected detail %+v", detail)
	}

	res, _ = app.Test(httptest.NewRequest("GET", "/api/v1/categories/77", nil))
	if res.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.StatusCode)
	}
}

func TestCategoryList_SortedByName(t *testing.T) {
	repo := NewInMemoryRepository([]Category{{CategoryID: 5, CategoryName: "Clothes"}, {CategoryID: 6, CategoryName: "Accessories"}})
	app := fiber.New()
	NewHandler(NewService(repo, nil)).RegisterPublicRoutes(app)

	res, err := app.Test(httptest.NewRequest("GET", "/api/v1/categories", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var items []Category
	if err := json.NewDecoder(res.Body).Decode(&items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 2 || items[0].CategoryName != "Accessories" {
		t.Fatalf("unexpected list %+v", items)
	}
}
