package cart

import (
	"time"

	"github.com/wichananm65/smart-cart-backend/internal/money"
	"github.com/wichananm65/smart-cart-backend/internal/product"
)

// Line is one row of a user's cart. There is at most one line per product.
type Line struct {
	UserID    int       `json:"userID"`
	ProductID int       `json:"productID"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"addedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Item is a cart line joined with its current catalog row.
type Item struct {
	Line
	Product *product.Product `json:"product,omitempty"`
}

// Summary is the cart view with totals at current catalog prices.
type Summary struct {
	Items []Item `json:"items"`
	Count int    `json:"count"`
	money.Totals
}
