package product

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/wichananm65/smart-cart-backend/internal/money"
)

// Product maps to the `products` table. Price is stored as NUMERIC dollars.
type Product struct {
	ID           int             `json:"productID"`
	Name         string          `json:"productName"`
	Description  string          `json:"productDesc,omitempty"`
	Price        decimal.Decimal `json:"productPrice"`
	ImageURL     *string         `json:"productImg,omitempty"`
	CategoryID   *int            `json:"categoryID,omitempty"`
	CategoryName *string         `json:"categoryName,omitempty"`
	InStock      bool            `json:"inStock"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// PriceCents returns the catalog price in minor units.
func (p Product) PriceCents() int64 {
	return money.FromDecimal(p.Price)
}

func (p Product) Image() string {
	if p.ImageURL == nil {
		return ""
	}
	return *p.ImageURL
}
