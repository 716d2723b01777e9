package category

import (
	"time"

	"github.com/wichananm65/smart-cart-backend/internal/product"
)

// Category is the public DTO returned by the category API.
type Category struct {
	CategoryID   int       `json:"categoryID"`
	CategoryName string    `json:"categoryName"`
	Description  *string   `json:"description,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Detail is a category together with its products.
type Detail struct {
	Category
	Products []product.Product `json:"products"`
}
