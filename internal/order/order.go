package order

import (
	"time"

	"github.com/wichananm65/smart-cart-backend/internal/address"
	"github.com/wichananm65/smart-cart-backend/internal/product"
)

// Order lifecycle statuses. The two Error statuses mark orders whose money was
// captured but whose records need manual reconciliation.
const (
	StatusReceived         = "Order Received"
	StatusProcessing       = "Processing"
	StatusShipped          = "Shipped"
	StatusDelivered        = "Delivered"
	StatusCancelled        = "Cancelled"
	StatusItemsMissing     = "Error - Items Missing"
	StatusProcessingFailed = "Error - Processing Failed"
)

// NeedsReview reports whether the status is a reconciliation defect.
func NeedsReview(status string) bool {
	return status == StatusItemsMissing || status == StatusProcessingFailed
}

// Order represents a finalized purchase. Amounts are in cents.
type Order struct {
	OrderID          int                      `json:"orderID"`
	UserID           int                      `json:"userID"`
	PaymentReference string                   `json:"paymentReference"`
	Status           string                   `json:"status"`
	Subtotal         int64                    `json:"subtotal"`
	Surcharge        int64                    `json:"shippingHandlingFee"`
	Total            int64                    `json:"totalAmount"`
	ShippingAddress  *address.ShippingAddress `json:"shippingAddress,omitempty"`
	// AddressInvalid marks a stored address that no longer decodes.
	AddressInvalid   bool                     `json:"shippingAddressInvalid,omitempty"`
	PaymentMethod    string                   `json:"paymentMethod"`
	PaymentStatus    string                   `json:"paymentStatus"`
	TrackingNumber   *string                  `json:"trackingNumber,omitempty"`
	CreatedAt        time.Time                `json:"createdAt"`
	UpdatedAt        time.Time                `json:"updatedAt"`
	Items            []Item                   `json:"items,omitempty"`
}

// Item is one purchased line. UnitPrice is the price captured at purchase.
type Item struct {
	ItemID    int              `json:"orderItemID"`
	OrderID   int              `json:"orderID"`
	ProductID int              `json:"productID"`
	Quantity  int              `json:"quantity"`
	UnitPrice int64            `json:"price"`
	CreatedAt time.Time        `json:"createdAt"`
	Product   *product.Product `json:"product,omitempty"`
}
