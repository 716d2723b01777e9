package payment

import (
	"context"
	"errors"

	"github.com/wichananm65/smart-cart-backend/internal/address"
)

var (
	ErrNotFound            = errors.New("payment reference not found")
	ErrNotCaptured         = errors.New("payment not captured")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrInvalidCallback     = errors.New("invalid provider callback")
)

// StatusPaid is the only provider status that means funds were captured.
const StatusPaid = "paid"

const MethodStripe = "stripe"

// LineItem is a purchased line as recorded by the provider when the session
// was created. UnitPrice is in minor units.
type LineItem struct {
	ProductID int    `json:"productID"`
	Name      string `json:"name"`
	ImageURL  string `json:"imageUrl,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

// VerifiedPayment is the authoritative provider-side view of one reference.
type VerifiedPayment struct {
	Reference       string
	Status          string
	AmountCaptured  int64
	Currency        string
	UserID          int
	PaymentIntentID string
	Shipping        *address.ShippingAddress
	LineItems       []LineItem
}

func (v VerifiedPayment) Captured() bool {
	return v.Status == StatusPaid
}

// SessionRequest carries everything needed to open a hosted payment session.
type SessionRequest struct {
	UserID           int
	Email            string
	Currency         string
	Lines            []LineItem
	Subtotal         int64
	Surcharge        int64
	Total            int64
	AllowedCountries []string
	SuccessURL       string
	CancelURL        string
	IdempotencyKey   string
}

type Session struct {
	ID          string `json:"sessionId"`
	RedirectURL string `json:"url"`
}

// Provider owns the payment session lifecycle.
type Provider interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
	RetrieveSession(ctx context.Context, reference string) (VerifiedPayment, error)
}

// Callback is a decoded, signature-checked provider push notification.
type Callback struct {
	ID        string
	Type      string
	Reference string
	UserID    int
}

// CallbackParser authenticates and decodes a raw callback body.
type CallbackParser interface {
	ParseCallback(payload []byte, signature string) (Callback, error)
}
