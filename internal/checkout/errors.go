package checkout

import (
	"errors"
	"fmt"

	"github.com/wichananm65/smart-cart-backend/internal/money"
	"github.com/wichananm65/smart-cart-backend/internal/payment"
)

var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrAmountTooLow       = errors.New("order total is below the minimum charge")
	ErrProductUnavailable = errors.New("product in cart is no longer available")
	ErrPaymentProvider    = errors.New("payment session could not be created")
	ErrUnauthorized       = errors.New("payment does not belong to the caller")
	ErrAmountMismatch     = errors.New("captured amount does not match the order total")

	// Verification failures surface unchanged from the payment package.
	ErrNotFound            = payment.ErrNotFound
	ErrNotCaptured         = payment.ErrNotCaptured
	ErrProviderUnavailable = payment.ErrProviderUnavailable
	ErrInvalidLineItem     = money.ErrInvalidLineItem
)

// MismatchError reports a captured amount that differs from the total
// computed from the provider's own line items. It is never retried.
type MismatchError struct {
	Reference string
	Captured  int64
	Expected  int64
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("reference %s: captured %d, expected %d: %v", e.Reference, e.Captured, e.Expected, ErrAmountMismatch)
}

func (e *MismatchError) Is(target error) bool {
	return target == ErrAmountMismatch
}

// IsIntegrity reports whether err means the verified payment cannot be turned
// into an order without manual review.
func IsIntegrity(err error) bool {
	return errors.Is(err, ErrAmountMismatch) || errors.Is(err, ErrInvalidLineItem)
}
