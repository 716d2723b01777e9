package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wichananm65/smart-cart-backend/internal/metrics"
)

const DefaultTimeout = 10 * time.Second

// Verifier asks the provider for the state of a reference and classifies the
// answer into ErrNotFound, ErrNotCaptured or ErrProviderUnavailable.
type Verifier struct {
	provider Provider
	timeout  time.Duration
	metrics  *metrics.Checkout
}

func NewVerifier(p Provider, timeout time.Duration, m *metrics.Checkout) *Verifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Verifier{provider: p, timeout: timeout, metrics: m}
}

func (v *Verifier) Verify(ctx context.Context, reference string) (VerifiedPayment, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return VerifiedPayment{}, ErrNotFound
	}

	callCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	start := time.Now()
	vp, err := v.provider.RetrieveSession(callCtx, reference)
	v.metrics.ObserveVerify(time.Since(start))
	if err != nil {
		return VerifiedPayment{}, classify(callCtx, reference, err)
	}

	if !vp.Captured() {
		return vp, fmt.Errorf("%w: reference %s has status %q", ErrNotCaptured, reference, vp.Status)
	}
	return vp, nil
}

func classify(ctx context.Context, reference string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, reference)
	case errors.Is(err, ErrProviderUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: timed out retrieving %s", ErrProviderUnavailable, reference)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
}
