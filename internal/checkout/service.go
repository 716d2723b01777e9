package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wichananm65/smart-cart-backend/internal/metrics"
	"github.com/wichananm65/smart-cart-backend/internal/payment"
)

// SessionKeyWindow bounds how long repeated checkout clicks for an unchanged
// cart reuse one provider session.
const SessionKeyWindow = 10 * time.Minute

var sessionKeySpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("smart-cart/checkout-session"))

type Settings struct {
	Currency         string
	SuccessURL       string
	CancelURL        string
	AllowedCountries []string
	MinChargeCents   int64
}

// Service opens hosted payment sessions for the caller's cart.
type Service struct {
	snapshots *SnapshotReader
	provider  payment.Provider
	settings  Settings
	metrics   *metrics.Checkout
	log       *slog.Logger
	now       func() time.Time
}

func NewService(snapshots *SnapshotReader, provider payment.Provider, settings Settings, m *metrics.Checkout, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		snapshots: snapshots,
		provider:  provider,
		settings:  settings,
		metrics:   m,
		log:       log,
		now:       time.Now,
	}
}

// InitiateCheckout prices the cart and creates a provider session carrying the
// line items, the surcharge and the owner's id.
func (s *Service) InitiateCheckout(ctx context.Context, userID int, email string) (payment.Session, error) {
	if userID <= 0 {
		return payment.Session{}, ErrUnauthorized
	}

	snap, err := s.snapshots.Read(ctx, userID)
	if err != nil {
		s.metrics.Initiated(initiateOutcome(err))
		return payment.Session{}, err
	}
	if snap.Totals.Total < s.settings.MinChargeCents {
		s.metrics.Initiated("amount_too_low")
		return payment.Session{}, fmt.Errorf("%w: total %d, minimum %d", ErrAmountTooLow, snap.Totals.Total, s.settings.MinChargeCents)
	}

	req := payment.SessionRequest{
		UserID:           userID,
		Email:            email,
		Currency:         s.settings.Currency,
		Lines:            snap.Lines,
		Subtotal:         snap.Totals.Subtotal,
		Surcharge:        snap.Totals.Surcharge,
		Total:            snap.Totals.Total,
		AllowedCountries: s.settings.AllowedCountries,
		SuccessURL:       s.settings.SuccessURL,
		CancelURL:        s.settings.CancelURL,
		IdempotencyKey:   sessionKey(userID, snap, s.now()),
	}

	session, err := s.provider.CreateSession(ctx, req)
	if err != nil {
		s.log.Error("checkout session creation failed", "user_id", userID, "total", snap.Totals.Total, "error", err)
		s.metrics.Initiated("provider_error")
		return payment.Session{}, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}

	s.log.Info("checkout session created", "user_id", userID, "reference", session.ID, "total", snap.Totals.Total)
	s.metrics.Initiated("created")
	return session, nil
}

// sessionKey is stable for the same user and cart content within one window.
func sessionKey(userID int, snap Snapshot, now time.Time) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(userID))
	for _, l := range snap.Lines {
		fmt.Fprintf(&b, "|%d:%d:%d", l.ProductID, l.Quantity, l.UnitPrice)
	}
	fmt.Fprintf(&b, "|%d|%d", snap.Totals.Total, now.UTC().Truncate(SessionKeyWindow).Unix())
	return uuid.NewSHA1(sessionKeySpace, []byte(b.String())).String()
}

func initiateOutcome(err error) string {
	switch {
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrProductUnavailable):
		return "product_unavailable"
	default:
		return "error"
	}
}
