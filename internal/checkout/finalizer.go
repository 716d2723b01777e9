package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/wichananm65/smart-cart-backend/internal/address"
	"github.com/wichananm65/smart-cart-backend/internal/metrics"
	"github.com/wichananm65/smart-cart-backend/internal/money"
	"github.com/wichananm65/smart-cart-backend/internal/order"
	"github.com/wichananm65/smart-cart-backend/internal/payment"
)

type Outcome string

const (
	OutcomeCreated        Outcome = "created"
	OutcomeAlreadyExisted Outcome = "already-existed"
	OutcomePartial        Outcome = "partial"
)

// Result describes the order a reference resolved to. A partial result still
// carries a real order id: the money was captured and the order row exists.
type Result struct {
	OrderID     int     `json:"orderID"`
	Status      Outcome `json:"status"`
	OrderStatus string  `json:"orderStatus"`
	Warning     string  `json:"warning,omitempty"`
}

// NeedsReview reports whether the order behind the result is missing records.
func (r Result) NeedsReview() bool {
	return r.Status == OutcomePartial || order.NeedsReview(r.OrderStatus)
}

// OrderStore is the slice of order.Repository the finalizer writes through.
type OrderStore interface {
	FindByReference(ctx context.Context, reference string) (order.Order, error)
	InsertIfAbsent(ctx context.Context, o order.Order) (order.Order, bool, error)
	InsertItems(ctx context.Context, orderID int, items []order.Item) error
	UpdateStatus(ctx context.Context, orderID int, status string, tracking *string) (order.Order, error)
}

type PaymentVerifier interface {
	Verify(ctx context.Context, reference string) (payment.VerifiedPayment, error)
}

type CartClearer interface {
	ClearCart(ctx context.Context, userID int) error
}

type Auditor interface {
	Append(ctx context.Context, userID int, action, reference string) error
}

// Finalizer turns a captured payment reference into exactly one order.
type Finalizer struct {
	orders   OrderStore
	verifier PaymentVerifier
	carts    CartClearer
	audit    Auditor
	calc     *money.Calculator
	metrics  *metrics.Checkout
	log      *slog.Logger
	group    singleflight.Group
}

func NewFinalizer(orders OrderStore, verifier PaymentVerifier, carts CartClearer, audit Auditor, calc *money.Calculator, m *metrics.Checkout, log *slog.Logger) *Finalizer {
	if log == nil {
		log = slog.Default()
	}
	return &Finalizer{
		orders:   orders,
		verifier: verifier,
		carts:    carts,
		audit:    audit,
		calc:     calc,
		metrics:  m,
		log:      log,
	}
}

// FinalizeOrder is safe to call any number of times, concurrently, for the
// same reference: every successful call reports the same order id.
//
// Concurrent calls in this process share one execution. Calls across
// processes are serialized by the unique payment reference in storage.
func (f *Finalizer) FinalizeOrder(ctx context.Context, reference string, userID int) (Result, error) {
	reference = strings.TrimSpace(reference)
	if userID <= 0 {
		f.metrics.Finalized("unauthorized")
		return Result{}, ErrUnauthorized
	}
	if reference == "" {
		f.metrics.Finalized("not_found")
		return Result{}, ErrNotFound
	}

	key := reference + "|" + strconv.Itoa(userID)
	for {
		v, err, shared := f.group.Do(key, func() (any, error) {
			return f.finalize(ctx, reference, userID)
		})
		// The leader's caller went away before the order existed; run again
		// under our own context.
		if shared && errors.Is(err, context.Canceled) && ctx.Err() == nil {
			continue
		}
		res, _ := v.(Result)
		return res, err
	}
}

func (f *Finalizer) finalize(ctx context.Context, reference string, userID int) (Result, error) {
	log := f.log.With("reference", reference, "user_id", userID)

	existing, err := f.orders.FindByReference(ctx, reference)
	switch {
	case err == nil:
		return f.resolveExisting(existing, userID, log)
	case !errors.Is(err, order.ErrNotFound):
		f.metrics.Finalized("error")
		return Result{}, fmt.Errorf("look up order: %w", err)
	}

	vp, err := f.verifier.Verify(ctx, reference)
	if err != nil {
		f.metrics.Finalized(verifyOutcome(err))
		log.Info("payment not finalized", "error", err)
		return Result{}, err
	}
	if vp.UserID != userID {
		f.metrics.Finalized("unauthorized")
		log.Warn("payment owner mismatch", "owner_id", vp.UserID)
		return Result{}, ErrUnauthorized
	}

	totals, err := f.totalsFor(vp)
	if err != nil {
		f.metrics.Finalized("invalid_line_items")
		log.Error("verified payment has unusable line items", "alert", "CRITICAL", "error", err)
		return Result{}, fmt.Errorf("reference %s: %w", reference, err)
	}
	if totals.Total != vp.AmountCaptured {
		mismatch := &MismatchError{Reference: reference, Captured: vp.AmountCaptured, Expected: totals.Total}
		f.metrics.Finalized("amount_mismatch")
		log.Error("captured amount does not match order total", "alert", "CRITICAL",
			"captured", vp.AmountCaptured, "expected", totals.Total, "payment_intent", vp.PaymentIntentID)
		return Result{}, mismatch
	}

	ord, created, err := f.orders.InsertIfAbsent(ctx, order.Order{
		UserID:           userID,
		PaymentReference: reference,
		Status:           order.StatusReceived,
		Subtotal:         totals.Subtotal,
		Surcharge:        totals.Surcharge,
		Total:            totals.Total,
		ShippingAddress:  shippingFor(vp, log),
		PaymentMethod:    payment.MethodStripe,
		PaymentStatus:    vp.Status,
	})
	if err != nil {
		f.metrics.Finalized("error")
		return Result{}, fmt.Errorf("create order: %w", err)
	}
	if !created {
		return f.resolveExisting(ord, userID, log)
	}

	// The order row exists and the payment is captured; the remaining steps
	// must not be abandoned when the caller disconnects.
	return f.complete(context.WithoutCancel(ctx), ord, vp, log.With("order_id", ord.OrderID)), nil
}

func (f *Finalizer) complete(ctx context.Context, ord order.Order, vp payment.VerifiedPayment, log *slog.Logger) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("order finalization panicked", "alert", "CRITICAL", "panic", fmt.Sprint(r))
			res = f.markPartial(ctx, ord, order.StatusProcessingFailed, log)
		}
	}()

	items := make([]order.Item, 0, len(vp.LineItems))
	for _, li := range vp.LineItems {
		items = append(items, order.Item{
			OrderID:   ord.OrderID,
			ProductID: li.ProductID,
			Quantity:  li.Quantity,
			UnitPrice: li.UnitPrice,
		})
	}
	if err := f.orders.InsertItems(ctx, ord.OrderID, items); err != nil {
		log.Error("order items could not be stored", "alert", "CRITICAL", "error", err)
		return f.markPartial(ctx, ord, order.StatusItemsMissing, log)
	}

	if err := f.carts.ClearCart(ctx, ord.UserID); err != nil {
		log.Warn("cart not cleared after order", "error", err)
	}
	if err := f.audit.Append(ctx, ord.UserID, fmt.Sprintf("Order %d placed.", ord.OrderID), ord.PaymentReference); err != nil {
		log.Warn("activity entry not recorded", "error", err)
	}

	log.Info("order finalized", "total", ord.Total)
	f.metrics.Finalized("created")
	return Result{OrderID: ord.OrderID, Status: OutcomeCreated, OrderStatus: ord.Status}
}

// markPartial records the defect on the order row, retrying once. When the
// row cannot be updated the defect goes to the activity log instead.
func (f *Finalizer) markPartial(ctx context.Context, ord order.Order, status string, log *slog.Logger) Result {
	_, err := f.orders.UpdateStatus(ctx, ord.OrderID, status, nil)
	if err != nil {
		log.Warn("order defect status update failed, retrying", "status", status, "error", err)
		_, err = f.orders.UpdateStatus(ctx, ord.OrderID, status, nil)
	}
	if err != nil {
		log.Error("order defect status not recorded", "alert", "CRITICAL", "status", status, "error", err)
		action := fmt.Sprintf("Order %d needs review: %s", ord.OrderID, status)
		if aerr := f.audit.Append(ctx, ord.UserID, action, ord.PaymentReference); aerr != nil {
			log.Error("order defect not recorded anywhere", "alert", "CRITICAL", "status", status, "error", aerr)
		}
	}
	f.metrics.Finalized("partial")
	return Result{
		OrderID:     ord.OrderID,
		Status:      OutcomePartial,
		OrderStatus: status,
		Warning:     "payment received but order details are incomplete",
	}
}

func (f *Finalizer) resolveExisting(ord order.Order, userID int, log *slog.Logger) (Result, error) {
	if ord.UserID != userID {
		f.metrics.Finalized("unauthorized")
		log.Warn("order belongs to another user", "order_id", ord.OrderID, "owner_id", ord.UserID)
		return Result{}, ErrUnauthorized
	}
	f.metrics.Finalized("already_existed")
	res := Result{OrderID: ord.OrderID, Status: OutcomeAlreadyExisted, OrderStatus: ord.Status}
	if order.NeedsReview(ord.Status) {
		res.Warning = "payment received but order details are incomplete"
	}
	return res, nil
}

func (f *Finalizer) totalsFor(vp payment.VerifiedPayment) (money.Totals, error) {
	if len(vp.LineItems) == 0 {
		return money.Totals{}, fmt.Errorf("%w: no line items", ErrInvalidLineItem)
	}
	lines := make([]money.Line, 0, len(vp.LineItems))
	for _, li := range vp.LineItems {
		if li.ProductID <= 0 {
			return money.Totals{}, fmt.Errorf("%w: line %q has no product id", ErrInvalidLineItem, li.Name)
		}
		lines = append(lines, money.Line{UnitPrice: li.UnitPrice, Quantity: li.Quantity})
	}
	return f.calc.ComputeTotals(lines)
}

// shippingFor keeps the provider's address only when it is complete.
func shippingFor(vp payment.VerifiedPayment, log *slog.Logger) *address.ShippingAddress {
	if vp.Shipping == nil {
		log.Warn("verified payment has no shipping address")
		return nil
	}
	a := vp.Shipping.Normalize()
	if err := a.Validate(); err != nil {
		log.Warn("shipping address discarded", "error", err)
		return nil
	}
	return &a
}

func verifyOutcome(err error) string {
	switch {
	case errors.Is(err, ErrNotCaptured):
		return "not_captured"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrProviderUnavailable):
		return "provider_unavailable"
	default:
		return "error"
	}
}
