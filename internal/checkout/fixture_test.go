package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wichananm65/smart-cart-backend/internal/activity"
	"github.com/wichananm65/smart-cart-backend/internal/address"
	"github.com/wichananm65/smart-cart-backend/internal/cart"
	"github.com/wichananm65/smart-cart-backend/internal/money"
	"github.com/wichananm65/smart-cart-backend/internal/order"
	"github.com/wichananm65/smart-cart-backend/internal/payment"
	"github.com/wichananm65/smart-cart-backend/internal/product"
)

type fakeProvider struct {
	mu          sync.Mutex
	sessions    map[string]payment.VerifiedPayment
	unavailable int
	delay       time.Duration
	retrieves   int
	createErr   error
	requests    []payment.SessionRequest
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{sessions: map[string]payment.VerifiedPayment{}}
}

func (p *fakeProvider) CreateSession(ctx context.Context, req payment.SessionRequest) (payment.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return payment.Session{}, p.createErr
	}
	p.requests = append(p.requests, req)
	return payment.Session{ID: "cs_test_" + req.IdempotencyKey[:8], RedirectURL: "https://checkout.stripe.test/pay"}, nil
}

func (p *fakeProvider) RetrieveSession(ctx context.Context, reference string) (payment.VerifiedPayment, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return payment.VerifiedPayment{}, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retrieves++
	if p.unavailable > 0 {
		p.unavailable--
		return payment.VerifiedPayment{}, errors.New("stripe: connection reset")
	}
	vp, ok := p.sessions[reference]
	if !ok {
		return payment.VerifiedPayment{}, payment.ErrNotFound
	}
	return vp, nil
}

func (p *fakeProvider) retrieveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retrieves
}

// paidSession is a captured session for two units of product 1 at 25.00.
func paidSession(ref string, userID int) payment.VerifiedPayment {
	return payment.VerifiedPayment{
		Reference:       ref,
		Status:          payment.StatusPaid,
		AmountCaptured:  6000,
		Currency:        "usd",
		UserID:          userID,
		PaymentIntentID: "pi_" + ref,
		Shipping: &address.ShippingAddress{
			FullName: "Jenny Rosen", AddressLine1: "1 Market St", City: "San Francisco",
			StateOrProvince: "CA", PostalCode: "94105", Country: "us",
		},
		LineItems: []payment.LineItem{{ProductID: 1, Name: "Cat Sweater", Quantity: 2, UnitPrice: 2500}},
	}
}

type fixture struct {
	orders   *order.InMemoryRepository
	cartRepo *cart.InMemoryRepository
	carts    *cart.Service
	products *product.Service
	activity *activity.InMemoryRepository
	audit    *activity.Service
	provider *fakeProvider
	calc     *money.Calculator
}

func newFixture(t *testing.T, rate string) *fixture {
	t.Helper()
	calc, err := money.NewCalculator(decimal.RequireFromString(rate))
	if err != nil {
		t.Fatalf("calculator: %v", err)
	}
	products := product.NewService(product.NewInMemoryRepository([]product.Product{
		{ID: 1, Name: "Cat Sweater", Price: decimal.RequireFromString("25.00"), InStock: true},
		{ID: 2, Name: "Dog Bowl", Price: decimal.RequireFromString("0.20"), InStock: true},
		{ID: 3, Name: "Retired Leash", Price: decimal.RequireFromString("9.99"), InStock: false},
	}))
	cartRepo := cart.NewInMemoryRepository([]cart.Line{{UserID: 42, ProductID: 1, Quantity: 2}})
	acts := activity.NewInMemoryRepository()
	return &fixture{
		orders:   order.NewInMemoryRepository(),
		cartRepo: cartRepo,
		carts:    cart.NewService(cartRepo, products, calc),
		products: products,
		activity: acts,
		audit:    activity.NewService(acts),
		provider: newFakeProvider(),
		calc:     calc,
	}
}

func (f *fixture) finalizer(store OrderStore) *Finalizer {
	if store == nil {
		store = f.orders
	}
	return NewFinalizer(store, payment.NewVerifier(f.provider, time.Second, nil), f.carts, f.audit, f.calc, nil, nil)
}

func (f *fixture) service() *Service {
	return NewService(NewSnapshotReader(f.carts, f.products, f.calc), f.provider, Settings{
		Currency:         "usd",
		SuccessURL:       "http://localhost:3000/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:        "http://localhost:3000/checkout/cancel",
		AllowedCountries: []string{"US", "CA"},
		MinChargeCents:   50,
	}, nil, nil)
}

type failingItemsStore struct {
	*order.InMemoryRepository
	panicWith any
}

func (s failingItemsStore) InsertItems(ctx context.Context, orderID int, items []order.Item) error {
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	return errors.New("order_items: foreign key violation")
}

// brokenStatusStore fails item inserts and the first failures status updates.
type brokenStatusStore struct {
	*order.InMemoryRepository
	failures int
	updates  int
}

func (s *brokenStatusStore) InsertItems(ctx context.Context, orderID int, items []order.Item) error {
	return errors.New("order_items: foreign key violation")
}

func (s *brokenStatusStore) UpdateStatus(ctx context.Context, orderID int, status string, tracking *string) (order.Order, error) {
	s.updates++
	if s.updates <= s.failures {
		return order.Order{}, errors.New("orders: connection reset")
	}
	return s.InMemoryRepository.UpdateStatus(ctx, orderID, status, tracking)
}

type cancelAfterInsertStore struct {
	*order.InMemoryRepository
	cancel      context.CancelFunc
	itemsCtxErr error
}

func (s *cancelAfterInsertStore) InsertIfAbsent(ctx context.Context, o order.Order) (order.Order, bool, error) {
	ord, created, err := s.InMemoryRepository.InsertIfAbsent(ctx, o)
	s.cancel()
	return ord, created, err
}

func (s *cancelAfterInsertStore) InsertItems(ctx context.Context, orderID int, items []order.Item) error {
	s.itemsCtxErr = ctx.Err()
	return s.InMemoryRepository.InsertItems(ctx, orderID, items)
}

type failingCarts struct{}

func (failingCarts) ClearCart(ctx context.Context, userID int) error {
	return errors.New("cart store unavailable")
}

type failingAuditor struct{}

func (failingAuditor) Append(ctx context.Context, userID int, action, reference string) error {
	return errors.New("activity log unavailable")
}
