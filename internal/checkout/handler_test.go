package checkout

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wichananm65/smart-cart-backend/internal/metrics"
	"github.com/wichananm65/smart-cart-backend/internal/order"
	"github.com/wichananm65/smart-cart-backend/internal/payment"
)

type fakeParser struct {
	cb  payment.Callback
	err error
}

func (p fakeParser) ParseCallback(payload []byte, signature string) (payment.Callback, error) {
	if p.err != nil {
		return payment.Callback{}, p.err
	}
	if signature == "" {
		return payment.Callback{}, payment.ErrInvalidCallback
	}
	return p.cb, nil
}

func makeAppWithCheckoutHandler(h *Handler) *fiber.App {
	app := fiber.New()
	h.RegisterPublicRoutes(app)
	app.Use(func(c *fiber.Ctx) error {
		if v := c.Get("X-User-ID"); v != "" {
			id, err := strconv.Atoi(v)
			if err == nil {
				claims := jwt.MapClaims{"user_id": id, "email": "jenny@example.com", "role": "customer"}
				c.Locals("user", &jwt.Token{Claims: claims})
			}
		}
		return c.Next()
	})
	h.RegisterProtectedRoutes(app)
	return app
}

func newCheckoutApp(t *testing.T, fx *fixture, f *Finalizer, parser payment.CallbackParser) *fiber.App {
	t.Helper()
	if f == nil {
		f = fx.finalizer(nil)
	}
	backoff := Backoff{Attempts: 3, Initial: time.Millisecond, Max: 2 * time.Millisecond}
	return makeAppWithCheckoutHandler(NewHandler(fx.service(), f, parser, backoff, nil, nil))
}

func do(t *testing.T, app *fiber.App, method, path, userID string, headers map[string]string) (int, map[string]any, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	b, _ := io.ReadAll(res.Body)
	body := map[string]any{}
	_ = json.Unmarshal(b, &body)
	return res.StatusCode, body, res.Header.Get(fiber.HeaderRetryAfter)
}

func TestCheckoutRoute(t *testing.T) {
	fx := newFixture(t, "0.2")
	app := newCheckoutApp(t, fx, nil, fakeParser{})

	code, _, _ := do(t, app, "POST", "/api/v1/checkout", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, code)

	code, body, _ := do(t, app, "POST", "/api/v1/checkout", "42", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.NotEmpty(t, body["sessionId"])
	assert.NotEmpty(t, body["url"])

	code, _, _ = do(t, app, "POST", "/api/v1/checkout", "7", nil)
	assert.Equal(t, fiber.StatusBadRequest, code, "empty cart")
}

func TestSuccessRoute(t *testing.T) {
	fx := newFixture(t, "0.2")
	fx.provider.sessions["pi_123"] = paidSession("pi_123", 42)
	unpaid := paidSession("pi_unpaid", 42)
	unpaid.Status = "unpaid"
	fx.provider.sessions["pi_unpaid"] = unpaid
	app := newCheckoutApp(t, fx, nil, fakeParser{})

	code, _, _ := do(t, app, "GET", "/api/v1/checkout/success", "42", nil)
	assert.Equal(t, fiber.StatusBadRequest, code)

	code, body, _ := do(t, app, "GET", "/api/v1/checkout/success?session_id=pi_123", "42", nil)
	require.Equal(t, fiber.StatusOK, code)
	id := int(body["orderID"].(float64))
	assert.Equal(t, "created", body["status"])
	assert.Equal(t, "/order-confirmation/"+strconv.Itoa(id), body["redirect"])

	code, body, _ = do(t, app, "GET", "/api/v1/checkout/success?session_id=pi_123", "42", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "already-existed", body["status"])
	assert.Equal(t, float64(id), body["orderID"])

	code, _, _ = do(t, app, "GET", "/api/v1/checkout/success?session_id=pi_123", "7", nil)
	assert.Equal(t, fiber.StatusForbidden, code)

	code, body, _ = do(t, app, "GET", "/api/v1/checkout/success?session_id=pi_unpaid", "42", nil)
	assert.Equal(t, fiber.StatusPaymentRequired, code)
	assert.Equal(t, "/checkout", body["retry"])

	code, _, _ = do(t, app, "GET", "/api/v1/checkout/success?session_id=pi_missing", "42", nil)
	assert.Equal(t, fiber.StatusNotFound, code)
}

func TestSuccessRoute_RetriesProviderOutage(t *testing.T) {
	fx := newFixture(t, "0.2")
	fx.provider.sessions["pi_123"] = paidSession("pi_123", 42)
	fx.provider.unavailable = 2
	app := newCheckoutApp(t, fx, nil, fakeParser{})

	code, _, _ := do(t, app, "GET", "/api/v1/checkout/success?session_id=pi_123", "42", nil)
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, 3, fx.provider.retrieveCount())

	fx.provider.sessions["pi_down"] = paidSession("pi_down", 42)
	fx.provider.unavailable = 3
	code, _, retryAfter := do(t, app, "GET", "/api/v1/checkout/success?session_id=pi_down", "42", nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, code)
	assert.NotEmpty(t, retryAfter)
}

func TestSuccessRoute_MismatchAndPartial(t *testing.T) {
	fx := newFixture(t, "0.2")
	short := paidSession("pi_short", 42)
	short.AmountCaptured = 5500
	fx.provider.sessions["pi_short"] = short
	fx.provider.sessions["pi_partial"] = paidSession("pi_partial", 42)
	f := fx.finalizer(failingItemsStore{InMemoryRepository: fx.orders})
	app := newCheckoutApp(t, fx, f, fakeParser{})

	code, body, _ := do(t, app, "GET", "/api/v1/checkout/success?session_id=pi_short", "42", nil)
	assert.Equal(t, fiber.StatusConflict, code)
	assert.Equal(t, "pi_short", body["reference"])

	code, body, _ = do(t, app, "GET", "/api/v1/checkout/success?session_id=pi_partial", "42", nil)
	assert.Equal(t, fiber.StatusAccepted, code)
	assert.Equal(t, "partial", body["status"])
	assert.NotEmpty(t, body["message"])
	assert.NotZero(t, body["orderID"])
}

func TestStripeWebhook(t *testing.T) {
	fx := newFixture(t, "0.2")
	fx.provider.sessions["pi_123"] = paidSession("pi_123", 42)
	signed := map[string]string{"Stripe-Signature": "t=1,v1=abc"}

	completed := fakeParser{cb: payment.Callback{ID: "evt_1", Type: payment.EventSessionCompleted, Reference: "pi_123", UserID: 42}}
	app := newCheckoutApp(t, fx, nil, completed)

	code, _, _ := do(t, app, "POST", "/webhooks/stripe", "", nil)
	assert.Equal(t, fiber.StatusBadRequest, code, "missing signature")

	code, body, _ := do(t, app, "POST", "/webhooks/stripe", "", signed)
	require.Equal(t, fiber.StatusOK, code)
	assert.NotZero(t, body["orderID"])

	// redelivery resolves to the same order
	code, again, _ := do(t, app, "POST", "/webhooks/stripe", "", signed)
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, body["orderID"], again["orderID"])
	assert.Equal(t, 1, fx.orders.Count())

	ord, err := fx.orders.FindByReference(context.Background(), "pi_123")
	require.NoError(t, err)
	assert.Equal(t, order.StatusReceived, ord.Status)

	ignored := fakeParser{cb: payment.Callback{ID: "evt_2", Type: "payment_intent.created"}}
	code, _, _ = do(t, newCheckoutApp(t, fx, nil, ignored), "POST", "/webhooks/stripe", "", signed)
	assert.Equal(t, fiber.StatusOK, code)

	fx.provider.unavailable = 1
	pending := fakeParser{cb: payment.Callback{ID: "evt_3", Type: payment.EventAsyncPaymentSucceed, Reference: "pi_new", UserID: 42}}
	code, _, _ = do(t, newCheckoutApp(t, fx, nil, pending), "POST", "/webhooks/stripe", "", signed)
	assert.Equal(t, fiber.StatusServiceUnavailable, code, "provider outage asks for redelivery")

	code, _, _ = do(t, newCheckoutApp(t, fx, nil, pending), "POST", "/webhooks/stripe", "", signed)
	assert.Equal(t, fiber.StatusOK, code, "unknown reference is acknowledged")
}

func TestStripeWebhook_IgnoredEventsShareOneLabel(t *testing.T) {
	fx := newFixture(t, "0.2")
	m := metrics.NewCheckout(prometheus.NewRegistry())
	signed := map[string]string{"Stripe-Signature": "t=1,v1=abc"}
	backoff := Backoff{Attempts: 1, Initial: time.Millisecond, Max: time.Millisecond}

	for i, typ := range []string{"payment_intent.created", "charge.refunded", "customer.created"} {
		parser := fakeParser{cb: payment.Callback{ID: "evt_" + strconv.Itoa(i), Type: typ}}
		app := makeAppWithCheckoutHandler(NewHandler(fx.service(), fx.finalizer(nil), parser, backoff, m, nil))
		code, _, _ := do(t, app, "POST", "/webhooks/stripe", "", signed)
		require.Equal(t, fiber.StatusOK, code)
	}

	assert.Equal(t, float64(3), testutil.ToFloat64(m.Callbacks.WithLabelValues("other", "ignored")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Callbacks))
}
