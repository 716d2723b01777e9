package checkout

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/wichananm65/smart-cart-backend/internal/metrics"
	"github.com/wichananm65/smart-cart-backend/internal/payment"
	"github.com/wichananm65/smart-cart-backend/internal/user"
)

const supportMessage = "Your payment was received but we could not finish recording your order. Please contact support with your payment reference."

type Handler struct {
	service   *Service
	finalizer *Finalizer
	callbacks payment.CallbackParser
	backoff   Backoff
	metrics   *metrics.Checkout
	log       *slog.Logger
}

func NewHandler(s *Service, f *Finalizer, callbacks payment.CallbackParser, backoff Backoff, m *metrics.Checkout, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{service: s, finalizer: f, callbacks: callbacks, backoff: backoff, metrics: m, log: log}
}

// RegisterPublicRoutes mounts the provider callback, which is authenticated by
// its signature rather than a user token.
func (h *Handler) RegisterPublicRoutes(app *fiber.App) {
	app.Post("/webhooks/stripe", h.webhook)
}

func (h *Handler) RegisterProtectedRoutes(app *fiber.App) {
	app.Post("/api/v1/checkout", h.initiate)
	app.Get("/api/v1/checkout/success", h.success)
}

func (h *Handler) initiate(c *fiber.Ctx) error {
	me, err := user.CurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}

	session, err := h.service.InitiateCheckout(c.UserContext(), me.ID, me.Email)
	switch {
	case err == nil:
		return c.JSON(session)
	case errors.Is(err, ErrEmptyCart):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "your cart is empty"})
	case errors.Is(err, ErrAmountTooLow):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "order total is below the minimum charge"})
	case errors.Is(err, ErrProductUnavailable):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"message": err.Error()})
	case errors.Is(err, ErrPaymentProvider):
		c.Set(fiber.HeaderRetryAfter, "5")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"message": "payment provider is unavailable, please try again"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}
}

// success is the browser return from the hosted payment page.
func (h *Handler) success(c *fiber.Ctx) error {
	userID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	ref := c.Query("session_id")
	if ref == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "session_id is required"})
	}

	res, err := h.backoff.Do(c.UserContext(), func(ctx context.Context) (Result, error) {
		return h.finalizer.FinalizeOrder(ctx, ref, userID)
	})
	if err != nil {
		return h.writeFinalizeError(c, ref, err)
	}

	body := fiber.Map{
		"orderID":     res.OrderID,
		"status":      res.Status,
		"orderStatus": res.OrderStatus,
		"redirect":    "/order-confirmation/" + strconv.Itoa(res.OrderID),
	}
	if res.NeedsReview() {
		body["message"] = supportMessage
		body["reference"] = ref
		return c.Status(fiber.StatusAccepted).JSON(body)
	}
	return c.JSON(body)
}

func (h *Handler) writeFinalizeError(c *fiber.Ctx, ref string, err error) error {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"message": "forbidden"})
	case errors.Is(err, ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "payment session not found"})
	case errors.Is(err, ErrNotCaptured):
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"message": "payment was not completed", "retry": "/checkout"})
	case errors.Is(err, ErrProviderUnavailable):
		c.Set(fiber.HeaderRetryAfter, "5")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"message": "could not confirm payment yet, please retry shortly"})
	case IsIntegrity(err):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"message": "we could not confirm your order, please contact support", "reference": ref})
	default:
		h.log.Error("order finalization failed", "reference", ref, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "could not finalize order"})
	}
}

func (h *Handler) webhook(c *fiber.Ctx) error {
	cb, err := h.callbacks.ParseCallback(c.Body(), c.Get("Stripe-Signature"))
	if err != nil {
		h.metrics.Callback("unknown", "rejected")
		h.log.Warn("provider callback rejected", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid callback"})
	}

	log := h.log.With("event_id", cb.ID, "event", cb.Type, "reference", cb.Reference)
	if cb.Type != payment.EventSessionCompleted && cb.Type != payment.EventAsyncPaymentSucceed {
		h.metrics.Callback("other", "ignored")
		return c.JSON(fiber.Map{"received": true})
	}
	if cb.Reference == "" {
		h.metrics.Callback(cb.Type, "rejected")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "callback has no reference"})
	}

	res, err := h.finalizer.FinalizeOrder(c.UserContext(), cb.Reference, cb.UserID)
	switch {
	case err == nil:
		h.metrics.Callback(cb.Type, string(res.Status))
		log.Info("callback finalized order", "order_id", res.OrderID, "status", res.Status)
		return c.JSON(fiber.Map{"received": true, "orderID": res.OrderID})
	case errors.Is(err, ErrProviderUnavailable):
		h.metrics.Callback(cb.Type, "retry")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"message": "provider unavailable"})
	case errors.Is(err, ErrNotCaptured), errors.Is(err, ErrNotFound), errors.Is(err, ErrUnauthorized), IsIntegrity(err):
		// Redelivery cannot change these outcomes.
		h.metrics.Callback(cb.Type, "unprocessable")
		log.Warn("callback did not produce an order", "error", err)
		return c.JSON(fiber.Map{"received": true})
	default:
		h.metrics.Callback(cb.Type, "error")
		log.Error("callback finalization failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "could not finalize order"})
	}
}
