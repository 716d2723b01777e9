package order

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/wichananm65/smart-cart-backend/internal/product"
	"github.com/wichananm65/smart-cart-backend/internal/user"
)

// ProductLookup resolves catalog rows for order items.
type ProductLookup interface {
	GetPrices(ctx context.Context, ids []int) (map[int]product.Product, error)
}

// Handler serves order history for customers and order management for admins.
type Handler struct {
	service  *Service
	products ProductLookup
	log      *slog.Logger
}

func NewHandler(s *Service, products ProductLookup, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{service: s, products: products, log: log}
}

func (h *Handler) RegisterProtectedRoutes(app *fiber.App) {
	app.Get("/api/v1/orders", h.getOrders)
	app.Get("/api/v1/orders/:id<[0-9]+>", h.getOrder)
}

func (h *Handler) RegisterAdminRoutes(app *fiber.App) {
	app.Get("/api/v1/admin/orders", user.RequireAdmin, h.adminList)
	app.Get("/api/v1/admin/orders/:id<[0-9]+>", user.RequireAdmin, h.adminGet)
	app.Patch("/api/v1/admin/orders/:id<[0-9]+>/status", user.RequireAdmin, h.adminUpdateStatus)
}

type statusRequest struct {
	Status         string  `json:"status"`
	TrackingNumber *string `json:"trackingNumber,omitempty"`
}

// getOrders returns all orders belonging to the currently authenticated user,
// newest first.
func (h *Handler) getOrders(c *fiber.Ctx) error {
	userID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	orders, err := h.service.ListForUser(c.UserContext(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}
	return c.JSON(orders)
}

func (h *Handler) getOrder(c *fiber.Ctx) error {
	userID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid order id"})
	}

	ord, err := h.service.GetForUser(c.UserContext(), id, userID)
	if err != nil {
		return writeError(c, err)
	}
	h.enrich(c.UserContext(), &ord)
	return c.JSON(ord)
}

func (h *Handler) adminList(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("pageSize", strconv.Itoa(DefaultPageSize)))
	filter := ListFilter{Status: c.Query("status")}
	// non-numeric searches are ignored
	if id, err := strconv.Atoi(strings.TrimSpace(c.Query("search"))); err == nil && id > 0 {
		filter.OrderID = id
	}
	p, err := h.service.AdminList(c.UserContext(), filter, page, pageSize)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(p)
}

func (h *Handler) adminGet(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid order id"})
	}
	ord, err := h.service.AdminGet(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}
	h.enrich(c.UserContext(), &ord)
	return c.JSON(ord)
}

func (h *Handler) adminUpdateStatus(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid order id"})
	}
	payload := new(statusRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}

	updated, err := h.service.UpdateStatus(c.UserContext(), id, payload.Status, payload.TrackingNumber)
	if err != nil {
		return writeError(c, err)
	}
	h.log.Info("order status updated", "order_id", id, "status", updated.Status)
	return c.JSON(updated)
}

// enrich attaches current product details to the order items. Failures leave
// the items as stored.
func (h *Handler) enrich(ctx context.Context, ord *Order) {
	if h.products == nil || len(ord.Items) == 0 {
		return
	}
	ids := make([]int, 0, len(ord.Items))
	for _, it := range ord.Items {
		ids = append(ids, it.ProductID)
	}
	products, err := h.products.GetPrices(ctx, ids)
	if err != nil {
		h.log.Warn("could not load order products", "order_id", ord.OrderID, "error", err)
		return
	}
	for i := range ord.Items {
		if p, ok := products[ord.Items[i].ProductID]; ok {
			ord.Items[i].Product = &p
		}
	}
}

func writeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "order not found"})
	case errors.Is(err, ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"message": "forbidden"})
	case errors.Is(err, ErrInvalidStatus):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid status"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}
}
