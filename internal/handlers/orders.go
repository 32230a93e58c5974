package handlers

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/chatcart-io/chatcart-backend/internal/models"
	"github.com/chatcart-io/chatcart-backend/internal/services"
)

// OrderHandler serves the tenant-scoped order query/update API.
type OrderHandler struct {
	orders   *services.OrderService
	validate *validator.Validate
}

// NewOrderHandler creates the order handler.
func NewOrderHandler(orders *services.OrderService) *OrderHandler {
	return &OrderHandler{
		orders:   orders,
		validate: validator.New(),
	}
}

// HandleList processes GET /api/orders with status/date/text filters and
// pagination, scoped strictly to the authenticated tenant.
func (h *OrderHandler) HandleList(c *fiber.Ctx) error {
	tenantID, _ := c.Locals("tenant_id").(string)

	filter := &models.OrderFilter{
		Status:   c.Query("status"),
		Search:   c.Query("q"),
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("page_size", 20),
	}

	if raw := c.Query("date_from"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			filter.DateFrom = &t
		}
	}
	if raw := c.Query("date_to"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			end := t.Add(24*time.Hour - time.Nanosecond)
			filter.DateTo = &end
		}
	}

	orders, total, err := h.orders.List(tenantID, filter)
	if err != nil {
		return mapError(c, err)
	}

	return c.JSON(fiber.Map{
		"orders":    orders,
		"total":     total,
		"page":      filter.Page,
		"page_size": filter.PageSize,
	})
}

// HandleGet processes GET /api/orders/:id.
func (h *OrderHandler) HandleGet(c *fiber.Ctx) error {
	tenantID, _ := c.Locals("tenant_id").(string)

	order, err := h.orders.Get(tenantID, c.Params("id"))
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(order)
}

type statusUpdateRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note"`
}

// HandleUpdateStatus processes PUT /api/orders/:id/status, appending to
// the order timeline. Item snapshots stay immutable.
func (h *OrderHandler) HandleUpdateStatus(c *fiber.Ctx) error {
	tenantID, _ := c.Locals("tenant_id").(string)

	var req statusUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	order, err := h.orders.UpdateStatus(tenantID, c.Params("id"), req.Status, "operator", req.Note)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(order)
}
