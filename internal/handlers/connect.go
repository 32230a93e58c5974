package handlers

import (
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/chatcart-io/chatcart-backend/internal/services"
)

// ConnectHandler exposes the credential exchange endpoint: an authenticated
// tenant trades an authorization code for a connected messaging account.
type ConnectHandler struct {
	connect  *services.ConnectService
	validate *validator.Validate
}

// NewConnectHandler creates the connect handler.
func NewConnectHandler(connect *services.ConnectService) *ConnectHandler {
	return &ConnectHandler{
		connect:  connect,
		validate: validator.New(),
	}
}

type connectRequest struct {
	Code     string `json:"code" validate:"required"`
	TenantID string `json:"tenant_id" validate:"required"`
}

// HandleExchange processes POST /api/connect. The caller must be the
// authenticated owner of the tenant it names.
func (h *ConnectHandler) HandleExchange(c *fiber.Ctx) error {
	var req connectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	authTenant, _ := c.Locals("tenant_id").(string)
	if authTenant == "" || authTenant != req.TenantID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not authorized for this tenant"})
	}

	account, err := h.connect.ExchangeCode(req.TenantID, req.Code)
	if err != nil {
		log.Printf("❌ Credential exchange failed for tenant %s: %v", req.TenantID, err)
		return mapError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"account": account,
	})
}
