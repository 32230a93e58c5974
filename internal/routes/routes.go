package routes

import (
	"os"

	"github.com/gofiber/fiber/v2"

	"github.com/chatcart-io/chatcart-backend/internal/handlers"
	"github.com/chatcart-io/chatcart-backend/internal/middleware"
)

// Handlers bundles the constructed handlers for route wiring.
type Handlers struct {
	Webhook        *handlers.WebhookHandler
	PaymentWebhook *handlers.PaymentWebhookHandler
	Connect        *handlers.ConnectHandler
	Orders         *handlers.OrderHandler
	Health         *handlers.HealthHandler
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, h *Handlers) {
	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to ChatCart Backend!",
			"version": "1.0.0",
			"endpoints": fiber.Map{
				"health":          "/health",
				"api":             "/api",
				"webhook":         "/webhook/whatsapp",
				"payment_webhook": "/webhook/payments/:tenantID",
			},
		})
	})

	app.Get("/health", h.Health.HandleHealth)

	// ========== WEBHOOK ROUTES ==========
	webhooks := app.Group("/webhook")

	// Provider verification handshake
	webhooks.Get("/whatsapp", h.Webhook.HandleVerify)

	// Event delivery - ENVIRONMENT-AWARE VALIDATION
	if os.Getenv("ENVIRONMENT") == "development" || os.Getenv("DISABLE_WEBHOOK_VALIDATION") == "true" {
		// Development: skip signature validation for ngrok
		webhooks.Post("/whatsapp", h.Webhook.HandleEvents)
	} else {
		webhooks.Post("/whatsapp",
			middleware.ValidateWebhookSignature(os.Getenv("WHATSAPP_APP_SECRET")),
			h.Webhook.HandleEvents)
	}

	// Payment provider callbacks; the adapter verifies the signature.
	webhooks.Post("/payments/:tenantID", h.PaymentWebhook.HandleEvent)

	// ========== API ROUTES (tenant-authenticated) ==========
	api := app.Group("/api", middleware.TenantAuth(os.Getenv("JWT_SECRET")))

	api.Post("/connect", h.Connect.HandleExchange)

	orders := api.Group("/orders")
	orders.Get("/", h.Orders.HandleList)
	orders.Get("/:id", h.Orders.HandleGet)
	orders.Put("/:id/status", h.Orders.HandleUpdateStatus)
}
