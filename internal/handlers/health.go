package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/chatcart-io/chatcart-backend/internal/crypto"
)

// HealthHandler reports service health, including a crypto round-trip
// self-test so a bad key deploy is visible to monitoring.
type HealthHandler struct {
	cipher *crypto.Cipher
	dbPing func() error // nil when running on the memory store
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(cipher *crypto.Cipher, dbPing func() error) *HealthHandler {
	return &HealthHandler{cipher: cipher, dbPing: dbPing}
}

// HandleHealth processes GET /health.
func (h *HealthHandler) HandleHealth(c *fiber.Ctx) error {
	status := "healthy"
	code := fiber.StatusOK

	dbHealthy := true
	if h.dbPing != nil {
		if err := h.dbPing(); err != nil {
			dbHealthy = false
			status = "unhealthy"
			code = fiber.StatusServiceUnavailable
		}
	}

	cryptoHealthy := h.cipher.SelfTest() == nil
	if !cryptoHealthy {
		status = "unhealthy"
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"status": status,
		"services": fiber.Map{
			"database":   dbHealthy,
			"encryption": cryptoHealthy,
		},
	})
}
