package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/chatcart-io/chatcart-backend/internal/apperrors"
)

// mapError translates the domain error taxonomy to HTTP responses.
func mapError(c *fiber.Ctx, err error) error {
	switch {
	case apperrors.IsValidation(err):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case apperrors.IsNotFound(err):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case apperrors.IsOutOfRange(err):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	case apperrors.IsAuth(err):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "provider credential rejected"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
