package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ValidateWebhookSignature checks the provider's X-Hub-Signature-256
// header: "sha256=" followed by the hex HMAC-SHA256 of the raw body keyed
// with the app secret.
func ValidateWebhookSignature(appSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if appSecret == "" {
			log.Println("ERROR: webhook app secret not configured")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "server configuration error",
			})
		}

		header := c.Get("X-Hub-Signature-256")
		if !strings.HasPrefix(header, "sha256=") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing signature",
			})
		}
		provided := strings.TrimPrefix(header, "sha256=")

		mac := hmac.New(sha256.New, []byte(appSecret))
		mac.Write(c.Body())
		expected := hex.EncodeToString(mac.Sum(nil))

		if !hmac.Equal([]byte(expected), []byte(provided)) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid signature",
			})
		}

		return c.Next()
	}
}
