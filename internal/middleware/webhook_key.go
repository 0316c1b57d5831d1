package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// WebhookKeyMiddleware checks "Authorization: Apikey <key>" on gateway
// callbacks. An empty key leaves the webhooks open, which is the default:
// gateways are trusted by network placement unless a key is configured.
func WebhookKeyMiddleware(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key == "" || apiKeyMatches(c, key) {
			return c.Next()
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"status":  "error",
			"message": "invalid webhook credentials",
		})
	}
}

// AdminKeyMiddleware guards operator endpoints with the same "Apikey <key>"
// scheme. Unlike the webhook guard it never runs open: an empty key rejects
// every request.
func AdminKeyMiddleware(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key != "" && apiKeyMatches(c, key) {
			return c.Next()
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"status":  "error",
			"message": "invalid admin credentials",
		})
	}
}

func apiKeyMatches(c *fiber.Ctx, key string) bool {
	parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2)
	return len(parts) == 2 && strings.EqualFold(parts[0], "Apikey") &&
		subtle.ConstantTimeCompare([]byte(strings.TrimSpace(parts[1])), []byte(key)) == 1
}
