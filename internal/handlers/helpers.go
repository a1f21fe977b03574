package handlers

import (
	"net/mail"
	"strings"

	"github.com/gofiber/fiber/v2"
)

func getRequestID(c *fiber.Ctx) string {
	if requestID := c.Locals("requestID"); requestID != nil {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func isValidEmail(value string) bool {
	_, err := mail.ParseAddress(value)
	return err == nil
}
