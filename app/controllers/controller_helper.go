package controllers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

// formatTimePtr renders a nullable timestamp as RFC3339 UTC, or nil.
func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// requestID returns the id set by the RequestID middleware, if any.
func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return ""
}

// gatewayUserID reads the authenticated user id injected by the platform
// gateway. This service does not run its own auth; requests reaching the
// account-scoped billing endpoints have already passed the gateway.
func gatewayUserID(c *fiber.Ctx) (uint, bool) {
	raw := c.Get("X-User-ID")
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
