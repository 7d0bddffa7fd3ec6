package middleware

import (
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/courseloop/courseloop/app/models"
	"github.com/courseloop/courseloop/internal/pkg/audit"
	"github.com/courseloop/courseloop/internal/pkg/ratelimit"
	"github.com/gofiber/fiber/v2"
)

// RateLimit rejects requests above the limiter's budget with 429 and a
// Retry-After header. The identifier is the client IP, namespaced by scope so
// endpoints with separate budgets do not share buckets. A store failure fails
// open: webhook providers retry on their own schedule, and dropping valid
// events over a broken limiter backend is the worse trade.
func RateLimit(limiter *ratelimit.Limiter, recorder *audit.Recorder, scope string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := ClientIP(c)
		ok, retryAfter, err := limiter.Allow(c.UserContext(), scope+":"+ip)
		if err != nil {
			log.Printf("rate limiter unavailable for %s: %v", scope, err)
			return c.Next()
		}
		if !ok {
			recorder.Record(c.UserContext(), models.SecurityEventRateLimited,
				fmt.Sprintf("scope=%s", scope), requestID(c), ip, string(c.Request().Header.UserAgent()))
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Set(fiber.HeaderRetryAfter, fmt.Sprintf("%d", seconds))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited"})
		}
		return c.Next()
	}
}

// ClientIP returns the originating client address, preferring the first
// X-Forwarded-For entry set by the platform's edge proxy.
func ClientIP(c *fiber.Ctx) string {
	if fwd := strings.TrimSpace(c.Get(fiber.HeaderXForwardedFor)); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return fwd
	}
	return c.IP()
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return ""
}
