package router

import (
	"log"
	"time"

	"github.com/courseloop/courseloop/app/controllers"
	"github.com/courseloop/courseloop/internal/pkg/audit"
	"github.com/courseloop/courseloop/internal/pkg/cache"
	"github.com/courseloop/courseloop/internal/pkg/constants"
	"github.com/courseloop/courseloop/internal/pkg/database"
	"github.com/courseloop/courseloop/internal/pkg/env"
	"github.com/courseloop/courseloop/internal/pkg/middleware"
	"github.com/courseloop/courseloop/internal/pkg/ratelimit"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// Per-endpoint budgets. The webhook budget is per source IP and deliberately
// tight: Stripe delivers from few addresses and retries on 429.
const (
	webhookLimitMax    = 5
	webhookLimitWindow = time.Minute

	sessionLimitMax    = 3
	sessionLimitWindow = 5 * time.Minute
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIRoot, limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "CourseLoop billing API",
		})
	})

	store := newLimiterStore()
	recorder := audit.NewRecorder(database.GetDB())
	webhookLimiter := ratelimit.New(store, webhookLimitMax, webhookLimitWindow)
	checkoutLimiter := ratelimit.New(store, sessionLimitMax, sessionLimitWindow)
	portalLimiter := ratelimit.New(store, sessionLimitMax, sessionLimitWindow)

	v1 := api.Group(constants.APIv1)

	// Standard webhook endpoint. Fiber answers non-POST with 405 on its own.
	v1.Post(constants.BillingWebhookStripePath, controllers.HandleStripeWebhook)

	// Hardened webhook endpoint: rate limited, all methods routed into the
	// handler so the 405 lands in the audit trail too.
	v1.All(constants.BillingWebhookStripeSecurePath,
		middleware.RateLimit(webhookLimiter, recorder, "webhook"),
		controllers.HandleStripeWebhookSecure)

	v1.Post(constants.BillingCheckoutPath,
		middleware.RateLimit(checkoutLimiter, recorder, "checkout"),
		controllers.HandleCreateCheckoutSession)
	v1.Post(constants.BillingPortalPath,
		middleware.RateLimit(portalLimiter, recorder, "portal"),
		controllers.HandleCreatePortalSession)
	v1.Get(constants.BillingSubscriptionPath, controllers.HandleGetSubscription)
}

// newLimiterStore prefers Redis so the limits hold across instances, with an
// in-process fallback when Redis is disabled for local development.
func newLimiterStore() ratelimit.Store {
	if env.GetEnv("RATE_LIMIT_BACKEND", "redis") == "memory" {
		log.Println("rate limiter using in-process store")
		return ratelimit.NewMemoryStore()
	}
	return ratelimit.NewRedisStore(cache.GetClient(), "ratelimit")
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
