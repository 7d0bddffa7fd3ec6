package router

import (
	"time"

	"github.com/courseloop/courseloop/app/controllers"
	"github.com/courseloop/courseloop/internal/pkg/audit"
	"github.com/courseloop/courseloop/internal/pkg/billing"
	"github.com/courseloop/courseloop/internal/pkg/cache"
	"github.com/courseloop/courseloop/internal/pkg/constants"
	"github.com/courseloop/courseloop/internal/pkg/database"
	"github.com/courseloop/courseloop/internal/pkg/mail"
	"github.com/courseloop/courseloop/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Request ids first so every downstream log and audit row carries one.
	app.Use(middleware.RequestID())

	// Initialize billing controller with service, audit trail and counters
	svc := billing.NewServiceFromDB(database.GetDB())
	svc.SetPastDueNotifier(mail.SendPastDueNotice)
	recorder := audit.NewRecorder(database.GetDB())
	controllers.InitializeBillingController(svc, recorder, controllers.DefaultWebhookMetrics)

	app.Get(constants.HealthPath, func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	app.Get(constants.StatusPath, func(c *fiber.Ctx) error {
		status := fiber.Map{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		}

		dbOK := true
		if sqlDB, err := database.GetDB().DB(); err != nil || sqlDB.Ping() != nil {
			dbOK = false
		}
		status["database"] = dbOK

		cacheOK := cache.GetClient().Ping(c.UserContext()).Err() == nil
		status["cache"] = cacheOK

		code := fiber.StatusOK
		if !dbOK {
			status["status"] = "degraded"
			code = fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(status)
	})
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
