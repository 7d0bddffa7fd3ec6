package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/courseloop/courseloop/internal/pkg/billing"
	"github.com/courseloop/courseloop/internal/pkg/cache"
	"github.com/courseloop/courseloop/internal/pkg/database"
	"github.com/courseloop/courseloop/internal/pkg/env"
	"github.com/courseloop/courseloop/internal/pkg/metrics/counter"
	"github.com/courseloop/courseloop/internal/pkg/router"
)

func main() {
	app := NewApplication()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	counter.StartFlusher(ctx, time.Minute)

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	billing.SetupStripe()

	// Webhook payloads are small; anything past the body limit is garbage.
	app := fiber.New(fiber.Config{
		AppName:   "CourseLoop Billing",
		BodyLimit: 1 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			"admin": env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	if _, err := os.Stat("public/docs/v1/openapi.yml"); err == nil {
		openAPICfg := swagger.Config{
			BasePath: "/docs/api/",
			FilePath: "public/docs/v1/openapi.yml",
			Path:     "v1",
		}
		app.Use(swagger.New(openAPICfg))
	}

	// ROUTER
	router.InstallRouter(app)

	return app
}
