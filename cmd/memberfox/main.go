package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/memberfox/memberfox/app/models"
	"github.com/memberfox/memberfox/app/repository"
	"github.com/memberfox/memberfox/internal/pkg/cache"
	"github.com/memberfox/memberfox/internal/pkg/database"
	"github.com/memberfox/memberfox/internal/pkg/env"
	"github.com/memberfox/memberfox/internal/pkg/router"
	"github.com/memberfox/memberfox/internal/pkg/scheduler"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitGlobalFactory(database.GetDB())

	if err := models.LoadSettings(database.GetDB()); err != nil {
		log.Printf("Failed to load settings, using defaults: %v", err)
	}

	scheduler.GetManager().Start()

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName: models.GetAppSettings().SiteTitle,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			"admin": env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	// ROUTER
	router.InstallRouter(app)

	return app
}
