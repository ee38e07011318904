package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/memberfox/memberfox/app/controllers"
	"github.com/memberfox/memberfox/app/repository"
	"github.com/memberfox/memberfox/internal/pkg/constants"
	"github.com/memberfox/memberfox/internal/pkg/middleware"
	"github.com/memberfox/memberfox/internal/pkg/scheduler"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIRoute, limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	manager := scheduler.GetManager()
	repos := repository.GetGlobalFactory().GetRepositories()

	queueController := controllers.NewQueueController(manager.GetQueue())
	subController := controllers.NewSubscriptionController(repos.Subscription, manager.GetService(), manager.GetScanner())

	// Admin API v1, key-protected
	v1 := api.Group(constants.APIv1Route, middleware.APIKeyAuthMiddleware())

	queue := v1.Group(constants.QueueRoute)
	queue.Get("/stats", queueController.HandleStats)
	queue.Post("/process", queueController.HandleProcess)
	queue.Post("/retry-failed", queueController.HandleRetryFailed)
	queue.Delete("/counters", queueController.HandleResetCounters)
	queue.Delete("/", queueController.HandleClear)

	subs := v1.Group(constants.SubscriptionsRoute)
	subs.Get("/", subController.HandleList)
	subs.Get("/counts", subController.HandleStatusCounts)
	subs.Get("/:id", subController.HandleGet)
	subs.Post("/", subController.HandleCreate)
	subs.Patch("/:id/status", subController.HandleChangeStatus)
	subs.Post("/:id/regenerate-token", subController.HandleRegenerateToken)

	v1.Post(constants.RenewalsRoute+"/run", subController.HandleRunRenewals)
	v1.Get(constants.RenewalsRoute+"/status", subController.HandleRenewalStatus)
	v1.Get(constants.RenewalsRoute+"/resolve", subController.HandleResolveToken)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
