package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/jonboulle/clockwork"

	"github.com/dealflow/dealflow/pkg/catalog"
	"github.com/dealflow/dealflow/pkg/engine"
	"github.com/dealflow/dealflow/pkg/eventbus"
	"github.com/dealflow/dealflow/pkg/persistence"
	"github.com/dealflow/dealflow/pkg/report"
	"github.com/dealflow/dealflow/pkg/web"
)

type API struct {
	logger      *slog.Logger
	catalog     *catalog.Catalog
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	cat *catalog.Catalog,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:      logger,
		catalog:     cat,
		persistence: persistence,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	clock := clockwork.NewRealClock()

	eng := engine.New(a.catalog, a.persistence, a.eventBus, clock, a.logger)
	monitor := engine.NewMonitor(eng)
	reports := report.NewGenerator(a.persistence, clock, a.logger)

	handlers := web.NewAPIHandlers(a.catalog, eng, monitor, reports, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Dealflow API")
	})

	tpl := app.Group("/templates")
	tpl.Get("/", handlers.GetTemplates)
	tpl.Post("/", handlers.RegisterTemplate)
	tpl.Get("/:id", handlers.GetTemplate)

	tx := app.Group("/transactions")
	tx.Get("/", handlers.GetTransactions)
	tx.Post("/", handlers.CreateTransaction)
	tx.Get("/:id", handlers.GetTransaction)
	tx.Post("/:id/cancel", handlers.CancelTransaction)
	tx.Post("/:id/milestones/:milestoneId/start", handlers.StartMilestone)
	tx.Post("/:id/milestones/:milestoneId/complete", handlers.CompleteMilestone)
	tx.Post("/:id/tasks/:taskId/complete", handlers.CompleteTask)
	tx.Get("/:id/report", handlers.GetTransactionReport)

	app.Get("/overdue-tasks", handlers.GetOverdueTasks)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
