package routes

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"paper-exchange/src/config"
	"paper-exchange/src/handlers"
	"paper-exchange/src/middleware"
)

// Endpoints lists the registered routes for the startup log.
var Endpoints = []string{
	"POST   /api/v1/orders",
	"GET    /api/v1/orders",
	"GET    /api/v1/orders/:id",
	"DELETE /api/v1/orders/:id",
	"GET    /api/v1/orders/:id/trade",
	"GET    /api/v1/orders/:id/trades",
	"GET    /api/v1/book/:code",
	"GET    /api/v1/cash",
	"GET    /api/v1/positions",
	"GET    /api/v1/positions/:code",
	"POST   /api/v1/quotes",
	"POST   /api/v1/dayroll",
	"GET    /health",
	"GET    /metrics",
}

// NewApp builds the fiber application with its error handler, recovery and
// every route.
func NewApp(cfg config.ServerConfig, h *handlers.AccountHandler) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}

			log.Error().
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("status", code).
				Str("error", err.Error()).
				Msg("Request error")

			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(recover.New())
	SetupRoutes(app, cfg, h)
	return app
}

func SetupRoutes(app *fiber.App, cfg config.ServerConfig, h *handlers.AccountHandler) {
	availability := middleware.NewServiceAvailability(cfg.MaxConcurrentRequests, cfg.MaintenanceMode)
	app.Use(availability.Middleware())
	app.Use(middleware.RequestLogger(cfg.RequestLoggingDisabled))

	api := app.Group("/api/v1")

	if !cfg.RateLimitDisabled {
		api.Use(middleware.NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow).Middleware())
	}

	api.Post("/orders", h.SubmitOrder)
	api.Get("/orders", h.ListOrders)
	api.Get("/orders/:id", h.GetOrder)
	api.Delete("/orders/:id", h.CancelOrder)
	api.Get("/orders/:id/trade", h.GetTrade)
	api.Get("/orders/:id/trades", h.ListTrades)
	api.Get("/book/:code", h.GetBook)
	api.Get("/cash", h.GetCash)
	api.Get("/positions", h.ListPositions)
	api.Get("/positions/:code", h.GetPosition)
	api.Post("/quotes", h.ProcessQuote)
	api.Post("/dayroll", h.DayRoll)

	app.Get("/health", h.HealthCheck)
	app.Get("/metrics", h.Metrics)
}
