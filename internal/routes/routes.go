package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/crossbank/internal/config"
	"github.com/congo-pay/crossbank/internal/core"
	"github.com/congo-pay/crossbank/internal/middleware"
	"github.com/congo-pay/crossbank/internal/transfer"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Core   *core.Core
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Core == nil {
		return fmt.Errorf("transfer core is required")
	}
	if !d.Cfg.IsDev() && d.Cache == nil {
		return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1")
	if d.Cfg.APIKeyHash != "" {
		api.Use(middleware.APIKey(d.Cfg.APIKeyHash))
	} else {
		d.Logger.Warn("API_KEY_HASH not set; transfer API is unauthenticated")
	}
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	var idempotency []fiber.Handler
	if d.Cache != nil {
		idempotency = append(idempotency, middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterTransferRoutes(api, transfer.NewHandler(d.Core.Orchestrator, d.Core.Routing), idempotency...)

	return nil
}
