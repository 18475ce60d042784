package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/crossbank/internal/config"
	"github.com/congo-pay/crossbank/internal/core"
	"github.com/congo-pay/crossbank/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app    *fiber.App
	cfg    config.Config
	core   *core.Core
	logger *slog.Logger

	refreshCtx context.Context
	cancel     context.CancelFunc
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
// db may be nil when no store uses postgres.
func New(cfg config.Config, c *core.Core, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	if err := routes.Setup(app, routes.Deps{Cfg: cfg, DB: db, Cache: cache, Core: c, Logger: logger}); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{app: app, cfg: cfg, core: c, logger: logger, refreshCtx: ctx, cancel: cancel}, nil
}

// Listen refreshes the routing table once, starts the periodic refresher and
// serves HTTP until Shutdown.
func (s *Server) Listen() error {
	s.core.Routing.Refresh(s.refreshCtx)
	go s.core.Routing.Run(s.refreshCtx, s.cfg.RefreshInterval)

	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server and the refresher.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.app.ShutdownWithContext(ctx)
}
