package core

import (
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/crossbank/internal/config"
	"github.com/congo-pay/crossbank/internal/history"
	"github.com/congo-pay/crossbank/internal/lock"
	"github.com/congo-pay/crossbank/internal/notification"
	"github.com/congo-pay/crossbank/internal/routing"
	"github.com/congo-pay/crossbank/internal/saga"
	"github.com/congo-pay/crossbank/internal/store"
	"github.com/congo-pay/crossbank/internal/validation"
)

// Core is the wired transfer engine over one store registry.
type Core struct {
	Registry     *store.Registry
	Routing      *routing.Cache
	Orchestrator *saga.Orchestrator
}

// New wires routing, validation, fan-out and the orchestrator. cache may be
// nil; it is only needed when cfg.LockAccounts is set.
func New(cfg config.Config, reg *store.Registry, cache *redis.Client, logger *slog.Logger) *Core {
	routes := routing.New(reg, reg, logger)

	home := validation.Home{Store: reg.Sender()}
	home.RoutingCode, _ = reg.RoutingCode(home.Store)
	validator := validation.New(reg, routes, home)

	opts := []saga.Option{saga.WithNotifier(notification.NewLoggerNotifier(logger))}
	if cfg.LockAccounts && cache != nil {
		opts = append(opts, saga.WithLocker(lock.NewRedis(cache, cfg.LockTTL, cfg.LockWait, logger)))
		logger.Info("account locking enabled", slog.Duration("ttl", cfg.LockTTL))
	} else {
		logger.Warn("account locking disabled; concurrent transfers on one account can lose updates")
	}

	orch := saga.New(reg, validator, history.NewRecorder(reg, reg, logger), logger, opts...)
	return &Core{Registry: reg, Routing: routes, Orchestrator: orch}
}
