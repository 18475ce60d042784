package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/congo-pay/crossbank/internal/config"
	"github.com/congo-pay/crossbank/internal/core"
	"github.com/congo-pay/crossbank/internal/infra"
	"github.com/congo-pay/crossbank/internal/logging"
)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// runtimeEnv holds everything a command needs once configuration is loaded.
type runtimeEnv struct {
	cfg    config.Config
	logger *slog.Logger
	stores *infra.Stores
	db     *pgxpool.Pool
	cache  *redis.Client
	core   *core.Core
}

func (e *runtimeEnv) Close() {
	if e.cache != nil {
		if err := e.cache.Close(); err != nil {
			e.logger.Warn("close redis", "error", err)
		}
	}
	if e.db != nil {
		e.db.Close()
	}
	if e.stores != nil {
		e.stores.Close()
	}
}

// bootstrap loads configuration, opens every store and wires the core.
// storesFile overrides STORES_FILE when set.
func bootstrap(ctx context.Context, storesFile string) (*runtimeEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if storesFile != "" {
		cfg.StoresFile = storesFile
	}

	env := &runtimeEnv{cfg: cfg, logger: logging.New(cfg.LogLevel, cfg.LogFormat)}

	topo, err := config.LoadStores(cfg.StoresFile)
	if err != nil {
		return nil, err
	}

	if cfg.DatabaseURL != "" {
		env.db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
	}
	if cfg.RedisURL != "" {
		env.cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			env.Close()
			return nil, err
		}
	}

	env.stores, err = infra.OpenStores(ctx, topo, cfg.DatabaseURL, env.logger)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.core = core.New(cfg, env.stores.Registry, env.cache, env.logger)
	return env, nil
}

func newRootCmd() *cobra.Command {
	var storesFile string

	root := &cobra.Command{
		Use:           "crossbank",
		Short:         "Move funds between independently owned ledger stores",
		Long:          "crossbank debits a sender store and credits a receiver store as a saga, reversing the debit when the credit fails.",
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&storesFile, "stores", "", "store topology file (overrides STORES_FILE)")

	root.AddCommand(
		newServeCmd(&storesFile),
		newTransferCmd(&storesFile),
		newRoutesCmd(&storesFile),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "crossbank: %v\n", err)
		os.Exit(1)
	}
}
