package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/congo-pay/crossbank/internal/server"
)

func newServeCmd(storesFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the transfer HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := bootstrap(cmd.Context(), *storesFile)
			if err != nil {
				return err
			}
			defer env.Close()
			logger := env.logger

			srv, err := server.New(env.cfg, env.core, env.db, env.cache, logger)
			if err != nil {
				return err
			}

			srvErrCh := make(chan error, 1)
			go func() {
				srvErrCh <- srv.Listen()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigCh:
				logger.Info("shutdown signal received", "signal", sig.String())
			case err := <-srvErrCh:
				return err
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), env.cfg.ShutdownPeriod)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}

			logger.Info("server exited cleanly")
			return nil
		},
	}
}
