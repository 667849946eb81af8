package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/szaher/cppmcp/internal/auth"
	"github.com/szaher/cppmcp/internal/config"
	"github.com/szaher/cppmcp/internal/runtime"
)

func newServeCmd() *cobra.Command {
	var addr string
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP over HTTP",
		Long: `Serve JSON-RPC requests over HTTP. Tool calls are accepted on the
configured path; /health and /metrics are served alongside. When
CPPMCP_API_KEY is set, every request except /health must carry it as a
bearer token.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			logger := newLogger(cfg, os.Stderr)
			apiKey, err := auth.KeyFromEnv()
			if err != nil {
				return err
			}

			rt, err := runtime.New(cfg, runtime.Options{
				Logger:  logger,
				APIKey:  apiKey,
				Version: version,
			})
			if err != nil {
				return fmt.Errorf("build runtime: %w", err)
			}
			if err := rt.Start(); err != nil {
				return fmt.Errorf("start runtime: %w", err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("serving", "addr", cfg.Server.Addr, "path", cfg.Server.Path, "version", version)
				return rt.ServeHTTP()
			})
			if watch && configFile != "" {
				g.Go(func() error {
					return config.Watch(gctx, configFile, logger, rt.Reload)
				})
			}
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, done := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer done()
				return rt.Shutdown(shutdownCtx)
			})

			if err := g.Wait(); err != nil {
				return err
			}
			logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	cmd.Flags().BoolVar(&watch, "watch", true, "Reload rate limits and validation policy when the config file changes")

	return cmd
}
