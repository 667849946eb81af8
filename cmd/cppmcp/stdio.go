package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/szaher/cppmcp/internal/runtime"
)

func newStdioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stdio",
		Short: "Serve MCP over stdin/stdout",
		Long: `Read newline-delimited JSON-RPC requests from stdin and write one
response line per request to stdout. Logs go to stderr. All requests
share a single rate-limit identity.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)

			rt, err := runtime.New(cfg, runtime.Options{Logger: logger, Version: version})
			if err != nil {
				return fmt.Errorf("build runtime: %w", err)
			}
			if err := rt.Start(); err != nil {
				return fmt.Errorf("start runtime: %w", err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			serveErr := rt.ServeStdio(ctx, cmd.InOrStdin(), cmd.OutOrStdout())

			shutdownCtx, done := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer done()
			if err := rt.Shutdown(shutdownCtx); err != nil {
				logger.Warn("shutdown incomplete", "error", err)
			}
			return serveErr
		},
	}
}
