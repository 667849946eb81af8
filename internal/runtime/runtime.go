package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/szaher/cppmcp/internal/config"
	"github.com/szaher/cppmcp/internal/executor"
	"github.com/szaher/cppmcp/internal/ratelimit"
	"github.com/szaher/cppmcp/internal/sandbox"
	"github.com/szaher/cppmcp/internal/telemetry"
	"github.com/szaher/cppmcp/internal/toolchain"
	"github.com/szaher/cppmcp/internal/validation"
)

// Runtime owns every stateful component of one server instance.
type Runtime struct {
	config     *config.Config
	logger     *slog.Logger
	metrics    *telemetry.Metrics
	limiter    *ratelimit.Limiter
	validator  *validation.Validator
	executor   *executor.Executor
	dispatcher *Dispatcher
	server     *Server
}

// Options configures the runtime.
type Options struct {
	Logger    *slog.Logger
	Metrics   *telemetry.Metrics
	Toolchain toolchain.Toolchain
	APIKey    string
	Version   string
}

// New builds a runtime from cfg. A nil Toolchain selects clang for
// compile, analyze and preprocess and tree-sitter for syntax trees.
func New(cfg *config.Config, opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewMetrics()
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}

	tc := opts.Toolchain
	if tc == nil {
		tc = &toolchain.Composite{
			Compiler: toolchain.NewClang(cfg.Toolchain.Binary),
			Tree:     toolchain.NewTreeSitter(cfg.Toolchain.ASTMaxDepth),
		}
	}

	catalog, err := NewCatalog()
	if err != nil {
		return nil, fmt.Errorf("build tool catalog: %w", err)
	}

	limiter := ratelimit.New(cfg.RateLimitSettings(),
		ratelimit.WithLogger(logger), ratelimit.WithMetrics(metrics))
	validator := validation.New(cfg.Policy())
	scopes := sandbox.NewManager(cfg.ScopeSettings(),
		sandbox.WithLogger(logger), sandbox.WithMetrics(metrics))
	exec := executor.New(cfg.ExecutorSettings(), tc, scopes,
		executor.WithLogger(logger), executor.WithMetrics(metrics))

	dispatcher := NewDispatcher(limiter, validator, exec, catalog,
		WithDispatcherLogger(logger),
		WithDispatcherMetrics(metrics),
		WithServerInfo("cppmcp", version))

	server := NewServer(dispatcher,
		WithLogger(logger),
		WithMetrics(metrics),
		WithPath(cfg.Server.Path),
		WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		WithAPIKey(opts.APIKey),
		WithVersion(version))

	return &Runtime{
		config:     cfg,
		logger:     logger,
		metrics:    metrics,
		limiter:    limiter,
		validator:  validator,
		executor:   exec,
		dispatcher: dispatcher,
		server:     server,
	}, nil
}

// Dispatcher returns the protocol entry point.
func (rt *Runtime) Dispatcher() *Dispatcher {
	return rt.dispatcher
}

// Server returns the HTTP transport.
func (rt *Runtime) Server() *Server {
	return rt.server
}

// Start launches background work (the rate limiter sweep).
func (rt *Runtime) Start() error {
	return rt.limiter.Start()
}

// ServeHTTP runs the HTTP transport on the configured address until
// Shutdown.
func (rt *Runtime) ServeHTTP() error {
	return rt.server.ListenAndServe(rt.config.Server.Addr)
}

// ServeStdio runs the stdio transport until in is exhausted or ctx is done.
func (rt *Runtime) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	return ServeStdio(ctx, rt.dispatcher, in, out, int(rt.config.Server.MaxBodyBytes), rt.logger)
}

// Reload applies the hot-reloadable subset of cfg: rate limits and the
// validation policy. Other settings need a restart.
func (rt *Runtime) Reload(cfg *config.Config) {
	rt.limiter.SetLimits(cfg.RateLimit.PerMinute, cfg.RateLimit.PerHour)
	rt.validator.SetPolicy(cfg.Policy())
	rt.logger.Info("runtime settings reloaded",
		"per_minute", cfg.RateLimit.PerMinute,
		"per_hour", cfg.RateLimit.PerHour,
		"denied_flags", len(cfg.Validation.DeniedFlags))
}

// Shutdown stops accepting requests, then waits for in-flight jobs to
// release their slots and scopes.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	rt.logger.Info("shutting down runtime")

	var errs []error
	if err := rt.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown server: %w", err))
	}
	rt.limiter.Stop()
	if err := rt.executor.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain jobs: %w", err))
	}
	return errors.Join(errs...)
}
