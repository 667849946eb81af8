// Package executor runs toolchain jobs under bounded concurrency. Each job
// holds one slot, owns one resource scope, and is bounded by a deadline that
// starts once the slot is acquired.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/szaher/cppmcp/internal/classify"
	"github.com/szaher/cppmcp/internal/job"
	"github.com/szaher/cppmcp/internal/sandbox"
	"github.com/szaher/cppmcp/internal/telemetry"
	"github.com/szaher/cppmcp/internal/toolchain"
)

var (
	// ErrSlotTimeout means no slot freed up within the slot wait.
	ErrSlotTimeout = errors.New("no execution slot available")
	// ErrTimeout means the job deadline passed.
	ErrTimeout = errors.New("operation timed out")
	// ErrInvocationFailed means both primary and fallback invocations
	// produced no usable result.
	ErrInvocationFailed = errors.New("primary and fallback invocations failed")
	// ErrInternal covers everything unexpected, including panics.
	ErrInternal = errors.New("internal error")
)

// Config holds executor settings.
type Config struct {
	MaxConcurrent int
	SlotWait      time.Duration
	JobTimeout    time.Duration
	FallbackStd   string
	MaxDepth      int
}

// DefaultConfig returns the default executor settings.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 5,
		SlotWait:      5 * time.Second,
		JobTimeout:    30 * time.Second,
		FallbackStd:   "c++17",
		MaxDepth:      toolchain.DefaultMaxDepth,
	}
}

// Executor runs jobs against a toolchain.
type Executor struct {
	cfg     Config
	tc      toolchain.Toolchain
	scopes  *sandbox.Manager
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(e *Executor) { e.metrics = metrics }
}

// New creates an executor. Zero config fields take their defaults.
func New(cfg Config, tc toolchain.Toolchain, scopes *sandbox.Manager, opts ...Option) *Executor {
	def := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.SlotWait <= 0 {
		cfg.SlotWait = def.SlotWait
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	if cfg.FallbackStd == "" {
		cfg.FallbackStd = def.FallbackStd
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = def.MaxDepth
	}
	e := &Executor{
		cfg:    cfg,
		tc:     tc,
		scopes: scopes,
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective settings.
func (e *Executor) Config() Config {
	return e.cfg
}

type outcome struct {
	res classify.Result
	err error
}

// Execute runs req and returns its classified result. Validation is the
// caller's job; req is assumed safe to hand to the toolchain.
func (e *Executor) Execute(ctx context.Context, req job.Request) (classify.Result, error) {
	start := time.Now()
	kind := string(req.Kind)
	if !req.Kind.IsValid() {
		return nil, fmt.Errorf("%w: unsupported operation %q", ErrInternal, kind)
	}

	slotCtx, cancelSlot := context.WithTimeout(ctx, e.cfg.SlotWait)
	err := e.sem.Acquire(slotCtx, 1)
	cancelSlot()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.metrics.RecordJob(kind, "slot_timeout", time.Since(start))
		e.logger.Warn("no execution slot", "operation", kind, "wait", e.cfg.SlotWait)
		return nil, ErrSlotTimeout
	}
	e.metrics.SlotAcquired()

	jobCtx, cancelJob := context.WithTimeout(ctx, e.cfg.JobTimeout)
	done := make(chan outcome, 1)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.sem.Release(1)
		defer e.metrics.SlotReleased()
		defer cancelJob()
		res, err := e.run(jobCtx, req)
		done <- outcome{res: res, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-jobCtx.Done():
		select {
		case out = <-done:
		default:
			if ctx.Err() != nil {
				out.err = ctx.Err()
			} else {
				out.err = ErrTimeout
			}
		}
	}

	e.record(kind, out, time.Since(start))
	return out.res, out.err
}

// Wait blocks until every in-flight worker has released its slot and scope,
// or ctx is done.
func (e *Executor) Wait(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run executes one job inside its scope. It never panics.
func (e *Executor) run(ctx context.Context, req job.Request) (res classify.Result, err error) {
	logger := e.logger
	if id := telemetry.CorrelationID(ctx); id != "" {
		logger = logger.With("correlation_id", id)
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", "operation", string(req.Kind), "panic", r, "stack", string(debug.Stack()))
			res, err = nil, ErrInternal
		}
	}()

	scope, err := e.scopes.Open(req.Source)
	if err != nil {
		logger.Error("open job scope", "operation", string(req.Kind), "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	defer scope.Close()
	logger = logger.With(telemetry.JobAttrs(string(req.Kind), scope.Name)...)

	inv := toolchain.Invocation{
		Kind:        req.Kind,
		Dir:         scope.Dir,
		SourcePath:  scope.SourcePath,
		Source:      req.Source,
		Flags:       req.Flags,
		Definitions: req.Definitions,
	}
	out, err := e.tc.Run(ctx, inv)
	if err := deadlineErr(ctx); err != nil {
		return nil, err
	}
	fallback := false
	if err != nil || out == nil {
		logger.Warn("primary invocation produced no result, trying fallback", "error", err)
		e.metrics.RecordFallback(string(req.Kind))
		fallback = true

		inv.Flags = []string{"-std=" + e.cfg.FallbackStd}
		inv.Fallback = true
		out, err = e.tc.Run(ctx, inv)
		if err := deadlineErr(ctx); err != nil {
			return nil, err
		}
		if err != nil || out == nil {
			logger.Error("fallback invocation failed", "error", err)
			return nil, ErrInvocationFailed
		}
	}

	res, err = classify.Classify(req, out, fallback, classify.Options{MaxDepth: e.cfg.MaxDepth})
	if err != nil {
		logger.Error("classify result", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return res, nil
}

// deadlineErr maps a finished job context onto the executor's errors.
func deadlineErr(ctx context.Context) error {
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	default:
		return err
	}
}

func (e *Executor) record(kind string, out outcome, d time.Duration) {
	var label string
	switch {
	case out.err == nil && out.res.Degraded():
		label = "fallback"
	case out.err == nil:
		label = "ok"
	case errors.Is(out.err, ErrTimeout):
		label = "timeout"
	case errors.Is(out.err, ErrInvocationFailed):
		label = "invocation_failed"
	case errors.Is(out.err, context.Canceled):
		label = "canceled"
	default:
		label = "internal"
	}
	e.metrics.RecordJob(kind, label, d)
	e.logger.Debug("job finished", "operation", kind, "outcome", label, "duration", d)
}
