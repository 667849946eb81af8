package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"runtime/debug"
	"slices"

	"github.com/szaher/cppmcp/internal/classify"
	"github.com/szaher/cppmcp/internal/executor"
	"github.com/szaher/cppmcp/internal/job"
	"github.com/szaher/cppmcp/internal/ratelimit"
	"github.com/szaher/cppmcp/internal/rpc"
	"github.com/szaher/cppmcp/internal/telemetry"
	"github.com/szaher/cppmcp/internal/validation"
)

// ProtocolVersions lists the MCP revisions the server speaks, newest first.
var ProtocolVersions = []string{"2025-06-18", "2025-03-26", "2024-11-05"}

// JobRunner executes validated jobs.
type JobRunner interface {
	Execute(ctx context.Context, req job.Request) (classify.Result, error)
}

// Dispatcher is the single protocol entry point shared by every transport.
// All of its state is injected, so tests can build isolated instances.
type Dispatcher struct {
	limiter   *ratelimit.Limiter
	validator *validation.Validator
	runner    JobRunner
	catalog   *Catalog
	info      rpc.Implementation
	logger    *slog.Logger
	metrics   *telemetry.Metrics
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithDispatcherMetrics sets the metrics collector.
func WithDispatcherMetrics(m *telemetry.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithServerInfo sets the name and version reported by initialize.
func WithServerInfo(name, version string) DispatcherOption {
	return func(d *Dispatcher) { d.info = rpc.Implementation{Name: name, Version: version} }
}

// NewDispatcher wires the protocol pipeline. A nil limiter disables rate
// limiting.
func NewDispatcher(limiter *ratelimit.Limiter, validator *validation.Validator, runner JobRunner, catalog *Catalog, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		limiter:   limiter,
		validator: validator,
		runner:    runner,
		catalog:   catalog,
		info:      rpc.Implementation{Name: "cppmcp", Version: "dev"},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle processes one raw message from clientID. It returns nil for
// notifications. Handle never panics.
func (d *Dispatcher) Handle(ctx context.Context, clientID string, raw []byte) (resp *rpc.Response) {
	if telemetry.CorrelationID(ctx) == "" {
		ctx = telemetry.WithCorrelationID(ctx, "")
	}
	logger := telemetry.RequestLogger(d.logger, ctx, clientID)
	method := ""

	defer func() {
		if r := recover(); r != nil {
			logger.Error("dispatch panicked", "panic", r, "stack", string(debug.Stack()))
			resp = rpc.NewErrorResponse(rpc.ExtractID(raw), rpc.ErrInternal(""))
		}
		if resp != nil {
			code := 0
			if resp.Error != nil {
				code = resp.Error.Code
			}
			d.metrics.RecordRequest(method, code)
		}
	}()

	if d.limiter != nil {
		decision := d.limiter.Check(clientID)
		if !decision.Allowed {
			retry := int(math.Ceil(decision.RetryAfter.Seconds()))
			return rpc.NewErrorResponse(rpc.ExtractID(raw), rpc.ErrRateLimited(decision.Remaining, retry))
		}
	}

	req, id, rpcErr := rpc.Parse(raw)
	if rpcErr != nil {
		logger.Debug("rejected envelope", "code", rpcErr.Code, "reason", rpcErr.Message)
		return rpc.NewErrorResponse(id, rpcErr)
	}
	method = req.MethodName()

	switch r := req.(type) {
	case rpc.Notification:
		logger.Debug("notification", "method", r.Method)
		return nil
	case rpc.Initialize:
		return rpc.NewResult(r.ID, d.initialize(r))
	case rpc.Ping:
		return rpc.NewResult(r.ID, struct{}{})
	case rpc.ListTools:
		return rpc.NewResult(r.ID, d.catalog.List())
	case rpc.CallTool:
		result, callErr := d.callTool(ctx, logger, r)
		if callErr != nil {
			return rpc.NewErrorResponse(r.ID, callErr)
		}
		return rpc.NewResult(r.ID, result)
	default:
		return rpc.NewErrorResponse(id, rpc.ErrMethodNotFound(method))
	}
}

func (d *Dispatcher) initialize(r rpc.Initialize) rpc.InitializeResult {
	version := ProtocolVersions[0]
	if slices.Contains(ProtocolVersions, r.ProtocolVersion) {
		version = r.ProtocolVersion
	}
	return rpc.InitializeResult{
		ProtocolVersion: version,
		Capabilities: map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		ServerInfo:   d.info,
		Instructions: "Submit C++ source to compile_cpp, analyze_cpp, get_ast or preprocess_cpp.",
	}
}

type toolArguments struct {
	SourceCode  string            `json:"sourceCode"`
	Options     string            `json:"options"`
	Definitions map[string]string `json:"definitions"`
}

func (d *Dispatcher) callTool(ctx context.Context, logger *slog.Logger, call rpc.CallTool) (*rpc.CallToolResult, *rpc.Error) {
	logger = logger.With(telemetry.RPCAttrs(rpc.MethodToolsCall, call.Name)...)

	kind, ok := d.catalog.Lookup(call.Name)
	if !ok {
		return nil, rpc.ErrInvalidParams("Unknown tool: " + call.Name)
	}
	if err := d.catalog.ValidateArguments(call.Name, call.Arguments); err != nil {
		return nil, rpc.ErrInvalidParams("Invalid arguments: " + err.Error())
	}

	var args toolArguments
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return nil, rpc.ErrInvalidParams("Invalid arguments: " + err.Error())
	}
	req := job.Request{
		Kind:        kind,
		Source:      args.SourceCode,
		Flags:       job.SplitOptions(args.Options),
		Definitions: args.Definitions,
	}

	if err := d.validator.ValidateJob(req); err != nil {
		logger.Warn("job rejected", "reason", err.Error())
		return nil, rpc.ErrInvalidParams(err.Error())
	}

	res, err := d.runner.Execute(ctx, req)
	if err != nil {
		return nil, d.jobError(logger, err)
	}

	text, err := json.Marshal(res)
	if err != nil {
		logger.Error("encode result", "error", err)
		return nil, rpc.ErrInternal("")
	}
	if res.Degraded() {
		logger.Info("job completed with fallback invocation")
	}
	return &rpc.CallToolResult{Content: []rpc.TextContent{{Type: "text", Text: string(text)}}}, nil
}

// jobError maps executor failures to protocol errors. Detail stays in the
// server log.
func (d *Dispatcher) jobError(logger *slog.Logger, err error) *rpc.Error {
	switch {
	case errors.Is(err, executor.ErrSlotTimeout):
		return rpc.ErrServerBusy()
	case errors.Is(err, executor.ErrTimeout):
		logger.Warn("job timed out")
		return rpc.ErrInternal("Operation timed out")
	case errors.Is(err, executor.ErrInvocationFailed):
		logger.Error("toolchain invocation failed", "error", err)
		return rpc.ErrInternal("Toolchain invocation failed")
	case errors.Is(err, validation.ErrRejected):
		return rpc.ErrInvalidParams(err.Error())
	default:
		logger.Error("job failed", "error", err)
		return rpc.ErrInternal("")
	}
}
