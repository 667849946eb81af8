package runtime

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/szaher/cppmcp/internal/config"
	"github.com/szaher/cppmcp/internal/job"
	"github.com/szaher/cppmcp/internal/rpc"
	"github.com/szaher/cppmcp/internal/toolchain"
)

func newTestRuntime(t *testing.T, cfg *config.Config) *Runtime {
	t.Helper()
	cfg.Scope.Root = t.TempDir()
	tc := toolchain.Func(func(_ context.Context, inv toolchain.Invocation) (*toolchain.Output, error) {
		if strings.Contains(inv.Source, "undeclared") {
			return &toolchain.Output{Diagnostics: []job.Diagnostic{{
				Severity: job.SeverityError, Message: "use of undeclared identifier", File: "main.cpp", Line: 1, Column: 20,
			}}}, nil
		}
		return &toolchain.Output{}, nil
	})
	rt, err := New(cfg, Options{Toolchain: tc, Version: "test"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return rt
}

func compilePayload(t *testing.T, resp *rpc.Response) map[string]any {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("error response: %+v", resp.Error)
	}
	var payload map[string]any
	text := resp.Result.(*rpc.CallToolResult).Content[0].Text
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	return payload
}

func TestRuntimeCompileRoundTrip(t *testing.T) {
	rt := newTestRuntime(t, config.Default())
	d := rt.Dispatcher()

	resp := d.Handle(context.Background(), "c", []byte(callTool("compile_cpp", `{"sourceCode":"int main() { return 0; }"}`)))
	payload := compilePayload(t, resp)
	if payload["success"] != true || payload["errors"] != float64(0) {
		t.Errorf("valid source payload = %v", payload)
	}

	resp = d.Handle(context.Background(), "c", []byte(callTool("compile_cpp", `{"sourceCode":"int main() { return undeclared; }"}`)))
	payload = compilePayload(t, resp)
	if payload["success"] != false || payload["errors"].(float64) < 1 {
		t.Errorf("invalid source payload = %v", payload)
	}
	for _, d := range payload["diagnostics"].([]any) {
		diag := d.(map[string]any)
		if diag["line"].(float64) < 1 || diag["column"].(float64) < 1 {
			t.Errorf("diagnostic position not positive: %v", diag)
		}
	}
}

func TestRuntimeReload(t *testing.T) {
	cfg := config.Default()
	cfg.RateLimit.PerMinute = 100
	rt := newTestRuntime(t, cfg)
	d := rt.Dispatcher()
	ping := []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)

	next := config.Default()
	next.RateLimit.PerMinute = 1
	next.Validation.DeniedFlags = []string{"-Wall"}
	rt.Reload(next)

	if resp := d.Handle(context.Background(), "r", ping); resp.Error != nil {
		t.Fatalf("first ping rejected: %+v", resp.Error)
	}
	if resp := d.Handle(context.Background(), "r", ping); resp.Error == nil || resp.Error.Code != rpc.CodeRateLimitExceeded {
		t.Errorf("second ping = %+v, want rate limited after reload", resp)
	}

	resp := d.Handle(context.Background(), "other", []byte(callTool("compile_cpp", `{"sourceCode":"int x;","options":"-Wall"}`)))
	if resp.Error == nil || resp.Error.Code != rpc.CodeInvalidParams {
		t.Errorf("reloaded denylist not applied: %+v", resp)
	}
}

func TestRuntimeServeAndShutdown(t *testing.T) {
	rt := newTestRuntime(t, config.Default())
	if err := rt.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	served := make(chan error, 1)
	go func() { served <- rt.Server().Serve(l) }()

	url := "http://" + l.Addr().String()
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url + "/health")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error: %v", err)
	}
	if err := <-served; err != nil {
		t.Errorf("Serve() error: %v", err)
	}
}
