package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)
	logger.Debug("hidden")
	logger.Info("job finished", "operation", "compile")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if rec["msg"] != "job finished" || rec["operation"] != "compile" {
		t.Errorf("record = %v, want msg and operation fields", rec)
	}
}

func TestNewLoggerWithFormatText(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerWithFormat(&buf, slog.LevelInfo, "text").Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("text output = %q, want msg=hello", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v, want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("ParseLevel(loud) = nil error, want error")
	}
}

func TestCorrelationID(t *testing.T) {
	t.Run("generates an ID when empty", func(t *testing.T) {
		ctx := WithCorrelationID(context.Background(), "")
		if got := CorrelationID(ctx); len(got) != 26 {
			t.Errorf("CorrelationID() = %q, want a 26-character ULID", got)
		}
	})

	t.Run("keeps an explicit ID", func(t *testing.T) {
		ctx := WithCorrelationID(context.Background(), "req-1")
		if got := CorrelationID(ctx); got != "req-1" {
			t.Errorf("CorrelationID() = %q, want req-1", got)
		}
	})

	t.Run("missing ID is empty", func(t *testing.T) {
		if got := CorrelationID(context.Background()); got != "" {
			t.Errorf("CorrelationID() = %q, want empty", got)
		}
	})
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithCorrelationID(context.Background(), "abc")
	RequestLogger(NewLogger(&buf, slog.LevelInfo), ctx, "10.0.0.1").Info("x")

	out := buf.String()
	if !strings.Contains(out, `"client":"10.0.0.1"`) || !strings.Contains(out, `"correlation_id":"abc"`) {
		t.Errorf("log = %q, want client and correlation_id", out)
	}
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	m.RecordRateLimited()
	m.RecordRateLimited()
	if got := testutil.ToFloat64(m.rateLimitedTotal); got != 2 {
		t.Errorf("rate limited = %v, want 2", got)
	}

	m.SlotAcquired()
	m.SlotAcquired()
	m.SlotReleased()
	if got := testutil.ToFloat64(m.slotsInUse); got != 1 {
		t.Errorf("slots in use = %v, want 1", got)
	}

	m.RecordJob("compile", "success", 120*time.Millisecond)
	if got := testutil.ToFloat64(m.jobsTotal.WithLabelValues("compile", "success")); got != 1 {
		t.Errorf("jobs = %v, want 1", got)
	}

	m.RecordRequest("tools/call", -32602)
	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("tools/call", "-32602")); got != 1 {
		t.Errorf("requests = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "cppmcp_rate_limited_total 2") {
		t.Errorf("exposition missing rate limited counter:\n%s", rec.Body.String())
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("ping", 0)
	m.RecordRateLimited()
	m.SetTrackedClients(3)
	m.RecordJob("compile", "success", time.Second)
	m.SlotAcquired()
	m.SlotReleased()
	m.RecordFallback("compile")
	m.RecordCleanupFailure()
	if m.Registry() != nil {
		t.Error("Registry() on nil metrics should be nil")
	}
}
