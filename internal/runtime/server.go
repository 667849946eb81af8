package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/szaher/cppmcp/internal/auth"
	"github.com/szaher/cppmcp/internal/ratelimit"
	"github.com/szaher/cppmcp/internal/rpc"
	"github.com/szaher/cppmcp/internal/telemetry"
)

// DefaultMaxBodyBytes caps a single HTTP request body.
const DefaultMaxBodyBytes = 1 << 20

// Server is the HTTP transport for the protocol dispatcher.
type Server struct {
	dispatcher *Dispatcher
	mux        *http.ServeMux
	mu         sync.Mutex
	server     *http.Server
	closed     bool
	logger     *slog.Logger
	metrics    *telemetry.Metrics
	path       string
	maxBody    int64
	apiKey     string
	lockout    *auth.Lockout
	version    string
	startTime  time.Time
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics exposes m on GET /metrics.
func WithMetrics(m *telemetry.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithPath sets the protocol endpoint path.
func WithPath(path string) ServerOption {
	return func(s *Server) { s.path = path }
}

// WithMaxBodyBytes sets the request body cap.
func WithMaxBodyBytes(n int64) ServerOption {
	return func(s *Server) { s.maxBody = n }
}

// WithAPIKey requires a bearer token on every route except /health.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) { s.apiKey = key }
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// NewServer creates the HTTP transport.
func NewServer(d *Dispatcher, opts ...ServerOption) *Server {
	s := &Server{
		dispatcher: d,
		logger:     slog.Default(),
		path:       "/mcp",
		maxBody:    DefaultMaxBodyBytes,
		lockout:    auth.NewLockout(),
		version:    "dev",
		startTime:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+s.path, s.handleRPC)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	s.mux = mux
	return s
}

// Handler returns the HTTP handler for use with httptest or custom servers.
func (s *Server) Handler() http.Handler {
	return auth.Middleware(s.apiKey, []string{"/health"}, s.lockout)(s.mux)
}

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return l.Close()
	}
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("http transport starting", "addr", l.Addr().String(), "path", s.path, "auth", s.apiKey != "")
	err := srv.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.server
	s.mu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "Content-Type must be application/json")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge,
				rpc.NewErrorResponse(nil, rpc.ErrInvalidRequest("request body exceeds "+strconv.FormatInt(s.maxBody, 10)+" bytes")))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "Could not read request body")
		return
	}

	ctx := telemetry.WithCorrelationID(r.Context(), r.Header.Get("X-Request-ID"))
	resp := s.dispatcher.Handle(ctx, ratelimit.ClientID(r), body)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	status := http.StatusOK
	if resp.Error != nil && resp.Error.Code == rpc.CodeRateLimitExceeded {
		status = http.StatusTooManyRequests
		if data, ok := resp.Error.Data.(rpc.RateLimitData); ok {
			w.Header().Set("Retry-After", strconv.Itoa(max(data.RetryAfterSeconds, 1)))
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
		"version": s.version,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}
