package sandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/szaher/cppmcp/internal/telemetry"
)

// Manager creates and tears down job scopes.
type Manager struct {
	cfg     Config
	logger  *slog.Logger
	metrics *telemetry.Metrics
	remove  func(string) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithRemoveFunc replaces os.RemoveAll for scope teardown.
func WithRemoveFunc(fn func(string) error) Option {
	return func(m *Manager) { m.remove = fn }
}

// NewManager creates a scope manager.
func NewManager(cfg Config, opts ...Option) *Manager {
	if cfg.SourceFilename == "" {
		cfg.SourceFilename = DefaultSourceFilename
	}
	if cfg.CleanupRetries <= 0 {
		cfg.CleanupRetries = 1
	}
	m := &Manager{
		cfg:    cfg,
		logger: slog.Default(),
		remove: os.RemoveAll,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Root returns the directory scopes are created under.
func (m *Manager) Root() string {
	if m.cfg.Root != "" {
		return m.cfg.Root
	}
	return os.TempDir()
}

// Scope is one job's private directory. It is owned by exactly one job and
// must be closed on every exit path.
type Scope struct {
	Name       string
	Dir        string
	SourcePath string

	m    *Manager
	once sync.Once
	err  error
}

// Open creates a new uniquely named scope and writes source into its
// canonical source file. On failure nothing is left on disk.
func (m *Manager) Open(source string) (*Scope, error) {
	root := m.Root()
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create scope root: %w", err)
	}

	name := "cppmcp-" + strings.ToLower(ulid.Make().String())
	dir := filepath.Join(root, name)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create scope dir: %w", err)
	}

	s := &Scope{
		Name:       name,
		Dir:        dir,
		SourcePath: filepath.Join(dir, m.cfg.SourceFilename),
		m:          m,
	}
	if err := os.WriteFile(s.SourcePath, []byte(source), 0o600); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("write source: %w", err)
	}
	return s, nil
}

// Close removes the scope directory, retrying with a fixed delay to ride out
// transient locks. Only the first call does any work. A failure is logged
// and returned, but callers treat it as non-fatal.
func (s *Scope) Close() error {
	s.once.Do(func() { s.err = s.m.teardown(s.Dir) })
	return s.err
}

func (m *Manager) teardown(dir string) error {
	var lastErr error
	for attempt := 1; attempt <= m.cfg.CleanupRetries; attempt++ {
		lastErr = m.remove(dir)
		if lastErr == nil {
			if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			lastErr = fmt.Errorf("scope directory still present")
		}
		if attempt < m.cfg.CleanupRetries && m.cfg.CleanupDelay > 0 {
			time.Sleep(m.cfg.CleanupDelay)
		}
	}

	err := &CleanupError{Dir: dir, Attempts: m.cfg.CleanupRetries, Err: lastErr}
	m.metrics.RecordCleanupFailure()
	m.logger.Warn("scope cleanup failed", "dir", dir, "attempts", m.cfg.CleanupRetries, "error", lastErr)
	return err
}
