// Package config loads server settings from YAML and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/szaher/cppmcp/internal/executor"
	"github.com/szaher/cppmcp/internal/ratelimit"
	"github.com/szaher/cppmcp/internal/sandbox"
	"github.com/szaher/cppmcp/internal/telemetry"
	"github.com/szaher/cppmcp/internal/toolchain"
	"github.com/szaher/cppmcp/internal/validation"
)

// Config is the complete server configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Executor   ExecutorConfig   `yaml:"executor"`
	Scope      ScopeConfig      `yaml:"scope"`
	Validation ValidationConfig `yaml:"validation"`
	Toolchain  ToolchainConfig  `yaml:"toolchain"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	Path            string        `yaml:"path"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RateLimitConfig sets the per-client quotas.
type RateLimitConfig struct {
	PerMinute     int           `yaml:"per_minute"`
	PerHour       int           `yaml:"per_hour"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// ExecutorConfig bounds job execution.
type ExecutorConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	SlotWait      time.Duration `yaml:"slot_wait"`
	JobTimeout    time.Duration `yaml:"job_timeout"`
	FallbackStd   string        `yaml:"fallback_std"`
}

// ScopeConfig controls job resource scopes.
type ScopeConfig struct {
	Root           string        `yaml:"root"`
	SourceFilename string        `yaml:"source_filename"`
	CleanupRetries int           `yaml:"cleanup_retries"`
	CleanupDelay   time.Duration `yaml:"cleanup_delay"`
}

// ValidationConfig is the security policy applied to tool calls.
type ValidationConfig struct {
	MaxSourceBytes int      `yaml:"max_source_bytes"`
	MaxDefinitions int      `yaml:"max_definitions"`
	DeniedFlags    []string `yaml:"denied_flags"`
}

// ToolchainConfig selects the processing engine.
type ToolchainConfig struct {
	Binary      string `yaml:"binary"`
	ASTMaxDepth int    `yaml:"ast_max_depth"`
}

// Default returns the built-in configuration.
func Default() *Config {
	rl := ratelimit.DefaultConfig()
	ex := executor.DefaultConfig()
	sc := sandbox.DefaultConfig()
	pol := validation.DefaultPolicy()
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			Path:            "/mcp",
			MaxBodyBytes:    1 << 20,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		RateLimit: RateLimitConfig{
			PerMinute:     rl.PerMinute,
			PerHour:       rl.PerHour,
			SweepInterval: rl.SweepInterval,
		},
		Executor: ExecutorConfig{
			MaxConcurrent: ex.MaxConcurrent,
			SlotWait:      ex.SlotWait,
			JobTimeout:    ex.JobTimeout,
			FallbackStd:   ex.FallbackStd,
		},
		Scope: ScopeConfig{
			SourceFilename: sc.SourceFilename,
			CleanupRetries: sc.CleanupRetries,
			CleanupDelay:   sc.CleanupDelay,
		},
		Validation: ValidationConfig{
			MaxSourceBytes: pol.MaxSourceBytes,
			MaxDefinitions: pol.MaxDefinitions,
			DeniedFlags:    pol.DeniedFlags,
		},
		Toolchain: ToolchainConfig{
			Binary:      toolchain.DefaultBinary,
			ASTMaxDepth: toolchain.DefaultMaxDepth,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path yields the defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", filepath.Base(path), err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides settings from CPPMCP_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("CPPMCP_ADDR", &c.Server.Addr)
	str("CPPMCP_LOG_LEVEL", &c.Log.Level)
	str("CPPMCP_LOG_FORMAT", &c.Log.Format)
	str("CPPMCP_CLANG", &c.Toolchain.Binary)
	str("CPPMCP_SCOPE_ROOT", &c.Scope.Root)

	// CPPMCP_RATE_LIMIT is "perMinute:perHour", e.g. "60:1000".
	if v, ok := lookup("CPPMCP_RATE_LIMIT"); ok && v != "" {
		minute, hour, _ := strings.Cut(v, ":")
		n, err := strconv.Atoi(minute)
		if err != nil {
			return fmt.Errorf("CPPMCP_RATE_LIMIT: %w", err)
		}
		c.RateLimit.PerMinute = n
		if hour != "" {
			if n, err = strconv.Atoi(hour); err != nil {
				return fmt.Errorf("CPPMCP_RATE_LIMIT: %w", err)
			}
			c.RateLimit.PerHour = n
		}
	}

	return errors.Join(
		num("CPPMCP_MAX_CONCURRENT", &c.Executor.MaxConcurrent),
		num("CPPMCP_MAX_SOURCE_BYTES", &c.Validation.MaxSourceBytes),
		num("CPPMCP_AST_MAX_DEPTH", &c.Toolchain.ASTMaxDepth),
		dur("CPPMCP_SLOT_WAIT", &c.Executor.SlotWait),
		dur("CPPMCP_JOB_TIMEOUT", &c.Executor.JobTimeout),
	)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !strings.HasPrefix(c.Server.Path, "/") {
		bad("server.path must start with /, got %q", c.Server.Path)
	}
	if c.Server.MaxBodyBytes <= 0 {
		bad("server.max_body_bytes must be positive")
	}
	if _, err := telemetry.ParseLevel(c.Log.Level); err != nil {
		bad("log.level: %v", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		bad("log.format must be json or text, got %q", c.Log.Format)
	}
	if c.RateLimit.PerMinute <= 0 || c.RateLimit.PerHour <= 0 {
		bad("rate_limit.per_minute and rate_limit.per_hour must be positive")
	}
	if c.RateLimit.SweepInterval <= 0 {
		bad("rate_limit.sweep_interval must be positive")
	}
	if c.Executor.MaxConcurrent <= 0 {
		bad("executor.max_concurrent must be positive")
	}
	if c.Executor.SlotWait <= 0 || c.Executor.JobTimeout <= 0 {
		bad("executor.slot_wait and executor.job_timeout must be positive")
	}
	if !strings.HasPrefix(c.Executor.FallbackStd, "c++") && !strings.HasPrefix(c.Executor.FallbackStd, "gnu++") {
		bad("executor.fallback_std must name a C++ standard, got %q", c.Executor.FallbackStd)
	}
	if name := c.Scope.SourceFilename; name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		bad("scope.source_filename must be a plain file name, got %q", name)
	}
	if c.Scope.CleanupRetries <= 0 {
		bad("scope.cleanup_retries must be positive")
	}
	if c.Scope.CleanupDelay < 0 {
		bad("scope.cleanup_delay must not be negative")
	}
	if c.Validation.MaxSourceBytes <= 0 {
		bad("validation.max_source_bytes must be positive")
	}
	if c.Validation.MaxDefinitions < 0 {
		bad("validation.max_definitions must not be negative")
	}
	for _, f := range c.Validation.DeniedFlags {
		if strings.TrimSpace(f) == "" {
			bad("validation.denied_flags must not contain blank entries")
			break
		}
	}
	if c.Toolchain.Binary == "" {
		bad("toolchain.binary must be set")
	}
	if c.Toolchain.ASTMaxDepth <= 0 {
		bad("toolchain.ast_max_depth must be positive")
	}
	return errors.Join(errs...)
}

// ExecutorSettings converts to executor settings.
func (c *Config) ExecutorSettings() executor.Config {
	return executor.Config{
		MaxConcurrent: c.Executor.MaxConcurrent,
		SlotWait:      c.Executor.SlotWait,
		JobTimeout:    c.Executor.JobTimeout,
		FallbackStd:   c.Executor.FallbackStd,
		MaxDepth:      c.Toolchain.ASTMaxDepth,
	}
}

// ScopeSettings converts to sandbox settings.
func (c *Config) ScopeSettings() sandbox.Config {
	return sandbox.Config{
		Root:           c.Scope.Root,
		SourceFilename: c.Scope.SourceFilename,
		CleanupRetries: c.Scope.CleanupRetries,
		CleanupDelay:   c.Scope.CleanupDelay,
	}
}

// RateLimitSettings converts to rate limiter settings.
func (c *Config) RateLimitSettings() ratelimit.Config {
	return ratelimit.Config{
		PerMinute:     c.RateLimit.PerMinute,
		PerHour:       c.RateLimit.PerHour,
		SweepInterval: c.RateLimit.SweepInterval,
	}
}

// Policy converts to the validation policy.
func (c *Config) Policy() validation.Policy {
	return validation.Policy{
		MaxSourceBytes: c.Validation.MaxSourceBytes,
		MaxDefinitions: c.Validation.MaxDefinitions,
		DeniedFlags:    append([]string(nil), c.Validation.DeniedFlags...),
	}
}
