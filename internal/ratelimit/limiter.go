package ratelimit

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/szaher/cppmcp/internal/telemetry"
)

// Config holds rate limiting configuration.
type Config struct {
	PerMinute     int
	PerHour       int
	SweepInterval time.Duration
}

// DefaultConfig returns the default rate limit settings.
func DefaultConfig() Config {
	return Config{
		PerMinute:     60,
		PerHour:       1000,
		SweepInterval: time.Minute,
	}
}

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type limits struct {
	perMinute int
	perHour   int
}

// Limiter implements per-client dual-window rate limiting. Each client has
// its own atomically swapped Quota, so unrelated clients never contend on a
// shared lock.
type Limiter struct {
	clients       sync.Map // map[string]*atomic.Pointer[Quota]
	limits        atomic.Pointer[limits]
	sweepInterval time.Duration
	now           func() time.Time
	logger        *slog.Logger
	metrics       *telemetry.Metrics

	mu   sync.Mutex
	cron *cron.Cron
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

// New creates a rate limiter with the given configuration.
func New(cfg Config, opts ...Option) *Limiter {
	l := &Limiter{
		sweepInterval: cfg.SweepInterval,
		now:           time.Now,
		logger:        slog.Default(),
	}
	if l.sweepInterval <= 0 {
		l.sweepInterval = time.Minute
	}
	l.limits.Store(&limits{perMinute: cfg.PerMinute, perHour: cfg.PerHour})
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetLimits replaces the per-minute and per-hour ceilings. Existing client
// counters are kept.
func (l *Limiter) SetLimits(perMinute, perHour int) {
	l.limits.Store(&limits{perMinute: perMinute, perHour: perHour})
}

// Allow reports whether a request from clientID is admitted. Requests with
// an empty client ID are always rejected.
func (l *Limiter) Allow(clientID string) bool {
	return l.Check(clientID).Allowed
}

// Check charges one request to clientID and returns the decision with the
// client's remaining quota.
func (l *Limiter) Check(clientID string) Decision {
	if clientID == "" {
		return Decision{}
	}
	lim := l.limits.Load()
	now := l.now()

	var next Quota
	for {
		slot := l.slot(clientID, now)
		cur := slot.Load()
		if cur == nil {
			// Retired by Sweep; drop it so slot installs a fresh one.
			l.clients.CompareAndDelete(clientID, slot)
			continue
		}
		next = cur.TryConsume(now, lim.perMinute, lim.perHour)
		if slot.CompareAndSwap(cur, &next) {
			break
		}
	}

	d := Decision{
		Allowed:   next.Admitted,
		Remaining: next.Remaining(now, lim.perMinute, lim.perHour),
	}
	if !d.Allowed {
		d.RetryAfter = next.RetryAfter(now, lim.perMinute, lim.perHour)
		l.metrics.RecordRateLimited()
		l.logger.Warn("rate limit exceeded",
			"client", clientID,
			"minute_count", next.MinuteCount,
			"hour_count", next.HourCount,
			"retry_after", d.RetryAfter.String())
	}
	return d
}

// Remaining returns the number of requests clientID may still make. Unknown
// clients have a full quota; an empty client ID has none.
func (l *Limiter) Remaining(clientID string) int {
	if clientID == "" {
		return 0
	}
	lim := l.limits.Load()
	v, ok := l.clients.Load(clientID)
	if !ok {
		return min(lim.perMinute, lim.perHour)
	}
	q := v.(*atomic.Pointer[Quota]).Load()
	if q == nil {
		return min(lim.perMinute, lim.perHour)
	}
	return q.Remaining(l.now(), lim.perMinute, lim.perHour)
}

func (l *Limiter) slot(clientID string, now time.Time) *atomic.Pointer[Quota] {
	if v, ok := l.clients.Load(clientID); ok {
		return v.(*atomic.Pointer[Quota])
	}
	fresh := &atomic.Pointer[Quota]{}
	q := NewQuota(now)
	fresh.Store(&q)
	v, _ := l.clients.LoadOrStore(clientID, fresh)
	return v.(*atomic.Pointer[Quota])
}

// Sweep removes clients whose last request is older than the hour window and
// returns how many were evicted. A slot is retired by swapping its quota to
// nil, so a concurrent Check either lands before retirement (and the slot
// survives) or sees nil and starts over on a fresh slot.
func (l *Limiter) Sweep(now time.Time) int {
	evicted, kept := 0, 0
	l.clients.Range(func(key, value any) bool {
		slot := value.(*atomic.Pointer[Quota])
		cur := slot.Load()
		if cur == nil || (cur.Stale(now) && slot.CompareAndSwap(cur, nil)) {
			if l.clients.CompareAndDelete(key, value) {
				evicted++
			}
			return true
		}
		kept++
		return true
	})
	l.metrics.SetTrackedClients(kept)
	if evicted > 0 {
		l.logger.Debug("evicted idle rate limit clients", "evicted", evicted, "remaining", kept)
	}
	return evicted
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	n := 0
	l.clients.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Start schedules the periodic eviction sweep. It is a no-op if the sweep is
// already running.
func (l *Limiter) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cron != nil {
		return nil
	}

	c := cron.New()
	spec := fmt.Sprintf("@every %s", l.sweepInterval)
	if _, err := c.AddFunc(spec, func() { l.Sweep(l.now()) }); err != nil {
		return fmt.Errorf("schedule rate limit sweep: %w", err)
	}
	c.Start()
	l.cron = c
	return nil
}

// Stop halts the eviction sweep and waits for a running sweep to finish.
func (l *Limiter) Stop() {
	l.mu.Lock()
	c := l.cron
	l.cron = nil
	l.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}
