package auth

import (
	"sync"
	"time"
)

const (
	defaultMaxFailures = 10
	defaultWindow      = time.Minute
	defaultBlock       = 5 * time.Minute
	evictThreshold     = 1000
)

type failureRecord struct {
	failures     int
	windowStart  time.Time
	blockedUntil time.Time
}

// Lockout blocks clients after too many failed authentication attempts
// within a window.
type Lockout struct {
	mu          sync.Mutex
	records     map[string]*failureRecord
	maxFailures int
	window      time.Duration
	block       time.Duration
	now         func() time.Time
}

// NewLockout returns a tracker that blocks a client for five minutes after
// ten failures in one minute.
func NewLockout() *Lockout {
	return &Lockout{
		records:     make(map[string]*failureRecord),
		maxFailures: defaultMaxFailures,
		window:      defaultWindow,
		block:       defaultBlock,
		now:         time.Now,
	}
}

// Blocked reports whether client is locked out and for how much longer.
func (l *Lockout) Blocked(client string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[client]
	if !ok || rec.blockedUntil.IsZero() {
		return false, 0
	}
	now := l.now()
	if now.Before(rec.blockedUntil) {
		return true, rec.blockedUntil.Sub(now)
	}
	delete(l.records, client)
	return false, 0
}

// Failure records a failed attempt and reports whether client is now
// blocked.
func (l *Lockout) Failure(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec, ok := l.records[client]
	if !ok {
		rec = &failureRecord{windowStart: now}
		l.records[client] = rec
	}
	if now.Sub(rec.windowStart) > l.window {
		rec.failures = 0
		rec.windowStart = now
	}
	rec.failures++
	if rec.failures >= l.maxFailures {
		rec.blockedUntil = now.Add(l.block)
		return true
	}

	if len(l.records) > evictThreshold {
		l.evict(now)
	}
	return false
}

// Success clears the failure history of client.
func (l *Lockout) Success(client string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, client)
}

func (l *Lockout) evict(now time.Time) {
	for client, rec := range l.records {
		expiredBlock := !rec.blockedUntil.IsZero() && now.After(rec.blockedUntil)
		staleWindow := rec.blockedUntil.IsZero() && now.Sub(rec.windowStart) > l.window
		if expiredBlock || staleWindow {
			delete(l.records, client)
		}
	}
}
