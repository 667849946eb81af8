// Package ratelimit implements per-client dual-window (minute/hour) request
// quotas and the limiter that owns them.
package ratelimit

import "time"

const (
	// MinuteWindow is the length of the short quota window.
	MinuteWindow = time.Minute
	// HourWindow is the length of the long quota window; idle clients are
	// evicted once their last request is older than this.
	HourWindow = time.Hour
)

// Quota is the per-client window state. Values are immutable; TryConsume
// returns a new Quota rather than mutating the receiver.
type Quota struct {
	LastRequest time.Time
	MinuteStart time.Time
	HourStart   time.Time
	MinuteCount int
	HourCount   int
	Admitted    bool
}

// NewQuota returns the state for a client seen for the first time at now.
func NewQuota(now time.Time) Quota {
	return Quota{
		LastRequest: now,
		MinuteStart: now,
		HourStart:   now,
	}
}

// refresh resets any window that has fully elapsed.
func (q Quota) refresh(now time.Time) Quota {
	if now.Sub(q.MinuteStart) >= MinuteWindow {
		q.MinuteStart = now
		q.MinuteCount = 0
	}
	if now.Sub(q.HourStart) >= HourWindow {
		q.HourStart = now
		q.HourCount = 0
	}
	return q
}

// TryConsume charges one request against both windows and reports whether
// it is admitted. The counters advance even when the request is rejected,
// so clients that keep retrying stay throttled.
func (q Quota) TryConsume(now time.Time, minuteLimit, hourLimit int) Quota {
	q = q.refresh(now)
	q.LastRequest = now
	q.MinuteCount++
	q.HourCount++
	q.Admitted = q.MinuteCount <= minuteLimit && q.HourCount <= hourLimit
	return q
}

// Remaining returns how many more requests the client may make before either
// window rejects it.
func (q Quota) Remaining(now time.Time, minuteLimit, hourLimit int) int {
	q = q.refresh(now)
	remaining := min(minuteLimit-q.MinuteCount, hourLimit-q.HourCount)
	return max(remaining, 0)
}

// RetryAfter returns how long until the window that is currently exhausted
// resets. It returns zero when neither window is exhausted.
func (q Quota) RetryAfter(now time.Time, minuteLimit, hourLimit int) time.Duration {
	q = q.refresh(now)
	var wait time.Duration
	if q.HourCount >= hourLimit {
		wait = q.HourStart.Add(HourWindow).Sub(now)
	} else if q.MinuteCount >= minuteLimit {
		wait = q.MinuteStart.Add(MinuteWindow).Sub(now)
	}
	return max(wait, 0)
}

// Stale reports whether the client has been idle for longer than the hour
// window.
func (q Quota) Stale(now time.Time) bool {
	return now.Sub(q.LastRequest) > HourWindow
}
