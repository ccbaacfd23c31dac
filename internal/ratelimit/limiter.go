// Package ratelimit provides a fixed-window per-client request throttle.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// DefaultWindow is the length of one counting window.
const DefaultWindow = time.Minute

// Decision is the outcome of a Check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds. Rejections always
// report at least one second so callers never spin.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter counts requests per identifier inside fixed windows.
// The key is the client identifier, never a session id, so callers cannot
// escape throttling by creating new sessions.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	period  time.Duration
	now     func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter allowing limit requests per period for each identifier.
func New(limit int, period time.Duration, opts ...Option) *Limiter {
	if period <= 0 {
		period = DefaultWindow
	}
	l := &Limiter{
		windows: make(map[string]*window),
		limit:   limit,
		period:  period,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check records a request for id and reports whether it may proceed.
func (l *Limiter) Check(id string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[id]
	if !ok || !now.Before(w.resetAt) {
		l.windows[id] = &window{count: 1, resetAt: now.Add(l.period)}
		return Decision{Allowed: true}
	}

	if w.count >= l.limit {
		return Decision{Allowed: false, RetryAfter: w.resetAt.Sub(now)}
	}

	w.count++
	return Decision{Allowed: true}
}

// Limit returns the per-window request cap.
func (l *Limiter) Limit() int {
	return l.limit
}

// Sweep removes identifiers whose window has elapsed and returns how many
// were dropped.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for id, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked identifiers.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
