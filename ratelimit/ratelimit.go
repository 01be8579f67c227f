// Package ratelimit guards the status-check endpoint against excessive
// polling, per client and, more tightly, per invoice.
package ratelimit

import (
	"sync"
	"time"
)

// Window and request budgets for the status-check endpoint. A single invoice
// only needs infrequent checks, so its budget is roughly a third of the
// per-client budget.
const (
	DefaultWindow      = time.Minute
	DefaultClientLimit = 30
)

// HashLimit derives the stricter per-invoice budget from a client budget.
func HashLimit(clientLimit int) int {
	limit := clientLimit / 3
	if limit < 5 {
		limit = 5
	}
	return limit
}

// Decision is the outcome of an Allow call.
type Decision struct {
	Allowed bool

	// RetryAfter is the remaining window time when the request was denied.
	RetryAfter time.Duration

	// Remaining is the budget left in the current window.
	Remaining int
}

type entry struct {
	count   int
	resetAt time.Time
}

// Limiter counts requests per key in fixed windows. It is an explicit
// injectable object with a defined lifecycle, not ambient module state, so
// it can be reset between tests. Counters mutate under one mutex
// (increment-and-compare, never read-then-write).
type Limiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	entries map[string]*entry

	now func() time.Time

	sweepEvery time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithSweepInterval overrides how often expired windows are swept.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Limiter) { l.sweepEvery = d }
}

// NewLimiter creates a limiter allowing max requests per key per window and
// starts the periodic sweep that bounds memory growth. Call Stop when done.
func NewLimiter(window time.Duration, max int, opts ...Option) *Limiter {
	l := &Limiter{
		window:     window,
		max:        max,
		entries:    make(map[string]*entry),
		now:        time.Now,
		sweepEvery: window,
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.sweepLoop()
	return l
}

// Allow counts a request for the key and decides whether it may proceed.
// The first request over the budget is denied with the remaining window time.
func (l *Limiter) Allow(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok || now.After(e.resetAt) {
		l.entries[key] = &entry{count: 1, resetAt: now.Add(l.window)}
		return Decision{Allowed: true, Remaining: l.max - 1}
	}

	e.count++
	if e.count > l.max {
		retryAfter := e.resetAt.Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return Decision{RetryAfter: retryAfter}
	}
	return Decision{Allowed: true, Remaining: l.max - e.count}
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Stop terminates the sweep goroutine. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.removeExpired()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) removeExpired() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, e := range l.entries {
		if now.After(e.resetAt) {
			delete(l.entries, key)
		}
	}
}
