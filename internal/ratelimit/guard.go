package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrRateLimitExceeded = errors.New("rate limit exceeded")

const (
	DefaultLimit      = 20
	DefaultWindow     = time.Minute
	defaultEvictEvery = 1024
)

// Guard is an in-process sliding-window limiter keyed by caller identity.
// Windows are kept per key and locked individually, so unrelated keys never
// wait on each other. Windows whose timestamps have all expired are dropped
// by a sweep that runs on every evictEvery-th admission.
type Guard struct {
	limit      int
	window     time.Duration
	now        func() time.Time
	evictEvery uint64

	mu      sync.Mutex
	windows map[string]*keyWindow
	checks  uint64
}

type keyWindow struct {
	mu      sync.Mutex
	stamps  []time.Time
	evicted bool
}

type Option func(*Guard)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

func WithWindow(d time.Duration) Option {
	return func(g *Guard) { g.window = d }
}

// WithEvictEvery sets how many admissions pass between sweeps. Zero disables sweeping.
func WithEvictEvery(n uint64) Option {
	return func(g *Guard) { g.evictEvery = n }
}

func NewGuard(limit int, opts ...Option) *Guard {
	if limit <= 0 {
		limit = DefaultLimit
	}
	g := &Guard{
		limit:      limit,
		window:     DefaultWindow,
		now:        time.Now,
		evictEvery: defaultEvictEvery,
		windows:    make(map[string]*keyWindow),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guard) Limit() int { return g.limit }

// Admit records a request for key or returns ErrRateLimitExceeded when the
// key already has limit requests inside the trailing window.
func (g *Guard) Admit(_ context.Context, key string) error {
	for {
		w := g.windowFor(key)

		w.mu.Lock()
		if w.evicted {
			// Swept between lookup and lock; fetch the replacement.
			w.mu.Unlock()
			continue
		}
		now := g.now()
		w.purge(now.Add(-g.window))
		if len(w.stamps) >= g.limit {
			w.mu.Unlock()
			return ErrRateLimitExceeded
		}
		w.stamps = append(w.stamps, now)
		w.mu.Unlock()
		return nil
	}
}

// Len reports how many keys currently hold a window.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.windows)
}

// Sweep drops every window with no live timestamps and returns how many were removed.
func (g *Guard) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sweepLocked()
}

func (g *Guard) windowFor(key string) *keyWindow {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.checks++
	if g.evictEvery > 0 && g.checks%g.evictEvery == 0 {
		g.sweepLocked()
	}

	w, ok := g.windows[key]
	if !ok {
		w = &keyWindow{}
		g.windows[key] = w
	}
	return w
}

func (g *Guard) sweepLocked() int {
	cutoff := g.now().Add(-g.window)
	removed := 0
	for key, w := range g.windows {
		w.mu.Lock()
		w.purge(cutoff)
		if len(w.stamps) == 0 {
			w.evicted = true
			delete(g.windows, key)
			removed++
		}
		w.mu.Unlock()
	}
	return removed
}

// purge pops expired stamps from the front. Stamps are appended in clock
// order, so the first live one ends the scan.
func (w *keyWindow) purge(cutoff time.Time) {
	i := 0
	for i < len(w.stamps) && w.stamps[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	w.stamps = append(w.stamps[:0], w.stamps[i:]...)
}
