package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// sweepThreshold bounds how many idle keys accumulate before a pass drops
// entries that have refilled completely (token bucket) or whose window has
// long closed (fixed window).
const sweepThreshold = 4096

// TokenBucket is a keyed token-bucket limiter: each key gets its own
// rate.Limiter refilling one token per interval up to burst.
type TokenBucket struct {
	mu       sync.Mutex
	limiters map[string]*tokenEntry
	limit    rate.Limit
	interval time.Duration
	burst    int
}

type tokenEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewTokenBucket(interval time.Duration, burst int) *TokenBucket {
	return &TokenBucket{
		limiters: make(map[string]*tokenEntry),
		limit:    rate.Every(interval),
		interval: interval,
		burst:    burst,
	}
}

func (b *TokenBucket) Allow(key string) bool {
	return b.allowAt(key, time.Now())
}

func (b *TokenBucket) allowAt(key string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.limiters[key]
	if !ok {
		if len(b.limiters) >= sweepThreshold {
			b.sweep(now)
		}
		entry = &tokenEntry{limiter: rate.NewLimiter(b.limit, b.burst)}
		b.limiters[key] = entry
	}
	entry.lastSeen = now

	return entry.limiter.AllowN(now, 1)
}

// sweep drops keys idle long enough for their bucket to be full again; a full
// bucket behaves identically to a fresh one.
func (b *TokenBucket) sweep(now time.Time) {
	idle := time.Duration(b.burst) * b.interval
	for key, entry := range b.limiters {
		if now.Sub(entry.lastSeen) > idle {
			delete(b.limiters, key)
		}
	}
}

// FixedWindow is a keyed fixed-window limiter: at most limit calls per key in
// each window-sized interval starting at the key's first call.
type FixedWindow struct {
	mu      sync.Mutex
	windows map[string]*windowEntry
	window  time.Duration
	limit   int
}

type windowEntry struct {
	start time.Time
	count int
}

func NewFixedWindow(window time.Duration, limit int) *FixedWindow {
	return &FixedWindow{
		windows: make(map[string]*windowEntry),
		window:  window,
		limit:   limit,
	}
}

func (f *FixedWindow) Allow(key string) bool {
	return f.allowAt(key, time.Now())
}

func (f *FixedWindow) allowAt(key string, now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.windows[key]
	if !ok || now.Sub(entry.start) >= f.window {
		if len(f.windows) >= sweepThreshold {
			f.sweep(now)
		}
		f.windows[key] = &windowEntry{start: now, count: 1}
		return f.limit >= 1
	}

	if entry.count >= f.limit {
		return false
	}
	entry.count++
	return true
}

func (f *FixedWindow) sweep(now time.Time) {
	for key, entry := range f.windows {
		if now.Sub(entry.start) >= f.window {
			delete(f.windows, key)
		}
	}
}
