package security

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rate limiter defaults.
const (
	DefaultRateLimitMaxEntries  = 10000
	DefaultRateLimitIdleTimeout = 30 * time.Minute
	defaultRateLimitSweep       = 5 * time.Minute
)

// RateLimitConfig configures a RateLimiter.
type RateLimitConfig struct {
	// Rate is the sustained number of requests per second per identifier.
	Rate float64

	// Burst is the bucket size per identifier.
	Burst int

	// MaxEntries bounds the number of tracked identifiers. Zero uses
	// DefaultRateLimitMaxEntries; negative means unbounded.
	MaxEntries int

	// IdleTimeout drops buckets that have not been used for this long.
	IdleTimeout time.Duration
}

type bucket struct {
	identifier string
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter is a token-bucket limiter keyed by identifier with LRU eviction.
type RateLimiter struct {
	cfg    RateLimitConfig
	logger *slog.Logger

	mu      sync.Mutex
	buckets map[string]*list.Element
	lru     *list.List

	evictions int64
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewRateLimiter creates a limiter and starts its idle sweep.
func NewRateLimiter(cfg RateLimitConfig, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = DefaultRateLimitMaxEntries
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultRateLimitIdleTimeout
	}
	if cfg.Burst <= 0 {
		cfg.Burst = max(1, int(cfg.Rate))
	}

	rl := &RateLimiter{
		cfg:     cfg,
		logger:  logger,
		buckets: make(map[string]*list.Element),
		lru:     list.New(),
		stop:    make(chan struct{}),
	}
	go rl.sweepLoop(defaultRateLimitSweep)
	return rl
}

// Allow reports whether one more request from identifier is permitted now.
func (rl *RateLimiter) Allow(identifier string) bool {
	return rl.allowAt(identifier, time.Now())
}

func (rl *RateLimiter) allowAt(identifier string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if elem, ok := rl.buckets[identifier]; ok {
		rl.lru.MoveToFront(elem)
		b := elem.Value.(*bucket)
		b.lastAccess = now
		return b.limiter.AllowN(now, 1)
	}

	if rl.cfg.MaxEntries > 0 && len(rl.buckets) >= rl.cfg.MaxEntries {
		rl.evictOldest()
	}

	b := &bucket{
		identifier: identifier,
		limiter:    rate.NewLimiter(rate.Limit(rl.cfg.Rate), rl.cfg.Burst),
		lastAccess: now,
	}
	rl.buckets[identifier] = rl.lru.PushFront(b)
	return b.limiter.AllowN(now, 1)
}

// evictOldest must be called with mu held.
func (rl *RateLimiter) evictOldest() {
	elem := rl.lru.Back()
	if elem == nil {
		return
	}
	b := rl.lru.Remove(elem).(*bucket)
	delete(rl.buckets, b.identifier)
	rl.evictions++
	rl.logger.Debug("Rate limiter LRU eviction",
		"evictions", rl.evictions,
		"entries", len(rl.buckets))
}

func (rl *RateLimiter) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			rl.sweep(now)
		case <-rl.stop:
			return
		}
	}
}

// sweep drops buckets idle for longer than IdleTimeout. The LRU list is
// ordered by access, so it walks from the back and stops at the first
// recent bucket.
func (rl *RateLimiter) sweep(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for elem := rl.lru.Back(); elem != nil; {
		b := elem.Value.(*bucket)
		if now.Sub(b.lastAccess) <= rl.cfg.IdleTimeout {
			break
		}
		prev := elem.Prev()
		rl.lru.Remove(elem)
		delete(rl.buckets, b.identifier)
		removed++
		elem = prev
	}
	if removed > 0 {
		rl.logger.Debug("Rate limiter sweep", "removed", removed, "remaining", len(rl.buckets))
	}
	return removed
}

// Len returns the number of tracked identifiers.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Stop ends the background sweep. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}
