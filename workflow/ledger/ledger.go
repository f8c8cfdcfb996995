// Package ledger implements the step execution ledger: a content-addressed result
// cache with TTL and at-most-one-build-per-fingerprint, used to make saga-engine
// recovery replays idempotent.
//
// The entry/TTL/eviction shape is grounded on
// ferg-cod3s-conexus/internal/orchestrator/state/cache.go's Cache/CacheEntry; the
// at-most-one-build contract is grounded on golang.org/x/sync/singleflight, which
// the teacher's own dependency graph already pulls in transitively via its otel
// stack and which this package promotes to a direct, load-bearing import.
package ledger

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Clock abstracts time so tests can control TTL expiry deterministically, per spec
// §3.6 ("expire by TTL") and §4.3 ("an injected monotonic clock").
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// entry is one cached build result.
type entry struct {
	value     any
	expiresAt time.Time
	createdAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Ledger is the step execution ledger. It is safe for concurrent use: readers and
// writers share a single sync.Mutex guarding the entry map, and the singleflight
// group serializes concurrent builds for the same fingerprint so at most one build
// runs at a time regardless of how many callers ask for it (spec §4.3, §8 invariant
// 4: "concurrent try_get for the same (stepId, fingerprint) during a build invokes
// the step exactly once").
type Ledger struct {
	mu      sync.Mutex
	entries map[string]*entry
	group   singleflight.Group
	clock   Clock

	defaultTTL time.Duration
	maxEntries int
}

// Config configures ledger capacity and default TTL. MaxEntries <= 0 means
// unbounded; DefaultTTL is used when GetOrBuild's own ttl argument is zero.
type Config struct {
	MaxEntries int
	DefaultTTL time.Duration
	Clock      Clock
}

func New(cfg Config) *Ledger {
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	return &Ledger{
		entries:    make(map[string]*entry),
		clock:      clock,
		defaultTTL: cfg.DefaultTTL,
		maxEntries: cfg.MaxEntries,
	}
}

// TryGet looks up fingerprint, returning (value, true) on a live (non-expired)
// hit, (nil, false) on a miss. A cache lookup never returns an error: per spec
// §4.3 "cache lookup failure degrades gracefully to a miss; it is never fatal."
func (l *Ledger) TryGet(fingerprint string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[fingerprint]
	if !ok {
		return nil, false
	}
	if e.expired(l.clock.Now()) {
		delete(l.entries, fingerprint)
		return nil, false
	}
	return e.value, true
}

// Cache stores value under fingerprint with the given ttl (0 uses the ledger's
// DefaultTTL; both zero means no expiry).
func (l *Ledger) Cache(fingerprint string, value any, ttl time.Duration) {
	if ttl == 0 {
		ttl = l.defaultTTL
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxEntries > 0 && len(l.entries) >= l.maxEntries {
		l.evictOldestLocked()
	}

	now := l.clock.Now()
	e := &entry{value: value, createdAt: now}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	l.entries[fingerprint] = e
}

// GetOrBuild combines TryGet and Cache with singleflight-backed build
// deduplication: on a miss, build runs exactly once per fingerprint even under
// concurrent callers, and a failed build releases the in-flight slot so the next
// caller re-attempts (spec §4.3: "Failures are not cached by default; a failed
// build releases the in-flight slot"). hit reports whether the value came from the
// cache rather than a fresh build.
func (l *Ledger) GetOrBuild(ctx context.Context, fingerprint string, ttl time.Duration, build func(ctx context.Context) (any, error)) (value any, hit bool, err error) {
	if v, ok := l.TryGet(fingerprint); ok {
		return v, true, nil
	}

	result, err, _ := l.group.Do(fingerprint, func() (interface{}, error) {
		if v, ok := l.TryGet(fingerprint); ok {
			return v, nil
		}
		v, buildErr := build(ctx)
		if buildErr != nil {
			return nil, buildErr
		}
		l.Cache(fingerprint, v, ttl)
		return v, nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, false, nil
}

// Evict removes fingerprint unconditionally.
func (l *Ledger) Evict(fingerprint string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, fingerprint)
}

// Len reports the number of live (possibly stale-but-not-yet-touched) entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// evictOldestLocked drops the single oldest entry by CreatedAt. Called with l.mu
// already held.
func (l *Ledger) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, e := range l.entries {
		if first || e.createdAt.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.createdAt
			first = false
		}
	}
	if oldestKey != "" {
		delete(l.entries, oldestKey)
	}
}
