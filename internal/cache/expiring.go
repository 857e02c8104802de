// Package cache provides the expiring in-process cache used for
// certificate scope lookups and rotating credentials.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultRetryDelay is the pause between failed refresh attempts in
// ForceUpdate.
const DefaultRetryDelay = time.Second

// Entry is a cached value with an optional expiry. A nil Expiry never
// expires. Expiry is evaluated against wall-clock UTC.
type Entry[V any] struct {
	Value  V
	Expiry *time.Time
}

func (e Entry[V]) expired(now time.Time) bool {
	return e.Expiry != nil && !now.Before(*e.Expiry)
}

// UpdateFunc produces the complete new cache contents. The cache is
// replaced all-or-nothing: an error leaves existing entries untouched.
type UpdateFunc[A any, K comparable, V any] func(ctx context.Context, arg A) (map[K]Entry[V], error)

// Expiring is a keyed cache with per-entry expiry and single-flight
// refresh. The exclusive lock serializes writers, so concurrent misses on
// the same instance trigger exactly one update call.
type Expiring[A any, K comparable, V any] struct {
	mu         sync.RWMutex
	entries    map[K]Entry[V]
	update     UpdateFunc[A, K, V]
	retryDelay time.Duration
	now        func() time.Time
}

// Option customizes cache construction.
type Option[A any, K comparable, V any] func(*Expiring[A, K, V])

// WithRetryDelay overrides the ForceUpdate retry delay.
func WithRetryDelay[A any, K comparable, V any](d time.Duration) Option[A, K, V] {
	return func(c *Expiring[A, K, V]) { c.retryDelay = d }
}

// WithClock overrides the time source, for tests.
func WithClock[A any, K comparable, V any](now func() time.Time) Option[A, K, V] {
	return func(c *Expiring[A, K, V]) { c.now = now }
}

// NewExpiring constructs a cache around the given update function.
func NewExpiring[A any, K comparable, V any](update UpdateFunc[A, K, V], opts ...Option[A, K, V]) *Expiring[A, K, V] {
	c := &Expiring[A, K, V]{
		entries:    make(map[K]Entry[V]),
		update:     update,
		retryDelay: DefaultRetryDelay,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the fresh value for key, refreshing the whole cache on a miss
// or expired entry. Returns ok=false when the refreshed contents still lack
// the key. Update errors propagate without mutating the cache.
func (c *Expiring[A, K, V]) Get(ctx context.Context, arg A, key K) (V, bool, error) {
	c.mu.RLock()
	entry, found := c.entries[key]
	now := c.now()
	c.mu.RUnlock()
	if found && !entry.expired(now) {
		return entry.Value, true, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-check: another caller may have refreshed while we waited.
	entry, found = c.entries[key]
	if found && !entry.expired(c.now()) {
		return entry.Value, true, nil
	}

	if err := c.refreshLocked(ctx, arg); err != nil {
		var zero V
		return zero, false, err
	}

	entry, found = c.entries[key]
	if !found || entry.expired(c.now()) {
		var zero V
		return zero, false, nil
	}
	return entry.Value, true, nil
}

// GetIgnoreExpiry behaves like Get but, after attempting a refresh, returns
// an entry even when it is expired.
func (c *Expiring[A, K, V]) GetIgnoreExpiry(ctx context.Context, arg A, key K) (V, bool, error) {
	c.mu.RLock()
	entry, found := c.entries[key]
	now := c.now()
	c.mu.RUnlock()
	if found && !entry.expired(now) {
		return entry.Value, true, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, found = c.entries[key]
	if found && !entry.expired(c.now()) {
		return entry.Value, true, nil
	}

	if err := c.refreshLocked(ctx, arg); err != nil {
		var zero V
		return zero, false, err
	}

	entry, found = c.entries[key]
	if !found {
		var zero V
		return zero, false, nil
	}
	return entry.Value, true, nil
}

// GetSync is a lock-free read for callers that cannot block on a refresh.
// On a miss it schedules a best-effort background ForceUpdate and reports
// ok=false.
func (c *Expiring[A, K, V]) GetSync(arg A, key K) (V, bool) {
	c.mu.RLock()
	entry, found := c.entries[key]
	now := c.now()
	c.mu.RUnlock()

	if found && !entry.expired(now) {
		return entry.Value, true
	}

	go func() {
		if err := c.ForceUpdate(context.Background(), arg); err != nil {
			slog.Warn("background cache refresh abandoned", slog.Any("error", err))
		}
	}()

	var zero V
	return zero, false
}

// ForceUpdate refreshes the cache, retrying failed updates with the
// configured delay until one succeeds or ctx is cancelled.
func (c *Expiring[A, K, V]) ForceUpdate(ctx context.Context, arg A) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		err := c.refreshLocked(ctx, arg)
		if err == nil {
			return nil
		}
		slog.Warn("cache update failed, retrying",
			slog.Duration("delay", c.retryDelay),
			slog.Any("error", err),
		)

		timer := time.NewTimer(c.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Clear drops all entries atomically.
func (c *Expiring[A, K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]Entry[V])
}

// Len reports the number of cached entries, expired or not.
func (c *Expiring[A, K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Expiring[A, K, V]) refreshLocked(ctx context.Context, arg A) error {
	fresh, err := c.update(ctx, arg)
	if err != nil {
		return err
	}
	c.entries = fresh
	return nil
}
