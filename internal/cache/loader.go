package cache

import (
	"context"
	"sync"
	"time"
)

// LoadFunc fetches the value for a single key.
type LoadFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Loader is a per-key TTL cache with single-flight loads: concurrent misses
// on the same key trigger exactly one load call. Unlike Expiring, entries
// are filled one key at a time and never replaced wholesale.
type Loader[K comparable, V any] struct {
	mu       sync.Mutex
	entries  map[K]Entry[V]
	inflight map[K]chan struct{}
	load     LoadFunc[K, V]
	ttl      time.Duration
	now      func() time.Time
}

// LoaderOption customizes loader construction.
type LoaderOption[K comparable, V any] func(*Loader[K, V])

// WithLoaderClock overrides the time source, for tests.
func WithLoaderClock[K comparable, V any](now func() time.Time) LoaderOption[K, V] {
	return func(l *Loader[K, V]) { l.now = now }
}

// NewLoader constructs a loader cache with the given per-entry TTL.
func NewLoader[K comparable, V any](load LoadFunc[K, V], ttl time.Duration, opts ...LoaderOption[K, V]) *Loader[K, V] {
	l := &Loader[K, V]{
		entries:  make(map[K]Entry[V]),
		inflight: make(map[K]chan struct{}),
		load:     load,
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Get returns the cached value for key, loading it on a miss or expiry.
// Load errors are not cached.
func (l *Loader[K, V]) Get(ctx context.Context, key K) (V, error) {
	for {
		l.mu.Lock()
		if e, ok := l.entries[key]; ok && !e.expired(l.now()) {
			l.mu.Unlock()
			return e.Value, nil
		}

		if ch, inflight := l.inflight[key]; inflight {
			l.mu.Unlock()
			select {
			case <-ctx.Done():
				var zero V
				return zero, ctx.Err()
			case <-ch:
			}
			// The in-flight load finished; loop to pick up its result or
			// take over if it failed.
			continue
		}

		ch := make(chan struct{})
		l.inflight[key] = ch
		l.mu.Unlock()

		v, err := l.load(ctx, key)

		l.mu.Lock()
		delete(l.inflight, key)
		close(ch)
		if err == nil {
			expiry := l.now().Add(l.ttl)
			l.entries[key] = Entry[V]{Value: v, Expiry: &expiry}
		}
		l.mu.Unlock()
		return v, err
	}
}

// Invalidate drops the entry for key so the next Get reloads it.
func (l *Loader[K, V]) Invalidate(key K) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// Len reports the number of cached entries, expired or not.
func (l *Loader[K, V]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
