package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entries(pairs map[string]string, expiry *time.Time) map[string]Entry[string] {
	out := make(map[string]Entry[string], len(pairs))
	for k, v := range pairs {
		out[k] = Entry[string]{Value: v, Expiry: expiry}
	}
	return out
}

func TestGet_PopulatesOnMiss(t *testing.T) {
	var calls atomic.Int32
	c := NewExpiring(func(ctx context.Context, arg string) (map[string]Entry[string], error) {
		calls.Add(1)
		return entries(map[string]string{"a": "1", "b": "2"}, nil), nil
	})

	v, ok, err := c.Get(context.Background(), "arg", "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	assert.Equal(t, int32(1), calls.Load())

	// Fresh entries do not trigger another update.
	v, ok, err = c.Get(context.Background(), "arg", "b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", v)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGet_MissAfterRefresh(t *testing.T) {
	c := NewExpiring(func(ctx context.Context, arg string) (map[string]Entry[string], error) {
		return entries(map[string]string{"a": "1"}, nil), nil
	})

	_, ok, err := c.Get(context.Background(), "arg", "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGet_UpdateErrorLeavesCacheUntouched(t *testing.T) {
	boom := errors.New("db down")
	fail := false
	c := NewExpiring(func(ctx context.Context, arg string) (map[string]Entry[string], error) {
		if fail {
			return nil, boom
		}
		return entries(map[string]string{"a": "1"}, nil), nil
	})

	_, _, err := c.Get(context.Background(), "arg", "a")
	require.NoError(t, err)

	fail = true
	_, _, err = c.Get(context.Background(), "arg", "missing")
	assert.ErrorIs(t, err, boom)

	// The earlier contents survive the failed update.
	v, ok, err := c.Get(context.Background(), "arg", "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestGet_ExpiredEntryRefreshes(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	var calls atomic.Int32
	c := NewExpiring(func(ctx context.Context, arg string) (map[string]Entry[string], error) {
		if calls.Add(1) == 1 {
			return entries(map[string]string{"a": "stale"}, &past), nil
		}
		return entries(map[string]string{"a": "fresh"}, &future), nil
	}, WithClock[string, string, string](func() time.Time { return now }))

	// First fill produces an already-expired entry; Get refreshes again.
	_, _, err := c.Get(context.Background(), "arg", "a")
	require.NoError(t, err)

	v, ok, err := c.Get(context.Background(), "arg", "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "fresh", v)
}

func TestGetIgnoreExpiry_ReturnsExpiredEntry(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)

	c := NewExpiring(func(ctx context.Context, arg string) (map[string]Entry[string], error) {
		return entries(map[string]string{"a": "expired"}, &past), nil
	}, WithClock[string, string, string](func() time.Time { return now }))

	v, ok, err := c.GetIgnoreExpiry(context.Background(), "arg", "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "expired", v)

	// Plain Get refuses the same entry.
	_, ok, err = c.Get(context.Background(), "arg", "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestForceUpdate_RetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	c := NewExpiring(func(ctx context.Context, arg string) (map[string]Entry[string], error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("transient")
		}
		return entries(map[string]string{"a": "1"}, nil), nil
	}, WithRetryDelay[string, string, string](time.Millisecond))

	require.NoError(t, c.ForceUpdate(context.Background(), "arg"))
	assert.Equal(t, int32(3), calls.Load())

	v, ok, err := c.Get(context.Background(), "arg", "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestForceUpdate_StopsOnContextCancel(t *testing.T) {
	c := NewExpiring(func(ctx context.Context, arg string) (map[string]Entry[string], error) {
		return nil, errors.New("always failing")
	}, WithRetryDelay[string, string, string](10*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := c.ForceUpdate(ctx, "arg")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGetSync_MissSchedulesBackgroundRefresh(t *testing.T) {
	refreshed := make(chan struct{})
	var once sync.Once
	c := NewExpiring(func(ctx context.Context, arg string) (map[string]Entry[string], error) {
		once.Do(func() { close(refreshed) })
		return entries(map[string]string{"a": "1"}, nil), nil
	})

	_, ok := c.GetSync("arg", "a")
	assert.False(t, ok)

	select {
	case <-refreshed:
	case <-time.After(time.Second):
		t.Fatal("background refresh never ran")
	}
}

func TestSingleFlight_ConcurrentMissesUpdateOnce(t *testing.T) {
	var calls atomic.Int32
	c := NewExpiring(func(ctx context.Context, arg string) (map[string]Entry[string], error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return entries(map[string]string{"a": "1"}, nil), nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, ok, err := c.Get(context.Background(), "arg", "a")
			assert.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "1", v)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestClear(t *testing.T) {
	c := NewExpiring(func(ctx context.Context, arg string) (map[string]Entry[string], error) {
		return entries(map[string]string{"a": "1"}, nil), nil
	})

	_, _, err := c.Get(context.Background(), "arg", "a")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
}
