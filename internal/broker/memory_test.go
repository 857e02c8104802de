package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBrokerDeliversInOrder(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())

	for _, name := range []string{"first", "second", "third"} {
		task, err := NewTask(name, 0, map[string]string{"k": name})
		require.NoError(t, err)
		require.NoError(t, b.Enqueue(ctx, task))
	}

	var got []string
	err := make(chan error, 1)
	go func() {
		err <- b.Consume(ctx, func(_ context.Context, task Task) error {
			got = append(got, task.Name)
			if len(got) == 3 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case e := <-err:
		assert.ErrorIs(t, e, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("consume did not finish")
	}
	assert.Equal(t, []string{"first", "second", "third"}, got)
}

func TestMemoryBrokerRedeliversFailedTaskTwice(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())

	bad, err := NewTask("bad", 0, nil)
	require.NoError(t, err)
	good, err := NewTask("good", 0, nil)
	require.NoError(t, err)
	require.NoError(t, b.Enqueue(ctx, bad))
	require.NoError(t, b.Enqueue(ctx, good))

	var seen []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Consume(ctx, func(_ context.Context, task Task) error {
			seen = append(seen, task.Name)
			if len(seen) == 4 {
				cancel()
			}
			if task.Name == "bad" {
				return errors.New("handler failure")
			}
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consume did not finish")
	}
	// The failing task comes back twice as a safety net, then drops.
	// Redeliveries queue behind whatever is already waiting.
	assert.Equal(t, []string{"bad", "good", "bad", "bad"}, seen)
}

func TestMemoryBrokerHonorsDelay(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	task, err := NewTask("delayed", 1, nil)
	require.NoError(t, err)
	start := time.Now()
	require.NoError(t, b.Enqueue(ctx, task))

	var elapsed time.Duration
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Consume(ctx, func(context.Context, Task) error {
			elapsed = time.Since(start)
			cancel()
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("delayed task never arrived")
	}
	assert.GreaterOrEqual(t, elapsed, time.Second)
}

func TestMemoryBrokerCloseStopsPendingTimers(t *testing.T) {
	b := NewMemoryBroker()
	task, err := NewTask("late", 3600, nil)
	require.NoError(t, err)
	require.NoError(t, b.Enqueue(context.Background(), task))

	require.NoError(t, b.Close())
	// Close is idempotent and enqueue after close is a silent no-op.
	require.NoError(t, b.Close())
	require.NoError(t, b.Enqueue(context.Background(), task))
}

func TestMemoryBrokerCloseWithFullQueue(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	filler, err := NewTask("filler", 0, nil)
	require.NoError(t, err)
	for i := 0; i < cap(b.tasks); i++ {
		require.NoError(t, b.Enqueue(ctx, filler))
	}

	// A delay timer firing into the full queue parks on the done channel
	// instead of the send, so Close releases it.
	delayed, err := NewTask("delayed", 1, nil)
	require.NoError(t, err)
	require.NoError(t, b.Enqueue(ctx, delayed))
	time.Sleep(1500 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- b.Close() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("close did not return")
	}
}
