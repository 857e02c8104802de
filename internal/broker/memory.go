package broker

import (
	"context"
	"sync"
	"time"
)

// MemoryBroker is an in-process task queue. Delays run on timers, so tasks
// pending a delay are lost on shutdown; acceptable for the single-node
// deployments and tests it serves.
type MemoryBroker struct {
	tasks chan Task
	done  chan struct{}

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
}

// NewMemoryBroker creates an in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		tasks:  make(chan Task, 1024),
		done:   make(chan struct{}),
		timers: map[*time.Timer]struct{}{},
	}
}

// Enqueue publishes a task, holding it back for its delay.
func (b *MemoryBroker) Enqueue(ctx context.Context, task Task) error {
	if task.DelaySeconds <= 0 {
		select {
		case b.tasks <- task:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	var timer *time.Timer
	timer = time.AfterFunc(time.Duration(task.DelaySeconds)*time.Second, func() {
		b.mu.Lock()
		delete(b.timers, timer)
		closed := b.closed
		b.mu.Unlock()
		if closed {
			return
		}
		// Never block past Close, even with a full queue.
		select {
		case b.tasks <- task:
		case <-b.done:
		}
	})
	b.timers[timer] = struct{}{}
	return nil
}

// Consume delivers tasks to handler until ctx is cancelled.
func (b *MemoryBroker) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task, ok := <-b.tasks:
			if !ok {
				return nil
			}
			if err := handler(ctx, task); err != nil {
				// Redeliver a bounded number of times, then drop; the
				// transmitter records terminal failures itself.
				if task.Redeliveries < maxRedeliveries {
					task.Redeliveries++
					select {
					case b.tasks <- task:
					default:
					}
				}
				continue
			}
		}
	}
}

// Close stops pending delay timers. Tasks already queued stay deliverable.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)
	for timer := range b.timers {
		timer.Stop()
	}
	b.timers = map[*time.Timer]struct{}{}
	return nil
}

var _ Broker = (*MemoryBroker)(nil)
