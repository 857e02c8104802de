// Package broker carries background tasks between the API server and the
// notification workers. Two implementations exist: an in-process queue for
// single-node deployments and tests, and RabbitMQ for everything else.
package broker

import (
	"context"
	"encoding/json"
)

// Task names understood by the notification workers.
const (
	// TaskTransmitNotification delivers one notification to one
	// subscription endpoint.
	TaskTransmitNotification = "transmit_notification"
	// TaskCheckDBUpsert re-reads recently committed rows and fans them out
	// to matching subscriptions.
	TaskCheckDBUpsert = "check_db_upsert"
)

// Task is one unit of background work. DelaySeconds holds the task back
// before it becomes visible to consumers; the retry ladder is built on it.
// Redeliveries counts broker-level retries after handler errors.
type Task struct {
	Name         string          `json:"name"`
	DelaySeconds int             `json:"delay_seconds"`
	Redeliveries int             `json:"redeliveries,omitempty"`
	Payload      json.RawMessage `json:"payload"`
}

// maxRedeliveries bounds the broker-level safety net. Scheduled retries
// (the transmit ladder) are the handler's own re-enqueues, not these.
const maxRedeliveries = 2

// NewTask marshals payload into a task.
func NewTask(name string, delaySeconds int, payload any) (Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Task{}, err
	}
	return Task{Name: name, DelaySeconds: delaySeconds, Payload: raw}, nil
}

// Handler processes one task. A returned error redelivers the task up to
// maxRedeliveries times before it is dropped; scheduled retries beyond
// that are the handler's responsibility via re-enqueue.
type Handler func(ctx context.Context, task Task) error

// Broker is the task transport contract.
type Broker interface {
	// Enqueue publishes a task, honoring its delay.
	Enqueue(ctx context.Context, task Task) error
	// Consume blocks, delivering tasks to handler until ctx is cancelled.
	Consume(ctx context.Context, handler Handler) error
	Close() error
}
