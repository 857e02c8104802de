package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	amqpTaskQueue = "csip.tasks"
	// Delayed tasks park in a per-delay TTL queue whose dead-letter target
	// is the main task queue.
	amqpDelayQueuePrefix = "csip.tasks.delay."
)

// AMQPBroker is the RabbitMQ task transport. Delays use per-delay parking
// queues with a message TTL and a dead-letter route back to the main queue,
// so only the fixed retry-ladder delays ever create queues.
type AMQPBroker struct {
	conn    *amqp.Connection
	channel *amqp.Channel

	mu             sync.Mutex
	declaredDelays map[int]bool
}

// NewAMQPBroker connects to RabbitMQ and declares the main task queue.
func NewAMQPBroker(url string) (*AMQPBroker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	if _, err := channel.QueueDeclare(amqpTaskQueue, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring task queue: %w", err)
	}

	return &AMQPBroker{
		conn:           conn,
		channel:        channel,
		declaredDelays: map[int]bool{},
	}, nil
}

func (b *AMQPBroker) delayQueue(delaySeconds int) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	name := fmt.Sprintf("%s%d", amqpDelayQueuePrefix, delaySeconds)
	if b.declaredDelays[delaySeconds] {
		return name, nil
	}
	_, err := b.channel.QueueDeclare(name, true, false, false, false, amqp.Table{
		"x-message-ttl":             int32(delaySeconds * 1000),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": amqpTaskQueue,
	})
	if err != nil {
		return "", fmt.Errorf("declaring delay queue %s: %w", name, err)
	}
	b.declaredDelays[delaySeconds] = true
	return name, nil
}

// Enqueue publishes a task, honoring its delay.
func (b *AMQPBroker) Enqueue(ctx context.Context, task Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshaling task: %w", err)
	}

	queue := amqpTaskQueue
	if task.DelaySeconds > 0 {
		queue, err = b.delayQueue(task.DelaySeconds)
		if err != nil {
			return err
		}
	}

	return b.channel.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Consume delivers tasks to handler until ctx is cancelled. Each delivery
// is acked after the handler returns; a handler error republishes the task
// up to maxRedeliveries times before it is dropped.
func (b *AMQPBroker) Consume(ctx context.Context, handler Handler) error {
	deliveries, err := b.channel.ConsumeWithContext(ctx, amqpTaskQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("starting consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("rabbitmq delivery channel closed")
			}
			var task Task
			if err := json.Unmarshal(delivery.Body, &task); err != nil {
				slog.Warn("discarding malformed task", slog.Any("error", err))
				delivery.Nack(false, false)
				continue
			}
			if err := handler(ctx, task); err != nil {
				slog.Warn("task handler failed",
					slog.String("task", task.Name),
					slog.Int("redeliveries", task.Redeliveries),
					slog.Any("error", err),
				)
				if task.Redeliveries < maxRedeliveries {
					task.Redeliveries++
					task.DelaySeconds = 0
					if err := b.Enqueue(ctx, task); err != nil {
						slog.Warn("republishing failed task",
							slog.String("task", task.Name),
							slog.Any("error", err),
						)
					}
				}
			}
			delivery.Ack(false)
		}
	}
}

// Close shuts down the channel and connection.
func (b *AMQPBroker) Close() error {
	if err := b.channel.Close(); err != nil {
		b.conn.Close()
		return err
	}
	return b.conn.Close()
}

var _ Broker = (*AMQPBroker)(nil)
