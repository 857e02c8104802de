package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gridmesh/csip-core/internal/broker"
	"github.com/gridmesh/csip-core/internal/models"
	"github.com/gridmesh/csip-core/internal/pkg/ulid"
	"github.com/gridmesh/csip-core/internal/repository"
	"github.com/gridmesh/csip-core/internal/sep2"
)

// Notification delivery headers. Endpoints use the notification id for
// idempotent processing and the subscription href to correlate deliveries
// back to their registration.
const (
	HeaderNotificationID   = "X-Csip-Notification-Id"
	HeaderSubscriptionHref = "X-Csip-Subscription-Href"
)

// retryDelays is the backoff ladder in seconds, indexed by the number of
// failed attempts so far. A delivery is dropped once maxTransmitAttempts
// have failed.
var retryDelays = [...]int{10, 100, 300, 1800}

const maxTransmitAttempts = 4

// Transmitter POSTs rendered notifications to subscription endpoints and
// schedules retries through the broker. It keeps no state between
// attempts; every retry is a fresh task.
type Transmitter struct {
	client *http.Client
	logs   repository.TransmitLogRepository
	broker broker.Broker
	log    *slog.Logger
	now    func() time.Time
}

// NewTransmitter creates a transmitter with the given per-request timeout.
func NewTransmitter(timeout time.Duration, logs repository.TransmitLogRepository, b broker.Broker, log *slog.Logger) *Transmitter {
	return &Transmitter{
		client: &http.Client{Timeout: timeout},
		logs:   logs,
		broker: b,
		log:    log,
		now:    time.Now,
	}
}

// Transmit performs one delivery attempt. Delivery failures are absorbed
// into the retry ladder; only infrastructure errors (audit log writes,
// broker enqueues) propagate so the broker can surface them.
func (t *Transmitter) Transmit(ctx context.Context, p TransmitPayload) error {
	start := t.now()
	statusCode, errDetail := t.post(ctx, p)
	duration := t.now().Sub(start)

	entry := &models.TransmitNotificationLog{
		NotificationID:         p.NotificationID,
		CorrelationID:          ulid.New(),
		SubscriptionIDSnapshot: p.SubscriptionID,
		TransmitTime:           start,
		TransmitDurationMs:     int32(duration.Milliseconds()),
		Attempt:                p.Attempt,
		HTTPStatusCode:         int32(statusCode),
		ErrorDetails:           errDetail,
	}
	if err := t.logs.Create(ctx, entry); err != nil {
		return fmt.Errorf("recording transmit attempt: %w", err)
	}

	switch classify(statusCode, errDetail) {
	case outcomeSuccess:
		transmitAttempts.WithLabelValues("success").Inc()
		return nil
	case outcomeTerminal:
		transmitAttempts.WithLabelValues("terminal").Inc()
		t.log.Warn("notification rejected by endpoint",
			"notification_id", p.NotificationID, "subscription_id", p.SubscriptionID,
			"status", statusCode, "attempt", p.Attempt)
		return nil
	default:
		transmitAttempts.WithLabelValues("retryable").Inc()
		return t.scheduleRetry(ctx, p, statusCode)
	}
}

func (t *Transmitter) post(ctx context.Context, p TransmitPayload) (int, *string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.NotificationURI, bytes.NewReader(p.Body))
	if err != nil {
		detail := err.Error()
		return 0, &detail
	}
	req.Header.Set("Content-Type", sep2.ContentType)
	req.Header.Set(HeaderNotificationID, p.NotificationID.String())
	req.Header.Set(HeaderSubscriptionHref, p.SubscriptionHref)

	resp, err := t.client.Do(req)
	if err != nil {
		detail := err.Error()
		return 0, &detail
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeTerminal
	outcomeRetryable
)

// classify maps a delivery result to its outcome: any 2xx succeeds, 3xx
// and 4xx are terminal, 5xx and transport errors retry.
func classify(statusCode int, errDetail *string) outcome {
	switch {
	case errDetail != nil:
		return outcomeRetryable
	case statusCode >= 200 && statusCode < 300:
		return outcomeSuccess
	case statusCode >= 500:
		return outcomeRetryable
	default:
		return outcomeTerminal
	}
}

func (t *Transmitter) scheduleRetry(ctx context.Context, p TransmitPayload, statusCode int) error {
	if p.Attempt >= maxTransmitAttempts {
		transmitDropped.Inc()
		t.log.Error("dropping notification after exhausting retries",
			"notification_id", p.NotificationID, "subscription_id", p.SubscriptionID,
			"attempt", p.Attempt, "status", statusCode)
		return nil
	}
	delay := retryDelays[p.Attempt-1]
	retry := p
	retry.Attempt = p.Attempt + 1
	task, err := broker.NewTask(broker.TaskTransmitNotification, delay, retry)
	if err != nil {
		return fmt.Errorf("encoding retry task: %w", err)
	}
	if err := t.broker.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("enqueueing retry task: %w", err)
	}
	t.log.Info("scheduled notification retry",
		"notification_id", p.NotificationID, "subscription_id", p.SubscriptionID,
		"attempt", retry.Attempt, "delay_seconds", delay, "status", statusCode)
	return nil
}
