package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridmesh/csip-core/internal/broker"
	"github.com/gridmesh/csip-core/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubTransmitLogs struct {
	entries []*models.TransmitNotificationLog
}

func (s *stubTransmitLogs) Create(_ context.Context, entry *models.TransmitNotificationLog) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubTransmitLogs) ListByNotification(context.Context, uuid.UUID) ([]*models.TransmitNotificationLog, error) {
	return nil, nil
}

type stubBroker struct {
	tasks []broker.Task
}

func (s *stubBroker) Enqueue(_ context.Context, task broker.Task) error {
	s.tasks = append(s.tasks, task)
	return nil
}

func (s *stubBroker) Consume(context.Context, broker.Handler) error { return nil }
func (s *stubBroker) Close() error                                  { return nil }

func newTestTransmitter(t *testing.T) (*Transmitter, *stubTransmitLogs, *stubBroker) {
	t.Helper()
	logs := &stubTransmitLogs{}
	b := &stubBroker{}
	return NewTransmitter(5*time.Second, logs, b, discardLogger()), logs, b
}

func payloadFor(uri string, attempt int32) TransmitPayload {
	return TransmitPayload{
		NotificationID:   uuid.New(),
		SubscriptionID:   42,
		SubscriptionHref: "/edev/3/sub/42",
		NotificationURI:  uri,
		Attempt:          attempt,
		Body:             []byte("<Notification/>"),
	}
}

func TestTransmitSuccess(t *testing.T) {
	var gotID, gotHref string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get(HeaderNotificationID)
		gotHref = r.Header.Get(HeaderSubscriptionHref)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	tr, logs, b := newTestTransmitter(t)
	p := payloadFor(srv.URL, 1)

	require.NoError(t, tr.Transmit(context.Background(), p))
	require.Len(t, logs.entries, 1)
	assert.Equal(t, int32(201), logs.entries[0].HTTPStatusCode)
	assert.Nil(t, logs.entries[0].ErrorDetails)
	assert.Equal(t, p.NotificationID.String(), gotID)
	assert.Equal(t, "/edev/3/sub/42", gotHref)
	assert.Empty(t, b.tasks)
}

func TestTransmitTerminalStatusDoesNotRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	tr, logs, b := newTestTransmitter(t)
	require.NoError(t, tr.Transmit(context.Background(), payloadFor(srv.URL, 1)))
	require.Len(t, logs.entries, 1)
	assert.Equal(t, int32(403), logs.entries[0].HTTPStatusCode)
	assert.Empty(t, b.tasks)
}

func TestTransmitServerErrorSchedulesRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr, logs, b := newTestTransmitter(t)
	require.NoError(t, tr.Transmit(context.Background(), payloadFor(srv.URL, 1)))
	require.Len(t, logs.entries, 1)
	require.Len(t, b.tasks, 1)

	task := b.tasks[0]
	assert.Equal(t, broker.TaskTransmitNotification, task.Name)
	assert.Equal(t, 10, task.DelaySeconds)

	var retry TransmitPayload
	require.NoError(t, json.Unmarshal(task.Payload, &retry))
	assert.Equal(t, int32(2), retry.Attempt)
}

func TestTransmitRetryDelaysEscalate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tr, _, b := newTestTransmitter(t)
	for _, attempt := range []int32{1, 2, 3} {
		require.NoError(t, tr.Transmit(context.Background(), payloadFor(srv.URL, attempt)))
	}
	require.Len(t, b.tasks, 3)
	assert.Equal(t, 10, b.tasks[0].DelaySeconds)
	assert.Equal(t, 100, b.tasks[1].DelaySeconds)
	assert.Equal(t, 300, b.tasks[2].DelaySeconds)
}

func TestTransmitDropsAfterFinalAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr, logs, b := newTestTransmitter(t)
	require.NoError(t, tr.Transmit(context.Background(), payloadFor(srv.URL, maxTransmitAttempts)))
	require.Len(t, logs.entries, 1)
	assert.Empty(t, b.tasks)
}

func TestTransmitTransportErrorRetries(t *testing.T) {
	tr, logs, b := newTestTransmitter(t)
	// Nothing listens on this port.
	require.NoError(t, tr.Transmit(context.Background(), payloadFor("http://127.0.0.1:1/notify", 1)))
	require.Len(t, logs.entries, 1)
	assert.NotNil(t, logs.entries[0].ErrorDetails)
	assert.Len(t, b.tasks, 1)
}
