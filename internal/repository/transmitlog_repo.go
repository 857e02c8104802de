package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridmesh/csip-core/internal/models"
)

// TransmitLogRepository defines the interface for webhook delivery records.
type TransmitLogRepository interface {
	Create(ctx context.Context, entry *models.TransmitNotificationLog) error
	ListByNotification(ctx context.Context, notificationID uuid.UUID) ([]*models.TransmitNotificationLog, error)
}

type transmitLogRepo struct {
	pool *pgxpool.Pool
}

// NewTransmitLogRepository creates a new transmit log repository.
func NewTransmitLogRepository(pool *pgxpool.Pool) TransmitLogRepository {
	return &transmitLogRepo{pool: pool}
}

// Create inserts a delivery attempt record.
func (r *transmitLogRepo) Create(ctx context.Context, entry *models.TransmitNotificationLog) error {
	query := `
		INSERT INTO transmit_notification_log (
			notification_id, correlation_id, subscription_id_snapshot,
			transmit_duration_ms, attempt, http_status_code, error_details
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, transmit_time`

	return r.pool.QueryRow(ctx, query,
		entry.NotificationID, entry.CorrelationID, entry.SubscriptionIDSnapshot,
		entry.TransmitDurationMs, entry.Attempt, entry.HTTPStatusCode, entry.ErrorDetails,
	).Scan(&entry.ID, &entry.TransmitTime)
}

// ListByNotification retrieves every delivery attempt for one notification,
// oldest first.
func (r *transmitLogRepo) ListByNotification(ctx context.Context, notificationID uuid.UUID) ([]*models.TransmitNotificationLog, error) {
	query := `
		SELECT id, notification_id, correlation_id, subscription_id_snapshot,
		       transmit_time, transmit_duration_ms, attempt, http_status_code, error_details
		FROM transmit_notification_log
		WHERE notification_id = $1
		ORDER BY attempt ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, notificationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.TransmitNotificationLog
	for rows.Next() {
		var e models.TransmitNotificationLog
		err := rows.Scan(
			&e.ID, &e.NotificationID, &e.CorrelationID, &e.SubscriptionIDSnapshot,
			&e.TransmitTime, &e.TransmitDurationMs, &e.Attempt, &e.HTTPStatusCode, &e.ErrorDetails,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

var _ TransmitLogRepository = (*transmitLogRepo)(nil)
