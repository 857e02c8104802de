package models

import (
	"time"

	"github.com/google/uuid"
)

// TransmitNotificationLog records one webhook delivery attempt. The
// subscription id is a snapshot: the subscription may be deleted while
// retries for it are still in flight.
type TransmitNotificationLog struct {
	ID                     int64     `json:"id" db:"id"`
	NotificationID         uuid.UUID `json:"notification_id" db:"notification_id"`
	CorrelationID          string    `json:"correlation_id" db:"correlation_id"`
	SubscriptionIDSnapshot int64     `json:"subscription_id_snapshot" db:"subscription_id_snapshot"`
	TransmitTime           time.Time `json:"transmit_time" db:"transmit_time"`
	TransmitDurationMs     int32     `json:"transmit_duration_ms" db:"transmit_duration_ms"`
	Attempt                int32     `json:"attempt" db:"attempt"`
	HTTPStatusCode         int32     `json:"http_status_code" db:"http_status_code"`
	ErrorDetails           *string   `json:"error_details,omitempty" db:"error_details"`
}
