package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csip_notifications_enqueued_total",
			Help: "Notifications handed to the broker for delivery",
		},
		[]string{"resource_type"},
	)

	transmitAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csip_notification_transmit_attempts_total",
			Help: "Webhook delivery attempts by outcome",
		},
		[]string{"outcome"},
	)

	transmitDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "csip_notifications_dropped_total",
			Help: "Notifications dropped after exhausting the retry ladder",
		},
	)
)
