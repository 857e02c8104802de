package models

import (
	"fmt"
	"net/url"
	"time"
)

// SubscriptionResource enumerates the resource classes a subscription can
// watch.
type SubscriptionResource int32

const (
	// SubscriptionResourceSite watches EndDevice changes.
	SubscriptionResourceSite SubscriptionResource = 1
	// SubscriptionResourceDynamicOperatingEnvelope watches DERControl changes.
	SubscriptionResourceDynamicOperatingEnvelope SubscriptionResource = 2
	// SubscriptionResourceReading watches telemetry reading changes.
	SubscriptionResourceReading SubscriptionResource = 3
	// SubscriptionResourceTariffGeneratedRate watches price changes.
	SubscriptionResourceTariffGeneratedRate SubscriptionResource = 4
	// SubscriptionResourceDefaultSiteControl watches default control changes.
	SubscriptionResourceDefaultSiteControl SubscriptionResource = 5
)

// SubscriptionConditionAttribute enumerates the attributes a condition can
// threshold on.
type SubscriptionConditionAttribute int32

const (
	// ConditionAttributeReadingValue thresholds on the raw reading value.
	ConditionAttributeReadingValue SubscriptionConditionAttribute = 0
)

// Subscription is a registered webhook. ScopedSiteID narrows the watch to a
// single site; ResourceID narrows it to a single parent resource (for
// readings, the reading type; for rates, the tariff).
type Subscription struct {
	ID              int64                `json:"id" db:"id"`
	AggregatorID    int64                `json:"aggregator_id" db:"aggregator_id"`
	CreatedTime     time.Time            `json:"created_time" db:"created_time"`
	ChangedTime     time.Time            `json:"changed_time" db:"changed_time"`
	ResourceType    SubscriptionResource `json:"resource_type" db:"resource_type"`
	ResourceID      *int64               `json:"resource_id,omitempty" db:"resource_id"`
	ScopedSiteID    *int64               `json:"scoped_site_id,omitempty" db:"scoped_site_id"`
	NotificationURI string               `json:"notification_uri" db:"notification_uri"`
	EntityLimit     int32                `json:"entity_limit" db:"entity_limit"`

	Conditions []SubscriptionCondition `json:"conditions,omitempty" db:"-"`
}

// NotificationHost returns the lowercased FQDN of the notification URI.
func (s *Subscription) NotificationHost() (string, error) {
	u, err := url.Parse(s.NotificationURI)
	if err != nil {
		return "", fmt.Errorf("invalid notification uri: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("notification uri must be http(s)")
	}
	return u.Hostname(), nil
}

// SubscriptionCondition suppresses notifications unless the watched
// attribute falls inside [Lower, Upper] (closed interval).
type SubscriptionCondition struct {
	ID             int64                          `json:"id" db:"id"`
	SubscriptionID int64                          `json:"subscription_id" db:"subscription_id"`
	Attribute      SubscriptionConditionAttribute `json:"attribute" db:"attribute"`
	LowerThreshold int64                          `json:"lower_threshold" db:"lower_threshold"`
	UpperThreshold int64                          `json:"upper_threshold" db:"upper_threshold"`
}

// Matches reports whether the value satisfies the condition.
func (c *SubscriptionCondition) Matches(value int64) bool {
	return value >= c.LowerThreshold && value <= c.UpperThreshold
}

// SubscriptionArchive is a point-in-time copy of a subscription row.
type SubscriptionArchive struct {
	ArchiveID   int64      `json:"archive_id" db:"archive_id"`
	ArchiveTime time.Time  `json:"archive_time" db:"archive_time"`
	DeletedTime *time.Time `json:"deleted_time,omitempty" db:"deleted_time"`
	Subscription
}
