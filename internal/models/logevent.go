package models

import (
	"fmt"
	"time"
)

// SiteLogEvent is a client-reported diagnostic event. Log events are
// append-only; they are archived only when their site is deleted.
type SiteLogEvent struct {
	ID           int64     `json:"id" db:"id"`
	SiteID       int64     `json:"site_id" db:"site_id"`
	CreatedTime  time.Time `json:"created_time" db:"created_time"`
	Details      *string   `json:"details,omitempty" db:"details"`
	ExtendedData *int64    `json:"extended_data,omitempty" db:"extended_data"`
	FunctionSet  int32     `json:"function_set" db:"function_set"`
	LogEventCode int32     `json:"log_event_code" db:"log_event_code"`
	LogEventID   int32     `json:"log_event_id" db:"log_event_id"`
	LogEventPEN  int64     `json:"log_event_pen" db:"log_event_pen"`
	ProfileID    int32     `json:"profile_id" db:"profile_id"`
}

// MaxLogEventDetailsLength bounds the free-text details field.
const MaxLogEventDetailsLength = 32

// Validate enforces field bounds before insert.
func (e *SiteLogEvent) Validate() error {
	if e.Details != nil && len(*e.Details) > MaxLogEventDetailsLength {
		return fmt.Errorf("details must be %d characters or less", MaxLogEventDetailsLength)
	}
	if e.LogEventPEN < 0 {
		return fmt.Errorf("log_event_pen must be non-negative")
	}
	return nil
}

// SiteLogEventArchive is a copy of a log event row taken at site deletion.
type SiteLogEventArchive struct {
	ArchiveID   int64      `json:"archive_id" db:"archive_id"`
	ArchiveTime time.Time  `json:"archive_time" db:"archive_time"`
	DeletedTime *time.Time `json:"deleted_time,omitempty" db:"deleted_time"`
	SiteLogEvent
}
