package models

import "time"

// SiteReadingType describes a stream of telemetry readings for a site: the
// unit, direction, accumulation behaviour and scaling that apply to every
// reading in the stream. Identified externally by its MRID.
type SiteReadingType struct {
	ID                     int64     `json:"id" db:"id"`
	AggregatorID           int64     `json:"aggregator_id" db:"aggregator_id"`
	SiteID                 int64     `json:"site_id" db:"site_id"`
	MRID                   string    `json:"mrid" db:"mrid"`
	CreatedTime            time.Time `json:"created_time" db:"created_time"`
	ChangedTime            time.Time `json:"changed_time" db:"changed_time"`
	Uom                    int32     `json:"uom" db:"uom"`
	DataQualifier          int32     `json:"data_qualifier" db:"data_qualifier"`
	FlowDirection          int32     `json:"flow_direction" db:"flow_direction"`
	AccumulationBehaviour  int32     `json:"accumulation_behaviour" db:"accumulation_behaviour"`
	Kind                   int32     `json:"kind" db:"kind"`
	Phase                  int32     `json:"phase" db:"phase"`
	PowerOfTenMultiplier   int32     `json:"power_of_ten_multiplier" db:"power_of_ten_multiplier"`
	DefaultIntervalSeconds int32     `json:"default_interval_seconds" db:"default_interval_seconds"`
	RoleFlags              string    `json:"role_flags" db:"role_flags"`
}

// SiteReadingTypeArchive is a point-in-time copy of a reading type row.
type SiteReadingTypeArchive struct {
	ArchiveID   int64      `json:"archive_id" db:"archive_id"`
	ArchiveTime time.Time  `json:"archive_time" db:"archive_time"`
	DeletedTime *time.Time `json:"deleted_time,omitempty" db:"deleted_time"`
	SiteReadingType
}

// SiteReading is a single telemetry value. The
// (site_reading_type_id, time_period_start) pair is unique; re-posting the
// same slot replaces the previous value after archiving it.
type SiteReading struct {
	ID                int64     `json:"id" db:"id"`
	SiteReadingTypeID int64     `json:"site_reading_type_id" db:"site_reading_type_id"`
	ChangedTime       time.Time `json:"changed_time" db:"changed_time"`
	LocalID           *string   `json:"local_id,omitempty" db:"local_id"`
	QualityFlags      string    `json:"quality_flags" db:"quality_flags"`
	TimePeriodStart   time.Time `json:"time_period_start" db:"time_period_start"`
	TimePeriodSeconds int32     `json:"time_period_seconds" db:"time_period_seconds"`
	Value             int64     `json:"value" db:"value"`
}

// SiteReadingArchive is a point-in-time copy of a reading row.
type SiteReadingArchive struct {
	ArchiveID   int64      `json:"archive_id" db:"archive_id"`
	ArchiveTime time.Time  `json:"archive_time" db:"archive_time"`
	DeletedTime *time.Time `json:"deleted_time,omitempty" db:"deleted_time"`
	SiteReading
}
