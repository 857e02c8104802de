package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SiteControlGroup is a named control program. Its version is bumped on
// every change to the group-level default limits so clients can detect a
// new default control document.
type SiteControlGroup struct {
	ID          int64     `json:"id" db:"id"`
	Description string    `json:"description" db:"description"`
	Primacy     int32     `json:"primacy" db:"primacy"`
	FsaID       int32     `json:"fsa_id" db:"fsa_id"`
	CreatedTime time.Time `json:"created_time" db:"created_time"`
	ChangedTime time.Time `json:"changed_time" db:"changed_time"`
	Version     int32     `json:"version" db:"version"`

	DefaultImportLimitWatts      *decimal.Decimal `json:"default_import_limit_watts,omitempty" db:"default_import_limit_watts"`
	DefaultExportLimitWatts      *decimal.Decimal `json:"default_export_limit_watts,omitempty" db:"default_export_limit_watts"`
	DefaultGenerationLimitWatts  *decimal.Decimal `json:"default_generation_limit_watts,omitempty" db:"default_generation_limit_watts"`
	DefaultLoadLimitWatts        *decimal.Decimal `json:"default_load_limit_watts,omitempty" db:"default_load_limit_watts"`
	DefaultEnergize              *bool            `json:"default_energize,omitempty" db:"default_energize"`
	DefaultRampRatePercentPerSec *int32           `json:"default_ramp_rate_percent_per_second,omitempty" db:"default_ramp_rate_percent_per_second"`
}

// SiteControlGroupArchive is a point-in-time copy of a control group row.
type SiteControlGroupArchive struct {
	ArchiveID   int64      `json:"archive_id" db:"archive_id"`
	ArchiveTime time.Time  `json:"archive_time" db:"archive_time"`
	DeletedTime *time.Time `json:"deleted_time,omitempty" db:"deleted_time"`
	SiteControlGroup
}

// DynamicOperatingEnvelope is a time-bounded control for one site. The
// (site_id, start_time) pair is unique; a re-posted envelope for the same
// slot replaces the previous one after archiving it.
type DynamicOperatingEnvelope struct {
	ID                 int64      `json:"id" db:"id"`
	SiteControlGroupID int64      `json:"site_control_group_id" db:"site_control_group_id"`
	SiteID             int64      `json:"site_id" db:"site_id"`
	CalculationLogID   *int64     `json:"calculation_log_id,omitempty" db:"calculation_log_id"`
	CreatedTime        time.Time  `json:"created_time" db:"created_time"`
	ChangedTime        time.Time  `json:"changed_time" db:"changed_time"`
	StartTime          time.Time  `json:"start_time" db:"start_time"`
	DurationSeconds    int32      `json:"duration_seconds" db:"duration_seconds"`
	EndTime            time.Time  `json:"end_time" db:"end_time"`
	RandomizeStartSeconds *int16  `json:"randomize_start_seconds,omitempty" db:"randomize_start_seconds"`

	ImportLimitActiveWatts   *decimal.Decimal `json:"import_limit_active_watts,omitempty" db:"import_limit_active_watts"`
	ExportLimitWatts         *decimal.Decimal `json:"export_limit_watts,omitempty" db:"export_limit_watts"`
	GenerationLimitWatts     *decimal.Decimal `json:"generation_limit_watts,omitempty" db:"generation_limit_watts"`
	LoadLimitWatts           *decimal.Decimal `json:"load_limit_watts,omitempty" db:"load_limit_watts"`
	SetEnergized             *bool            `json:"set_energized,omitempty" db:"set_energized"`
	RampRatePercentPerSecond *int32           `json:"ramp_rate_percent_per_second,omitempty" db:"ramp_rate_percent_per_second"`

	// Superseded marks an envelope replaced by a higher-primacy control
	// covering the same interval. Superseded envelopes are still served in
	// archive-aware reads but excluded from the active control list.
	Superseded bool `json:"superseded" db:"superseded"`
}

// DynamicOperatingEnvelopeArchive is a point-in-time copy of an envelope.
type DynamicOperatingEnvelopeArchive struct {
	ArchiveID   int64      `json:"archive_id" db:"archive_id"`
	ArchiveTime time.Time  `json:"archive_time" db:"archive_time"`
	DeletedTime *time.Time `json:"deleted_time,omitempty" db:"deleted_time"`
	DynamicOperatingEnvelope
}

// DoeListEntry is one row of the device-facing control list: a live
// envelope, or a recently deleted one with DeletedTime set.
type DoeListEntry struct {
	DynamicOperatingEnvelope
	DeletedTime *time.Time `json:"deleted_time,omitempty" db:"deleted_time"`
}

// DefaultSiteControl carries per-site fallback limits that apply when no
// envelope is active. They override the group-level defaults field by field.
type DefaultSiteControl struct {
	ID          int64     `json:"id" db:"id"`
	SiteID      int64     `json:"site_id" db:"site_id"`
	ChangedTime time.Time `json:"changed_time" db:"changed_time"`

	ImportLimitActiveWatts     *decimal.Decimal `json:"import_limit_active_watts,omitempty" db:"import_limit_active_watts"`
	ExportLimitActiveWatts     *decimal.Decimal `json:"export_limit_active_watts,omitempty" db:"export_limit_active_watts"`
	GenerationLimitActiveWatts *decimal.Decimal `json:"generation_limit_active_watts,omitempty" db:"generation_limit_active_watts"`
	LoadLimitActiveWatts       *decimal.Decimal `json:"load_limit_active_watts,omitempty" db:"load_limit_active_watts"`
	RampRatePercentPerSecond   *int32           `json:"ramp_rate_percent_per_second,omitempty" db:"ramp_rate_percent_per_second"`
}

// DefaultSiteControlArchive is a point-in-time copy of a per-site default.
type DefaultSiteControlArchive struct {
	ArchiveID   int64      `json:"archive_id" db:"archive_id"`
	ArchiveTime time.Time  `json:"archive_time" db:"archive_time"`
	DeletedTime *time.Time `json:"deleted_time,omitempty" db:"deleted_time"`
	DefaultSiteControl
}

// CalculationLog records the calculation run that produced a batch of
// envelopes or rates.
type CalculationLog struct {
	ID                              int64     `json:"id" db:"id"`
	CreatedTime                     time.Time `json:"created_time" db:"created_time"`
	CalculationRangeStart           time.Time `json:"calculation_range_start" db:"calculation_range_start"`
	CalculationRangeDurationSeconds int32     `json:"calculation_range_duration_seconds" db:"calculation_range_duration_seconds"`
	ExternalID                      *string   `json:"external_id,omitempty" db:"external_id"`
	Description                     *string   `json:"description,omitempty" db:"description"`
}

// UpsertDoeRequest is one envelope in an admin bulk-insert payload.
type UpsertDoeRequest struct {
	SiteControlGroupID int64            `json:"site_control_group_id" validate:"required"`
	SiteID             int64            `json:"site_id" validate:"required"`
	CalculationLogID   *int64           `json:"calculation_log_id,omitempty"`
	StartTime          time.Time        `json:"start_time" validate:"required"`
	DurationSeconds    int32            `json:"duration_seconds" validate:"required,gt=0"`
	RandomizeStartSeconds *int16        `json:"randomize_start_seconds,omitempty"`
	ImportLimitActiveWatts   *decimal.Decimal `json:"import_limit_active_watts,omitempty"`
	ExportLimitWatts         *decimal.Decimal `json:"export_limit_watts,omitempty"`
	GenerationLimitWatts     *decimal.Decimal `json:"generation_limit_watts,omitempty"`
	LoadLimitWatts           *decimal.Decimal `json:"load_limit_watts,omitempty"`
	SetEnergized             *bool            `json:"set_energized,omitempty"`
	RampRatePercentPerSecond *int32           `json:"ramp_rate_percent_per_second,omitempty"`
}

// Validate validates a single envelope upsert.
func (r *UpsertDoeRequest) Validate() error {
	if r.SiteControlGroupID == 0 {
		return fmt.Errorf("site_control_group_id is required")
	}
	if r.SiteID == 0 {
		return fmt.Errorf("site_id is required")
	}
	if r.StartTime.IsZero() {
		return fmt.Errorf("start_time is required")
	}
	if r.DurationSeconds <= 0 {
		return fmt.Errorf("duration_seconds must be positive")
	}
	return nil
}

// ToEnvelope converts the request to a model row, stamping changed_time and
// deriving end_time.
func (r *UpsertDoeRequest) ToEnvelope(changedTime time.Time) *DynamicOperatingEnvelope {
	return &DynamicOperatingEnvelope{
		SiteControlGroupID:       r.SiteControlGroupID,
		SiteID:                   r.SiteID,
		CalculationLogID:         r.CalculationLogID,
		ChangedTime:              changedTime,
		StartTime:                r.StartTime,
		DurationSeconds:          r.DurationSeconds,
		EndTime:                  r.StartTime.Add(time.Duration(r.DurationSeconds) * time.Second),
		RandomizeStartSeconds:    r.RandomizeStartSeconds,
		ImportLimitActiveWatts:   r.ImportLimitActiveWatts,
		ExportLimitWatts:         r.ExportLimitWatts,
		GenerationLimitWatts:     r.GenerationLimitWatts,
		LoadLimitWatts:           r.LoadLimitWatts,
		SetEnergized:             r.SetEnergized,
		RampRatePercentPerSecond: r.RampRatePercentPerSecond,
	}
}
