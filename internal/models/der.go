package models

import "time"

// SiteDER is the single DER record maintained per site. The four facet
// tables hang off it and are upserted independently by clients.
type SiteDER struct {
	ID          int64     `json:"id" db:"id"`
	SiteID      int64     `json:"site_id" db:"site_id"`
	CreatedTime time.Time `json:"created_time" db:"created_time"`
	ChangedTime time.Time `json:"changed_time" db:"changed_time"`
}

// SiteDERArchive is a point-in-time copy of a site DER row.
type SiteDERArchive struct {
	ArchiveID   int64      `json:"archive_id" db:"archive_id"`
	ArchiveTime time.Time  `json:"archive_time" db:"archive_time"`
	DeletedTime *time.Time `json:"deleted_time,omitempty" db:"deleted_time"`
	SiteDER
}

// SiteDERRating holds the nameplate capability reported for a DER.
type SiteDERRating struct {
	ID              int64     `json:"id" db:"id"`
	SiteDERID       int64     `json:"site_der_id" db:"site_der_id"`
	ChangedTime     time.Time `json:"changed_time" db:"changed_time"`
	ModesSupported  *string   `json:"modes_supported,omitempty" db:"modes_supported"`
	DERType         int32     `json:"der_type" db:"der_type"`
	MaxWValue       int64     `json:"max_w_value" db:"max_w_value"`
	MaxWMultiplier  int32     `json:"max_w_multiplier" db:"max_w_multiplier"`
	MaxVAValue      *int64    `json:"max_va_value,omitempty" db:"max_va_value"`
	MaxVAMultiplier *int32    `json:"max_va_multiplier,omitempty" db:"max_va_multiplier"`
	MaxVarValue     *int64    `json:"max_var_value,omitempty" db:"max_var_value"`
	MaxVarMultiplier *int32   `json:"max_var_multiplier,omitempty" db:"max_var_multiplier"`
}

// SiteDERSetting holds the configured operating settings for a DER.
type SiteDERSetting struct {
	ID              int64     `json:"id" db:"id"`
	SiteDERID       int64     `json:"site_der_id" db:"site_der_id"`
	ChangedTime     time.Time `json:"changed_time" db:"changed_time"`
	GradW           int32     `json:"grad_w" db:"grad_w"`
	MaxWValue       int64     `json:"max_w_value" db:"max_w_value"`
	MaxWMultiplier  int32     `json:"max_w_multiplier" db:"max_w_multiplier"`
	MaxVAValue      *int64    `json:"max_va_value,omitempty" db:"max_va_value"`
	MaxVAMultiplier *int32    `json:"max_va_multiplier,omitempty" db:"max_va_multiplier"`
	MaxVarValue     *int64    `json:"max_var_value,omitempty" db:"max_var_value"`
	MaxVarMultiplier *int32   `json:"max_var_multiplier,omitempty" db:"max_var_multiplier"`
}

// SiteDERAvailability holds the forecast availability reported for a DER.
type SiteDERAvailability struct {
	ID                        int64     `json:"id" db:"id"`
	SiteDERID                 int64     `json:"site_der_id" db:"site_der_id"`
	ChangedTime               time.Time `json:"changed_time" db:"changed_time"`
	AvailabilityDurationSec   *int64    `json:"availability_duration_sec,omitempty" db:"availability_duration_sec"`
	ReservePercent            *int16    `json:"reserve_percent,omitempty" db:"reserve_percent"`
	EstimatedWAvailValue      *int64    `json:"estimated_w_avail_value,omitempty" db:"estimated_w_avail_value"`
	EstimatedWAvailMultiplier *int32    `json:"estimated_w_avail_multiplier,omitempty" db:"estimated_w_avail_multiplier"`
}

// SiteDERStatus holds the most recent operational status reported for a DER.
type SiteDERStatus struct {
	ID                        int64      `json:"id" db:"id"`
	SiteDERID                 int64      `json:"site_der_id" db:"site_der_id"`
	ChangedTime               time.Time  `json:"changed_time" db:"changed_time"`
	GenConnectStatus          *string    `json:"gen_connect_status,omitempty" db:"gen_connect_status"`
	GenConnectStatusTime      *time.Time `json:"gen_connect_status_time,omitempty" db:"gen_connect_status_time"`
	InverterStatus            *int32     `json:"inverter_status,omitempty" db:"inverter_status"`
	InverterStatusTime        *time.Time `json:"inverter_status_time,omitempty" db:"inverter_status_time"`
	OperationalModeStatus     *int32     `json:"operational_mode_status,omitempty" db:"operational_mode_status"`
	OperationalModeStatusTime *time.Time `json:"operational_mode_status_time,omitempty" db:"operational_mode_status_time"`
}
