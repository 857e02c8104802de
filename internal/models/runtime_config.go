package models

import "time"

// RuntimeServerConfig is the single-row table of operator-tunable settings
// that take effect without a restart. Nil fields fall back to compiled-in
// defaults.
type RuntimeServerConfig struct {
	ConfigID                int32      `json:"config_id" db:"config_id"`
	ChangedTime             time.Time  `json:"changed_time" db:"changed_time"`
	DcapPollrateSeconds     *int32     `json:"dcap_pollrate_seconds,omitempty" db:"dcap_pollrate_seconds"`
	EdevlPollrateSeconds    *int32     `json:"edevl_pollrate_seconds,omitempty" db:"edevl_pollrate_seconds"`
	FsalPollrateSeconds     *int32     `json:"fsal_pollrate_seconds,omitempty" db:"fsal_pollrate_seconds"`
	DerplPollrateSeconds    *int32     `json:"derpl_pollrate_seconds,omitempty" db:"derpl_pollrate_seconds"`
	DerlPollrateSeconds     *int32     `json:"derl_pollrate_seconds,omitempty" db:"derl_pollrate_seconds"`
	MupPostrateSeconds      *int32     `json:"mup_postrate_seconds,omitempty" db:"mup_postrate_seconds"`
	DisableEdevRegistration bool       `json:"disable_edev_registration" db:"disable_edev_registration"`
}

// DefaultPollrateSeconds is served when no runtime override is set.
const DefaultPollrateSeconds int32 = 300

// PollrateOr returns the override if present, otherwise the fallback.
func PollrateOr(override *int32, fallback int32) int32 {
	if override != nil {
		return *override
	}
	return fallback
}
