package models

import (
	"fmt"
	"time"
)

// Site represents an end device / connection point registered under an
// aggregator. The LFDI is globally unique; the (aggregator_id, sfdi) pair
// is unique per tenant.
type Site struct {
	ID              int64     `json:"id" db:"id"`
	AggregatorID    int64     `json:"aggregator_id" db:"aggregator_id"`
	NMI             *string   `json:"nmi,omitempty" db:"nmi"`
	TimezoneID      string    `json:"timezone_id" db:"timezone_id"`
	CreatedTime     time.Time `json:"created_time" db:"created_time"`
	ChangedTime     time.Time `json:"changed_time" db:"changed_time"`
	LFDI            string    `json:"lfdi" db:"lfdi"`
	SFDI            int64     `json:"sfdi" db:"sfdi"`
	DeviceCategory  string    `json:"device_category" db:"device_category"`
	RegistrationPIN int32     `json:"registration_pin" db:"registration_pin"`
}

// SiteArchive is a point-in-time copy of a site row taken before a mutation
// or deletion. DeletedTime is set only on the terminal archive row.
type SiteArchive struct {
	ArchiveID   int64      `json:"archive_id" db:"archive_id"`
	ArchiveTime time.Time  `json:"archive_time" db:"archive_time"`
	DeletedTime *time.Time `json:"deleted_time,omitempty" db:"deleted_time"`
	Site
}

// MaxRegistrationPIN is the exclusive upper bound for generated PINs.
const MaxRegistrationPIN = 100000

// CreateSiteRequest represents an admin request to create a site directly.
type CreateSiteRequest struct {
	AggregatorID   int64   `json:"aggregator_id"`
	NMI            *string `json:"nmi,omitempty"`
	TimezoneID     string  `json:"timezone_id" validate:"required"`
	LFDI           string  `json:"lfdi" validate:"required,len=40,hexadecimal"`
	SFDI           int64   `json:"sfdi" validate:"required"`
	DeviceCategory string  `json:"device_category"`
}

// Validate validates the create site request.
func (r *CreateSiteRequest) Validate() error {
	if r.LFDI == "" {
		return fmt.Errorf("lfdi is required")
	}
	if len(r.LFDI) != 40 {
		return fmt.Errorf("lfdi must be 40 hex characters")
	}
	if r.SFDI <= 0 {
		return fmt.Errorf("sfdi is required")
	}
	if r.TimezoneID == "" {
		return fmt.Errorf("timezone_id is required")
	}
	return nil
}
