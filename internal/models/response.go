package models

import "time"

// DynamicOperatingEnvelopeResponse records a client acknowledgement of an
// envelope. The envelope id is a snapshot, not a foreign key: the envelope
// may be archived or deleted after the response lands, and responses are
// never archived.
type DynamicOperatingEnvelopeResponse struct {
	ID            int64     `json:"id" db:"id"`
	DoeIDSnapshot int64     `json:"doe_id_snapshot" db:"doe_id_snapshot"`
	SiteID        int64     `json:"site_id" db:"site_id"`
	ResponseType  *int32    `json:"response_type,omitempty" db:"response_type"`
	CreatedTime   time.Time `json:"created_time" db:"created_time"`
}

// TariffGeneratedRateResponse records a client acknowledgement of a price.
// PricingReadingType identifies which of the four price components the
// acknowledgement refers to.
type TariffGeneratedRateResponse struct {
	ID                 int64     `json:"id" db:"id"`
	RateIDSnapshot     int64     `json:"rate_id_snapshot" db:"rate_id_snapshot"`
	SiteID             int64     `json:"site_id" db:"site_id"`
	PricingReadingType int32     `json:"pricing_reading_type" db:"pricing_reading_type"`
	ResponseType       *int32    `json:"response_type,omitempty" db:"response_type"`
	CreatedTime        time.Time `json:"created_time" db:"created_time"`
}
