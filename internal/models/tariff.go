package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tariff is a pricing program published by the utility.
type Tariff struct {
	ID           int64     `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	DnspCode     string    `json:"dnsp_code" db:"dnsp_code"`
	CurrencyCode int32     `json:"currency_code" db:"currency_code"`
	FsaID        int32     `json:"fsa_id" db:"fsa_id"`
	CreatedTime  time.Time `json:"created_time" db:"created_time"`
	ChangedTime  time.Time `json:"changed_time" db:"changed_time"`
}

// TariffGeneratedRate is a calculated price for one site and time slot.
// The (tariff_id, site_id, start_time) triple is unique.
type TariffGeneratedRate struct {
	ID               int64           `json:"id" db:"id"`
	TariffID         int64           `json:"tariff_id" db:"tariff_id"`
	SiteID           int64           `json:"site_id" db:"site_id"`
	CalculationLogID *int64          `json:"calculation_log_id,omitempty" db:"calculation_log_id"`
	CreatedTime      time.Time       `json:"created_time" db:"created_time"`
	ChangedTime      time.Time       `json:"changed_time" db:"changed_time"`
	StartTime        time.Time       `json:"start_time" db:"start_time"`
	DurationSeconds  int32           `json:"duration_seconds" db:"duration_seconds"`

	ImportActivePrice   decimal.Decimal `json:"import_active_price" db:"import_active_price"`
	ExportActivePrice   decimal.Decimal `json:"export_active_price" db:"export_active_price"`
	ImportReactivePrice decimal.Decimal `json:"import_reactive_price" db:"import_reactive_price"`
	ExportReactivePrice decimal.Decimal `json:"export_reactive_price" db:"export_reactive_price"`
}

// PriceFor returns the price component for the given pricing reading type
// (1 import active, 2 export active, 3 import reactive, 4 export reactive).
func (t *TariffGeneratedRate) PriceFor(prt int) decimal.Decimal {
	switch prt {
	case 2:
		return t.ExportActivePrice
	case 3:
		return t.ImportReactivePrice
	case 4:
		return t.ExportReactivePrice
	default:
		return t.ImportActivePrice
	}
}

// TariffGeneratedRateArchive is a point-in-time copy of a rate row.
type TariffGeneratedRateArchive struct {
	ArchiveID   int64      `json:"archive_id" db:"archive_id"`
	ArchiveTime time.Time  `json:"archive_time" db:"archive_time"`
	DeletedTime *time.Time `json:"deleted_time,omitempty" db:"deleted_time"`
	TariffGeneratedRate
}
