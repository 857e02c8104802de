package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridmesh/csip-core/internal/models"
)

// ChangedSite is one site touched at a change timestamp.
type ChangedSite struct {
	models.Site
	Deleted bool
}

// ChangedDoe is one envelope touched at a change timestamp, annotated with
// the owning site's aggregator for batching.
type ChangedDoe struct {
	models.DynamicOperatingEnvelope
	AggregatorID int64
	Deleted      bool
}

// ChangedRate is one rate touched at a change timestamp.
type ChangedRate struct {
	models.TariffGeneratedRate
	AggregatorID int64
	Deleted      bool
}

// ChangedReading is one reading touched at a change timestamp, annotated
// with its stream's site and aggregator.
type ChangedReading struct {
	models.SiteReading
	SiteID       int64
	AggregatorID int64
	Deleted      bool
}

// ChangedDefaultSiteControl is one per-site default touched at a change
// timestamp.
type ChangedDefaultSiteControl struct {
	models.DefaultSiteControl
	AggregatorID int64
	Deleted      bool
}

// NotifyRepository reads the rows touched at an exact change timestamp,
// live and deleted, for fan-out to subscriptions. Every mutation in a
// transaction shares one timestamp, so one query recovers the whole batch.
type NotifyRepository interface {
	ChangedSites(ctx context.Context, at time.Time) ([]*ChangedSite, error)
	ChangedDoes(ctx context.Context, at time.Time) ([]*ChangedDoe, error)
	ChangedRates(ctx context.Context, at time.Time) ([]*ChangedRate, error)
	ChangedReadings(ctx context.Context, at time.Time) ([]*ChangedReading, error)
	ChangedDefaultSiteControls(ctx context.Context, at time.Time) ([]*ChangedDefaultSiteControl, error)
}

type notifyRepo struct {
	pool *pgxpool.Pool
}

// NewNotifyRepository creates a new notification read repository.
func NewNotifyRepository(pool *pgxpool.Pool) NotifyRepository {
	return &notifyRepo{pool: pool}
}

// ChangedSites retrieves sites changed or deleted at the timestamp.
func (r *notifyRepo) ChangedSites(ctx context.Context, at time.Time) ([]*ChangedSite, error) {
	query := `
		SELECT ` + siteColumns + `, FALSE AS deleted FROM site WHERE changed_time = $1
		UNION ALL
		SELECT ` + siteColumns + `, TRUE AS deleted FROM site_archive WHERE deleted_time = $1
		ORDER BY id ASC`

	rows, err := r.pool.Query(ctx, query, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ChangedSite
	for rows.Next() {
		var c ChangedSite
		err := rows.Scan(
			&c.ID, &c.AggregatorID, &c.NMI, &c.TimezoneID, &c.CreatedTime,
			&c.ChangedTime, &c.LFDI, &c.SFDI, &c.DeviceCategory, &c.RegistrationPIN,
			&c.Deleted,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func scanChangedDoe(rows pgx.Rows) (*ChangedDoe, error) {
	var c ChangedDoe
	err := rows.Scan(
		&c.ID, &c.SiteControlGroupID, &c.SiteID, &c.CalculationLogID, &c.CreatedTime,
		&c.ChangedTime, &c.StartTime, &c.DurationSeconds, &c.EndTime, &c.RandomizeStartSeconds,
		&c.ImportLimitActiveWatts, &c.ExportLimitWatts, &c.GenerationLimitWatts,
		&c.LoadLimitWatts, &c.SetEnergized, &c.RampRatePercentPerSecond, &c.Superseded,
		&c.AggregatorID, &c.Deleted,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ChangedDoes retrieves envelopes changed or deleted at the timestamp.
func (r *notifyRepo) ChangedDoes(ctx context.Context, at time.Time) ([]*ChangedDoe, error) {
	query := `
		SELECT d.id, d.site_control_group_id, d.site_id, d.calculation_log_id, d.created_time,
		       d.changed_time, d.start_time, d.duration_seconds, d.end_time, d.randomize_start_seconds,
		       d.import_limit_active_watts, d.export_limit_watts, d.generation_limit_watts,
		       d.load_limit_watts, d.set_energized, d.ramp_rate_percent_per_second, d.superseded,
		       s.aggregator_id, FALSE AS deleted
		FROM dynamic_operating_envelope d
		JOIN site s ON s.id = d.site_id
		WHERE d.changed_time = $1
		UNION ALL
		SELECT a.id, a.site_control_group_id, a.site_id, a.calculation_log_id, a.created_time,
		       a.changed_time, a.start_time, a.duration_seconds, a.end_time, a.randomize_start_seconds,
		       a.import_limit_active_watts, a.export_limit_watts, a.generation_limit_watts,
		       a.load_limit_watts, a.set_energized, a.ramp_rate_percent_per_second, a.superseded,
		       COALESCE(
		           (SELECT s.aggregator_id FROM site s WHERE s.id = a.site_id),
		           (SELECT sa.aggregator_id FROM site_archive sa WHERE sa.id = a.site_id ORDER BY sa.archive_id DESC LIMIT 1)
		       ), TRUE AS deleted
		FROM dynamic_operating_envelope_archive a
		WHERE a.deleted_time = $1
		ORDER BY id ASC`

	rows, err := r.pool.Query(ctx, query, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ChangedDoe
	for rows.Next() {
		c, err := scanChangedDoe(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ChangedRates retrieves rates changed or deleted at the timestamp.
func (r *notifyRepo) ChangedRates(ctx context.Context, at time.Time) ([]*ChangedRate, error) {
	query := `
		SELECT t.id, t.tariff_id, t.site_id, t.calculation_log_id, t.created_time, t.changed_time,
		       t.start_time, t.duration_seconds, t.import_active_price, t.export_active_price,
		       t.import_reactive_price, t.export_reactive_price,
		       s.aggregator_id, FALSE AS deleted
		FROM tariff_generated_rate t
		JOIN site s ON s.id = t.site_id
		WHERE t.changed_time = $1
		UNION ALL
		SELECT a.id, a.tariff_id, a.site_id, a.calculation_log_id, a.created_time, a.changed_time,
		       a.start_time, a.duration_seconds, a.import_active_price, a.export_active_price,
		       a.import_reactive_price, a.export_reactive_price,
		       COALESCE(
		           (SELECT s.aggregator_id FROM site s WHERE s.id = a.site_id),
		           (SELECT sa.aggregator_id FROM site_archive sa WHERE sa.id = a.site_id ORDER BY sa.archive_id DESC LIMIT 1)
		       ), TRUE AS deleted
		FROM tariff_generated_rate_archive a
		WHERE a.deleted_time = $1
		ORDER BY id ASC`

	rows, err := r.pool.Query(ctx, query, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ChangedRate
	for rows.Next() {
		var c ChangedRate
		err := rows.Scan(
			&c.ID, &c.TariffID, &c.SiteID, &c.CalculationLogID, &c.CreatedTime, &c.ChangedTime,
			&c.StartTime, &c.DurationSeconds, &c.ImportActivePrice, &c.ExportActivePrice,
			&c.ImportReactivePrice, &c.ExportReactivePrice,
			&c.AggregatorID, &c.Deleted,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// ChangedReadings retrieves readings changed or deleted at the timestamp.
func (r *notifyRepo) ChangedReadings(ctx context.Context, at time.Time) ([]*ChangedReading, error) {
	query := `
		SELECT v.id, v.site_reading_type_id, v.changed_time, v.local_id, v.quality_flags,
		       v.time_period_start, v.time_period_seconds, v.value,
		       t.site_id, t.aggregator_id, FALSE AS deleted
		FROM site_reading v
		JOIN site_reading_type t ON t.id = v.site_reading_type_id
		WHERE v.changed_time = $1
		UNION ALL
		SELECT a.id, a.site_reading_type_id, a.changed_time, a.local_id, a.quality_flags,
		       a.time_period_start, a.time_period_seconds, a.value,
		       COALESCE(
		           (SELECT t.site_id FROM site_reading_type t WHERE t.id = a.site_reading_type_id),
		           (SELECT ta.site_id FROM site_reading_type_archive ta WHERE ta.id = a.site_reading_type_id ORDER BY ta.archive_id DESC LIMIT 1)
		       ),
		       COALESCE(
		           (SELECT t.aggregator_id FROM site_reading_type t WHERE t.id = a.site_reading_type_id),
		           (SELECT ta.aggregator_id FROM site_reading_type_archive ta WHERE ta.id = a.site_reading_type_id ORDER BY ta.archive_id DESC LIMIT 1)
		       ), TRUE AS deleted
		FROM site_reading_archive a
		WHERE a.deleted_time = $1
		ORDER BY id ASC`

	rows, err := r.pool.Query(ctx, query, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ChangedReading
	for rows.Next() {
		var c ChangedReading
		err := rows.Scan(
			&c.ID, &c.SiteReadingTypeID, &c.ChangedTime, &c.LocalID, &c.QualityFlags,
			&c.TimePeriodStart, &c.TimePeriodSeconds, &c.Value,
			&c.SiteID, &c.AggregatorID, &c.Deleted,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// ChangedDefaultSiteControls retrieves per-site defaults changed or deleted
// at the timestamp.
func (r *notifyRepo) ChangedDefaultSiteControls(ctx context.Context, at time.Time) ([]*ChangedDefaultSiteControl, error) {
	query := `
		SELECT d.id, d.site_id, d.changed_time, d.import_limit_active_watts, d.export_limit_active_watts,
		       d.generation_limit_active_watts, d.load_limit_active_watts, d.ramp_rate_percent_per_second,
		       s.aggregator_id, FALSE AS deleted
		FROM default_site_control d
		JOIN site s ON s.id = d.site_id
		WHERE d.changed_time = $1
		UNION ALL
		SELECT a.id, a.site_id, a.changed_time, a.import_limit_active_watts, a.export_limit_active_watts,
		       a.generation_limit_active_watts, a.load_limit_active_watts, a.ramp_rate_percent_per_second,
		       COALESCE(
		           (SELECT s.aggregator_id FROM site s WHERE s.id = a.site_id),
		           (SELECT sa.aggregator_id FROM site_archive sa WHERE sa.id = a.site_id ORDER BY sa.archive_id DESC LIMIT 1)
		       ), TRUE AS deleted
		FROM default_site_control_archive a
		WHERE a.deleted_time = $1
		ORDER BY id ASC`

	rows, err := r.pool.Query(ctx, query, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ChangedDefaultSiteControl
	for rows.Next() {
		var d ChangedDefaultSiteControl
		err := rows.Scan(
			&d.ID, &d.SiteID, &d.ChangedTime, &d.ImportLimitActiveWatts, &d.ExportLimitActiveWatts,
			&d.GenerationLimitActiveWatts, &d.LoadLimitActiveWatts, &d.RampRatePercentPerSecond,
			&d.AggregatorID, &d.Deleted,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

var _ NotifyRepository = (*notifyRepo)(nil)
