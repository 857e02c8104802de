package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridmesh/csip-core/internal/models"
)

var rateSpec = archiveSpec{
	liveTable:    "tariff_generated_rate",
	archiveTable: "tariff_generated_rate_archive",
	columns: []string{
		"id", "tariff_id", "site_id", "calculation_log_id", "created_time",
		"changed_time", "start_time", "duration_seconds", "import_active_price",
		"export_active_price", "import_reactive_price", "export_reactive_price",
	},
}

const rateColumns = `id, tariff_id, site_id, calculation_log_id, created_time, changed_time,
	start_time, duration_seconds, import_active_price, export_active_price,
	import_reactive_price, export_reactive_price`

func scanRate(row pgx.Row) (*models.TariffGeneratedRate, error) {
	var t models.TariffGeneratedRate
	err := row.Scan(
		&t.ID, &t.TariffID, &t.SiteID, &t.CalculationLogID, &t.CreatedTime,
		&t.ChangedTime, &t.StartTime, &t.DurationSeconds, &t.ImportActivePrice,
		&t.ExportActivePrice, &t.ImportReactivePrice, &t.ExportReactivePrice,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// TariffRepository defines the interface for tariff and rate data
// operations.
type TariffRepository interface {
	CreateTariff(ctx context.Context, t *models.Tariff) error
	GetTariff(ctx context.Context, id int64) (*models.Tariff, error)
	ListTariffs(ctx context.Context, changedAfter time.Time, limit, offset int) ([]*models.Tariff, error)
	CountTariffs(ctx context.Context, changedAfter time.Time) (int, error)

	UpsertManyRates(ctx context.Context, rates []*models.TariffGeneratedRate) error
	SelectRatesForDay(ctx context.Context, tariffID, siteID int64, dayStart, dayEnd time.Time, changedAfter time.Time, limit, offset int) ([]*models.TariffGeneratedRate, error)
	CountRatesForDay(ctx context.Context, tariffID, siteID int64, dayStart, dayEnd time.Time, changedAfter time.Time) (int, error)
	ListRateDays(ctx context.Context, tariffID, siteID int64, tz *time.Location, changedAfter time.Time, limit, offset int) ([]time.Time, error)
	CountRateDays(ctx context.Context, tariffID, siteID int64, tz *time.Location, changedAfter time.Time) (int, error)
	FetchRateWithArchiveByID(ctx context.Context, siteID, rateID int64) (*models.TariffGeneratedRate, error)
	CountRateArchiveForPeriod(ctx context.Context, period ArchivePeriod) (int, error)
	SelectRateArchiveForPeriod(ctx context.Context, period ArchivePeriod, limit, offset int) ([]*models.TariffGeneratedRateArchive, error)
}

type tariffRepo struct {
	pool *pgxpool.Pool
}

// NewTariffRepository creates a new tariff repository.
func NewTariffRepository(pool *pgxpool.Pool) TariffRepository {
	return &tariffRepo{pool: pool}
}

// CreateTariff inserts a new tariff record.
func (r *tariffRepo) CreateTariff(ctx context.Context, t *models.Tariff) error {
	query := `
		INSERT INTO tariff (name, dnsp_code, currency_code, fsa_id, changed_time)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_time`

	return r.pool.QueryRow(ctx, query,
		t.Name, t.DnspCode, t.CurrencyCode, t.FsaID, t.ChangedTime,
	).Scan(&t.ID, &t.CreatedTime)
}

// GetTariff retrieves a tariff by ID.
func (r *tariffRepo) GetTariff(ctx context.Context, id int64) (*models.Tariff, error) {
	query := `SELECT id, name, dnsp_code, currency_code, fsa_id, created_time, changed_time FROM tariff WHERE id = $1`

	var t models.Tariff
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.Name, &t.DnspCode, &t.CurrencyCode, &t.FsaID, &t.CreatedTime, &t.ChangedTime,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTariffs pages tariffs changed after the watermark, newest first.
func (r *tariffRepo) ListTariffs(ctx context.Context, changedAfter time.Time, limit, offset int) ([]*models.Tariff, error) {
	query := `
		SELECT id, name, dnsp_code, currency_code, fsa_id, created_time, changed_time
		FROM tariff WHERE changed_time > $1
		ORDER BY changed_time DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, changedAfter, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tariffs []*models.Tariff
	for rows.Next() {
		var t models.Tariff
		if err := rows.Scan(&t.ID, &t.Name, &t.DnspCode, &t.CurrencyCode, &t.FsaID, &t.CreatedTime, &t.ChangedTime); err != nil {
			return nil, err
		}
		tariffs = append(tariffs, &t)
	}
	return tariffs, rows.Err()
}

// CountTariffs returns the number of tariffs matching the List filter.
func (r *tariffRepo) CountTariffs(ctx context.Context, changedAfter time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tariff WHERE changed_time > $1`, changedAfter).Scan(&count)
	return count, err
}

// UpsertManyRates inserts a batch of rates in one transaction. A rate
// landing on an occupied (tariff_id, site_id, start_time) slot archives the
// old row and replaces it.
func (r *tariffRepo) UpsertManyRates(ctx context.Context, rates []*models.TariffGeneratedRate) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO tariff_generated_rate (
			tariff_id, site_id, calculation_log_id, changed_time, start_time,
			duration_seconds, import_active_price, export_active_price,
			import_reactive_price, export_reactive_price
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tariff_id, site_id, start_time) DO UPDATE SET
			calculation_log_id = EXCLUDED.calculation_log_id,
			changed_time = EXCLUDED.changed_time,
			duration_seconds = EXCLUDED.duration_seconds,
			import_active_price = EXCLUDED.import_active_price,
			export_active_price = EXCLUDED.export_active_price,
			import_reactive_price = EXCLUDED.import_reactive_price,
			export_reactive_price = EXCLUDED.export_reactive_price
		RETURNING id, created_time`

	for _, rate := range rates {
		err := copyIntoArchive(ctx, tx, rateSpec,
			"tariff_id = $1 AND site_id = $2 AND start_time = $3",
			rate.TariffID, rate.SiteID, rate.StartTime,
		)
		if err != nil {
			return err
		}
		err = tx.QueryRow(ctx, query,
			rate.TariffID, rate.SiteID, rate.CalculationLogID, rate.ChangedTime, rate.StartTime,
			rate.DurationSeconds, rate.ImportActivePrice, rate.ExportActivePrice,
			rate.ImportReactivePrice, rate.ExportReactivePrice,
		).Scan(&rate.ID, &rate.CreatedTime)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// SelectRatesForDay pages a site's rates within [dayStart, dayEnd) changed
// after the watermark, ordered by start_time then id.
func (r *tariffRepo) SelectRatesForDay(ctx context.Context, tariffID, siteID int64, dayStart, dayEnd time.Time, changedAfter time.Time, limit, offset int) ([]*models.TariffGeneratedRate, error) {
	query := `
		SELECT ` + rateColumns + ` FROM tariff_generated_rate
		WHERE tariff_id = $1 AND site_id = $2
		  AND start_time >= $3 AND start_time < $4 AND changed_time > $5
		ORDER BY start_time ASC, id ASC
		LIMIT $6 OFFSET $7`

	rows, err := r.pool.Query(ctx, query, tariffID, siteID, dayStart, dayEnd, changedAfter, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rates []*models.TariffGeneratedRate
	for rows.Next() {
		rate, err := scanRate(rows)
		if err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}

// CountRatesForDay returns the number of rates matching the SelectRatesForDay filter.
func (r *tariffRepo) CountRatesForDay(ctx context.Context, tariffID, siteID int64, dayStart, dayEnd time.Time, changedAfter time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM tariff_generated_rate
		WHERE tariff_id = $1 AND site_id = $2
		  AND start_time >= $3 AND start_time < $4 AND changed_time > $5`

	var count int
	err := r.pool.QueryRow(ctx, query, tariffID, siteID, dayStart, dayEnd, changedAfter).Scan(&count)
	return count, err
}

// ListRateDays pages the distinct local calendar days a site has rates for,
// in the site's timezone, newest day first.
func (r *tariffRepo) ListRateDays(ctx context.Context, tariffID, siteID int64, tz *time.Location, changedAfter time.Time, limit, offset int) ([]time.Time, error) {
	query := `
		SELECT DISTINCT DATE(start_time AT TIME ZONE $3) AS day
		FROM tariff_generated_rate
		WHERE tariff_id = $1 AND site_id = $2 AND changed_time > $4
		ORDER BY day DESC
		LIMIT $5 OFFSET $6`

	rows, err := r.pool.Query(ctx, query, tariffID, siteID, tz.String(), changedAfter, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, err
		}
		// DATE scans as midnight UTC; re-anchor to the site's timezone.
		days = append(days, time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, tz))
	}
	return days, rows.Err()
}

// CountRateDays returns the number of distinct local days with rates.
func (r *tariffRepo) CountRateDays(ctx context.Context, tariffID, siteID int64, tz *time.Location, changedAfter time.Time) (int, error) {
	query := `
		SELECT COUNT(DISTINCT DATE(start_time AT TIME ZONE $3))
		FROM tariff_generated_rate
		WHERE tariff_id = $1 AND site_id = $2 AND changed_time > $4`

	var count int
	err := r.pool.QueryRow(ctx, query, tariffID, siteID, tz.String(), changedAfter).Scan(&count)
	return count, err
}

// FetchRateWithArchiveByID retrieves a rate by ID for a site, falling back
// to the most recent archive copy when the live row is gone.
func (r *tariffRepo) FetchRateWithArchiveByID(ctx context.Context, siteID, rateID int64) (*models.TariffGeneratedRate, error) {
	query := `SELECT ` + rateColumns + ` FROM tariff_generated_rate WHERE id = $1 AND site_id = $2`
	rate, err := scanRate(r.pool.QueryRow(ctx, query, rateID, siteID))
	if err != nil || rate != nil {
		return rate, err
	}

	archiveQuery := `
		SELECT ` + rateColumns + ` FROM tariff_generated_rate_archive
		WHERE id = $1 AND site_id = $2
		ORDER BY deleted_time DESC NULLS LAST, archive_time DESC LIMIT 1`
	return scanRate(r.pool.QueryRow(ctx, archiveQuery, rateID, siteID))
}

// CountRateArchiveForPeriod counts rate archive rows for the period.
func (r *tariffRepo) CountRateArchiveForPeriod(ctx context.Context, period ArchivePeriod) (int, error) {
	return countArchiveForPeriod(ctx, r.pool, rateSpec, period)
}

// SelectRateArchiveForPeriod pages rate archive rows for the period.
func (r *tariffRepo) SelectRateArchiveForPeriod(ctx context.Context, period ArchivePeriod, limit, offset int) ([]*models.TariffGeneratedRateArchive, error) {
	return selectArchiveForPeriod(ctx, r.pool, rateSpec, period, limit, offset, func(rows pgx.Rows) (*models.TariffGeneratedRateArchive, error) {
		var a models.TariffGeneratedRateArchive
		err := rows.Scan(
			&a.ArchiveID, &a.ArchiveTime, &a.DeletedTime,
			&a.ID, &a.TariffID, &a.SiteID, &a.CalculationLogID, &a.CreatedTime,
			&a.ChangedTime, &a.StartTime, &a.DurationSeconds, &a.ImportActivePrice,
			&a.ExportActivePrice, &a.ImportReactivePrice, &a.ExportReactivePrice,
		)
		return &a, err
	})
}

var _ TariffRepository = (*tariffRepo)(nil)
