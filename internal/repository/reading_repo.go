package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridmesh/csip-core/internal/models"
)

var siteReadingTypeSpec = archiveSpec{
	liveTable:    "site_reading_type",
	archiveTable: "site_reading_type_archive",
	columns: []string{
		"id", "aggregator_id", "site_id", "mrid", "created_time", "changed_time",
		"uom", "data_qualifier", "flow_direction", "accumulation_behaviour",
		"kind", "phase", "power_of_ten_multiplier", "default_interval_seconds",
		"role_flags",
	},
}

var siteReadingSpec = archiveSpec{
	liveTable:    "site_reading",
	archiveTable: "site_reading_archive",
	columns: []string{
		"id", "site_reading_type_id", "changed_time", "local_id",
		"quality_flags", "time_period_start", "time_period_seconds", "value",
	},
}

const readingTypeColumns = `id, aggregator_id, site_id, mrid, created_time, changed_time,
	uom, data_qualifier, flow_direction, accumulation_behaviour, kind, phase,
	power_of_ten_multiplier, default_interval_seconds, role_flags`

func scanReadingType(row pgx.Row) (*models.SiteReadingType, error) {
	var t models.SiteReadingType
	err := row.Scan(
		&t.ID, &t.AggregatorID, &t.SiteID, &t.MRID, &t.CreatedTime, &t.ChangedTime,
		&t.Uom, &t.DataQualifier, &t.FlowDirection, &t.AccumulationBehaviour,
		&t.Kind, &t.Phase, &t.PowerOfTenMultiplier, &t.DefaultIntervalSeconds,
		&t.RoleFlags,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ReadingRepository defines the interface for telemetry data operations.
type ReadingRepository interface {
	UpsertReadingType(ctx context.Context, t *models.SiteReadingType) error
	GetReadingType(ctx context.Context, aggregatorID, id int64) (*models.SiteReadingType, error)
	GetReadingTypeByMRID(ctx context.Context, aggregatorID int64, mrid string) (*models.SiteReadingType, error)
	ListReadingTypesForSite(ctx context.Context, aggregatorID, siteID int64) ([]*models.SiteReadingType, error)
	ListReadingTypes(ctx context.Context, aggregatorID int64, limit, offset int) ([]*models.SiteReadingType, error)
	CountReadingTypes(ctx context.Context, aggregatorID int64) (int, error)
	DeleteReadingType(ctx context.Context, aggregatorID, id int64, deletedTime time.Time) (bool, error)

	UpsertManyReadings(ctx context.Context, readings []*models.SiteReading) error
	ListReadings(ctx context.Context, readingTypeID int64, changedAfter time.Time, limit, offset int) ([]*models.SiteReading, error)
	CountReadings(ctx context.Context, readingTypeID int64, changedAfter time.Time) (int, error)
}

type readingRepo struct {
	pool *pgxpool.Pool
}

// NewReadingRepository creates a new reading repository.
func NewReadingRepository(pool *pgxpool.Pool) ReadingRepository {
	return &readingRepo{pool: pool}
}

// UpsertReadingType inserts a reading type stream or, when the natural key
// already exists for the site, archives the current row and updates the
// mutable fields.
func (r *readingRepo) UpsertReadingType(ctx context.Context, t *models.SiteReadingType) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = copyIntoArchive(ctx, tx, siteReadingTypeSpec,
		`aggregator_id = $1 AND site_id = $2 AND uom = $3 AND data_qualifier = $4
		 AND flow_direction = $5 AND accumulation_behaviour = $6 AND kind = $7 AND phase = $8`,
		t.AggregatorID, t.SiteID, t.Uom, t.DataQualifier,
		t.FlowDirection, t.AccumulationBehaviour, t.Kind, t.Phase,
	)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO site_reading_type (
			aggregator_id, site_id, mrid, changed_time, uom, data_qualifier,
			flow_direction, accumulation_behaviour, kind, phase,
			power_of_ten_multiplier, default_interval_seconds, role_flags
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (aggregator_id, site_id, uom, data_qualifier, flow_direction, accumulation_behaviour, kind, phase)
		DO UPDATE SET
			mrid = EXCLUDED.mrid,
			changed_time = EXCLUDED.changed_time,
			power_of_ten_multiplier = EXCLUDED.power_of_ten_multiplier,
			default_interval_seconds = EXCLUDED.default_interval_seconds,
			role_flags = EXCLUDED.role_flags
		RETURNING id, created_time`

	err = tx.QueryRow(ctx, query,
		t.AggregatorID, t.SiteID, t.MRID, t.ChangedTime, t.Uom, t.DataQualifier,
		t.FlowDirection, t.AccumulationBehaviour, t.Kind, t.Phase,
		t.PowerOfTenMultiplier, t.DefaultIntervalSeconds, t.RoleFlags,
	).Scan(&t.ID, &t.CreatedTime)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetReadingType retrieves a reading type by ID within an aggregator's scope.
func (r *readingRepo) GetReadingType(ctx context.Context, aggregatorID, id int64) (*models.SiteReadingType, error) {
	query := `SELECT ` + readingTypeColumns + ` FROM site_reading_type WHERE id = $1 AND aggregator_id = $2`
	return scanReadingType(r.pool.QueryRow(ctx, query, id, aggregatorID))
}

// GetReadingTypeByMRID retrieves a reading type by its MRID within an
// aggregator's scope. Matching is case-insensitive through the citext
// column.
func (r *readingRepo) GetReadingTypeByMRID(ctx context.Context, aggregatorID int64, mrid string) (*models.SiteReadingType, error) {
	query := `SELECT ` + readingTypeColumns + ` FROM site_reading_type WHERE mrid = $1 AND aggregator_id = $2`
	return scanReadingType(r.pool.QueryRow(ctx, query, mrid, aggregatorID))
}

// ListReadingTypesForSite retrieves all reading type streams for a site.
func (r *readingRepo) ListReadingTypesForSite(ctx context.Context, aggregatorID, siteID int64) ([]*models.SiteReadingType, error) {
	query := `SELECT ` + readingTypeColumns + ` FROM site_reading_type WHERE aggregator_id = $1 AND site_id = $2 ORDER BY id ASC`

	rows, err := r.pool.Query(ctx, query, aggregatorID, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []*models.SiteReadingType
	for rows.Next() {
		t, err := scanReadingType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// ListReadingTypes pages through every reading type stream the aggregator
// owns, across all of its sites.
func (r *readingRepo) ListReadingTypes(ctx context.Context, aggregatorID int64, limit, offset int) ([]*models.SiteReadingType, error) {
	query := `SELECT ` + readingTypeColumns + ` FROM site_reading_type
		WHERE aggregator_id = $1 ORDER BY id ASC LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, aggregatorID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []*models.SiteReadingType
	for rows.Next() {
		t, err := scanReadingType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// CountReadingTypes counts the aggregator's reading type streams.
func (r *readingRepo) CountReadingTypes(ctx context.Context, aggregatorID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM site_reading_type WHERE aggregator_id = $1`,
		aggregatorID,
	).Scan(&count)
	return count, err
}

// DeleteReadingType removes a reading type stream and its readings,
// archiving everything with the given deleted_time. Returns false if the
// stream does not exist in the aggregator's scope.
func (r *readingRepo) DeleteReadingType(ctx context.Context, aggregatorID, id int64, deletedTime time.Time) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM site_reading_type WHERE id = $1 AND aggregator_id = $2)`,
		id, aggregatorID,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	if _, err := deleteIntoArchive(ctx, tx, siteReadingSpec, deletedTime, "site_reading_type_id = $1", id); err != nil {
		return false, err
	}
	if _, err := deleteIntoArchive(ctx, tx, siteReadingTypeSpec, deletedTime, "id = $1", id); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// UpsertManyReadings inserts a batch of readings in one transaction. A
// reading landing on an occupied (stream, time_period_start) slot archives
// the old row and replaces it.
func (r *readingRepo) UpsertManyReadings(ctx context.Context, readings []*models.SiteReading) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO site_reading (
			site_reading_type_id, changed_time, local_id, quality_flags,
			time_period_start, time_period_seconds, value
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (site_reading_type_id, time_period_start) DO UPDATE SET
			changed_time = EXCLUDED.changed_time,
			local_id = EXCLUDED.local_id,
			quality_flags = EXCLUDED.quality_flags,
			time_period_seconds = EXCLUDED.time_period_seconds,
			value = EXCLUDED.value
		RETURNING id`

	for _, reading := range readings {
		err := copyIntoArchive(ctx, tx, siteReadingSpec,
			"site_reading_type_id = $1 AND time_period_start = $2",
			reading.SiteReadingTypeID, reading.TimePeriodStart,
		)
		if err != nil {
			return err
		}
		err = tx.QueryRow(ctx, query,
			reading.SiteReadingTypeID, reading.ChangedTime, reading.LocalID, reading.QualityFlags,
			reading.TimePeriodStart, reading.TimePeriodSeconds, reading.Value,
		).Scan(&reading.ID)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ListReadings pages a stream's readings changed after the watermark,
// ordered by period start then id.
func (r *readingRepo) ListReadings(ctx context.Context, readingTypeID int64, changedAfter time.Time, limit, offset int) ([]*models.SiteReading, error) {
	query := `
		SELECT id, site_reading_type_id, changed_time, local_id, quality_flags,
		       time_period_start, time_period_seconds, value
		FROM site_reading
		WHERE site_reading_type_id = $1 AND changed_time > $2
		ORDER BY time_period_start ASC, id ASC
		LIMIT $3 OFFSET $4`

	rows, err := r.pool.Query(ctx, query, readingTypeID, changedAfter, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []*models.SiteReading
	for rows.Next() {
		var v models.SiteReading
		err := rows.Scan(
			&v.ID, &v.SiteReadingTypeID, &v.ChangedTime, &v.LocalID, &v.QualityFlags,
			&v.TimePeriodStart, &v.TimePeriodSeconds, &v.Value,
		)
		if err != nil {
			return nil, err
		}
		readings = append(readings, &v)
	}
	return readings, rows.Err()
}

// CountReadings returns the number of readings matching the ListReadings filter.
func (r *readingRepo) CountReadings(ctx context.Context, readingTypeID int64, changedAfter time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM site_reading WHERE site_reading_type_id = $1 AND changed_time > $2`
	var count int
	err := r.pool.QueryRow(ctx, query, readingTypeID, changedAfter).Scan(&count)
	return count, err
}

var _ ReadingRepository = (*readingRepo)(nil)
