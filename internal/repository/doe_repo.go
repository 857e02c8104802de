package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridmesh/csip-core/internal/models"
)

var doeSpec = archiveSpec{
	liveTable:    "dynamic_operating_envelope",
	archiveTable: "dynamic_operating_envelope_archive",
	columns: []string{
		"id", "site_control_group_id", "site_id", "calculation_log_id",
		"created_time", "changed_time", "start_time", "duration_seconds",
		"end_time", "randomize_start_seconds", "import_limit_active_watts",
		"export_limit_watts", "generation_limit_watts", "load_limit_watts",
		"set_energized", "ramp_rate_percent_per_second", "superseded",
	},
}

var defaultSiteControlSpec = archiveSpec{
	liveTable:    "default_site_control",
	archiveTable: "default_site_control_archive",
	columns: []string{
		"id", "site_id", "changed_time", "import_limit_active_watts",
		"export_limit_active_watts", "generation_limit_active_watts",
		"load_limit_active_watts", "ramp_rate_percent_per_second",
	},
}

var scgSpec = archiveSpec{
	liveTable:    "site_control_group",
	archiveTable: "site_control_group_archive",
	columns: []string{
		"id", "description", "primacy", "fsa_id", "created_time", "changed_time",
		"version", "default_import_limit_watts", "default_export_limit_watts",
		"default_generation_limit_watts", "default_load_limit_watts",
		"default_energize", "default_ramp_rate_percent_per_second",
	},
}

const doeColumns = `id, site_control_group_id, site_id, calculation_log_id, created_time, changed_time,
	start_time, duration_seconds, end_time, randomize_start_seconds, import_limit_active_watts,
	export_limit_watts, generation_limit_watts, load_limit_watts, set_energized,
	ramp_rate_percent_per_second, superseded`

func scanDoe(row pgx.Row) (*models.DynamicOperatingEnvelope, error) {
	var d models.DynamicOperatingEnvelope
	err := row.Scan(
		&d.ID, &d.SiteControlGroupID, &d.SiteID, &d.CalculationLogID, &d.CreatedTime,
		&d.ChangedTime, &d.StartTime, &d.DurationSeconds, &d.EndTime, &d.RandomizeStartSeconds,
		&d.ImportLimitActiveWatts, &d.ExportLimitWatts, &d.GenerationLimitWatts,
		&d.LoadLimitWatts, &d.SetEnergized, &d.RampRatePercentPerSecond, &d.Superseded,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// DoeRepository defines the interface for control program and envelope data
// operations.
type DoeRepository interface {
	CreateControlGroup(ctx context.Context, g *models.SiteControlGroup) error
	GetControlGroup(ctx context.Context, id int64) (*models.SiteControlGroup, error)
	ListControlGroups(ctx context.Context, fsaID int32) ([]*models.SiteControlGroup, error)
	ListAllControlGroups(ctx context.Context) ([]*models.SiteControlGroup, error)
	UpdateControlGroupDefaults(ctx context.Context, g *models.SiteControlGroup) error

	UpsertMany(ctx context.Context, envelopes []*models.DynamicOperatingEnvelope) error
	SelectForSite(ctx context.Context, groupID, siteID int64, changedAfter time.Time, limit, offset int) ([]*models.DynamicOperatingEnvelope, error)
	CountForSite(ctx context.Context, groupID, siteID int64, changedAfter time.Time) (int, error)
	SelectActiveWithDeleted(ctx context.Context, groupID, siteID int64, now, deletedAfter time.Time, limit, offset int) ([]*models.DoeListEntry, error)
	CountActiveWithDeleted(ctx context.Context, groupID, siteID int64, now, deletedAfter time.Time) (int, error)
	FetchWithArchiveByID(ctx context.Context, siteID, doeID int64) (*models.DynamicOperatingEnvelope, error)
	SupersedeOverlapping(ctx context.Context, siteID int64, start, end time.Time, excludeGroupID int64, changedTime time.Time) (int64, error)
	CountArchiveForPeriod(ctx context.Context, period ArchivePeriod) (int, error)
	SelectArchiveForPeriod(ctx context.Context, period ArchivePeriod, limit, offset int) ([]*models.DynamicOperatingEnvelopeArchive, error)

	UpsertDefaultSiteControl(ctx context.Context, d *models.DefaultSiteControl) error
	GetDefaultSiteControl(ctx context.Context, siteID int64) (*models.DefaultSiteControl, error)

	CreateCalculationLog(ctx context.Context, l *models.CalculationLog) error
	GetCalculationLog(ctx context.Context, id int64) (*models.CalculationLog, error)
}

type doeRepo struct {
	pool *pgxpool.Pool
}

// NewDoeRepository creates a new envelope repository.
func NewDoeRepository(pool *pgxpool.Pool) DoeRepository {
	return &doeRepo{pool: pool}
}

const scgColumns = `id, description, primacy, fsa_id, created_time, changed_time, version,
	default_import_limit_watts, default_export_limit_watts, default_generation_limit_watts,
	default_load_limit_watts, default_energize, default_ramp_rate_percent_per_second`

func scanControlGroup(row pgx.Row) (*models.SiteControlGroup, error) {
	var g models.SiteControlGroup
	err := row.Scan(
		&g.ID, &g.Description, &g.Primacy, &g.FsaID, &g.CreatedTime, &g.ChangedTime,
		&g.Version, &g.DefaultImportLimitWatts, &g.DefaultExportLimitWatts,
		&g.DefaultGenerationLimitWatts, &g.DefaultLoadLimitWatts,
		&g.DefaultEnergize, &g.DefaultRampRatePercentPerSec,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// CreateControlGroup inserts a new control group at version 1.
func (r *doeRepo) CreateControlGroup(ctx context.Context, g *models.SiteControlGroup) error {
	query := `
		INSERT INTO site_control_group (
			description, primacy, fsa_id, changed_time,
			default_import_limit_watts, default_export_limit_watts,
			default_generation_limit_watts, default_load_limit_watts,
			default_energize, default_ramp_rate_percent_per_second
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_time, version`

	return r.pool.QueryRow(ctx, query,
		g.Description, g.Primacy, g.FsaID, g.ChangedTime,
		g.DefaultImportLimitWatts, g.DefaultExportLimitWatts,
		g.DefaultGenerationLimitWatts, g.DefaultLoadLimitWatts,
		g.DefaultEnergize, g.DefaultRampRatePercentPerSec,
	).Scan(&g.ID, &g.CreatedTime, &g.Version)
}

// GetControlGroup retrieves a control group by ID.
func (r *doeRepo) GetControlGroup(ctx context.Context, id int64) (*models.SiteControlGroup, error) {
	query := `SELECT ` + scgColumns + ` FROM site_control_group WHERE id = $1`
	return scanControlGroup(r.pool.QueryRow(ctx, query, id))
}

// ListControlGroups retrieves control groups in one function set
// assignment, highest primacy (lowest value) first.
func (r *doeRepo) ListControlGroups(ctx context.Context, fsaID int32) ([]*models.SiteControlGroup, error) {
	query := `SELECT ` + scgColumns + ` FROM site_control_group WHERE fsa_id = $1 ORDER BY primacy ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, fsaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*models.SiteControlGroup
	for rows.Next() {
		g, err := scanControlGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// ListAllControlGroups retrieves every control group.
func (r *doeRepo) ListAllControlGroups(ctx context.Context) ([]*models.SiteControlGroup, error) {
	query := `SELECT ` + scgColumns + ` FROM site_control_group ORDER BY primacy ASC, id ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*models.SiteControlGroup
	for rows.Next() {
		g, err := scanControlGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// UpdateControlGroupDefaults replaces the group-level default limits,
// archiving the old row and bumping the version so clients see a new
// default control document.
func (r *doeRepo) UpdateControlGroupDefaults(ctx context.Context, g *models.SiteControlGroup) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := copyIntoArchive(ctx, tx, scgSpec, "id = $1", g.ID); err != nil {
		return err
	}

	query := `
		UPDATE site_control_group SET
			changed_time = $2,
			version = version + 1,
			default_import_limit_watts = $3,
			default_export_limit_watts = $4,
			default_generation_limit_watts = $5,
			default_load_limit_watts = $6,
			default_energize = $7,
			default_ramp_rate_percent_per_second = $8
		WHERE id = $1
		RETURNING version`

	err = tx.QueryRow(ctx, query,
		g.ID, g.ChangedTime,
		g.DefaultImportLimitWatts, g.DefaultExportLimitWatts,
		g.DefaultGenerationLimitWatts, g.DefaultLoadLimitWatts,
		g.DefaultEnergize, g.DefaultRampRatePercentPerSec,
	).Scan(&g.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return pgx.ErrNoRows
	}
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpsertMany inserts a batch of envelopes in one transaction. An envelope
// landing on an occupied (site_id, start_time) slot archives the old row
// and replaces it, keeping the original id and created_time.
func (r *doeRepo) UpsertMany(ctx context.Context, envelopes []*models.DynamicOperatingEnvelope) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO dynamic_operating_envelope (
			site_control_group_id, site_id, calculation_log_id, changed_time,
			start_time, duration_seconds, end_time, randomize_start_seconds,
			import_limit_active_watts, export_limit_watts, generation_limit_watts,
			load_limit_watts, set_energized, ramp_rate_percent_per_second
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (site_id, start_time) DO UPDATE SET
			site_control_group_id = EXCLUDED.site_control_group_id,
			calculation_log_id = EXCLUDED.calculation_log_id,
			changed_time = EXCLUDED.changed_time,
			duration_seconds = EXCLUDED.duration_seconds,
			end_time = EXCLUDED.end_time,
			randomize_start_seconds = EXCLUDED.randomize_start_seconds,
			import_limit_active_watts = EXCLUDED.import_limit_active_watts,
			export_limit_watts = EXCLUDED.export_limit_watts,
			generation_limit_watts = EXCLUDED.generation_limit_watts,
			load_limit_watts = EXCLUDED.load_limit_watts,
			set_energized = EXCLUDED.set_energized,
			ramp_rate_percent_per_second = EXCLUDED.ramp_rate_percent_per_second,
			superseded = FALSE
		RETURNING id, created_time`

	for _, e := range envelopes {
		if err := copyIntoArchive(ctx, tx, doeSpec, "site_id = $1 AND start_time = $2", e.SiteID, e.StartTime); err != nil {
			return err
		}
		err = tx.QueryRow(ctx, query,
			e.SiteControlGroupID, e.SiteID, e.CalculationLogID, e.ChangedTime,
			e.StartTime, e.DurationSeconds, e.EndTime, e.RandomizeStartSeconds,
			e.ImportLimitActiveWatts, e.ExportLimitWatts, e.GenerationLimitWatts,
			e.LoadLimitWatts, e.SetEnergized, e.RampRatePercentPerSecond,
		).Scan(&e.ID, &e.CreatedTime)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// SelectForSite pages a site's non-superseded envelopes in a control group
// changed after the watermark, ordered by start_time then id.
func (r *doeRepo) SelectForSite(ctx context.Context, groupID, siteID int64, changedAfter time.Time, limit, offset int) ([]*models.DynamicOperatingEnvelope, error) {
	query := `
		SELECT ` + doeColumns + ` FROM dynamic_operating_envelope
		WHERE site_control_group_id = $1 AND site_id = $2
		  AND changed_time > $3 AND superseded = FALSE
		ORDER BY start_time ASC, id ASC
		LIMIT $4 OFFSET $5`

	rows, err := r.pool.Query(ctx, query, groupID, siteID, changedAfter, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var does []*models.DynamicOperatingEnvelope
	for rows.Next() {
		d, err := scanDoe(rows)
		if err != nil {
			return nil, err
		}
		does = append(does, d)
	}
	return does, rows.Err()
}

// CountForSite returns the number of envelopes matching the SelectForSite
// filter.
func (r *doeRepo) CountForSite(ctx context.Context, groupID, siteID int64, changedAfter time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM dynamic_operating_envelope
		WHERE site_control_group_id = $1 AND site_id = $2
		  AND changed_time > $3 AND superseded = FALSE`

	var count int
	err := r.pool.QueryRow(ctx, query, groupID, siteID, changedAfter).Scan(&count)
	return count, err
}

// SelectActiveWithDeleted pages the envelopes a device should act on: live
// envelopes whose [start_time, end_time) contains now, unioned with
// archived envelopes deleted after the client's watermark so a paginating
// client still observes the deletion. Ordering is stable under deletion.
func (r *doeRepo) SelectActiveWithDeleted(ctx context.Context, groupID, siteID int64, now, deletedAfter time.Time, limit, offset int) ([]*models.DoeListEntry, error) {
	query := `
		SELECT ` + doeColumns + `, NULL::timestamptz AS deleted_time
		FROM dynamic_operating_envelope
		WHERE site_control_group_id = $1 AND site_id = $2
		  AND start_time <= $3 AND end_time > $3 AND superseded = FALSE
		UNION ALL
		SELECT ` + doeColumns + `, deleted_time
		FROM dynamic_operating_envelope_archive
		WHERE site_control_group_id = $1 AND site_id = $2
		  AND deleted_time IS NOT NULL AND deleted_time > $4
		ORDER BY start_time ASC, id ASC
		LIMIT $5 OFFSET $6`

	rows, err := r.pool.Query(ctx, query, groupID, siteID, now, deletedAfter, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.DoeListEntry
	for rows.Next() {
		var e models.DoeListEntry
		err := rows.Scan(
			&e.ID, &e.SiteControlGroupID, &e.SiteID, &e.CalculationLogID, &e.CreatedTime,
			&e.ChangedTime, &e.StartTime, &e.DurationSeconds, &e.EndTime, &e.RandomizeStartSeconds,
			&e.ImportLimitActiveWatts, &e.ExportLimitWatts, &e.GenerationLimitWatts,
			&e.LoadLimitWatts, &e.SetEnergized, &e.RampRatePercentPerSecond, &e.Superseded,
			&e.DeletedTime,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// CountActiveWithDeleted returns the number of entries matching the
// SelectActiveWithDeleted filter.
func (r *doeRepo) CountActiveWithDeleted(ctx context.Context, groupID, siteID int64, now, deletedAfter time.Time) (int, error) {
	query := `
		SELECT (
			SELECT COUNT(*) FROM dynamic_operating_envelope
			WHERE site_control_group_id = $1 AND site_id = $2
			  AND start_time <= $3 AND end_time > $3 AND superseded = FALSE
		) + (
			SELECT COUNT(*) FROM dynamic_operating_envelope_archive
			WHERE site_control_group_id = $1 AND site_id = $2
			  AND deleted_time IS NOT NULL AND deleted_time > $4
		)`

	var count int
	err := r.pool.QueryRow(ctx, query, groupID, siteID, now, deletedAfter).Scan(&count)
	return count, err
}

// FetchWithArchiveByID retrieves an envelope by ID for a site, falling back
// to the most recent archive copy when the live row is gone. Responses can
// arrive after the envelope they acknowledge has been replaced or deleted.
func (r *doeRepo) FetchWithArchiveByID(ctx context.Context, siteID, doeID int64) (*models.DynamicOperatingEnvelope, error) {
	query := `SELECT ` + doeColumns + ` FROM dynamic_operating_envelope WHERE id = $1 AND site_id = $2`
	d, err := scanDoe(r.pool.QueryRow(ctx, query, doeID, siteID))
	if err != nil || d != nil {
		return d, err
	}

	archiveQuery := `
		SELECT ` + doeColumns + ` FROM dynamic_operating_envelope_archive
		WHERE id = $1 AND site_id = $2
		ORDER BY deleted_time DESC NULLS LAST, archive_time DESC LIMIT 1`
	return scanDoe(r.pool.QueryRow(ctx, archiveQuery, doeID, siteID))
}

// SupersedeOverlapping marks a site's envelopes overlapping [start, end)
// from other control groups as superseded, archiving each first. Returns
// the number of envelopes superseded.
func (r *doeRepo) SupersedeOverlapping(ctx context.Context, siteID int64, start, end time.Time, excludeGroupID int64, changedTime time.Time) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	where := `site_id = $1 AND site_control_group_id <> $2
		  AND start_time < $3 AND end_time > $4 AND superseded = FALSE`
	if err := copyIntoArchive(ctx, tx, doeSpec, where, siteID, excludeGroupID, end, start); err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE dynamic_operating_envelope
		SET superseded = TRUE, changed_time = $5
		WHERE `+where,
		siteID, excludeGroupID, end, start, changedTime,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), tx.Commit(ctx)
}

// CountArchiveForPeriod counts envelope archive rows for the period.
func (r *doeRepo) CountArchiveForPeriod(ctx context.Context, period ArchivePeriod) (int, error) {
	return countArchiveForPeriod(ctx, r.pool, doeSpec, period)
}

// SelectArchiveForPeriod pages envelope archive rows for the period.
func (r *doeRepo) SelectArchiveForPeriod(ctx context.Context, period ArchivePeriod, limit, offset int) ([]*models.DynamicOperatingEnvelopeArchive, error) {
	return selectArchiveForPeriod(ctx, r.pool, doeSpec, period, limit, offset, func(rows pgx.Rows) (*models.DynamicOperatingEnvelopeArchive, error) {
		var a models.DynamicOperatingEnvelopeArchive
		err := rows.Scan(
			&a.ArchiveID, &a.ArchiveTime, &a.DeletedTime,
			&a.ID, &a.SiteControlGroupID, &a.SiteID, &a.CalculationLogID, &a.CreatedTime,
			&a.ChangedTime, &a.StartTime, &a.DurationSeconds, &a.EndTime, &a.RandomizeStartSeconds,
			&a.ImportLimitActiveWatts, &a.ExportLimitWatts, &a.GenerationLimitWatts,
			&a.LoadLimitWatts, &a.SetEnergized, &a.RampRatePercentPerSecond, &a.Superseded,
		)
		return &a, err
	})
}

// UpsertDefaultSiteControl replaces a site's fallback limits, archiving any
// previous row first.
func (r *doeRepo) UpsertDefaultSiteControl(ctx context.Context, d *models.DefaultSiteControl) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := copyIntoArchive(ctx, tx, defaultSiteControlSpec, "site_id = $1", d.SiteID); err != nil {
		return err
	}

	query := `
		INSERT INTO default_site_control (
			site_id, changed_time, import_limit_active_watts, export_limit_active_watts,
			generation_limit_active_watts, load_limit_active_watts, ramp_rate_percent_per_second
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (site_id) DO UPDATE SET
			changed_time = EXCLUDED.changed_time,
			import_limit_active_watts = EXCLUDED.import_limit_active_watts,
			export_limit_active_watts = EXCLUDED.export_limit_active_watts,
			generation_limit_active_watts = EXCLUDED.generation_limit_active_watts,
			load_limit_active_watts = EXCLUDED.load_limit_active_watts,
			ramp_rate_percent_per_second = EXCLUDED.ramp_rate_percent_per_second
		RETURNING id`

	err = tx.QueryRow(ctx, query,
		d.SiteID, d.ChangedTime, d.ImportLimitActiveWatts, d.ExportLimitActiveWatts,
		d.GenerationLimitActiveWatts, d.LoadLimitActiveWatts, d.RampRatePercentPerSecond,
	).Scan(&d.ID)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetDefaultSiteControl retrieves a site's fallback limits.
func (r *doeRepo) GetDefaultSiteControl(ctx context.Context, siteID int64) (*models.DefaultSiteControl, error) {
	query := `
		SELECT id, site_id, changed_time, import_limit_active_watts, export_limit_active_watts,
		       generation_limit_active_watts, load_limit_active_watts, ramp_rate_percent_per_second
		FROM default_site_control WHERE site_id = $1`

	var d models.DefaultSiteControl
	err := r.pool.QueryRow(ctx, query, siteID).Scan(
		&d.ID, &d.SiteID, &d.ChangedTime, &d.ImportLimitActiveWatts, &d.ExportLimitActiveWatts,
		&d.GenerationLimitActiveWatts, &d.LoadLimitActiveWatts, &d.RampRatePercentPerSecond,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateCalculationLog inserts a calculation run record.
func (r *doeRepo) CreateCalculationLog(ctx context.Context, l *models.CalculationLog) error {
	query := `
		INSERT INTO calculation_log (calculation_range_start, calculation_range_duration_seconds, external_id, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_time`

	return r.pool.QueryRow(ctx, query,
		l.CalculationRangeStart, l.CalculationRangeDurationSeconds, l.ExternalID, l.Description,
	).Scan(&l.ID, &l.CreatedTime)
}

// GetCalculationLog retrieves a calculation run record by ID.
func (r *doeRepo) GetCalculationLog(ctx context.Context, id int64) (*models.CalculationLog, error) {
	query := `
		SELECT id, created_time, calculation_range_start, calculation_range_duration_seconds, external_id, description
		FROM calculation_log WHERE id = $1`

	var l models.CalculationLog
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&l.ID, &l.CreatedTime, &l.CalculationRangeStart, &l.CalculationRangeDurationSeconds,
		&l.ExternalID, &l.Description,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

var _ DoeRepository = (*doeRepo)(nil)
