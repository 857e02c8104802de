package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridmesh/csip-core/internal/models"
)

var siteSpec = archiveSpec{
	liveTable:    "site",
	archiveTable: "site_archive",
	columns: []string{
		"id", "aggregator_id", "nmi", "timezone_id", "created_time",
		"changed_time", "lfdi", "sfdi", "device_category", "registration_pin",
	},
}

const siteColumns = `id, aggregator_id, nmi, timezone_id, created_time, changed_time, lfdi, sfdi, device_category, registration_pin`

// SiteRepository defines the interface for site data operations. All reads
// are scoped by aggregator so a tenant can never observe another tenant's
// sites.
type SiteRepository interface {
	GetByID(ctx context.Context, aggregatorID, siteID int64) (*models.Site, error)
	GetByLFDI(ctx context.Context, lfdi string) (*models.Site, error)
	GetByAggregatorAndSFDI(ctx context.Context, aggregatorID, sfdi int64) (*models.Site, error)
	List(ctx context.Context, aggregatorID int64, changedAfter time.Time, limit, offset int) ([]*models.Site, error)
	Count(ctx context.Context, aggregatorID int64, changedAfter time.Time) (int, error)
	Create(ctx context.Context, site *models.Site) error
	Upsert(ctx context.Context, site *models.Site) (created bool, err error)
	DeleteCascade(ctx context.Context, aggregatorID, siteID int64, deletedTime time.Time) (bool, error)
	CountDeletedForPeriod(ctx context.Context, period ArchivePeriod) (int, error)
	SelectDeletedForPeriod(ctx context.Context, period ArchivePeriod, limit, offset int) ([]*models.SiteArchive, error)
}

type siteRepo struct {
	pool *pgxpool.Pool
}

// NewSiteRepository creates a new site repository.
func NewSiteRepository(pool *pgxpool.Pool) SiteRepository {
	return &siteRepo{pool: pool}
}

func scanSite(row pgx.Row) (*models.Site, error) {
	var s models.Site
	err := row.Scan(
		&s.ID, &s.AggregatorID, &s.NMI, &s.TimezoneID, &s.CreatedTime,
		&s.ChangedTime, &s.LFDI, &s.SFDI, &s.DeviceCategory, &s.RegistrationPIN,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByID retrieves a site by ID within an aggregator's scope.
func (r *siteRepo) GetByID(ctx context.Context, aggregatorID, siteID int64) (*models.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM site WHERE id = $1 AND aggregator_id = $2`
	return scanSite(r.pool.QueryRow(ctx, query, siteID, aggregatorID))
}

// GetByLFDI retrieves a site by LFDI. LFDIs are globally unique so this
// lookup is unscoped; it backs device-certificate scope derivation.
func (r *siteRepo) GetByLFDI(ctx context.Context, lfdi string) (*models.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM site WHERE lfdi = $1`
	return scanSite(r.pool.QueryRow(ctx, query, lfdi))
}

// GetByAggregatorAndSFDI retrieves a site by its per-tenant SFDI.
func (r *siteRepo) GetByAggregatorAndSFDI(ctx context.Context, aggregatorID, sfdi int64) (*models.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM site WHERE aggregator_id = $1 AND sfdi = $2`
	return scanSite(r.pool.QueryRow(ctx, query, aggregatorID, sfdi))
}

// List pages an aggregator's sites changed after the given watermark,
// ordered by changed_time then id for a stable paging cursor.
func (r *siteRepo) List(ctx context.Context, aggregatorID int64, changedAfter time.Time, limit, offset int) ([]*models.Site, error) {
	query := `
		SELECT ` + siteColumns + ` FROM site
		WHERE aggregator_id = $1 AND changed_time > $2
		ORDER BY changed_time DESC, id DESC
		LIMIT $3 OFFSET $4`

	rows, err := r.pool.Query(ctx, query, aggregatorID, changedAfter, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sites []*models.Site
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, s)
	}
	return sites, rows.Err()
}

// Count returns the number of sites matching the List filter.
func (r *siteRepo) Count(ctx context.Context, aggregatorID int64, changedAfter time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM site WHERE aggregator_id = $1 AND changed_time > $2`
	var count int
	err := r.pool.QueryRow(ctx, query, aggregatorID, changedAfter).Scan(&count)
	return count, err
}

// Create inserts a new site record.
func (r *siteRepo) Create(ctx context.Context, site *models.Site) error {
	query := `
		INSERT INTO site (aggregator_id, nmi, timezone_id, changed_time, lfdi, sfdi, device_category, registration_pin)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_time`

	return r.pool.QueryRow(ctx, query,
		site.AggregatorID, site.NMI, site.TimezoneID, site.ChangedTime,
		site.LFDI, site.SFDI, site.DeviceCategory, site.RegistrationPIN,
	).Scan(&site.ID, &site.CreatedTime)
}

// Upsert inserts a site or, when the LFDI already exists, archives the
// current row and updates it in place. The registration PIN and created
// time of an existing site are never changed by an upsert.
func (r *siteRepo) Upsert(ctx context.Context, site *models.Site) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	if err := copyIntoArchive(ctx, tx, siteSpec, "lfdi = $1", site.LFDI); err != nil {
		return false, err
	}

	query := `
		INSERT INTO site (aggregator_id, nmi, timezone_id, changed_time, lfdi, sfdi, device_category, registration_pin)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (lfdi) DO UPDATE SET
			nmi = EXCLUDED.nmi,
			timezone_id = EXCLUDED.timezone_id,
			changed_time = EXCLUDED.changed_time,
			device_category = EXCLUDED.device_category
		RETURNING id, created_time, registration_pin, (xmax = 0)`

	var created bool
	err = tx.QueryRow(ctx, query,
		site.AggregatorID, site.NMI, site.TimezoneID, site.ChangedTime,
		site.LFDI, site.SFDI, site.DeviceCategory, site.RegistrationPIN,
	).Scan(&site.ID, &site.CreatedTime, &site.RegistrationPIN, &created)
	if err != nil {
		return false, err
	}

	return created, tx.Commit(ctx)
}

// DeleteCascade removes a site and everything hanging off it, archiving
// every row with the same deleted_time. Returns false if the site does not
// exist in the aggregator's scope.
func (r *siteRepo) DeleteCascade(ctx context.Context, aggregatorID, siteID int64, deletedTime time.Time) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	// Ownership check up front so children of another tenant's site can
	// never be touched.
	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM site WHERE id = $1 AND aggregator_id = $2)`,
		siteID, aggregatorID,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	// Leaves first so foreign keys hold at every step.
	children := []struct {
		spec  archiveSpec
		where string
	}{
		{siteReadingSpec, "site_reading_type_id IN (SELECT id FROM site_reading_type WHERE site_id = $1)"},
		{siteReadingTypeSpec, "site_id = $1"},
		{doeSpec, "site_id = $1"},
		{rateSpec, "site_id = $1"},
		{defaultSiteControlSpec, "site_id = $1"},
		{siteDERRatingSpec, "site_der_id IN (SELECT id FROM site_der WHERE site_id = $1)"},
		{siteDERSettingSpec, "site_der_id IN (SELECT id FROM site_der WHERE site_id = $1)"},
		{siteDERAvailabilitySpec, "site_der_id IN (SELECT id FROM site_der WHERE site_id = $1)"},
		{siteDERStatusSpec, "site_der_id IN (SELECT id FROM site_der WHERE site_id = $1)"},
		{siteDERSpec, "site_id = $1"},
		{siteLogEventSpec, "site_id = $1"},
		{subscriptionSpec, "scoped_site_id = $1"},
	}
	for _, c := range children {
		if _, err := deleteIntoArchive(ctx, tx, c.spec, deletedTime, c.where, siteID); err != nil {
			return false, err
		}
	}

	n, err := deleteIntoArchive(ctx, tx, siteSpec, deletedTime, "id = $1", siteID)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, fmt.Errorf("site %d vanished mid-delete", siteID)
	}

	return true, tx.Commit(ctx)
}

// CountDeletedForPeriod counts site archive rows for the period.
func (r *siteRepo) CountDeletedForPeriod(ctx context.Context, period ArchivePeriod) (int, error) {
	return countArchiveForPeriod(ctx, r.pool, siteSpec, period)
}

// SelectDeletedForPeriod pages site archive rows for the period.
func (r *siteRepo) SelectDeletedForPeriod(ctx context.Context, period ArchivePeriod, limit, offset int) ([]*models.SiteArchive, error) {
	return selectArchiveForPeriod(ctx, r.pool, siteSpec, period, limit, offset, func(rows pgx.Rows) (*models.SiteArchive, error) {
		var a models.SiteArchive
		err := rows.Scan(
			&a.ArchiveID, &a.ArchiveTime, &a.DeletedTime,
			&a.ID, &a.AggregatorID, &a.NMI, &a.TimezoneID, &a.CreatedTime,
			&a.ChangedTime, &a.LFDI, &a.SFDI, &a.DeviceCategory, &a.RegistrationPIN,
		)
		return &a, err
	})
}

var _ SiteRepository = (*siteRepo)(nil)
