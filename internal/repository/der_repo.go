package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridmesh/csip-core/internal/models"
)

var siteDERSpec = archiveSpec{
	liveTable:    "site_der",
	archiveTable: "site_der_archive",
	columns:      []string{"id", "site_id", "created_time", "changed_time"},
}

var siteDERRatingSpec = archiveSpec{
	liveTable:    "site_der_rating",
	archiveTable: "site_der_rating_archive",
	columns: []string{
		"id", "site_der_id", "changed_time", "modes_supported", "der_type",
		"max_w_value", "max_w_multiplier", "max_va_value", "max_va_multiplier",
		"max_var_value", "max_var_multiplier",
	},
}

var siteDERSettingSpec = archiveSpec{
	liveTable:    "site_der_setting",
	archiveTable: "site_der_setting_archive",
	columns: []string{
		"id", "site_der_id", "changed_time", "grad_w",
		"max_w_value", "max_w_multiplier", "max_va_value", "max_va_multiplier",
		"max_var_value", "max_var_multiplier",
	},
}

var siteDERAvailabilitySpec = archiveSpec{
	liveTable:    "site_der_availability",
	archiveTable: "site_der_availability_archive",
	columns: []string{
		"id", "site_der_id", "changed_time", "availability_duration_sec",
		"reserve_percent", "estimated_w_avail_value", "estimated_w_avail_multiplier",
	},
}

var siteDERStatusSpec = archiveSpec{
	liveTable:    "site_der_status",
	archiveTable: "site_der_status_archive",
	columns: []string{
		"id", "site_der_id", "changed_time", "gen_connect_status",
		"gen_connect_status_time", "inverter_status", "inverter_status_time",
		"operational_mode_status", "operational_mode_status_time",
	},
}

// DERRepository defines the interface for site DER data operations. Each
// site carries at most one DER record; facet upserts archive the previous
// state before replacing it.
type DERRepository interface {
	GetOrCreate(ctx context.Context, siteID int64, der *models.SiteDER) error
	GetBySiteID(ctx context.Context, siteID int64) (*models.SiteDER, error)
	UpsertRating(ctx context.Context, rating *models.SiteDERRating) error
	GetRating(ctx context.Context, siteDERID int64) (*models.SiteDERRating, error)
	UpsertSetting(ctx context.Context, setting *models.SiteDERSetting) error
	GetSetting(ctx context.Context, siteDERID int64) (*models.SiteDERSetting, error)
	UpsertAvailability(ctx context.Context, avail *models.SiteDERAvailability) error
	GetAvailability(ctx context.Context, siteDERID int64) (*models.SiteDERAvailability, error)
	UpsertStatus(ctx context.Context, status *models.SiteDERStatus) error
	GetStatus(ctx context.Context, siteDERID int64) (*models.SiteDERStatus, error)
}

type derRepo struct {
	pool *pgxpool.Pool
}

// NewDERRepository creates a new DER repository.
func NewDERRepository(pool *pgxpool.Pool) DERRepository {
	return &derRepo{pool: pool}
}

// GetOrCreate returns the site's DER record, creating it on first touch.
func (r *derRepo) GetOrCreate(ctx context.Context, siteID int64, der *models.SiteDER) error {
	query := `
		INSERT INTO site_der (site_id, changed_time)
		VALUES ($1, $2)
		ON CONFLICT (site_id) DO UPDATE SET site_id = EXCLUDED.site_id
		RETURNING id, site_id, created_time, changed_time`

	return r.pool.QueryRow(ctx, query, siteID, der.ChangedTime).Scan(
		&der.ID, &der.SiteID, &der.CreatedTime, &der.ChangedTime,
	)
}

// GetBySiteID retrieves a site's DER record.
func (r *derRepo) GetBySiteID(ctx context.Context, siteID int64) (*models.SiteDER, error) {
	query := `SELECT id, site_id, created_time, changed_time FROM site_der WHERE site_id = $1`

	var der models.SiteDER
	err := r.pool.QueryRow(ctx, query, siteID).Scan(&der.ID, &der.SiteID, &der.CreatedTime, &der.ChangedTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &der, nil
}

// touchDER bumps the parent DER changed_time after archiving its current
// state. Runs inside the facet upsert transaction.
func touchDER(ctx context.Context, q Querier, siteDERID int64, changedTime any) error {
	if err := copyIntoArchive(ctx, q, siteDERSpec, "id = $1", siteDERID); err != nil {
		return err
	}
	_, err := q.Exec(ctx, `UPDATE site_der SET changed_time = $1 WHERE id = $2`, changedTime, siteDERID)
	return err
}

// UpsertRating replaces the DER's nameplate rating, archiving any previous
// value first.
func (r *derRepo) UpsertRating(ctx context.Context, rating *models.SiteDERRating) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := copyIntoArchive(ctx, tx, siteDERRatingSpec, "site_der_id = $1", rating.SiteDERID); err != nil {
		return err
	}

	query := `
		INSERT INTO site_der_rating (
			site_der_id, changed_time, modes_supported, der_type,
			max_w_value, max_w_multiplier, max_va_value, max_va_multiplier,
			max_var_value, max_var_multiplier
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (site_der_id) DO UPDATE SET
			changed_time = EXCLUDED.changed_time,
			modes_supported = EXCLUDED.modes_supported,
			der_type = EXCLUDED.der_type,
			max_w_value = EXCLUDED.max_w_value,
			max_w_multiplier = EXCLUDED.max_w_multiplier,
			max_va_value = EXCLUDED.max_va_value,
			max_va_multiplier = EXCLUDED.max_va_multiplier,
			max_var_value = EXCLUDED.max_var_value,
			max_var_multiplier = EXCLUDED.max_var_multiplier
		RETURNING id`

	err = tx.QueryRow(ctx, query,
		rating.SiteDERID, rating.ChangedTime, rating.ModesSupported, rating.DERType,
		rating.MaxWValue, rating.MaxWMultiplier, rating.MaxVAValue, rating.MaxVAMultiplier,
		rating.MaxVarValue, rating.MaxVarMultiplier,
	).Scan(&rating.ID)
	if err != nil {
		return err
	}

	if err := touchDER(ctx, tx, rating.SiteDERID, rating.ChangedTime); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetRating retrieves the DER's nameplate rating.
func (r *derRepo) GetRating(ctx context.Context, siteDERID int64) (*models.SiteDERRating, error) {
	query := `
		SELECT id, site_der_id, changed_time, modes_supported, der_type,
		       max_w_value, max_w_multiplier, max_va_value, max_va_multiplier,
		       max_var_value, max_var_multiplier
		FROM site_der_rating WHERE site_der_id = $1`

	var v models.SiteDERRating
	err := r.pool.QueryRow(ctx, query, siteDERID).Scan(
		&v.ID, &v.SiteDERID, &v.ChangedTime, &v.ModesSupported, &v.DERType,
		&v.MaxWValue, &v.MaxWMultiplier, &v.MaxVAValue, &v.MaxVAMultiplier,
		&v.MaxVarValue, &v.MaxVarMultiplier,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// UpsertSetting replaces the DER's configured settings, archiving any
// previous value first.
func (r *derRepo) UpsertSetting(ctx context.Context, setting *models.SiteDERSetting) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := copyIntoArchive(ctx, tx, siteDERSettingSpec, "site_der_id = $1", setting.SiteDERID); err != nil {
		return err
	}

	query := `
		INSERT INTO site_der_setting (
			site_der_id, changed_time, grad_w,
			max_w_value, max_w_multiplier, max_va_value, max_va_multiplier,
			max_var_value, max_var_multiplier
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (site_der_id) DO UPDATE SET
			changed_time = EXCLUDED.changed_time,
			grad_w = EXCLUDED.grad_w,
			max_w_value = EXCLUDED.max_w_value,
			max_w_multiplier = EXCLUDED.max_w_multiplier,
			max_va_value = EXCLUDED.max_va_value,
			max_va_multiplier = EXCLUDED.max_va_multiplier,
			max_var_value = EXCLUDED.max_var_value,
			max_var_multiplier = EXCLUDED.max_var_multiplier
		RETURNING id`

	err = tx.QueryRow(ctx, query,
		setting.SiteDERID, setting.ChangedTime, setting.GradW,
		setting.MaxWValue, setting.MaxWMultiplier, setting.MaxVAValue, setting.MaxVAMultiplier,
		setting.MaxVarValue, setting.MaxVarMultiplier,
	).Scan(&setting.ID)
	if err != nil {
		return err
	}

	if err := touchDER(ctx, tx, setting.SiteDERID, setting.ChangedTime); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetSetting retrieves the DER's configured settings.
func (r *derRepo) GetSetting(ctx context.Context, siteDERID int64) (*models.SiteDERSetting, error) {
	query := `
		SELECT id, site_der_id, changed_time, grad_w,
		       max_w_value, max_w_multiplier, max_va_value, max_va_multiplier,
		       max_var_value, max_var_multiplier
		FROM site_der_setting WHERE site_der_id = $1`

	var v models.SiteDERSetting
	err := r.pool.QueryRow(ctx, query, siteDERID).Scan(
		&v.ID, &v.SiteDERID, &v.ChangedTime, &v.GradW,
		&v.MaxWValue, &v.MaxWMultiplier, &v.MaxVAValue, &v.MaxVAMultiplier,
		&v.MaxVarValue, &v.MaxVarMultiplier,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// UpsertAvailability replaces the DER's forecast availability, archiving
// any previous value first.
func (r *derRepo) UpsertAvailability(ctx context.Context, avail *models.SiteDERAvailability) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := copyIntoArchive(ctx, tx, siteDERAvailabilitySpec, "site_der_id = $1", avail.SiteDERID); err != nil {
		return err
	}

	query := `
		INSERT INTO site_der_availability (
			site_der_id, changed_time, availability_duration_sec,
			reserve_percent, estimated_w_avail_value, estimated_w_avail_multiplier
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (site_der_id) DO UPDATE SET
			changed_time = EXCLUDED.changed_time,
			availability_duration_sec = EXCLUDED.availability_duration_sec,
			reserve_percent = EXCLUDED.reserve_percent,
			estimated_w_avail_value = EXCLUDED.estimated_w_avail_value,
			estimated_w_avail_multiplier = EXCLUDED.estimated_w_avail_multiplier
		RETURNING id`

	err = tx.QueryRow(ctx, query,
		avail.SiteDERID, avail.ChangedTime, avail.AvailabilityDurationSec,
		avail.ReservePercent, avail.EstimatedWAvailValue, avail.EstimatedWAvailMultiplier,
	).Scan(&avail.ID)
	if err != nil {
		return err
	}

	if err := touchDER(ctx, tx, avail.SiteDERID, avail.ChangedTime); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetAvailability retrieves the DER's forecast availability.
func (r *derRepo) GetAvailability(ctx context.Context, siteDERID int64) (*models.SiteDERAvailability, error) {
	query := `
		SELECT id, site_der_id, changed_time, availability_duration_sec,
		       reserve_percent, estimated_w_avail_value, estimated_w_avail_multiplier
		FROM site_der_availability WHERE site_der_id = $1`

	var v models.SiteDERAvailability
	err := r.pool.QueryRow(ctx, query, siteDERID).Scan(
		&v.ID, &v.SiteDERID, &v.ChangedTime, &v.AvailabilityDurationSec,
		&v.ReservePercent, &v.EstimatedWAvailValue, &v.EstimatedWAvailMultiplier,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// UpsertStatus replaces the DER's operational status, archiving any
// previous value first.
func (r *derRepo) UpsertStatus(ctx context.Context, status *models.SiteDERStatus) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := copyIntoArchive(ctx, tx, siteDERStatusSpec, "site_der_id = $1", status.SiteDERID); err != nil {
		return err
	}

	query := `
		INSERT INTO site_der_status (
			site_der_id, changed_time, gen_connect_status, gen_connect_status_time,
			inverter_status, inverter_status_time, operational_mode_status,
			operational_mode_status_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (site_der_id) DO UPDATE SET
			changed_time = EXCLUDED.changed_time,
			gen_connect_status = EXCLUDED.gen_connect_status,
			gen_connect_status_time = EXCLUDED.gen_connect_status_time,
			inverter_status = EXCLUDED.inverter_status,
			inverter_status_time = EXCLUDED.inverter_status_time,
			operational_mode_status = EXCLUDED.operational_mode_status,
			operational_mode_status_time = EXCLUDED.operational_mode_status_time
		RETURNING id`

	err = tx.QueryRow(ctx, query,
		status.SiteDERID, status.ChangedTime, status.GenConnectStatus, status.GenConnectStatusTime,
		status.InverterStatus, status.InverterStatusTime, status.OperationalModeStatus,
		status.OperationalModeStatusTime,
	).Scan(&status.ID)
	if err != nil {
		return err
	}

	if err := touchDER(ctx, tx, status.SiteDERID, status.ChangedTime); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetStatus retrieves the DER's operational status.
func (r *derRepo) GetStatus(ctx context.Context, siteDERID int64) (*models.SiteDERStatus, error) {
	query := `
		SELECT id, site_der_id, changed_time, gen_connect_status, gen_connect_status_time,
		       inverter_status, inverter_status_time, operational_mode_status,
		       operational_mode_status_time
		FROM site_der_status WHERE site_der_id = $1`

	var v models.SiteDERStatus
	err := r.pool.QueryRow(ctx, query, siteDERID).Scan(
		&v.ID, &v.SiteDERID, &v.ChangedTime, &v.GenConnectStatus, &v.GenConnectStatusTime,
		&v.InverterStatus, &v.InverterStatusTime, &v.OperationalModeStatus,
		&v.OperationalModeStatusTime,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

var _ DERRepository = (*derRepo)(nil)
