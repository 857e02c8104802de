package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridmesh/csip-core/internal/models"
)

// ResponseRepository defines the interface for client acknowledgement
// records. Responses are append-only and never archived.
type ResponseRepository interface {
	CreateDoeResponse(ctx context.Context, resp *models.DynamicOperatingEnvelopeResponse) error
	GetDoeResponse(ctx context.Context, siteID, id int64) (*models.DynamicOperatingEnvelopeResponse, error)
	ListDoeResponses(ctx context.Context, siteID int64, limit, offset int) ([]*models.DynamicOperatingEnvelopeResponse, error)
	CountDoeResponses(ctx context.Context, siteID int64) (int, error)
	CreateRateResponse(ctx context.Context, resp *models.TariffGeneratedRateResponse) error
	GetRateResponse(ctx context.Context, siteID, id int64) (*models.TariffGeneratedRateResponse, error)
	ListRateResponses(ctx context.Context, siteID int64, limit, offset int) ([]*models.TariffGeneratedRateResponse, error)
	CountRateResponses(ctx context.Context, siteID int64) (int, error)
}

type responseRepo struct {
	pool *pgxpool.Pool
}

// NewResponseRepository creates a new response repository.
func NewResponseRepository(pool *pgxpool.Pool) ResponseRepository {
	return &responseRepo{pool: pool}
}

// CreateDoeResponse inserts an envelope acknowledgement.
func (r *responseRepo) CreateDoeResponse(ctx context.Context, resp *models.DynamicOperatingEnvelopeResponse) error {
	query := `
		INSERT INTO dynamic_operating_envelope_response (doe_id_snapshot, site_id, response_type)
		VALUES ($1, $2, $3)
		RETURNING id, created_time`

	return r.pool.QueryRow(ctx, query,
		resp.DoeIDSnapshot, resp.SiteID, resp.ResponseType,
	).Scan(&resp.ID, &resp.CreatedTime)
}

// GetDoeResponse fetches one envelope acknowledgement. Returns nil when
// the row does not exist or belongs to another site.
func (r *responseRepo) GetDoeResponse(ctx context.Context, siteID, id int64) (*models.DynamicOperatingEnvelopeResponse, error) {
	query := `
		SELECT id, doe_id_snapshot, site_id, response_type, created_time
		FROM dynamic_operating_envelope_response
		WHERE site_id = $1 AND id = $2`

	var v models.DynamicOperatingEnvelopeResponse
	err := r.pool.QueryRow(ctx, query, siteID, id).Scan(
		&v.ID, &v.DoeIDSnapshot, &v.SiteID, &v.ResponseType, &v.CreatedTime,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListDoeResponses pages a site's envelope acknowledgements, newest first.
func (r *responseRepo) ListDoeResponses(ctx context.Context, siteID int64, limit, offset int) ([]*models.DynamicOperatingEnvelopeResponse, error) {
	query := `
		SELECT id, doe_id_snapshot, site_id, response_type, created_time
		FROM dynamic_operating_envelope_response
		WHERE site_id = $1
		ORDER BY created_time DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, siteID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resps []*models.DynamicOperatingEnvelopeResponse
	for rows.Next() {
		var v models.DynamicOperatingEnvelopeResponse
		if err := rows.Scan(&v.ID, &v.DoeIDSnapshot, &v.SiteID, &v.ResponseType, &v.CreatedTime); err != nil {
			return nil, err
		}
		resps = append(resps, &v)
	}
	return resps, rows.Err()
}

// CountDoeResponses returns the number of envelope acknowledgements for a site.
func (r *responseRepo) CountDoeResponses(ctx context.Context, siteID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dynamic_operating_envelope_response WHERE site_id = $1`, siteID).Scan(&count)
	return count, err
}

// CreateRateResponse inserts a price acknowledgement.
func (r *responseRepo) CreateRateResponse(ctx context.Context, resp *models.TariffGeneratedRateResponse) error {
	query := `
		INSERT INTO tariff_generated_rate_response (rate_id_snapshot, site_id, pricing_reading_type, response_type)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_time`

	return r.pool.QueryRow(ctx, query,
		resp.RateIDSnapshot, resp.SiteID, resp.PricingReadingType, resp.ResponseType,
	).Scan(&resp.ID, &resp.CreatedTime)
}

// GetRateResponse fetches one price acknowledgement. Returns nil when the
// row does not exist or belongs to another site.
func (r *responseRepo) GetRateResponse(ctx context.Context, siteID, id int64) (*models.TariffGeneratedRateResponse, error) {
	query := `
		SELECT id, rate_id_snapshot, site_id, pricing_reading_type, response_type, created_time
		FROM tariff_generated_rate_response
		WHERE site_id = $1 AND id = $2`

	var v models.TariffGeneratedRateResponse
	err := r.pool.QueryRow(ctx, query, siteID, id).Scan(
		&v.ID, &v.RateIDSnapshot, &v.SiteID, &v.PricingReadingType, &v.ResponseType, &v.CreatedTime,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListRateResponses pages a site's price acknowledgements, newest first.
func (r *responseRepo) ListRateResponses(ctx context.Context, siteID int64, limit, offset int) ([]*models.TariffGeneratedRateResponse, error) {
	query := `
		SELECT id, rate_id_snapshot, site_id, pricing_reading_type, response_type, created_time
		FROM tariff_generated_rate_response
		WHERE site_id = $1
		ORDER BY created_time DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, siteID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resps []*models.TariffGeneratedRateResponse
	for rows.Next() {
		var v models.TariffGeneratedRateResponse
		if err := rows.Scan(&v.ID, &v.RateIDSnapshot, &v.SiteID, &v.PricingReadingType, &v.ResponseType, &v.CreatedTime); err != nil {
			return nil, err
		}
		resps = append(resps, &v)
	}
	return resps, rows.Err()
}

// CountRateResponses returns the number of price acknowledgements for a site.
func (r *responseRepo) CountRateResponses(ctx context.Context, siteID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tariff_generated_rate_response WHERE site_id = $1`, siteID).Scan(&count)
	return count, err
}

var _ ResponseRepository = (*responseRepo)(nil)
