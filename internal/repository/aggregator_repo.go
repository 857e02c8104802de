package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridmesh/csip-core/internal/models"
)

// AggregatorRepository defines the interface for tenant data operations.
type AggregatorRepository interface {
	Create(ctx context.Context, agg *models.Aggregator) error
	GetByID(ctx context.Context, id int64) (*models.Aggregator, error)
	List(ctx context.Context) ([]*models.Aggregator, error)
	AddDomain(ctx context.Context, aggregatorID int64, domain string) error
	ListDomains(ctx context.Context, aggregatorID int64) ([]string, error)

	UpsertCertificate(ctx context.Context, lfdi string, expiry time.Time) (*models.Certificate, error)
	AssignCertificate(ctx context.Context, certificateID, aggregatorID int64) error
	GetCertificateByLFDI(ctx context.Context, lfdi string) (*models.Certificate, error)
	AggregatorIDsForCertificate(ctx context.Context, certificateID int64) ([]int64, error)
}

type aggregatorRepo struct {
	pool *pgxpool.Pool
}

// NewAggregatorRepository creates a new aggregator repository.
func NewAggregatorRepository(pool *pgxpool.Pool) AggregatorRepository {
	return &aggregatorRepo{pool: pool}
}

// Create inserts a new aggregator record.
func (r *aggregatorRepo) Create(ctx context.Context, agg *models.Aggregator) error {
	query := `
		INSERT INTO aggregator (name)
		VALUES ($1)
		RETURNING id, created_time, changed_time`

	return r.pool.QueryRow(ctx, query, agg.Name).Scan(&agg.ID, &agg.CreatedTime, &agg.ChangedTime)
}

// GetByID retrieves an aggregator by ID.
func (r *aggregatorRepo) GetByID(ctx context.Context, id int64) (*models.Aggregator, error) {
	query := `SELECT id, name, created_time, changed_time FROM aggregator WHERE id = $1`

	var agg models.Aggregator
	err := r.pool.QueryRow(ctx, query, id).Scan(&agg.ID, &agg.Name, &agg.CreatedTime, &agg.ChangedTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

// List retrieves all aggregators, the NULL aggregator included.
func (r *aggregatorRepo) List(ctx context.Context) ([]*models.Aggregator, error) {
	query := `SELECT id, name, created_time, changed_time FROM aggregator ORDER BY id ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var aggs []*models.Aggregator
	for rows.Next() {
		var agg models.Aggregator
		if err := rows.Scan(&agg.ID, &agg.Name, &agg.CreatedTime, &agg.ChangedTime); err != nil {
			return nil, err
		}
		aggs = append(aggs, &agg)
	}
	return aggs, rows.Err()
}

// AddDomain registers a notification destination FQDN for an aggregator.
func (r *aggregatorRepo) AddDomain(ctx context.Context, aggregatorID int64, domain string) error {
	query := `
		INSERT INTO aggregator_domain (aggregator_id, domain)
		VALUES ($1, $2)
		ON CONFLICT (aggregator_id, domain) DO NOTHING`

	_, err := r.pool.Exec(ctx, query, aggregatorID, domain)
	return err
}

// ListDomains retrieves the registered notification FQDNs for an aggregator.
func (r *aggregatorRepo) ListDomains(ctx context.Context, aggregatorID int64) ([]string, error) {
	query := `SELECT domain FROM aggregator_domain WHERE aggregator_id = $1 ORDER BY domain ASC`

	rows, err := r.pool.Query(ctx, query, aggregatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

// UpsertCertificate inserts a certificate record keyed by LFDI, refreshing
// the expiry on conflict.
func (r *aggregatorRepo) UpsertCertificate(ctx context.Context, lfdi string, expiry time.Time) (*models.Certificate, error) {
	query := `
		INSERT INTO certificate (lfdi, expiry)
		VALUES ($1, $2)
		ON CONFLICT (lfdi) DO UPDATE SET expiry = EXCLUDED.expiry
		RETURNING id, lfdi, created, expiry`

	var cert models.Certificate
	err := r.pool.QueryRow(ctx, query, lfdi, expiry).Scan(&cert.ID, &cert.LFDI, &cert.Created, &cert.Expiry)
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

// AssignCertificate links a certificate to an aggregator.
func (r *aggregatorRepo) AssignCertificate(ctx context.Context, certificateID, aggregatorID int64) error {
	query := `
		INSERT INTO certificate_assignment (certificate_id, aggregator_id)
		VALUES ($1, $2)
		ON CONFLICT (certificate_id, aggregator_id) DO NOTHING`

	_, err := r.pool.Exec(ctx, query, certificateID, aggregatorID)
	return err
}

// GetCertificateByLFDI retrieves a certificate by its LFDI. Matching is
// case-insensitive through the citext column.
func (r *aggregatorRepo) GetCertificateByLFDI(ctx context.Context, lfdi string) (*models.Certificate, error) {
	query := `SELECT id, lfdi, created, expiry FROM certificate WHERE lfdi = $1`

	var cert models.Certificate
	err := r.pool.QueryRow(ctx, query, lfdi).Scan(&cert.ID, &cert.LFDI, &cert.Created, &cert.Expiry)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

// AggregatorIDsForCertificate retrieves the aggregators a certificate is
// assigned to.
func (r *aggregatorRepo) AggregatorIDsForCertificate(ctx context.Context, certificateID int64) ([]int64, error) {
	query := `SELECT aggregator_id FROM certificate_assignment WHERE certificate_id = $1 ORDER BY aggregator_id ASC`

	rows, err := r.pool.Query(ctx, query, certificateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var _ AggregatorRepository = (*aggregatorRepo)(nil)
