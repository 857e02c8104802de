package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridmesh/csip-core/internal/models"
)

// RuntimeConfigRepository defines the interface for the single-row table of
// operator-tunable settings.
type RuntimeConfigRepository interface {
	Get(ctx context.Context) (*models.RuntimeServerConfig, error)
	Upsert(ctx context.Context, cfg *models.RuntimeServerConfig) error
}

type runtimeConfigRepo struct {
	pool *pgxpool.Pool
}

// NewRuntimeConfigRepository creates a new runtime config repository.
func NewRuntimeConfigRepository(pool *pgxpool.Pool) RuntimeConfigRepository {
	return &runtimeConfigRepo{pool: pool}
}

// Get retrieves the runtime settings row. Returns nil when the operator has
// never written one.
func (r *runtimeConfigRepo) Get(ctx context.Context) (*models.RuntimeServerConfig, error) {
	query := `
		SELECT config_id, changed_time, dcap_pollrate_seconds, edevl_pollrate_seconds,
		       fsal_pollrate_seconds, derpl_pollrate_seconds, derl_pollrate_seconds,
		       mup_postrate_seconds, disable_edev_registration
		FROM runtime_server_config WHERE config_id = 1`

	var cfg models.RuntimeServerConfig
	err := r.pool.QueryRow(ctx, query).Scan(
		&cfg.ConfigID, &cfg.ChangedTime, &cfg.DcapPollrateSeconds, &cfg.EdevlPollrateSeconds,
		&cfg.FsalPollrateSeconds, &cfg.DerplPollrateSeconds, &cfg.DerlPollrateSeconds,
		&cfg.MupPostrateSeconds, &cfg.DisableEdevRegistration,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Upsert writes the runtime settings row.
func (r *runtimeConfigRepo) Upsert(ctx context.Context, cfg *models.RuntimeServerConfig) error {
	query := `
		INSERT INTO runtime_server_config (
			config_id, changed_time, dcap_pollrate_seconds, edevl_pollrate_seconds,
			fsal_pollrate_seconds, derpl_pollrate_seconds, derl_pollrate_seconds,
			mup_postrate_seconds, disable_edev_registration
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (config_id) DO UPDATE SET
			changed_time = EXCLUDED.changed_time,
			dcap_pollrate_seconds = EXCLUDED.dcap_pollrate_seconds,
			edevl_pollrate_seconds = EXCLUDED.edevl_pollrate_seconds,
			fsal_pollrate_seconds = EXCLUDED.fsal_pollrate_seconds,
			derpl_pollrate_seconds = EXCLUDED.derpl_pollrate_seconds,
			derl_pollrate_seconds = EXCLUDED.derl_pollrate_seconds,
			mup_postrate_seconds = EXCLUDED.mup_postrate_seconds,
			disable_edev_registration = EXCLUDED.disable_edev_registration
		RETURNING config_id`

	return r.pool.QueryRow(ctx, query,
		cfg.ChangedTime, cfg.DcapPollrateSeconds, cfg.EdevlPollrateSeconds,
		cfg.FsalPollrateSeconds, cfg.DerplPollrateSeconds, cfg.DerlPollrateSeconds,
		cfg.MupPostrateSeconds, cfg.DisableEdevRegistration,
	).Scan(&cfg.ConfigID)
}

var _ RuntimeConfigRepository = (*runtimeConfigRepo)(nil)
