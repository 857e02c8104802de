package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gridmesh/csip-core/internal/cache"
	"github.com/gridmesh/csip-core/internal/models"
	"github.com/gridmesh/csip-core/internal/repository"
)

// runtimeConfigTTL bounds how stale a served runtime config may be.
const runtimeConfigTTL = 30 * time.Second

// RuntimeConfigService serves the operator-tunable settings through a
// short-lived cache so every request does not hit the single-row table. A
// database miss yields compiled-in defaults, never an error.
type RuntimeConfigService interface {
	// Current returns the effective runtime config.
	Current(ctx context.Context) *models.RuntimeServerConfig
	// Update stores new settings and refreshes the cache.
	Update(ctx context.Context, cfg *models.RuntimeServerConfig) error
}

type runtimeConfigService struct {
	repo  repository.RuntimeConfigRepository
	cache *cache.Expiring[struct{}, int32, *models.RuntimeServerConfig]
	log   *slog.Logger
	now   func() time.Time
}

// NewRuntimeConfigService creates a new runtime config service.
func NewRuntimeConfigService(repo repository.RuntimeConfigRepository, log *slog.Logger) RuntimeConfigService {
	s := &runtimeConfigService{repo: repo, log: log, now: time.Now}
	s.cache = cache.NewExpiring(s.load)
	return s
}

// load is the cache update function: one key, the config row.
func (s *runtimeConfigService) load(ctx context.Context, _ struct{}) (map[int32]cache.Entry[*models.RuntimeServerConfig], error) {
	cfg, err := s.repo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading runtime config: %w", err)
	}
	if cfg == nil {
		cfg = &models.RuntimeServerConfig{ConfigID: 1}
	}
	expiry := s.now().Add(runtimeConfigTTL)
	return map[int32]cache.Entry[*models.RuntimeServerConfig]{
		1: {Value: cfg, Expiry: &expiry},
	}, nil
}

func (s *runtimeConfigService) Current(ctx context.Context) *models.RuntimeServerConfig {
	cfg, ok, err := s.cache.GetIgnoreExpiry(ctx, struct{}{}, 1)
	if err != nil || !ok {
		if err != nil {
			s.log.Warn("runtime config unavailable, serving defaults", "error", err)
		}
		return &models.RuntimeServerConfig{ConfigID: 1}
	}
	return cfg
}

func (s *runtimeConfigService) Update(ctx context.Context, cfg *models.RuntimeServerConfig) error {
	cfg.ConfigID = 1
	cfg.ChangedTime = s.now()
	if err := s.repo.Upsert(ctx, cfg); err != nil {
		return fmt.Errorf("storing runtime config: %w", err)
	}
	if err := s.cache.ForceUpdate(ctx, struct{}{}); err != nil {
		s.log.Warn("refreshing runtime config cache", "error", err)
	}
	return nil
}
