package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridmesh/csip-core/internal/models"
)

type fakeRuntimeConfigRepo struct {
	cfg  *models.RuntimeServerConfig
	fail bool
}

func (f *fakeRuntimeConfigRepo) Get(context.Context) (*models.RuntimeServerConfig, error) {
	if f.fail {
		return nil, fmt.Errorf("connection refused")
	}
	return f.cfg, nil
}

func (f *fakeRuntimeConfigRepo) Upsert(_ context.Context, cfg *models.RuntimeServerConfig) error {
	if f.fail {
		return fmt.Errorf("connection refused")
	}
	f.cfg = cfg
	return nil
}

func TestRuntimeConfigCurrentServesStoredRow(t *testing.T) {
	rate := int32(600)
	repo := &fakeRuntimeConfigRepo{cfg: &models.RuntimeServerConfig{ConfigID: 1, DcapPollrateSeconds: &rate}}
	svc := NewRuntimeConfigService(repo, discardLogger())

	cfg := svc.Current(context.Background())
	require.NotNil(t, cfg.DcapPollrateSeconds)
	assert.Equal(t, int32(600), *cfg.DcapPollrateSeconds)
}

func TestRuntimeConfigDefaultsOnMissingRow(t *testing.T) {
	svc := NewRuntimeConfigService(&fakeRuntimeConfigRepo{}, discardLogger())

	cfg := svc.Current(context.Background())
	assert.Equal(t, int32(1), cfg.ConfigID)
	assert.Nil(t, cfg.DcapPollrateSeconds)
	assert.False(t, cfg.DisableEdevRegistration)
}

func TestRuntimeConfigDefaultsOnDatabaseError(t *testing.T) {
	svc := NewRuntimeConfigService(&fakeRuntimeConfigRepo{fail: true}, discardLogger())

	cfg := svc.Current(context.Background())
	assert.Equal(t, int32(1), cfg.ConfigID)
}

func TestRuntimeConfigUpdateRefreshesCache(t *testing.T) {
	repo := &fakeRuntimeConfigRepo{}
	svc := NewRuntimeConfigService(repo, discardLogger())

	// Prime the cache with the empty defaults.
	assert.False(t, svc.Current(context.Background()).DisableEdevRegistration)

	err := svc.Update(context.Background(), &models.RuntimeServerConfig{DisableEdevRegistration: true})
	require.NoError(t, err)
	require.NotNil(t, repo.cfg)
	assert.Equal(t, int32(1), repo.cfg.ConfigID)
	assert.False(t, repo.cfg.ChangedTime.IsZero())

	// The cache was force-refreshed; the new value is visible immediately.
	assert.True(t, svc.Current(context.Background()).DisableEdevRegistration)
}

func TestRuntimeConfigUpdateErrorPropagates(t *testing.T) {
	svc := NewRuntimeConfigService(&fakeRuntimeConfigRepo{fail: true}, discardLogger())
	err := svc.Update(context.Background(), &models.RuntimeServerConfig{})
	assert.Error(t, err)
}
