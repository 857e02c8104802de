package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridmesh/csip-core/internal/config"
	"github.com/gridmesh/csip-core/internal/lfdi"
	"github.com/gridmesh/csip-core/internal/models"
	"github.com/gridmesh/csip-core/internal/nmi"
	"github.com/gridmesh/csip-core/internal/notify"
	apierrors "github.com/gridmesh/csip-core/internal/pkg/errors"
	"github.com/gridmesh/csip-core/internal/repository"
	"github.com/gridmesh/csip-core/internal/scope"
)

const testLFDI = "0123456789abcdef0123456789abcdef01234567"

type fakeSiteRepo struct {
	sites  map[string]*models.Site
	nextID int64
}

func newFakeSiteRepo() *fakeSiteRepo {
	return &fakeSiteRepo{sites: map[string]*models.Site{}}
}

func (f *fakeSiteRepo) GetByID(_ context.Context, aggregatorID, siteID int64) (*models.Site, error) {
	for _, s := range f.sites {
		if s.ID == siteID && s.AggregatorID == aggregatorID {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeSiteRepo) GetByLFDI(_ context.Context, l string) (*models.Site, error) {
	return f.sites[l], nil
}

func (f *fakeSiteRepo) GetByAggregatorAndSFDI(_ context.Context, aggregatorID, sfdi int64) (*models.Site, error) {
	for _, s := range f.sites {
		if s.AggregatorID == aggregatorID && s.SFDI == sfdi {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeSiteRepo) List(_ context.Context, aggregatorID int64, changedAfter time.Time, _, _ int) ([]*models.Site, error) {
	var out []*models.Site
	for _, s := range f.sites {
		if s.AggregatorID == aggregatorID && s.ChangedTime.After(changedAfter) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSiteRepo) Count(ctx context.Context, aggregatorID int64, changedAfter time.Time) (int, error) {
	sites, _ := f.List(ctx, aggregatorID, changedAfter, 0, 0)
	return len(sites), nil
}

func (f *fakeSiteRepo) Create(_ context.Context, site *models.Site) error {
	f.nextID++
	site.ID = f.nextID
	f.sites[site.LFDI] = site
	return nil
}

func (f *fakeSiteRepo) Upsert(ctx context.Context, site *models.Site) (bool, error) {
	if existing, ok := f.sites[site.LFDI]; ok {
		site.ID = existing.ID
		f.sites[site.LFDI] = site
		return false, nil
	}
	return true, f.Create(ctx, site)
}

func (f *fakeSiteRepo) DeleteCascade(_ context.Context, aggregatorID, siteID int64, _ time.Time) (bool, error) {
	for l, s := range f.sites {
		if s.ID == siteID && s.AggregatorID == aggregatorID {
			delete(f.sites, l)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeSiteRepo) CountDeletedForPeriod(context.Context, repository.ArchivePeriod) (int, error) {
	return 0, nil
}

func (f *fakeSiteRepo) SelectDeletedForPeriod(context.Context, repository.ArchivePeriod, int, int) ([]*models.SiteArchive, error) {
	return nil, nil
}

type fakeAggregatorRepo struct{}

func (fakeAggregatorRepo) Create(context.Context, *models.Aggregator) error   { return nil }
func (fakeAggregatorRepo) GetByID(context.Context, int64) (*models.Aggregator, error) {
	return nil, nil
}
func (fakeAggregatorRepo) List(context.Context) ([]*models.Aggregator, error) { return nil, nil }
func (fakeAggregatorRepo) AddDomain(context.Context, int64, string) error     { return nil }
func (fakeAggregatorRepo) ListDomains(context.Context, int64) ([]string, error) {
	return []string{"agg.example.com"}, nil
}
func (fakeAggregatorRepo) UpsertCertificate(context.Context, string, time.Time) (*models.Certificate, error) {
	return nil, nil
}
func (fakeAggregatorRepo) AssignCertificate(context.Context, int64, int64) error { return nil }
func (fakeAggregatorRepo) GetCertificateByLFDI(context.Context, string) (*models.Certificate, error) {
	return nil, nil
}
func (fakeAggregatorRepo) AggregatorIDsForCertificate(context.Context, int64) ([]int64, error) {
	return nil, nil
}

func newRegistrationFixture(t *testing.T) (RegistrationService, *fakeSiteRepo) {
	t.Helper()
	sites := newFakeSiteRepo()
	deriver := scope.NewDeriver(fakeAggregatorRepo{}, sites, true, time.Minute)
	svc := NewRegistrationService(
		sites,
		deriver,
		notify.NewPublisher(nil, discardLogger()),
		nmi.New(true, ""),
		config.Sep2Config{Timezone: "Australia/Brisbane"},
		discardLogger(),
	)
	return svc, sites
}

func TestRegisterCreatesAndUpdates(t *testing.T) {
	svc, _ := newRegistrationFixture(t)
	sc := aggScope()

	site, created, err := svc.Register(context.Background(), sc, &RegisterSiteRequest{LFDI: testLFDI})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, testLFDI, site.LFDI)
	assert.Equal(t, int64(1), site.AggregatorID)
	assert.Equal(t, "Australia/Brisbane", site.TimezoneID)
	assert.GreaterOrEqual(t, site.RegistrationPIN, int32(0))
	assert.Less(t, site.RegistrationPIN, int32(models.MaxRegistrationPIN))

	expectedSFDI, err := lfdi.SFDIFromLFDI(testLFDI)
	require.NoError(t, err)
	assert.Equal(t, int64(expectedSFDI), site.SFDI)

	// A re-POST of the same device refreshes rather than duplicates.
	again, created, err := svc.Register(context.Background(), sc, &RegisterSiteRequest{LFDI: testLFDI})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, site.ID, again.ID)
}

func TestRegisterNormalizesLFDI(t *testing.T) {
	svc, sites := newRegistrationFixture(t)

	upper := "0123456789ABCDEF0123456789ABCDEF01234567"
	site, _, err := svc.Register(context.Background(), aggScope(), &RegisterSiteRequest{LFDI: upper})
	require.NoError(t, err)
	assert.Equal(t, testLFDI, site.LFDI)
	assert.Contains(t, sites.sites, testLFDI)
}

func TestRegisterDeviceCertOwnLFDIOnly(t *testing.T) {
	svc, _ := newRegistrationFixture(t)
	sc := &scope.Scope{LFDI: testLFDI, Source: scope.SourceDeviceCert, Unregistered: true}

	other := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	_, _, err := svc.Register(context.Background(), sc, &RegisterSiteRequest{LFDI: other})
	require.Error(t, err)
	assert.Equal(t, "forbidden", apierrors.AsAPIError(err).Code)

	_, created, err := svc.Register(context.Background(), sc, &RegisterSiteRequest{LFDI: testLFDI})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestRegisterSFDIMismatch(t *testing.T) {
	svc, _ := newRegistrationFixture(t)

	_, _, err := svc.Register(context.Background(), aggScope(), &RegisterSiteRequest{
		LFDI: testLFDI,
		SFDI: 1234,
	})
	require.Error(t, err)
	assert.Equal(t, "validation_error", apierrors.AsAPIError(err).Code)
}

func TestRegisterCrossTenantConflict(t *testing.T) {
	svc, sites := newRegistrationFixture(t)
	sites.sites[testLFDI] = &models.Site{ID: 9, AggregatorID: 2, LFDI: testLFDI}

	_, _, err := svc.Register(context.Background(), aggScope(), &RegisterSiteRequest{LFDI: testLFDI})
	require.Error(t, err)
	assert.Equal(t, "conflict", apierrors.AsAPIError(err).Code)
}

func TestRegisterSFDICollisionConflict(t *testing.T) {
	svc, sites := newRegistrationFixture(t)
	expectedSFDI, err := lfdi.SFDIFromLFDI(testLFDI)
	require.NoError(t, err)
	// Same tenant, same SFDI, different LFDI.
	sites.sites["ffffffffffffffffffffffffffffffffffffffff"] = &models.Site{
		ID: 9, AggregatorID: 1, SFDI: int64(expectedSFDI),
		LFDI: "ffffffffffffffffffffffffffffffffffffffff",
	}

	_, _, err = svc.Register(context.Background(), aggScope(), &RegisterSiteRequest{LFDI: testLFDI})
	require.Error(t, err)
	assert.Equal(t, "conflict", apierrors.AsAPIError(err).Code)
}

func TestRegisterInvalidLFDI(t *testing.T) {
	svc, _ := newRegistrationFixture(t)
	_, _, err := svc.Register(context.Background(), aggScope(), &RegisterSiteRequest{LFDI: "zz"})
	require.Error(t, err)
	assert.Equal(t, "validation_error", apierrors.AsAPIError(err).Code)
}

func TestListDeviceScopeSeesOnlyItself(t *testing.T) {
	svc, sites := newRegistrationFixture(t)
	now := time.Now()
	sites.sites[testLFDI] = &models.Site{ID: 1, AggregatorID: 1, LFDI: testLFDI, ChangedTime: now}
	sites.sites["ffffffffffffffffffffffffffffffffffffffff"] = &models.Site{
		ID: 2, AggregatorID: 1, LFDI: "ffffffffffffffffffffffffffffffffffffffff", ChangedTime: now,
	}

	own := int64(1)
	sc := &scope.Scope{AggregatorID: 1, SiteID: &own, Source: scope.SourceDeviceCert}
	listed, total, err := svc.List(context.Background(), sc, time.Time{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, listed, 1)
	assert.Equal(t, int64(1), listed[0].ID)

	// Paging past the single entry returns the count without rows.
	listed, total, err = svc.List(context.Background(), sc, time.Time{}, 10, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Empty(t, listed)
}

func TestDeleteCascades(t *testing.T) {
	svc, sites := newRegistrationFixture(t)
	sites.sites[testLFDI] = &models.Site{ID: 1, AggregatorID: 1, LFDI: testLFDI}

	require.NoError(t, svc.Delete(context.Background(), aggScope(), 1))
	assert.Empty(t, sites.sites)

	err := svc.Delete(context.Background(), aggScope(), 1)
	assert.Equal(t, apierrors.ErrNotFound, err)
}

func TestSetConnectionPoint(t *testing.T) {
	svc, sites := newRegistrationFixture(t)
	sites.sites[testLFDI] = &models.Site{ID: 1, AggregatorID: 1, LFDI: testLFDI}

	require.NoError(t, svc.SetConnectionPoint(context.Background(), aggScope(), 1, "4102335717"))
	require.NotNil(t, sites.sites[testLFDI].NMI)
	assert.Equal(t, "4102335717", *sites.sites[testLFDI].NMI)

	err := svc.SetConnectionPoint(context.Background(), aggScope(), 1, "bad")
	require.Error(t, err)
	assert.Equal(t, "validation_error", apierrors.AsAPIError(err).Code)
}

func TestCreateAdminPreservesExistingPIN(t *testing.T) {
	svc, sites := newRegistrationFixture(t)
	sites.sites[testLFDI] = &models.Site{ID: 1, AggregatorID: 1, LFDI: testLFDI, RegistrationPIN: 12345}

	site, err := svc.CreateAdmin(context.Background(), &models.CreateSiteRequest{
		AggregatorID: 1,
		TimezoneID:   "Australia/Brisbane",
		LFDI:         testLFDI,
		SFDI:         3054198965,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), site.ID)
	assert.Equal(t, int32(12345), site.RegistrationPIN)
}
