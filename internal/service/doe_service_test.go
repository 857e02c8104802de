package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridmesh/csip-core/internal/config"
	"github.com/gridmesh/csip-core/internal/models"
	"github.com/gridmesh/csip-core/internal/notify"
	apierrors "github.com/gridmesh/csip-core/internal/pkg/errors"
	"github.com/gridmesh/csip-core/internal/repository"
	"github.com/gridmesh/csip-core/internal/scope"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDoeRepo struct {
	groups       []*models.SiteControlGroup
	siteControls map[int64]*models.DefaultSiteControl
	upserted     []*models.DynamicOperatingEnvelope
	archived     map[int64]*models.DynamicOperatingEnvelope
	superseded   int64
}

func (f *fakeDoeRepo) CreateControlGroup(_ context.Context, g *models.SiteControlGroup) error {
	g.ID = int64(len(f.groups) + 1)
	f.groups = append(f.groups, g)
	return nil
}

func (f *fakeDoeRepo) GetControlGroup(_ context.Context, id int64) (*models.SiteControlGroup, error) {
	for _, g := range f.groups {
		if g.ID == id {
			return g, nil
		}
	}
	return nil, nil
}

func (f *fakeDoeRepo) ListControlGroups(_ context.Context, fsaID int32) ([]*models.SiteControlGroup, error) {
	var out []*models.SiteControlGroup
	for _, g := range f.groups {
		if g.FsaID == fsaID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeDoeRepo) ListAllControlGroups(context.Context) ([]*models.SiteControlGroup, error) {
	return f.groups, nil
}

func (f *fakeDoeRepo) UpdateControlGroupDefaults(_ context.Context, g *models.SiteControlGroup) error {
	for i, existing := range f.groups {
		if existing.ID == g.ID {
			f.groups[i] = g
		}
	}
	return nil
}

func (f *fakeDoeRepo) UpsertMany(_ context.Context, envelopes []*models.DynamicOperatingEnvelope) error {
	f.upserted = append(f.upserted, envelopes...)
	return nil
}

func (f *fakeDoeRepo) SelectForSite(context.Context, int64, int64, time.Time, int, int) ([]*models.DynamicOperatingEnvelope, error) {
	return nil, nil
}

func (f *fakeDoeRepo) CountForSite(context.Context, int64, int64, time.Time) (int, error) {
	return 0, nil
}

func (f *fakeDoeRepo) SelectActiveWithDeleted(context.Context, int64, int64, time.Time, time.Time, int, int) ([]*models.DoeListEntry, error) {
	return nil, nil
}

func (f *fakeDoeRepo) CountActiveWithDeleted(context.Context, int64, int64, time.Time, time.Time) (int, error) {
	return 0, nil
}

func (f *fakeDoeRepo) FetchWithArchiveByID(_ context.Context, siteID, doeID int64) (*models.DynamicOperatingEnvelope, error) {
	doe := f.archived[doeID]
	if doe == nil || doe.SiteID != siteID {
		return nil, nil
	}
	return doe, nil
}

func (f *fakeDoeRepo) SupersedeOverlapping(context.Context, int64, time.Time, time.Time, int64, time.Time) (int64, error) {
	f.superseded++
	return 0, nil
}

func (f *fakeDoeRepo) CountArchiveForPeriod(context.Context, repository.ArchivePeriod) (int, error) {
	return 0, nil
}

func (f *fakeDoeRepo) SelectArchiveForPeriod(context.Context, repository.ArchivePeriod, int, int) ([]*models.DynamicOperatingEnvelopeArchive, error) {
	return nil, nil
}

func (f *fakeDoeRepo) UpsertDefaultSiteControl(_ context.Context, d *models.DefaultSiteControl) error {
	if f.siteControls == nil {
		f.siteControls = map[int64]*models.DefaultSiteControl{}
	}
	f.siteControls[d.SiteID] = d
	return nil
}

func (f *fakeDoeRepo) GetDefaultSiteControl(_ context.Context, siteID int64) (*models.DefaultSiteControl, error) {
	return f.siteControls[siteID], nil
}

func (f *fakeDoeRepo) CreateCalculationLog(context.Context, *models.CalculationLog) error {
	return nil
}

func (f *fakeDoeRepo) GetCalculationLog(context.Context, int64) (*models.CalculationLog, error) {
	return nil, nil
}

func newDoeService(repo *fakeDoeRepo, cfg config.Sep2Config) DoeService {
	return NewDoeService(repo, notify.NewPublisher(nil, discardLogger()), cfg, discardLogger())
}

func aggScope() *scope.Scope {
	return &scope.Scope{AggregatorID: 1, Source: scope.SourceAggregatorCert}
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func f64(v float64) *float64 { return &v }

func TestDefaultControlMergeLayers(t *testing.T) {
	repo := &fakeDoeRepo{
		groups: []*models.SiteControlGroup{
			{ID: 1, Primacy: 10, DefaultImportLimitWatts: dec("2000"), DefaultLoadLimitWatts: dec("9000")},
			// Lower primacy wins as the group layer.
			{ID: 2, Primacy: 0, DefaultImportLimitWatts: dec("3000"), DefaultExportLimitWatts: dec("4000")},
		},
		siteControls: map[int64]*models.DefaultSiteControl{
			5: {SiteID: 5, ImportLimitActiveWatts: dec("1500")},
		},
	}
	cfg := config.Sep2Config{
		DefaultDOEImportActiveWatts: f64(1000),
		DefaultDOEGenerationWatts:   f64(5000),
	}
	svc := newDoeService(repo, cfg)

	merged, err := svc.DefaultControl(context.Background(), aggScope(), 5)
	require.NoError(t, err)

	// Site override beats the group default which beats the config floor.
	assert.Equal(t, "1500", merged.ImportLimitWatts.String())
	// Group layer only.
	assert.Equal(t, "4000", merged.ExportLimitWatts.String())
	// Config floor survives where no layer overrides.
	assert.Equal(t, "5000", merged.GenerationLimitWatts.String())
	// The primacy-10 group's load limit must not leak through.
	assert.Nil(t, merged.LoadLimitWatts)
}

func TestDefaultControlGroupLayerWithoutSiteOverride(t *testing.T) {
	repo := &fakeDoeRepo{
		groups: []*models.SiteControlGroup{
			{ID: 1, Primacy: 0, DefaultImportLimitWatts: dec("3000"), ChangedTime: time.Unix(1700000000, 0)},
		},
	}
	svc := newDoeService(repo, config.Sep2Config{})

	merged, err := svc.DefaultControl(context.Background(), aggScope(), 5)
	require.NoError(t, err)
	assert.Equal(t, "3000", merged.ImportLimitWatts.String())
	assert.Equal(t, time.Unix(1700000000, 0), merged.ChangedTime)
}

func TestDefaultControlEmptyIsNotFound(t *testing.T) {
	svc := newDoeService(&fakeDoeRepo{}, config.Sep2Config{})

	_, err := svc.DefaultControl(context.Background(), aggScope(), 5)
	assert.Equal(t, apierrors.ErrNotFound, err)
}

func TestDefaultControlDeviceScopeOtherSite(t *testing.T) {
	svc := newDoeService(&fakeDoeRepo{}, config.Sep2Config{DefaultDOEImportActiveWatts: f64(1000)})
	own := int64(3)
	sc := &scope.Scope{AggregatorID: 1, SiteID: &own, Source: scope.SourceDeviceCert}

	_, err := svc.DefaultControl(context.Background(), sc, 9)
	assert.Equal(t, apierrors.ErrNotFound, err)
}

func TestUpsertEnvelopes(t *testing.T) {
	repo := &fakeDoeRepo{}
	svc := newDoeService(repo, config.Sep2Config{})
	start := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	n, err := svc.UpsertEnvelopes(context.Background(), []*models.UpsertDoeRequest{
		{SiteControlGroupID: 1, SiteID: 5, StartTime: start, DurationSeconds: 300, ImportLimitActiveWatts: dec("1500")},
		{SiteControlGroupID: 1, SiteID: 6, StartTime: start, DurationSeconds: 600},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, repo.upserted, 2)
	assert.Equal(t, start.Add(5*time.Minute), repo.upserted[0].EndTime)
	assert.False(t, repo.upserted[0].ChangedTime.IsZero())
	// One supersede sweep per envelope.
	assert.Equal(t, int64(2), repo.superseded)
}

func TestUpsertEnvelopesValidation(t *testing.T) {
	repo := &fakeDoeRepo{}
	svc := newDoeService(repo, config.Sep2Config{})

	_, err := svc.UpsertEnvelopes(context.Background(), []*models.UpsertDoeRequest{
		{SiteControlGroupID: 1, SiteID: 5, StartTime: time.Now(), DurationSeconds: 0},
	})
	require.Error(t, err)
	apiErr := apierrors.AsAPIError(err)
	assert.Equal(t, "validation_error", apiErr.Code)
	assert.Empty(t, repo.upserted)
}

func TestUpsertEnvelopesEmptyBatch(t *testing.T) {
	svc := newDoeService(&fakeDoeRepo{}, config.Sep2Config{})
	n, err := svc.UpsertEnvelopes(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateControlGroupRequiresDescription(t *testing.T) {
	svc := newDoeService(&fakeDoeRepo{}, config.Sep2Config{})
	err := svc.CreateControlGroup(context.Background(), &models.SiteControlGroup{})
	require.Error(t, err)
	assert.Equal(t, "validation_error", apierrors.AsAPIError(err).Code)
}

func TestUpdateControlGroupDefaultsUnknownGroup(t *testing.T) {
	svc := newDoeService(&fakeDoeRepo{}, config.Sep2Config{})
	err := svc.UpdateControlGroupDefaults(context.Background(), &models.SiteControlGroup{ID: 99})
	require.Error(t, err)
	assert.Equal(t, "not_found", apierrors.AsAPIError(err).Code)
}

func TestUpsertDefaultSiteControls(t *testing.T) {
	repo := &fakeDoeRepo{}
	svc := newDoeService(repo, config.Sep2Config{})

	err := svc.UpsertDefaultSiteControls(context.Background(), []*models.DefaultSiteControl{
		{SiteID: 5, ImportLimitActiveWatts: dec("1500")},
	})
	require.NoError(t, err)
	require.Contains(t, repo.siteControls, int64(5))
	assert.False(t, repo.siteControls[5].ChangedTime.IsZero())

	err = svc.UpsertDefaultSiteControls(context.Background(), []*models.DefaultSiteControl{{}})
	require.Error(t, err)
	assert.Equal(t, "validation_error", apierrors.AsAPIError(err).Code)
}
