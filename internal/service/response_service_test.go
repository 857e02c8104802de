package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridmesh/csip-core/internal/models"
	"github.com/gridmesh/csip-core/internal/mrid"
	apierrors "github.com/gridmesh/csip-core/internal/pkg/errors"
	"github.com/gridmesh/csip-core/internal/sep2"
)

// fakeResponseRepo stamps id and created_time on insert the way the real
// table defaults do.
type fakeResponseRepo struct {
	clock    time.Time
	doeRows  []*models.DynamicOperatingEnvelopeResponse
	rateRows []*models.TariffGeneratedRateResponse
}

func (f *fakeResponseRepo) CreateDoeResponse(_ context.Context, resp *models.DynamicOperatingEnvelopeResponse) error {
	resp.ID = int64(len(f.doeRows) + 1)
	resp.CreatedTime = f.clock
	f.doeRows = append(f.doeRows, resp)
	return nil
}

func (f *fakeResponseRepo) GetDoeResponse(_ context.Context, siteID, id int64) (*models.DynamicOperatingEnvelopeResponse, error) {
	for _, row := range f.doeRows {
		if row.ID == id && row.SiteID == siteID {
			return row, nil
		}
	}
	return nil, nil
}

func (f *fakeResponseRepo) ListDoeResponses(_ context.Context, siteID int64, _, _ int) ([]*models.DynamicOperatingEnvelopeResponse, error) {
	var out []*models.DynamicOperatingEnvelopeResponse
	for _, row := range f.doeRows {
		if row.SiteID == siteID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeResponseRepo) CountDoeResponses(ctx context.Context, siteID int64) (int, error) {
	rows, _ := f.ListDoeResponses(ctx, siteID, 0, 0)
	return len(rows), nil
}

func (f *fakeResponseRepo) CreateRateResponse(_ context.Context, resp *models.TariffGeneratedRateResponse) error {
	resp.ID = int64(len(f.rateRows) + 1)
	resp.CreatedTime = f.clock
	f.rateRows = append(f.rateRows, resp)
	return nil
}

func (f *fakeResponseRepo) GetRateResponse(_ context.Context, siteID, id int64) (*models.TariffGeneratedRateResponse, error) {
	for _, row := range f.rateRows {
		if row.ID == id && row.SiteID == siteID {
			return row, nil
		}
	}
	return nil, nil
}

func (f *fakeResponseRepo) ListRateResponses(_ context.Context, siteID int64, _, _ int) ([]*models.TariffGeneratedRateResponse, error) {
	var out []*models.TariffGeneratedRateResponse
	for _, row := range f.rateRows {
		if row.SiteID == siteID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeResponseRepo) CountRateResponses(ctx context.Context, siteID int64) (int, error) {
	rows, _ := f.ListRateResponses(ctx, siteID, 0, 0)
	return len(rows), nil
}

func newResponseFixture(clock time.Time, does *fakeDoeRepo) (ResponseService, *fakeResponseRepo, *mrid.Codec) {
	repo := &fakeResponseRepo{clock: clock}
	codec := mrid.NewCodec(1234)
	svc := NewResponseService(repo, does, nil, codec, discardLogger())
	return svc, repo, codec
}

func TestCreateResponseUsesDatabaseClock(t *testing.T) {
	dbNow := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	does := &fakeDoeRepo{archived: map[int64]*models.DynamicOperatingEnvelope{
		42: {ID: 42, SiteID: 3},
	}}
	svc, repo, codec := newResponseFixture(dbNow, does)

	status := int32(3)
	stored, err := svc.Create(context.Background(), aggScope(), 3, sep2.ResponseSlugDoe, &ResponseInput{
		SubjectMRID:  codec.EncodeDynamicOperatingEnvelope(42),
		ResponseType: &status,
	})
	require.NoError(t, err)

	// The stored time is the database's, never a client-supplied one.
	assert.True(t, stored.CreatedTime.Equal(dbNow))
	require.Len(t, repo.doeRows, 1)
	assert.True(t, repo.doeRows[0].CreatedTime.Equal(dbNow))
	assert.Equal(t, int64(42), repo.doeRows[0].DoeIDSnapshot)
}

func TestCreateResponseUnknownSubjectRejected(t *testing.T) {
	svc, repo, codec := newResponseFixture(time.Now(), &fakeDoeRepo{})

	_, err := svc.Create(context.Background(), aggScope(), 3, sep2.ResponseSlugDoe, &ResponseInput{
		SubjectMRID: codec.EncodeDynamicOperatingEnvelope(42),
	})
	require.Error(t, err)
	assert.Equal(t, "validation_error", apierrors.AsAPIError(err).Code)
	assert.Empty(t, repo.doeRows)
}

func TestGetResponseScopedBySite(t *testing.T) {
	dbNow := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	does := &fakeDoeRepo{archived: map[int64]*models.DynamicOperatingEnvelope{
		42: {ID: 42, SiteID: 3},
	}}
	svc, _, codec := newResponseFixture(dbNow, does)

	stored, err := svc.Create(context.Background(), aggScope(), 3, sep2.ResponseSlugDoe, &ResponseInput{
		SubjectMRID: codec.EncodeDynamicOperatingEnvelope(42),
	})
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), aggScope(), 3, sep2.ResponseSlugDoe, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.SubjectMRID, got.SubjectMRID)

	// The same id under another site is invisible.
	_, err = svc.Get(context.Background(), aggScope(), 4, sep2.ResponseSlugDoe, stored.ID)
	require.Error(t, err)
	assert.Equal(t, "not_found", apierrors.AsAPIError(err).Code)
}
