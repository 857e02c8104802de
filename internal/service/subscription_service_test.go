package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridmesh/csip-core/internal/models"
	"github.com/gridmesh/csip-core/internal/notify"
	apierrors "github.com/gridmesh/csip-core/internal/pkg/errors"
	"github.com/gridmesh/csip-core/internal/scope"
)

type fakeSubscriptionRepo struct {
	subs   map[int64]*models.Subscription
	nextID int64
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{subs: map[int64]*models.Subscription{}}
}

func (f *fakeSubscriptionRepo) Create(_ context.Context, sub *models.Subscription) error {
	f.nextID++
	sub.ID = f.nextID
	f.subs[sub.ID] = sub
	return nil
}

func (f *fakeSubscriptionRepo) GetByID(_ context.Context, aggregatorID, id int64) (*models.Subscription, error) {
	sub := f.subs[id]
	if sub == nil || sub.AggregatorID != aggregatorID {
		return nil, nil
	}
	return sub, nil
}

func (f *fakeSubscriptionRepo) List(_ context.Context, aggregatorID int64, _ *int64, _, _ int) ([]*models.Subscription, error) {
	var out []*models.Subscription
	for _, sub := range f.subs {
		if sub.AggregatorID == aggregatorID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (f *fakeSubscriptionRepo) Count(ctx context.Context, aggregatorID int64, scopedSiteID *int64) (int, error) {
	subs, _ := f.List(ctx, aggregatorID, scopedSiteID, 0, 0)
	return len(subs), nil
}

func (f *fakeSubscriptionRepo) Delete(_ context.Context, aggregatorID, id int64, _ time.Time) (bool, error) {
	sub := f.subs[id]
	if sub == nil || sub.AggregatorID != aggregatorID {
		return false, nil
	}
	delete(f.subs, id)
	return true, nil
}

func (f *fakeSubscriptionRepo) ListForResource(context.Context, models.SubscriptionResource) ([]*models.Subscription, error) {
	return nil, nil
}

func newSubscriptionFixture() (SubscriptionService, *fakeSubscriptionRepo) {
	repo := newFakeSubscriptionRepo()
	svc := NewSubscriptionService(repo, fakeAggregatorRepo{},
		notify.NewPublisher(nil, discardLogger()), "", discardLogger())
	return svc, repo
}

func TestSubscriptionCreate(t *testing.T) {
	svc, repo := newSubscriptionFixture()

	sub := &models.Subscription{
		ResourceType:    models.SubscriptionResourceSite,
		NotificationURI: "https://agg.example.com/hook",
	}
	created, err := svc.Create(context.Background(), aggScope(), 3, sub)
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.AggregatorID)
	assert.False(t, created.ChangedTime.IsZero())
	assert.Len(t, repo.subs, 1)
}

func TestSubscriptionCreateRejectsUnknownDomain(t *testing.T) {
	svc, repo := newSubscriptionFixture()

	sub := &models.Subscription{NotificationURI: "https://evil.example.net/hook"}
	_, err := svc.Create(context.Background(), aggScope(), 3, sub)
	require.Error(t, err)
	assert.Equal(t, "validation_error", apierrors.AsAPIError(err).Code)
	assert.Empty(t, repo.subs)
}

func TestSubscriptionCreateRejectsNonHTTPURI(t *testing.T) {
	svc, _ := newSubscriptionFixture()

	sub := &models.Subscription{NotificationURI: "ftp://agg.example.com/hook"}
	_, err := svc.Create(context.Background(), aggScope(), 3, sub)
	require.Error(t, err)
	assert.Equal(t, "validation_error", apierrors.AsAPIError(err).Code)
}

func TestSubscriptionCreateDeviceCertForbidden(t *testing.T) {
	svc, _ := newSubscriptionFixture()
	own := int64(3)
	sc := &scope.Scope{AggregatorID: 1, SiteID: &own, Source: scope.SourceDeviceCert}

	sub := &models.Subscription{NotificationURI: "https://agg.example.com/hook"}
	_, err := svc.Create(context.Background(), sc, 3, sub)
	require.Error(t, err)
	assert.Equal(t, "forbidden", apierrors.AsAPIError(err).Code)
}

func TestSubscriptionCreateScopedSiteMismatch(t *testing.T) {
	svc, _ := newSubscriptionFixture()
	other := int64(9)

	sub := &models.Subscription{
		NotificationURI: "https://agg.example.com/hook",
		ScopedSiteID:    &other,
	}
	_, err := svc.Create(context.Background(), aggScope(), 3, sub)
	require.Error(t, err)
	assert.Equal(t, "validation_error", apierrors.AsAPIError(err).Code)
}

func TestSubscriptionGetAndDelete(t *testing.T) {
	svc, repo := newSubscriptionFixture()
	repo.subs[7] = &models.Subscription{ID: 7, AggregatorID: 1}
	repo.subs[8] = &models.Subscription{ID: 8, AggregatorID: 2}

	got, err := svc.Get(context.Background(), aggScope(), 3, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ID)

	// Another tenant's subscription resolves to not found.
	_, err = svc.Get(context.Background(), aggScope(), 3, 8)
	assert.Equal(t, apierrors.ErrNotFound, err)

	require.NoError(t, svc.Delete(context.Background(), aggScope(), 3, 7))
	err = svc.Delete(context.Background(), aggScope(), 3, 7)
	assert.Equal(t, apierrors.ErrNotFound, err)
}

func TestParseSubscribedResource(t *testing.T) {
	svc, _ := newSubscriptionFixture()
	site3 := int64(3)
	id7 := int64(7)

	tests := []struct {
		name     string
		href     string
		wantType models.SubscriptionResource
		wantSite *int64
		wantID   *int64
	}{
		{"site list", "/edev", models.SubscriptionResourceSite, nil, nil},
		{"readings", "/mup/7", models.SubscriptionResourceReading, nil, &id7},
		{"envelopes", "/edev/3/derp/7/derc", models.SubscriptionResourceDynamicOperatingEnvelope, &site3, &id7},
		{"default control", "/edev/3/derp/7/dderc", models.SubscriptionResourceDefaultSiteControl, &site3, nil},
		{"rates", "/edev/3/tp/7", models.SubscriptionResourceTariffGeneratedRate, &site3, &id7},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resType, siteID, resourceID, err := svc.ParseSubscribedResource(tc.href)
			require.NoError(t, err)
			assert.Equal(t, tc.wantType, resType)
			assert.Equal(t, tc.wantSite, siteID)
			assert.Equal(t, tc.wantID, resourceID)
		})
	}

	for _, href := range []string{"", "/", "/edev/3", "/edev/x/tp/7", "/edev/3/derp/7/other", "/mup/0", "/tm"} {
		_, _, _, err := svc.ParseSubscribedResource(href)
		assert.Error(t, err, "href %q", href)
	}
}

func TestParseSubscribedResourceStripsPrefix(t *testing.T) {
	repo := newFakeSubscriptionRepo()
	svc := NewSubscriptionService(repo, fakeAggregatorRepo{},
		notify.NewPublisher(nil, discardLogger()), "/api/v1", discardLogger())

	resType, _, _, err := svc.ParseSubscribedResource("/api/v1/edev")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionResourceSite, resType)
}
