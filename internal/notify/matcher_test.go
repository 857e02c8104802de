package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridmesh/csip-core/internal/models"
	"github.com/gridmesh/csip-core/internal/repository"
)

func brisbane(t *testing.T) *time.Location {
	t.Helper()
	tz, err := time.LoadLocation("Australia/Brisbane")
	require.NoError(t, err)
	return tz
}

func TestBatchSitesGroupsByAggregatorAndSite(t *testing.T) {
	m := NewMatcher(time.UTC)
	rows := []*repository.ChangedSite{
		{Site: models.Site{ID: 2, AggregatorID: 1}},
		{Site: models.Site{ID: 1, AggregatorID: 1}},
		{Site: models.Site{ID: 1, AggregatorID: 1}},
		{Site: models.Site{ID: 5, AggregatorID: 2}},
	}

	batches := m.BatchSites(rows)
	require.Len(t, batches, 3)
	assert.Equal(t, int64(1), batches[0].SiteID)
	assert.Len(t, batches[0].Sites, 2)
	assert.Equal(t, int64(2), batches[1].SiteID)
	assert.Equal(t, int64(2), batches[2].AggregatorID)
}

func TestBatchRatesSplitsOnLocalDay(t *testing.T) {
	m := NewMatcher(brisbane(t))

	// 13:50 and 14:10 UTC straddle midnight in Brisbane (UTC+10).
	beforeMidnight := time.Date(2026, 3, 1, 13, 50, 0, 0, time.UTC)
	afterMidnight := time.Date(2026, 3, 1, 14, 10, 0, 0, time.UTC)

	rows := []*repository.ChangedRate{
		{TariffGeneratedRate: models.TariffGeneratedRate{ID: 1, TariffID: 7, SiteID: 3, StartTime: beforeMidnight}, AggregatorID: 1},
		{TariffGeneratedRate: models.TariffGeneratedRate{ID: 2, TariffID: 7, SiteID: 3, StartTime: afterMidnight}, AggregatorID: 1},
	}

	batches := m.BatchRates(rows)
	require.Len(t, batches, 2)
	assert.Equal(t, "2026-03-01", batches[0].Day.Format("2006-01-02"))
	assert.Equal(t, "2026-03-02", batches[1].Day.Format("2006-01-02"))
	assert.Len(t, batches[0].Rates, 1)
	assert.Len(t, batches[1].Rates, 1)
}

func TestSubscriptionsFor(t *testing.T) {
	m := NewMatcher(time.UTC)
	site3 := int64(3)
	tariff7 := int64(7)
	subs := []*models.Subscription{
		{ID: 1, AggregatorID: 1},
		{ID: 2, AggregatorID: 1, ScopedSiteID: &site3},
		{ID: 3, AggregatorID: 2},
		{ID: 4, AggregatorID: 1, ResourceID: &tariff7},
	}

	t.Run("aggregator and site scoping", func(t *testing.T) {
		got := m.SubscriptionsFor(subs, 1, 3, 0, false)
		require.Len(t, got, 2)
		assert.Equal(t, int64(1), got[0].ID)
		assert.Equal(t, int64(2), got[1].ID)
	})

	t.Run("scoped site mismatch drops", func(t *testing.T) {
		got := m.SubscriptionsFor(subs, 1, 9, 0, false)
		require.Len(t, got, 1)
		assert.Equal(t, int64(1), got[0].ID)
	})

	t.Run("resource filter", func(t *testing.T) {
		got := m.SubscriptionsFor(subs, 1, 9, 7, true)
		require.Len(t, got, 2)
		assert.Equal(t, int64(1), got[0].ID)
		assert.Equal(t, int64(4), got[1].ID)
	})
}

func TestFilterReadingsByConditions(t *testing.T) {
	m := NewMatcher(time.UTC)
	readings := []*repository.ChangedReading{
		{SiteReading: models.SiteReading{Value: 100}},
		{SiteReading: models.SiteReading{Value: 5000}},
		{SiteReading: models.SiteReading{Value: -50}},
	}

	sub := &models.Subscription{
		Conditions: []models.SubscriptionCondition{
			{Attribute: models.ConditionAttributeReadingValue, LowerThreshold: 0, UpperThreshold: 1000},
		},
	}
	got := m.FilterReadingsByConditions(sub, readings)
	require.Len(t, got, 1)
	assert.Equal(t, int64(100), got[0].Value)

	// No conditions passes everything through.
	got = m.FilterReadingsByConditions(&models.Subscription{}, readings)
	assert.Len(t, got, 3)
}

func TestChunk(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	assert.Nil(t, chunk([]int{}, 2))
	assert.Equal(t, [][]int{items}, chunk(items, 0))
	assert.Equal(t, [][]int{items}, chunk(items, 10))

	parts := chunk(items, 2)
	require.Len(t, parts, 3)
	assert.Equal(t, []int{1, 2}, parts[0])
	assert.Equal(t, []int{3, 4}, parts[1])
	assert.Equal(t, []int{5}, parts[2])
}
