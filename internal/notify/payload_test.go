package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridmesh/csip-core/internal/models"
	"github.com/gridmesh/csip-core/internal/mrid"
	"github.com/gridmesh/csip-core/internal/repository"
	"github.com/gridmesh/csip-core/internal/sep2"
)

func testBuilder() *PayloadBuilder {
	return NewPayloadBuilder(sep2.NewHrefs(""), mrid.NewCodec(1234))
}

func TestSiteNotification(t *testing.T) {
	b := testBuilder()
	sites := []*repository.ChangedSite{
		{Site: models.Site{ID: 3, SFDI: 111222, LFDI: "3e4f", ChangedTime: time.Unix(1700000000, 0)}},
	}

	n := b.SiteNotification("/edev/3/sub/9", sites)
	assert.Equal(t, "/edev", n.SubscribedResource)
	assert.Equal(t, "/edev/3/sub/9", n.SubscriptionURI)
	require.NotNil(t, n.Resource)
	assert.Equal(t, "EndDeviceList", n.Resource.XsiType)
	assert.Equal(t, 1, n.Resource.All)
	require.Len(t, n.Resource.EndDevices, 1)
	assert.Equal(t, "/edev/3", n.Resource.EndDevices[0].Href)
}

func TestDoeNotificationStatusMapping(t *testing.T) {
	b := testBuilder()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	imp := decimal.RequireFromString("12.34")

	base := models.DynamicOperatingEnvelope{
		SiteControlGroupID:     2,
		SiteID:                 3,
		ChangedTime:            now,
		StartTime:              now.Add(-time.Hour),
		EndTime:                now.Add(time.Hour),
		DurationSeconds:        7200,
		ImportLimitActiveWatts: &imp,
	}

	tests := []struct {
		name string
		doe  *repository.ChangedDoe
		want int
	}{
		{"active", &repository.ChangedDoe{DynamicOperatingEnvelope: base}, sep2.EventStatusActive},
		{"deleted", &repository.ChangedDoe{DynamicOperatingEnvelope: base, Deleted: true}, sep2.EventStatusCancelled},
		{"superseded", &repository.ChangedDoe{DynamicOperatingEnvelope: func() models.DynamicOperatingEnvelope {
			d := base
			d.Superseded = true
			return d
		}()}, sep2.EventStatusSuperseded},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n := b.DoeNotification("/edev/3/sub/9", 3, []*repository.ChangedDoe{tc.doe}, now)
			require.Len(t, n.Resource.DERControls, 1)
			c := n.Resource.DERControls[0]
			require.NotNil(t, c.EventStatus)
			assert.Equal(t, tc.want, c.EventStatus.CurrentStatus)
		})
	}

	t.Run("scheduled when in the future", func(t *testing.T) {
		future := base
		future.StartTime = now.Add(time.Hour)
		future.EndTime = now.Add(3 * time.Hour)
		n := b.DoeNotification("/edev/3/sub/9", 3, []*repository.ChangedDoe{{DynamicOperatingEnvelope: future}}, now)
		assert.Equal(t, sep2.EventStatusScheduled, n.Resource.DERControls[0].EventStatus.CurrentStatus)
	})
}

func TestDoeNotificationWattsEncoding(t *testing.T) {
	b := testBuilder()
	now := time.Now()
	imp := decimal.RequireFromString("12.34")
	doe := &repository.ChangedDoe{DynamicOperatingEnvelope: models.DynamicOperatingEnvelope{
		SiteControlGroupID:     2,
		SiteID:                 3,
		StartTime:              now,
		EndTime:                now.Add(time.Hour),
		ImportLimitActiveWatts: &imp,
	}}

	n := b.DoeNotification("/sub", 3, []*repository.ChangedDoe{doe}, now)
	c := n.Resource.DERControls[0]
	require.NotNil(t, c.ControlBase.OpModImpLimW)
	assert.Equal(t, int64(1234), c.ControlBase.OpModImpLimW.Value)
	assert.Equal(t, -2, int(c.ControlBase.OpModImpLimW.Multiplier))
	assert.Nil(t, c.ControlBase.OpModExpLimW)
}

func TestRateNotification(t *testing.T) {
	b := testBuilder()
	day := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	batch := &RateBatch{AggregatorID: 1, TariffID: 7, SiteID: 3, Day: day}
	rates := []*repository.ChangedRate{
		{TariffGeneratedRate: models.TariffGeneratedRate{
			ID:              9,
			StartTime:       day.Add(10 * time.Hour),
			DurationSeconds: 300,
			ChangedTime:     day,
		}},
	}

	n := b.RateNotification("/sub", batch, rates, mrid.PriceExportActivePower)
	assert.Contains(t, n.SubscribedResource, "/edev/3/tp/7/rc/2026-05-01/2/tti")
	assert.Equal(t, "TimeTariffIntervalList", n.Resource.XsiType)
	require.Len(t, n.Resource.TimeTariffIntervals, 1)
	assert.Equal(t, sep2.EventStatusScheduled, n.Resource.TimeTariffIntervals[0].EventStatus.CurrentStatus)
}

func TestDefaultControlNotificationDeleted(t *testing.T) {
	b := testBuilder()
	batch := &DefaultControlBatch{
		AggregatorID: 1,
		SiteID:       3,
		Control: &repository.ChangedDefaultSiteControl{
			DefaultSiteControl: models.DefaultSiteControl{SiteID: 3},
			Deleted:            true,
		},
	}
	n := b.DefaultControlNotification("/sub", batch, 2)
	assert.Nil(t, n.Resource.DefaultDERControl)
	assert.Equal(t, "DefaultDERControl", n.Resource.XsiType)
}

func TestMarshalNotification(t *testing.T) {
	b := testBuilder()
	n := b.SiteNotification("/sub", nil)

	body, err := MarshalNotification(n)
	require.NoError(t, err)
	s := string(body)
	assert.True(t, strings.HasPrefix(s, "<?xml"))
	assert.Contains(t, s, `xmlns="urn:ieee:std:2030.5:ns"`)
	assert.Contains(t, s, "Notification")
}
