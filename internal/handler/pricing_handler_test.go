package handler

import (
	"context"
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridmesh/csip-core/internal/models"
	"github.com/gridmesh/csip-core/internal/mrid"
	"github.com/gridmesh/csip-core/internal/repository"
	"github.com/gridmesh/csip-core/internal/scope"
	"github.com/gridmesh/csip-core/internal/sep2"
	"github.com/gridmesh/csip-core/internal/service"
)

type stubTariffs struct {
	tariff *models.Tariff
	days   []time.Time
	rates  []*models.TariffGeneratedRate
}

func (s *stubTariffs) CreateTariff(context.Context, *models.Tariff) error { return nil }

func (s *stubTariffs) GetTariff(context.Context, int64) (*models.Tariff, error) {
	return s.tariff, nil
}

func (s *stubTariffs) ListTariffs(context.Context, time.Time, int, int) ([]*models.Tariff, int, error) {
	if s.tariff == nil {
		return nil, 0, nil
	}
	return []*models.Tariff{s.tariff}, 1, nil
}

func (s *stubTariffs) UpsertRates(context.Context, []*service.UpsertRateRequest) (int, error) {
	return 0, nil
}

func (s *stubTariffs) RateDays(context.Context, *scope.Scope, int64, int64, *time.Location, time.Time, int, int) ([]time.Time, int, error) {
	return s.days, len(s.days), nil
}

func (s *stubTariffs) RatesForDay(context.Context, *scope.Scope, int64, int64, time.Time, *time.Location, time.Time, int, int) ([]*models.TariffGeneratedRate, int, error) {
	return s.rates, len(s.rates), nil
}

func (s *stubTariffs) GetRate(context.Context, *scope.Scope, int64, int64) (*models.TariffGeneratedRate, error) {
	if len(s.rates) == 0 {
		return nil, nil
	}
	return s.rates[0], nil
}

func (s *stubTariffs) ArchiveCountForPeriod(context.Context, repository.ArchivePeriod) (int, error) {
	return 0, nil
}

func (s *stubTariffs) ArchiveForPeriod(context.Context, repository.ArchivePeriod, int, int) ([]*models.TariffGeneratedRateArchive, error) {
	return nil, nil
}

// pricingRouter mounts the handler the way the main router does.
func pricingRouter(t *testing.T, tariffs *stubTariffs) chi.Router {
	t.Helper()
	h := NewPricingHandler(tariffs, sep2.NewHrefs(""), mrid.NewCodec(1234), time.UTC)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, withScope(req, testAggScope()))
		})
	})
	r.Route("/edev/{siteID}", func(r chi.Router) {
		r.Mount("/tp", h.Routes())
	})
	return r
}

func TestListRateComponentsExpandsChannels(t *testing.T) {
	day := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	router := pricingRouter(t, &stubTariffs{days: []time.Time{day}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/edev/3/tp/7/rc", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var list sep2.RateComponentList
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &list))
	// One day expands into the four price channels.
	assert.Equal(t, 4, list.All)
	require.Len(t, list.RateComponents, 4)
	assert.Equal(t, "/edev/3/tp/7/rc/2026-05-01/1", list.RateComponents[0].Href)
	assert.Equal(t, "2026-05-01", list.RateComponents[0].Description)
}

func TestListTimeTariffIntervals(t *testing.T) {
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	rate := &models.TariffGeneratedRate{
		ID: 9, TariffID: 7, SiteID: 3,
		StartTime: start, DurationSeconds: 300,
		ChangedTime: start, CreatedTime: start,
	}
	router := pricingRouter(t, &stubTariffs{rates: []*models.TariffGeneratedRate{rate}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/edev/3/tp/7/rc/2026-05-01/2/tti", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var list sep2.TimeTariffIntervalList
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.All)
	require.Len(t, list.TimeTariffIntervals, 1)
	tti := list.TimeTariffIntervals[0]
	assert.Equal(t, "/edev/3/tp/7/rc/2026-05-01/2/tti/9", tti.Href)
	require.NotNil(t, tti.Interval)
	assert.Equal(t, int64(300), tti.Interval.Duration)
	assert.Equal(t, sep2.TimeType(start.Unix()), tti.Interval.Start)
}

func TestConsumptionTariffIntervalPriceScaling(t *testing.T) {
	rate := &models.TariffGeneratedRate{
		ID: 9, TariffID: 7, SiteID: 3,
		StartTime: time.Now(), DurationSeconds: 300,
		// Dollars per kWh, served as ten-thousandths.
		ExportActivePrice: decimal.RequireFromString("-0.0823"),
		ImportActivePrice: decimal.RequireFromString("0.25"),
	}
	router := pricingRouter(t, &stubTariffs{rates: []*models.TariffGeneratedRate{rate}})

	t.Run("export channel", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/edev/3/tp/7/rc/2026-05-01/2/tti/9/cti", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var list sep2.ConsumptionTariffIntervalList
		require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &list))
		require.Len(t, list.Intervals, 1)
		assert.Equal(t, int64(-823), list.Intervals[0].Price)
	})

	t.Run("import channel", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/edev/3/tp/7/rc/2026-05-01/1/tti/9/cti", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var list sep2.ConsumptionTariffIntervalList
		require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &list))
		require.Len(t, list.Intervals, 1)
		assert.Equal(t, int64(2500), list.Intervals[0].Price)
	})
}

func TestRateComponentParamsRejected(t *testing.T) {
	router := pricingRouter(t, &stubTariffs{})

	for _, path := range []string{
		"/edev/3/tp/7/rc/not-a-day/2/tti",
		"/edev/3/tp/7/rc/2026-05-01/9/tti",
		"/edev/3/tp/7/rc/2026-05-01/0/tti",
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, "path %s", path)
	}
}
