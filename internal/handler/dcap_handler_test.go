package handler

import (
	"context"
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridmesh/csip-core/internal/models"
	"github.com/gridmesh/csip-core/internal/scope"
	"github.com/gridmesh/csip-core/internal/sep2"
	"github.com/gridmesh/csip-core/internal/service"
)

type stubMups struct {
	streams []*models.SiteReadingType
}

func (s *stubMups) UpsertReadingType(_ context.Context, _ *scope.Scope, _ string, t *models.SiteReadingType) (*models.SiteReadingType, bool, error) {
	s.streams = append(s.streams, t)
	return t, true, nil
}

func (s *stubMups) Get(context.Context, *scope.Scope, int64) (*models.SiteReadingType, error) {
	if len(s.streams) == 0 {
		return nil, nil
	}
	return s.streams[0], nil
}

func (s *stubMups) ListForSite(context.Context, *scope.Scope, int64) ([]*models.SiteReadingType, error) {
	return s.streams, nil
}

func (s *stubMups) List(context.Context, *scope.Scope, int, int) ([]*models.SiteReadingType, int, error) {
	return s.streams, len(s.streams), nil
}

func (s *stubMups) Delete(context.Context, *scope.Scope, int64) error { return nil }

func (s *stubMups) IngestReadings(context.Context, *scope.Scope, int64, []service.IngestReading) error {
	return nil
}

func (s *stubMups) ListReadings(context.Context, *scope.Scope, int64, time.Time, int, int) ([]*models.SiteReading, int, error) {
	return nil, 0, nil
}

func mustLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	tz, err := time.LoadLocation(name)
	require.NoError(t, err)
	return tz
}

func TestZoneOffsets(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("southern hemisphere", func(t *testing.T) {
		std, dst := zoneOffsets(now, mustLocation(t, "Australia/Sydney"))
		assert.Equal(t, 10*3600, std)
		assert.Equal(t, 11*3600, dst)
	})

	t.Run("northern hemisphere", func(t *testing.T) {
		std, dst := zoneOffsets(now, mustLocation(t, "Europe/Berlin"))
		assert.Equal(t, 1*3600, std)
		assert.Equal(t, 2*3600, dst)
	})

	t.Run("no daylight saving", func(t *testing.T) {
		std, dst := zoneOffsets(now, mustLocation(t, "Australia/Brisbane"))
		assert.Equal(t, 10*3600, std)
		assert.Equal(t, std, dst)
	})
}

func TestDstTransitions(t *testing.T) {
	t.Run("fixed zone has none", func(t *testing.T) {
		start, end := dstTransitions(time.Now(), mustLocation(t, "Australia/Brisbane"))
		assert.Zero(t, start)
		assert.Zero(t, end)
	})

	t.Run("sydney transitions land in april and october", func(t *testing.T) {
		tz := mustLocation(t, "Australia/Sydney")
		now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
		start, end := dstTransitions(now, tz)
		require.NotZero(t, start)
		require.NotZero(t, end)
		// Daylight saving ends first (April), the next start is in October.
		assert.Equal(t, time.April, time.Unix(end, 0).In(tz).Month())
		assert.Equal(t, time.October, time.Unix(start, 0).In(tz).Month())
		assert.Less(t, end, start)
	})
}

func TestGetTime(t *testing.T) {
	h := NewDeviceCapabilityHandler(&stubRuntime{}, &stubRegistration{}, &stubMups{},
		sep2.NewHrefs(""), mustLocation(t, "Australia/Brisbane"))
	now := time.Date(2026, 8, 24, 2, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	rec := httptest.NewRecorder()
	h.GetTime(rec, httptest.NewRequest(http.MethodGet, "/tm", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sep2.ContentType, rec.Header().Get("Content-Type"))

	var tm sep2.Time
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &tm))
	assert.Equal(t, sep2.TimeType(now.Unix()), tm.CurrentTime)
	assert.Equal(t, sep2.TimeType(now.Unix()+10*3600), tm.LocalTime)
	assert.Equal(t, int32(10*3600), tm.TzOffset)
	assert.Zero(t, tm.DstOffset)
	assert.Zero(t, tm.DstStartTime)
	assert.Zero(t, tm.DstEndTime)
}

func TestGetDeviceCapability(t *testing.T) {
	rate := int32(120)
	reg := &stubRegistration{site: &models.Site{ID: 7, LFDI: "3e4f"}}
	mups := &stubMups{streams: []*models.SiteReadingType{{ID: 1}, {ID: 2}}}
	h := NewDeviceCapabilityHandler(&stubRuntime{cfg: models.RuntimeServerConfig{DcapPollrateSeconds: &rate}},
		reg, mups, sep2.NewHrefs(""), time.UTC)

	rec := httptest.NewRecorder()
	req := withScope(httptest.NewRequest(http.MethodGet, "/dcap", nil), testAggScope())
	h.GetDeviceCapability(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var dcap sep2.DeviceCapability
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &dcap))
	require.NotNil(t, dcap.PollRate)
	assert.Equal(t, 120, *dcap.PollRate)
	require.NotNil(t, dcap.EndDeviceListLink)
	assert.Equal(t, "/edev", dcap.EndDeviceListLink.Href)
	require.NotNil(t, dcap.EndDeviceListLink.All)
	assert.Equal(t, 1, *dcap.EndDeviceListLink.All)
	require.NotNil(t, dcap.MirrorUsagePointListLink)
	require.NotNil(t, dcap.MirrorUsagePointListLink.All)
	assert.Equal(t, 2, *dcap.MirrorUsagePointListLink.All)
	require.NotNil(t, dcap.TimeLink)
	assert.Equal(t, "/tm", dcap.TimeLink.Href)
}

func TestGetDeviceCapabilityWithoutScope(t *testing.T) {
	h := NewDeviceCapabilityHandler(&stubRuntime{}, &stubRegistration{}, &stubMups{},
		sep2.NewHrefs(""), time.UTC)

	rec := httptest.NewRecorder()
	h.GetDeviceCapability(rec, httptest.NewRequest(http.MethodGet, "/dcap", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
