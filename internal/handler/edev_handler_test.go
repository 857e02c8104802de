package handler

import (
	"context"
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridmesh/csip-core/internal/models"
	apierrors "github.com/gridmesh/csip-core/internal/pkg/errors"
	"github.com/gridmesh/csip-core/internal/scope"
	"github.com/gridmesh/csip-core/internal/sep2"
	"github.com/gridmesh/csip-core/internal/service"
)

type stubRegistration struct {
	site    *models.Site
	created bool
	err     error

	registered *service.RegisterSiteRequest
}

func (s *stubRegistration) Register(_ context.Context, _ *scope.Scope, req *service.RegisterSiteRequest) (*models.Site, bool, error) {
	s.registered = req
	return s.site, s.created, s.err
}

func (s *stubRegistration) Get(context.Context, *scope.Scope, int64) (*models.Site, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.site, nil
}

func (s *stubRegistration) List(context.Context, *scope.Scope, time.Time, int, int) ([]*models.Site, int, error) {
	if s.site == nil {
		return nil, 0, nil
	}
	return []*models.Site{s.site}, 1, nil
}

func (s *stubRegistration) Delete(context.Context, *scope.Scope, int64) error { return s.err }

func (s *stubRegistration) SetConnectionPoint(context.Context, *scope.Scope, int64, string) error {
	return s.err
}

func (s *stubRegistration) CreateAdmin(context.Context, *models.CreateSiteRequest) (*models.Site, error) {
	return s.site, s.err
}

type stubLogEvents struct {
	events []*models.SiteLogEvent
}

func (s *stubLogEvents) Create(_ context.Context, ev *models.SiteLogEvent) error {
	s.events = append(s.events, ev)
	return nil
}

func (s *stubLogEvents) Get(_ context.Context, _ int64, eventID int64) (*models.SiteLogEvent, error) {
	for _, ev := range s.events {
		if ev.ID == eventID {
			return ev, nil
		}
	}
	return nil, nil
}

func (s *stubLogEvents) List(context.Context, int64, int, int) ([]*models.SiteLogEvent, error) {
	return s.events, nil
}

func (s *stubLogEvents) Count(context.Context, int64) (int, error) {
	return len(s.events), nil
}

func newEdevHandler(reg *stubRegistration, runtime *stubRuntime) *EndDeviceHandler {
	return NewEndDeviceHandler(reg, runtime, &stubLogEvents{}, sep2.NewHrefs(""))
}

func registerBody(lfdi string) *strings.Reader {
	return strings.NewReader(
		`<EndDevice xmlns="urn:ieee:std:2030.5:ns"><lFDI>` + lfdi + `</lFDI></EndDevice>`)
}

func TestRegisterCreated(t *testing.T) {
	reg := &stubRegistration{site: &models.Site{ID: 7, LFDI: "3e4f"}, created: true}
	h := newEdevHandler(reg, &stubRuntime{})

	req := withScope(httptest.NewRequest(http.MethodPost, "/edev", registerBody("3e4f")), testAggScope())
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/edev/7", rec.Header().Get("Location"))
	require.NotNil(t, reg.registered)
	assert.Equal(t, "3e4f", reg.registered.LFDI)
}

func TestRegisterRepeatIsCreatedWithSameLocation(t *testing.T) {
	reg := &stubRegistration{site: &models.Site{ID: 7}, created: false}
	h := newEdevHandler(reg, &stubRuntime{})

	req := withScope(httptest.NewRequest(http.MethodPost, "/edev", registerBody("3e4f")), testAggScope())
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	// The repeat resolves to the existing site but still answers 201.
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/edev/7", rec.Header().Get("Location"))
}

func TestRegisterDisabledByRuntimeConfig(t *testing.T) {
	runtime := &stubRuntime{cfg: models.RuntimeServerConfig{DisableEdevRegistration: true}}
	h := newEdevHandler(&stubRegistration{}, runtime)

	req := withScope(httptest.NewRequest(http.MethodPost, "/edev", registerBody("3e4f")), testAggScope())
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	var e sep2.Error
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, apierrors.ReasonInvalidRequestValues, e.ReasonCode)
}

func TestRegisterWithoutScope(t *testing.T) {
	h := newEdevHandler(&stubRegistration{}, &stubRuntime{})

	rec := httptest.NewRecorder()
	h.Register(rec, httptest.NewRequest(http.MethodPost, "/edev", registerBody("3e4f")))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterMalformedBody(t *testing.T) {
	h := newEdevHandler(&stubRegistration{}, &stubRuntime{})

	req := withScope(httptest.NewRequest(http.MethodPost, "/edev", strings.NewReader("not xml")), testAggScope())
	rec := httptest.NewRecorder()
	h.Register(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListEndDevices(t *testing.T) {
	site := &models.Site{ID: 7, LFDI: "3e4f", SFDI: 111222, ChangedTime: time.Unix(1700000000, 0)}
	h := newEdevHandler(&stubRegistration{site: site}, &stubRuntime{})

	req := withScope(httptest.NewRequest(http.MethodGet, "/edev", nil), testAggScope())
	rec := httptest.NewRecorder()
	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var list sep2.EndDeviceList
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.All)
	assert.Equal(t, 1, list.Results)
	require.Len(t, list.EndDevices, 1)
	assert.Equal(t, "/edev/7", list.EndDevices[0].Href)
	assert.Equal(t, uint64(111222), list.EndDevices[0].SFDI)
	require.NotNil(t, list.EndDevices[0].ConnectionPointLink)
	assert.Equal(t, "/edev/7/cp", list.EndDevices[0].ConnectionPointLink.Href)
}

func TestGetEndDeviceNotFoundRendersXMLError(t *testing.T) {
	h := newEdevHandler(&stubRegistration{err: apierrors.ErrNotFound}, &stubRuntime{})

	req := withScope(httptest.NewRequest(http.MethodGet, "/edev/7", nil), testAggScope())
	req = withURLParam(req, "siteID", "7")
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, sep2.ContentType, rec.Header().Get("Content-Type"))
}
