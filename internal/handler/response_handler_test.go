package handler

import (
	"context"
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridmesh/csip-core/internal/models"
	"github.com/gridmesh/csip-core/internal/mrid"
	"github.com/gridmesh/csip-core/internal/scope"
	"github.com/gridmesh/csip-core/internal/sep2"
	"github.com/gridmesh/csip-core/internal/service"
)

type stubResponses struct {
	stored *service.StoredResponse

	slug  string
	input *service.ResponseInput
}

func (s *stubResponses) Create(_ context.Context, _ *scope.Scope, _ int64, slug string, in *service.ResponseInput) (*service.StoredResponse, error) {
	s.slug, s.input = slug, in
	return s.stored, nil
}

func (s *stubResponses) Get(context.Context, *scope.Scope, int64, string, int64) (*service.StoredResponse, error) {
	return s.stored, nil
}

func (s *stubResponses) List(context.Context, *scope.Scope, int64, string, int, int) ([]*service.StoredResponse, int, error) {
	if s.stored == nil {
		return nil, 0, nil
	}
	return []*service.StoredResponse{s.stored}, 1, nil
}

func responseRouter(t *testing.T, responses *stubResponses, reg *stubRegistration) chi.Router {
	t.Helper()
	h := NewResponseHandler(responses, reg, sep2.NewHrefs(""), mrid.NewCodec(1234))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, withScope(req, testAggScope()))
		})
	})
	r.Route("/edev/{siteID}", func(r chi.Router) {
		r.Mount("/rsps", h.Routes())
	})
	return r
}

func TestCreateResponseIgnoresClientCreatedTime(t *testing.T) {
	responses := &stubResponses{stored: &service.StoredResponse{ID: 9, SiteID: 3}}
	router := responseRouter(t, responses, &stubRegistration{site: &models.Site{ID: 3, LFDI: "3e4f"}})

	body := strings.NewReader(`<Response xmlns="urn:ieee:std:2030.5:ns">` +
		`<createdDateTime>1000000000</createdDateTime>` +
		`<endDeviceLFDI>3e4f</endDeviceLFDI>` +
		`<status>3</status>` +
		`<subject>ABC123</subject>` +
		`</Response>`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/edev/3/rsps/doe/rsp", body))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, responses.input)
	assert.Equal(t, "doe", responses.slug)
	assert.Equal(t, "ABC123", responses.input.SubjectMRID)
	require.NotNil(t, responses.input.ResponseType)
	assert.Equal(t, int32(3), *responses.input.ResponseType)
}

func TestGetResponseRendersStoredTime(t *testing.T) {
	created := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	responses := &stubResponses{stored: &service.StoredResponse{
		ID: 9, SiteID: 3, SubjectMRID: "ABC123", CreatedTime: created,
	}}
	router := responseRouter(t, responses, &stubRegistration{site: &models.Site{ID: 3, LFDI: "3e4f"}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/edev/3/rsps/doe/rsp/9", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp sep2.Response
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "/edev/3/rsps/doe/rsp/9", resp.Href)
	assert.Equal(t, "3e4f", resp.EndDeviceLFDI)
	require.NotNil(t, resp.CreatedDateTime)
	assert.Equal(t, sep2.TimeType(created.Unix()), *resp.CreatedDateTime)
}
