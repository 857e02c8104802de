package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridmesh/csip-core/internal/models"
	"github.com/gridmesh/csip-core/internal/scope"
)

// stubRuntime serves a fixed runtime config in place of the cached service.
type stubRuntime struct {
	cfg models.RuntimeServerConfig
}

func (s *stubRuntime) Current(context.Context) *models.RuntimeServerConfig {
	cfg := s.cfg
	cfg.ConfigID = 1
	return &cfg
}

func (s *stubRuntime) Update(_ context.Context, cfg *models.RuntimeServerConfig) error {
	s.cfg = *cfg
	return nil
}

// withScope attaches an aggregator scope the way the cert auth middleware
// would.
func withScope(r *http.Request, sc *scope.Scope) *http.Request {
	return r.WithContext(scope.NewContext(r.Context(), sc))
}

// withURLParam injects a chi route parameter for handlers invoked outside a
// router.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func testAggScope() *scope.Scope {
	return &scope.Scope{AggregatorID: 1, Source: scope.SourceAggregatorCert}
}

func TestParsePagination(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/edev?s=5&l=20&a=1700000000", nil)
	p := parsePagination(req)
	assert.Equal(t, 5, p.Start)
	assert.Equal(t, 20, p.Limit)
	assert.Equal(t, time.Unix(1700000000, 0), p.After)
}

func TestParsePaginationDefaults(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/edev", nil)
	p := parsePagination(req)
	assert.Equal(t, 0, p.Start)
	assert.Equal(t, defaultPageLimit, p.Limit)
	assert.Equal(t, time.Unix(0, 0), p.After)

	// Oversized limits clamp back to the default.
	req = httptest.NewRequest(http.MethodGet, "/edev?l=9999&s=-1", nil)
	p = parsePagination(req)
	assert.Equal(t, defaultPageLimit, p.Limit)
	assert.Equal(t, 0, p.Start)
}

func TestDecodeXMLRejectsGarbage(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/edev", nil)
	var dst struct{}
	err := decodeXML(req, &dst)
	require.Error(t, err)
}
