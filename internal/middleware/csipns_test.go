package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridmesh/csip-core/internal/sep2"
)

func TestCSIPNamespaceDowngradesResponseForLegacyClients(t *testing.T) {
	mw := CSIPV11aNamespace()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`<ConnectionPoint xmlns="` + sep2.NamespaceCSIPAus + `"/>`))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/edev/1/cp", nil))

	body := rec.Body.String()
	assert.Contains(t, body, sep2.NamespaceCSIPAusV11)
	assert.NotContains(t, body, sep2.NamespaceCSIPAus)
}

func TestCSIPNamespacePassthroughForOptedInClients(t *testing.T) {
	mw := CSIPV11aNamespace()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<ConnectionPoint xmlns="` + sep2.NamespaceCSIPAus + `"/>`))
	}))

	req := httptest.NewRequest(http.MethodGet, "/edev/1/cp", nil)
	req.Header.Set(OptInHeaderCSIPAusV11a, "1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Contains(t, rec.Body.String(), sep2.NamespaceCSIPAus)
}

func TestCSIPNamespaceUpgradesRequestBody(t *testing.T) {
	var seen string
	mw := CSIPV11aNamespace()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		seen = string(body)
	}))

	payload := `<ConnectionPoint xmlns="` + sep2.NamespaceCSIPAusV11 + `"/>`
	req := httptest.NewRequest(http.MethodPut, "/edev/1/cp", strings.NewReader(payload))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Contains(t, seen, sep2.NamespaceCSIPAus)
	assert.NotContains(t, seen, `"`+sep2.NamespaceCSIPAusV11+`"`)
}

func TestCSIPNamespacePreservesStatus(t *testing.T) {
	mw := CSIPV11aNamespace()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/edev/99", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
