package azuread

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridmesh/csip-core/internal/config"
)

func testConfig() config.AzureADConfig {
	return config.AzureADConfig{
		TenantID:     "tenant",
		ClientID:     "client-123",
		DBResourceID: "https://ossrdbms-aad.database.windows.net",
	}
}

func TestDatabasePassword(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "true", r.Header.Get("Metadata"))
		assert.Equal(t, "client-123", r.URL.Query().Get("client_id"))
		assert.Equal(t, "https://ossrdbms-aad.database.windows.net", r.URL.Query().Get("resource"))

		expiresOn := time.Now().Add(8 * time.Hour).Unix()
		fmt.Fprintf(w, `{"access_token":"tok-abc","expires_on":"%d"}`, expiresOn)
	}))
	defer srv.Close()

	p := NewTokenProvider(testConfig())
	p.endpoint = srv.URL

	token, err := p.DatabasePassword(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", token)

	// Second call is served from cache.
	token, err = p.DatabasePassword(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", token)
	assert.Equal(t, int64(1), calls.Load())
}

func TestDatabasePasswordServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "identity not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewTokenProvider(testConfig())
	p.endpoint = srv.URL

	_, err := p.DatabasePassword(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestDatabasePasswordEmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"","expires_on":"0"}`)
	}))
	defer srv.Close()

	p := NewTokenProvider(testConfig())
	p.endpoint = srv.URL

	_, err := p.DatabasePassword(context.Background())
	require.Error(t, err)
}
