package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingRecordsStatusAndClient(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := Logging(logger, "x-forwarded-client-cert")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/edev/7", nil)
	req.Header.Set("x-forwarded-client-cert", "3E4F45AB31EDFE5B67E343E5E4562E31984E23E5")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	// 4xx responses log at warn so scans of a misbehaving client stand out.
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, float64(http.StatusNotFound), line["status"])
	assert.Equal(t, "/edev/7", line["path"])
	assert.Equal(t, "3e4f45ab", line["client"])
}

func TestLoggingServerErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := Logging(logger, "x-forwarded-client-cert")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/dcap", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ERROR", line["level"])
}

func TestClientHint(t *testing.T) {
	assert.Empty(t, clientHint(""))
	assert.Equal(t, "pem", clientHint("-----BEGIN CERTIFICATE-----\nMIIB..."))
	assert.Equal(t, "3e4f45ab", clientHint("3E4F45AB31EDFE5B67E343E5E4562E31984E23E5"))
	assert.Equal(t, "abc123", clientHint("ABC123"))
}
