package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gridmesh/csip-core/internal/config"
)

func adminHandler(cfg config.AdminConfig) http.Handler {
	return AdminAuth(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func adminRequest(t *testing.T, method, user, pass string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, "/admin/sites", nil)
	if user != "" {
		req.SetBasicAuth(user, pass)
	}
	return req
}

func TestAdminAuth(t *testing.T) {
	cfg := config.AdminConfig{
		Username: "admin", Password: "secret",
		ReadUsername: "viewer", ReadPassword: "lookonly",
	}
	h := adminHandler(cfg)

	tests := []struct {
		name       string
		method     string
		user, pass string
		want       int
	}{
		{"no credentials", http.MethodGet, "", "", http.StatusUnauthorized},
		{"wrong password", http.MethodGet, "admin", "nope", http.StatusUnauthorized},
		{"read-write get", http.MethodGet, "admin", "secret", http.StatusOK},
		{"read-write post", http.MethodPost, "admin", "secret", http.StatusOK},
		{"read-only get", http.MethodGet, "viewer", "lookonly", http.StatusOK},
		{"read-only post", http.MethodPost, "viewer", "lookonly", http.StatusForbidden},
		{"read-only delete", http.MethodDelete, "viewer", "lookonly", http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, adminRequest(t, tc.method, tc.user, tc.pass))
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestAdminAuthNoPasswordConfigured(t *testing.T) {
	// An empty password never matches, even an empty submission.
	h := adminHandler(config.AdminConfig{Username: "admin"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, adminRequest(t, http.MethodGet, "admin", ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
}
