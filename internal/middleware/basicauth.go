package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gridmesh/csip-core/internal/config"
	apierrors "github.com/gridmesh/csip-core/internal/pkg/errors"
	"github.com/gridmesh/csip-core/internal/pkg/response"
)

// AdminAuth guards the JSON management API with HTTP basic auth. Two
// credentials exist: a read-write pair and an optional read-only pair that
// may only issue safe methods.
func AdminAuth(cfg config.AdminConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || cfg.Password == "" {
				w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
				response.JSONError(w, apierrors.ErrUnauthorized)
				return
			}

			if credentialsMatch(user, pass, cfg.Username, cfg.Password) {
				next.ServeHTTP(w, r)
				return
			}

			if cfg.ReadPassword != "" && credentialsMatch(user, pass, cfg.ReadUsername, cfg.ReadPassword) {
				switch r.Method {
				case http.MethodGet, http.MethodHead, http.MethodOptions:
					next.ServeHTTP(w, r)
				default:
					response.JSONError(w, apierrors.ErrForbidden.WithMessage("read-only credential"))
				}
				return
			}

			w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
			response.JSONError(w, apierrors.ErrUnauthorized)
		})
	}
}

func credentialsMatch(user, pass, wantUser, wantPass string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(wantUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(wantPass)) == 1
	return userOK && passOK
}
