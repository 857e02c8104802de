package middleware

import (
	"net/http"

	"github.com/gridmesh/csip-core/internal/lfdi"
	apierrors "github.com/gridmesh/csip-core/internal/pkg/errors"
	"github.com/gridmesh/csip-core/internal/pkg/response"
	"github.com/gridmesh/csip-core/internal/scope"
)

// CertAuth authenticates sep2 requests from the client certificate material
// forwarded by the TLS-terminating proxy. The header carries either a full
// PEM certificate or a SHA-256 fingerprint; both reduce to an LFDI, which
// the deriver resolves to an access scope.
func CertAuth(headerName string, deriver *scope.Deriver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(headerName)
			if raw == "" {
				response.XMLError(w, apierrors.ErrUnauthorized.WithMessage("client certificate required"))
				return
			}

			var (
				fingerprint string
				err         error
			)
			if lfdi.IsPEM(raw) {
				fingerprint, err = lfdi.FromPEM(raw)
			} else {
				fingerprint, err = lfdi.FromFingerprint(raw)
			}
			if err != nil {
				response.XMLError(w, apierrors.ErrUnauthorized.WithMessage("malformed client certificate"))
				return
			}

			sc, err := deriver.ScopeForLFDI(r.Context(), fingerprint)
			if err != nil {
				response.XMLError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(scope.NewContext(r.Context(), sc)))
		})
	}
}
