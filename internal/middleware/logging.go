package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Logging logs one line per request. The client column carries a
// fingerprint prefix when the cert header holds one, enough to correlate
// a request with a site's LFDI without spilling the credential into logs.
func Logging(logger *slog.Logger, certHeader string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", chimiddleware.GetReqID(r.Context())),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if client := clientHint(r.Header.Get(certHeader)); client != "" {
				attrs = append(attrs, slog.String("client", client))
			}

			switch {
			case ww.Status() >= http.StatusInternalServerError:
				logger.Error("request", attrs...)
			case ww.Status() >= http.StatusBadRequest:
				logger.Warn("request", attrs...)
			default:
				logger.Info("request", attrs...)
			}
		})
	}
}

// clientHint reduces the cert header to a loggable token: the leading hex
// of a fingerprint, or "pem" for a full certificate.
func clientHint(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return ""
	case strings.HasPrefix(raw, "-----BEGIN"):
		return "pem"
	case len(raw) > 8:
		return strings.ToLower(raw[:8])
	default:
		return strings.ToLower(raw)
	}
}
