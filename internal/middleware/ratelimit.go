package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gridmesh/csip-core/internal/database"
	apierrors "github.com/gridmesh/csip-core/internal/pkg/errors"
	"github.com/gridmesh/csip-core/internal/pkg/response"
	"github.com/gridmesh/csip-core/internal/scope"
)

// RateLimitConfig defines rate limiting parameters.
type RateLimitConfig struct {
	RequestsPerMinute int
	BurstSize         int
	// CertHeader identifies the caller when no scope is on the context.
	CertHeader string
	// XMLErrors selects the sep2 error body over JSON.
	XMLErrors bool
}

// DefaultRateLimitConfig returns default rate limiting configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 300,
		BurstSize:         60,
	}
}

// RateLimit returns a fixed-window rate limiter backed by Redis. A Redis
// outage fails open: requests pass, limits resume when Redis returns.
func RateLimit(redis *database.Redis, cfg RateLimitConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := fmt.Sprintf("ratelimit:%s", clientID(r, cfg.CertHeader))
			window := time.Minute

			count, err := redis.IncrWithExpire(r.Context(), key, window)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			limit := cfg.RequestsPerMinute
			remaining := limit - int(count)
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(window).Unix(), 10))

			if int(count) > limit+cfg.BurstSize {
				w.Header().Set("Retry-After", "60")
				if cfg.XMLErrors {
					response.XMLError(w, apierrors.ErrRateLimited)
				} else {
					response.JSONError(w, apierrors.ErrRateLimited)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientID identifies the caller: the authenticated LFDI when present, a
// digest of the forwarded certificate material otherwise, the source IP as
// a last resort.
func clientID(r *http.Request, certHeader string) string {
	if sc, ok := scope.FromContext(r.Context()); ok {
		return "lfdi:" + sc.LFDI
	}
	if certHeader != "" {
		if raw := r.Header.Get(certHeader); raw != "" {
			sum := sha256.Sum256([]byte(raw))
			return "cert:" + hex.EncodeToString(sum[:10])
		}
	}
	return "ip:" + realIP(r)
}

// realIP extracts the client IP, honoring proxy headers.
func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return xrip
	}
	return r.RemoteAddr
}
