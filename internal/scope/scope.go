// Package scope derives and enforces the per-request authorization scope
// from a client's certificate identity.
package scope

import (
	"context"

	apierrors "github.com/gridmesh/csip-core/internal/pkg/errors"
)

// Source identifies the kind of certificate a scope was derived from.
type Source int

const (
	// SourceAggregatorCert marks a certificate registered to an aggregator.
	SourceAggregatorCert Source = iota
	// SourceDeviceCert marks a certificate presented by a device directly.
	SourceDeviceCert
)

func (s Source) String() string {
	if s == SourceDeviceCert {
		return "device_cert"
	}
	return "aggregator_cert"
}

// Scope is the authorization context of one request. Aggregator scopes see
// every site under their tenant; device scopes see only their own site.
// An unregistered scope may only reach discovery endpoints and the
// registration operation.
type Scope struct {
	LFDI          string
	SFDI          int64
	CertificateID int64
	AggregatorID  int64
	SiteID        *int64
	Source        Source
	Unregistered  bool
}

// CanAccessSite reports whether the scope may read or write the given site.
// Repository-level aggregator filters still apply on top.
func (s *Scope) CanAccessSite(siteID int64) bool {
	if s.Unregistered {
		return false
	}
	if s.Source == SourceDeviceCert {
		return s.SiteID != nil && *s.SiteID == siteID
	}
	return true
}

// RequireSite returns NotFound when the scope may not access the site.
// NotFound rather than Forbidden so a probe cannot confirm the site exists.
func (s *Scope) RequireSite(siteID int64) error {
	if !s.CanAccessSite(siteID) {
		return apierrors.ErrNotFound
	}
	return nil
}

// RequireRegistered returns Forbidden for scopes that have not completed
// registration.
func (s *Scope) RequireRegistered() error {
	if s.Unregistered {
		return apierrors.ErrForbidden
	}
	return nil
}

type contextKey struct{}

// NewContext returns a context carrying the scope.
func NewContext(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext extracts the scope placed by the auth middleware.
func FromContext(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(contextKey{}).(*Scope)
	return s, ok
}
