package scope

import (
	"context"
	"fmt"
	"time"

	"github.com/gridmesh/csip-core/internal/cache"
	"github.com/gridmesh/csip-core/internal/lfdi"
	"github.com/gridmesh/csip-core/internal/models"
	apierrors "github.com/gridmesh/csip-core/internal/pkg/errors"
	"github.com/gridmesh/csip-core/internal/repository"
)

// DefaultCacheTTL bounds how long a derived scope is served without
// re-checking the database. Registration invalidates eagerly, so the TTL
// only caps staleness after admin-side certificate changes.
const DefaultCacheTTL = 5 * time.Minute

// Deriver maps a certificate LFDI to an authorization scope, caching the
// result per LFDI.
type Deriver struct {
	aggregators             repository.AggregatorRepository
	sites                   repository.SiteRepository
	allowDeviceRegistration bool
	cache                   *cache.Loader[string, *Scope]
	now                     func() time.Time
}

// NewDeriver creates a scope deriver backed by the given repositories.
func NewDeriver(
	aggregators repository.AggregatorRepository,
	sites repository.SiteRepository,
	allowDeviceRegistration bool,
	cacheTTL time.Duration,
) *Deriver {
	d := &Deriver{
		aggregators:             aggregators,
		sites:                   sites,
		allowDeviceRegistration: allowDeviceRegistration,
		now:                     func() time.Time { return time.Now().UTC() },
	}
	d.cache = cache.NewLoader(d.derive, cacheTTL)
	return d
}

// ScopeForLFDI resolves the scope for a certificate LFDI. Expired
// certificates and unknown identities (when device registration is off)
// resolve to Forbidden.
func (d *Deriver) ScopeForLFDI(ctx context.Context, fingerprint string) (*Scope, error) {
	normalized, err := lfdi.Normalize(fingerprint)
	if err != nil {
		return nil, apierrors.ErrForbidden
	}
	return d.cache.Get(ctx, normalized)
}

// Invalidate drops the cached scope for an LFDI. Called after registration
// so the first request on a fresh identity sees its new site immediately.
func (d *Deriver) Invalidate(fingerprint string) {
	if normalized, err := lfdi.Normalize(fingerprint); err == nil {
		d.cache.Invalidate(normalized)
	}
}

func (d *Deriver) derive(ctx context.Context, normalizedLFDI string) (*Scope, error) {
	cert, err := d.aggregators.GetCertificateByLFDI(ctx, normalizedLFDI)
	if err != nil {
		return nil, fmt.Errorf("looking up certificate: %w", err)
	}
	if cert != nil {
		return d.aggregatorScope(ctx, cert)
	}

	site, err := d.sites.GetByLFDI(ctx, normalizedLFDI)
	if err != nil {
		return nil, fmt.Errorf("looking up site: %w", err)
	}
	if site != nil {
		return deviceScope(site), nil
	}

	if !d.allowDeviceRegistration {
		return nil, apierrors.ErrForbidden
	}
	return unregisteredScope(normalizedLFDI), nil
}

func (d *Deriver) aggregatorScope(ctx context.Context, cert *models.Certificate) (*Scope, error) {
	if cert.IsExpired(d.now()) {
		return nil, apierrors.ErrForbidden
	}

	aggregatorIDs, err := d.aggregators.AggregatorIDsForCertificate(ctx, cert.ID)
	if err != nil {
		return nil, fmt.Errorf("looking up certificate assignments: %w", err)
	}
	if len(aggregatorIDs) == 0 {
		// Registered certificate with no tenant binding: treat as a device
		// certificate identity instead.
		site, err := d.sites.GetByLFDI(ctx, cert.LFDI)
		if err != nil {
			return nil, fmt.Errorf("looking up site: %w", err)
		}
		if site != nil {
			s := deviceScope(site)
			s.CertificateID = cert.ID
			return s, nil
		}
		if !d.allowDeviceRegistration {
			return nil, apierrors.ErrForbidden
		}
		s := unregisteredScope(cert.LFDI)
		s.CertificateID = cert.ID
		return s, nil
	}

	sfdi, err := lfdi.SFDIFromLFDI(cert.LFDI)
	if err != nil {
		return nil, fmt.Errorf("deriving sfdi: %w", err)
	}
	return &Scope{
		LFDI:          cert.LFDI,
		SFDI:          int64(sfdi),
		CertificateID: cert.ID,
		AggregatorID:  aggregatorIDs[0],
		Source:        SourceAggregatorCert,
	}, nil
}

func deviceScope(site *models.Site) *Scope {
	siteID := site.ID
	return &Scope{
		LFDI:         site.LFDI,
		SFDI:         site.SFDI,
		AggregatorID: site.AggregatorID,
		SiteID:       &siteID,
		Source:       SourceDeviceCert,
	}
}

func unregisteredScope(normalizedLFDI string) *Scope {
	// SFDI derivation cannot fail for a normalized 40-hex LFDI.
	sfdi, _ := lfdi.SFDIFromLFDI(normalizedLFDI)
	return &Scope{
		LFDI:         normalizedLFDI,
		SFDI:         int64(sfdi),
		AggregatorID: 0,
		Source:       SourceDeviceCert,
		Unregistered: true,
	}
}
