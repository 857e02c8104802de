// Package service provides business logic implementations.
package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/gridmesh/csip-core/internal/config"
	"github.com/gridmesh/csip-core/internal/lfdi"
	"github.com/gridmesh/csip-core/internal/models"
	"github.com/gridmesh/csip-core/internal/nmi"
	"github.com/gridmesh/csip-core/internal/notify"
	apierrors "github.com/gridmesh/csip-core/internal/pkg/errors"
	"github.com/gridmesh/csip-core/internal/repository"
	"github.com/gridmesh/csip-core/internal/scope"
)

// RegisterSiteRequest carries the fields of an EndDevice POST.
type RegisterSiteRequest struct {
	LFDI           string
	SFDI           int64
	DeviceCategory string
	// Changed is true when the POST explicitly carried a changedTime.
	ChangedTime time.Time
}

// RegistrationService manages the EndDevice lifecycle: idempotent
// registration, listing, lookup, connection point assignment and cascading
// deregistration.
type RegistrationService interface {
	// Register creates or refreshes a site for the caller. Returns the
	// stored site and whether a new row was created.
	Register(ctx context.Context, sc *scope.Scope, req *RegisterSiteRequest) (*models.Site, bool, error)
	// Get retrieves one site visible to the caller.
	Get(ctx context.Context, sc *scope.Scope, siteID int64) (*models.Site, error)
	// List pages the caller's sites changed after the watermark.
	List(ctx context.Context, sc *scope.Scope, changedAfter time.Time, limit, offset int) ([]*models.Site, int, error)
	// Delete deregisters a site and all subordinate resources.
	Delete(ctx context.Context, sc *scope.Scope, siteID int64) error
	// SetConnectionPoint assigns the site's NMI.
	SetConnectionPoint(ctx context.Context, sc *scope.Scope, siteID int64, connectionPointID string) error
	// CreateAdmin provisions a site out of band, ahead of its device
	// connecting.
	CreateAdmin(ctx context.Context, req *models.CreateSiteRequest) (*models.Site, error)
}

type registrationService struct {
	sites     repository.SiteRepository
	deriver   *scope.Deriver
	publisher *notify.Publisher
	nmi       *nmi.Validator
	cfg       config.Sep2Config
	log       *slog.Logger
	now       func() time.Time
}

// NewRegistrationService creates a new registration service.
func NewRegistrationService(
	sites repository.SiteRepository,
	deriver *scope.Deriver,
	publisher *notify.Publisher,
	nmiValidator *nmi.Validator,
	cfg config.Sep2Config,
	log *slog.Logger,
) RegistrationService {
	return &registrationService{
		sites:     sites,
		deriver:   deriver,
		publisher: publisher,
		nmi:       nmiValidator,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

func (s *registrationService) Register(ctx context.Context, sc *scope.Scope, req *RegisterSiteRequest) (*models.Site, bool, error) {
	normalized, err := lfdi.Normalize(req.LFDI)
	if err != nil {
		return nil, false, apierrors.NewValidationError("lFDI", err.Error())
	}

	// A device certificate may only register itself.
	if sc.Source == scope.SourceDeviceCert && normalized != sc.LFDI {
		return nil, false, apierrors.ErrForbidden.WithMessage("device certificate may only register its own LFDI")
	}

	expectedSFDI, err := lfdi.SFDIFromLFDI(normalized)
	if err != nil {
		return nil, false, apierrors.NewValidationError("lFDI", err.Error())
	}
	if req.SFDI != 0 && req.SFDI != int64(expectedSFDI) {
		return nil, false, apierrors.NewValidationError("sFDI", "sFDI does not match lFDI")
	}

	existing, err := s.sites.GetByLFDI(ctx, normalized)
	if err != nil {
		return nil, false, fmt.Errorf("looking up site by lfdi: %w", err)
	}
	if existing != nil && existing.AggregatorID != sc.AggregatorID {
		return nil, false, apierrors.NewConflictError("lFDI is registered to another party")
	}
	if existing == nil {
		// An SFDI collision inside the tenant without a matching LFDI means
		// two different certificates hashed to the same short form.
		other, err := s.sites.GetByAggregatorAndSFDI(ctx, sc.AggregatorID, int64(expectedSFDI))
		if err != nil {
			return nil, false, fmt.Errorf("looking up site by sfdi: %w", err)
		}
		if other != nil {
			return nil, false, apierrors.NewConflictError("sFDI is registered with a different lFDI")
		}
	}

	changedTime := req.ChangedTime
	if changedTime.IsZero() {
		changedTime = s.now()
	}
	pin, err := newRegistrationPIN()
	if err != nil {
		return nil, false, fmt.Errorf("generating registration pin: %w", err)
	}

	site := &models.Site{
		AggregatorID:    sc.AggregatorID,
		TimezoneID:      s.cfg.Timezone,
		ChangedTime:     changedTime,
		LFDI:            normalized,
		SFDI:            int64(expectedSFDI),
		DeviceCategory:  req.DeviceCategory,
		RegistrationPIN: pin,
	}
	created, err := s.sites.Upsert(ctx, site)
	if err != nil {
		return nil, false, fmt.Errorf("upserting site: %w", err)
	}

	if created {
		// An unregistered device cert just became a registered one.
		s.deriver.Invalidate(normalized)
	}
	s.publisher.Publish(ctx, changedTime, models.SubscriptionResourceSite)

	s.log.Info("site registered",
		"site_id", site.ID, "aggregator_id", site.AggregatorID,
		"sfdi", site.SFDI, "created", created)
	return site, created, nil
}

func (s *registrationService) Get(ctx context.Context, sc *scope.Scope, siteID int64) (*models.Site, error) {
	if err := sc.RequireSite(siteID); err != nil {
		return nil, err
	}
	site, err := s.sites.GetByID(ctx, sc.AggregatorID, siteID)
	if err != nil {
		return nil, fmt.Errorf("fetching site: %w", err)
	}
	if site == nil {
		return nil, apierrors.ErrNotFound
	}
	return site, nil
}

func (s *registrationService) List(ctx context.Context, sc *scope.Scope, changedAfter time.Time, limit, offset int) ([]*models.Site, int, error) {
	if sc.Source == scope.SourceDeviceCert {
		// A device sees a list of exactly itself.
		if sc.SiteID == nil {
			return nil, 0, nil
		}
		site, err := s.sites.GetByID(ctx, sc.AggregatorID, *sc.SiteID)
		if err != nil {
			return nil, 0, fmt.Errorf("fetching site: %w", err)
		}
		if site == nil || !site.ChangedTime.After(changedAfter) {
			return nil, 0, nil
		}
		if offset > 0 {
			return nil, 1, nil
		}
		return []*models.Site{site}, 1, nil
	}

	total, err := s.sites.Count(ctx, sc.AggregatorID, changedAfter)
	if err != nil {
		return nil, 0, fmt.Errorf("counting sites: %w", err)
	}
	sites, err := s.sites.List(ctx, sc.AggregatorID, changedAfter, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing sites: %w", err)
	}
	return sites, total, nil
}

func (s *registrationService) Delete(ctx context.Context, sc *scope.Scope, siteID int64) error {
	if err := sc.RequireSite(siteID); err != nil {
		return err
	}
	site, err := s.sites.GetByID(ctx, sc.AggregatorID, siteID)
	if err != nil {
		return fmt.Errorf("fetching site: %w", err)
	}
	if site == nil {
		return apierrors.ErrNotFound
	}

	deletedTime := s.now()
	deleted, err := s.sites.DeleteCascade(ctx, sc.AggregatorID, siteID, deletedTime)
	if err != nil {
		return fmt.Errorf("deleting site: %w", err)
	}
	if !deleted {
		return apierrors.ErrNotFound
	}

	s.deriver.Invalidate(site.LFDI)
	// The cascade touches every dependent resource class at the same
	// deleted_time; fan the whole set out.
	s.publisher.Publish(ctx, deletedTime,
		models.SubscriptionResourceSite,
		models.SubscriptionResourceDynamicOperatingEnvelope,
		models.SubscriptionResourceReading,
		models.SubscriptionResourceTariffGeneratedRate,
		models.SubscriptionResourceDefaultSiteControl,
	)
	s.log.Info("site deregistered", "site_id", siteID, "aggregator_id", sc.AggregatorID)
	return nil
}

func (s *registrationService) CreateAdmin(ctx context.Context, req *models.CreateSiteRequest) (*models.Site, error) {
	if err := req.Validate(); err != nil {
		return nil, apierrors.NewValidationError("site", err.Error())
	}
	normalized, err := lfdi.Normalize(req.LFDI)
	if err != nil {
		return nil, apierrors.NewValidationError("lfdi", err.Error())
	}
	if req.NMI != nil {
		if err := s.nmi.Validate(*req.NMI); err != nil {
			return nil, apierrors.NewValidationError("nmi", err.Error())
		}
	}

	existing, err := s.sites.GetByLFDI(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("looking up site by lfdi: %w", err)
	}
	if existing != nil && existing.AggregatorID != req.AggregatorID {
		return nil, apierrors.NewConflictError("lfdi is registered to another party")
	}

	pin, err := newRegistrationPIN()
	if err != nil {
		return nil, fmt.Errorf("generating registration pin: %w", err)
	}

	changedTime := s.now()
	site := &models.Site{
		AggregatorID:    req.AggregatorID,
		NMI:             req.NMI,
		TimezoneID:      req.TimezoneID,
		ChangedTime:     changedTime,
		LFDI:            normalized,
		SFDI:            req.SFDI,
		DeviceCategory:  req.DeviceCategory,
		RegistrationPIN: pin,
	}
	if existing != nil {
		site.ID = existing.ID
		site.RegistrationPIN = existing.RegistrationPIN
	}
	created, err := s.sites.Upsert(ctx, site)
	if err != nil {
		return nil, fmt.Errorf("upserting site: %w", err)
	}
	if created {
		s.deriver.Invalidate(normalized)
	}
	s.publisher.Publish(ctx, changedTime, models.SubscriptionResourceSite)
	s.log.Info("site provisioned", "site_id", site.ID, "aggregator_id", site.AggregatorID)
	return site, nil
}

func (s *registrationService) SetConnectionPoint(ctx context.Context, sc *scope.Scope, siteID int64, connectionPointID string) error {
	if err := sc.RequireSite(siteID); err != nil {
		return err
	}
	if err := s.nmi.Validate(connectionPointID); err != nil {
		return apierrors.NewValidationError("connectionPointId", err.Error())
	}
	site, err := s.sites.GetByID(ctx, sc.AggregatorID, siteID)
	if err != nil {
		return fmt.Errorf("fetching site: %w", err)
	}
	if site == nil {
		return apierrors.ErrNotFound
	}

	changedTime := s.now()
	site.NMI = &connectionPointID
	site.ChangedTime = changedTime
	if _, err := s.sites.Upsert(ctx, site); err != nil {
		return fmt.Errorf("updating site connection point: %w", err)
	}
	s.publisher.Publish(ctx, changedTime, models.SubscriptionResourceSite)
	return nil
}

// newRegistrationPIN draws a uniform PIN in [0, MaxRegistrationPIN).
func newRegistrationPIN() (int32, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(models.MaxRegistrationPIN))
	if err != nil {
		return 0, err
	}
	return int32(n.Int64()), nil
}
