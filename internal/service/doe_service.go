package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gridmesh/csip-core/internal/config"
	"github.com/gridmesh/csip-core/internal/models"
	"github.com/gridmesh/csip-core/internal/notify"
	apierrors "github.com/gridmesh/csip-core/internal/pkg/errors"
	"github.com/gridmesh/csip-core/internal/repository"
	"github.com/gridmesh/csip-core/internal/scope"
)

// MergedDefaultControl is the fallback control served to a device: the
// per-site override merged field by field over the group defaults, with
// deployment-wide configuration as the last resort.
type MergedDefaultControl struct {
	SiteID      int64
	ChangedTime time.Time

	ImportLimitWatts     *decimal.Decimal
	ExportLimitWatts     *decimal.Decimal
	GenerationLimitWatts *decimal.Decimal
	LoadLimitWatts       *decimal.Decimal
	Energize             *bool
	RampRatePercent      *int32
}

// Empty reports whether no field is populated at any layer.
func (m *MergedDefaultControl) Empty() bool {
	return m.ImportLimitWatts == nil && m.ExportLimitWatts == nil &&
		m.GenerationLimitWatts == nil && m.LoadLimitWatts == nil &&
		m.Energize == nil && m.RampRatePercent == nil
}

// DoeService manages control groups, dynamic operating envelopes and the
// per-site fallback controls.
type DoeService interface {
	CreateControlGroup(ctx context.Context, g *models.SiteControlGroup) error
	GetControlGroup(ctx context.Context, id int64) (*models.SiteControlGroup, error)
	ListControlGroups(ctx context.Context, fsaID int32) ([]*models.SiteControlGroup, error)
	ListAllControlGroups(ctx context.Context) ([]*models.SiteControlGroup, error)
	UpdateControlGroupDefaults(ctx context.Context, g *models.SiteControlGroup) error

	// UpsertEnvelopes bulk-inserts envelopes, superseding overlapping
	// envelopes of other groups, and fans the change out.
	UpsertEnvelopes(ctx context.Context, reqs []*models.UpsertDoeRequest) (int, error)
	// ActiveControls pages the device-facing control list: envelopes in
	// force now plus those deleted after the watermark.
	ActiveControls(ctx context.Context, sc *scope.Scope, groupID, siteID int64, deletedAfter time.Time, limit, offset int) ([]*models.DoeListEntry, int, error)
	// GetControl fetches one envelope, falling back to its latest archived
	// state so responses can still resolve deleted events.
	GetControl(ctx context.Context, sc *scope.Scope, siteID, doeID int64) (*models.DynamicOperatingEnvelope, error)
	// DefaultControl resolves the merged fallback control for a site.
	DefaultControl(ctx context.Context, sc *scope.Scope, siteID int64) (*MergedDefaultControl, error)
	// UpsertDefaultSiteControls bulk-upserts per-site fallbacks.
	UpsertDefaultSiteControls(ctx context.Context, controls []*models.DefaultSiteControl) error

	CreateCalculationLog(ctx context.Context, l *models.CalculationLog) error
	GetCalculationLog(ctx context.Context, id int64) (*models.CalculationLog, error)

	ArchiveCountForPeriod(ctx context.Context, period repository.ArchivePeriod) (int, error)
	ArchiveForPeriod(ctx context.Context, period repository.ArchivePeriod, limit, offset int) ([]*models.DynamicOperatingEnvelopeArchive, error)
}

type doeService struct {
	does      repository.DoeRepository
	publisher *notify.Publisher
	cfg       config.Sep2Config
	log       *slog.Logger
	now       func() time.Time
}

// NewDoeService creates a new envelope service.
func NewDoeService(does repository.DoeRepository, publisher *notify.Publisher, cfg config.Sep2Config, log *slog.Logger) DoeService {
	return &doeService{does: does, publisher: publisher, cfg: cfg, log: log, now: time.Now}
}

func (s *doeService) CreateControlGroup(ctx context.Context, g *models.SiteControlGroup) error {
	if g.Description == "" {
		return apierrors.NewValidationError("description", "description is required")
	}
	g.ChangedTime = s.now()
	if err := s.does.CreateControlGroup(ctx, g); err != nil {
		return fmt.Errorf("creating control group: %w", err)
	}
	return nil
}

func (s *doeService) GetControlGroup(ctx context.Context, id int64) (*models.SiteControlGroup, error) {
	g, err := s.does.GetControlGroup(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetching control group: %w", err)
	}
	if g == nil {
		return nil, apierrors.NewNotFoundError("control group")
	}
	return g, nil
}

func (s *doeService) ListControlGroups(ctx context.Context, fsaID int32) ([]*models.SiteControlGroup, error) {
	return s.does.ListControlGroups(ctx, fsaID)
}

func (s *doeService) ListAllControlGroups(ctx context.Context) ([]*models.SiteControlGroup, error) {
	return s.does.ListAllControlGroups(ctx)
}

func (s *doeService) UpdateControlGroupDefaults(ctx context.Context, g *models.SiteControlGroup) error {
	existing, err := s.does.GetControlGroup(ctx, g.ID)
	if err != nil {
		return fmt.Errorf("fetching control group: %w", err)
	}
	if existing == nil {
		return apierrors.NewNotFoundError("control group")
	}
	changedTime := s.now()
	g.ChangedTime = changedTime
	if err := s.does.UpdateControlGroupDefaults(ctx, g); err != nil {
		return fmt.Errorf("updating control group defaults: %w", err)
	}
	// Group defaults feed every site's merged fallback control.
	s.publisher.Publish(ctx, changedTime, models.SubscriptionResourceDefaultSiteControl)
	return nil
}

func (s *doeService) UpsertEnvelopes(ctx context.Context, reqs []*models.UpsertDoeRequest) (int, error) {
	if len(reqs) == 0 {
		return 0, nil
	}
	changedTime := s.now()
	envelopes := make([]*models.DynamicOperatingEnvelope, 0, len(reqs))
	for i, req := range reqs {
		if err := req.Validate(); err != nil {
			return 0, apierrors.NewValidationError(fmt.Sprintf("[%d]", i), err.Error())
		}
		envelopes = append(envelopes, req.ToEnvelope(changedTime))
	}

	if err := s.does.UpsertMany(ctx, envelopes); err != nil {
		return 0, fmt.Errorf("upserting envelopes: %w", err)
	}
	for _, e := range envelopes {
		superseded, err := s.does.SupersedeOverlapping(ctx, e.SiteID, e.StartTime, e.EndTime, e.SiteControlGroupID, changedTime)
		if err != nil {
			return 0, fmt.Errorf("superseding overlapping envelopes: %w", err)
		}
		if superseded > 0 {
			s.log.Info("superseded overlapping envelopes",
				"site_id", e.SiteID, "count", superseded, "start_time", e.StartTime)
		}
	}

	s.publisher.Publish(ctx, changedTime, models.SubscriptionResourceDynamicOperatingEnvelope)
	return len(envelopes), nil
}

func (s *doeService) ActiveControls(ctx context.Context, sc *scope.Scope, groupID, siteID int64, deletedAfter time.Time, limit, offset int) ([]*models.DoeListEntry, int, error) {
	if err := sc.RequireSite(siteID); err != nil {
		return nil, 0, err
	}
	now := s.now()
	total, err := s.does.CountActiveWithDeleted(ctx, groupID, siteID, now, deletedAfter)
	if err != nil {
		return nil, 0, fmt.Errorf("counting active envelopes: %w", err)
	}
	entries, err := s.does.SelectActiveWithDeleted(ctx, groupID, siteID, now, deletedAfter, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("selecting active envelopes: %w", err)
	}
	return entries, total, nil
}

func (s *doeService) GetControl(ctx context.Context, sc *scope.Scope, siteID, doeID int64) (*models.DynamicOperatingEnvelope, error) {
	if err := sc.RequireSite(siteID); err != nil {
		return nil, err
	}
	doe, err := s.does.FetchWithArchiveByID(ctx, siteID, doeID)
	if err != nil {
		return nil, fmt.Errorf("fetching envelope: %w", err)
	}
	if doe == nil {
		return nil, apierrors.ErrNotFound
	}
	return doe, nil
}

func (s *doeService) DefaultControl(ctx context.Context, sc *scope.Scope, siteID int64) (*MergedDefaultControl, error) {
	if err := sc.RequireSite(siteID); err != nil {
		return nil, err
	}

	merged := &MergedDefaultControl{SiteID: siteID}

	// Deployment-wide floor.
	merged.ImportLimitWatts = decimalFromFloat(s.cfg.DefaultDOEImportActiveWatts)
	merged.ExportLimitWatts = decimalFromFloat(s.cfg.DefaultDOEExportActiveWatts)
	merged.GenerationLimitWatts = decimalFromFloat(s.cfg.DefaultDOEGenerationWatts)
	merged.LoadLimitWatts = decimalFromFloat(s.cfg.DefaultDOELoadWatts)
	merged.RampRatePercent = s.cfg.DefaultDOERampRatePercent

	// Group defaults from the highest-priority group.
	groups, err := s.does.ListAllControlGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing control groups: %w", err)
	}
	var primary *models.SiteControlGroup
	for _, g := range groups {
		if primary == nil || g.Primacy < primary.Primacy {
			primary = g
		}
	}
	if primary != nil {
		overlayDecimal(&merged.ImportLimitWatts, primary.DefaultImportLimitWatts)
		overlayDecimal(&merged.ExportLimitWatts, primary.DefaultExportLimitWatts)
		overlayDecimal(&merged.GenerationLimitWatts, primary.DefaultGenerationLimitWatts)
		overlayDecimal(&merged.LoadLimitWatts, primary.DefaultLoadLimitWatts)
		if primary.DefaultEnergize != nil {
			merged.Energize = primary.DefaultEnergize
		}
		if primary.DefaultRampRatePercentPerSec != nil {
			merged.RampRatePercent = primary.DefaultRampRatePercentPerSec
		}
		merged.ChangedTime = primary.ChangedTime
	}

	// Per-site override wins field by field.
	siteControl, err := s.does.GetDefaultSiteControl(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("fetching site default control: %w", err)
	}
	if siteControl != nil {
		overlayDecimal(&merged.ImportLimitWatts, siteControl.ImportLimitActiveWatts)
		overlayDecimal(&merged.ExportLimitWatts, siteControl.ExportLimitActiveWatts)
		overlayDecimal(&merged.GenerationLimitWatts, siteControl.GenerationLimitActiveWatts)
		overlayDecimal(&merged.LoadLimitWatts, siteControl.LoadLimitActiveWatts)
		if siteControl.RampRatePercentPerSecond != nil {
			merged.RampRatePercent = siteControl.RampRatePercentPerSecond
		}
		if siteControl.ChangedTime.After(merged.ChangedTime) {
			merged.ChangedTime = siteControl.ChangedTime
		}
	}

	if merged.Empty() {
		return nil, apierrors.ErrNotFound
	}
	return merged, nil
}

func (s *doeService) UpsertDefaultSiteControls(ctx context.Context, controls []*models.DefaultSiteControl) error {
	if len(controls) == 0 {
		return nil
	}
	changedTime := s.now()
	for _, c := range controls {
		if c.SiteID == 0 {
			return apierrors.NewValidationError("site_id", "site_id is required")
		}
		c.ChangedTime = changedTime
		if err := s.does.UpsertDefaultSiteControl(ctx, c); err != nil {
			return fmt.Errorf("upserting site default control: %w", err)
		}
	}
	s.publisher.Publish(ctx, changedTime, models.SubscriptionResourceDefaultSiteControl)
	return nil
}

func (s *doeService) CreateCalculationLog(ctx context.Context, l *models.CalculationLog) error {
	return s.does.CreateCalculationLog(ctx, l)
}

func (s *doeService) GetCalculationLog(ctx context.Context, id int64) (*models.CalculationLog, error) {
	l, err := s.does.GetCalculationLog(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetching calculation log: %w", err)
	}
	if l == nil {
		return nil, apierrors.NewNotFoundError("calculation log")
	}
	return l, nil
}

func (s *doeService) ArchiveCountForPeriod(ctx context.Context, period repository.ArchivePeriod) (int, error) {
	return s.does.CountArchiveForPeriod(ctx, period)
}

func (s *doeService) ArchiveForPeriod(ctx context.Context, period repository.ArchivePeriod, limit, offset int) ([]*models.DynamicOperatingEnvelopeArchive, error) {
	return s.does.SelectArchiveForPeriod(ctx, period, limit, offset)
}

func decimalFromFloat(f *float64) *decimal.Decimal {
	if f == nil {
		return nil
	}
	d := decimal.NewFromFloat(*f)
	return &d
}

func overlayDecimal(dst **decimal.Decimal, src *decimal.Decimal) {
	if src != nil {
		*dst = src
	}
}
