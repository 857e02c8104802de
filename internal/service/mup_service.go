package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gridmesh/csip-core/internal/lfdi"
	"github.com/gridmesh/csip-core/internal/models"
	"github.com/gridmesh/csip-core/internal/notify"
	apierrors "github.com/gridmesh/csip-core/internal/pkg/errors"
	"github.com/gridmesh/csip-core/internal/repository"
	"github.com/gridmesh/csip-core/internal/scope"
)

// IngestReading is one reading extracted from a MirrorMeterReading POST,
// addressed to a reading type by MRID.
type IngestReading struct {
	ReadingTypeMRID string
	LocalID         *string
	QualityFlags    string
	TimePeriodStart time.Time
	TimePeriodSecs  int32
	Value           int64
}

// MupService manages mirror usage points and the telemetry posted through
// them. Each mirror usage point is one reading stream for one site.
type MupService interface {
	// UpsertReadingType registers or refreshes a reading stream for a
	// site. DeviceLFDI must match the caller's certificate for device
	// certs. Returns the stored reading type and whether it was created.
	UpsertReadingType(ctx context.Context, sc *scope.Scope, deviceLFDI string, t *models.SiteReadingType) (*models.SiteReadingType, bool, error)
	// Get retrieves one reading stream visible to the caller.
	Get(ctx context.Context, sc *scope.Scope, id int64) (*models.SiteReadingType, error)
	// ListForSite retrieves a site's reading streams.
	ListForSite(ctx context.Context, sc *scope.Scope, siteID int64) ([]*models.SiteReadingType, error)
	// List pages every reading stream visible to the caller. Device certs
	// see only their own site's streams.
	List(ctx context.Context, sc *scope.Scope, limit, offset int) ([]*models.SiteReadingType, int, error)
	// Delete removes a reading stream and its readings.
	Delete(ctx context.Context, sc *scope.Scope, id int64) error
	// IngestReadings stores a batch of readings against the stream, then
	// against sibling streams resolved by MRID for mixed batches.
	IngestReadings(ctx context.Context, sc *scope.Scope, mupID int64, batch []IngestReading) error
	// ListReadings pages a stream's readings.
	ListReadings(ctx context.Context, sc *scope.Scope, mupID int64, changedAfter time.Time, limit, offset int) ([]*models.SiteReading, int, error)
}

type mupService struct {
	readings  repository.ReadingRepository
	sites     repository.SiteRepository
	publisher *notify.Publisher
	log       *slog.Logger
	now       func() time.Time
}

// NewMupService creates a new mirror usage point service.
func NewMupService(readings repository.ReadingRepository, sites repository.SiteRepository, publisher *notify.Publisher, log *slog.Logger) MupService {
	return &mupService{readings: readings, sites: sites, publisher: publisher, log: log, now: time.Now}
}

func (s *mupService) UpsertReadingType(ctx context.Context, sc *scope.Scope, deviceLFDI string, t *models.SiteReadingType) (*models.SiteReadingType, bool, error) {
	if err := sc.RequireRegistered(); err != nil {
		return nil, false, err
	}
	normalized, err := lfdi.Normalize(deviceLFDI)
	if err != nil {
		return nil, false, apierrors.NewValidationError("deviceLFDI", err.Error())
	}
	if sc.Source == scope.SourceDeviceCert && normalized != sc.LFDI {
		return nil, false, apierrors.ErrForbidden.WithMessage("device certificate may only mirror its own LFDI")
	}

	site, err := s.sites.GetByLFDI(ctx, normalized)
	if err != nil {
		return nil, false, fmt.Errorf("resolving device lfdi: %w", err)
	}
	if site == nil || site.AggregatorID != sc.AggregatorID {
		return nil, false, apierrors.ErrNotFound
	}

	t.AggregatorID = sc.AggregatorID
	t.SiteID = site.ID
	t.ChangedTime = s.now()
	created := t.ID == 0
	if err := s.readings.UpsertReadingType(ctx, t); err != nil {
		return nil, false, fmt.Errorf("upserting reading type: %w", err)
	}
	return t, created, nil
}

func (s *mupService) Get(ctx context.Context, sc *scope.Scope, id int64) (*models.SiteReadingType, error) {
	t, err := s.readings.GetReadingType(ctx, sc.AggregatorID, id)
	if err != nil {
		return nil, fmt.Errorf("fetching reading type: %w", err)
	}
	if t == nil {
		return nil, apierrors.ErrNotFound
	}
	if err := sc.RequireSite(t.SiteID); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *mupService) ListForSite(ctx context.Context, sc *scope.Scope, siteID int64) ([]*models.SiteReadingType, error) {
	if err := sc.RequireSite(siteID); err != nil {
		return nil, err
	}
	return s.readings.ListReadingTypesForSite(ctx, sc.AggregatorID, siteID)
}

func (s *mupService) List(ctx context.Context, sc *scope.Scope, limit, offset int) ([]*models.SiteReadingType, int, error) {
	if err := sc.RequireRegistered(); err != nil {
		return nil, 0, err
	}

	if sc.Source == scope.SourceDeviceCert {
		if sc.SiteID == nil {
			return nil, 0, nil
		}
		types, err := s.readings.ListReadingTypesForSite(ctx, sc.AggregatorID, *sc.SiteID)
		if err != nil {
			return nil, 0, fmt.Errorf("listing reading types: %w", err)
		}
		total := len(types)
		if offset >= len(types) {
			return nil, total, nil
		}
		types = types[offset:]
		if len(types) > limit {
			types = types[:limit]
		}
		return types, total, nil
	}

	types, err := s.readings.ListReadingTypes(ctx, sc.AggregatorID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing reading types: %w", err)
	}
	total, err := s.readings.CountReadingTypes(ctx, sc.AggregatorID)
	if err != nil {
		return nil, 0, fmt.Errorf("counting reading types: %w", err)
	}
	return types, total, nil
}

func (s *mupService) Delete(ctx context.Context, sc *scope.Scope, id int64) error {
	if _, err := s.Get(ctx, sc, id); err != nil {
		return err
	}
	deletedTime := s.now()
	deleted, err := s.readings.DeleteReadingType(ctx, sc.AggregatorID, id, deletedTime)
	if err != nil {
		return fmt.Errorf("deleting reading type: %w", err)
	}
	if !deleted {
		return apierrors.ErrNotFound
	}
	s.publisher.Publish(ctx, deletedTime, models.SubscriptionResourceReading)
	return nil
}

func (s *mupService) IngestReadings(ctx context.Context, sc *scope.Scope, mupID int64, batch []IngestReading) error {
	anchor, err := s.Get(ctx, sc, mupID)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	changedTime := s.now()
	rows := make([]*models.SiteReading, 0, len(batch))
	for i, in := range batch {
		typeID := anchor.ID
		if in.ReadingTypeMRID != "" && in.ReadingTypeMRID != anchor.MRID {
			// Mixed batches address sibling streams by MRID.
			sibling, err := s.readings.GetReadingTypeByMRID(ctx, sc.AggregatorID, in.ReadingTypeMRID)
			if err != nil {
				return fmt.Errorf("resolving reading type mrid: %w", err)
			}
			if sibling == nil || sibling.SiteID != anchor.SiteID {
				return apierrors.NewValidationError(fmt.Sprintf("[%d].mRID", i), "unknown reading type")
			}
			typeID = sibling.ID
		}
		if in.TimePeriodStart.IsZero() {
			return apierrors.NewValidationError(fmt.Sprintf("[%d].timePeriod", i), "timePeriod start is required")
		}
		rows = append(rows, &models.SiteReading{
			SiteReadingTypeID: typeID,
			ChangedTime:       changedTime,
			LocalID:           in.LocalID,
			QualityFlags:      in.QualityFlags,
			TimePeriodStart:   in.TimePeriodStart,
			TimePeriodSeconds: in.TimePeriodSecs,
			Value:             in.Value,
		})
	}

	if err := s.readings.UpsertManyReadings(ctx, rows); err != nil {
		return fmt.Errorf("upserting readings: %w", err)
	}
	s.publisher.Publish(ctx, changedTime, models.SubscriptionResourceReading)
	return nil
}

func (s *mupService) ListReadings(ctx context.Context, sc *scope.Scope, mupID int64, changedAfter time.Time, limit, offset int) ([]*models.SiteReading, int, error) {
	if _, err := s.Get(ctx, sc, mupID); err != nil {
		return nil, 0, err
	}
	total, err := s.readings.CountReadings(ctx, mupID, changedAfter)
	if err != nil {
		return nil, 0, fmt.Errorf("counting readings: %w", err)
	}
	rows, err := s.readings.ListReadings(ctx, mupID, changedAfter, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing readings: %w", err)
	}
	return rows, total, nil
}
