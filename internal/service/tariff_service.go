package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gridmesh/csip-core/internal/models"
	"github.com/gridmesh/csip-core/internal/notify"
	apierrors "github.com/gridmesh/csip-core/internal/pkg/errors"
	"github.com/gridmesh/csip-core/internal/repository"
	"github.com/gridmesh/csip-core/internal/scope"
)

// UpsertRateRequest is one rate in an admin bulk-insert payload.
type UpsertRateRequest struct {
	TariffID         int64           `json:"tariff_id" validate:"required"`
	SiteID           int64           `json:"site_id" validate:"required"`
	CalculationLogID *int64          `json:"calculation_log_id,omitempty"`
	StartTime        time.Time       `json:"start_time" validate:"required"`
	DurationSeconds  int32           `json:"duration_seconds" validate:"required,gt=0"`
	ImportActive     decimal.Decimal `json:"import_active_price"`
	ExportActive     decimal.Decimal `json:"export_active_price"`
	ImportReactive   decimal.Decimal `json:"import_reactive_price"`
	ExportReactive   decimal.Decimal `json:"export_reactive_price"`
}

// TariffService manages tariff programs and the calculated per-site rates
// published under them.
type TariffService interface {
	CreateTariff(ctx context.Context, t *models.Tariff) error
	GetTariff(ctx context.Context, id int64) (*models.Tariff, error)
	ListTariffs(ctx context.Context, changedAfter time.Time, limit, offset int) ([]*models.Tariff, int, error)

	// UpsertRates bulk-inserts calculated rates and fans the change out.
	UpsertRates(ctx context.Context, reqs []*UpsertRateRequest) (int, error)
	// RateDays pages the distinct local days a site has rates for.
	RateDays(ctx context.Context, sc *scope.Scope, tariffID, siteID int64, tz *time.Location, changedAfter time.Time, limit, offset int) ([]time.Time, int, error)
	// RatesForDay pages one local day's rates.
	RatesForDay(ctx context.Context, sc *scope.Scope, tariffID, siteID int64, day time.Time, tz *time.Location, changedAfter time.Time, limit, offset int) ([]*models.TariffGeneratedRate, int, error)
	// GetRate fetches one rate, live or archived.
	GetRate(ctx context.Context, sc *scope.Scope, siteID, rateID int64) (*models.TariffGeneratedRate, error)

	ArchiveCountForPeriod(ctx context.Context, period repository.ArchivePeriod) (int, error)
	ArchiveForPeriod(ctx context.Context, period repository.ArchivePeriod, limit, offset int) ([]*models.TariffGeneratedRateArchive, error)
}

type tariffService struct {
	tariffs   repository.TariffRepository
	publisher *notify.Publisher
	log       *slog.Logger
	now       func() time.Time
}

// NewTariffService creates a new tariff service.
func NewTariffService(tariffs repository.TariffRepository, publisher *notify.Publisher, log *slog.Logger) TariffService {
	return &tariffService{tariffs: tariffs, publisher: publisher, log: log, now: time.Now}
}

func (s *tariffService) CreateTariff(ctx context.Context, t *models.Tariff) error {
	if t.Name == "" {
		return apierrors.NewValidationError("name", "name is required")
	}
	t.ChangedTime = s.now()
	if err := s.tariffs.CreateTariff(ctx, t); err != nil {
		return fmt.Errorf("creating tariff: %w", err)
	}
	return nil
}

func (s *tariffService) GetTariff(ctx context.Context, id int64) (*models.Tariff, error) {
	t, err := s.tariffs.GetTariff(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetching tariff: %w", err)
	}
	if t == nil {
		return nil, apierrors.NewNotFoundError("tariff")
	}
	return t, nil
}

func (s *tariffService) ListTariffs(ctx context.Context, changedAfter time.Time, limit, offset int) ([]*models.Tariff, int, error) {
	total, err := s.tariffs.CountTariffs(ctx, changedAfter)
	if err != nil {
		return nil, 0, fmt.Errorf("counting tariffs: %w", err)
	}
	tariffs, err := s.tariffs.ListTariffs(ctx, changedAfter, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing tariffs: %w", err)
	}
	return tariffs, total, nil
}

func (s *tariffService) UpsertRates(ctx context.Context, reqs []*UpsertRateRequest) (int, error) {
	if len(reqs) == 0 {
		return 0, nil
	}
	changedTime := s.now()
	rates := make([]*models.TariffGeneratedRate, 0, len(reqs))
	for i, req := range reqs {
		if err := validate.Struct(req); err != nil {
			return 0, apierrors.NewValidationError(fmt.Sprintf("[%d]", i), err.Error())
		}
		rates = append(rates, &models.TariffGeneratedRate{
			TariffID:            req.TariffID,
			SiteID:              req.SiteID,
			CalculationLogID:    req.CalculationLogID,
			ChangedTime:         changedTime,
			StartTime:           req.StartTime,
			DurationSeconds:     req.DurationSeconds,
			ImportActivePrice:   req.ImportActive,
			ExportActivePrice:   req.ExportActive,
			ImportReactivePrice: req.ImportReactive,
			ExportReactivePrice: req.ExportReactive,
		})
	}

	if err := s.tariffs.UpsertManyRates(ctx, rates); err != nil {
		return 0, fmt.Errorf("upserting rates: %w", err)
	}
	s.publisher.Publish(ctx, changedTime, models.SubscriptionResourceTariffGeneratedRate)
	return len(rates), nil
}

func (s *tariffService) RateDays(ctx context.Context, sc *scope.Scope, tariffID, siteID int64, tz *time.Location, changedAfter time.Time, limit, offset int) ([]time.Time, int, error) {
	if err := sc.RequireSite(siteID); err != nil {
		return nil, 0, err
	}
	total, err := s.tariffs.CountRateDays(ctx, tariffID, siteID, tz, changedAfter)
	if err != nil {
		return nil, 0, fmt.Errorf("counting rate days: %w", err)
	}
	days, err := s.tariffs.ListRateDays(ctx, tariffID, siteID, tz, changedAfter, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing rate days: %w", err)
	}
	return days, total, nil
}

func (s *tariffService) RatesForDay(ctx context.Context, sc *scope.Scope, tariffID, siteID int64, day time.Time, tz *time.Location, changedAfter time.Time, limit, offset int) ([]*models.TariffGeneratedRate, int, error) {
	if err := sc.RequireSite(siteID); err != nil {
		return nil, 0, err
	}
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, tz)
	dayEnd := dayStart.AddDate(0, 0, 1)
	total, err := s.tariffs.CountRatesForDay(ctx, tariffID, siteID, dayStart, dayEnd, changedAfter)
	if err != nil {
		return nil, 0, fmt.Errorf("counting rates: %w", err)
	}
	rates, err := s.tariffs.SelectRatesForDay(ctx, tariffID, siteID, dayStart, dayEnd, changedAfter, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("selecting rates: %w", err)
	}
	return rates, total, nil
}

func (s *tariffService) GetRate(ctx context.Context, sc *scope.Scope, siteID, rateID int64) (*models.TariffGeneratedRate, error) {
	if err := sc.RequireSite(siteID); err != nil {
		return nil, err
	}
	rate, err := s.tariffs.FetchRateWithArchiveByID(ctx, siteID, rateID)
	if err != nil {
		return nil, fmt.Errorf("fetching rate: %w", err)
	}
	if rate == nil {
		return nil, apierrors.ErrNotFound
	}
	return rate, nil
}

func (s *tariffService) ArchiveCountForPeriod(ctx context.Context, period repository.ArchivePeriod) (int, error) {
	return s.tariffs.CountRateArchiveForPeriod(ctx, period)
}

func (s *tariffService) ArchiveForPeriod(ctx context.Context, period repository.ArchivePeriod, limit, offset int) ([]*models.TariffGeneratedRateArchive, error) {
	return s.tariffs.SelectRateArchiveForPeriod(ctx, period, limit, offset)
}
