package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gridmesh/csip-core/internal/models"
	"github.com/gridmesh/csip-core/internal/mrid"
	apierrors "github.com/gridmesh/csip-core/internal/pkg/errors"
	"github.com/gridmesh/csip-core/internal/repository"
	"github.com/gridmesh/csip-core/internal/scope"
	"github.com/gridmesh/csip-core/internal/sep2"
)

// ResponseInput carries the decoded fields of a sep2 Response POST. The
// created time is never taken from the client; the database assigns it.
type ResponseInput struct {
	// SubjectMRID names the acknowledged event.
	SubjectMRID  string
	ResponseType *int32
}

// StoredResponse is the service-level view of a persisted acknowledgement,
// either kind.
type StoredResponse struct {
	ID           int64
	SiteID       int64
	SubjectMRID  string
	ResponseType *int32
	CreatedTime  time.Time
}

// ResponseService persists client acknowledgements of controls and prices.
// Responses reference event snapshots and are never archived.
type ResponseService interface {
	// Create validates and stores one acknowledgement under the slugged
	// response list.
	Create(ctx context.Context, sc *scope.Scope, siteID int64, slug string, in *ResponseInput) (*StoredResponse, error)
	// Get retrieves one acknowledgement by id.
	Get(ctx context.Context, sc *scope.Scope, siteID int64, slug string, responseID int64) (*StoredResponse, error)
	// List pages a site's acknowledgements for one slug.
	List(ctx context.Context, sc *scope.Scope, siteID int64, slug string, limit, offset int) ([]*StoredResponse, int, error)
}

type responseService struct {
	responses repository.ResponseRepository
	does      repository.DoeRepository
	tariffs   repository.TariffRepository
	codec     *mrid.Codec
	log       *slog.Logger
}

// NewResponseService creates a new response service.
func NewResponseService(
	responses repository.ResponseRepository,
	does repository.DoeRepository,
	tariffs repository.TariffRepository,
	codec *mrid.Codec,
	log *slog.Logger,
) ResponseService {
	return &responseService{
		responses: responses,
		does:      does,
		tariffs:   tariffs,
		codec:     codec,
		log:       log,
	}
}

func (s *responseService) Create(ctx context.Context, sc *scope.Scope, siteID int64, slug string, in *ResponseInput) (*StoredResponse, error) {
	if err := sc.RequireSite(siteID); err != nil {
		return nil, err
	}

	switch slug {
	case sep2.ResponseSlugDoe:
		doeID, err := s.codec.DecodeDynamicOperatingEnvelope(in.SubjectMRID)
		if err != nil {
			return nil, apierrors.NewValidationError("subject", err.Error())
		}
		// The event must exist, live or archived, and belong to the site.
		doe, err := s.does.FetchWithArchiveByID(ctx, siteID, doeID)
		if err != nil {
			return nil, fmt.Errorf("resolving envelope: %w", err)
		}
		if doe == nil {
			return nil, apierrors.NewValidationError("subject", "subject does not name an envelope for this site")
		}
		row := &models.DynamicOperatingEnvelopeResponse{
			DoeIDSnapshot: doeID,
			SiteID:        siteID,
			ResponseType:  in.ResponseType,
		}
		if err := s.responses.CreateDoeResponse(ctx, row); err != nil {
			return nil, fmt.Errorf("storing envelope response: %w", err)
		}
		return &StoredResponse{
			ID: row.ID, SiteID: siteID, SubjectMRID: in.SubjectMRID,
			ResponseType: in.ResponseType, CreatedTime: row.CreatedTime,
		}, nil

	case sep2.ResponseSlugPrice:
		rateID, prt, err := s.codec.DecodeTimeTariffInterval(in.SubjectMRID)
		if err != nil {
			return nil, apierrors.NewValidationError("subject", err.Error())
		}
		rate, err := s.tariffs.FetchRateWithArchiveByID(ctx, siteID, rateID)
		if err != nil {
			return nil, fmt.Errorf("resolving rate: %w", err)
		}
		if rate == nil {
			return nil, apierrors.NewValidationError("subject", "subject does not name a rate for this site")
		}
		row := &models.TariffGeneratedRateResponse{
			RateIDSnapshot:     rateID,
			SiteID:             siteID,
			PricingReadingType: int32(prt),
			ResponseType:       in.ResponseType,
		}
		if err := s.responses.CreateRateResponse(ctx, row); err != nil {
			return nil, fmt.Errorf("storing rate response: %w", err)
		}
		return &StoredResponse{
			ID: row.ID, SiteID: siteID, SubjectMRID: in.SubjectMRID,
			ResponseType: in.ResponseType, CreatedTime: row.CreatedTime,
		}, nil

	default:
		return nil, apierrors.ErrNotFound
	}
}

func (s *responseService) Get(ctx context.Context, sc *scope.Scope, siteID int64, slug string, responseID int64) (*StoredResponse, error) {
	if err := sc.RequireSite(siteID); err != nil {
		return nil, err
	}

	switch slug {
	case sep2.ResponseSlugDoe:
		row, err := s.responses.GetDoeResponse(ctx, siteID, responseID)
		if err != nil {
			return nil, fmt.Errorf("fetching envelope response: %w", err)
		}
		if row == nil {
			return nil, apierrors.ErrNotFound
		}
		return &StoredResponse{
			ID:           row.ID,
			SiteID:       row.SiteID,
			SubjectMRID:  s.codec.EncodeDynamicOperatingEnvelope(row.DoeIDSnapshot),
			ResponseType: row.ResponseType,
			CreatedTime:  row.CreatedTime,
		}, nil

	case sep2.ResponseSlugPrice:
		row, err := s.responses.GetRateResponse(ctx, siteID, responseID)
		if err != nil {
			return nil, fmt.Errorf("fetching rate response: %w", err)
		}
		if row == nil {
			return nil, apierrors.ErrNotFound
		}
		return &StoredResponse{
			ID:           row.ID,
			SiteID:       row.SiteID,
			SubjectMRID:  s.codec.EncodeTimeTariffInterval(row.RateIDSnapshot, mrid.PricingReadingType(row.PricingReadingType)),
			ResponseType: row.ResponseType,
			CreatedTime:  row.CreatedTime,
		}, nil

	default:
		return nil, apierrors.ErrNotFound
	}
}

func (s *responseService) List(ctx context.Context, sc *scope.Scope, siteID int64, slug string, limit, offset int) ([]*StoredResponse, int, error) {
	if err := sc.RequireSite(siteID); err != nil {
		return nil, 0, err
	}

	switch slug {
	case sep2.ResponseSlugDoe:
		total, err := s.responses.CountDoeResponses(ctx, siteID)
		if err != nil {
			return nil, 0, fmt.Errorf("counting envelope responses: %w", err)
		}
		rows, err := s.responses.ListDoeResponses(ctx, siteID, limit, offset)
		if err != nil {
			return nil, 0, fmt.Errorf("listing envelope responses: %w", err)
		}
		out := make([]*StoredResponse, 0, len(rows))
		for _, r := range rows {
			out = append(out, &StoredResponse{
				ID:           r.ID,
				SiteID:       r.SiteID,
				SubjectMRID:  s.codec.EncodeDynamicOperatingEnvelope(r.DoeIDSnapshot),
				ResponseType: r.ResponseType,
				CreatedTime:  r.CreatedTime,
			})
		}
		return out, total, nil

	case sep2.ResponseSlugPrice:
		total, err := s.responses.CountRateResponses(ctx, siteID)
		if err != nil {
			return nil, 0, fmt.Errorf("counting rate responses: %w", err)
		}
		rows, err := s.responses.ListRateResponses(ctx, siteID, limit, offset)
		if err != nil {
			return nil, 0, fmt.Errorf("listing rate responses: %w", err)
		}
		out := make([]*StoredResponse, 0, len(rows))
		for _, r := range rows {
			out = append(out, &StoredResponse{
				ID:           r.ID,
				SiteID:       r.SiteID,
				SubjectMRID:  s.codec.EncodeTimeTariffInterval(r.RateIDSnapshot, mrid.PricingReadingType(r.PricingReadingType)),
				ResponseType: r.ResponseType,
				CreatedTime:  r.CreatedTime,
			})
		}
		return out, total, nil

	default:
		return nil, 0, apierrors.ErrNotFound
	}
}
