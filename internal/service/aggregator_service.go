package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gridmesh/csip-core/internal/lfdi"
	"github.com/gridmesh/csip-core/internal/models"
	apierrors "github.com/gridmesh/csip-core/internal/pkg/errors"
	"github.com/gridmesh/csip-core/internal/repository"
	"github.com/gridmesh/csip-core/internal/scope"
)

// AggregatorService manages tenants and their client certificates.
type AggregatorService interface {
	Create(ctx context.Context, req *models.CreateAggregatorRequest) (*models.Aggregator, error)
	Get(ctx context.Context, id int64) (*models.Aggregator, error)
	List(ctx context.Context) ([]*models.Aggregator, error)
	AddDomain(ctx context.Context, aggregatorID int64, domain string) error
	ListDomains(ctx context.Context, aggregatorID int64) ([]string, error)
	// AssignCertificate registers certificate material (PEM or SHA-256
	// fingerprint) and binds it to the aggregator.
	AssignCertificate(ctx context.Context, aggregatorID int64, req *models.AssignCertificateRequest) (*models.Certificate, error)
}

type aggregatorService struct {
	aggregators repository.AggregatorRepository
	deriver     *scope.Deriver
	log         *slog.Logger
}

// NewAggregatorService creates a new aggregator admin service.
func NewAggregatorService(aggregators repository.AggregatorRepository, deriver *scope.Deriver, log *slog.Logger) AggregatorService {
	return &aggregatorService{aggregators: aggregators, deriver: deriver, log: log}
}

func (s *aggregatorService) Create(ctx context.Context, req *models.CreateAggregatorRequest) (*models.Aggregator, error) {
	if err := req.Validate(); err != nil {
		return nil, apierrors.NewValidationError("name", err.Error())
	}
	agg := &models.Aggregator{Name: req.Name}
	if err := s.aggregators.Create(ctx, agg); err != nil {
		return nil, fmt.Errorf("creating aggregator: %w", err)
	}
	for _, domain := range req.Domains {
		if err := s.aggregators.AddDomain(ctx, agg.ID, domain); err != nil {
			return nil, fmt.Errorf("adding aggregator domain: %w", err)
		}
	}
	s.log.Info("aggregator created", "aggregator_id", agg.ID, "name", agg.Name)
	return agg, nil
}

func (s *aggregatorService) Get(ctx context.Context, id int64) (*models.Aggregator, error) {
	agg, err := s.aggregators.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetching aggregator: %w", err)
	}
	if agg == nil {
		return nil, apierrors.NewNotFoundError("aggregator")
	}
	return agg, nil
}

func (s *aggregatorService) List(ctx context.Context) ([]*models.Aggregator, error) {
	return s.aggregators.List(ctx)
}

func (s *aggregatorService) AddDomain(ctx context.Context, aggregatorID int64, domain string) error {
	if _, err := s.Get(ctx, aggregatorID); err != nil {
		return err
	}
	if err := s.aggregators.AddDomain(ctx, aggregatorID, domain); err != nil {
		return fmt.Errorf("adding aggregator domain: %w", err)
	}
	return nil
}

func (s *aggregatorService) ListDomains(ctx context.Context, aggregatorID int64) ([]string, error) {
	return s.aggregators.ListDomains(ctx, aggregatorID)
}

func (s *aggregatorService) AssignCertificate(ctx context.Context, aggregatorID int64, req *models.AssignCertificateRequest) (*models.Certificate, error) {
	if _, err := s.Get(ctx, aggregatorID); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, apierrors.NewValidationError("certificate", err.Error())
	}

	var (
		certLFDI string
		expiry   time.Time
		err      error
	)
	if req.Certificate != "" {
		certLFDI, err = lfdi.FromPEM(req.Certificate)
		if err == nil {
			expiry, err = lfdi.ExpiryFromPEM(req.Certificate)
		}
	} else {
		certLFDI, err = lfdi.Normalize(req.LFDI)
		expiry = *req.Expiry
	}
	if err != nil {
		return nil, apierrors.NewValidationError("certificate", err.Error())
	}
	cert, err := s.aggregators.UpsertCertificate(ctx, certLFDI, expiry)
	if err != nil {
		return nil, fmt.Errorf("storing certificate: %w", err)
	}
	if err := s.aggregators.AssignCertificate(ctx, cert.ID, aggregatorID); err != nil {
		return nil, fmt.Errorf("assigning certificate: %w", err)
	}

	// The cert may have been cached as unregistered or device-scoped.
	s.deriver.Invalidate(certLFDI)
	s.log.Info("certificate assigned",
		"aggregator_id", aggregatorID, "certificate_id", cert.ID)
	return cert, nil
}
