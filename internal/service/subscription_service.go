package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gridmesh/csip-core/internal/models"
	"github.com/gridmesh/csip-core/internal/notify"
	apierrors "github.com/gridmesh/csip-core/internal/pkg/errors"
	"github.com/gridmesh/csip-core/internal/repository"
	"github.com/gridmesh/csip-core/internal/scope"
)

// SubscriptionService registers and manages notification webhooks.
type SubscriptionService interface {
	// Create validates and stores a subscription posted under a site.
	Create(ctx context.Context, sc *scope.Scope, siteID int64, sub *models.Subscription) (*models.Subscription, error)
	Get(ctx context.Context, sc *scope.Scope, siteID, subID int64) (*models.Subscription, error)
	List(ctx context.Context, sc *scope.Scope, siteID int64, limit, offset int) ([]*models.Subscription, int, error)
	Delete(ctx context.Context, sc *scope.Scope, siteID, subID int64) error
	// ParseSubscribedResource maps a subscribedResource href onto the
	// stored watch fields.
	ParseSubscribedResource(href string) (models.SubscriptionResource, *int64, *int64, error)
}

type subscriptionService struct {
	subscriptions repository.SubscriptionRepository
	aggregators   repository.AggregatorRepository
	publisher     *notify.Publisher
	hrefPrefix    string
	log           *slog.Logger
	now           func() time.Time
}

// NewSubscriptionService creates a new subscription service.
func NewSubscriptionService(
	subscriptions repository.SubscriptionRepository,
	aggregators repository.AggregatorRepository,
	publisher *notify.Publisher,
	hrefPrefix string,
	log *slog.Logger,
) SubscriptionService {
	return &subscriptionService{
		subscriptions: subscriptions,
		aggregators:   aggregators,
		publisher:     publisher,
		hrefPrefix:    hrefPrefix,
		log:           log,
		now:           time.Now,
	}
}

func (s *subscriptionService) Create(ctx context.Context, sc *scope.Scope, siteID int64, sub *models.Subscription) (*models.Subscription, error) {
	if err := sc.RequireSite(siteID); err != nil {
		return nil, err
	}
	if sc.Source != scope.SourceAggregatorCert {
		return nil, apierrors.ErrForbidden.WithMessage("only aggregators may subscribe")
	}

	host, err := sub.NotificationHost()
	if err != nil {
		return nil, apierrors.NewValidationError("notificationURI", err.Error())
	}
	domains, err := s.aggregators.ListDomains(ctx, sc.AggregatorID)
	if err != nil {
		return nil, fmt.Errorf("listing aggregator domains: %w", err)
	}
	if !domainAllowed(host, domains) {
		return nil, apierrors.NewValidationError("notificationURI",
			"notification host is not a registered domain for this aggregator")
	}

	if sub.ScopedSiteID != nil && *sub.ScopedSiteID != siteID {
		return nil, apierrors.NewValidationError("subscribedResource",
			"subscribed resource belongs to a different site")
	}

	sub.AggregatorID = sc.AggregatorID
	sub.ChangedTime = s.now()
	if err := s.subscriptions.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("creating subscription: %w", err)
	}
	s.log.Info("subscription created",
		"subscription_id", sub.ID, "aggregator_id", sub.AggregatorID,
		"resource_type", sub.ResourceType, "notification_host", host)
	return sub, nil
}

func (s *subscriptionService) Get(ctx context.Context, sc *scope.Scope, siteID, subID int64) (*models.Subscription, error) {
	if err := sc.RequireSite(siteID); err != nil {
		return nil, err
	}
	sub, err := s.subscriptions.GetByID(ctx, sc.AggregatorID, subID)
	if err != nil {
		return nil, fmt.Errorf("fetching subscription: %w", err)
	}
	if sub == nil {
		return nil, apierrors.ErrNotFound
	}
	return sub, nil
}

func (s *subscriptionService) List(ctx context.Context, sc *scope.Scope, siteID int64, limit, offset int) ([]*models.Subscription, int, error) {
	if err := sc.RequireSite(siteID); err != nil {
		return nil, 0, err
	}
	total, err := s.subscriptions.Count(ctx, sc.AggregatorID, &siteID)
	if err != nil {
		return nil, 0, fmt.Errorf("counting subscriptions: %w", err)
	}
	subs, err := s.subscriptions.List(ctx, sc.AggregatorID, &siteID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing subscriptions: %w", err)
	}
	return subs, total, nil
}

func (s *subscriptionService) Delete(ctx context.Context, sc *scope.Scope, siteID, subID int64) error {
	if err := sc.RequireSite(siteID); err != nil {
		return err
	}
	deleted, err := s.subscriptions.Delete(ctx, sc.AggregatorID, subID, s.now())
	if err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}
	if !deleted {
		return apierrors.ErrNotFound
	}
	return nil
}

// ParseSubscribedResource recognizes the href shapes a client may watch:
//
//	/edev                          site list
//	/edev/{s}/derp/{g}/derc        envelopes for a site, one group
//	/edev/{s}/derp/{g}/dderc       default control for a site
//	/edev/{s}/tp/{t}               rates for a site, one tariff
//	/mup/{srt}                     readings for one stream
//
// Returns the resource type, the scoped site id (nil for global watches)
// and the parent resource filter id (nil when the shape has none).
func (s *subscriptionService) ParseSubscribedResource(href string) (models.SubscriptionResource, *int64, *int64, error) {
	path := strings.TrimPrefix(href, s.hrefPrefix)
	parts := strings.Split(strings.Trim(path, "/"), "/")

	bad := func() (models.SubscriptionResource, *int64, *int64, error) {
		return 0, nil, nil, apierrors.NewValidationError("subscribedResource",
			"unsupported subscribed resource")
	}
	num := func(raw string) (int64, bool) {
		v, err := strconv.ParseInt(raw, 10, 64)
		return v, err == nil && v > 0
	}

	switch {
	case len(parts) == 1 && parts[0] == "edev":
		return models.SubscriptionResourceSite, nil, nil, nil

	case len(parts) == 2 && parts[0] == "mup":
		srt, ok := num(parts[1])
		if !ok {
			return bad()
		}
		return models.SubscriptionResourceReading, nil, &srt, nil

	case len(parts) == 5 && parts[0] == "edev" && parts[2] == "derp":
		site, okS := num(parts[1])
		group, okG := num(parts[3])
		if !okS || !okG {
			return bad()
		}
		switch parts[4] {
		case "derc":
			return models.SubscriptionResourceDynamicOperatingEnvelope, &site, &group, nil
		case "dderc":
			return models.SubscriptionResourceDefaultSiteControl, &site, nil, nil
		}
		return bad()

	case len(parts) == 4 && parts[0] == "edev" && parts[2] == "tp":
		site, okS := num(parts[1])
		tariff, okT := num(parts[3])
		if !okS || !okT {
			return bad()
		}
		return models.SubscriptionResourceTariffGeneratedRate, &site, &tariff, nil
	}
	return bad()
}

// domainAllowed matches the host against the registered FQDNs, exact and
// case-insensitive.
func domainAllowed(host string, domains []string) bool {
	for _, d := range domains {
		if strings.EqualFold(host, d) {
			return true
		}
	}
	return false
}
