package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gridmesh/csip-core/internal/broker"
	"github.com/gridmesh/csip-core/internal/models"
	"github.com/gridmesh/csip-core/internal/mrid"
	"github.com/gridmesh/csip-core/internal/repository"
	"github.com/gridmesh/csip-core/internal/sep2"
)

// CheckPayload asks the worker to re-read rows committed at ChangedAt and
// fan them out to subscriptions watching ResourceType.
type CheckPayload struct {
	ChangedAt    time.Time                   `json:"changed_at"`
	ResourceType models.SubscriptionResource `json:"resource_type"`
}

// TransmitPayload is one delivery to one subscription endpoint. Attempt is
// 1-based; Body is the fully rendered XML document.
type TransmitPayload struct {
	NotificationID   uuid.UUID `json:"notification_id"`
	SubscriptionID   int64     `json:"subscription_id"`
	SubscriptionHref string    `json:"subscription_href"`
	NotificationURI  string    `json:"notification_uri"`
	Attempt          int32     `json:"attempt"`
	Body             []byte    `json:"body"`
}

// Publisher hands committed change timestamps to the worker fleet. Callers
// MUST invoke Publish only after the writing transaction has committed, or
// the worker may read the database before the rows are visible.
type Publisher struct {
	broker broker.Broker
	log    *slog.Logger
}

// NewPublisher creates a post-commit change publisher. A nil broker turns
// every Publish into a no-op, for deployments with notifications disabled.
func NewPublisher(b broker.Broker, log *slog.Logger) *Publisher {
	return &Publisher{broker: b, log: log}
}

// Publish enqueues one check task per resource type touched at the change
// timestamp. Enqueue failures are logged and swallowed; the write already
// committed and must not be rolled back for a notification hiccup.
func (p *Publisher) Publish(ctx context.Context, changedAt time.Time, resources ...models.SubscriptionResource) {
	if p.broker == nil {
		return
	}
	for _, resource := range resources {
		task, err := broker.NewTask(broker.TaskCheckDBUpsert, 0, CheckPayload{
			ChangedAt:    changedAt,
			ResourceType: resource,
		})
		if err != nil {
			p.log.Error("encoding change check task", "error", err, "resource_type", resource)
			continue
		}
		if err := p.broker.Enqueue(ctx, task); err != nil {
			p.log.Error("enqueueing change check task",
				"error", err, "resource_type", resource, "changed_at", changedAt)
		}
	}
}

// Dispatcher is the worker-side engine: it consumes check tasks, matches
// batches to subscriptions, renders notification bodies and enqueues one
// transmit task per delivery.
type Dispatcher struct {
	changes       repository.NotifyRepository
	subscriptions repository.SubscriptionRepository
	does          repository.DoeRepository
	matcher       *Matcher
	builder       *PayloadBuilder
	hrefs         *sep2.Hrefs
	transmitter   *Transmitter
	broker        broker.Broker
	log           *slog.Logger
	now           func() time.Time
}

// NewDispatcher wires the worker engine.
func NewDispatcher(
	changes repository.NotifyRepository,
	subscriptions repository.SubscriptionRepository,
	does repository.DoeRepository,
	matcher *Matcher,
	builder *PayloadBuilder,
	hrefs *sep2.Hrefs,
	transmitter *Transmitter,
	b broker.Broker,
	log *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		changes:       changes,
		subscriptions: subscriptions,
		does:          does,
		matcher:       matcher,
		builder:       builder,
		hrefs:         hrefs,
		transmitter:   transmitter,
		broker:        b,
		log:           log,
		now:           time.Now,
	}
}

// HandleTask routes one broker task. Unknown task names are dropped with a
// log entry so a queue shared with a newer deployment does not wedge.
func (d *Dispatcher) HandleTask(ctx context.Context, task broker.Task) error {
	switch task.Name {
	case broker.TaskCheckDBUpsert:
		var p CheckPayload
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return fmt.Errorf("decoding check payload: %w", err)
		}
		return d.handleCheck(ctx, p)
	case broker.TaskTransmitNotification:
		var p TransmitPayload
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return fmt.Errorf("decoding transmit payload: %w", err)
		}
		return d.transmitter.Transmit(ctx, p)
	default:
		d.log.Warn("dropping unknown task", "task", task.Name)
		return nil
	}
}

func (d *Dispatcher) handleCheck(ctx context.Context, p CheckPayload) error {
	subs, err := d.subscriptions.ListForResource(ctx, p.ResourceType)
	if err != nil {
		return fmt.Errorf("listing subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	switch p.ResourceType {
	case models.SubscriptionResourceSite:
		return d.checkSites(ctx, p.ChangedAt, subs)
	case models.SubscriptionResourceDynamicOperatingEnvelope:
		return d.checkDoes(ctx, p.ChangedAt, subs)
	case models.SubscriptionResourceReading:
		return d.checkReadings(ctx, p.ChangedAt, subs)
	case models.SubscriptionResourceTariffGeneratedRate:
		return d.checkRates(ctx, p.ChangedAt, subs)
	case models.SubscriptionResourceDefaultSiteControl:
		return d.checkDefaultControls(ctx, p.ChangedAt, subs)
	default:
		d.log.Warn("dropping check for unknown resource type", "resource_type", p.ResourceType)
		return nil
	}
}

func (d *Dispatcher) checkSites(ctx context.Context, at time.Time, subs []*models.Subscription) error {
	rows, err := d.changes.ChangedSites(ctx, at)
	if err != nil {
		return fmt.Errorf("reading changed sites: %w", err)
	}
	for _, batch := range d.matcher.BatchSites(rows) {
		for _, sub := range d.matcher.SubscriptionsFor(subs, batch.AggregatorID, batch.SiteID, 0, false) {
			for _, sites := range chunk(batch.Sites, sub.EntityLimit) {
				n := d.builder.SiteNotification(d.subscriptionHref(sub, batch.SiteID), sites)
				if err := d.enqueueTransmit(ctx, sub, batch.SiteID, n); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (d *Dispatcher) checkDoes(ctx context.Context, at time.Time, subs []*models.Subscription) error {
	rows, err := d.changes.ChangedDoes(ctx, at)
	if err != nil {
		return fmt.Errorf("reading changed envelopes: %w", err)
	}
	now := d.now()
	for _, batch := range d.matcher.BatchDoes(rows) {
		for _, sub := range d.matcher.SubscriptionsFor(subs, batch.AggregatorID, batch.SiteID, 0, false) {
			does := batch.Does
			// A group-filtered subscription only sees envelopes in its group.
			if sub.ResourceID != nil {
				does = filterDoesByGroup(does, *sub.ResourceID)
				if len(does) == 0 {
					continue
				}
			}
			for _, part := range chunk(does, sub.EntityLimit) {
				n := d.builder.DoeNotification(d.subscriptionHref(sub, batch.SiteID), batch.SiteID, part, now)
				if err := d.enqueueTransmit(ctx, sub, batch.SiteID, n); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func filterDoesByGroup(does []*repository.ChangedDoe, groupID int64) []*repository.ChangedDoe {
	var out []*repository.ChangedDoe
	for _, doe := range does {
		if doe.SiteControlGroupID == groupID {
			out = append(out, doe)
		}
	}
	return out
}

func (d *Dispatcher) checkReadings(ctx context.Context, at time.Time, subs []*models.Subscription) error {
	rows, err := d.changes.ChangedReadings(ctx, at)
	if err != nil {
		return fmt.Errorf("reading changed readings: %w", err)
	}
	for _, batch := range d.matcher.BatchReadings(rows) {
		for _, sub := range d.matcher.SubscriptionsFor(subs, batch.AggregatorID, batch.SiteID, batch.SiteReadingTypeID, true) {
			readings := d.matcher.FilterReadingsByConditions(sub, batch.Readings)
			if len(readings) == 0 {
				continue
			}
			for _, part := range chunk(readings, sub.EntityLimit) {
				n := d.builder.ReadingNotification(d.subscriptionHref(sub, batch.SiteID), batch.SiteReadingTypeID, part)
				if err := d.enqueueTransmit(ctx, sub, batch.SiteID, n); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (d *Dispatcher) checkRates(ctx context.Context, at time.Time, subs []*models.Subscription) error {
	rows, err := d.changes.ChangedRates(ctx, at)
	if err != nil {
		return fmt.Errorf("reading changed rates: %w", err)
	}
	channels := []mrid.PricingReadingType{
		mrid.PriceImportActivePower,
		mrid.PriceExportActivePower,
		mrid.PriceImportReactivePower,
		mrid.PriceExportReactivePower,
	}
	for _, batch := range d.matcher.BatchRates(rows) {
		for _, sub := range d.matcher.SubscriptionsFor(subs, batch.AggregatorID, batch.SiteID, batch.TariffID, true) {
			for _, part := range chunk(batch.Rates, sub.EntityLimit) {
				for _, prt := range channels {
					n := d.builder.RateNotification(d.subscriptionHref(sub, batch.SiteID), batch, part, prt)
					if err := d.enqueueTransmit(ctx, sub, batch.SiteID, n); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func (d *Dispatcher) checkDefaultControls(ctx context.Context, at time.Time, subs []*models.Subscription) error {
	rows, err := d.changes.ChangedDefaultSiteControls(ctx, at)
	if err != nil {
		return fmt.Errorf("reading changed default controls: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}
	groupID, err := d.primaryControlGroupID(ctx)
	if err != nil {
		return err
	}
	for _, batch := range d.matcher.BatchDefaultControls(rows) {
		for _, sub := range d.matcher.SubscriptionsFor(subs, batch.AggregatorID, batch.SiteID, 0, false) {
			n := d.builder.DefaultControlNotification(d.subscriptionHref(sub, batch.SiteID), batch, groupID)
			if err := d.enqueueTransmit(ctx, sub, batch.SiteID, n); err != nil {
				return err
			}
		}
	}
	return nil
}

// primaryControlGroupID resolves the group a default control is served
// under: the highest-priority (lowest primacy) group.
func (d *Dispatcher) primaryControlGroupID(ctx context.Context) (int64, error) {
	groups, err := d.does.ListAllControlGroups(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing control groups: %w", err)
	}
	if len(groups) == 0 {
		return 0, nil
	}
	primary := groups[0]
	for _, g := range groups[1:] {
		if g.Primacy < primary.Primacy {
			primary = g
		}
	}
	return primary.ID, nil
}

func (d *Dispatcher) subscriptionHref(sub *models.Subscription, siteID int64) string {
	if sub.ScopedSiteID != nil {
		siteID = *sub.ScopedSiteID
	}
	return d.hrefs.Subscription(siteID, sub.ID)
}

func (d *Dispatcher) enqueueTransmit(ctx context.Context, sub *models.Subscription, siteID int64, n *sep2.Notification) error {
	body, err := MarshalNotification(n)
	if err != nil {
		return err
	}
	payload := TransmitPayload{
		NotificationID:   uuid.New(),
		SubscriptionID:   sub.ID,
		SubscriptionHref: d.subscriptionHref(sub, siteID),
		NotificationURI:  sub.NotificationURI,
		Attempt:          1,
		Body:             body,
	}
	task, err := broker.NewTask(broker.TaskTransmitNotification, 0, payload)
	if err != nil {
		return fmt.Errorf("encoding transmit task: %w", err)
	}
	if err := d.broker.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("enqueueing transmit task: %w", err)
	}
	notificationsEnqueued.WithLabelValues(resourceLabel(sub.ResourceType)).Inc()
	return nil
}

func resourceLabel(r models.SubscriptionResource) string {
	switch r {
	case models.SubscriptionResourceSite:
		return "site"
	case models.SubscriptionResourceDynamicOperatingEnvelope:
		return "doe"
	case models.SubscriptionResourceReading:
		return "reading"
	case models.SubscriptionResourceTariffGeneratedRate:
		return "rate"
	case models.SubscriptionResourceDefaultSiteControl:
		return "default_site_control"
	default:
		return "unknown"
	}
}
