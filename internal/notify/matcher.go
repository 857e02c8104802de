// Package notify implements the pub/sub notification engine: change
// detection against exact change timestamps, batching by the sep2 grouping
// rules, payload construction and webhook delivery with a fixed retry
// ladder.
package notify

import (
	"sort"
	"time"

	"github.com/gridmesh/csip-core/internal/models"
	"github.com/gridmesh/csip-core/internal/repository"
)

// SiteBatch groups changed sites destined for one EndDeviceList
// notification.
type SiteBatch struct {
	AggregatorID int64
	SiteID       int64
	Sites        []*repository.ChangedSite
}

// DoeBatch groups changed envelopes for one site into one DERControlList
// notification.
type DoeBatch struct {
	AggregatorID int64
	SiteID       int64
	Does         []*repository.ChangedDoe
}

// ReadingBatch groups changed readings for one reading stream.
type ReadingBatch struct {
	AggregatorID      int64
	SiteID            int64
	SiteReadingTypeID int64
	Readings          []*repository.ChangedReading
}

// RateBatch groups changed rates for one tariff, site and local calendar
// day.
type RateBatch struct {
	AggregatorID int64
	TariffID     int64
	SiteID       int64
	Day          time.Time
	Rates        []*repository.ChangedRate
}

// DefaultControlBatch carries one site's changed fallback control.
type DefaultControlBatch struct {
	AggregatorID int64
	SiteID       int64
	Control      *repository.ChangedDefaultSiteControl
}

// Matcher partitions change batches and selects the subscriptions each
// batch must be delivered to. Rate batching needs the deployment timezone
// to resolve the local calendar day of a rate.
type Matcher struct {
	tz *time.Location
}

// NewMatcher creates a matcher anchored to the given timezone.
func NewMatcher(tz *time.Location) *Matcher {
	return &Matcher{tz: tz}
}

// BatchSites partitions changed sites by (aggregator, site).
func (m *Matcher) BatchSites(rows []*repository.ChangedSite) []*SiteBatch {
	type key struct{ agg, site int64 }
	byKey := make(map[key]*SiteBatch)
	for _, row := range rows {
		k := key{row.AggregatorID, row.ID}
		b, ok := byKey[k]
		if !ok {
			b = &SiteBatch{AggregatorID: row.AggregatorID, SiteID: row.ID}
			byKey[k] = b
		}
		b.Sites = append(b.Sites, row)
	}
	out := make([]*SiteBatch, 0, len(byKey))
	for _, b := range byKey {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AggregatorID != out[j].AggregatorID {
			return out[i].AggregatorID < out[j].AggregatorID
		}
		return out[i].SiteID < out[j].SiteID
	})
	return out
}

// BatchDoes partitions changed envelopes by (aggregator, site).
func (m *Matcher) BatchDoes(rows []*repository.ChangedDoe) []*DoeBatch {
	type key struct{ agg, site int64 }
	byKey := make(map[key]*DoeBatch)
	for _, row := range rows {
		k := key{row.AggregatorID, row.SiteID}
		b, ok := byKey[k]
		if !ok {
			b = &DoeBatch{AggregatorID: row.AggregatorID, SiteID: row.SiteID}
			byKey[k] = b
		}
		b.Does = append(b.Does, row)
	}
	out := make([]*DoeBatch, 0, len(byKey))
	for _, b := range byKey {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AggregatorID != out[j].AggregatorID {
			return out[i].AggregatorID < out[j].AggregatorID
		}
		return out[i].SiteID < out[j].SiteID
	})
	return out
}

// BatchReadings partitions changed readings by (aggregator, site, stream).
func (m *Matcher) BatchReadings(rows []*repository.ChangedReading) []*ReadingBatch {
	type key struct{ agg, site, srt int64 }
	byKey := make(map[key]*ReadingBatch)
	for _, row := range rows {
		k := key{row.AggregatorID, row.SiteID, row.SiteReadingTypeID}
		b, ok := byKey[k]
		if !ok {
			b = &ReadingBatch{
				AggregatorID:      row.AggregatorID,
				SiteID:            row.SiteID,
				SiteReadingTypeID: row.SiteReadingTypeID,
			}
			byKey[k] = b
		}
		b.Readings = append(b.Readings, row)
	}
	out := make([]*ReadingBatch, 0, len(byKey))
	for _, b := range byKey {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AggregatorID != out[j].AggregatorID {
			return out[i].AggregatorID < out[j].AggregatorID
		}
		if out[i].SiteID != out[j].SiteID {
			return out[i].SiteID < out[j].SiteID
		}
		return out[i].SiteReadingTypeID < out[j].SiteReadingTypeID
	})
	return out
}

// BatchRates partitions changed rates by (aggregator, tariff, site, local
// day of start_time).
func (m *Matcher) BatchRates(rows []*repository.ChangedRate) []*RateBatch {
	type key struct {
		agg, tariff, site int64
		day               string
	}
	byKey := make(map[key]*RateBatch)
	for _, row := range rows {
		day := row.StartTime.In(m.tz).Truncate(0)
		dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, m.tz)
		k := key{row.AggregatorID, row.TariffID, row.SiteID, dayStart.Format("2006-01-02")}
		b, ok := byKey[k]
		if !ok {
			b = &RateBatch{
				AggregatorID: row.AggregatorID,
				TariffID:     row.TariffID,
				SiteID:       row.SiteID,
				Day:          dayStart,
			}
			byKey[k] = b
		}
		b.Rates = append(b.Rates, row)
	}
	out := make([]*RateBatch, 0, len(byKey))
	for _, b := range byKey {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AggregatorID != out[j].AggregatorID {
			return out[i].AggregatorID < out[j].AggregatorID
		}
		if out[i].TariffID != out[j].TariffID {
			return out[i].TariffID < out[j].TariffID
		}
		if out[i].SiteID != out[j].SiteID {
			return out[i].SiteID < out[j].SiteID
		}
		return out[i].Day.Before(out[j].Day)
	})
	return out
}

// BatchDefaultControls maps each changed default to its own batch. There is
// at most one default per site, so no grouping beyond the site applies.
func (m *Matcher) BatchDefaultControls(rows []*repository.ChangedDefaultSiteControl) []*DefaultControlBatch {
	out := make([]*DefaultControlBatch, 0, len(rows))
	for _, row := range rows {
		out = append(out, &DefaultControlBatch{
			AggregatorID: row.AggregatorID,
			SiteID:       row.SiteID,
			Control:      row,
		})
	}
	return out
}

// SubscriptionsFor selects the subscriptions a batch must be delivered to.
// A subscription matches when it belongs to the batch's aggregator, its
// scoped site (if any) equals the batch's site, and its resource filter (if
// any) equals the batch's parent resource id. Pass hasResource false for
// resource types with no parent filter.
func (m *Matcher) SubscriptionsFor(subs []*models.Subscription, aggregatorID, siteID int64, resourceID int64, hasResource bool) []*models.Subscription {
	var out []*models.Subscription
	for _, sub := range subs {
		if sub.AggregatorID != aggregatorID {
			continue
		}
		if sub.ScopedSiteID != nil && *sub.ScopedSiteID != siteID {
			continue
		}
		if sub.ResourceID != nil && (!hasResource || *sub.ResourceID != resourceID) {
			continue
		}
		out = append(out, sub)
	}
	return out
}

// FilterReadingsByConditions drops readings whose value fails any of the
// subscription's conditions. Conditions on attributes other than the
// reading value never suppress anything.
func (m *Matcher) FilterReadingsByConditions(sub *models.Subscription, readings []*repository.ChangedReading) []*repository.ChangedReading {
	if len(sub.Conditions) == 0 {
		return readings
	}
	var out []*repository.ChangedReading
	for _, r := range readings {
		keep := true
		for i := range sub.Conditions {
			c := &sub.Conditions[i]
			if c.Attribute != models.ConditionAttributeReadingValue {
				continue
			}
			if !c.Matches(r.Value) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, r)
		}
	}
	return out
}

// chunk splits items into runs of at most limit entities. A non-positive
// limit yields a single chunk.
func chunk[T any](items []T, limit int32) [][]T {
	if len(items) == 0 {
		return nil
	}
	if limit <= 0 || len(items) <= int(limit) {
		return [][]T{items}
	}
	var out [][]T
	for start := 0; start < len(items); start += int(limit) {
		end := start + int(limit)
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}
