package notify

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gridmesh/csip-core/internal/mrid"
	"github.com/gridmesh/csip-core/internal/repository"
	"github.com/gridmesh/csip-core/internal/sep2"
)

// xsi:type values naming the concrete resource inside a Notification.
const (
	xsiTypeEndDeviceList          = "EndDeviceList"
	xsiTypeDERControlList         = "DERControlList"
	xsiTypeReadingList            = "ReadingList"
	xsiTypeTimeTariffIntervalList = "TimeTariffIntervalList"
	xsiTypeDefaultDERControl      = "DefaultDERControl"
)

// PayloadBuilder renders change batches as sep2 Notification documents.
type PayloadBuilder struct {
	hrefs *sep2.Hrefs
	codec *mrid.Codec
}

// NewPayloadBuilder creates a builder over the deployment's href layout and
// MRID codec.
func NewPayloadBuilder(hrefs *sep2.Hrefs, codec *mrid.Codec) *PayloadBuilder {
	return &PayloadBuilder{hrefs: hrefs, codec: codec}
}

// MarshalNotification encodes a notification with the XML declaration
// prepended, ready for transmission.
func MarshalNotification(n *sep2.Notification) ([]byte, error) {
	body, err := xml.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encoding notification: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// activePower converts a decimal watts value to the sep2 fixed-point form.
// Two decimal places are preserved with a -2 multiplier.
func activePower(w *decimal.Decimal) *sep2.ActivePower {
	if w == nil {
		return nil
	}
	return &sep2.ActivePower{Multiplier: -2, Value: w.Shift(2).IntPart()}
}

// SiteNotification renders a chunk of changed sites as an EndDeviceList.
func (b *PayloadBuilder) SiteNotification(subscriptionHref string, sites []*repository.ChangedSite) *sep2.Notification {
	devices := make([]sep2.EndDevice, 0, len(sites))
	for _, s := range sites {
		devices = append(devices, sep2.EndDevice{
			Href:           b.hrefs.EndDevice(s.ID),
			SFDI:           uint64(s.SFDI),
			LFDI:           s.LFDI,
			DeviceCategory: s.DeviceCategory,
			ChangedTime:    sep2.TimeType(s.ChangedTime.Unix()),
		})
	}
	return &sep2.Notification{
		SubscribedResource: b.hrefs.EndDeviceList(),
		Resource: &sep2.NotificationResource{
			XsiType:    xsiTypeEndDeviceList,
			All:        len(devices),
			Results:    len(devices),
			EndDevices: devices,
		},
		Status:          sep2.NotificationStatusDefault,
		SubscriptionURI: subscriptionHref,
	}
}

// DoeNotification renders a chunk of changed envelopes as a DERControlList.
// Deleted envelopes are carried as cancelled events so clients stop acting
// on them.
func (b *PayloadBuilder) DoeNotification(subscriptionHref string, siteID int64, does []*repository.ChangedDoe, now time.Time) *sep2.Notification {
	controls := make([]sep2.DERControl, 0, len(does))
	var groupID int64
	for _, d := range does {
		if groupID == 0 {
			groupID = d.SiteControlGroupID
		}
		controls = append(controls, b.derControl(siteID, d, now))
	}
	return &sep2.Notification{
		SubscribedResource: b.hrefs.DERControlList(siteID, groupID),
		Resource: &sep2.NotificationResource{
			XsiType:     xsiTypeDERControlList,
			All:         len(controls),
			Results:     len(controls),
			DERControls: controls,
		},
		Status:          sep2.NotificationStatusDefault,
		SubscriptionURI: subscriptionHref,
	}
}

func (b *PayloadBuilder) derControl(siteID int64, d *repository.ChangedDoe, now time.Time) sep2.DERControl {
	status := sep2.EventStatusScheduled
	switch {
	case d.Deleted:
		status = sep2.EventStatusCancelled
	case d.Superseded:
		status = sep2.EventStatusSuperseded
	case !now.Before(d.StartTime) && now.Before(d.EndTime):
		status = sep2.EventStatusActive
	}
	var randomize *int16
	if d.RandomizeStartSeconds != nil {
		v := *d.RandomizeStartSeconds
		randomize = &v
	}
	return sep2.DERControl{
		Href:         b.hrefs.DERControl(siteID, d.SiteControlGroupID, d.ID),
		ReplyTo:      b.hrefs.ResponseList(siteID, sep2.ResponseSlugDoe),
		ResponseReq:  "01",
		MRID:         b.codec.EncodeDynamicOperatingEnvelope(d.ID),
		CreationTime: sep2.TimeType(d.ChangedTime.Unix()),
		EventStatus: &sep2.EventStatus{
			CurrentStatus: status,
			DateTime:      sep2.TimeType(d.ChangedTime.Unix()),
		},
		Interval: &sep2.DateTimeInterval{
			Duration: int64(d.DurationSeconds),
			Start:    sep2.TimeType(d.StartTime.Unix()),
		},
		RandomizeStart: randomize,
		ControlBase: sep2.DERControlBase{
			OpModImpLimW:  activePower(d.ImportLimitActiveWatts),
			OpModExpLimW:  activePower(d.ExportLimitWatts),
			OpModGenLimW:  activePower(d.GenerationLimitWatts),
			OpModLoadLimW: activePower(d.LoadLimitWatts),
			OpModEnergize: d.SetEnergized,
			RampTms:       d.RampRatePercentPerSecond,
		},
	}
}

// ReadingNotification renders a chunk of changed readings as a ReadingList
// under the stream's mirror usage point.
func (b *PayloadBuilder) ReadingNotification(subscriptionHref string, srtID int64, readings []*repository.ChangedReading) *sep2.Notification {
	out := make([]sep2.Reading, 0, len(readings))
	for _, r := range readings {
		var localID string
		if r.LocalID != nil {
			localID = *r.LocalID
		}
		out = append(out, sep2.Reading{
			LocalID:      localID,
			QualityFlags: r.QualityFlags,
			TimePeriod: &sep2.DateTimeInterval{
				Duration: int64(r.TimePeriodSeconds),
				Start:    sep2.TimeType(r.TimePeriodStart.Unix()),
			},
			Value: r.Value,
		})
	}
	return &sep2.Notification{
		SubscribedResource: b.hrefs.MirrorUsagePoint(srtID),
		Resource: &sep2.NotificationResource{
			XsiType:  xsiTypeReadingList,
			All:      len(out),
			Results:  len(out),
			Readings: out,
		},
		Status:          sep2.NotificationStatusDefault,
		SubscriptionURI: subscriptionHref,
	}
}

// RateNotification renders a chunk of changed rates for one price channel
// as a TimeTariffIntervalList.
func (b *PayloadBuilder) RateNotification(subscriptionHref string, batch *RateBatch, rates []*repository.ChangedRate, prt mrid.PricingReadingType) *sep2.Notification {
	day := batch.Day.Format("2006-01-02")
	intervals := make([]sep2.TimeTariffInterval, 0, len(rates))
	for _, r := range rates {
		status := sep2.EventStatusScheduled
		if r.Deleted {
			status = sep2.EventStatusCancelled
		}
		intervals = append(intervals, sep2.TimeTariffInterval{
			Href:         b.hrefs.TimeTariffInterval(batch.SiteID, batch.TariffID, day, int(prt), r.ID),
			MRID:         b.codec.EncodeTimeTariffInterval(r.ID, prt),
			CreationTime: sep2.TimeType(r.ChangedTime.Unix()),
			EventStatus: &sep2.EventStatus{
				CurrentStatus: status,
				DateTime:      sep2.TimeType(r.ChangedTime.Unix()),
			},
			Interval: &sep2.DateTimeInterval{
				Duration: int64(r.DurationSeconds),
				Start:    sep2.TimeType(r.StartTime.Unix()),
			},
		})
	}
	return &sep2.Notification{
		SubscribedResource: b.hrefs.TimeTariffIntervalList(batch.SiteID, batch.TariffID, day, int(prt)),
		Resource: &sep2.NotificationResource{
			XsiType:             xsiTypeTimeTariffIntervalList,
			All:                 len(intervals),
			Results:             len(intervals),
			TimeTariffIntervals: intervals,
		},
		Status:          sep2.NotificationStatusDefault,
		SubscriptionURI: subscriptionHref,
	}
}

// DefaultControlNotification renders a changed per-site fallback control as
// a DefaultDERControl under the given control group.
func (b *PayloadBuilder) DefaultControlNotification(subscriptionHref string, batch *DefaultControlBatch, groupID int64) *sep2.Notification {
	c := batch.Control
	status := sep2.NotificationStatusDefault
	var doc *sep2.DefaultDERControl
	if !c.Deleted {
		doc = &sep2.DefaultDERControl{
			Href: b.hrefs.DefaultDERControl(batch.SiteID, groupID),
			MRID: b.codec.EncodeDefaultDOE(batch.SiteID),
			ControlBase: sep2.DERControlBase{
				OpModImpLimW:  activePower(c.ImportLimitActiveWatts),
				OpModExpLimW:  activePower(c.ExportLimitActiveWatts),
				OpModGenLimW:  activePower(c.GenerationLimitActiveWatts),
				OpModLoadLimW: activePower(c.LoadLimitActiveWatts),
				RampTms:       c.RampRatePercentPerSecond,
			},
		}
	}
	return &sep2.Notification{
		SubscribedResource: b.hrefs.DefaultDERControl(batch.SiteID, groupID),
		Resource: &sep2.NotificationResource{
			XsiType:           xsiTypeDefaultDERControl,
			All:               1,
			Results:           1,
			DefaultDERControl: doc,
		},
		Status:          status,
		SubscriptionURI: subscriptionHref,
	}
}
