package handler

import (
	"net/http"
	"time"

	"github.com/gridmesh/csip-core/internal/models"
	"github.com/gridmesh/csip-core/internal/pkg/response"
	"github.com/gridmesh/csip-core/internal/sep2"
	"github.com/gridmesh/csip-core/internal/service"
)

// DeviceCapabilityHandler serves the sep2 entry resource and the server
// clock.
type DeviceCapabilityHandler struct {
	runtime service.RuntimeConfigService
	devices service.RegistrationService
	mups    service.MupService
	hrefs   *sep2.Hrefs
	tz      *time.Location
	now     func() time.Time
}

// NewDeviceCapabilityHandler creates a new device capability handler.
func NewDeviceCapabilityHandler(
	runtime service.RuntimeConfigService,
	devices service.RegistrationService,
	mups service.MupService,
	hrefs *sep2.Hrefs,
	tz *time.Location,
) *DeviceCapabilityHandler {
	return &DeviceCapabilityHandler{
		runtime: runtime,
		devices: devices,
		mups:    mups,
		hrefs:   hrefs,
		tz:      tz,
		now:     time.Now,
	}
}

// GetDeviceCapability handles GET /dcap. The list links advertise the
// counts visible under the caller's certificate.
func (h *DeviceCapabilityHandler) GetDeviceCapability(w http.ResponseWriter, r *http.Request) {
	sc, err := requestScope(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	cfg := h.runtime.Current(r.Context())
	pollRate := int(models.PollrateOr(cfg.DcapPollrateSeconds, models.DefaultPollrateSeconds))

	_, edevTotal, err := h.devices.List(r.Context(), sc, time.Time{}, 1, 0)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	_, mupTotal, err := h.mups.List(r.Context(), sc, 1, 0)
	if err != nil {
		response.XMLError(w, err)
		return
	}

	dcap := sep2.DeviceCapability{
		Href:                     h.hrefs.DeviceCapability(),
		PollRate:                 &pollRate,
		EndDeviceListLink:        &sep2.ListLink{Href: h.hrefs.EndDeviceList(), All: &edevTotal},
		MirrorUsagePointListLink: &sep2.ListLink{Href: h.hrefs.MirrorUsagePointList(), All: &mupTotal},
		TimeLink:                 &sep2.Link{Href: h.hrefs.Time()},
	}
	response.XMLOK(w, &dcap)
}

// GetTime handles GET /tm.
func (h *DeviceCapabilityHandler) GetTime(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	local := now.In(h.tz)

	stdOffset, dstOffset := zoneOffsets(now, h.tz)
	dstStart, dstEnd := dstTransitions(now, h.tz)

	tm := sep2.Time{
		Href:         h.hrefs.Time(),
		CurrentTime:  sep2.TimeType(now.Unix()),
		DstEndTime:   sep2.TimeType(dstEnd),
		DstOffset:    int32(dstOffset - stdOffset),
		DstStartTime: sep2.TimeType(dstStart),
		LocalTime:    sep2.TimeType(now.Unix() + int64(localOffset(local))),
		Quality:      4,
		TzOffset:     int32(stdOffset),
	}
	response.XMLOK(w, &tm)
}

func localOffset(t time.Time) int {
	_, offset := t.Zone()
	return offset
}

// zoneOffsets returns the standard and daylight UTC offsets for the zone.
// Zones without DST return the same value twice.
func zoneOffsets(now time.Time, tz *time.Location) (std, dst int) {
	jan := time.Date(now.Year(), time.January, 1, 12, 0, 0, 0, tz)
	jul := time.Date(now.Year(), time.July, 1, 12, 0, 0, 0, tz)
	_, janOff := jan.Zone()
	_, julOff := jul.Zone()
	if janOff < julOff {
		return janOff, julOff
	}
	// Southern hemisphere: January carries the daylight offset.
	return julOff, janOff
}

// dstTransitions scans the coming year for the next daylight saving
// boundaries. Both are zero when the zone never shifts.
func dstTransitions(now time.Time, tz *time.Location) (start, end int64) {
	std, dst := zoneOffsets(now, tz)
	if std == dst {
		return 0, 0
	}

	t := now.In(tz).Truncate(time.Hour)
	_, prev := t.Zone()
	for i := 0; i < 24*366; i++ {
		t = t.Add(time.Hour)
		_, cur := t.Zone()
		if cur == prev {
			continue
		}
		if cur == dst && start == 0 {
			start = t.Unix()
		}
		if cur == std && end == 0 {
			end = t.Unix()
		}
		prev = cur
		if start != 0 && end != 0 {
			break
		}
	}
	return start, end
}
