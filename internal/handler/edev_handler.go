package handler

import (
	"net/http"
	"time"

	"github.com/gridmesh/csip-core/internal/models"
	apierrors "github.com/gridmesh/csip-core/internal/pkg/errors"
	"github.com/gridmesh/csip-core/internal/pkg/response"
	"github.com/gridmesh/csip-core/internal/repository"
	"github.com/gridmesh/csip-core/internal/sep2"
	"github.com/gridmesh/csip-core/internal/service"
)

// EndDeviceHandler serves the /edev function set: registration, connection
// points and diagnostic log events.
type EndDeviceHandler struct {
	registration service.RegistrationService
	runtime      service.RuntimeConfigService
	logEvents    repository.LogEventRepository
	hrefs        *sep2.Hrefs
	now          func() time.Time
}

// NewEndDeviceHandler creates a new end device handler.
func NewEndDeviceHandler(
	registration service.RegistrationService,
	runtime service.RuntimeConfigService,
	logEvents repository.LogEventRepository,
	hrefs *sep2.Hrefs,
) *EndDeviceHandler {
	return &EndDeviceHandler{
		registration: registration,
		runtime:      runtime,
		logEvents:    logEvents,
		hrefs:        hrefs,
		now:          time.Now,
	}
}

// endDevice builds the wire resource for one site.
func (h *EndDeviceHandler) endDevice(site *models.Site) sep2.EndDevice {
	enabled := true
	return sep2.EndDevice{
		Href:                 h.hrefs.EndDevice(site.ID),
		SFDI:                 uint64(site.SFDI),
		LFDI:                 site.LFDI,
		DeviceCategory:       site.DeviceCategory,
		ChangedTime:          sep2.TimeType(site.ChangedTime.Unix()),
		Enabled:              &enabled,
		ConnectionPointLink:  &sep2.Link{Href: h.hrefs.ConnectionPoint(site.ID)},
		DERListLink:          &sep2.ListLink{Href: h.hrefs.DERList(site.ID)},
		FSAListLink:          &sep2.ListLink{Href: h.hrefs.FunctionSetAssignmentsList(site.ID)},
		LogEventListLink:     &sep2.ListLink{Href: h.hrefs.LogEventList(site.ID)},
		RegistrationLink:     &sep2.Link{Href: h.hrefs.Registration(site.ID)},
		SubscriptionListLink: &sep2.ListLink{Href: h.hrefs.SubscriptionList(site.ID)},
	}
}

// List handles GET /edev.
func (h *EndDeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	sc, err := requestScope(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	p := parsePagination(r)

	sites, total, err := h.registration.List(r.Context(), sc, p.After, p.Limit, p.Start)
	if err != nil {
		response.XMLError(w, err)
		return
	}

	cfg := h.runtime.Current(r.Context())
	pollRate := int(models.PollrateOr(cfg.EdevlPollrateSeconds, models.DefaultPollrateSeconds))

	list := sep2.EndDeviceList{
		Href:     h.hrefs.EndDeviceList(),
		All:      total,
		Results:  len(sites),
		PollRate: &pollRate,
	}
	for _, site := range sites {
		list.EndDevices = append(list.EndDevices, h.endDevice(site))
	}
	response.XMLOK(w, &list)
}

// Register handles POST /edev.
func (h *EndDeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	sc, err := requestScope(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	if h.runtime.Current(r.Context()).DisableEdevRegistration {
		response.XMLError(w, apierrors.ErrForbidden.WithMessage("device registration is disabled"))
		return
	}

	var body sep2.EndDevice
	if err := decodeXML(r, &body); err != nil {
		response.XMLError(w, err)
		return
	}

	changed := h.now()
	if body.ChangedTime > 0 {
		changed = time.Unix(int64(body.ChangedTime), 0)
	}
	req := &service.RegisterSiteRequest{
		LFDI:           body.LFDI,
		SFDI:           int64(body.SFDI),
		DeviceCategory: body.DeviceCategory,
		ChangedTime:    changed,
	}

	site, _, err := h.registration.Register(r.Context(), sc, req)
	if err != nil {
		response.XMLError(w, err)
		return
	}

	// A repeat with the same LFDI resolves to the same site and answers
	// 201 again, so clients can treat registration as idempotent.
	w.Header().Set("Location", h.hrefs.EndDevice(site.ID))
	w.WriteHeader(http.StatusCreated)
}

// Get handles GET /edev/{siteID}.
func (h *EndDeviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	sc, err := requestScope(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	siteID, err := urlID(r, "siteID")
	if err != nil {
		response.XMLError(w, err)
		return
	}

	site, err := h.registration.Get(r.Context(), sc, siteID)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	edev := h.endDevice(site)
	response.XMLOK(w, &edev)
}

// Delete handles DELETE /edev/{siteID}.
func (h *EndDeviceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sc, err := requestScope(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	siteID, err := urlID(r, "siteID")
	if err != nil {
		response.XMLError(w, err)
		return
	}

	if err := h.registration.Delete(r.Context(), sc, siteID); err != nil {
		response.XMLError(w, err)
		return
	}
	response.NoContent(w)
}

// GetRegistration handles GET /edev/{siteID}/reg. The PIN is the
// out-of-band proof a direct-connecting device presents.
func (h *EndDeviceHandler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	sc, err := requestScope(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	siteID, err := urlID(r, "siteID")
	if err != nil {
		response.XMLError(w, err)
		return
	}

	site, err := h.registration.Get(r.Context(), sc, siteID)
	if err != nil {
		response.XMLError(w, err)
		return
	}

	reg := sep2.Registration{
		Href:               h.hrefs.Registration(site.ID),
		DateTimeRegistered: sep2.TimeType(site.CreatedTime.Unix()),
		PIN:                uint32(site.RegistrationPIN),
	}
	response.XMLOK(w, &reg)
}

// GetConnectionPoint handles GET /edev/{siteID}/cp.
func (h *EndDeviceHandler) GetConnectionPoint(w http.ResponseWriter, r *http.Request) {
	sc, err := requestScope(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	siteID, err := urlID(r, "siteID")
	if err != nil {
		response.XMLError(w, err)
		return
	}

	site, err := h.registration.Get(r.Context(), sc, siteID)
	if err != nil {
		response.XMLError(w, err)
		return
	}

	cp := sep2.ConnectionPoint{}
	if site.NMI != nil {
		cp.ConnectionPointID = *site.NMI
	}
	response.XMLOK(w, &cp)
}

// PutConnectionPoint handles PUT and POST /edev/{siteID}/cp.
func (h *EndDeviceHandler) PutConnectionPoint(w http.ResponseWriter, r *http.Request) {
	sc, err := requestScope(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	siteID, err := urlID(r, "siteID")
	if err != nil {
		response.XMLError(w, err)
		return
	}

	var cp sep2.ConnectionPoint
	if err := decodeXML(r, &cp); err != nil {
		response.XMLError(w, err)
		return
	}

	if err := h.registration.SetConnectionPoint(r.Context(), sc, siteID, cp.ConnectionPointID); err != nil {
		response.XMLError(w, err)
		return
	}
	response.XMLCreated(w, h.hrefs.ConnectionPoint(siteID))
}

// ListLogEvents handles GET /edev/{siteID}/lel.
func (h *EndDeviceHandler) ListLogEvents(w http.ResponseWriter, r *http.Request) {
	sc, err := requestScope(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	siteID, err := urlID(r, "siteID")
	if err != nil {
		response.XMLError(w, err)
		return
	}
	if err := sc.RequireSite(siteID); err != nil {
		response.XMLError(w, err)
		return
	}
	p := parsePagination(r)

	events, err := h.logEvents.List(r.Context(), siteID, p.Limit, p.Start)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	total, err := h.logEvents.Count(r.Context(), siteID)
	if err != nil {
		response.XMLError(w, err)
		return
	}

	list := sep2.LogEventList{
		Href:    h.hrefs.LogEventList(siteID),
		All:     total,
		Results: len(events),
	}
	for _, ev := range events {
		list.LogEvents = append(list.LogEvents, h.logEvent(siteID, ev))
	}
	response.XMLOK(w, &list)
}

// GetLogEvent handles GET /edev/{siteID}/lel/{logID}.
func (h *EndDeviceHandler) GetLogEvent(w http.ResponseWriter, r *http.Request) {
	sc, err := requestScope(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	siteID, err := urlID(r, "siteID")
	if err != nil {
		response.XMLError(w, err)
		return
	}
	if err := sc.RequireSite(siteID); err != nil {
		response.XMLError(w, err)
		return
	}
	logID, err := urlID(r, "logID")
	if err != nil {
		response.XMLError(w, err)
		return
	}

	ev, err := h.logEvents.Get(r.Context(), siteID, logID)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	if ev == nil {
		response.XMLError(w, apierrors.ErrNotFound)
		return
	}
	entry := h.logEvent(siteID, ev)
	response.XMLOK(w, &entry)
}

func (h *EndDeviceHandler) logEvent(siteID int64, ev *models.SiteLogEvent) sep2.LogEvent {
	entry := sep2.LogEvent{
		Href:            h.hrefs.LogEvent(siteID, ev.ID),
		CreatedDateTime: sep2.TimeType(ev.CreatedTime.Unix()),
		FunctionSet:     int(ev.FunctionSet),
		LogEventCode:    int(ev.LogEventCode),
		LogEventID:      int(ev.LogEventID),
		LogEventPEN:     uint32(ev.LogEventPEN),
		ProfileID:       int(ev.ProfileID),
	}
	if ev.Details != nil {
		entry.Details = *ev.Details
	}
	if ev.ExtendedData != nil {
		extended := uint32(*ev.ExtendedData)
		entry.ExtendedData = &extended
	}
	return entry
}

// CreateLogEvent handles POST /edev/{siteID}/lel.
func (h *EndDeviceHandler) CreateLogEvent(w http.ResponseWriter, r *http.Request) {
	sc, err := requestScope(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	siteID, err := urlID(r, "siteID")
	if err != nil {
		response.XMLError(w, err)
		return
	}
	if err := sc.RequireSite(siteID); err != nil {
		response.XMLError(w, err)
		return
	}

	var body sep2.LogEvent
	if err := decodeXML(r, &body); err != nil {
		response.XMLError(w, err)
		return
	}

	event := &models.SiteLogEvent{
		SiteID:       siteID,
		CreatedTime:  h.now(),
		FunctionSet:  int32(body.FunctionSet),
		LogEventCode: int32(body.LogEventCode),
		LogEventID:   int32(body.LogEventID),
		LogEventPEN:  int64(body.LogEventPEN),
		ProfileID:    int32(body.ProfileID),
	}
	if body.Details != "" {
		event.Details = &body.Details
	}
	if body.ExtendedData != nil {
		extended := int64(*body.ExtendedData)
		event.ExtendedData = &extended
	}
	if err := event.Validate(); err != nil {
		response.XMLError(w, apierrors.NewValidationError("LogEvent", err.Error()))
		return
	}

	if err := h.logEvents.Create(r.Context(), event); err != nil {
		response.XMLError(w, err)
		return
	}
	response.XMLCreated(w, h.hrefs.LogEventList(siteID))
}
