package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gridmesh/csip-core/internal/models"
	apierrors "github.com/gridmesh/csip-core/internal/pkg/errors"
	"github.com/gridmesh/csip-core/internal/pkg/response"
	"github.com/gridmesh/csip-core/internal/repository"
	"github.com/gridmesh/csip-core/internal/sep2"
	"github.com/gridmesh/csip-core/internal/service"
)

// DERHandler serves the per-site DER resource and its four client-upserted
// facets: capability, settings, availability and status. The facets are
// plain attribute stores, so the handler talks to the repository directly.
type DERHandler struct {
	ders    repository.DERRepository
	runtime service.RuntimeConfigService
	hrefs   *sep2.Hrefs
	now     func() time.Time
}

// NewDERHandler creates a new DER handler.
func NewDERHandler(ders repository.DERRepository, runtime service.RuntimeConfigService, hrefs *sep2.Hrefs) *DERHandler {
	return &DERHandler{ders: ders, runtime: runtime, hrefs: hrefs, now: time.Now}
}

// Routes returns a chi router with the DER routes, mounted at
// /edev/{siteID}/der.
func (h *DERHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/1", h.Get)
	r.Get("/1/dercap", h.GetCapability)
	r.Put("/1/dercap", h.PutCapability)
	r.Get("/1/derg", h.GetSettings)
	r.Put("/1/derg", h.PutSettings)
	r.Get("/1/dera", h.GetAvailability)
	r.Put("/1/dera", h.PutAvailability)
	r.Get("/1/ders", h.GetStatus)
	r.Put("/1/ders", h.PutStatus)
	return r
}

// siteFromRequest authorizes the site path parameter against the caller.
func (h *DERHandler) siteFromRequest(r *http.Request) (int64, error) {
	sc, err := requestScope(r)
	if err != nil {
		return 0, err
	}
	siteID, err := urlID(r, "siteID")
	if err != nil {
		return 0, err
	}
	if err := sc.RequireSite(siteID); err != nil {
		return 0, err
	}
	return siteID, nil
}

func (h *DERHandler) der(siteID int64) sep2.DER {
	return sep2.DER{
		Href:                h.hrefs.DER(siteID),
		DERAvailabilityLink: &sep2.Link{Href: h.hrefs.DERAvailability(siteID)},
		DERCapabilityLink:   &sep2.Link{Href: h.hrefs.DERCapability(siteID)},
		DERSettingsLink:     &sep2.Link{Href: h.hrefs.DERSettings(siteID)},
		DERStatusLink:       &sep2.Link{Href: h.hrefs.DERStatus(siteID)},
	}
}

// List handles GET /edev/{siteID}/der. Each site carries exactly one DER.
func (h *DERHandler) List(w http.ResponseWriter, r *http.Request) {
	siteID, err := h.siteFromRequest(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	cfg := h.runtime.Current(r.Context())
	list := sep2.DERList{
		Href:     h.hrefs.DERList(siteID),
		All:      1,
		Results:  1,
		PollRate: intPtr(int(models.PollrateOr(cfg.DerlPollrateSeconds, models.DefaultPollrateSeconds))),
		DERs:     []sep2.DER{h.der(siteID)},
	}
	response.XMLOK(w, &list)
}

// Get handles GET /edev/{siteID}/der/1.
func (h *DERHandler) Get(w http.ResponseWriter, r *http.Request) {
	siteID, err := h.siteFromRequest(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	der := h.der(siteID)
	response.XMLOK(w, &der)
}

// siteDER resolves the DER row, creating it on first facet write.
func (h *DERHandler) siteDER(r *http.Request, siteID int64, create bool) (*models.SiteDER, error) {
	der := &models.SiteDER{SiteID: siteID, ChangedTime: h.now()}
	if create {
		if err := h.ders.GetOrCreate(r.Context(), siteID, der); err != nil {
			return nil, err
		}
		return der, nil
	}
	stored, err := h.ders.GetBySiteID(r.Context(), siteID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, apierrors.ErrNotFound
	}
	return stored, nil
}

func powerPair(value int64, multiplier int32) *sep2.ActivePower {
	return &sep2.ActivePower{Multiplier: int(multiplier), Value: value}
}

func optionalPowerPair(value *int64, multiplier *int32) *sep2.ActivePower {
	if value == nil {
		return nil
	}
	p := &sep2.ActivePower{Value: *value}
	if multiplier != nil {
		p.Multiplier = int(*multiplier)
	}
	return p
}

func optionalReactivePair(value *int64, multiplier *int32) *sep2.ReactivePower {
	if value == nil {
		return nil
	}
	p := &sep2.ReactivePower{Value: *value}
	if multiplier != nil {
		p.Multiplier = int(*multiplier)
	}
	return p
}

func splitActivePower(p *sep2.ActivePower) (*int64, *int32) {
	if p == nil {
		return nil, nil
	}
	value := p.Value
	multiplier := int32(p.Multiplier)
	return &value, &multiplier
}

func splitReactivePower(p *sep2.ReactivePower) (*int64, *int32) {
	if p == nil {
		return nil, nil
	}
	value := p.Value
	multiplier := int32(p.Multiplier)
	return &value, &multiplier
}

// GetCapability handles GET /edev/{siteID}/der/1/dercap.
func (h *DERHandler) GetCapability(w http.ResponseWriter, r *http.Request) {
	siteID, err := h.siteFromRequest(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	der, err := h.siteDER(r, siteID, false)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	rating, err := h.ders.GetRating(r.Context(), der.ID)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	if rating == nil {
		response.XMLError(w, apierrors.ErrNotFound)
		return
	}

	cap := sep2.DERCapability{
		Href:      h.hrefs.DERCapability(siteID),
		RtgMaxW:   powerPair(rating.MaxWValue, rating.MaxWMultiplier),
		RtgMaxVA:  optionalPowerPair(rating.MaxVAValue, rating.MaxVAMultiplier),
		RtgMaxVar: optionalReactivePair(rating.MaxVarValue, rating.MaxVarMultiplier),
		DERType:   int(rating.DERType),
	}
	if rating.ModesSupported != nil {
		cap.Modes = *rating.ModesSupported
	}
	response.XMLOK(w, &cap)
}

// PutCapability handles PUT /edev/{siteID}/der/1/dercap.
func (h *DERHandler) PutCapability(w http.ResponseWriter, r *http.Request) {
	siteID, err := h.siteFromRequest(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	var body sep2.DERCapability
	if err := decodeXML(r, &body); err != nil {
		response.XMLError(w, err)
		return
	}
	if body.RtgMaxW == nil {
		response.XMLError(w, apierrors.NewValidationError("rtgMaxW", "rtgMaxW is required"))
		return
	}
	der, err := h.siteDER(r, siteID, true)
	if err != nil {
		response.XMLError(w, err)
		return
	}

	rating := &models.SiteDERRating{
		SiteDERID:      der.ID,
		ChangedTime:    h.now(),
		DERType:        int32(body.DERType),
		MaxWValue:      body.RtgMaxW.Value,
		MaxWMultiplier: int32(body.RtgMaxW.Multiplier),
	}
	if body.Modes != "" {
		rating.ModesSupported = &body.Modes
	}
	rating.MaxVAValue, rating.MaxVAMultiplier = splitActivePower(body.RtgMaxVA)
	rating.MaxVarValue, rating.MaxVarMultiplier = splitReactivePower(body.RtgMaxVar)

	if err := h.ders.UpsertRating(r.Context(), rating); err != nil {
		response.XMLError(w, err)
		return
	}
	response.XMLCreated(w, h.hrefs.DERCapability(siteID))
}

// GetSettings handles GET /edev/{siteID}/der/1/derg.
func (h *DERHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	siteID, err := h.siteFromRequest(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	der, err := h.siteDER(r, siteID, false)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	setting, err := h.ders.GetSetting(r.Context(), der.ID)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	if setting == nil {
		response.XMLError(w, apierrors.ErrNotFound)
		return
	}

	out := sep2.DERSettings{
		Href:        h.hrefs.DERSettings(siteID),
		SetGradW:    setting.GradW,
		SetMaxW:     powerPair(setting.MaxWValue, setting.MaxWMultiplier),
		SetMaxVA:    optionalPowerPair(setting.MaxVAValue, setting.MaxVAMultiplier),
		SetMaxVar:   optionalReactivePair(setting.MaxVarValue, setting.MaxVarMultiplier),
		UpdatedTime: sep2.TimeType(setting.ChangedTime.Unix()),
	}
	response.XMLOK(w, &out)
}

// PutSettings handles PUT /edev/{siteID}/der/1/derg.
func (h *DERHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	siteID, err := h.siteFromRequest(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	var body sep2.DERSettings
	if err := decodeXML(r, &body); err != nil {
		response.XMLError(w, err)
		return
	}
	if body.SetMaxW == nil {
		response.XMLError(w, apierrors.NewValidationError("setMaxW", "setMaxW is required"))
		return
	}
	der, err := h.siteDER(r, siteID, true)
	if err != nil {
		response.XMLError(w, err)
		return
	}

	setting := &models.SiteDERSetting{
		SiteDERID:      der.ID,
		ChangedTime:    h.now(),
		GradW:          body.SetGradW,
		MaxWValue:      body.SetMaxW.Value,
		MaxWMultiplier: int32(body.SetMaxW.Multiplier),
	}
	setting.MaxVAValue, setting.MaxVAMultiplier = splitActivePower(body.SetMaxVA)
	setting.MaxVarValue, setting.MaxVarMultiplier = splitReactivePower(body.SetMaxVar)

	if err := h.ders.UpsertSetting(r.Context(), setting); err != nil {
		response.XMLError(w, err)
		return
	}
	response.XMLCreated(w, h.hrefs.DERSettings(siteID))
}

// GetAvailability handles GET /edev/{siteID}/der/1/dera.
func (h *DERHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	siteID, err := h.siteFromRequest(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	der, err := h.siteDER(r, siteID, false)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	avail, err := h.ders.GetAvailability(r.Context(), der.ID)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	if avail == nil {
		response.XMLError(w, apierrors.ErrNotFound)
		return
	}

	out := sep2.DERAvailability{
		Href:                 h.hrefs.DERAvailability(siteID),
		AvailabilityDuration: avail.AvailabilityDurationSec,
		ReadingTime:          sep2.TimeType(avail.ChangedTime.Unix()),
		ReservePercent:       avail.ReservePercent,
		StatWAvail:           optionalPowerPair(avail.EstimatedWAvailValue, avail.EstimatedWAvailMultiplier),
	}
	response.XMLOK(w, &out)
}

// PutAvailability handles PUT /edev/{siteID}/der/1/dera.
func (h *DERHandler) PutAvailability(w http.ResponseWriter, r *http.Request) {
	siteID, err := h.siteFromRequest(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	var body sep2.DERAvailability
	if err := decodeXML(r, &body); err != nil {
		response.XMLError(w, err)
		return
	}
	der, err := h.siteDER(r, siteID, true)
	if err != nil {
		response.XMLError(w, err)
		return
	}

	avail := &models.SiteDERAvailability{
		SiteDERID:               der.ID,
		ChangedTime:             h.now(),
		AvailabilityDurationSec: body.AvailabilityDuration,
		ReservePercent:          body.ReservePercent,
	}
	avail.EstimatedWAvailValue, avail.EstimatedWAvailMultiplier = splitActivePower(body.StatWAvail)

	if err := h.ders.UpsertAvailability(r.Context(), avail); err != nil {
		response.XMLError(w, err)
		return
	}
	response.XMLCreated(w, h.hrefs.DERAvailability(siteID))
}

// GetStatus handles GET /edev/{siteID}/der/1/ders.
func (h *DERHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	siteID, err := h.siteFromRequest(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	der, err := h.siteDER(r, siteID, false)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	status, err := h.ders.GetStatus(r.Context(), der.ID)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	if status == nil {
		response.XMLError(w, apierrors.ErrNotFound)
		return
	}

	out := sep2.DERStatus{
		Href:        h.hrefs.DERStatus(siteID),
		ReadingTime: sep2.TimeType(status.ChangedTime.Unix()),
	}
	if status.GenConnectStatus != nil {
		out.GenConnectStatus = &sep2.ConnectStatusType{
			DateTime: statusTime(status.GenConnectStatusTime, status.ChangedTime),
			Value:    *status.GenConnectStatus,
		}
	}
	if status.InverterStatus != nil {
		out.InverterStatus = &sep2.ConnectStatusType{
			DateTime: statusTime(status.InverterStatusTime, status.ChangedTime),
			Value:    strconv.FormatInt(int64(*status.InverterStatus), 10),
		}
	}
	if status.OperationalModeStatus != nil {
		out.OperationalModeStatus = &sep2.ConnectStatusType{
			DateTime: statusTime(status.OperationalModeStatusTime, status.ChangedTime),
			Value:    strconv.FormatInt(int64(*status.OperationalModeStatus), 10),
		}
	}
	response.XMLOK(w, &out)
}

// PutStatus handles PUT /edev/{siteID}/der/1/ders.
func (h *DERHandler) PutStatus(w http.ResponseWriter, r *http.Request) {
	siteID, err := h.siteFromRequest(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	var body sep2.DERStatus
	if err := decodeXML(r, &body); err != nil {
		response.XMLError(w, err)
		return
	}
	der, err := h.siteDER(r, siteID, true)
	if err != nil {
		response.XMLError(w, err)
		return
	}

	status := &models.SiteDERStatus{
		SiteDERID:   der.ID,
		ChangedTime: h.now(),
	}
	if body.GenConnectStatus != nil {
		value := body.GenConnectStatus.Value
		at := time.Unix(int64(body.GenConnectStatus.DateTime), 0)
		status.GenConnectStatus = &value
		status.GenConnectStatusTime = &at
	}
	if body.InverterStatus != nil {
		parsed, err := strconv.ParseInt(body.InverterStatus.Value, 10, 32)
		if err != nil {
			response.XMLError(w, apierrors.NewValidationError("inverterStatus", "value must be numeric"))
			return
		}
		value := int32(parsed)
		at := time.Unix(int64(body.InverterStatus.DateTime), 0)
		status.InverterStatus = &value
		status.InverterStatusTime = &at
	}
	if body.OperationalModeStatus != nil {
		parsed, err := strconv.ParseInt(body.OperationalModeStatus.Value, 10, 32)
		if err != nil {
			response.XMLError(w, apierrors.NewValidationError("operationalModeStatus", "value must be numeric"))
			return
		}
		value := int32(parsed)
		at := time.Unix(int64(body.OperationalModeStatus.DateTime), 0)
		status.OperationalModeStatus = &value
		status.OperationalModeStatusTime = &at
	}

	if err := h.ders.UpsertStatus(r.Context(), status); err != nil {
		response.XMLError(w, err)
		return
	}
	response.XMLCreated(w, h.hrefs.DERStatus(siteID))
}

func statusTime(at *time.Time, fallback time.Time) sep2.TimeType {
	if at != nil {
		return sep2.TimeType(at.Unix())
	}
	return sep2.TimeType(fallback.Unix())
}
