package handler

import (
	"encoding/xml"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gridmesh/csip-core/internal/models"
	apierrors "github.com/gridmesh/csip-core/internal/pkg/errors"
	"github.com/gridmesh/csip-core/internal/pkg/response"
	"github.com/gridmesh/csip-core/internal/sep2"
	"github.com/gridmesh/csip-core/internal/service"
)

// MirrorUsagePointHandler serves the /mup metering mirror function set.
// Each mirror usage point maps onto one reading stream.
type MirrorUsagePointHandler struct {
	mups    service.MupService
	runtime service.RuntimeConfigService
	hrefs   *sep2.Hrefs
	now     func() time.Time
}

// NewMirrorUsagePointHandler creates a new mirror usage point handler.
func NewMirrorUsagePointHandler(mups service.MupService, runtime service.RuntimeConfigService, hrefs *sep2.Hrefs) *MirrorUsagePointHandler {
	return &MirrorUsagePointHandler{mups: mups, runtime: runtime, hrefs: hrefs, now: time.Now}
}

// Routes returns a chi router with the mirror routes, mounted at /mup.
func (h *MirrorUsagePointHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{mupID}", h.Get)
	r.Post("/{mupID}", h.PostReadings)
	r.Delete("/{mupID}", h.Delete)
	return r
}

func (h *MirrorUsagePointHandler) mirrorUsagePoint(t *models.SiteReadingType) sep2.MirrorUsagePoint {
	return sep2.MirrorUsagePoint{
		Href:                h.hrefs.MirrorUsagePoint(t.ID),
		MRID:                t.MRID,
		RoleFlags:           t.RoleFlags,
		ServiceCategoryKind: 0,
		Status:              1,
		MirrorMeterReadings: []sep2.MirrorMeterReading{{
			MRID: t.MRID,
			ReadingType: &sep2.ReadingType{
				AccumulationBehaviour: int(t.AccumulationBehaviour),
				DataQualifier:         int(t.DataQualifier),
				FlowDirection:         int(t.FlowDirection),
				IntervalLength:        int64(t.DefaultIntervalSeconds),
				Kind:                  int(t.Kind),
				Phase:                 int(t.Phase),
				PowerOfTenMultiplier:  int(t.PowerOfTenMultiplier),
				Uom:                   int(t.Uom),
			},
		}},
	}
}

// List handles GET /mup.
func (h *MirrorUsagePointHandler) List(w http.ResponseWriter, r *http.Request) {
	sc, err := requestScope(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	p := parsePagination(r)

	types, total, err := h.mups.List(r.Context(), sc, p.Limit, p.Start)
	if err != nil {
		response.XMLError(w, err)
		return
	}

	cfg := h.runtime.Current(r.Context())
	postRate := int(models.PollrateOr(cfg.MupPostrateSeconds, models.DefaultPollrateSeconds))

	list := sep2.MirrorUsagePointList{
		Href:     h.hrefs.MirrorUsagePointList(),
		All:      total,
		Results:  len(types),
		PollRate: &postRate,
	}
	for _, t := range types {
		list.MirrorUsagePoints = append(list.MirrorUsagePoints, h.mirrorUsagePoint(t))
	}
	response.XMLOK(w, &list)
}

// Create handles POST /mup: register or refresh a reading stream. The
// embedded ReadingType pins the stream's natural key.
func (h *MirrorUsagePointHandler) Create(w http.ResponseWriter, r *http.Request) {
	sc, err := requestScope(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}

	var body sep2.MirrorUsagePoint
	if err := decodeXML(r, &body); err != nil {
		response.XMLError(w, err)
		return
	}
	if len(body.MirrorMeterReadings) == 0 || body.MirrorMeterReadings[0].ReadingType == nil {
		response.XMLError(w, apierrors.NewValidationError("MirrorMeterReading", "a MirrorMeterReading with a ReadingType is required"))
		return
	}

	mmr := body.MirrorMeterReadings[0]
	rt := mmr.ReadingType
	t := &models.SiteReadingType{
		MRID:                   mmr.MRID,
		Uom:                    int32(rt.Uom),
		DataQualifier:          int32(rt.DataQualifier),
		FlowDirection:          int32(rt.FlowDirection),
		AccumulationBehaviour:  int32(rt.AccumulationBehaviour),
		Kind:                   int32(rt.Kind),
		Phase:                  int32(rt.Phase),
		PowerOfTenMultiplier:   int32(rt.PowerOfTenMultiplier),
		DefaultIntervalSeconds: int32(rt.IntervalLength),
		RoleFlags:              body.RoleFlags,
	}
	if t.MRID == "" {
		t.MRID = body.MRID
	}

	stored, created, err := h.mups.UpsertReadingType(r.Context(), sc, body.DeviceLFDI, t)
	if err != nil {
		response.XMLError(w, err)
		return
	}

	w.Header().Set("Location", h.hrefs.MirrorUsagePoint(stored.ID))
	if created {
		w.WriteHeader(http.StatusCreated)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Get handles GET /mup/{mupID}.
func (h *MirrorUsagePointHandler) Get(w http.ResponseWriter, r *http.Request) {
	sc, err := requestScope(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	mupID, err := urlID(r, "mupID")
	if err != nil {
		response.XMLError(w, err)
		return
	}

	t, err := h.mups.Get(r.Context(), sc, mupID)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	mup := h.mirrorUsagePoint(t)
	response.XMLOK(w, &mup)
}

// PostReadings handles POST /mup/{mupID}: a batch of readings, either a
// MirrorMeterReadingList or a single MirrorMeterReading. Entries whose MRID
// names a sibling stream of the same site are routed to that stream.
func (h *MirrorUsagePointHandler) PostReadings(w http.ResponseWriter, r *http.Request) {
	sc, err := requestScope(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	mupID, err := urlID(r, "mupID")
	if err != nil {
		response.XMLError(w, err)
		return
	}

	readings, err := h.decodeReadingBatch(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	if len(readings) == 0 {
		response.XMLError(w, apierrors.NewValidationError("Reading", "at least one Reading is required"))
		return
	}

	if err := h.mups.IngestReadings(r.Context(), sc, mupID, readings); err != nil {
		response.XMLError(w, err)
		return
	}
	response.XMLCreated(w, h.hrefs.MirrorUsagePoint(mupID))
}

// decodeReadingBatch accepts both POST body shapes and flattens them into
// ingest entries.
func (h *MirrorUsagePointHandler) decodeReadingBatch(r *http.Request) ([]service.IngestReading, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, apierrors.ErrBadRequest.WithMessage("unreadable request body")
	}

	var entries []sep2.MirrorMeterReading
	var list sep2.MirrorMeterReadingList
	if xml.Unmarshal(body, &list) == nil && len(list.MirrorMeterReadings) > 0 {
		entries = list.MirrorMeterReadings
	} else {
		var single sep2.MirrorMeterReading
		if err := xml.Unmarshal(body, &single); err != nil {
			return nil, apierrors.ErrBadRequest.WithMessage("malformed XML body")
		}
		entries = []sep2.MirrorMeterReading{single}
	}

	var out []service.IngestReading
	for _, mmr := range entries {
		if mmr.Reading == nil {
			continue
		}
		entry := service.IngestReading{
			ReadingTypeMRID: mmr.MRID,
			QualityFlags:    mmr.Reading.QualityFlags,
			Value:           mmr.Reading.Value,
		}
		if mmr.Reading.LocalID != "" {
			localID := mmr.Reading.LocalID
			entry.LocalID = &localID
		}
		if mmr.Reading.TimePeriod != nil {
			entry.TimePeriodStart = time.Unix(int64(mmr.Reading.TimePeriod.Start), 0)
			entry.TimePeriodSecs = int32(mmr.Reading.TimePeriod.Duration)
		}
		out = append(out, entry)
	}
	return out, nil
}

// Delete handles DELETE /mup/{mupID}.
func (h *MirrorUsagePointHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sc, err := requestScope(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	mupID, err := urlID(r, "mupID")
	if err != nil {
		response.XMLError(w, err)
		return
	}

	if err := h.mups.Delete(r.Context(), sc, mupID); err != nil {
		response.XMLError(w, err)
		return
	}
	response.NoContent(w)
}
