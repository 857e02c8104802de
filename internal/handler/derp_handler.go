package handler

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/gridmesh/csip-core/internal/models"
	"github.com/gridmesh/csip-core/internal/mrid"
	apierrors "github.com/gridmesh/csip-core/internal/pkg/errors"
	"github.com/gridmesh/csip-core/internal/pkg/response"
	"github.com/gridmesh/csip-core/internal/sep2"
	"github.com/gridmesh/csip-core/internal/service"
)

// responseRequired requests a message-received response for served events.
const responseRequired = "01"

// DERProgramHandler serves function set assignments, DER programs and the
// dynamic operating envelopes underneath them.
type DERProgramHandler struct {
	does    service.DoeService
	tariffs service.TariffService
	runtime service.RuntimeConfigService
	hrefs   *sep2.Hrefs
	codec   *mrid.Codec
	now     func() time.Time
}

// NewDERProgramHandler creates a new DER program handler.
func NewDERProgramHandler(
	does service.DoeService,
	tariffs service.TariffService,
	runtime service.RuntimeConfigService,
	hrefs *sep2.Hrefs,
	codec *mrid.Codec,
) *DERProgramHandler {
	return &DERProgramHandler{
		does:    does,
		tariffs: tariffs,
		runtime: runtime,
		hrefs:   hrefs,
		codec:   codec,
		now:     time.Now,
	}
}

// FSARoutes returns the routes mounted at /edev/{siteID}/fsa.
func (h *DERProgramHandler) FSARoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListAssignments)
	r.Get("/{fsaID}", h.GetAssignment)
	r.Get("/{fsaID}/derp", h.ListPrograms)
	return r
}

// ProgramRoutes returns the routes mounted at /edev/{siteID}/derp.
func (h *DERProgramHandler) ProgramRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{groupID}", h.GetProgram)
	r.Get("/{groupID}/derc", h.ListControls)
	// Alias kept for clients that poll the active view directly. The main
	// derc list already applies the in-force predicate.
	r.Get("/{groupID}/derc/active", h.ListControls)
	r.Get("/{groupID}/derc/{doeID}", h.GetControl)
	r.Get("/{groupID}/dderc", h.GetDefaultControl)
	return r
}

func (h *DERProgramHandler) siteFromRequest(r *http.Request) (int64, error) {
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

// fsaIDs collects the distinct function set assignment ids referenced by
// control groups and tariffs, sorted ascending.
func (h *DERProgramHandler) fsaIDs(r *http.Request) ([]int32, error) {
	groups, err := h.does.ListAllControlGroups(r.Context())
	if err != nil {
		return nil, err
	}
	tariffs, _, err := h.tariffs.ListTariffs(r.Context(), time.Unix(0, 0), defaultPageLimit, 0)
	if err != nil {
		return nil, err
	}

	seen := make(map[int32]struct{})
	for _, g := range groups {
		seen[g.FsaID] = struct{}{}
	}
	for _, t := range tariffs {
		seen[t.FsaID] = struct{}{}
	}

	ids := make([]int32, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (h *DERProgramHandler) assignment(siteID int64, fsaID int32) sep2.FunctionSetAssignments {
	return sep2.FunctionSetAssignments{
		Href:                  h.hrefs.FunctionSetAssignments(siteID, fsaID),
		MRID:                  h.codec.EncodeFunctionSetAssignment(siteID, int64(fsaID)),
		DERProgramListLink:    &sep2.ListLink{Href: h.hrefs.DERProgramList(siteID, fsaID)},
		TariffProfileListLink: &sep2.ListLink{Href: h.hrefs.TariffProfileList(siteID)},
		TimeLink:              &sep2.Link{Href: h.hrefs.Time()},
	}
}

// ListAssignments handles GET /edev/{siteID}/fsa.
func (h *DERProgramHandler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	siteID, err := h.siteFromRequest(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	ids, err := h.fsaIDs(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}

	cfg := h.runtime.Current(r.Context())
	list := sep2.FunctionSetAssignmentsList{
		Href:     h.hrefs.FunctionSetAssignmentsList(siteID),
		All:      len(ids),
		Results:  len(ids),
		PollRate: intPtr(int(models.PollrateOr(cfg.FsalPollrateSeconds, models.DefaultPollrateSeconds))),
	}
	for _, id := range ids {
		list.Assignments = append(list.Assignments, h.assignment(siteID, id))
	}
	response.XMLOK(w, &list)
}

// GetAssignment handles GET /edev/{siteID}/fsa/{fsaID}.
func (h *DERProgramHandler) GetAssignment(w http.ResponseWriter, r *http.Request) {
	siteID, err := h.siteFromRequest(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	fsaID, err := urlInt32(r, "fsaID")
	if err != nil {
		response.XMLError(w, err)
		return
	}
	ids, err := h.fsaIDs(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	for _, id := range ids {
		if id == fsaID {
			fsa := h.assignment(siteID, fsaID)
			response.XMLOK(w, &fsa)
			return
		}
	}
	response.XMLError(w, apierrors.ErrNotFound)
}

func (h *DERProgramHandler) program(siteID int64, g *models.SiteControlGroup) sep2.DERProgram {
	return sep2.DERProgram{
		Href:                     h.hrefs.DERProgram(siteID, g.ID),
		MRID:                     h.codec.EncodeDERProgram(g.ID),
		Description:              g.Description,
		Primacy:                  int(g.Primacy),
		DefaultDERControlLink:    &sep2.Link{Href: h.hrefs.DefaultDERControl(siteID, g.ID)},
		DERControlListLink:       &sep2.ListLink{Href: h.hrefs.DERControlList(siteID, g.ID)},
		ActiveDERControlListLink: &sep2.ListLink{Href: h.hrefs.DERControlList(siteID, g.ID)},
	}
}

// ListPrograms handles GET /edev/{siteID}/fsa/{fsaID}/derp.
func (h *DERProgramHandler) ListPrograms(w http.ResponseWriter, r *http.Request) {
	siteID, err := h.siteFromRequest(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	fsaID, err := urlInt32(r, "fsaID")
	if err != nil {
		response.XMLError(w, err)
		return
	}

	groups, err := h.does.ListControlGroups(r.Context(), fsaID)
	if err != nil {
		response.XMLError(w, err)
		return
	}

	cfg := h.runtime.Current(r.Context())
	list := sep2.DERProgramList{
		Href:     h.hrefs.DERProgramList(siteID, fsaID),
		All:      len(groups),
		Results:  len(groups),
		PollRate: intPtr(int(models.PollrateOr(cfg.DerplPollrateSeconds, models.DefaultPollrateSeconds))),
	}
	for _, g := range groups {
		list.DERPrograms = append(list.DERPrograms, h.program(siteID, g))
	}
	response.XMLOK(w, &list)
}

// GetProgram handles GET /edev/{siteID}/derp/{groupID}.
func (h *DERProgramHandler) GetProgram(w http.ResponseWriter, r *http.Request) {
	siteID, err := h.siteFromRequest(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	groupID, err := urlID(r, "groupID")
	if err != nil {
		response.XMLError(w, err)
		return
	}

	group, err := h.does.GetControlGroup(r.Context(), groupID)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	program := h.program(siteID, group)
	response.XMLOK(w, &program)
}

// wattsPair renders a decimal watts quantity as a sep2 fixed-point value
// with two decimal places of precision.
func wattsPair(w *decimal.Decimal) *sep2.ActivePower {
	if w == nil {
		return nil
	}
	return &sep2.ActivePower{Multiplier: -2, Value: w.Shift(2).IntPart()}
}

func (h *DERProgramHandler) controlBase(doe *models.DynamicOperatingEnvelope) sep2.DERControlBase {
	return sep2.DERControlBase{
		OpModImpLimW:  wattsPair(doe.ImportLimitActiveWatts),
		OpModExpLimW:  wattsPair(doe.ExportLimitWatts),
		OpModGenLimW:  wattsPair(doe.GenerationLimitWatts),
		OpModLoadLimW: wattsPair(doe.LoadLimitWatts),
		OpModEnergize: doe.SetEnergized,
		RampTms:       doe.RampRatePercentPerSecond,
	}
}

func (h *DERProgramHandler) control(siteID, groupID int64, entry *models.DoeListEntry) sep2.DERControl {
	doe := &entry.DynamicOperatingEnvelope

	status := sep2.EventStatusScheduled
	statusTime := doe.ChangedTime
	now := h.now()
	switch {
	case entry.DeletedTime != nil:
		status = sep2.EventStatusCancelled
		statusTime = *entry.DeletedTime
	case doe.Superseded:
		status = sep2.EventStatusSuperseded
	case !now.Before(doe.StartTime) && now.Before(doe.EndTime):
		status = sep2.EventStatusActive
	}

	return sep2.DERControl{
		Href:         h.hrefs.DERControl(siteID, groupID, doe.ID),
		ReplyTo:      h.hrefs.ResponseList(siteID, sep2.ResponseSlugDoe),
		ResponseReq:  responseRequired,
		MRID:         h.codec.EncodeDynamicOperatingEnvelope(doe.ID),
		CreationTime: sep2.TimeType(doe.CreatedTime.Unix()),
		EventStatus: &sep2.EventStatus{
			CurrentStatus: status,
			DateTime:      sep2.TimeType(statusTime.Unix()),
		},
		Interval: &sep2.DateTimeInterval{
			Duration: int64(doe.DurationSeconds),
			Start:    sep2.TimeType(doe.StartTime.Unix()),
		},
		RandomizeStart: doe.RandomizeStartSeconds,
		ControlBase:    h.controlBase(doe),
	}
}

// ListControls handles GET /edev/{siteID}/derp/{groupID}/derc: envelopes in
// force now plus, when the client sends a watermark, those deleted since.
func (h *DERProgramHandler) ListControls(w http.ResponseWriter, r *http.Request) {
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
	groupID, err := urlID(r, "groupID")
	if err != nil {
		response.XMLError(w, err)
		return
	}
	p := parsePagination(r)

	entries, total, err := h.does.ActiveControls(r.Context(), sc, groupID, siteID, p.After, p.Limit, p.Start)
	if err != nil {
		response.XMLError(w, err)
		return
	}

	list := sep2.DERControlList{
		Href:    h.hrefs.DERControlList(siteID, groupID),
		All:     total,
		Results: len(entries),
	}
	for _, entry := range entries {
		list.DERControls = append(list.DERControls, h.control(siteID, groupID, entry))
	}
	response.XMLOK(w, &list)
}

// GetControl handles GET /edev/{siteID}/derp/{groupID}/derc/{doeID}.
// Deleted envelopes resolve from the archive and render as cancelled.
func (h *DERProgramHandler) GetControl(w http.ResponseWriter, r *http.Request) {
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
	groupID, err := urlID(r, "groupID")
	if err != nil {
		response.XMLError(w, err)
		return
	}
	doeID, err := urlID(r, "doeID")
	if err != nil {
		response.XMLError(w, err)
		return
	}

	doe, err := h.does.GetControl(r.Context(), sc, siteID, doeID)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	control := h.control(siteID, groupID, &models.DoeListEntry{DynamicOperatingEnvelope: *doe})
	response.XMLOK(w, &control)
}

// GetDefaultControl handles GET /edev/{siteID}/derp/{groupID}/dderc: the
// fallback control merged from config, group defaults and site overrides.
func (h *DERProgramHandler) GetDefaultControl(w http.ResponseWriter, r *http.Request) {
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
	groupID, err := urlID(r, "groupID")
	if err != nil {
		response.XMLError(w, err)
		return
	}

	merged, err := h.does.DefaultControl(r.Context(), sc, siteID)
	if err != nil {
		response.XMLError(w, err)
		return
	}

	dderc := sep2.DefaultDERControl{
		Href:     h.hrefs.DefaultDERControl(siteID, groupID),
		MRID:     h.codec.EncodeDefaultDOE(siteID),
		SetGradW: merged.RampRatePercent,
		ControlBase: sep2.DERControlBase{
			OpModImpLimW:  wattsPair(merged.ImportLimitWatts),
			OpModExpLimW:  wattsPair(merged.ExportLimitWatts),
			OpModGenLimW:  wattsPair(merged.GenerationLimitWatts),
			OpModLoadLimW: wattsPair(merged.LoadLimitWatts),
			OpModEnergize: merged.Energize,
		},
	}
	response.XMLOK(w, &dderc)
}
