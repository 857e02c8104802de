package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gridmesh/csip-core/internal/models"
	apierrors "github.com/gridmesh/csip-core/internal/pkg/errors"
	"github.com/gridmesh/csip-core/internal/pkg/response"
	"github.com/gridmesh/csip-core/internal/repository"
	"github.com/gridmesh/csip-core/internal/service"
)

// AdminHandler serves the JSON management API the utility's calculation
// engine and operators drive the server with.
type AdminHandler struct {
	aggregators  service.AggregatorService
	registration service.RegistrationService
	does         service.DoeService
	tariffs      service.TariffService
	runtime      service.RuntimeConfigService
	sites        repository.SiteRepository
	doeRepo      repository.DoeRepository
	transmitLogs repository.TransmitLogRepository
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(
	aggregators service.AggregatorService,
	registration service.RegistrationService,
	does service.DoeService,
	tariffs service.TariffService,
	runtime service.RuntimeConfigService,
	sites repository.SiteRepository,
	doeRepo repository.DoeRepository,
	transmitLogs repository.TransmitLogRepository,
) *AdminHandler {
	return &AdminHandler{
		aggregators:  aggregators,
		registration: registration,
		does:         does,
		tariffs:      tariffs,
		runtime:      runtime,
		sites:        sites,
		doeRepo:      doeRepo,
		transmitLogs: transmitLogs,
	}
}

// Routes returns a chi router with the admin routes, mounted at /admin.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/aggregators", h.CreateAggregator)
	r.Get("/aggregators", h.ListAggregators)
	r.Get("/aggregators/{id}", h.GetAggregator)
	r.Get("/aggregators/{id}/domains", h.ListAggregatorDomains)
	r.Post("/aggregators/{id}/domains", h.AddAggregatorDomain)
	r.Post("/aggregators/{id}/certificates", h.AssignCertificate)

	r.Post("/sites", h.CreateSite)
	r.Get("/sites", h.ListSites)
	r.Get("/sites/deleted", h.ListDeletedSites)

	r.Post("/control-groups", h.CreateControlGroup)
	r.Get("/control-groups", h.ListControlGroups)
	r.Get("/control-groups/{id}", h.GetControlGroup)
	r.Put("/control-groups/{id}", h.UpdateControlGroup)

	r.Post("/does", h.UpsertDoes)
	r.Get("/does", h.ListDoes)
	r.Get("/does/archive", h.ListDoeArchive)
	r.Post("/default-site-controls", h.UpsertDefaultSiteControls)

	r.Post("/calculation-logs", h.CreateCalculationLog)
	r.Get("/calculation-logs/{id}", h.GetCalculationLog)

	r.Post("/tariffs", h.CreateTariff)
	r.Get("/tariffs", h.ListTariffs)
	r.Post("/rates", h.UpsertRates)
	r.Get("/rates/archive", h.ListRateArchive)

	r.Get("/config", h.GetRuntimeConfig)
	r.Put("/config", h.UpdateRuntimeConfig)

	r.Get("/notifications/{notificationID}/attempts", h.ListTransmitAttempts)

	return r
}

// jsonPagination parses the admin limit/offset query parameters.
func jsonPagination(r *http.Request) (limit, offset int) {
	limit, offset = defaultPageLimit, 0
	q := r.URL.Query()
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 && v <= 1000 {
		limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

// archivePeriod parses the period_start / period_end query parameters.
func archivePeriod(r *http.Request) (repository.ArchivePeriod, error) {
	q := r.URL.Query()
	start, err := time.Parse(time.RFC3339, q.Get("period_start"))
	if err != nil {
		return repository.ArchivePeriod{}, apierrors.NewValidationError("period_start", "must be RFC3339")
	}
	end, err := time.Parse(time.RFC3339, q.Get("period_end"))
	if err != nil {
		return repository.ArchivePeriod{}, apierrors.NewValidationError("period_end", "must be RFC3339")
	}
	return repository.ArchivePeriod{
		Start:       start,
		End:         end,
		DeletedOnly: q.Get("deleted_only") == "true",
	}, nil
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return apierrors.ErrBadRequest.WithMessage("invalid request body")
	}
	return nil
}

// listEnvelope is the standard paged JSON list shape.
type listEnvelope struct {
	Total   int `json:"total"`
	Results any `json:"results"`
}

// CreateAggregator handles POST /admin/aggregators.
func (h *AdminHandler) CreateAggregator(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAggregatorRequest
	if err := decodeJSON(r, &req); err != nil {
		response.JSONError(w, err)
		return
	}
	agg, err := h.aggregators.Create(r.Context(), &req)
	if err != nil {
		response.JSONError(w, err)
		return
	}
	response.Created(w, agg)
}

// ListAggregators handles GET /admin/aggregators.
func (h *AdminHandler) ListAggregators(w http.ResponseWriter, r *http.Request) {
	aggs, err := h.aggregators.List(r.Context())
	if err != nil {
		response.JSONError(w, err)
		return
	}
	response.OK(w, listEnvelope{Total: len(aggs), Results: aggs})
}

// GetAggregator handles GET /admin/aggregators/{id}.
func (h *AdminHandler) GetAggregator(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		response.JSONError(w, err)
		return
	}
	agg, err := h.aggregators.Get(r.Context(), id)
	if err != nil {
		response.JSONError(w, err)
		return
	}
	response.OK(w, agg)
}

// ListAggregatorDomains handles GET /admin/aggregators/{id}/domains.
func (h *AdminHandler) ListAggregatorDomains(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		response.JSONError(w, err)
		return
	}
	domains, err := h.aggregators.ListDomains(r.Context(), id)
	if err != nil {
		response.JSONError(w, err)
		return
	}
	response.OK(w, listEnvelope{Total: len(domains), Results: domains})
}

// AddAggregatorDomain handles POST /admin/aggregators/{id}/domains.
func (h *AdminHandler) AddAggregatorDomain(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		response.JSONError(w, err)
		return
	}
	var req struct {
		Domain string `json:"domain"`
	}
	if err := decodeJSON(r, &req); err != nil {
		response.JSONError(w, err)
		return
	}
	if req.Domain == "" {
		response.JSONError(w, apierrors.NewValidationError("domain", "domain is required"))
		return
	}
	if err := h.aggregators.AddDomain(r.Context(), id, req.Domain); err != nil {
		response.JSONError(w, err)
		return
	}
	response.Created(w, map[string]string{"domain": req.Domain})
}

// AssignCertificate handles POST /admin/aggregators/{id}/certificates.
func (h *AdminHandler) AssignCertificate(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		response.JSONError(w, err)
		return
	}
	var req models.AssignCertificateRequest
	if err := decodeJSON(r, &req); err != nil {
		response.JSONError(w, err)
		return
	}
	cert, err := h.aggregators.AssignCertificate(r.Context(), id, &req)
	if err != nil {
		response.JSONError(w, err)
		return
	}
	response.Created(w, cert)
}

// CreateSite handles POST /admin/sites.
func (h *AdminHandler) CreateSite(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSiteRequest
	if err := decodeJSON(r, &req); err != nil {
		response.JSONError(w, err)
		return
	}
	site, err := h.registration.CreateAdmin(r.Context(), &req)
	if err != nil {
		response.JSONError(w, err)
		return
	}
	response.Created(w, site)
}

// ListSites handles GET /admin/sites?aggregator_id=N.
func (h *AdminHandler) ListSites(w http.ResponseWriter, r *http.Request) {
	aggregatorID, err := strconv.ParseInt(r.URL.Query().Get("aggregator_id"), 10, 64)
	if err != nil {
		response.JSONError(w, apierrors.NewValidationError("aggregator_id", "aggregator_id is required"))
		return
	}
	limit, offset := jsonPagination(r)

	changedAfter := time.Unix(0, 0)
	if v, err := strconv.ParseInt(r.URL.Query().Get("changed_after"), 10, 64); err == nil && v > 0 {
		changedAfter = time.Unix(v, 0)
	}

	total, err := h.sites.Count(r.Context(), aggregatorID, changedAfter)
	if err != nil {
		response.JSONError(w, err)
		return
	}
	sites, err := h.sites.List(r.Context(), aggregatorID, changedAfter, limit, offset)
	if err != nil {
		response.JSONError(w, err)
		return
	}
	response.OK(w, listEnvelope{Total: total, Results: sites})
}

// ListDeletedSites handles GET /admin/sites/deleted: terminal site archive
// rows inside a period.
func (h *AdminHandler) ListDeletedSites(w http.ResponseWriter, r *http.Request) {
	period, err := archivePeriod(r)
	if err != nil {
		response.JSONError(w, err)
		return
	}
	period.DeletedOnly = true
	limit, offset := jsonPagination(r)

	total, err := h.sites.CountDeletedForPeriod(r.Context(), period)
	if err != nil {
		response.JSONError(w, err)
		return
	}
	rows, err := h.sites.SelectDeletedForPeriod(r.Context(), period, limit, offset)
	if err != nil {
		response.JSONError(w, err)
		return
	}
	response.OK(w, listEnvelope{Total: total, Results: rows})
}

// CreateControlGroup handles POST /admin/control-groups.
func (h *AdminHandler) CreateControlGroup(w http.ResponseWriter, r *http.Request) {
	var group models.SiteControlGroup
	if err := decodeJSON(r, &group); err != nil {
		response.JSONError(w, err)
		return
	}
	if err := h.does.CreateControlGroup(r.Context(), &group); err != nil {
		response.JSONError(w, err)
		return
	}
	response.Created(w, &group)
}

// ListControlGroups handles GET /admin/control-groups.
func (h *AdminHandler) ListControlGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.does.ListAllControlGroups(r.Context())
	if err != nil {
		response.JSONError(w, err)
		return
	}
	response.OK(w, listEnvelope{Total: len(groups), Results: groups})
}

// GetControlGroup handles GET /admin/control-groups/{id}.
func (h *AdminHandler) GetControlGroup(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		response.JSONError(w, err)
		return
	}
	group, err := h.does.GetControlGroup(r.Context(), id)
	if err != nil {
		response.JSONError(w, err)
		return
	}
	response.OK(w, group)
}

// UpdateControlGroup handles PUT /admin/control-groups/{id}: the
// group-level default limits. A change bumps the group version and fans
// out a default-control notification.
func (h *AdminHandler) UpdateControlGroup(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		response.JSONError(w, err)
		return
	}
	var group models.SiteControlGroup
	if err := decodeJSON(r, &group); err != nil {
		response.JSONError(w, err)
		return
	}
	group.ID = id
	if err := h.does.UpdateControlGroupDefaults(r.Context(), &group); err != nil {
		response.JSONError(w, err)
		return
	}
	response.OK(w, &group)
}

// UpsertDoes handles POST /admin/does: a bulk batch of envelopes sharing
// one changed_time.
func (h *AdminHandler) UpsertDoes(w http.ResponseWriter, r *http.Request) {
	var reqs []*models.UpsertDoeRequest
	if err := decodeJSON(r, &reqs); err != nil {
		response.JSONError(w, err)
		return
	}
	if len(reqs) == 0 {
		response.JSONError(w, apierrors.NewValidationError("does", "at least one envelope is required"))
		return
	}
	count, err := h.does.UpsertEnvelopes(r.Context(), reqs)
	if err != nil {
		response.JSONError(w, err)
		return
	}
	response.Created(w, map[string]int{"inserted": count})
}

// ListDoes handles GET /admin/does?group_id=N&site_id=N.
func (h *AdminHandler) ListDoes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	groupID, err := strconv.ParseInt(q.Get("group_id"), 10, 64)
	if err != nil {
		response.JSONError(w, apierrors.NewValidationError("group_id", "group_id is required"))
		return
	}
	siteID, err := strconv.ParseInt(q.Get("site_id"), 10, 64)
	if err != nil {
		response.JSONError(w, apierrors.NewValidationError("site_id", "site_id is required"))
		return
	}
	limit, offset := jsonPagination(r)

	changedAfter := time.Unix(0, 0)
	if v, err := strconv.ParseInt(q.Get("changed_after"), 10, 64); err == nil && v > 0 {
		changedAfter = time.Unix(v, 0)
	}

	total, err := h.doeRepo.CountForSite(r.Context(), groupID, siteID, changedAfter)
	if err != nil {
		response.JSONError(w, err)
		return
	}
	does, err := h.doeRepo.SelectForSite(r.Context(), groupID, siteID, changedAfter, limit, offset)
	if err != nil {
		response.JSONError(w, err)
		return
	}
	response.OK(w, listEnvelope{Total: total, Results: does})
}

// ListDoeArchive handles GET /admin/does/archive: point-in-time envelope
// rows for a period, optionally deleted rows only.
func (h *AdminHandler) ListDoeArchive(w http.ResponseWriter, r *http.Request) {
	period, err := archivePeriod(r)
	if err != nil {
		response.JSONError(w, err)
		return
	}
	limit, offset := jsonPagination(r)

	total, err := h.does.ArchiveCountForPeriod(r.Context(), period)
	if err != nil {
		response.JSONError(w, err)
		return
	}
	rows, err := h.does.ArchiveForPeriod(r.Context(), period, limit, offset)
	if err != nil {
		response.JSONError(w, err)
		return
	}
	response.OK(w, listEnvelope{Total: total, Results: rows})
}

// UpsertDefaultSiteControls handles POST /admin/default-site-controls.
func (h *AdminHandler) UpsertDefaultSiteControls(w http.ResponseWriter, r *http.Request) {
	var controls []*models.DefaultSiteControl
	if err := decodeJSON(r, &controls); err != nil {
		response.JSONError(w, err)
		return
	}
	if len(controls) == 0 {
		response.JSONError(w, apierrors.NewValidationError("controls", "at least one control is required"))
		return
	}
	if err := h.does.UpsertDefaultSiteControls(r.Context(), controls); err != nil {
		response.JSONError(w, err)
		return
	}
	response.Created(w, map[string]int{"inserted": len(controls)})
}

// CreateCalculationLog handles POST /admin/calculation-logs.
func (h *AdminHandler) CreateCalculationLog(w http.ResponseWriter, r *http.Request) {
	var log models.CalculationLog
	if err := decodeJSON(r, &log); err != nil {
		response.JSONError(w, err)
		return
	}
	if err := h.does.CreateCalculationLog(r.Context(), &log); err != nil {
		response.JSONError(w, err)
		return
	}
	response.Created(w, &log)
}

// GetCalculationLog handles GET /admin/calculation-logs/{id}.
func (h *AdminHandler) GetCalculationLog(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		response.JSONError(w, err)
		return
	}
	log, err := h.does.GetCalculationLog(r.Context(), id)
	if err != nil {
		response.JSONError(w, err)
		return
	}
	response.OK(w, log)
}

// CreateTariff handles POST /admin/tariffs.
func (h *AdminHandler) CreateTariff(w http.ResponseWriter, r *http.Request) {
	var tariff models.Tariff
	if err := decodeJSON(r, &tariff); err != nil {
		response.JSONError(w, err)
		return
	}
	if err := h.tariffs.CreateTariff(r.Context(), &tariff); err != nil {
		response.JSONError(w, err)
		return
	}
	response.Created(w, &tariff)
}

// ListTariffs handles GET /admin/tariffs.
func (h *AdminHandler) ListTariffs(w http.ResponseWriter, r *http.Request) {
	limit, offset := jsonPagination(r)
	tariffs, total, err := h.tariffs.ListTariffs(r.Context(), time.Unix(0, 0), limit, offset)
	if err != nil {
		response.JSONError(w, err)
		return
	}
	response.OK(w, listEnvelope{Total: total, Results: tariffs})
}

// UpsertRates handles POST /admin/rates: a bulk batch of calculated
// prices sharing one changed_time.
func (h *AdminHandler) UpsertRates(w http.ResponseWriter, r *http.Request) {
	var reqs []*service.UpsertRateRequest
	if err := decodeJSON(r, &reqs); err != nil {
		response.JSONError(w, err)
		return
	}
	if len(reqs) == 0 {
		response.JSONError(w, apierrors.NewValidationError("rates", "at least one rate is required"))
		return
	}
	count, err := h.tariffs.UpsertRates(r.Context(), reqs)
	if err != nil {
		response.JSONError(w, err)
		return
	}
	response.Created(w, map[string]int{"inserted": count})
}

// ListRateArchive handles GET /admin/rates/archive.
func (h *AdminHandler) ListRateArchive(w http.ResponseWriter, r *http.Request) {
	period, err := archivePeriod(r)
	if err != nil {
		response.JSONError(w, err)
		return
	}
	limit, offset := jsonPagination(r)

	total, err := h.tariffs.ArchiveCountForPeriod(r.Context(), period)
	if err != nil {
		response.JSONError(w, err)
		return
	}
	rows, err := h.tariffs.ArchiveForPeriod(r.Context(), period, limit, offset)
	if err != nil {
		response.JSONError(w, err)
		return
	}
	response.OK(w, listEnvelope{Total: total, Results: rows})
}

// GetRuntimeConfig handles GET /admin/config.
func (h *AdminHandler) GetRuntimeConfig(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.runtime.Current(r.Context()))
}

// UpdateRuntimeConfig handles PUT /admin/config.
func (h *AdminHandler) UpdateRuntimeConfig(w http.ResponseWriter, r *http.Request) {
	var cfg models.RuntimeServerConfig
	if err := decodeJSON(r, &cfg); err != nil {
		response.JSONError(w, err)
		return
	}
	if err := h.runtime.Update(r.Context(), &cfg); err != nil {
		response.JSONError(w, err)
		return
	}
	response.OK(w, &cfg)
}

// ListTransmitAttempts handles GET /admin/notifications/{id}/attempts:
// the delivery log of one notification across its retries.
func (h *AdminHandler) ListTransmitAttempts(w http.ResponseWriter, r *http.Request) {
	notificationID, err := uuid.Parse(chi.URLParam(r, "notificationID"))
	if err != nil {
		response.JSONError(w, apierrors.NewValidationError("notificationID", "must be a UUID"))
		return
	}
	logs, err := h.transmitLogs.ListByNotification(r.Context(), notificationID)
	if err != nil {
		response.JSONError(w, err)
		return
	}
	response.OK(w, listEnvelope{Total: len(logs), Results: logs})
}
