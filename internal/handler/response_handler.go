package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gridmesh/csip-core/internal/mrid"
	apierrors "github.com/gridmesh/csip-core/internal/pkg/errors"
	"github.com/gridmesh/csip-core/internal/pkg/response"
	"github.com/gridmesh/csip-core/internal/sep2"
	"github.com/gridmesh/csip-core/internal/service"
)

// responseSetSlugs maps the path slugs onto their set identities.
var responseSetSlugs = map[string]mrid.ResponseSetType{
	sep2.ResponseSlugDoe:   mrid.ResponseSetDynamicOperatingEnvelopes,
	sep2.ResponseSlugPrice: mrid.ResponseSetTariffGeneratedRates,
}

// ResponseHandler serves the response sets devices acknowledge controls
// and prices through.
type ResponseHandler struct {
	responses    service.ResponseService
	registration service.RegistrationService
	hrefs        *sep2.Hrefs
	codec        *mrid.Codec
}

// NewResponseHandler creates a new response handler.
func NewResponseHandler(
	responses service.ResponseService,
	registration service.RegistrationService,
	hrefs *sep2.Hrefs,
	codec *mrid.Codec,
) *ResponseHandler {
	return &ResponseHandler{
		responses:    responses,
		registration: registration,
		hrefs:        hrefs,
		codec:        codec,
	}
}

// Routes returns a chi router with the response routes, mounted at
// /edev/{siteID}/rsps.
func (h *ResponseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListSets)
	r.Get("/{slug}", h.GetSet)
	r.Get("/{slug}/rsp", h.ListResponses)
	r.Post("/{slug}/rsp", h.CreateResponse)
	r.Get("/{slug}/rsp/{rspID}", h.GetResponse)
	return r
}

func (h *ResponseHandler) siteFromRequest(r *http.Request) (int64, error) {
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

func (h *ResponseHandler) responseSet(siteID int64, slug string, set mrid.ResponseSetType) sep2.ResponseSet {
	return sep2.ResponseSet{
		Href:             h.hrefs.ResponseSet(siteID, slug),
		MRID:             h.codec.EncodeResponseSet(set),
		Description:      slug,
		ResponseListLink: &sep2.ListLink{Href: h.hrefs.ResponseList(siteID, slug)},
	}
}

// ListSets handles GET /edev/{siteID}/rsps.
func (h *ResponseHandler) ListSets(w http.ResponseWriter, r *http.Request) {
	siteID, err := h.siteFromRequest(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}

	list := sep2.ResponseSetList{
		Href:    h.hrefs.ResponseSetList(siteID),
		All:     len(responseSetSlugs),
		Results: len(responseSetSlugs),
		ResponseSets: []sep2.ResponseSet{
			h.responseSet(siteID, sep2.ResponseSlugDoe, mrid.ResponseSetDynamicOperatingEnvelopes),
			h.responseSet(siteID, sep2.ResponseSlugPrice, mrid.ResponseSetTariffGeneratedRates),
		},
	}
	response.XMLOK(w, &list)
}

// GetSet handles GET /edev/{siteID}/rsps/{slug}.
func (h *ResponseHandler) GetSet(w http.ResponseWriter, r *http.Request) {
	siteID, err := h.siteFromRequest(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	slug := chi.URLParam(r, "slug")
	set, ok := responseSetSlugs[slug]
	if !ok {
		response.XMLError(w, apierrors.ErrNotFound)
		return
	}
	rs := h.responseSet(siteID, slug, set)
	response.XMLOK(w, &rs)
}

// ListResponses handles GET /edev/{siteID}/rsps/{slug}/rsp.
func (h *ResponseHandler) ListResponses(w http.ResponseWriter, r *http.Request) {
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
	slug := chi.URLParam(r, "slug")
	p := parsePagination(r)

	stored, total, err := h.responses.List(r.Context(), sc, siteID, slug, p.Limit, p.Start)
	if err != nil {
		response.XMLError(w, err)
		return
	}

	site, err := h.registration.Get(r.Context(), sc, siteID)
	if err != nil {
		response.XMLError(w, err)
		return
	}

	list := sep2.ResponseList{
		Href:    h.hrefs.ResponseList(siteID, slug),
		All:     total,
		Results: len(stored),
	}
	for _, resp := range stored {
		list.Responses = append(list.Responses, h.storedResponse(siteID, slug, site.LFDI, resp))
	}
	response.XMLOK(w, &list)
}

// GetResponse handles GET /edev/{siteID}/rsps/{slug}/rsp/{rspID}.
func (h *ResponseHandler) GetResponse(w http.ResponseWriter, r *http.Request) {
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
	rspID, err := urlID(r, "rspID")
	if err != nil {
		response.XMLError(w, err)
		return
	}
	slug := chi.URLParam(r, "slug")

	stored, err := h.responses.Get(r.Context(), sc, siteID, slug, rspID)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	site, err := h.registration.Get(r.Context(), sc, siteID)
	if err != nil {
		response.XMLError(w, err)
		return
	}

	entry := h.storedResponse(siteID, slug, site.LFDI, stored)
	response.XMLOK(w, &entry)
}

func (h *ResponseHandler) storedResponse(siteID int64, slug, lfdi string, resp *service.StoredResponse) sep2.Response {
	created := sep2.TimeType(resp.CreatedTime.Unix())
	entry := sep2.Response{
		Href:            h.hrefs.Response(siteID, slug, resp.ID),
		CreatedDateTime: &created,
		EndDeviceLFDI:   lfdi,
		Subject:         resp.SubjectMRID,
	}
	if resp.ResponseType != nil {
		status := int(*resp.ResponseType)
		entry.Status = &status
	}
	return entry
}

// CreateResponse handles POST /edev/{siteID}/rsps/{slug}/rsp. The subject
// MRID must name an event of the slug's kind that exists for the site,
// live or archived.
func (h *ResponseHandler) CreateResponse(w http.ResponseWriter, r *http.Request) {
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
	slug := chi.URLParam(r, "slug")

	var body sep2.Response
	if err := decodeXML(r, &body); err != nil {
		response.XMLError(w, err)
		return
	}
	if body.Subject == "" {
		response.XMLError(w, apierrors.NewValidationError("subject", "subject is required"))
		return
	}

	// A createdDateTime in the body is ignored; the stored time is the
	// database's.
	in := &service.ResponseInput{SubjectMRID: body.Subject}
	if body.Status != nil {
		status := int32(*body.Status)
		in.ResponseType = &status
	}

	if _, err := h.responses.Create(r.Context(), sc, siteID, slug, in); err != nil {
		response.XMLError(w, err)
		return
	}
	response.XMLCreated(w, h.hrefs.ResponseList(siteID, slug))
}
