package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gridmesh/csip-core/internal/models"
	apierrors "github.com/gridmesh/csip-core/internal/pkg/errors"
	"github.com/gridmesh/csip-core/internal/pkg/response"
	"github.com/gridmesh/csip-core/internal/sep2"
	"github.com/gridmesh/csip-core/internal/service"
)

// SubscriptionHandler serves the per-site subscription lists aggregators
// use to register notification webhooks.
type SubscriptionHandler struct {
	subscriptions service.SubscriptionService
	does          service.DoeService
	hrefs         *sep2.Hrefs
	now           func() time.Time
}

// NewSubscriptionHandler creates a new subscription handler.
func NewSubscriptionHandler(subscriptions service.SubscriptionService, does service.DoeService, hrefs *sep2.Hrefs) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions, does: does, hrefs: hrefs, now: time.Now}
}

// Routes returns a chi router with the subscription routes, mounted at
// /edev/{siteID}/sub.
func (h *SubscriptionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{subID}", h.Get)
	r.Delete("/{subID}", h.Delete)
	return r
}

// subscribedResource rebuilds the watched href from the stored watch
// fields.
func (h *SubscriptionHandler) subscribedResource(r *http.Request, siteID int64, sub *models.Subscription) string {
	scoped := siteID
	if sub.ScopedSiteID != nil {
		scoped = *sub.ScopedSiteID
	}
	switch sub.ResourceType {
	case models.SubscriptionResourceReading:
		if sub.ResourceID != nil {
			return h.hrefs.MirrorUsagePoint(*sub.ResourceID)
		}
		return h.hrefs.MirrorUsagePointList()
	case models.SubscriptionResourceDynamicOperatingEnvelope:
		if sub.ResourceID != nil {
			return h.hrefs.DERControlList(scoped, *sub.ResourceID)
		}
		return h.hrefs.EndDevice(scoped)
	case models.SubscriptionResourceDefaultSiteControl:
		return h.hrefs.DefaultDERControl(scoped, h.primaryControlGroupID(r))
	case models.SubscriptionResourceTariffGeneratedRate:
		if sub.ResourceID != nil {
			return h.hrefs.TariffProfile(scoped, *sub.ResourceID)
		}
		return h.hrefs.TariffProfileList(scoped)
	default:
		return h.hrefs.EndDeviceList()
	}
}

// primaryControlGroupID resolves the lowest-primacy control group, the one
// whose default control document devices follow.
func (h *SubscriptionHandler) primaryControlGroupID(r *http.Request) int64 {
	groups, err := h.does.ListAllControlGroups(r.Context())
	if err != nil || len(groups) == 0 {
		return 1
	}
	primary := groups[0]
	for _, g := range groups[1:] {
		if g.Primacy < primary.Primacy {
			primary = g
		}
	}
	return primary.ID
}

func (h *SubscriptionHandler) subscription(r *http.Request, siteID int64, sub *models.Subscription) sep2.Subscription {
	out := sep2.Subscription{
		Href:               h.hrefs.Subscription(siteID, sub.ID),
		SubscribedResource: h.subscribedResource(r, siteID, sub),
		Encoding:           0,
		Level:              "+S1",
		Limit:              int(sub.EntityLimit),
		NotificationURI:    sub.NotificationURI,
	}
	if len(sub.Conditions) > 0 {
		c := sub.Conditions[0]
		out.Condition = &sep2.Condition{
			AttributeIdentifier: int(c.Attribute),
			LowerThreshold:      c.LowerThreshold,
			UpperThreshold:      c.UpperThreshold,
		}
	}
	return out
}

// List handles GET /edev/{siteID}/sub.
func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
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
	p := parsePagination(r)

	subs, total, err := h.subscriptions.List(r.Context(), sc, siteID, p.Limit, p.Start)
	if err != nil {
		response.XMLError(w, err)
		return
	}

	list := sep2.SubscriptionList{
		Href:    h.hrefs.SubscriptionList(siteID),
		All:     total,
		Results: len(subs),
	}
	for _, sub := range subs {
		list.Subscriptions = append(list.Subscriptions, h.subscription(r, siteID, sub))
	}
	response.XMLOK(w, &list)
}

// Create handles POST /edev/{siteID}/sub.
func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
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

	var body sep2.Subscription
	if err := decodeXML(r, &body); err != nil {
		response.XMLError(w, err)
		return
	}
	if body.NotificationURI == "" {
		response.XMLError(w, apierrors.NewValidationError("notificationURI", "notificationURI is required"))
		return
	}

	resourceType, scopedSiteID, resourceID, err := h.subscriptions.ParseSubscribedResource(body.SubscribedResource)
	if err != nil {
		response.XMLError(w, err)
		return
	}

	sub := &models.Subscription{
		ResourceType:    resourceType,
		ResourceID:      resourceID,
		ScopedSiteID:    scopedSiteID,
		NotificationURI: body.NotificationURI,
		EntityLimit:     int32(body.Limit),
	}
	if body.Condition != nil {
		sub.Conditions = []models.SubscriptionCondition{{
			Attribute:      models.SubscriptionConditionAttribute(body.Condition.AttributeIdentifier),
			LowerThreshold: body.Condition.LowerThreshold,
			UpperThreshold: body.Condition.UpperThreshold,
		}}
	}

	stored, err := h.subscriptions.Create(r.Context(), sc, siteID, sub)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	response.XMLCreated(w, h.hrefs.Subscription(siteID, stored.ID))
}

// Get handles GET /edev/{siteID}/sub/{subID}.
func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
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
	subID, err := urlID(r, "subID")
	if err != nil {
		response.XMLError(w, err)
		return
	}

	sub, err := h.subscriptions.Get(r.Context(), sc, siteID, subID)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	out := h.subscription(r, siteID, sub)
	response.XMLOK(w, &out)
}

// Delete handles DELETE /edev/{siteID}/sub/{subID}.
func (h *SubscriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
	subID, err := urlID(r, "subID")
	if err != nil {
		response.XMLError(w, err)
		return
	}

	if err := h.subscriptions.Delete(r.Context(), sc, siteID, subID); err != nil {
		response.XMLError(w, err)
		return
	}
	response.NoContent(w)
}
