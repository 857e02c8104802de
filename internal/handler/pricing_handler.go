package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gridmesh/csip-core/internal/models"
	"github.com/gridmesh/csip-core/internal/mrid"
	apierrors "github.com/gridmesh/csip-core/internal/pkg/errors"
	"github.com/gridmesh/csip-core/internal/pkg/response"
	"github.com/gridmesh/csip-core/internal/sep2"
	"github.com/gridmesh/csip-core/internal/service"
)

// pricePowerOfTenMultiplier scales served prices: values are in
// ten-thousandths of the tariff currency per kWh.
const pricePowerOfTenMultiplier = -4

// rateDayFormat is the local-day path segment under a rate component.
const rateDayFormat = "2006-01-02"

// pricingChannels are the four price channels every rate carries.
var pricingChannels = []mrid.PricingReadingType{
	mrid.PriceImportActivePower,
	mrid.PriceExportActivePower,
	mrid.PriceImportReactivePower,
	mrid.PriceExportReactivePower,
}

// PricingHandler serves tariff profiles, rate components and the priced
// intervals generated per site.
type PricingHandler struct {
	tariffs service.TariffService
	hrefs   *sep2.Hrefs
	codec   *mrid.Codec
	tz      *time.Location
	now     func() time.Time
}

// NewPricingHandler creates a new pricing handler.
func NewPricingHandler(tariffs service.TariffService, hrefs *sep2.Hrefs, codec *mrid.Codec, tz *time.Location) *PricingHandler {
	return &PricingHandler{tariffs: tariffs, hrefs: hrefs, codec: codec, tz: tz, now: time.Now}
}

// Routes returns a chi router with the pricing routes, mounted at
// /edev/{siteID}/tp.
func (h *PricingHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListTariffProfiles)
	r.Get("/{tariffID}", h.GetTariffProfile)
	r.Get("/{tariffID}/rc", h.ListRateComponents)
	r.Get("/{tariffID}/rc/{day}/{prt}/tti", h.ListTimeTariffIntervals)
	r.Get("/{tariffID}/rc/{day}/{prt}/tti/{rateID}", h.GetTimeTariffInterval)
	r.Get("/{tariffID}/rc/{day}/{prt}/tti/{rateID}/cti", h.ListConsumptionTariffIntervals)
	return r
}

func (h *PricingHandler) siteFromRequest(r *http.Request) (int64, error) {
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

// rateComponentParams parses the day and price channel path segments.
func (h *PricingHandler) rateComponentParams(r *http.Request) (time.Time, mrid.PricingReadingType, error) {
	day, err := time.ParseInLocation(rateDayFormat, chi.URLParam(r, "day"), h.tz)
	if err != nil {
		return time.Time{}, 0, apierrors.ErrNotFound
	}
	prt, err := urlInt32(r, "prt")
	if err != nil || prt < 1 || prt > 4 {
		return time.Time{}, 0, apierrors.ErrNotFound
	}
	return day, mrid.PricingReadingType(prt), nil
}

func (h *PricingHandler) tariffProfile(siteID int64, t *models.Tariff) sep2.TariffProfile {
	return sep2.TariffProfile{
		Href:                      h.hrefs.TariffProfile(siteID, t.ID),
		MRID:                      h.codec.EncodeTariff(t.ID),
		Description:               t.Name,
		Currency:                  t.CurrencyCode,
		PricePowerOfTenMultiplier: pricePowerOfTenMultiplier,
		RateCode:                  t.DnspCode,
		RateComponentListLink:     &sep2.ListLink{Href: h.hrefs.RateComponentList(siteID, t.ID)},
	}
}

// ListTariffProfiles handles GET /edev/{siteID}/tp.
func (h *PricingHandler) ListTariffProfiles(w http.ResponseWriter, r *http.Request) {
	siteID, err := h.siteFromRequest(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	p := parsePagination(r)

	tariffs, total, err := h.tariffs.ListTariffs(r.Context(), p.After, p.Limit, p.Start)
	if err != nil {
		response.XMLError(w, err)
		return
	}

	list := sep2.TariffProfileList{
		Href:    h.hrefs.TariffProfileList(siteID),
		All:     total,
		Results: len(tariffs),
	}
	for _, t := range tariffs {
		list.TariffProfiles = append(list.TariffProfiles, h.tariffProfile(siteID, t))
	}
	response.XMLOK(w, &list)
}

// GetTariffProfile handles GET /edev/{siteID}/tp/{tariffID}.
func (h *PricingHandler) GetTariffProfile(w http.ResponseWriter, r *http.Request) {
	siteID, err := h.siteFromRequest(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	tariffID, err := urlID(r, "tariffID")
	if err != nil {
		response.XMLError(w, err)
		return
	}

	tariff, err := h.tariffs.GetTariff(r.Context(), tariffID)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	tp := h.tariffProfile(siteID, tariff)
	response.XMLOK(w, &tp)
}

// ListRateComponents handles GET /edev/{siteID}/tp/{tariffID}/rc. One
// component exists per local day with rates, per price channel. Pagination
// applies to days; each day expands into its four channels.
func (h *PricingHandler) ListRateComponents(w http.ResponseWriter, r *http.Request) {
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
	tariffID, err := urlID(r, "tariffID")
	if err != nil {
		response.XMLError(w, err)
		return
	}
	p := parsePagination(r)

	days, totalDays, err := h.tariffs.RateDays(r.Context(), sc, tariffID, siteID, h.tz, p.After, p.Limit, p.Start)
	if err != nil {
		response.XMLError(w, err)
		return
	}

	list := sep2.RateComponentList{
		Href: h.hrefs.RateComponentList(siteID, tariffID),
		All:  totalDays * len(pricingChannels),
	}
	for _, day := range days {
		dayStr := day.In(h.tz).Format(rateDayFormat)
		for _, prt := range pricingChannels {
			list.RateComponents = append(list.RateComponents, sep2.RateComponent{
				Href:                       h.hrefs.RateComponent(siteID, tariffID, dayStr, int(prt)),
				MRID:                       h.codec.EncodeRateComponent(tariffID, siteID, prt),
				Description:                dayStr,
				TimeTariffIntervalListLink: &sep2.ListLink{Href: h.hrefs.TimeTariffIntervalList(siteID, tariffID, dayStr, int(prt))},
			})
		}
	}
	list.Results = len(list.RateComponents)
	response.XMLOK(w, &list)
}

func (h *PricingHandler) timeTariffInterval(siteID, tariffID int64, dayStr string, prt mrid.PricingReadingType, rate *models.TariffGeneratedRate) sep2.TimeTariffInterval {
	now := h.now()
	end := rate.StartTime.Add(time.Duration(rate.DurationSeconds) * time.Second)
	status := sep2.EventStatusScheduled
	if !now.Before(rate.StartTime) && now.Before(end) {
		status = sep2.EventStatusActive
	}

	return sep2.TimeTariffInterval{
		Href:         h.hrefs.TimeTariffInterval(siteID, tariffID, dayStr, int(prt), rate.ID),
		MRID:         h.codec.EncodeTimeTariffInterval(rate.ID, prt),
		CreationTime: sep2.TimeType(rate.CreatedTime.Unix()),
		EventStatus: &sep2.EventStatus{
			CurrentStatus: status,
			DateTime:      sep2.TimeType(rate.ChangedTime.Unix()),
		},
		Interval: &sep2.DateTimeInterval{
			Duration: int64(rate.DurationSeconds),
			Start:    sep2.TimeType(rate.StartTime.Unix()),
		},
		ConsumptionTariffIntervalListLink: &sep2.ListLink{
			Href: h.hrefs.ConsumptionTariffIntervalList(siteID, tariffID, dayStr, int(prt), rate.ID),
		},
	}
}

// ListTimeTariffIntervals handles GET .../rc/{day}/{prt}/tti.
func (h *PricingHandler) ListTimeTariffIntervals(w http.ResponseWriter, r *http.Request) {
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
	tariffID, err := urlID(r, "tariffID")
	if err != nil {
		response.XMLError(w, err)
		return
	}
	day, prt, err := h.rateComponentParams(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	p := parsePagination(r)

	rates, total, err := h.tariffs.RatesForDay(r.Context(), sc, tariffID, siteID, day, h.tz, p.After, p.Limit, p.Start)
	if err != nil {
		response.XMLError(w, err)
		return
	}

	dayStr := day.Format(rateDayFormat)
	list := sep2.TimeTariffIntervalList{
		Href:    h.hrefs.TimeTariffIntervalList(siteID, tariffID, dayStr, int(prt)),
		All:     total,
		Results: len(rates),
	}
	for _, rate := range rates {
		list.TimeTariffIntervals = append(list.TimeTariffIntervals, h.timeTariffInterval(siteID, tariffID, dayStr, prt, rate))
	}
	response.XMLOK(w, &list)
}

// GetTimeTariffInterval handles GET .../tti/{rateID}. Archived rates still
// resolve so devices can acknowledge replaced prices.
func (h *PricingHandler) GetTimeTariffInterval(w http.ResponseWriter, r *http.Request) {
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
	tariffID, err := urlID(r, "tariffID")
	if err != nil {
		response.XMLError(w, err)
		return
	}
	day, prt, err := h.rateComponentParams(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	rateID, err := urlID(r, "rateID")
	if err != nil {
		response.XMLError(w, err)
		return
	}

	rate, err := h.tariffs.GetRate(r.Context(), sc, siteID, rateID)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	tti := h.timeTariffInterval(siteID, tariffID, day.Format(rateDayFormat), prt, rate)
	response.XMLOK(w, &tti)
}

// ListConsumptionTariffIntervals handles GET .../tti/{rateID}/cti: the
// single price entry of one interval and channel.
func (h *PricingHandler) ListConsumptionTariffIntervals(w http.ResponseWriter, r *http.Request) {
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
	tariffID, err := urlID(r, "tariffID")
	if err != nil {
		response.XMLError(w, err)
		return
	}
	day, prt, err := h.rateComponentParams(r)
	if err != nil {
		response.XMLError(w, err)
		return
	}
	rateID, err := urlID(r, "rateID")
	if err != nil {
		response.XMLError(w, err)
		return
	}

	rate, err := h.tariffs.GetRate(r.Context(), sc, siteID, rateID)
	if err != nil {
		response.XMLError(w, err)
		return
	}

	dayStr := day.Format(rateDayFormat)
	price := rate.PriceFor(int(prt)).Shift(-pricePowerOfTenMultiplier).IntPart()
	list := sep2.ConsumptionTariffIntervalList{
		Href:    h.hrefs.ConsumptionTariffIntervalList(siteID, tariffID, dayStr, int(prt), rateID),
		All:     1,
		Results: 1,
		Intervals: []sep2.ConsumptionTariffInterval{{
			Href:  h.hrefs.ConsumptionTariffInterval(siteID, tariffID, dayStr, int(prt), rateID, price),
			Price: price,
		}},
	}
	response.XMLOK(w, &list)
}
