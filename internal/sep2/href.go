package sep2

import "fmt"

// Hrefs builds resource paths. Every path is prefixed with the configured
// deployment prefix so the server can live behind a path-rewriting proxy.
type Hrefs struct {
	prefix string
}

// NewHrefs creates an href builder with the given deployment prefix.
func NewHrefs(prefix string) *Hrefs {
	return &Hrefs{prefix: prefix}
}

func (h *Hrefs) path(format string, args ...any) string {
	return h.prefix + fmt.Sprintf(format, args...)
}

func (h *Hrefs) DeviceCapability() string { return h.path("/dcap") }
func (h *Hrefs) Time() string             { return h.path("/tm") }

func (h *Hrefs) EndDeviceList() string        { return h.path("/edev") }
func (h *Hrefs) EndDevice(siteID int64) string { return h.path("/edev/%d", siteID) }
func (h *Hrefs) Registration(siteID int64) string {
	return h.path("/edev/%d/reg", siteID)
}
func (h *Hrefs) ConnectionPoint(siteID int64) string {
	return h.path("/edev/%d/cp", siteID)
}
func (h *Hrefs) LogEventList(siteID int64) string {
	return h.path("/edev/%d/lel", siteID)
}
func (h *Hrefs) LogEvent(siteID, eventID int64) string {
	return h.path("/edev/%d/lel/%d", siteID, eventID)
}

func (h *Hrefs) DERList(siteID int64) string { return h.path("/edev/%d/der", siteID) }
func (h *Hrefs) DER(siteID int64) string     { return h.path("/edev/%d/der/1", siteID) }
func (h *Hrefs) DERCapability(siteID int64) string {
	return h.path("/edev/%d/der/1/dercap", siteID)
}
func (h *Hrefs) DERSettings(siteID int64) string {
	return h.path("/edev/%d/der/1/derg", siteID)
}
func (h *Hrefs) DERAvailability(siteID int64) string {
	return h.path("/edev/%d/der/1/dera", siteID)
}
func (h *Hrefs) DERStatus(siteID int64) string {
	return h.path("/edev/%d/der/1/ders", siteID)
}

func (h *Hrefs) FunctionSetAssignmentsList(siteID int64) string {
	return h.path("/edev/%d/fsa", siteID)
}
func (h *Hrefs) FunctionSetAssignments(siteID int64, fsaID int32) string {
	return h.path("/edev/%d/fsa/%d", siteID, fsaID)
}

func (h *Hrefs) DERProgramList(siteID int64, fsaID int32) string {
	return h.path("/edev/%d/fsa/%d/derp", siteID, fsaID)
}
func (h *Hrefs) DERProgram(siteID, groupID int64) string {
	return h.path("/edev/%d/derp/%d", siteID, groupID)
}
func (h *Hrefs) DERControlList(siteID, groupID int64) string {
	return h.path("/edev/%d/derp/%d/derc", siteID, groupID)
}
func (h *Hrefs) DERControl(siteID, groupID, doeID int64) string {
	return h.path("/edev/%d/derp/%d/derc/%d", siteID, groupID, doeID)
}
func (h *Hrefs) DefaultDERControl(siteID, groupID int64) string {
	return h.path("/edev/%d/derp/%d/dderc", siteID, groupID)
}

func (h *Hrefs) TariffProfileList(siteID int64) string {
	return h.path("/edev/%d/tp", siteID)
}
func (h *Hrefs) TariffProfile(siteID, tariffID int64) string {
	return h.path("/edev/%d/tp/%d", siteID, tariffID)
}
func (h *Hrefs) RateComponentList(siteID, tariffID int64) string {
	return h.path("/edev/%d/tp/%d/rc", siteID, tariffID)
}
func (h *Hrefs) RateComponent(siteID, tariffID int64, day string, prt int) string {
	return h.path("/edev/%d/tp/%d/rc/%s/%d", siteID, tariffID, day, prt)
}
func (h *Hrefs) TimeTariffIntervalList(siteID, tariffID int64, day string, prt int) string {
	return h.path("/edev/%d/tp/%d/rc/%s/%d/tti", siteID, tariffID, day, prt)
}
func (h *Hrefs) TimeTariffInterval(siteID, tariffID int64, day string, prt int, rateID int64) string {
	return h.path("/edev/%d/tp/%d/rc/%s/%d/tti/%d", siteID, tariffID, day, prt, rateID)
}

func (h *Hrefs) ConsumptionTariffIntervalList(siteID, tariffID int64, day string, prt int, rateID int64) string {
	return h.path("/edev/%d/tp/%d/rc/%s/%d/tti/%d/cti", siteID, tariffID, day, prt, rateID)
}
func (h *Hrefs) ConsumptionTariffInterval(siteID, tariffID int64, day string, prt int, rateID, price int64) string {
	return h.path("/edev/%d/tp/%d/rc/%s/%d/tti/%d/cti/%d", siteID, tariffID, day, prt, rateID, price)
}

func (h *Hrefs) MirrorUsagePointList() string { return h.path("/mup") }
func (h *Hrefs) MirrorUsagePoint(mupID int64) string {
	return h.path("/mup/%d", mupID)
}

func (h *Hrefs) SubscriptionList(siteID int64) string {
	return h.path("/edev/%d/sub", siteID)
}
func (h *Hrefs) Subscription(siteID, subID int64) string {
	return h.path("/edev/%d/sub/%d", siteID, subID)
}

func (h *Hrefs) ResponseSetList(siteID int64) string {
	return h.path("/edev/%d/rsps", siteID)
}
// Response set slugs addressing the per-event-type response lists.
const (
	ResponseSlugDoe   = "doe"
	ResponseSlugPrice = "price"
)

func (h *Hrefs) ResponseSet(siteID int64, slug string) string {
	return h.path("/edev/%d/rsps/%s", siteID, slug)
}
func (h *Hrefs) ResponseList(siteID int64, slug string) string {
	return h.path("/edev/%d/rsps/%s/rsp", siteID, slug)
}
func (h *Hrefs) Response(siteID int64, slug string, responseID int64) string {
	return h.path("/edev/%d/rsps/%s/rsp/%d", siteID, slug, responseID)
}
