// Package sep2 declares the IEEE 2030.5 wire resources served by this
// deployment, as static encoding/xml bindings. Only the fields the CSIP-AUS
// profile exercises are declared; unknown elements are ignored on decode.
package sep2

import "encoding/xml"

// Namespace constants for the sep2 core schema and the CSIP-AUS extensions.
const (
	NamespaceSep2       = "urn:ieee:std:2030.5:ns"
	NamespaceCSIPAusV11 = "http://csipaus.org/ns"
	NamespaceCSIPAus    = "https://csipaus.org/ns"
)

// ContentType is the sep2 media type for request and response bodies.
const ContentType = "application/sep+xml"

// TimeType is a sep2 timestamp: seconds since the UNIX epoch.
type TimeType int64

// Link points at a single subordinate resource.
type Link struct {
	Href string `xml:"href,attr"`
}

// ListLink points at a list resource and advertises its size.
type ListLink struct {
	Href string `xml:"href,attr"`
	All  *int   `xml:"all,attr,omitempty"`
}

// Error is the sep2 error body returned alongside non-2xx statuses.
type Error struct {
	XMLName          xml.Name `xml:"urn:ieee:std:2030.5:ns Error"`
	MaxRetryDuration *int64   `xml:"maxRetryDuration,omitempty"`
	ReasonCode       int      `xml:"reasonCode"`
}

// DeviceCapability is the entry resource at /dcap.
type DeviceCapability struct {
	XMLName                  xml.Name  `xml:"urn:ieee:std:2030.5:ns DeviceCapability"`
	Href                     string    `xml:"href,attr"`
	PollRate                 *int      `xml:"pollRate,attr,omitempty"`
	EndDeviceListLink        *ListLink `xml:"EndDeviceListLink,omitempty"`
	MirrorUsagePointListLink *ListLink `xml:"MirrorUsagePointListLink,omitempty"`
	TimeLink                 *Link     `xml:"TimeLink,omitempty"`
}

// Time is the server clock resource at /tm.
type Time struct {
	XMLName      xml.Name `xml:"urn:ieee:std:2030.5:ns Time"`
	Href         string   `xml:"href,attr"`
	CurrentTime  TimeType `xml:"currentTime"`
	DstEndTime   TimeType `xml:"dstEndTime"`
	DstOffset    int32    `xml:"dstOffset"`
	DstStartTime TimeType `xml:"dstStartTime"`
	LocalTime    TimeType `xml:"localTime"`
	Quality      int      `xml:"quality"`
	TzOffset     int32    `xml:"tzOffset"`
}

// EndDevice is the registered premise device resource.
type EndDevice struct {
	XMLName              xml.Name  `xml:"urn:ieee:std:2030.5:ns EndDevice"`
	Href                 string    `xml:"href,attr,omitempty"`
	SFDI                 uint64    `xml:"sFDI"`
	LFDI                 string    `xml:"lFDI,omitempty"`
	DeviceCategory       string    `xml:"deviceCategory,omitempty"`
	ChangedTime          TimeType  `xml:"changedTime"`
	Enabled              *bool     `xml:"enabled,omitempty"`
	ConnectionPointLink  *Link     `xml:"ConnectionPointLink,omitempty"`
	DERListLink          *ListLink `xml:"DERListLink,omitempty"`
	FSAListLink          *ListLink `xml:"FunctionSetAssignmentsListLink,omitempty"`
	LogEventListLink     *ListLink `xml:"LogEventListLink,omitempty"`
	RegistrationLink     *Link     `xml:"RegistrationLink,omitempty"`
	SubscriptionListLink *ListLink `xml:"SubscriptionListLink,omitempty"`
}

// EndDeviceList is the paginated collection at /edev.
type EndDeviceList struct {
	XMLName    xml.Name    `xml:"urn:ieee:std:2030.5:ns EndDeviceList"`
	Href       string      `xml:"href,attr"`
	All        int         `xml:"all,attr"`
	Results    int         `xml:"results,attr"`
	PollRate   *int        `xml:"pollRate,attr,omitempty"`
	EndDevices []EndDevice `xml:"EndDevice,omitempty"`
}

// Registration exposes the out-of-band PIN at /edev/{id}/reg.
type Registration struct {
	XMLName            xml.Name `xml:"urn:ieee:std:2030.5:ns Registration"`
	Href               string   `xml:"href,attr"`
	DateTimeRegistered TimeType `xml:"dateTimeRegistered"`
	PIN                uint32   `xml:"pIN"`
}

// ConnectionPoint is the CSIP-AUS NMI extension at /edev/{id}/cp.
type ConnectionPoint struct {
	XMLName           xml.Name `xml:"https://csipaus.org/ns ConnectionPoint"`
	ConnectionPointID string   `xml:"connectionPointId"`
}

// ActivePower is a fixed-point watts value: value * 10^multiplier W.
type ActivePower struct {
	Multiplier int   `xml:"multiplier"`
	Value      int64 `xml:"value"`
}

// ReactivePower mirrors ActivePower for var quantities.
type ReactivePower struct {
	Multiplier int   `xml:"multiplier"`
	Value      int64 `xml:"value"`
}

// DateTimeInterval bounds a control or reading in time.
type DateTimeInterval struct {
	Duration int64    `xml:"duration"`
	Start    TimeType `xml:"start"`
}

// DERControlBase carries the CSIP-AUS operating envelope limits.
type DERControlBase struct {
	OpModImpLimW  *ActivePower `xml:"https://csipaus.org/ns opModImpLimW,omitempty"`
	OpModExpLimW  *ActivePower `xml:"https://csipaus.org/ns opModExpLimW,omitempty"`
	OpModGenLimW  *ActivePower `xml:"https://csipaus.org/ns opModGenLimW,omitempty"`
	OpModLoadLimW *ActivePower `xml:"https://csipaus.org/ns opModLoadLimW,omitempty"`
	OpModEnergize *bool        `xml:"opModEnergize,omitempty"`
	RampTms       *int32       `xml:"rampTms,omitempty"`
}

// EventStatus currentStatus values.
const (
	EventStatusScheduled  = 0
	EventStatusActive     = 1
	EventStatusCancelled  = 2
	EventStatusSuperseded = 4
)

// EventStatus reports the lifecycle state of a control event.
type EventStatus struct {
	CurrentStatus int      `xml:"currentStatus"`
	DateTime      TimeType `xml:"dateTime"`
	PotentiallySuperseded bool `xml:"potentiallySuperseded"`
}

// DERControl is a dynamic operating envelope served under a DER program.
type DERControl struct {
	XMLName        xml.Name          `xml:"urn:ieee:std:2030.5:ns DERControl"`
	Href           string            `xml:"href,attr,omitempty"`
	ReplyTo        string            `xml:"replyTo,attr,omitempty"`
	ResponseReq    string            `xml:"responseRequired,attr,omitempty"`
	MRID           string            `xml:"mRID"`
	Description    string            `xml:"description,omitempty"`
	CreationTime   TimeType          `xml:"creationTime"`
	EventStatus    *EventStatus      `xml:"EventStatus,omitempty"`
	Interval       *DateTimeInterval `xml:"interval,omitempty"`
	RandomizeStart *int16            `xml:"randomizeStart,omitempty"`
	ControlBase    DERControlBase    `xml:"DERControlBase"`
}

// DERControlList is the collection under /edev/{id}/derp/{derp}/derc.
type DERControlList struct {
	XMLName     xml.Name     `xml:"urn:ieee:std:2030.5:ns DERControlList"`
	Href        string       `xml:"href,attr"`
	All         int          `xml:"all,attr"`
	Results     int          `xml:"results,attr"`
	DERControls []DERControl `xml:"DERControl,omitempty"`
}

// DefaultDERControl carries the fallback envelope at .../dderc.
type DefaultDERControl struct {
	XMLName     xml.Name       `xml:"urn:ieee:std:2030.5:ns DefaultDERControl"`
	Href        string         `xml:"href,attr,omitempty"`
	MRID        string         `xml:"mRID"`
	SetGradW    *int32         `xml:"setGradW,omitempty"`
	ControlBase DERControlBase `xml:"DERControlBase"`
}

// DERProgram groups controls with a primacy ranking.
type DERProgram struct {
	XMLName                  xml.Name  `xml:"urn:ieee:std:2030.5:ns DERProgram"`
	Href                     string    `xml:"href,attr,omitempty"`
	MRID                     string    `xml:"mRID"`
	Description              string    `xml:"description,omitempty"`
	Primacy                  int       `xml:"primacy"`
	DefaultDERControlLink    *Link     `xml:"DefaultDERControlLink,omitempty"`
	DERControlListLink       *ListLink `xml:"DERControlListLink,omitempty"`
	ActiveDERControlListLink *ListLink `xml:"ActiveDERControlListLink,omitempty"`
}

// DERProgramList is the collection at /edev/{id}/derp.
type DERProgramList struct {
	XMLName     xml.Name     `xml:"urn:ieee:std:2030.5:ns DERProgramList"`
	Href        string       `xml:"href,attr"`
	All         int          `xml:"all,attr"`
	Results     int          `xml:"results,attr"`
	PollRate    *int         `xml:"pollRate,attr,omitempty"`
	DERPrograms []DERProgram `xml:"DERProgram,omitempty"`
}

// FunctionSetAssignments binds a device to its program and tariff lists.
type FunctionSetAssignments struct {
	XMLName                xml.Name  `xml:"urn:ieee:std:2030.5:ns FunctionSetAssignments"`
	Href                   string    `xml:"href,attr,omitempty"`
	MRID                   string    `xml:"mRID"`
	Description            string    `xml:"description,omitempty"`
	DERProgramListLink     *ListLink `xml:"DERProgramListLink,omitempty"`
	TariffProfileListLink  *ListLink `xml:"TariffProfileListLink,omitempty"`
	TimeLink               *Link     `xml:"TimeLink,omitempty"`
}

// FunctionSetAssignmentsList is the collection at /edev/{id}/fsa.
type FunctionSetAssignmentsList struct {
	XMLName     xml.Name                 `xml:"urn:ieee:std:2030.5:ns FunctionSetAssignmentsList"`
	Href        string                   `xml:"href,attr"`
	All         int                      `xml:"all,attr"`
	Results     int                      `xml:"results,attr"`
	PollRate    *int                     `xml:"pollRate,attr,omitempty"`
	Assignments []FunctionSetAssignments `xml:"FunctionSetAssignments,omitempty"`
}

// DERCapability is the device-published rating facet.
type DERCapability struct {
	XMLName      xml.Name     `xml:"urn:ieee:std:2030.5:ns DERCapability"`
	Href         string       `xml:"href,attr,omitempty"`
	Modes        string       `xml:"modesSupported,omitempty"`
	RtgMaxW      *ActivePower `xml:"rtgMaxW,omitempty"`
	RtgMaxVA     *ActivePower `xml:"rtgMaxVA,omitempty"`
	RtgMaxVar    *ReactivePower `xml:"rtgMaxVar,omitempty"`
	DERType      int          `xml:"type"`
}

// DERSettings is the operator-adjusted settings facet.
type DERSettings struct {
	XMLName     xml.Name     `xml:"urn:ieee:std:2030.5:ns DERSettings"`
	Href        string       `xml:"href,attr,omitempty"`
	SetGradW    int32        `xml:"setGradW"`
	SetMaxW     *ActivePower `xml:"setMaxW,omitempty"`
	SetMaxVA    *ActivePower `xml:"setMaxVA,omitempty"`
	SetMaxVar   *ReactivePower `xml:"setMaxVar,omitempty"`
	UpdatedTime TimeType     `xml:"updatedTime"`
}

// DERAvailability is the device-reported availability facet.
type DERAvailability struct {
	XMLName      xml.Name     `xml:"urn:ieee:std:2030.5:ns DERAvailability"`
	Href         string       `xml:"href,attr,omitempty"`
	AvailabilityDuration *int64 `xml:"availabilityDuration,omitempty"`
	ReadingTime  TimeType     `xml:"readingTime"`
	ReservePercent *int16     `xml:"reservePercent,omitempty"`
	StatWAvail   *ActivePower `xml:"statWAvail,omitempty"`
}

// ConnectStatusType wraps a dateTime-stamped status bitmap.
type ConnectStatusType struct {
	DateTime TimeType `xml:"dateTime"`
	Value    string   `xml:"value"`
}

// DERStatus is the device-reported status facet.
type DERStatus struct {
	XMLName          xml.Name           `xml:"urn:ieee:std:2030.5:ns DERStatus"`
	Href             string             `xml:"href,attr,omitempty"`
	GenConnectStatus *ConnectStatusType `xml:"genConnectStatus,omitempty"`
	InverterStatus   *ConnectStatusType `xml:"inverterStatus,omitempty"`
	OperationalModeStatus *ConnectStatusType `xml:"operationalModeStatus,omitempty"`
	ReadingTime      TimeType           `xml:"readingTime"`
	StorConnectStatus *ConnectStatusType `xml:"storConnectStatus,omitempty"`
}

// DER is the per-site DER resource linking the four facets.
type DER struct {
	XMLName             xml.Name `xml:"urn:ieee:std:2030.5:ns DER"`
	Href                string   `xml:"href,attr,omitempty"`
	DERAvailabilityLink *Link    `xml:"DERAvailabilityLink,omitempty"`
	DERCapabilityLink   *Link    `xml:"DERCapabilityLink,omitempty"`
	DERSettingsLink     *Link    `xml:"DERSettingsLink,omitempty"`
	DERStatusLink       *Link    `xml:"DERStatusLink,omitempty"`
}

// DERList is the collection at /edev/{id}/der.
type DERList struct {
	XMLName  xml.Name `xml:"urn:ieee:std:2030.5:ns DERList"`
	Href     string   `xml:"href,attr"`
	All      int      `xml:"all,attr"`
	Results  int      `xml:"results,attr"`
	PollRate *int     `xml:"pollRate,attr,omitempty"`
	DERs    []DER    `xml:"DER,omitempty"`
}

// ReadingType pins the unit and shape of a mirrored reading channel.
type ReadingType struct {
	XMLName               xml.Name `xml:"urn:ieee:std:2030.5:ns ReadingType"`
	AccumulationBehaviour int      `xml:"accumulationBehaviour,omitempty"`
	Commodity             int      `xml:"commodity,omitempty"`
	DataQualifier         int      `xml:"dataQualifier,omitempty"`
	FlowDirection         int      `xml:"flowDirection,omitempty"`
	IntervalLength        int64    `xml:"intervalLength,omitempty"`
	Kind                  int      `xml:"kind,omitempty"`
	Phase                 int      `xml:"phase,omitempty"`
	PowerOfTenMultiplier  int      `xml:"powerOfTenMultiplier"`
	Uom                   int      `xml:"uom,omitempty"`
}

// Reading is one mirrored telemetry sample.
type Reading struct {
	XMLName      xml.Name          `xml:"urn:ieee:std:2030.5:ns Reading"`
	LocalID      string            `xml:"localID,omitempty"`
	QualityFlags string            `xml:"qualityFlags,omitempty"`
	TimePeriod   *DateTimeInterval `xml:"timePeriod,omitempty"`
	Value        int64             `xml:"value"`
}

// MirrorMeterReading carries one channel of a mirror usage point POST.
type MirrorMeterReading struct {
	XMLName        xml.Name     `xml:"urn:ieee:std:2030.5:ns MirrorMeterReading"`
	MRID           string       `xml:"mRID"`
	Description    string       `xml:"description,omitempty"`
	LastUpdateTime *TimeType    `xml:"lastUpdateTime,omitempty"`
	Reading        *Reading     `xml:"Reading,omitempty"`
	ReadingType    *ReadingType `xml:"ReadingType,omitempty"`
}

// MirrorUsagePoint registers a telemetry channel set at /mup.
type MirrorUsagePoint struct {
	XMLName             xml.Name             `xml:"urn:ieee:std:2030.5:ns MirrorUsagePoint"`
	Href                string               `xml:"href,attr,omitempty"`
	MRID                string               `xml:"mRID"`
	Description         string               `xml:"description,omitempty"`
	DeviceLFDI          string               `xml:"deviceLFDI"`
	RoleFlags           string               `xml:"roleFlags,omitempty"`
	ServiceCategoryKind int                  `xml:"serviceCategoryKind"`
	Status              int                  `xml:"status"`
	MirrorMeterReadings []MirrorMeterReading `xml:"MirrorMeterReading,omitempty"`
}

// MirrorUsagePointList is the collection at /mup.
type MirrorUsagePointList struct {
	XMLName           xml.Name           `xml:"urn:ieee:std:2030.5:ns MirrorUsagePointList"`
	Href              string             `xml:"href,attr"`
	All               int                `xml:"all,attr"`
	Results           int                `xml:"results,attr"`
	PollRate          *int               `xml:"pollRate,attr,omitempty"`
	MirrorUsagePoints []MirrorUsagePoint `xml:"MirrorUsagePoint,omitempty"`
}

// MirrorMeterReadingList is the batched reading POST body at /mup/{id}.
type MirrorMeterReadingList struct {
	XMLName             xml.Name             `xml:"urn:ieee:std:2030.5:ns MirrorMeterReadingList"`
	All                 int                  `xml:"all,attr,omitempty"`
	Results             int                  `xml:"results,attr,omitempty"`
	MirrorMeterReadings []MirrorMeterReading `xml:"MirrorMeterReading,omitempty"`
}

// Condition narrows a subscription to a value range on one attribute.
type Condition struct {
	AttributeIdentifier int   `xml:"attributeIdentifier"`
	LowerThreshold      int64 `xml:"lowerThreshold"`
	UpperThreshold      int64 `xml:"upperThreshold"`
}

// Subscription is a client-registered notification hook.
type Subscription struct {
	XMLName            xml.Name   `xml:"urn:ieee:std:2030.5:ns Subscription"`
	Href               string     `xml:"href,attr,omitempty"`
	SubscribedResource string     `xml:"subscribedResource"`
	Condition          *Condition `xml:"Condition,omitempty"`
	Encoding           int        `xml:"encoding"`
	Level              string     `xml:"level"`
	Limit              int        `xml:"limit"`
	NotificationURI    string     `xml:"notificationURI"`
}

// SubscriptionList is the collection at /edev/{id}/sub.
type SubscriptionList struct {
	XMLName       xml.Name       `xml:"urn:ieee:std:2030.5:ns SubscriptionList"`
	Href          string         `xml:"href,attr"`
	All           int            `xml:"all,attr"`
	Results       int            `xml:"results,attr"`
	Subscriptions []Subscription `xml:"Subscription,omitempty"`
}

// NotificationResource is the polymorphic payload inside a Notification.
// The xsi:type attribute names the concrete list type.
type NotificationResource struct {
	XsiType             string               `xml:"http://www.w3.org/2001/XMLSchema-instance type,attr,omitempty"`
	All                 int                  `xml:"all,attr"`
	Results             int                  `xml:"results,attr"`
	EndDevices          []EndDevice          `xml:"EndDevice,omitempty"`
	DERControls         []DERControl         `xml:"DERControl,omitempty"`
	DefaultDERControl   *DefaultDERControl   `xml:"DefaultDERControl,omitempty"`
	Readings            []Reading            `xml:"Reading,omitempty"`
	TimeTariffIntervals []TimeTariffInterval `xml:"TimeTariffInterval,omitempty"`
}

// Notification is the webhook POST body delivered to subscribers.
type Notification struct {
	XMLName            xml.Name              `xml:"urn:ieee:std:2030.5:ns Notification"`
	SubscribedResource string                `xml:"subscribedResource"`
	Resource           *NotificationResource `xml:"Resource,omitempty"`
	Status             int                   `xml:"status"`
	SubscriptionURI    string                `xml:"subscriptionURI"`
}

// Notification status values.
const (
	NotificationStatusDefault             = 0
	NotificationStatusSubscriptionDeleted = 4
)

// TariffProfile is a pricing program at /edev/{id}/tp/{tp}.
type TariffProfile struct {
	XMLName               xml.Name  `xml:"urn:ieee:std:2030.5:ns TariffProfile"`
	Href                  string    `xml:"href,attr,omitempty"`
	MRID                  string    `xml:"mRID"`
	Description           string    `xml:"description,omitempty"`
	Currency              int32     `xml:"currency"`
	PricePowerOfTenMultiplier int   `xml:"pricePowerOfTenMultiplier"`
	RateCode              string    `xml:"rateCode,omitempty"`
	ServiceCategoryKind   int       `xml:"serviceCategoryKind"`
	RateComponentListLink *ListLink `xml:"RateComponentListLink,omitempty"`
}

// TariffProfileList is the collection at /edev/{id}/tp.
type TariffProfileList struct {
	XMLName        xml.Name        `xml:"urn:ieee:std:2030.5:ns TariffProfileList"`
	Href           string          `xml:"href,attr"`
	All            int             `xml:"all,attr"`
	Results        int             `xml:"results,attr"`
	PollRate       *int            `xml:"pollRate,attr,omitempty"`
	TariffProfiles []TariffProfile `xml:"TariffProfile,omitempty"`
}

// RateComponent addresses one local day and price channel of a tariff.
type RateComponent struct {
	XMLName                    xml.Name     `xml:"urn:ieee:std:2030.5:ns RateComponent"`
	Href                       string       `xml:"href,attr,omitempty"`
	MRID                       string       `xml:"mRID"`
	Description                string       `xml:"description,omitempty"`
	FlowRateEndLimit           *ActivePower `xml:"flowRateEndLimit,omitempty"`
	FlowRateStartLimit         *ActivePower `xml:"flowRateStartLimit,omitempty"`
	ReadingTypeLink            *Link        `xml:"ReadingTypeLink,omitempty"`
	RoleFlags                  string       `xml:"roleFlags,omitempty"`
	TimeTariffIntervalListLink *ListLink    `xml:"TimeTariffIntervalListLink,omitempty"`
}

// RateComponentList is the collection at /edev/{id}/tp/{tp}/rc.
type RateComponentList struct {
	XMLName        xml.Name        `xml:"urn:ieee:std:2030.5:ns RateComponentList"`
	Href           string          `xml:"href,attr"`
	All            int             `xml:"all,attr"`
	Results        int             `xml:"results,attr"`
	RateComponents []RateComponent `xml:"RateComponent,omitempty"`
}

// ConsumptionTariffInterval carries the price of one priced interval. The
// price is encoded in hundredths of a cent per the tariff's
// pricePowerOfTenMultiplier.
type ConsumptionTariffInterval struct {
	XMLName xml.Name `xml:"urn:ieee:std:2030.5:ns ConsumptionTariffInterval"`
	Href    string   `xml:"href,attr,omitempty"`
	Price   int64    `xml:"price"`
}

// ConsumptionTariffIntervalList is the single-entry collection under a
// time tariff interval.
type ConsumptionTariffIntervalList struct {
	XMLName   xml.Name                    `xml:"urn:ieee:std:2030.5:ns ConsumptionTariffIntervalList"`
	Href      string                      `xml:"href,attr"`
	All       int                         `xml:"all,attr"`
	Results   int                         `xml:"results,attr"`
	Intervals []ConsumptionTariffInterval `xml:"ConsumptionTariffInterval,omitempty"`
}

// ResponseSet groups one event type's acknowledgements.
type ResponseSet struct {
	XMLName          xml.Name  `xml:"urn:ieee:std:2030.5:ns ResponseSet"`
	Href             string    `xml:"href,attr,omitempty"`
	MRID             string    `xml:"mRID"`
	Description      string    `xml:"description,omitempty"`
	ResponseListLink *ListLink `xml:"ResponseListLink,omitempty"`
}

// ResponseSetList is the collection at /edev/{id}/rsps.
type ResponseSetList struct {
	XMLName      xml.Name      `xml:"urn:ieee:std:2030.5:ns ResponseSetList"`
	Href         string        `xml:"href,attr"`
	All          int           `xml:"all,attr"`
	Results      int           `xml:"results,attr"`
	ResponseSets []ResponseSet `xml:"ResponseSet,omitempty"`
}

// TimeTariffInterval is one priced interval under a rate component.
type TimeTariffInterval struct {
	XMLName      xml.Name          `xml:"urn:ieee:std:2030.5:ns TimeTariffInterval"`
	Href         string            `xml:"href,attr,omitempty"`
	MRID         string            `xml:"mRID"`
	CreationTime TimeType          `xml:"creationTime"`
	EventStatus  *EventStatus      `xml:"EventStatus,omitempty"`
	Interval     *DateTimeInterval `xml:"interval,omitempty"`
	TouTier      int               `xml:"touTier"`
	ConsumptionTariffIntervalListLink *ListLink `xml:"ConsumptionTariffIntervalListLink,omitempty"`
}

// TimeTariffIntervalList is the collection at
// /edev/{id}/tp/{tp}/rc/{day}/{prt}/tti.
type TimeTariffIntervalList struct {
	XMLName             xml.Name             `xml:"urn:ieee:std:2030.5:ns TimeTariffIntervalList"`
	Href                string               `xml:"href,attr"`
	All                 int                  `xml:"all,attr"`
	Results             int                  `xml:"results,attr"`
	TimeTariffIntervals []TimeTariffInterval `xml:"TimeTariffInterval,omitempty"`
}

// Response acknowledges a control or rate event.
type Response struct {
	XMLName         xml.Name  `xml:"urn:ieee:std:2030.5:ns Response"`
	Href            string    `xml:"href,attr,omitempty"`
	CreatedDateTime *TimeType `xml:"createdDateTime,omitempty"`
	EndDeviceLFDI   string    `xml:"endDeviceLFDI"`
	Status          *int      `xml:"status,omitempty"`
	Subject         string    `xml:"subject"`
}

// ResponseList is the collection at /edev/{id}/rsps/{list}/rsp.
type ResponseList struct {
	XMLName   xml.Name   `xml:"urn:ieee:std:2030.5:ns ResponseList"`
	Href      string     `xml:"href,attr"`
	All       int        `xml:"all,attr"`
	Results   int        `xml:"results,attr"`
	Responses []Response `xml:"Response,omitempty"`
}

// LogEvent is a client-posted diagnostic record.
type LogEvent struct {
	XMLName         xml.Name `xml:"urn:ieee:std:2030.5:ns LogEvent"`
	Href            string   `xml:"href,attr,omitempty"`
	CreatedDateTime TimeType `xml:"createdDateTime"`
	Details         string   `xml:"details,omitempty"`
	ExtendedData    *uint32  `xml:"extendedData,omitempty"`
	FunctionSet     int      `xml:"functionSet"`
	LogEventCode    int      `xml:"logEventCode"`
	LogEventID      int      `xml:"logEventID"`
	LogEventPEN     uint32   `xml:"logEventPEN"`
	ProfileID       int      `xml:"profileID"`
}

// LogEventList is the collection at /edev/{id}/log.
type LogEventList struct {
	XMLName   xml.Name   `xml:"urn:ieee:std:2030.5:ns LogEventList"`
	Href      string     `xml:"href,attr"`
	All       int        `xml:"all,attr"`
	Results   int        `xml:"results,attr"`
	LogEvents []LogEvent `xml:"LogEvent,omitempty"`
}
