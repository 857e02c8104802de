// Package mrid encodes and decodes sep2 master resource identifiers.
//
// An MRID is a 128-bit value rendered as 32 hex chars. The top 4 bits carry a
// resource-type tag, the next 32 bits the server's IANA Private Enterprise
// Number, and the remaining 92 bits a tag-specific payload. Embedding the PEN
// lets the server reject client-posted subjects minted by another deployment.
package mrid

import (
	"fmt"
	"strconv"
	"strings"
)

// Type tags the resource family an MRID refers to. Values fit in 4 bits.
type Type uint8

const (
	TypeDefaultDOE               Type = 1
	TypeDERProgram               Type = 2
	TypeDynamicOperatingEnvelope Type = 3
	TypeFunctionSetAssignment    Type = 4
	TypeTariff                   Type = 7
	TypeRateComponent            Type = 8
	TypeTimeTariffInterval       Type = 9
	TypeResponseSet              Type = 10
)

// String returns the tag name for logging.
func (t Type) String() string {
	switch t {
	case TypeDefaultDOE:
		return "DEFAULT_DOE"
	case TypeDERProgram:
		return "DER_PROGRAM"
	case TypeDynamicOperatingEnvelope:
		return "DYNAMIC_OPERATING_ENVELOPE"
	case TypeFunctionSetAssignment:
		return "FUNCTION_SET_ASSIGNMENT"
	case TypeTariff:
		return "TARIFF"
	case TypeRateComponent:
		return "RATE_COMPONENT"
	case TypeTimeTariffInterval:
		return "TIME_TARIFF_INTERVAL"
	case TypeResponseSet:
		return "RESPONSE_SET"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// PricingReadingType selects the price channel of a rate component. Values
// fit in 4 bits.
type PricingReadingType uint8

const (
	PriceImportActivePower   PricingReadingType = 1
	PriceExportActivePower   PricingReadingType = 2
	PriceImportReactivePower PricingReadingType = 3
	PriceExportReactivePower PricingReadingType = 4
)

// ResponseSetType identifies a response list.
type ResponseSetType uint64

const (
	ResponseSetTariffGeneratedRates      ResponseSetType = 1
	ResponseSetDynamicOperatingEnvelopes ResponseSetType = 2
	ResponseSetSiteControls              ResponseSetType = 3
)

// Hex-digit widths within the 23-char payload region.
const (
	hexLen        = 32
	payloadHexLen = 23

	fsaSiteHexLen = 15 // {site_id:60b}{fsa_id:32b}
	fsaIDHexLen   = 8

	rcTariffHexLen = 7 // {tariff_id:28b}{site_id:60b}{pricing_reading_type:4b}
	rcSiteHexLen   = 15

	ttiRateHexLen = 22 // {rate_id:88b}{pricing_reading_type:4b}
)

// Codec encodes MRIDs for a single deployment PEN.
type Codec struct {
	pen uint32
}

// NewCodec returns a codec bound to the deployment's IANA PEN.
func NewCodec(pen uint32) *Codec {
	return &Codec{pen: pen}
}

// PEN returns the codec's private enterprise number.
func (c *Codec) PEN() uint32 {
	return c.pen
}

func (c *Codec) encode(t Type, payloadHex string) string {
	return fmt.Sprintf("%01x%08x%s", uint8(t)&0xf, c.pen, payloadHex)
}

func singleID(id int64) string {
	return fmt.Sprintf("%0*x", payloadHexLen, uint64(id))
}

// EncodeDefaultDOE encodes the default-control MRID for a site.
func (c *Codec) EncodeDefaultDOE(siteID int64) string {
	return c.encode(TypeDefaultDOE, singleID(siteID))
}

// EncodeDERProgram encodes a DER program MRID. Programs map onto site
// control groups, so the group id is the identity.
func (c *Codec) EncodeDERProgram(groupID int64) string {
	return c.encode(TypeDERProgram, singleID(groupID))
}

// EncodeDynamicOperatingEnvelope encodes a DOE control MRID.
func (c *Codec) EncodeDynamicOperatingEnvelope(doeID int64) string {
	return c.encode(TypeDynamicOperatingEnvelope, singleID(doeID))
}

// EncodeFunctionSetAssignment encodes an FSA MRID for a site.
func (c *Codec) EncodeFunctionSetAssignment(siteID, fsaID int64) string {
	payload := fmt.Sprintf("%0*x%0*x", fsaSiteHexLen, uint64(siteID), fsaIDHexLen, uint64(fsaID))
	return c.encode(TypeFunctionSetAssignment, payload)
}

// EncodeTariff encodes a tariff profile MRID.
func (c *Codec) EncodeTariff(tariffID int64) string {
	return c.encode(TypeTariff, singleID(tariffID))
}

// EncodeRateComponent encodes a rate component MRID.
func (c *Codec) EncodeRateComponent(tariffID, siteID int64, prt PricingReadingType) string {
	payload := fmt.Sprintf("%0*x%0*x%01x", rcTariffHexLen, uint64(tariffID), rcSiteHexLen, uint64(siteID), uint8(prt)&0xf)
	return c.encode(TypeRateComponent, payload)
}

// EncodeTimeTariffInterval encodes a generated-rate interval MRID.
func (c *Codec) EncodeTimeTariffInterval(rateID int64, prt PricingReadingType) string {
	payload := fmt.Sprintf("%0*x%01x", ttiRateHexLen, uint64(rateID), uint8(prt)&0xf)
	return c.encode(TypeTimeTariffInterval, payload)
}

// EncodeResponseSet encodes a response-set MRID.
func (c *Codec) EncodeResponseSet(set ResponseSetType) string {
	return c.encode(TypeResponseSet, singleID(int64(set)))
}

// DecodeType validates the shape and embedded PEN of an MRID and returns its
// type tag. MRIDs minted under a different PEN are rejected.
func (c *Codec) DecodeType(mrid string) (Type, error) {
	normalized, err := normalize(mrid)
	if err != nil {
		return 0, err
	}
	tag, err := strconv.ParseUint(normalized[:1], 16, 8)
	if err != nil {
		return 0, fmt.Errorf("mrid tag is not hex: %w", err)
	}
	pen, err := strconv.ParseUint(normalized[1:9], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("mrid pen is not hex: %w", err)
	}
	if uint32(pen) != c.pen {
		return 0, fmt.Errorf("mrid pen %d does not match deployment pen %d", pen, c.pen)
	}
	return Type(tag), nil
}

// DecodeDefaultDOE extracts the site id from a DEFAULT_DOE MRID.
func (c *Codec) DecodeDefaultDOE(mrid string) (int64, error) {
	return c.decodeSingleID(mrid, TypeDefaultDOE)
}

// DecodeDERProgram extracts the control group id from a DER_PROGRAM MRID.
func (c *Codec) DecodeDERProgram(mrid string) (int64, error) {
	return c.decodeSingleID(mrid, TypeDERProgram)
}

// DecodeDynamicOperatingEnvelope extracts the DOE id.
func (c *Codec) DecodeDynamicOperatingEnvelope(mrid string) (int64, error) {
	return c.decodeSingleID(mrid, TypeDynamicOperatingEnvelope)
}

// DecodeFunctionSetAssignment extracts (site_id, fsa_id).
func (c *Codec) DecodeFunctionSetAssignment(mrid string) (siteID, fsaID int64, err error) {
	payload, err := c.payload(mrid, TypeFunctionSetAssignment)
	if err != nil {
		return 0, 0, err
	}
	site, err := strconv.ParseUint(payload[:fsaSiteHexLen], 16, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("mrid site id is not hex: %w", err)
	}
	fsa, err := strconv.ParseUint(payload[fsaSiteHexLen:], 16, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("mrid fsa id is not hex: %w", err)
	}
	return int64(site), int64(fsa), nil
}

// DecodeTariff extracts the tariff id.
func (c *Codec) DecodeTariff(mrid string) (int64, error) {
	return c.decodeSingleID(mrid, TypeTariff)
}

// DecodeRateComponent extracts (tariff_id, site_id, pricing_reading_type).
func (c *Codec) DecodeRateComponent(mrid string) (tariffID, siteID int64, prt PricingReadingType, err error) {
	payload, err := c.payload(mrid, TypeRateComponent)
	if err != nil {
		return 0, 0, 0, err
	}
	tariff, err := strconv.ParseUint(payload[:rcTariffHexLen], 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("mrid tariff id is not hex: %w", err)
	}
	site, err := strconv.ParseUint(payload[rcTariffHexLen:rcTariffHexLen+rcSiteHexLen], 16, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("mrid site id is not hex: %w", err)
	}
	channel, err := strconv.ParseUint(payload[rcTariffHexLen+rcSiteHexLen:], 16, 8)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("mrid pricing reading type is not hex: %w", err)
	}
	return int64(tariff), int64(site), PricingReadingType(channel), nil
}

// DecodeTimeTariffInterval extracts (rate_id, pricing_reading_type).
func (c *Codec) DecodeTimeTariffInterval(mrid string) (rateID int64, prt PricingReadingType, err error) {
	payload, err := c.payload(mrid, TypeTimeTariffInterval)
	if err != nil {
		return 0, 0, err
	}
	rate, err := strconv.ParseUint(payload[:ttiRateHexLen], 16, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("mrid rate id is not hex: %w", err)
	}
	channel, err := strconv.ParseUint(payload[ttiRateHexLen:], 16, 8)
	if err != nil {
		return 0, 0, fmt.Errorf("mrid pricing reading type is not hex: %w", err)
	}
	return int64(rate), PricingReadingType(channel), nil
}

// DecodeResponseSet extracts the response-set type.
func (c *Codec) DecodeResponseSet(mrid string) (ResponseSetType, error) {
	id, err := c.decodeSingleID(mrid, TypeResponseSet)
	if err != nil {
		return 0, err
	}
	return ResponseSetType(id), nil
}

func (c *Codec) decodeSingleID(mrid string, want Type) (int64, error) {
	payload, err := c.payload(mrid, want)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(payload, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("mrid payload is not a valid id: %w", err)
	}
	return int64(id), nil
}

func (c *Codec) payload(mrid string, want Type) (string, error) {
	got, err := c.DecodeType(mrid)
	if err != nil {
		return "", err
	}
	if got != want {
		return "", fmt.Errorf("mrid type is %s, want %s", got, want)
	}
	normalized, _ := normalize(mrid)
	return normalized[9:], nil
}

func normalize(mrid string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(mrid))
	normalized = strings.ReplaceAll(normalized, "-", "")
	if len(normalized) != hexLen {
		return "", fmt.Errorf("mrid must be %d hex chars, got %d", hexLen, len(normalized))
	}
	for _, r := range normalized {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return "", fmt.Errorf("mrid contains non-hex char %q", r)
		}
	}
	return normalized, nil
}
