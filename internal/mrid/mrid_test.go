package mrid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPEN = 62223

func TestRoundtrip_SingleID(t *testing.T) {
	codec := NewCodec(testPEN)

	cases := []struct {
		name   string
		encode func(int64) string
		decode func(string) (int64, error)
	}{
		{"default_doe", codec.EncodeDefaultDOE, codec.DecodeDefaultDOE},
		{"der_program", codec.EncodeDERProgram, codec.DecodeDERProgram},
		{"doe", codec.EncodeDynamicOperatingEnvelope, codec.DecodeDynamicOperatingEnvelope},
		{"tariff", codec.EncodeTariff, codec.DecodeTariff},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, id := range []int64{0, 1, 42, 987654321, 1<<62 - 1} {
				encoded := tc.encode(id)
				assert.Len(t, encoded, 32)

				decoded, err := tc.decode(encoded)
				require.NoError(t, err)
				assert.Equal(t, id, decoded)
			}
		})
	}
}

func TestRoundtrip_FunctionSetAssignment(t *testing.T) {
	codec := NewCodec(testPEN)

	encoded := codec.EncodeFunctionSetAssignment(17, 3)
	siteID, fsaID, err := codec.DecodeFunctionSetAssignment(encoded)
	require.NoError(t, err)
	assert.Equal(t, int64(17), siteID)
	assert.Equal(t, int64(3), fsaID)
}

func TestRoundtrip_RateComponent(t *testing.T) {
	codec := NewCodec(testPEN)

	encoded := codec.EncodeRateComponent(5, 912, PriceExportActivePower)
	tariffID, siteID, prt, err := codec.DecodeRateComponent(encoded)
	require.NoError(t, err)
	assert.Equal(t, int64(5), tariffID)
	assert.Equal(t, int64(912), siteID)
	assert.Equal(t, PriceExportActivePower, prt)
}

func TestRoundtrip_TimeTariffInterval(t *testing.T) {
	codec := NewCodec(testPEN)

	encoded := codec.EncodeTimeTariffInterval(445566, PriceImportReactivePower)
	rateID, prt, err := codec.DecodeTimeTariffInterval(encoded)
	require.NoError(t, err)
	assert.Equal(t, int64(445566), rateID)
	assert.Equal(t, PriceImportReactivePower, prt)
}

func TestRoundtrip_ResponseSet(t *testing.T) {
	codec := NewCodec(testPEN)

	encoded := codec.EncodeResponseSet(ResponseSetDynamicOperatingEnvelopes)
	set, err := codec.DecodeResponseSet(encoded)
	require.NoError(t, err)
	assert.Equal(t, ResponseSetDynamicOperatingEnvelopes, set)
}

func TestDecodeType_RejectsForeignPEN(t *testing.T) {
	ours := NewCodec(testPEN)
	theirs := NewCodec(testPEN + 1)

	encoded := theirs.EncodeDynamicOperatingEnvelope(42)
	_, err := ours.DecodeType(encoded)
	assert.Error(t, err)

	_, err = ours.DecodeDynamicOperatingEnvelope(encoded)
	assert.Error(t, err)
}

func TestDecode_RejectsWrongTag(t *testing.T) {
	codec := NewCodec(testPEN)

	encoded := codec.EncodeTariff(9)
	_, err := codec.DecodeDynamicOperatingEnvelope(encoded)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "TARIFF")
}

func TestDecodeType_Shape(t *testing.T) {
	codec := NewCodec(testPEN)

	_, err := codec.DecodeType("abc")
	assert.Error(t, err)

	_, err = codec.DecodeType(strings.Repeat("g", 32))
	assert.Error(t, err)

	// Case-insensitive, dash-tolerant input.
	encoded := strings.ToUpper(codec.EncodeDynamicOperatingEnvelope(42))
	id, err := codec.DecodeDynamicOperatingEnvelope(encoded)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestEncodeIsDeterministic(t *testing.T) {
	codec := NewCodec(testPEN)
	assert.Equal(t, codec.EncodeDynamicOperatingEnvelope(42), codec.EncodeDynamicOperatingEnvelope(42))
}
