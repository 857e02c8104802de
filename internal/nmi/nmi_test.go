package nmi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecksum_KnownVector(t *testing.T) {
	// Worked example from the AEMO NMI procedure.
	assert.Equal(t, 8, Checksum("2001985732"))
}

func TestValidate_Disabled(t *testing.T) {
	v := New(false, "")
	assert.NoError(t, v.Validate("anything at all"))
}

func TestValidate(t *testing.T) {
	v := New(true, "")

	assert.NoError(t, v.Validate("2001985732"))
	assert.NoError(t, v.Validate("20019857328")) // with check digit
	assert.NoError(t, v.Validate(""))            // connection point optional

	assert.Error(t, v.Validate("20019857325")) // wrong check digit
	assert.Error(t, v.Validate("200198573"))   // too short
	assert.Error(t, v.Validate("2001985O32"))  // letter O forbidden
	assert.Error(t, v.Validate("2001985-32"))  // punctuation
}

func TestValidate_ParticipantPrefix(t *testing.T) {
	v := New(true, "2001")
	assert.NoError(t, v.Validate("2001985732"))
	assert.Error(t, v.Validate("3001985732"))
}
