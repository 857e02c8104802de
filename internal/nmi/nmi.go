// Package nmi validates Australian National Metering Identifiers attached
// to end devices as connection points.
package nmi

import (
	"fmt"
	"strings"
)

// Length of an NMI without its checksum digit.
const Length = 10

// LengthWithChecksum is the NMI length when the trailing check digit is
// supplied.
const LengthWithChecksum = 11

// Validator enforces NMI shape and checksum rules. The zero value accepts
// everything; construct with New for enforcement.
type Validator struct {
	enabled       bool
	participantID string
}

// New returns a validator. participantID, when non-empty, must prefix every
// accepted NMI (jurisdiction allocation check).
func New(enabled bool, participantID string) *Validator {
	return &Validator{enabled: enabled, participantID: strings.ToUpper(participantID)}
}

// Validate checks an NMI. Empty NMIs are allowed; registration without a
// connection point is legal and the NMI arrives later via /edev/{id}/cp.
func (v *Validator) Validate(nmi string) error {
	if !v.enabled || nmi == "" {
		return nil
	}

	normalized := strings.ToUpper(strings.TrimSpace(nmi))
	if len(normalized) != Length && len(normalized) != LengthWithChecksum {
		return fmt.Errorf("nmi must be %d or %d chars, got %d", Length, LengthWithChecksum, len(normalized))
	}
	for _, r := range normalized {
		if r == 'O' || r == 'I' {
			return fmt.Errorf("nmi must not contain letter %q", r)
		}
		if (r < '0' || r > '9') && (r < 'A' || r > 'Z') {
			return fmt.Errorf("nmi contains invalid char %q", r)
		}
	}

	if v.participantID != "" && !strings.HasPrefix(normalized, v.participantID) {
		return fmt.Errorf("nmi is not allocated to participant %s", v.participantID)
	}

	if len(normalized) == LengthWithChecksum {
		want := Checksum(normalized[:Length])
		got := int(normalized[Length] - '0')
		if got != want {
			return fmt.Errorf("nmi checksum digit %d does not match computed %d", got, want)
		}
	}
	return nil
}

// Checksum computes the Luhn-10 check digit over the ASCII values of a
// 10-char NMI, doubling alternate characters from the right.
func Checksum(nmi string) int {
	sum := 0
	double := true
	for i := len(nmi) - 1; i >= 0; i-- {
		value := int(nmi[i])
		if double {
			value *= 2
		}
		for value > 0 {
			sum += value % 10
			value /= 10
		}
		double = !double
	}
	return (10 - sum%10) % 10
}
