// Package dispatch implements the campaign send pipeline: recipient
// normalization, eligibility gating, parameter rendering, paced dispatching
// against the provider and batch orchestration.
package dispatch

import (
	"errors"
	"strings"
)

// ErrInvalidAddress is returned when a recipient cannot be normalized into a
// plausible provider address.
var ErrInvalidAddress = errors.New("invalid recipient address")

const (
	minAddressDigits = 8
	maxAddressDigits = 15
)

// NormalizeAddress reduces a recipient address to the provider's expected
// digits-only international format. Formatting characters and the
// international call prefix are stripped; the result must be 8 to 15 digits.
// Normalization is idempotent: a normalized address normalizes to itself.
func NormalizeAddress(address string) (string, error) {
	var b strings.Builder
	b.Grow(len(address))
	for _, r := range address {
		if r >= '0' && r <= '9' {
			b.WriteByte(byte(r))
		}
	}
	digits := b.String()

	// "00" international call prefix and stray leading zeroes carry no
	// information in international format
	digits = strings.TrimLeft(digits, "0")

	if len(digits) < minAddressDigits || len(digits) > maxAddressDigits {
		return "", ErrInvalidAddress
	}
	return digits, nil
}
