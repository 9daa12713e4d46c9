// Package phone normalizes the phone numbers customers, agents, builders and
// loan officers give us. Numbers without a country code are read as US
// numbers; anything that does not parse is kept as typed.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Region is the region numbers without a country code are read in.
const Region = "US"

func parse(input string) (*phonenumbers.PhoneNumber, bool) {
	number, err := phonenumbers.Parse(input, Region)
	if err != nil || !phonenumbers.IsValidNumber(number) {
		return nil, false
	}
	return number, true
}

// NormalizeE164 stores a number as E.164. Invalid numbers come back trimmed.
func NormalizeE164(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}
	number, ok := parse(trimmed)
	if !ok {
		return trimmed
	}
	return phonenumbers.Format(number, phonenumbers.E164)
}

// Normalize is NormalizeE164 for optional fields. A blank number is nil.
func Normalize(input string) *string {
	normalized := NormalizeE164(input)
	if normalized == "" {
		return nil
	}
	return &normalized
}

// Display formats a stored number for people: "(512) 555-0100" for US
// numbers, the international form for the rest.
func Display(stored string) string {
	number, ok := parse(strings.TrimSpace(stored))
	if !ok {
		return strings.TrimSpace(stored)
	}
	if phonenumbers.GetRegionCodeForNumber(number) == Region {
		return phonenumbers.Format(number, phonenumbers.NATIONAL)
	}
	return phonenumbers.Format(number, phonenumbers.INTERNATIONAL)
}
