// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "NL"

// Normalize strips Unicode whitespace, hyphens and parentheses. It does not
// canonicalize country codes, so "+31 6 1234" and "06 1234" stay distinct.
func Normalize(input string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' || r == '(' || r == ')' {
			return -1
		}
		return r
	}, input)
}

// NormalizeAll normalizes every number and drops blanks and duplicates,
// keeping first-seen order.
func NormalizeAll(inputs ...string) []string {
	seen := make(map[string]struct{}, len(inputs))
	out := make([]string, 0, len(inputs))
	for _, input := range inputs {
		n := Normalize(input)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// IsPossible reports whether input parses as a plausible phone number.
func IsPossible(input string) bool {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return false
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return false
	}
	return phonenumbers.IsPossibleNumber(number)
}
