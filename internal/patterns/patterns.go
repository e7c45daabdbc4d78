// Package patterns provides shared regex patterns and helper functions for boarding-pass parsing.
package patterns

import (
	"strconv"
	"strings"
)

// monthAbbreviations is the fixed three-letter month table, in calendar order.
// Lookups are case-sensitive: "Dec" is not a month.
var monthAbbreviations = []string{
	"JAN", "FEB", "MAR", "APR", "MAY", "JUN",
	"JUL", "AUG", "SEP", "OCT", "NOV", "DEC",
}

// MonthAbbreviations returns a copy of the month table in calendar order.
func MonthAbbreviations() []string {
	out := make([]string, len(monthAbbreviations))
	copy(out, monthAbbreviations)
	return out
}

// MonthNumber converts a month abbreviation to 1-12. Returns false if unknown.
func MonthNumber(abbr string) (int, bool) {
	for i, m := range monthAbbreviations {
		if m == abbr {
			return i + 1, true
		}
	}
	return 0, false
}

// Atoi parses a run of ASCII digits. Empty input or any other character,
// including full-width digits, fails.
func Atoi(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// HasDigit reports whether text contains at least one ASCII digit.
// Every date and time shape needs one, so this is a cheap pre-filter.
func HasDigit(text string) bool {
	return strings.ContainsAny(text, "0123456789")
}

// FirstContained returns the first entry of an ordered table that occurs in text.
func FirstContained(text string, table []string) (string, bool) {
	for _, entry := range table {
		if strings.Contains(text, entry) {
			return entry, true
		}
	}
	return "", false
}
