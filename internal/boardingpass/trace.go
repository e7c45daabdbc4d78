package boardingpass

import (
	"strings"

	"boardingpass_parser/internal/datetime"
)

// TraceResult contains trace information from one extraction attempt.
type TraceResult struct {
	QuickCheck *QuickCheck     `json:"quick_check"`
	Extractors []Extractor     `json:"extractors,omitempty"` // Soft and optional field lookups.
	DateTime   *datetime.Trace `json:"date_time,omitempty"`
	Outcome    Outcome         `json:"outcome"`
}

// QuickCheck contains the result of the parser's quick check.
type QuickCheck struct {
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

// Extractor contains debug information about a field extractor.
type Extractor struct {
	Name    string `json:"name"`    // Field name (e.g., "flight_number", "gate").
	Pattern string `json:"pattern"` // The regex or table used.
	Matched bool   `json:"matched"`
	Value   string `json:"value,omitempty"`
}

// ParseWithTrace extracts text and reports how every field was decided.
// Field lookups are traced even when the quick check fails.
func (p *Parser) ParseWithTrace(text string) *TraceResult {
	trace := &TraceResult{
		QuickCheck: &QuickCheck{Passed: p.QuickCheck(text)},
		Outcome:    p.Parse(text),
	}
	if !trace.QuickCheck.Passed {
		trace.QuickCheck.Reason = "no digits in text, so no date or time can match"
	}

	var flightPattern, gatePattern string
	if compiler, err := getCompiler(); err == nil {
		flightPattern = compiler.Pattern(FormatFlightNumber)
		gatePattern = compiler.Pattern(FormatGate)
	}

	flight := flightNumber(text)
	dest := destination(text)
	g := gate(text)

	trace.Extractors = []Extractor{
		{Name: FormatFlightNumber, Pattern: flightPattern, Matched: flight != Unknown, Value: flight},
		{Name: "destination", Pattern: strings.Join(gazetteer, "|"), Matched: dest != Unknown, Value: dest},
		{Name: FormatGate, Pattern: gatePattern, Matched: g != "", Value: g},
	}

	if trace.QuickCheck.Passed {
		trace.DateTime = p.dates.ReconstructWithTrace(text)
	}

	return trace
}
