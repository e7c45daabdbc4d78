// Package boardingpass reads flight details from OCR text of a boarding pass.
//
// Flight number and destination are soft fields: when missing they become
// Unknown and extraction still succeeds. Gate is optional and simply left empty.
// The departure time is the one hard field; without it there is no result.
package boardingpass

import (
	"strings"
	"sync"

	"boardingpass_parser/internal/datetime"
	"boardingpass_parser/internal/patterns"
)

// Grok compiler singleton.
var (
	grokCompiler *patterns.Compiler
	grokOnce     sync.Once
	grokErr      error
)

// getCompiler returns the singleton grok compiler.
func getCompiler() (*patterns.Compiler, error) {
	grokOnce.Do(func() {
		grokCompiler = patterns.NewCompiler(Formats, nil)
		grokErr = grokCompiler.Compile()
	})
	return grokCompiler, grokErr
}

// Parser extracts FlightInfo from recognised text.
// It holds no mutable state and is safe for concurrent use.
type Parser struct {
	dates *datetime.Reconstructor
}

// New creates a Parser. Options configure the date/time reconstructor.
func New(opts ...datetime.Option) *Parser {
	return &Parser{dates: datetime.New(opts...)}
}

var defaultParser = New()

// Extract reads text with the default parser.
func Extract(text string) (FlightInfo, bool) {
	return defaultParser.Extract(text)
}

// QuickCheck reports whether text could hold a departure time at all.
// false means Extract will certainly find nothing.
func (p *Parser) QuickCheck(text string) bool {
	return patterns.HasDigit(text)
}

// Extract returns the flight record, or false when no departure time is found.
func (p *Parser) Extract(text string) (FlightInfo, bool) {
	res, ok := p.Match(text)
	if !ok {
		return FlightInfo{}, false
	}
	return res.Info, true
}

// Parse is Extract as a tagged Outcome.
func (p *Parser) Parse(text string) Outcome {
	info, ok := p.Extract(text)
	if !ok {
		return NotFound
	}
	return Outcome{Found: true, Info: info}
}

// Result is a successful extraction with the date/time fragments that produced it.
type Result struct {
	Info     FlightInfo
	DateTime datetime.Result
}

// Match extracts text and also reports which date and time formats matched.
func (p *Parser) Match(text string) (Result, bool) {
	if !p.QuickCheck(text) {
		return Result{}, false
	}

	dt, ok := p.dates.Match(text)
	if !ok {
		return Result{}, false
	}

	return Result{
		Info: FlightInfo{
			FlightNumber: flightNumber(text),
			Destination:  destination(text),
			Departure:    dt.Time,
			Gate:         gate(text),
		},
		DateTime: dt,
	}, true
}

func flightNumber(text string) string {
	compiler, err := getCompiler()
	if err != nil {
		return Unknown
	}
	if m := compiler.Find(text, FormatFlightNumber); m != nil {
		return m.Text
	}
	return Unknown
}

func destination(text string) string {
	if entry, ok := patterns.FirstContained(strings.ToUpper(text), gazetteer); ok {
		return entry
	}
	return Unknown
}

func gate(text string) string {
	compiler, err := getCompiler()
	if err != nil {
		return ""
	}
	if m := compiler.Find(text, FormatGate); m != nil {
		return m.Text
	}
	return ""
}
