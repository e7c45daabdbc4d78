// Package datetime rebuilds a departure timestamp from OCR boarding-pass text.
//
// A date fragment and a time fragment are located independently, each from its
// own priority-ordered format list, normalised into calendar components and
// combined into one local-calendar time. Either fragment missing, or a
// combination the calendar rejects, produces no result.
//
// The day+month (25DEC) and kanji (12月25日) shapes carry no year. They always
// take the current calendar year at the moment of parsing, even when the flight
// is really in the next year. This is a known precision limit, not a bug.
package datetime

import (
	"sync"
	"time"

	"boardingpass_parser/internal/patterns"
)

// civilDate holds calendar components before validation.
type civilDate struct {
	Year, Month, Day int
}

// clock holds time-of-day components before validation. Seconds are always zero.
type clock struct {
	Hour, Minute int
}

type dateRule struct {
	patterns.Format
	normalise func(m *patterns.Match, currentYear int) (civilDate, bool)
}

type timeRule struct {
	patterns.Format
	normalise func(m *patterns.Match) (clock, bool)
}

// Grok compiler singletons.
var (
	dateCompiler *patterns.Compiler
	timeCompiler *patterns.Compiler
	grokOnce     sync.Once
	grokErr      error
)

// getCompilers returns the singleton date and time compilers.
func getCompilers() (*patterns.Compiler, *patterns.Compiler, error) {
	grokOnce.Do(func() {
		dateCompiler = patterns.NewCompiler(dateFormats(), nil)
		if grokErr = dateCompiler.Compile(); grokErr != nil {
			return
		}
		timeCompiler = patterns.NewCompiler(timeFormats(), nil)
		grokErr = timeCompiler.Compile()
	})
	return dateCompiler, timeCompiler, grokErr
}

// Option configures a Reconstructor.
type Option func(*Reconstructor)

// WithClock overrides the source of "now" used for the current-year default.
func WithClock(now func() time.Time) Option {
	return func(r *Reconstructor) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLocation sets the calendar location timestamps are built in.
// The default is time.Local; no timezone conversion is ever applied.
func WithLocation(loc *time.Location) Option {
	return func(r *Reconstructor) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// Reconstructor finds and combines date and time fragments.
// It holds no mutable state and is safe for concurrent use.
type Reconstructor struct {
	now func() time.Time
	loc *time.Location
}

// New creates a Reconstructor.
func New(opts ...Option) *Reconstructor {
	r := &Reconstructor{
		now: time.Now,
		loc: time.Local,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result describes a successful reconstruction.
type Result struct {
	Time       time.Time
	DateFormat string // Name of the date format that matched.
	DateText   string // Date fragment as found in the text.
	TimeFormat string // Name of the time format that matched.
	TimeText   string // Time fragment as found in the text.
}

// Reconstruct returns the departure timestamp found in text.
func (r *Reconstructor) Reconstruct(text string) (time.Time, bool) {
	res, ok := r.Match(text)
	if !ok {
		return time.Time{}, false
	}
	return res.Time, true
}

// Match is Reconstruct with the matched fragments attached.
func (r *Reconstructor) Match(text string) (Result, bool) {
	dc, tc, err := getCompilers()
	if err != nil {
		return Result{}, false
	}

	dm := dc.Parse(text)
	if dm == nil {
		return Result{}, false
	}
	tm := tc.Parse(text)
	if tm == nil {
		return Result{}, false
	}

	t, ok := r.combine(dm, tm)
	if !ok {
		return Result{}, false
	}

	return Result{
		Time:       t,
		DateFormat: dm.FormatName,
		DateText:   dm.Text,
		TimeFormat: tm.FormatName,
		TimeText:   tm.Text,
	}, true
}

// combine normalises both fragments and builds the timestamp.
func (r *Reconstructor) combine(dm, tm *patterns.Match) (time.Time, bool) {
	dr, ok := findDateRule(dm.FormatName)
	if !ok {
		return time.Time{}, false
	}
	tr, ok := findTimeRule(tm.FormatName)
	if !ok {
		return time.Time{}, false
	}

	d, ok := dr.normalise(dm, r.now().In(r.loc).Year())
	if !ok {
		return time.Time{}, false
	}
	c, ok := tr.normalise(tm)
	if !ok {
		return time.Time{}, false
	}

	if !validDate(d) || !validClock(c) {
		return time.Time{}, false
	}

	return time.Date(d.Year, time.Month(d.Month), d.Day, c.Hour, c.Minute, 0, 0, r.loc), true
}

func findDateRule(name string) (dateRule, bool) {
	for _, rule := range dateRules {
		if rule.Name == name {
			return rule, true
		}
	}
	return dateRule{}, false
}

func findTimeRule(name string) (timeRule, bool) {
	for _, rule := range timeRules {
		if rule.Name == name {
			return rule, true
		}
	}
	return timeRule{}, false
}

// validDate rejects components time.Date would silently roll over.
func validDate(d civilDate) bool {
	if d.Month < 1 || d.Month > 12 || d.Day < 1 {
		return false
	}
	return d.Day <= daysIn(d.Year, d.Month)
}

func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func validClock(c clock) bool {
	return c.Hour >= 0 && c.Hour <= 23 && c.Minute >= 0 && c.Minute <= 59
}

// normaliseSlashDate takes year, month and day literally.
func normaliseSlashDate(m *patterns.Match, _ int) (civilDate, bool) {
	year, ok := patterns.Atoi(m.Captures["year"])
	if !ok {
		return civilDate{}, false
	}
	month, ok := patterns.Atoi(m.Captures["month"])
	if !ok {
		return civilDate{}, false
	}
	day, ok := patterns.Atoi(m.Captures["day"])
	if !ok {
		return civilDate{}, false
	}
	return civilDate{Year: year, Month: month, Day: day}, true
}

// normaliseDayMonth reads 25DEC with the current year.
func normaliseDayMonth(m *patterns.Match, currentYear int) (civilDate, bool) {
	day, ok := patterns.Atoi(m.Captures["day"])
	if !ok {
		return civilDate{}, false
	}
	month, ok := patterns.MonthNumber(m.Captures["month"])
	if !ok {
		return civilDate{}, false
	}
	return civilDate{Year: currentYear, Month: month, Day: day}, true
}

// normaliseKanjiDate reads 12月25日 with the current year.
func normaliseKanjiDate(m *patterns.Match, currentYear int) (civilDate, bool) {
	month, ok := patterns.Atoi(m.Captures["month"])
	if !ok {
		return civilDate{}, false
	}
	day, ok := patterns.Atoi(m.Captures["day"])
	if !ok {
		return civilDate{}, false
	}
	return civilDate{Year: currentYear, Month: month, Day: day}, true
}

// normaliseClock reads hour and minute captures; both time shapes share it.
func normaliseClock(m *patterns.Match) (clock, bool) {
	hour, ok := patterns.Atoi(m.Captures["hour"])
	if !ok {
		return clock{}, false
	}
	minute, ok := patterns.Atoi(m.Captures["minute"])
	if !ok {
		return clock{}, false
	}
	return clock{Hour: hour, Minute: minute}, true
}
