package datetime

import (
	"time"

	"boardingpass_parser/internal/patterns"
)

// Trace explains a reconstruction attempt for debugging.
type Trace struct {
	Date      []patterns.FormatTrace `json:"date_formats"`
	Time      []patterns.FormatTrace `json:"time_formats"`
	Matched   bool                   `json:"matched"`
	Departure *time.Time             `json:"departure,omitempty"`
	Reason    string                 `json:"reason,omitempty"`
}

// ReconstructWithTrace runs every date and time format and reports which
// matched, which one won, and why reconstruction failed if it did.
func (r *Reconstructor) ReconstructWithTrace(text string) *Trace {
	trace := &Trace{}

	dc, tc, err := getCompilers()
	if err != nil {
		trace.Reason = "failed to compile patterns: " + err.Error()
		return trace
	}

	dt := dc.ParseWithTrace(text)
	tt := tc.ParseWithTrace(text)
	trace.Date = dt.Formats
	trace.Time = tt.Formats

	switch {
	case dt.Match == nil && tt.Match == nil:
		trace.Reason = "no date or time fragment found"
	case dt.Match == nil:
		trace.Reason = "no date fragment found"
	case tt.Match == nil:
		trace.Reason = "no time fragment found"
	default:
		t, ok := r.combine(dt.Match, tt.Match)
		if !ok {
			trace.Reason = "date " + dt.Match.Text + " and time " + tt.Match.Text + " do not form a valid calendar time"
			return trace
		}
		trace.Matched = true
		trace.Departure = &t
	}

	return trace
}
