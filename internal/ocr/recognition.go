// Package ocr provides the text-recognition records the extraction engine consumes.
package ocr

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FlexInt64 handles JSON fields that can be either string or number.
type FlexInt64 int64

func (f *FlexInt64) UnmarshalJSON(data []byte) error {
	// Try as number first
	var i int64
	if err := json.Unmarshal(data, &i); err == nil {
		*f = FlexInt64(i)
		return nil
	}

	// Try as string
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			*f = 0
			return nil
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			*f = 0
			return nil // Silently ignore unparseable IDs
		}
		*f = FlexInt64(i)
		return nil
	}

	*f = 0
	return nil
}

// Line is one recognised text line: the top candidate and its confidence.
type Line struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Recognition is the output of one OCR pass over a photographed boarding pass.
// Either Text (already merged) or Lines is populated.
type Recognition struct {
	ID        FlexInt64 `json:"id"`
	Source    string    `json:"source,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
	Text      string    `json:"text,omitempty"`
	Lines     []Line    `json:"lines,omitempty"`
	Languages []string  `json:"languages,omitempty"` // e.g. en-US, ja-JP
}

// RecognizedText returns the single text blob the extractor reads.
// Lines are joined with one space; blank lines are skipped.
func (r *Recognition) RecognizedText() string {
	if r == nil {
		return ""
	}
	if r.Text != "" {
		return r.Text
	}
	return JoinLines(r.Lines)
}

// Empty reports whether the record carries no text at all.
func (r *Recognition) Empty() bool {
	return strings.TrimSpace(r.RecognizedText()) == ""
}

// JoinLines merges recognised lines with a single separating space.
func JoinLines(lines []Line) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		if l.Text == "" {
			continue
		}
		parts = append(parts, l.Text)
	}
	return strings.Join(parts, " ")
}

// Envelope is the feed format where the recognition is nested inside a
// "recognition" field with device metadata at the top level.
type Envelope struct {
	Device      *Device      `json:"device,omitempty"`
	Recognition *Recognition `json:"recognition,omitempty"`
}

// Device identifies the client that captured the image.
type Device struct {
	ID          string `json:"id,omitempty"`
	Application string `json:"application,omitempty"`
}

// ToRecognition unwraps the envelope.
func (e *Envelope) ToRecognition() *Recognition {
	if e.Recognition == nil {
		return nil
	}

	rec := *e.Recognition

	// Use the device as source if the recognition did not name one.
	if rec.Source == "" && e.Device != nil {
		rec.Source = e.Device.ID
		if rec.Source == "" {
			rec.Source = e.Device.Application
		}
	}

	return &rec
}

// Decode reads one JSON record in any supported shape and reports which one.
// Kinds are "envelope", "flat" and "lines". Records without text return nil.
func Decode(b []byte) (*Recognition, string) {
	// 1) Envelope
	var e Envelope
	if err := json.Unmarshal(b, &e); err == nil && e.Recognition != nil {
		if rec := e.ToRecognition(); rec != nil && !rec.Empty() {
			return rec, "envelope"
		}
		return nil, ""
	}

	// 2) Flat record, merged text or line array
	var r Recognition
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, ""
	}
	if r.Empty() {
		return nil, ""
	}
	if r.Text != "" {
		return &r, "flat"
	}
	return &r, "lines"
}
