// Package patterns provides shared regex patterns and helper functions for boarding-pass parsing.
// This file contains the grok-style pattern compiler.

package patterns

import (
	"regexp"
	"strings"
)

// Format represents a text shape with named capture groups.
type Format struct {
	Name     string         // Format name for identification
	Pattern  string         // Pattern with {PLACEHOLDER} syntax
	Compiled *regexp.Regexp // Compiled regex (populated by Compile)
	Fields   []string       // Field names in capture order (for documentation)
}

// Compiler manages pattern compilation and matching for an ordered set of formats.
// Order matters: Parse reports the first format that matches anywhere in the text.
//
// Unlike a message parser that can fold case up front, OCR text is matched as-is.
// Formats that should ignore case carry a (?i) flag in their own pattern.
type Compiler struct {
	basePatterns map[string]string
	formats      []Format
}

// NewCompiler creates a new pattern compiler with the given formats.
// It merges the provided base patterns with the global BasePatterns,
// allowing local patterns to override global ones.
func NewCompiler(formats []Format, localPatterns map[string]string) *Compiler {
	c := &Compiler{
		basePatterns: make(map[string]string),
		formats:      make([]Format, len(formats)),
	}

	for k, v := range BasePatterns {
		c.basePatterns[k] = v
	}

	// Overlay local patterns (can override global ones).
	for k, v := range localPatterns {
		c.basePatterns[k] = v
	}

	copy(c.formats, formats)

	return c
}

// Compile expands all {PLACEHOLDER} references and compiles regexes.
func (c *Compiler) Compile() error {
	for i := range c.formats {
		re, err := regexp.Compile(c.expand(c.formats[i].Pattern))
		if err != nil {
			return err
		}
		c.formats[i].Compiled = re
	}
	return nil
}

// expand replaces {PLACEHOLDER} with actual regex patterns.
func (c *Compiler) expand(pattern string) string {
	result := pattern
	for name, regex := range c.basePatterns {
		result = strings.ReplaceAll(result, "{"+name+"}", regex)
	}
	return result
}

// Names returns the format names in priority order.
func (c *Compiler) Names() []string {
	names := make([]string, len(c.formats))
	for i, f := range c.formats {
		names[i] = f.Name
	}
	return names
}

// Match represents a successful pattern match with extracted fields.
type Match struct {
	FormatName string            // Name of the matched format
	Text       string            // The whole matched fragment, as it appears in the input
	Captures   map[string]string // Named capture group values
}

// Parse attempts every compiled format in order.
// Returns the first format's leftmost match, or nil if no format matches.
func (c *Compiler) Parse(text string) *Match {
	for _, format := range c.formats {
		if m := match(format, text); m != nil {
			return m
		}
	}
	return nil
}

// Find matches text against a single named format.
func (c *Compiler) Find(text, formatName string) *Match {
	for _, format := range c.formats {
		if format.Name == formatName {
			return match(format, text)
		}
	}
	return nil
}

// Pattern returns the expanded regex for a named format, or "" if unknown.
func (c *Compiler) Pattern(formatName string) string {
	for _, format := range c.formats {
		if format.Name == formatName {
			return c.expand(format.Pattern)
		}
	}
	return ""
}

func match(format Format, text string) *Match {
	if format.Compiled == nil {
		return nil
	}

	sub := format.Compiled.FindStringSubmatch(text)
	if sub == nil {
		return nil
	}

	return &Match{
		FormatName: format.Name,
		Text:       sub[0],
		Captures:   captures(format.Compiled, sub),
	}
}

func captures(re *regexp.Regexp, sub []string) map[string]string {
	out := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		out[name] = sub[i]
	}
	return out
}

// GetCapture is a helper to safely get a capture value with a default.
func (m *Match) GetCapture(name string, defaultVal string) string {
	if m == nil {
		return defaultVal
	}
	if val, ok := m.Captures[name]; ok && val != "" {
		return val
	}
	return defaultVal
}

// FormatTrace contains debug information about a format match attempt.
type FormatTrace struct {
	Name     string            `json:"name"`
	Matched  bool              `json:"matched"`
	Pattern  string            `json:"pattern"`
	Text     string            `json:"text,omitempty"`
	Captures map[string]string `json:"captures,omitempty"`
}

// ParseTrace contains complete trace information for a parse attempt.
type ParseTrace struct {
	Formats []FormatTrace `json:"formats"`
	Match   *Match        `json:"-"`
}

// ParseWithTrace attempts every format and returns detailed trace information.
// Formats after the winning one are still evaluated so the trace shows what
// else would have matched.
func (c *Compiler) ParseWithTrace(text string) *ParseTrace {
	trace := &ParseTrace{
		Formats: make([]FormatTrace, 0, len(c.formats)),
	}

	for _, format := range c.formats {
		ft := FormatTrace{
			Name:    format.Name,
			Pattern: c.expand(format.Pattern),
		}

		m := match(format, text)
		if m != nil {
			ft.Matched = true
			ft.Text = m.Text
			ft.Captures = m.Captures
			if trace.Match == nil {
				trace.Match = m
			}
		}

		trace.Formats = append(trace.Formats, ft)
	}

	return trace
}
