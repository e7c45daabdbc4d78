// Package patterns provides shared regex patterns and helper functions for boarding-pass parsing.
// This file contains grok-style base patterns for use with the Compiler.

package patterns

// BasePatterns defines reusable regex components for grok-style pattern composition.
// These are referenced in format patterns using {PATTERN_NAME} syntax.
// Digits match any Unicode decimal digit so that a full-width fragment still
// claims its priority slot; Atoi then rejects it, leaving no result.
var BasePatterns = map[string]string{
	// Calendar dates.
	"YEAR4":  `\p{Nd}{4}`,   // 2025
	"MONTH":  `\p{Nd}{1,2}`, // 1-12, unpadded or padded
	"DAY":    `\p{Nd}{1,2}`, // 1-31, unpadded or padded
	"DAY2":   `\p{Nd}{2}`,   // 05, 25 (day in 25DEC)
	"MON3":   `(?:JAN|FEB|MAR|APR|MAY|JUN|JUL|AUG|SEP|OCT|NOV|DEC)`,
	"KJ_MON": `月`,
	"KJ_DAY": `日`,

	// Clock times.
	"HOUR":    `\p{Nd}{1,2}`, // 7, 14
	"MINUTE2": `\p{Nd}{2}`,   // 05, 30 (colon form is always two digits)
	"MINUTE":  `\p{Nd}{1,2}`, // kanji form may drop the leading zero
	"KJ_HOUR": `時`,
	"KJ_MIN":  `分`,

	// Flight identifiers.
	// 2-3 uppercase letter carrier code, optional single space, 1-4 digits.
	// The space may be an ideographic space (U+3000).
	// e.g., NH123, JAL 516, ANA1234
	"FLIGHT": `[A-Z]{2,3}[\s\x{3000}]?\p{Nd}{1,4}`,

	// Gates. The word is matched case-insensitively by the format that uses it.
	"GATE_WORD": `(?:GATE|ゲート)`,
	"GATE_SEP":  `[\s\x{3000}]?`,
	"GATE_NUM":  `\p{Nd}{1,3}`,
}
