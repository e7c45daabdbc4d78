package boardingpass

import "boardingpass_parser/internal/patterns"

// Field format names.
const (
	FormatFlightNumber = "flight_number"
	FormatGate         = "gate"
)

// Formats defines the single-field formats looked up independently of each other.
var Formats = []patterns.Format{
	// Carrier code and number, case-sensitive.
	// Example: NH123, JAL 516, ANA1234
	{
		Name:    FormatFlightNumber,
		Pattern: `{FLIGHT}`,
	},
	// Gate word (any case) or ゲート, then the gate number. Digits are required.
	// Example: GATE 42, Gate42, gate 7, ゲート 15, ゲート　15
	{
		Name:    FormatGate,
		Pattern: `(?i){GATE_WORD}{GATE_SEP}{GATE_NUM}`,
	},
}

// gazetteer is the ordered destination table. The first entry contained in the
// uppercased text wins, so TOKYO is reported over HND when both appear.
// Uppercasing leaves the Japanese entries untouched.
var gazetteer = []string{
	"TOKYO", "HND", "NRT",
	"OSAKA", "KIX", "ITM",
	"FUKUOKA", "FUK",
	"羽田", "成田", "大阪", "関西", "福岡",
}

// Gazetteer returns a copy of the destination table in priority order.
func Gazetteer() []string {
	out := make([]string, len(gazetteer))
	copy(out, gazetteer)
	return out
}
