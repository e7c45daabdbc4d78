package datetime

import "boardingpass_parser/internal/patterns"

// Format names, in priority order within each list.
const (
	FormatSlashDate = "slash_date"
	FormatDayMonth  = "day_month"
	FormatKanjiDate = "kanji_date"
	FormatColonTime = "colon_time"
	FormatKanjiTime = "kanji_time"
)

// dateRules is the ordered date fragment list. The first format that matches
// anywhere in the text wins; later formats are only tried when earlier ones miss.
var dateRules = []dateRule{
	// Numeric slash date.
	// Example: 2025/12/25, 2025/1/5
	{
		Format: patterns.Format{
			Name:    FormatSlashDate,
			Pattern: `(?P<year>{YEAR4})/(?P<month>{MONTH})/(?P<day>{DAY})`,
			Fields:  []string{"year", "month", "day"},
		},
		normalise: normaliseSlashDate,
	},
	// Compact day + month abbreviation, no year.
	// Example: 25DEC, 03JAN
	{
		Format: patterns.Format{
			Name:    FormatDayMonth,
			Pattern: `(?P<day>{DAY2})(?P<month>{MON3})`,
			Fields:  []string{"day", "month"},
		},
		normalise: normaliseDayMonth,
	},
	// Kanji month/day, no year.
	// Example: 12月25日, 1月5日
	{
		Format: patterns.Format{
			Name:    FormatKanjiDate,
			Pattern: `(?P<month>{MONTH}){KJ_MON}(?P<day>{DAY}){KJ_DAY}`,
			Fields:  []string{"month", "day"},
		},
		normalise: normaliseKanjiDate,
	},
}

// timeRules is the ordered time fragment list.
var timeRules = []timeRule{
	// Example: 14:30, 9:05
	{
		Format: patterns.Format{
			Name:    FormatColonTime,
			Pattern: `(?P<hour>{HOUR}):(?P<minute>{MINUTE2})`,
			Fields:  []string{"hour", "minute"},
		},
		normalise: normaliseClock,
	},
	// Example: 14時30分, 9時5分
	{
		Format: patterns.Format{
			Name:    FormatKanjiTime,
			Pattern: `(?P<hour>{HOUR}){KJ_HOUR}(?P<minute>{MINUTE}){KJ_MIN}`,
			Fields:  []string{"hour", "minute"},
		},
		normalise: normaliseClock,
	},
}

func dateFormats() []patterns.Format {
	out := make([]patterns.Format, len(dateRules))
	for i, r := range dateRules {
		out[i] = r.Format
	}
	return out
}

func timeFormats() []patterns.Format {
	out := make([]patterns.Format, len(timeRules))
	for i, r := range timeRules {
		out[i] = r.Format
	}
	return out
}

// DateFormatNames returns the date format names in priority order.
func DateFormatNames() []string {
	names := make([]string, len(dateRules))
	for i, r := range dateRules {
		names[i] = r.Name
	}
	return names
}

// TimeFormatNames returns the time format names in priority order.
func TimeFormatNames() []string {
	names := make([]string, len(timeRules))
	for i, r := range timeRules {
		names[i] = r.Name
	}
	return names
}
