package calendar

import (
	"strings"
	"time"
)

// Layouts tried when the model returns a date in something other than ISO
// form. Relative dates are resolved by the model against the prompt-injected
// current datetime; these are fallbacks for the stragglers.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

var timeLayouts = []string{
	"15:04",
	"15:04:05",
	"3:04 PM",
	"3:04PM",
	"3 PM",
	"3PM",
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// NormalizeDate coerces a date string to YYYY-MM-DD. Empty values fall back
// to the reference date; relative keywords and weekday names resolve against
// it, preferring the future. Anything else that cannot be parsed passes
// through unchanged rather than being replaced with a different day.
func NormalizeDate(value string, ref time.Time) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ref.Format("2006-01-02")
	}

	lower := strings.ToLower(value)
	switch lower {
	case "today":
		return ref.Format("2006-01-02")
	case "tomorrow":
		return ref.AddDate(0, 0, 1).Format("2006-01-02")
	}

	name := lower
	sameDayOK := false
	if rest, ok := strings.CutPrefix(lower, "next "); ok {
		name = rest
	} else if rest, ok := strings.CutPrefix(lower, "this "); ok {
		name = rest
		sameDayOK = true
	}
	if wd, ok := weekdays[name]; ok {
		delta := (int(wd) - int(ref.Weekday()) + 7) % 7
		if delta == 0 && !sameDayOK {
			delta = 7
		}
		return ref.AddDate(0, 0, delta).Format("2006-01-02")
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return value
}

// NormalizeTime coerces a time string to 24-hour HH:MM. Empty input stays
// empty; unparseable input is passed through unchanged.
func NormalizeTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, strings.ToUpper(value)); err == nil {
			return t.Format("15:04")
		}
	}
	return value
}
