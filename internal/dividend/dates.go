package dividend

import (
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// dateLayouts are tried in order. Day-first precedes month-first, so
// "03/04/2024" is 3 April; "12/25/2024" only parses month-first.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"02-01-2006",
	"2006/01/02",
	"02.01.2006",
	"2/1/2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"20060102",
}

// ParseDate parses a payment date cell. The returned time is midnight UTC.
func ParseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}
