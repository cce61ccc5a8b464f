package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

// ParseCalendar parses a raw iCalendar payload. A failure here is handled
// exactly like a fetch failure by the merger: the source is skipped and the
// remaining sources still contribute to the merged output.
func ParseCalendar(body []byte) (*ical.Calendar, error) {
	if len(body) == 0 {
		return nil, errors.New("empty calendar body")
	}
	return ical.ParseCalendar(bytes.NewReader(body))
}

// propertyValue returns the value of the named property, or "" when absent.
func propertyValue(ev *ical.VEvent, name ical.ComponentProperty) string {
	if p := ev.GetProperty(name); p != nil {
		return p.Value
	}
	return ""
}

// parseICSTime parses a basic iCalendar date / date-time string.
//
// The merger only compares calendar dates (cutoff filtering), so parameter
// context (TZID) is deliberately ignored: a UTC form is parsed as UTC, a
// floating form in the local zone, a date-only form as that date.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	// UTC form, e.g. 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		const layout = "20060102T150405Z"
		return time.Parse(layout, v)
	}

	// Floating date-time, e.g. 20250101T090000
	if strings.Contains(v, "T") {
		const layout = "20060102T150405"
		return time.ParseInLocation(layout, v, time.Local)
	}

	// Date-only (all-day), e.g. 20250101
	const layoutDate = "20060102"
	return time.ParseInLocation(layoutDate, v, time.Local)
}
