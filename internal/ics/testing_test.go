package ics

import (
	"strings"
	"testing"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/require"
)

// rawCalendar wraps event/timezone blocks in a minimal VCALENDAR envelope.
func rawCalendar(blocks ...string) string {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//camerge tests//EN",
	}
	for _, b := range blocks {
		lines = append(lines, strings.Split(strings.TrimSpace(b), "\n")...)
	}
	lines = append(lines, "END:VCALENDAR")
	return strings.Join(lines, "\r\n") + "\r\n"
}

// rawEvent builds a VEVENT block from property lines.
func rawEvent(props ...string) string {
	lines := append([]string{"BEGIN:VEVENT"}, props...)
	lines = append(lines, "END:VEVENT")
	return strings.Join(lines, "\n")
}

// parseFirstEvent parses a fixture calendar and returns its first VEVENT.
func parseFirstEvent(t *testing.T, raw string) *ical.VEvent {
	t.Helper()
	cal, err := ParseCalendar([]byte(raw))
	require.NoError(t, err)
	for _, component := range cal.Components {
		if ev, ok := component.(*ical.VEvent); ok {
			return ev
		}
	}
	t.Fatal("fixture contains no VEVENT")
	return nil
}

// dataSource turns a raw calendar into an inline merge source.
func dataSource(raw string, anonymize bool) Source {
	return Source{URI: "data://" + raw, Anonymize: anonymize}
}
