package ics

import (
	"context"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeEmptySourceList(t *testing.T) {
	m := NewMerger(nil, Options{})

	out := m.Merge(context.Background(), nil)

	require.NotEmpty(t, out)
	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "END:VCALENDAR")
	assert.Contains(t, out, "VERSION:2.0")
	assert.Contains(t, out, "PRODID:Merged Calendar")
	assert.NotContains(t, out, "BEGIN:VEVENT")
}

func TestMergeInlineEmptyCalendar(t *testing.T) {
	m := NewMerger(nil, Options{})

	out := m.Merge(context.Background(), []Source{
		{URI: "data://BEGIN:VCALENDAR\nVERSION:2.0\nPRODID:Merged Calendar\nEND:VCALENDAR\n", Anonymize: true},
	})

	require.NotEmpty(t, out)
	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.NotContains(t, out, "BEGIN:VEVENT")
}

func TestMergeAnonymization(t *testing.T) {
	raw := rawCalendar(rawEvent(
		"UID:1",
		"DTSTART:20250101T090000Z",
		"SUMMARY:Secret meeting",
	))
	m := NewMerger(nil, Options{})

	anonymized := m.Merge(context.Background(), []Source{dataSource(raw, true)})
	assert.Contains(t, anonymized, "SUMMARY:busy")
	assert.NotContains(t, anonymized, "Secret meeting")

	plain := m.Merge(context.Background(), []Source{dataSource(raw, false)})
	assert.Contains(t, plain, "SUMMARY:Secret meeting")
}

func TestMergeCustomOptions(t *testing.T) {
	raw := rawCalendar(rawEvent("UID:1", "SUMMARY:standup"))
	m := NewMerger(nil, Options{
		Name:        "My Availability",
		Domain:      "my.calendar.example.com",
		Placeholder: "occupied",
	})

	out := m.Merge(context.Background(), []Source{dataSource(raw, true)})

	assert.Contains(t, out, "PRODID:My Availability")
	assert.Contains(t, out, "SUMMARY:occupied")
	assert.Contains(t, out, "@my.calendar.example.com")
}

func TestMergeObfuscatesUIDs(t *testing.T) {
	raw := rawCalendar(rawEvent("UID:secret-source-uid", "SUMMARY:standup"))
	m := NewMerger(nil, Options{})

	out := m.Merge(context.Background(), []Source{dataSource(raw, false)})

	assert.NotContains(t, out, "secret-source-uid")
	assert.Contains(t, out, "@camerge")
}

func TestMergeStripsAttendees(t *testing.T) {
	raw := rawCalendar(rawEvent(
		"UID:1",
		"SUMMARY:standup",
		"ORGANIZER:mailto:boss@example.com",
		"DESCRIPTION:agenda",
		"LOCATION:room 5",
		"ATTENDEE;PARTSTAT=ACCEPTED:mailto:confirmed@example.com",
	))
	m := NewMerger(nil, Options{KnownEmails: []string{"confirmed@example.com"}})

	out := m.Merge(context.Background(), []Source{dataSource(raw, true)})

	assert.NotContains(t, out, "ATTENDEE")
	assert.NotContains(t, out, "ORGANIZER")
	assert.NotContains(t, out, "DESCRIPTION")
	assert.NotContains(t, out, "LOCATION")
	assert.NotContains(t, out, "confirmed@example.com")
}

func TestMergeStatusResolution(t *testing.T) {
	m := NewMerger(nil, Options{KnownEmails: []string{"confirmed@example.com"}})

	accepted := rawCalendar(rawEvent(
		"UID:1",
		"SUMMARY:meeting",
		"ATTENDEE;PARTSTAT=ACCEPTED:mailto:confirmed@example.com",
	))
	out := m.Merge(context.Background(), []Source{dataSource(accepted, true)})
	assert.Contains(t, out, "STATUS:CONFIRMED")
	assert.Contains(t, out, "SUMMARY:busy")

	declined := rawCalendar(rawEvent(
		"UID:1",
		"SUMMARY:meeting",
		"ATTENDEE;PARTSTAT=DECLINED:mailto:confirmed@example.com",
	))
	out = m.Merge(context.Background(), []Source{dataSource(declined, true)})
	assert.Contains(t, out, "STATUS:CANCELLED")
}

func TestMergeCutoffFiltering(t *testing.T) {
	cutoff := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	m := NewMerger(nil, Options{Cutoff: &cutoff})

	raw := rawCalendar(
		rawEvent(
			"UID:old",
			"DTSTART:20200101T090000Z",
			"DTEND:20200101T100000Z",
			"SUMMARY:ancient",
		),
		rawEvent(
			"UID:old-recurring",
			"DTSTART:20200101T090000Z",
			"DTEND:20200101T100000Z",
			"RRULE:FREQ=WEEKLY",
			"SUMMARY:weekly",
		),
		rawEvent(
			"UID:current",
			"DTSTART:20211231T090000Z",
			"SUMMARY:upcoming",
		),
	)

	out := m.Merge(context.Background(), []Source{dataSource(raw, false)})

	assert.NotContains(t, out, "SUMMARY:ancient")
	assert.Contains(t, out, "SUMMARY:weekly")
	assert.Contains(t, out, "SUMMARY:upcoming")
}

func TestMergeTimezonePassthrough(t *testing.T) {
	raw := rawCalendar(
		strings.Join([]string{
			"BEGIN:VTIMEZONE",
			"TZID:Europe/Prague",
			"BEGIN:STANDARD",
			"DTSTART:19961027T030000",
			"TZOFFSETFROM:+0200",
			"TZOFFSETTO:+0100",
			"END:STANDARD",
			"END:VTIMEZONE",
		}, "\n"),
		rawEvent("UID:1", "SUMMARY:meeting"),
	)
	m := NewMerger(nil, Options{})

	out := m.Merge(context.Background(), []Source{dataSource(raw, true)})

	assert.Contains(t, out, "BEGIN:VTIMEZONE")
	assert.Contains(t, out, "TZID:Europe/Prague")
	// Timezones are never anonymized or re-identified.
	assert.Contains(t, out, "DTSTART:19961027T030000")
}

func TestMergeSkipsFailingSources(t *testing.T) {
	good1 := rawCalendar(rawEvent("UID:1", "SUMMARY:first"))
	good2 := rawCalendar(rawEvent("UID:2", "SUMMARY:second"))
	m := NewMerger(nil, Options{})

	out := m.Merge(context.Background(), []Source{
		dataSource(good1, false),
		{URI: "file:///nonexistent/calendar.ics"},
		{URI: "gopher://unsupported.example"},
		{URI: "data://this is not a calendar"},
		dataSource(good2, false),
	})

	assert.Contains(t, out, "SUMMARY:first")
	assert.Contains(t, out, "SUMMARY:second")
	assert.Contains(t, out, "END:VCALENDAR")
}

func TestMergeAllSourcesFailingStillYieldsEnvelope(t *testing.T) {
	m := NewMerger(nil, Options{})

	out := m.Merge(context.Background(), []Source{
		{URI: "file:///nonexistent/calendar.ics"},
		{URI: "gopher://unsupported.example"},
	})

	require.NotEmpty(t, out)
	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "END:VCALENDAR")
}

func TestMergeIsDeterministic(t *testing.T) {
	raw := rawCalendar(
		rawEvent("UID:1", "DTSTART:20250101T090000Z", "SUMMARY:one"),
		rawEvent("UID:2", "DTSTART:20250102T090000Z", "SUMMARY:two"),
	)
	m := NewMerger(nil, Options{KnownEmails: []string{"me@example.com"}})
	sources := []Source{dataSource(raw, true), dataSource(raw, false)}

	first := m.Merge(context.Background(), sources)
	second := m.Merge(context.Background(), sources)

	assert.Equal(t, first, second)
}

func TestMergeDeterministicForUIDlessParameterizedEvents(t *testing.T) {
	// No UID forces the content-hash fallback, which serializes the event;
	// parameterized properties make that serialization exercise folding and
	// parameter encoding.
	raw := rawCalendar(rawEvent(
		"DTSTART;TZID=Europe/Prague:20250101T090000",
		"DTEND;TZID=Europe/Prague:20250101T100000",
		"SUMMARY:standup",
		"ATTENDEE;PARTSTAT=ACCEPTED;CN=Me;ROLE=REQ-PARTICIPANT:mailto:me@example.com",
	))
	m := NewMerger(nil, Options{KnownEmails: []string{"me@example.com"}})
	sources := []Source{dataSource(raw, true)}

	first := m.Merge(context.Background(), sources)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, m.Merge(context.Background(), sources))
	}
	assert.Contains(t, first, "@camerge")
	assert.Contains(t, first, "STATUS:CONFIRMED")
}

func TestMergePreservesSourceOrder(t *testing.T) {
	first := rawCalendar(rawEvent("UID:1", "SUMMARY:alpha"))
	second := rawCalendar(rawEvent("UID:2", "SUMMARY:beta"))
	m := NewMerger(nil, Options{})

	out := m.Merge(context.Background(), []Source{
		dataSource(first, false),
		dataSource(second, false),
	})

	assert.Less(t, strings.Index(out, "SUMMARY:alpha"), strings.Index(out, "SUMMARY:beta"))
}

func TestMergeMapperHook(t *testing.T) {
	raw := rawCalendar(rawEvent("UID:1", "SUMMARY:standup", "LOCATION:room 5"))
	m := NewMerger(nil, Options{
		Mapper: func(projected, original *ical.VEvent) {
			// Carry over a property the allow-list drops.
			if p := original.GetProperty(ical.ComponentPropertyLocation); p != nil {
				projected.SetProperty(ical.ComponentPropertyLocation, p.Value)
			}
		},
	})

	out := m.Merge(context.Background(), []Source{dataSource(raw, false)})

	assert.Contains(t, out, "LOCATION:room 5")
}

func TestMergeOutputReparses(t *testing.T) {
	raw := rawCalendar(rawEvent(
		"UID:1",
		"DTSTART:20250101T090000Z",
		"DTEND:20250101T100000Z",
		"SUMMARY:standup",
	))
	m := NewMerger(nil, Options{})

	out := m.Merge(context.Background(), []Source{dataSource(raw, true)})

	cal, err := ParseCalendar([]byte(out))
	require.NoError(t, err)

	events := 0
	for _, component := range cal.Components {
		if _, ok := component.(*ical.VEvent); ok {
			events++
		}
	}
	assert.Equal(t, 1, events)
}
