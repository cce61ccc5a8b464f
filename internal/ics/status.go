package ics

import (
	"strings"

	ical "github.com/arran4/golang-ical"
)

// Status values emitted by the merger.
const (
	StatusConfirmed = "CONFIRMED"
	StatusCancelled = "CANCELLED"
	StatusTentative = "TENTATIVE"
)

// Attendee participation responses recognized by the resolver.
const (
	partstatAccepted    = "ACCEPTED"
	partstatDeclined    = "DECLINED"
	partstatTentative   = "TENTATIVE"
	partstatNeedsAction = "NEEDS-ACTION"
)

// resolveStatus derives the effective status of an event from the attendee
// responses of the calendar owner.
//
// Every attendee that carries a PARTSTAT parameter and whose text (address
// plus parameters, so CN and delegation parameters count too) contains one
// of the known emails contributes its response. Precedence, first match
// wins: the owner accepting means CONFIRMED regardless of other signals,
// an explicit decline means CANCELLED, an undecided or pending response
// means TENTATIVE. Without any matching response the event's stored STATUS
// stands, defaulting to CONFIRMED.
func resolveStatus(ev *ical.VEvent, knownEmails []string) string {
	stored := func() string {
		if s := propertyValue(ev, ical.ComponentPropertyStatus); s != "" {
			return s
		}
		return StatusConfirmed
	}

	attendees := ev.GetProperties(ical.ComponentPropertyAttendee)
	if len(attendees) == 0 || len(knownEmails) == 0 {
		return stored()
	}

	responses := make(map[string]bool)
	for _, a := range attendees {
		partstat := firstParameter(a, "PARTSTAT")
		if partstat == "" {
			continue
		}
		if attendeeMatches(a, knownEmails) {
			responses[partstat] = true
		}
	}

	switch {
	case responses[partstatAccepted]:
		return StatusConfirmed
	case responses[partstatDeclined]:
		return StatusCancelled
	case responses[partstatTentative], responses[partstatNeedsAction]:
		return StatusTentative
	}
	return stored()
}

// attendeeMatches reports whether any known email occurs as a substring of
// the attendee's value or parameters. Substring matching over the full text
// mirrors how sources spread the address across mailto: values and CN/EMAIL
// parameters; matching is case-sensitive.
func attendeeMatches(a *ical.IANAProperty, knownEmails []string) bool {
	var b strings.Builder
	b.WriteString(a.Value)
	for _, vals := range a.ICalParameters {
		for _, v := range vals {
			b.WriteByte(';')
			b.WriteString(v)
		}
	}
	text := b.String()

	for _, email := range knownEmails {
		if email != "" && strings.Contains(text, email) {
			return true
		}
	}
	return false
}

// firstParameter returns the first value of the named iCalendar parameter.
func firstParameter(p *ical.IANAProperty, name string) string {
	if vals, ok := p.ICalParameters[name]; ok && len(vals) > 0 {
		return vals[0]
	}
	return ""
}
