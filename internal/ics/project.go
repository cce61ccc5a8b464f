package ics

import (
	ical "github.com/arran4/golang-ical"
)

// EventMapper is an extensibility hook invoked for every projected event,
// after all built-in transformations, with the outgoing event and the
// original source event. Embedding callers can use it to tweak the output
// (add categories, rewrite locations, ...).
type EventMapper func(projected, original *ical.VEvent)

// projectedProperties is the allow-list of properties copied verbatim from
// a source event into the merged feed. Everything else, notably ATTENDEE,
// ORGANIZER, DESCRIPTION and LOCATION, stays behind.
var projectedProperties = []ical.ComponentProperty{
	ical.ComponentPropertyDtStart,
	ical.ComponentPropertyDtEnd,
	ical.ComponentPropertyDtstamp,
	ical.ComponentPropertyRrule,
	ical.ComponentPropertyStatus,
	ical.ComponentPropertySummary,
	ical.ComponentPropertyTransp,
	ical.ComponentPropertySequence,
	ical.ComponentPropertyRecurrenceId,
}

// projectEvent builds the outgoing event for one source event:
//
//  1. copy the allow-listed properties, parameters included
//  2. replace UID with the obfuscated identifier for the given domain
//  3. when placeholder is non-empty, replace SUMMARY with it verbatim
//  4. replace STATUS with the resolved effective status
//  5. run the optional mapper hook
//
// The copied STATUS from step 1 is always superseded by step 4; it is kept
// in the allow-list so step 4 degrades to a plain copy for events without
// attendee signals.
func projectEvent(src *ical.VEvent, domain, placeholder string, knownEmails []string, mapper EventMapper) *ical.VEvent {
	out := &ical.VEvent{}

	for _, name := range projectedProperties {
		if p := src.GetProperty(name); p != nil {
			out.Properties = append(out.Properties, copyProperty(p))
		}
	}

	out.SetProperty(ical.ComponentPropertyUniqueId, obfuscateUID(src, domain))
	if placeholder != "" {
		out.SetProperty(ical.ComponentPropertySummary, placeholder)
	}
	out.SetProperty(ical.ComponentPropertyStatus, resolveStatus(src, knownEmails))

	if mapper != nil {
		mapper(out, src)
	}
	return out
}

// copyProperty clones a property including its parameter map, so the
// projected event never aliases mutable state of the source event.
func copyProperty(p *ical.IANAProperty) ical.IANAProperty {
	out := ical.IANAProperty{
		BaseProperty: ical.BaseProperty{
			IANAToken: p.IANAToken,
			Value:     p.Value,
		},
	}
	if len(p.ICalParameters) > 0 {
		out.ICalParameters = make(map[string][]string, len(p.ICalParameters))
		for k, v := range p.ICalParameters {
			out.ICalParameters[k] = append([]string(nil), v...)
		}
	}
	return out
}
