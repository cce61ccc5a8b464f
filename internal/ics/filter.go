package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "camerge/internal/log"
)

// shouldSkipEvent decides whether an event is too old to appear in the
// merged output.
//
// Rules:
//   - no cutoff configured: keep everything.
//   - no DTSTART and no DTEND: keep (nothing to compare against).
//   - RRULE present: keep; recurring events produce occurrences past their
//     stored dates. When skipExpiredRecurring is set, a recurring event is
//     still dropped if its rule provably has no occurrence on or after the
//     cutoff (see recurringExpired).
//   - otherwise compare the end date (start date if no end), truncated to a
//     calendar date, against the cutoff: strictly earlier means skip.
//
// Unparseable date values keep the event; filtering never drops data it
// cannot read.
func shouldSkipEvent(ev *ical.VEvent, cutoff *time.Time, skipExpiredRecurring bool) bool {
	if cutoff == nil {
		return false
	}

	endVal := propertyValue(ev, ical.ComponentPropertyDtEnd)
	startVal := propertyValue(ev, ical.ComponentPropertyDtStart)
	if endVal == "" && startVal == "" {
		return false
	}

	if propertyValue(ev, ical.ComponentPropertyRrule) != "" {
		if skipExpiredRecurring {
			return recurringExpired(ev, *cutoff)
		}
		return false
	}

	boundary := endVal
	if boundary == "" {
		boundary = startVal
	}

	t, err := parseICSTime(boundary)
	if err != nil {
		appLog.Debug("event filter: unparseable date, keeping event", "value", boundary)
		return false
	}

	return truncateToDate(t).Before(truncateToDate(*cutoff))
}

// recurringExpired reports whether a recurring event can be proven to have
// no occurrence on or after the cutoff date. Only finite rules (UNTIL or
// COUNT) can expire; unbounded rules, rules that fail to parse, and events
// without a usable DTSTART are always considered live.
func recurringExpired(ev *ical.VEvent, cutoff time.Time) bool {
	rawRule := propertyValue(ev, ical.ComponentPropertyRrule)
	if rawRule == "" {
		return false
	}
	if !strings.Contains(rawRule, "UNTIL=") && !strings.Contains(rawRule, "COUNT=") {
		return false
	}

	start, err := parseICSTime(propertyValue(ev, ical.ComponentPropertyDtStart))
	if err != nil {
		return false
	}

	r, err := rrule.StrToRRule(rawRule)
	if err != nil {
		appLog.Debug("event filter: unparseable RRULE, keeping event", "rrule", rawRule)
		return false
	}
	r.DTStart(start)

	var set rrule.Set
	set.RRule(r)

	// EXDATE may remove the last remaining occurrences of a finite rule.
	for _, p := range ev.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if ex, err := parseICSTime(part); err == nil {
				set.ExDate(ex.In(start.Location()))
			}
		}
	}

	next := set.After(truncateToDate(cutoff), true)
	return next.IsZero()
}

// truncateToDate reduces a point in time to its civil date. Both sides of
// every cutoff comparison go through this, so the zone constant cancels out.
func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
