package ics

import (
	"context"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "camerge/internal/log"
)

// Source is one calendar feed to merge: a descriptor the Fetcher
// understands plus whether its event summaries should be anonymized.
type Source struct {
	URI       string
	Anonymize bool
}

// Options configures a Merger. The zero value is usable; empty fields fall
// back to the defaults applied by NewMerger.
type Options struct {
	// Name becomes the PRODID of the merged calendar.
	Name string
	// Domain scopes the obfuscated UIDs (<digest>@<domain>).
	Domain string
	// Placeholder replaces event summaries of anonymized sources.
	Placeholder string
	// KnownEmails identify the calendar owner across accounts; attendee
	// responses matching one of them drive the effective event status.
	KnownEmails []string
	// Cutoff drops non-recurring events ending strictly before this date.
	Cutoff *time.Time
	// SkipExpiredRecurring additionally drops recurring events whose rule
	// has no occurrence on or after Cutoff.
	SkipExpiredRecurring bool
	// Mapper is an optional per-event post-processing hook.
	Mapper EventMapper
}

const (
	defaultName        = "Merged Calendar"
	defaultDomain      = "camerge"
	defaultPlaceholder = "busy"
)

// Merger turns a list of calendar sources into one merged iCalendar feed.
// A Merger is stateless across calls and safe for concurrent use as long as
// its Options are not mutated.
type Merger struct {
	fetcher *Fetcher
	opts    Options
}

// NewMerger creates a Merger, filling unset options with defaults.
func NewMerger(fetcher *Fetcher, opts Options) *Merger {
	if opts.Name == "" {
		opts.Name = defaultName
	}
	if opts.Domain == "" {
		opts.Domain = defaultDomain
	}
	if opts.Placeholder == "" {
		opts.Placeholder = defaultPlaceholder
	}
	if fetcher == nil {
		fetcher = NewFetcher("")
	}
	return &Merger{fetcher: fetcher, opts: opts}
}

// Merge fetches every source in order and accumulates the surviving
// components into a fresh calendar, which it returns serialized.
//
// Per-source failures (fetch errors, unsupported schemes, malformed
// payloads) are logged and skip that source only; the merge always returns
// a well-formed calendar, possibly containing just the envelope. Clients
// consuming the feed have no error channel, so partial output beats none.
func (m *Merger) Merge(ctx context.Context, sources []Source) string {
	out := ical.NewCalendar()
	out.SetProductId(m.opts.Name)
	out.SetVersion("2.0")

	for _, src := range sources {
		body, err := m.fetcher.Fetch(ctx, src.URI)
		if err != nil {
			appLog.Error("calendar fetch failed, skipping source", err, "url", RedactURL(src.URI))
			continue
		}

		cal, err := ParseCalendar(body)
		if err != nil {
			appLog.Error("calendar parse failed, skipping source", err, "url", RedactURL(src.URI))
			continue
		}

		placeholder := ""
		if src.Anonymize {
			placeholder = m.opts.Placeholder
		}

		kept := 0
		for _, component := range cal.Components {
			switch c := component.(type) {
			case *ical.VTimezone:
				// Timezones pass through untouched; events may reference them.
				out.Components = append(out.Components, c)
			case *ical.VEvent:
				if shouldSkipEvent(c, m.opts.Cutoff, m.opts.SkipExpiredRecurring) {
					continue
				}
				projected := projectEvent(c, m.opts.Domain, placeholder, m.opts.KnownEmails, m.opts.Mapper)
				out.Components = append(out.Components, projected)
				kept++
			}
		}

		appLog.Debug("calendar source merged", "url", RedactURL(src.URI), "events", kept, "anonymize", src.Anonymize)
	}

	return out.Serialize()
}
