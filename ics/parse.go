// Package ics reads events from iCalendar subscription feeds.
package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/perbu/calreceipt/applog"
)

// vevent is a VEVENT before recurrence expansion.
type vevent struct {
	UID         string
	Summary     string
	Description string
	Location    string

	Start  time.Time
	End    time.Time
	AllDay bool

	RRule   string
	ExDates []time.Time
	// RecurrenceID is set on an override of a single recurring instance.
	RecurrenceID *time.Time
}

func (v vevent) duration() time.Duration {
	if d := v.End.Sub(v.Start); d > 0 {
		return d
	}
	if v.AllDay {
		return 24 * time.Hour
	}
	return 0
}

// parse decodes an ICS payload. Floating and date-only values are read in loc.
// Events that cannot be decoded are logged and skipped.
func parse(body []byte, loc *time.Location) ([]vevent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing calendar: %w", err)
	}

	var out []vevent
	for _, ve := range cal.Events() {
		if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil && strings.EqualFold(p.Value, "CANCELLED") {
			continue
		}
		ev, err := parseVEvent(ve, loc)
		if err != nil {
			applog.Error("skipping ics event", err, "uid", ve.Id())
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (vevent, error) {
	var ev vevent
	ev.UID = ve.Id()
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		ev.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		ev.Location = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return ev, errors.New("missing DTSTART")
	}
	start, allDay, err := propertyTime(dtStart, loc)
	if err != nil {
		return ev, fmt.Errorf("DTSTART: %w", err)
	}
	ev.Start, ev.AllDay = start, allDay

	ev.End = ev.Start
	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
		if end, _, err := propertyTime(dtEnd, loc); err == nil {
			ev.End = end
		}
	} else if ev.AllDay {
		ev.End = ev.Start.AddDate(0, 0, 1)
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		ev.RRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, _, err := parseTimeValue(strings.TrimSpace(part), tzid(p, loc)); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}
	if p := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); p != nil {
		if t, _, err := propertyTime(p, loc); err == nil {
			ev.RecurrenceID = &t
		}
	}
	return ev, nil
}

// propertyTime reads a DATE or DATE-TIME property, honoring its TZID.
func propertyTime(p *ical.IANAProperty, loc *time.Location) (time.Time, bool, error) {
	return parseTimeValue(strings.TrimSpace(p.Value), tzid(p, loc))
}

func tzid(p *ical.IANAProperty, loc *time.Location) *time.Location {
	if vs, ok := p.ICalParameters[string(ical.ParameterTzid)]; ok && len(vs) > 0 {
		if tz, err := time.LoadLocation(vs[0]); err == nil {
			return tz
		}
		applog.Debug("unknown TZID, using local zone", "tzid", vs[0])
	}
	return loc
}

// parseTimeValue handles 20250101T090000Z, 20250101T090000 and 20250101.
// The bool result is true for date-only values.
func parseTimeValue(v string, loc *time.Location) (time.Time, bool, error) {
	switch {
	case v == "":
		return time.Time{}, false, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		t, err := time.Parse("20060102T150405Z", v)
		return t, false, err
	case strings.Contains(v, "T"):
		t, err := time.ParseInLocation("20060102T150405", v, loc)
		return t, false, err
	default:
		t, err := time.ParseInLocation("20060102", v, loc)
		return t, true, err
	}
}
