package ics

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/perbu/calreceipt/agenda"
	"github.com/perbu/calreceipt/applog"
	"github.com/perbu/calreceipt/dateparse"
)

// maxOccurrences caps how many instances one rule may produce in a window.
const maxOccurrences = 500

type instanceKey struct {
	uid   string
	start int64
}

// expand turns parsed VEVENTs into the concrete events that overlap w.
// Overrides (RECURRENCE-ID) replace the instance they name.
func expand(calendarID string, events []vevent, w dateparse.Window, loc *time.Location) []agenda.Event {
	overridden := make(map[instanceKey]bool)
	for _, ev := range events {
		if ev.RecurrenceID != nil {
			overridden[instanceKey{ev.UID, ev.RecurrenceID.Unix()}] = true
		}
	}

	var out []agenda.Event
	for _, ev := range events {
		if ev.RRule == "" || ev.RecurrenceID != nil {
			if w.Overlaps(ev.Start, ev.Start.Add(ev.duration())) {
				out = append(out, toEvent(calendarID, ev, ev.Start, loc))
			}
			continue
		}
		starts, err := occurrences(ev, w)
		if err != nil {
			applog.Error("skipping recurring ics event", err, "uid", ev.UID, "rrule", ev.RRule)
			continue
		}
		for _, start := range starts {
			if overridden[instanceKey{ev.UID, start.Unix()}] {
				continue
			}
			out = append(out, toEvent(calendarID, ev, start, loc))
		}
	}
	return out
}

// occurrences lists the instance starts of a recurring event overlapping w.
func occurrences(ev vevent, w dateparse.Window) ([]time.Time, error) {
	r, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		return nil, fmt.Errorf("parsing RRULE: %w", err)
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	dur := ev.duration()
	from := w.Start.Add(-dur).In(ev.Start.Location())
	to := w.End.In(ev.Start.Location())

	var out []time.Time
	for _, start := range set.Between(from, to, true) {
		if !w.Overlaps(start, start.Add(dur)) {
			continue
		}
		out = append(out, start)
		if len(out) == maxOccurrences {
			applog.Info("recurring ics event truncated", "uid", ev.UID, "max", maxOccurrences)
			break
		}
	}
	return out, nil
}

func toEvent(calendarID string, ev vevent, start time.Time, loc *time.Location) agenda.Event {
	end := start.Add(ev.duration())
	out := agenda.Event{
		CalendarID:  calendarID,
		Summary:     ev.Summary,
		Start:       agenda.At(start),
		End:         agenda.At(end),
		Location:    ev.Location,
		Description: ev.Description,
	}
	if ev.AllDay {
		out.Start = agenda.OnDate(start.Year(), start.Month(), start.Day(), loc)
		out.End = agenda.OnDate(end.Year(), end.Month(), end.Day(), loc)
	}
	return out
}
