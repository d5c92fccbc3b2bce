// Package agenda holds the calendar event model and keeps events ordered by
// start time as they arrive from one or more calendars.
package agenda

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/perbu/calreceipt/dateparse"
)

// When is the start or end of an event. All-day values carry local midnight
// of their date in Time.
type When struct {
	Time   time.Time
	AllDay bool
}

// At returns a timed When.
func At(t time.Time) When {
	return When{Time: t}
}

// OnDate returns an all-day When for the given calendar date in loc.
func OnDate(year int, month time.Month, day int, loc *time.Location) When {
	if loc == nil {
		loc = time.Local
	}
	return When{Time: time.Date(year, month, day, 0, 0, 0, 0, loc), AllDay: true}
}

// Event is a single calendar entry. Empty Location and Description mean the
// event has none.
type Event struct {
	CalendarID  string
	Summary     string
	Start       When
	End         When
	Location    string
	Description string
}

func (e Event) AllDay() bool {
	return e.Start.AllDay
}

// Source fetches the events of one calendar that fall inside a window.
type Source interface {
	Fetch(ctx context.Context, calendarID string, w dateparse.Window) ([]Event, error)
}

// FetchError reports that the events of a calendar could not be retrieved.
// It is distinct from an empty result.
type FetchError struct {
	CalendarID string
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching calendar %s: %v", e.CalendarID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Order selects the key events are sorted by.
type Order int

const (
	// OrderDateTime compares the full start instant.
	OrderDateTime Order = iota
	// OrderTimeOfDay compares only the clock time of the start, ignoring its
	// date. Recurring events whose start still carries the date of the first
	// occurrence sort correctly this way.
	OrderTimeOfDay
)

func (o Order) String() string {
	switch o {
	case OrderDateTime:
		return "date_time"
	case OrderTimeOfDay:
		return "time_of_day"
	}
	return fmt.Sprintf("Order(%d)", int(o))
}

// ParseOrder accepts "date_time" (or empty) and "time_of_day".
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "date_time", "datetime":
		return OrderDateTime, nil
	case "time_of_day", "timeofday":
		return OrderTimeOfDay, nil
	}
	return OrderDateTime, fmt.Errorf("unknown event order %q", s)
}

// Sequence is a list of events kept in ascending start order.
type Sequence struct {
	order  Order
	loc    *time.Location
	events []Event
}

// NewSequence returns an empty sequence. loc is the zone clock times are read
// in for OrderTimeOfDay; nil means time.Local.
func NewSequence(order Order, loc *time.Location) *Sequence {
	if loc == nil {
		loc = time.Local
	}
	return &Sequence{order: order, loc: loc}
}

// Insert places e before the first element that starts strictly later, or
// at the end. Events with equal keys keep their arrival order.
func (s *Sequence) Insert(e Event) {
	for i, cur := range s.events {
		if s.less(e, cur) {
			s.events = slices.Insert(s.events, i, e)
			return
		}
	}
	s.events = append(s.events, e)
}

// InsertAll inserts events one at a time, in the given order.
func (s *Sequence) InsertAll(events []Event) {
	for _, e := range events {
		s.Insert(e)
	}
}

func (s *Sequence) Len() int {
	return len(s.events)
}

// Events returns a copy of the ordered events.
func (s *Sequence) Events() []Event {
	return slices.Clone(s.events)
}

func (s *Sequence) less(a, b Event) bool {
	if s.order == OrderTimeOfDay {
		return clockOffset(a.Start.Time, s.loc) < clockOffset(b.Start.Time, s.loc)
	}
	return a.Start.Time.Before(b.Start.Time)
}

// clockOffset is the time elapsed since midnight of t's own date in loc.
func clockOffset(t time.Time, loc *time.Location) time.Duration {
	t = t.In(loc)
	h, m, sec := t.Clock()
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second +
		time.Duration(t.Nanosecond())
}

// Merge combines several event lists into one ordered list. Lists are
// consumed in the order given, each event inserted with the sequence rule.
func Merge(order Order, loc *time.Location, lists ...[]Event) []Event {
	seq := NewSequence(order, loc)
	for _, l := range lists {
		seq.InsertAll(l)
	}
	return seq.Events()
}
