package dateparse

import (
	"fmt"
	"strings"
	"time"
)

// queryLayout is the UTC timestamp format used for calendar query boundaries.
const queryLayout = "2006-01-02T15:04:05Z"

// dayLayout is the format of a day given on the command line.
const dayLayout = "2006-01-02"

// Parser defines the interface for parsing the day argument.
type Parser interface {
	Parse(arg string) (time.Time, error)
}

// DefaultParser implements the Parser interface.
type DefaultParser struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// Location is the zone days are interpreted in. Defaults to time.Local.
	Location *time.Location
}

// New returns a DefaultParser for the local time zone.
func New() *DefaultParser {
	return &DefaultParser{Now: time.Now, Location: time.Local}
}

// Parse turns a day argument into midnight of that day in the parser's
// location. Empty and "today" give the current day.
func (p *DefaultParser) Parse(arg string) (time.Time, error) {
	loc := p.location()
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	today := startOfDay(now().In(loc), loc)

	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "", "today":
		return today, nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	}
	parsed, err := time.ParseInLocation(dayLayout, strings.TrimSpace(arg), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q, want YYYY-MM-DD: %w", arg, err)
	}
	return parsed, nil
}

func (p *DefaultParser) location() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}

// Window is the closed time range a calendar query covers.
type Window struct {
	Start time.Time
	End   time.Time
}

// DayWindow returns the window 00:00:00 to 23:59:59 of day's calendar date in loc.
func DayWindow(day time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := day.In(loc).Date()
	return Window{
		Start: time.Date(y, m, d, 0, 0, 0, 0, loc),
		End:   time.Date(y, m, d, 23, 59, 59, 0, loc),
	}
}

// TimeMin is the lower query boundary, converted to UTC.
func (w Window) TimeMin() string {
	return w.Start.UTC().Format(queryLayout)
}

// TimeMax is the upper query boundary, converted to UTC.
func (w Window) TimeMax() string {
	return w.End.UTC().Format(queryLayout)
}

// Contains reports whether t falls inside the window, boundaries included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Overlaps reports whether the half-open interval [start, end) intersects the window.
func (w Window) Overlaps(start, end time.Time) bool {
	if !end.After(start) {
		return w.Contains(start)
	}
	return start.Before(w.End.Add(time.Second)) && end.After(w.Start)
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
