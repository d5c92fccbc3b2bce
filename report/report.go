// Package report lays out the daily agenda on a receipt printer.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/perbu/calreceipt/agenda"
	"github.com/perbu/calreceipt/applog"
	"github.com/perbu/calreceipt/config"
	"github.com/perbu/calreceipt/dateparse"
	"github.com/perbu/calreceipt/escpos"
)

const (
	clockLayout = "03:04 PM"
	dateLayout  = "02 January 2006"

	titleSize  = 3
	detailSize = 2

	detailFeed = 5
	eventFeed  = 10
	endFeed    = 100
)

// Options selects the event details printed below each title.
type Options struct {
	EventLength      bool
	EventLocation    bool
	EventDescription bool
	// Location is the zone times are printed in. Defaults to time.Local.
	Location *time.Location
}

// OptionsFromConfig maps the [report] config section.
func OptionsFromConfig(rc config.ReportConfig, loc *time.Location) Options {
	return Options{
		EventLength:      rc.EventLength,
		EventLocation:    rc.EventLocation,
		EventDescription: rc.EventDescription,
		Location:         loc,
	}
}

// RenderEvents prints events in the order given: a large title line, then
// the enabled details that the event actually has.
func RenderEvents(p escpos.Printer, events []agenda.Event, opts Options) error {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	w := &writer{p: p}
	for _, ev := range events {
		w.size(titleSize, titleSize)
		w.textln(ev.Summary)
		w.size(detailSize, detailSize)

		if opts.EventLength {
			w.textln(timeRange(ev, loc))
			w.ln(detailFeed)
		}
		if opts.EventLocation && ev.Location != "" {
			w.text(ev.Location)
			w.ln(detailFeed)
		}
		if opts.EventDescription && ev.Description != "" {
			w.text(ev.Description)
			w.ln(detailFeed)
		}
		w.ln(eventFeed)
	}
	w.ln(endFeed)
	return w.err
}

func timeRange(ev agenda.Event, loc *time.Location) string {
	if ev.AllDay() {
		return "All day"
	}
	return ev.Start.Time.In(loc).Format(clockLayout) + " - " + ev.End.Time.In(loc).Format(clockLayout)
}

// Request describes one daily report.
type Request struct {
	Calendars   []string
	Day         time.Time
	Preferences config.Preferences
	Options     Options
	Order       agenda.Order
	// Cut cuts the paper after the report.
	Cut bool
}

// Result tells what went into a printed report.
type Result struct {
	Events int
	// Failed lists calendars that could not be fetched.
	Failed []string
}

// Generate prints the greeting, the date and the merged events of every
// requested calendar for req.Day. A calendar that fails to load gets a notice
// line and the rest are still printed; the call fails only when none loaded.
func Generate(ctx context.Context, p escpos.Printer, src agenda.Source, req Request) (Result, error) {
	loc := req.Options.Location
	if loc == nil {
		loc = time.Local
	}
	var res Result

	w := &writer{p: p}
	w.size(titleSize, titleSize)
	w.lineSpacing(3)
	w.text(greeting(req.Preferences) + "\n")
	w.size(detailSize, detailSize)
	w.text("Today is ")
	printDate(w, req.Day.In(loc), true, false)
	w.ln(eventFeed)
	w.textln("Here's a look at your day:")
	w.ln(25)
	if w.err != nil {
		return res, w.err
	}

	window := dateparse.DayWindow(req.Day, loc)
	var (
		lists [][]agenda.Event
		errs  []error
	)
	for _, id := range req.Calendars {
		events, err := src.Fetch(ctx, id, window)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			var fe *agenda.FetchError
			if !errors.As(err, &fe) {
				err = &agenda.FetchError{CalendarID: id, Err: err}
			}
			errs = append(errs, err)
			res.Failed = append(res.Failed, id)
			w.textln("Could not load " + id)
			w.ln(detailFeed)
			continue
		}
		lists = append(lists, events)
	}

	merged := agenda.Merge(req.Order, loc, lists...)
	res.Events = len(merged)
	if len(merged) == 0 && len(lists) > 0 {
		w.textln("Nothing scheduled.")
		w.ln(eventFeed)
	}
	if w.err != nil {
		return res, w.err
	}
	if err := RenderEvents(p, merged, req.Options); err != nil {
		return res, err
	}
	if req.Cut {
		if err := p.Cut(); err != nil {
			return res, err
		}
	}

	if len(req.Calendars) > 0 && len(lists) == 0 {
		return res, fmt.Errorf("no calendar could be loaded: %w", errors.Join(errs...))
	}
	if len(errs) > 0 {
		applog.Info("report printed with missing calendars", "failed", len(errs))
	}
	return res, nil
}

func greeting(prefs config.Preferences) string {
	if prefs.Name == "" {
		return "Good Morning!"
	}
	return "Good Morning, " + prefs.Name + "!"
}

// printDate prints e.g. "Tuesday, 05 March 2024", optionally with the
// weekday on a line of its own.
func printDate(w *writer, day time.Time, weekday, multiline bool) {
	if weekday {
		w.text(day.Format("Monday") + ", ")
	}
	if multiline {
		w.text("\n")
	}
	w.textln(day.Format(dateLayout))
}

// TestPage prints a short message confirming the printer is reachable.
func TestPage(p escpos.Printer) error {
	w := &writer{p: p}
	w.ln(40)
	w.text("Hello World! If you're reading this I'm configured correctly! :D")
	w.ln(40)
	return w.err
}

// writer stops issuing commands after the first failure.
type writer struct {
	p   escpos.Printer
	err error
}

func (w *writer) size(h, wd int) {
	if w.err == nil {
		w.err = w.p.SetSize(h, wd)
	}
}

func (w *writer) lineSpacing(n int) {
	if w.err == nil {
		w.err = w.p.LineSpacing(n)
	}
}

func (w *writer) text(s string) {
	if w.err == nil {
		w.err = w.p.Text(s)
	}
}

func (w *writer) textln(s string) {
	if w.err == nil {
		w.err = w.p.TextLn(s)
	}
}

func (w *writer) ln(n int) {
	if w.err == nil {
		w.err = w.p.Ln(n)
	}
}
