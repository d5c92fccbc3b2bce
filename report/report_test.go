package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/perbu/calreceipt/agenda"
	"github.com/perbu/calreceipt/config"
	"github.com/perbu/calreceipt/dateparse"
)

// recorder is a printer that logs every command as a short string.
type recorder struct {
	cmds   []string
	failAt int
}

func (r *recorder) do(cmd string) error {
	r.cmds = append(r.cmds, cmd)
	if r.failAt > 0 && len(r.cmds) >= r.failAt {
		return errors.New("out of paper")
	}
	return nil
}

func (r *recorder) SetSize(h, w int) error { return r.do(fmt.Sprintf("size %dx%d", h, w)) }
func (r *recorder) LineSpacing(n int) error { return r.do(fmt.Sprintf("spacing %d", n)) }
func (r *recorder) Text(s string) error { return r.do("text " + s) }
func (r *recorder) TextLn(s string) error { return r.do("textln " + s) }
func (r *recorder) Ln(n int) error { return r.do(fmt.Sprintf("ln %d", n)) }
func (r *recorder) Cut() error { return r.do("cut") }
func (r *recorder) Close() error { return nil }

func (r *recorder) contains(cmd string) bool { return r.index(cmd) >= 0 }

func (r *recorder) index(cmd string) int {
	for i, c := range r.cmds {
		if c == cmd {
			return i
		}
	}
	return -1
}

var utc = time.UTC

func at(h, m int) time.Time { return time.Date(2024, 3, 5, h, m, 0, 0, utc) }

func TestRenderEvents(t *testing.T) {
	events := []agenda.Event{
		{
			Summary:     "Standup",
			Start:       agenda.At(at(9, 0)),
			End:         agenda.At(at(9, 15)),
			Location:    "Room 4",
			Description: "Bring coffee",
		},
		{
			Summary: "Holiday",
			Start:   agenda.OnDate(2024, 3, 5, utc),
			End:     agenda.OnDate(2024, 3, 6, utc),
		},
	}
	r := &recorder{}
	opts := Options{EventLength: true, EventLocation: true, EventDescription: true, Location: utc}
	if err := RenderEvents(r, events, opts); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"size 3x3", "textln Standup", "size 2x2",
		"textln 09:00 AM - 09:15 AM", "ln 5",
		"text Room 4", "ln 5",
		"text Bring coffee", "ln 5",
		"ln 10",
		"size 3x3", "textln Holiday", "size 2x2",
		"textln All day", "ln 5",
		"ln 10",
		"ln 100",
	}
	if strings.Join(r.cmds, "|") != strings.Join(want, "|") {
		t.Errorf("commands:\n%v\nwant:\n%v", r.cmds, want)
	}
}

func TestRenderSkipsMissingOptionalFields(t *testing.T) {
	events := []agenda.Event{{Summary: "Call", Start: agenda.At(at(14, 30)), End: agenda.At(at(15, 0))}}
	r := &recorder{}
	opts := Options{EventLength: false, EventLocation: true, EventDescription: true, Location: utc}
	if err := RenderEvents(r, events, opts); err != nil {
		t.Fatalf("RenderEvents: %v", err)
	}
	want := []string{"size 3x3", "textln Call", "size 2x2", "ln 10", "ln 100"}
	if strings.Join(r.cmds, "|") != strings.Join(want, "|") {
		t.Errorf("commands %v, want %v", r.cmds, want)
	}
}

func TestRenderDisabledOptions(t *testing.T) {
	events := []agenda.Event{{Summary: "Call", Location: "Zoom", Description: "notes", Start: agenda.At(at(14, 30)), End: agenda.At(at(15, 0))}}
	r := &recorder{}
	if err := RenderEvents(r, events, Options{Location: utc}); err != nil {
		t.Fatal(err)
	}
	if r.contains("text Zoom") || r.contains("text notes") {
		t.Errorf("disabled details printed: %v", r.cmds)
	}
}

func TestRenderStopsOnPrinterError(t *testing.T) {
	events := []agenda.Event{{Summary: "A", Start: agenda.At(at(9, 0)), End: agenda.At(at(10, 0))}}
	r := &recorder{failAt: 2}
	if err := RenderEvents(r, events, Options{Location: utc}); err == nil {
		t.Fatal("expected printer error")
	}
	if len(r.cmds) != 2 {
		t.Errorf("kept writing after failure: %v", r.cmds)
	}
}

// fakeSource serves fixed events per calendar.
type fakeSource struct {
	events  map[string][]agenda.Event
	fail    map[string]error
	windows []dateparse.Window
}

func (f *fakeSource) Fetch(ctx context.Context, id string, w dateparse.Window) ([]agenda.Event, error) {
	f.windows = append(f.windows, w)
	if err := f.fail[id]; err != nil {
		return nil, &agenda.FetchError{CalendarID: id, Err: err}
	}
	return f.events[id], nil
}

func TestGenerateMergesCalendars(t *testing.T) {
	src := &fakeSource{events: map[string][]agenda.Event{
		"work":     {{Summary: "A", Start: agenda.At(at(9, 0)), End: agenda.At(at(10, 0))}},
		"personal": {{Summary: "B", Start: agenda.At(at(8, 0)), End: agenda.At(at(8, 30))}},
	}}
	r := &recorder{}
	req := Request{
		Calendars:   []string{"work", "personal"},
		Day:         at(0, 0),
		Preferences: config.Preferences{Name: "Ada"},
		Options:     Options{EventLength: true, Location: utc},
		Cut:         true,
	}
	res, err := Generate(context.Background(), r, src, req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Events != 2 || len(res.Failed) != 0 {
		t.Errorf("result %+v", res)
	}

	header := []string{
		"size 3x3", "spacing 3", "text Good Morning, Ada!\n",
		"size 2x2", "text Today is ", "text Tuesday, ", "textln 05 March 2024",
		"ln 10", "textln Here's a look at your day:", "ln 25",
	}
	if strings.Join(r.cmds[:len(header)], "|") != strings.Join(header, "|") {
		t.Errorf("header %v, want %v", r.cmds[:len(header)], header)
	}
	if b, a := r.index("textln B"), r.index("textln A"); b < 0 || a < 0 || b > a {
		t.Errorf("expected B before A: %v", r.cmds)
	}
	if r.cmds[len(r.cmds)-1] != "cut" {
		t.Errorf("report not cut: %v", r.cmds)
	}
	if len(src.windows) != 2 || src.windows[0].TimeMin() != "2024-03-05T00:00:00Z" {
		t.Errorf("windows %v", src.windows)
	}
}

func TestGeneratePartialFailure(t *testing.T) {
	src := &fakeSource{
		events: map[string][]agenda.Event{"work": {{Summary: "A", Start: agenda.At(at(9, 0)), End: agenda.At(at(10, 0))}}},
		fail:   map[string]error{"team": errors.New("403 forbidden")},
	}
	r := &recorder{}
	res, err := Generate(context.Background(), r, src, Request{
		Calendars: []string{"team", "work"},
		Day:       at(0, 0),
		Options:   Options{Location: utc},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(res.Failed) != 1 || res.Failed[0] != "team" || res.Events != 1 {
		t.Errorf("result %+v", res)
	}
	if !r.contains("textln Could not load team") || !r.contains("textln A") {
		t.Errorf("commands %v", r.cmds)
	}
	if !r.contains("text Good Morning!\n") {
		t.Errorf("greeting without name missing: %v", r.cmds)
	}
}

func TestGenerateAllCalendarsFail(t *testing.T) {
	cause := errors.New("offline")
	src := &fakeSource{fail: map[string]error{"work": cause}}
	r := &recorder{}
	_, err := Generate(context.Background(), r, src, Request{Calendars: []string{"work"}, Day: at(0, 0), Options: Options{Location: utc}})
	if !errors.Is(err, cause) {
		t.Fatalf("expected error wrapping cause, got %v", err)
	}
	if r.contains("textln Nothing scheduled.") {
		t.Error("printed 'Nothing scheduled.' although no calendar loaded")
	}
}

func TestGenerateNoEvents(t *testing.T) {
	src := &fakeSource{events: map[string][]agenda.Event{}}
	r := &recorder{}
	if _, err := Generate(context.Background(), r, src, Request{Calendars: []string{"primary"}, Day: at(0, 0), Options: Options{Location: utc}}); err != nil {
		t.Fatal(err)
	}
	if !r.contains("textln Nothing scheduled.") {
		t.Errorf("commands %v", r.cmds)
	}
	if r.cmds[len(r.cmds)-1] != "ln 100" {
		t.Errorf("report not fed out: %v", r.cmds)
	}
}

func TestTestPage(t *testing.T) {
	r := &recorder{}
	if err := TestPage(r); err != nil {
		t.Fatal(err)
	}
	want := []string{"ln 40", "text Hello World! If you're reading this I'm configured correctly! :D", "ln 40"}
	if strings.Join(r.cmds, "|") != strings.Join(want, "|") {
		t.Errorf("commands %v", r.cmds)
	}
}
