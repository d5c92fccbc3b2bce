package gcal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/perbu/calreceipt/agenda"
	"github.com/perbu/calreceipt/applog"
	"github.com/perbu/calreceipt/config"
	"github.com/perbu/calreceipt/dateparse"
)

const dateLayout = "2006-01-02"

// GCalService fetches events and calendars from the Google Calendar API.
type GCalService struct {
	service CalendarService
	loc     *time.Location
}

// NewGCalService obtains a credential through loader and connects to the
// Calendar API. All-day dates are interpreted in loc.
func NewGCalService(ctx context.Context, loader config.Loader, interactive bool, loc *time.Location) (*GCalService, error) {
	client, err := NewClient(ctx, loader, interactive)
	if err != nil {
		return nil, err
	}

	srv, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("creating calendar service: %w", err)
	}
	return New(&apiService{service: srv}, loc), nil
}

// New wraps an existing CalendarService.
func New(service CalendarService, loc *time.Location) *GCalService {
	if loc == nil {
		loc = time.Local
	}
	return &GCalService{service: service, loc: loc}
}

// Fetch returns every event of calendarID in the window, following
// continuation tokens until the last page. Events keep the order the pages
// returned them in. API failures are logged and returned as *agenda.FetchError.
func (g *GCalService) Fetch(ctx context.Context, calendarID string, w dateparse.Window) ([]agenda.Event, error) {
	var (
		events    []agenda.Event
		pageToken string
		pages     int
	)
	for {
		page, err := g.service.ListEventsPage(ctx, calendarID, w, pageToken)
		if err != nil {
			applog.Error("listing events failed", err, "calendar", calendarID, "page", pages)
			return nil, &agenda.FetchError{CalendarID: calendarID, Err: err}
		}
		pages++
		for _, item := range page.Items {
			if item.Status == "cancelled" {
				continue
			}
			ev, err := toEvent(calendarID, item, g.loc)
			if err != nil {
				applog.Error("skipping event", err, "calendar", calendarID, "id", item.Id)
				continue
			}
			events = append(events, ev)
		}
		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}
	applog.Debug("fetched events", "calendar", calendarID, "events", len(events), "pages", pages)
	return events, nil
}

// CalendarInfo describes an entry of the user's calendar list.
type CalendarInfo struct {
	ID       string
	Summary  string
	TimeZone string
	Primary  bool
}

// ListCalendars returns every calendar on the user's calendar list.
func (g *GCalService) ListCalendars(ctx context.Context) ([]CalendarInfo, error) {
	var (
		out       []CalendarInfo
		pageToken string
	)
	for {
		page, err := g.service.ListCalendarsPage(ctx, pageToken)
		if err != nil {
			return nil, fmt.Errorf("listing calendars: %w", err)
		}
		for _, item := range page.Items {
			out = append(out, CalendarInfo{
				ID:       item.Id,
				Summary:  item.Summary,
				TimeZone: item.TimeZone,
				Primary:  item.Primary,
			})
		}
		pageToken = page.NextPageToken
		if pageToken == "" {
			return out, nil
		}
	}
}

func toEvent(calendarID string, item *calendar.Event, loc *time.Location) (agenda.Event, error) {
	start, err := parseWhen(item.Start, loc)
	if err != nil {
		return agenda.Event{}, fmt.Errorf("start: %w", err)
	}
	end, err := parseWhen(item.End, loc)
	if err != nil {
		// Events without an end are treated as instantaneous.
		end = start
	}
	return agenda.Event{
		CalendarID:  calendarID,
		Summary:     item.Summary,
		Start:       start,
		End:         end,
		Location:    item.Location,
		Description: item.Description,
	}, nil
}

// parseWhen reads an API date-time (RFC 3339 with offset) or an all-day date.
func parseWhen(dt *calendar.EventDateTime, loc *time.Location) (agenda.When, error) {
	if dt == nil {
		return agenda.When{}, errors.New("missing time")
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return agenda.When{}, fmt.Errorf("parsing %q: %w", dt.DateTime, err)
		}
		return agenda.At(t), nil
	}
	if dt.Date != "" {
		d, err := time.ParseInLocation(dateLayout, dt.Date, loc)
		if err != nil {
			return agenda.When{}, fmt.Errorf("parsing %q: %w", dt.Date, err)
		}
		return agenda.OnDate(d.Year(), d.Month(), d.Day(), loc), nil
	}
	return agenda.When{}, errors.New("neither dateTime nor date set")
}

// apiService implements CalendarService on the generated API client.
type apiService struct {
	service *calendar.Service
}

func (s *apiService) ListEventsPage(ctx context.Context, calendarID string, w dateparse.Window, pageToken string) (*calendar.Events, error) {
	call := s.service.Events.List(calendarID).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(w.TimeMin()).
		TimeMax(w.TimeMax()).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	return call.Do()
}

func (s *apiService) ListCalendarsPage(ctx context.Context, pageToken string) (*calendar.CalendarList, error) {
	call := s.service.CalendarList.List().Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	return call.Do()
}
