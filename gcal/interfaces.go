package gcal

import (
	"context"

	"google.golang.org/api/calendar/v3"

	"github.com/perbu/calreceipt/dateparse"
)

// CalendarService defines the paged calls made against Google Calendar.
// An empty pageToken requests the first page.
type CalendarService interface {
	ListEventsPage(ctx context.Context, calendarID string, w dateparse.Window, pageToken string) (*calendar.Events, error)
	ListCalendarsPage(ctx context.Context, pageToken string) (*calendar.CalendarList, error)
}
