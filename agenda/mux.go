package agenda

import (
	"context"
	"errors"
	"strings"

	"github.com/perbu/calreceipt/dateparse"
)

// Mux routes calendar ids of the form "<scheme>:<name>" to the source
// registered for the scheme, passing it only the name. Other ids go to the
// fallback source.
type Mux struct {
	fallback Source
	schemes  map[string]Source
}

// NewMux returns a Mux. fallback may be nil.
func NewMux(fallback Source) *Mux {
	return &Mux{fallback: fallback, schemes: make(map[string]Source)}
}

func (m *Mux) Handle(scheme string, s Source) {
	m.schemes[scheme] = s
}

func (m *Mux) Fetch(ctx context.Context, calendarID string, w dateparse.Window) ([]Event, error) {
	if scheme, name, ok := strings.Cut(calendarID, ":"); ok {
		if s, found := m.schemes[scheme]; found {
			return s.Fetch(ctx, name, w)
		}
	}
	if m.fallback == nil {
		return nil, &FetchError{CalendarID: calendarID, Err: errors.New("no source for calendar")}
	}
	return m.fallback.Fetch(ctx, calendarID, w)
}

// HasScheme reports whether calendarID names the given scheme.
func HasScheme(calendarID, scheme string) bool {
	return strings.HasPrefix(calendarID, scheme+":")
}
