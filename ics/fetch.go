package ics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/perbu/calreceipt/agenda"
	"github.com/perbu/calreceipt/applog"
	"github.com/perbu/calreceipt/config"
	"github.com/perbu/calreceipt/dateparse"
)

// maxBody limits the size of a feed download.
const maxBody = 16 << 20

// Fetcher is an agenda.Source reading configured ICS feeds by name.
type Fetcher struct {
	client *http.Client
	feeds  map[string]string
	loc    *time.Location
}

// NewFetcher returns a Fetcher for the given feeds. Date-only and floating
// times are interpreted in loc.
func NewFetcher(feeds []config.ICSFeed, loc *time.Location) *Fetcher {
	if loc == nil {
		loc = time.Local
	}
	m := make(map[string]string, len(feeds))
	for _, f := range feeds {
		m[f.Name] = f.URL
	}
	return &Fetcher{
		client: &http.Client{Timeout: 15 * time.Second},
		feeds:  m,
		loc:    loc,
	}
}

// Fetch downloads the feed called name and returns its events inside w.
func (f *Fetcher) Fetch(ctx context.Context, name string, w dateparse.Window) ([]agenda.Event, error) {
	feedURL, ok := f.feeds[name]
	if !ok {
		return nil, &agenda.FetchError{CalendarID: name, Err: fmt.Errorf("no ics feed named %q in config", name)}
	}
	body, err := f.download(ctx, feedURL)
	if err != nil {
		applog.Error("ics fetch failed", err, "feed", name, "url", redactURL(feedURL))
		return nil, &agenda.FetchError{CalendarID: name, Err: err}
	}
	parsed, err := parse(body, f.loc)
	if err != nil {
		applog.Error("ics parse failed", err, "feed", name)
		return nil, &agenda.FetchError{CalendarID: name, Err: err}
	}
	events := expand(name, parsed, w, f.loc)
	applog.Debug("ics feed read", "feed", name, "vevents", len(parsed), "events", len(events))
	return events, nil
}

func (f *Fetcher) download(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/calendar")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBody))
}

// redactURL keeps only scheme and host; feed URLs often embed secrets.
func redactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "(redacted)"
	}
	return parsed.Scheme + "://" + parsed.Host + "/...(redacted)"
}
