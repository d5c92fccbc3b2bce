package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/perbu/calreceipt/applog"
	"github.com/perbu/calreceipt/config"
	"github.com/perbu/calreceipt/dateparse"
	"github.com/perbu/calreceipt/gcal"
)

// cronLogger sends cron's own log lines to applog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	applog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	applog.Error("cron: "+msg, err, keysAndValues...)
}

// newScheduler returns a cron scheduler running job on schedule. A run that
// is still printing when the next one is due causes that one to be skipped.
func newScheduler(schedule string, loc *time.Location, job func()) (*cron.Cron, error) {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(schedule, job); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return c, nil
}

// runDaemon prints the report of the current day on cfg.Schedule until ctx
// is cancelled. Login happens once at startup; scheduled runs never prompt.
func runDaemon(ctx context.Context, loader config.Loader, cfg *config.Config) error {
	if needsGoogle(cfg.Calendars) {
		if _, _, err := gcal.ObtainToken(ctx, loader, gcal.Interactive()); err != nil {
			return err
		}
	}

	parser := dateparse.New()
	c, err := newScheduler(cfg.Schedule, time.Local, func() {
		day, err := parser.Parse("today")
		if err != nil {
			applog.Error("scheduled report failed", err)
			return
		}
		if err := printReport(ctx, loader, cfg, day, false); err != nil {
			var authErr *gcal.AuthError
			if errors.As(err, &authErr) {
				applog.Error("scheduled report needs a new login, run 'calreceipt report' interactively", err)
				return
			}
			applog.Error("scheduled report failed", err)
		}
	})
	if err != nil {
		return err
	}

	c.Start()
	for _, e := range c.Entries() {
		applog.Info("daemon started", "schedule", cfg.Schedule, "next", e.Next.Format(time.RFC3339))
	}
	<-ctx.Done()
	applog.Info("signal received, shutting down")
	<-c.Stop().Done()
	return nil
}
