package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/perbu/calreceipt/agenda"
	"github.com/perbu/calreceipt/applog"
	"github.com/perbu/calreceipt/config"
	"github.com/perbu/calreceipt/dateparse"
	"github.com/perbu/calreceipt/escpos"
	"github.com/perbu/calreceipt/gcal"
	"github.com/perbu/calreceipt/ics"
	"github.com/perbu/calreceipt/report"
)

//go:embed .version
var embeddedVersion string

func usage() {
	fmt.Println("calreceipt - print your Google Calendar day on a receipt printer, version", strings.TrimSpace(embeddedVersion))
	fmt.Println("Usage: calreceipt [command] [date]")
	fmt.Println("Commands:")
	fmt.Println("  report [date]   print the day's report (default command)")
	fmt.Println("  preview [date]  show the report in the terminal")
	fmt.Println("  test            print a test page")
	fmt.Println("  calendars       list the calendars of the account")
	fmt.Println("  daemon          print the report on the configured schedule")
	fmt.Println("Dates: today, tomorrow, yesterday or YYYY-MM-DD")
}

func run(ctx context.Context, args []string) error {
	// Initialize configuration loader
	loader, err := config.NewFileLoader()
	if err != nil {
		return fmt.Errorf("config.NewFileLoader: %w", err)
	}

	// Load configuration
	cfg, err := loader.LoadConfig()
	if err != nil {
		return fmt.Errorf("loader.LoadConfig: %w", err)
	}
	applog.SetLevel(applog.ParseLevel(cfg.LogLevel))

	command := "report"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	switch command {
	case "help", "-h", "--help":
		usage()
		return nil
	case "test":
		if len(args) > 0 {
			return errors.New("test takes no arguments")
		}
		return printTestPage(cfg)
	case "calendars":
		return listCalendars(ctx, loader)
	case "daemon":
		return runDaemon(ctx, loader, cfg)
	case "report", "preview":
		if len(args) > 1 {
			return errors.New("too many arguments")
		}
		dayArg := ""
		if len(args) == 1 {
			dayArg = args[0]
		}
		day, err := dateparse.New().Parse(dayArg)
		if err != nil {
			return err
		}
		if command == "preview" {
			return previewReport(ctx, loader, cfg, day)
		}
		return printReport(ctx, loader, cfg, day, gcal.Interactive())
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func printTestPage(cfg *config.Config) error {
	p, err := openPrinter(cfg)
	if err != nil {
		return err
	}
	defer p.Close()
	if err := report.TestPage(p); err != nil {
		return fmt.Errorf("report.TestPage: %w", err)
	}
	applog.Info("test page printed", "port", cfg.Printer.Port)
	return nil
}

func printReport(ctx context.Context, loader config.Loader, cfg *config.Config, day time.Time, interactive bool) error {
	src, err := newSource(ctx, loader, cfg, interactive)
	if err != nil {
		return err
	}
	p, err := openPrinter(cfg)
	if err != nil {
		return err
	}
	defer p.Close()
	return generate(ctx, p, src, loader, cfg, day)
}

func previewReport(ctx context.Context, loader config.Loader, cfg *config.Config, day time.Time) error {
	src, err := newSource(ctx, loader, cfg, gcal.Interactive())
	if err != nil {
		return err
	}
	return generate(ctx, escpos.NewConsole(os.Stdout), src, loader, cfg, day)
}

func generate(ctx context.Context, p escpos.Printer, src agenda.Source, loader config.Loader, cfg *config.Config, day time.Time) error {
	prefs, err := loader.LoadPreferences()
	if err != nil {
		return fmt.Errorf("loader.LoadPreferences: %w", err)
	}
	order, err := agenda.ParseOrder(cfg.Report.Order)
	if err != nil {
		return err
	}
	req := report.Request{
		Calendars:   cfg.Calendars,
		Day:         day,
		Preferences: *prefs,
		Options:     report.OptionsFromConfig(cfg.Report, time.Local),
		Order:       order,
		Cut:         cfg.Printer.Cut,
	}
	res, err := report.Generate(ctx, p, src, req)
	if err != nil {
		return fmt.Errorf("report.Generate: %w", err)
	}
	applog.Info("report printed", "day", day.Format("2006-01-02"), "events", res.Events, "failed", strings.Join(res.Failed, ","))
	return nil
}

// newSource wires the configured ICS feeds and, when any calendar needs it,
// the Google Calendar API.
func newSource(ctx context.Context, loader config.Loader, cfg *config.Config, interactive bool) (agenda.Source, error) {
	var fallback agenda.Source
	if needsGoogle(cfg.Calendars) {
		g, err := gcal.NewGCalService(ctx, loader, interactive, time.Local)
		if err != nil {
			return nil, fmt.Errorf("gcal.NewGCalService: %w", err)
		}
		fallback = g
	}
	mux := agenda.NewMux(fallback)
	if len(cfg.ICS) > 0 {
		mux.Handle("ics", ics.NewFetcher(cfg.ICS, time.Local))
	}
	return mux, nil
}

func needsGoogle(calendars []string) bool {
	for _, id := range calendars {
		if !agenda.HasScheme(id, "ics") {
			return true
		}
	}
	return false
}

func listCalendars(ctx context.Context, loader config.Loader) error {
	g, err := gcal.NewGCalService(ctx, loader, gcal.Interactive(), time.Local)
	if err != nil {
		return fmt.Errorf("gcal.NewGCalService: %w", err)
	}
	cals, err := g.ListCalendars(ctx)
	if err != nil {
		return err
	}
	gcal.PrintCalendars(os.Stdout, cals)
	return nil
}

func openPrinter(cfg *config.Config) (*escpos.Device, error) {
	p, err := escpos.Open(cfg.Printer.Port, cfg.Printer.Baud, cfg.Printer.CodePage)
	if err != nil {
		return nil, fmt.Errorf("escpos.Open: %w", err)
	}
	return p, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		stop()
		log.Fatal(err)
	}
}
