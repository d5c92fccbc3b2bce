package gcal

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// PrintCalendars writes one line per calendar: id, name and time zone, with
// the primary calendar marked.
func PrintCalendars(w io.Writer, cals []CalendarInfo) {
	headerColor := color.New(color.FgCyan, color.Bold).SprintFunc()
	warnColor := color.New(color.FgRed, color.Bold).SprintFunc()
	subtle := color.New(color.FgHiBlack).SprintFunc()
	summaryColor := color.New(color.FgYellow, color.Bold).SprintFunc()

	if len(cals) == 0 {
		fmt.Fprintln(w, warnColor("No calendars found."))
		return
	}
	for _, c := range cals {
		marker := ""
		if c.Primary {
			marker = " " + headerColor("(primary)")
		}
		fmt.Fprintf(w, " - %s%s %s %s\n",
			summaryColor(c.Summary),
			marker,
			c.ID,
			subtle("["+c.TimeZone+"]"),
		)
	}
}
