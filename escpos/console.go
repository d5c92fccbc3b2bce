package escpos

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Console previews a report in a terminal. Text printed at height 3 or more
// is shown bold and highlighted, and paper feeds are shortened.
type Console struct {
	w      io.Writer
	height int
	// MaxFeed caps the blank lines written for a single Ln call.
	MaxFeed int

	large *color.Color
	small *color.Color
}

// NewConsole returns a preview printer writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{
		w:       w,
		height:  1,
		MaxFeed: 2,
		large:   color.New(color.FgYellow, color.Bold),
		small:   color.New(color.FgWhite),
	}
}

func (c *Console) SetSize(height, width int) error {
	if height < 1 || height > 8 || width < 1 || width > 8 {
		return fmt.Errorf("character size %dx%d out of range 1-8", height, width)
	}
	c.height = height
	return nil
}

func (c *Console) LineSpacing(int) error {
	return nil
}

func (c *Console) Text(s string) error {
	style := c.small
	if c.height >= 3 {
		style = c.large
	}
	_, err := style.Fprint(c.w, s)
	return err
}

func (c *Console) TextLn(s string) error {
	if err := c.Text(s); err != nil {
		return err
	}
	_, err := io.WriteString(c.w, "\n")
	return err
}

func (c *Console) Ln(n int) error {
	n = min(n, c.MaxFeed)
	if n <= 0 {
		return nil
	}
	_, err := io.WriteString(c.w, strings.Repeat("\n", n))
	return err
}

func (c *Console) Cut() error {
	_, err := fmt.Fprintln(c.w, color.New(color.FgHiBlack).Sprint(strings.Repeat("- ", 16)))
	return err
}

func (c *Console) Close() error {
	return nil
}
