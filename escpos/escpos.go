// Package escpos drives receipt printers speaking the ESC/POS command set.
package escpos

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

const (
	esc = 0x1b
	gs  = 0x1d
)

// Printer is the set of commands a report is written with.
type Printer interface {
	// SetSize sets the character height and width multipliers, 1 to 8.
	SetSize(height, width int) error
	// LineSpacing sets the line spacing in motion units.
	LineSpacing(n int) error
	Text(s string) error
	TextLn(s string) error
	// Ln advances the paper by n lines.
	Ln(n int) error
	Cut() error
	Close() error
}

// CodePage is a character table both the printer and the encoder agree on.
type CodePage struct {
	Name string
	// Table is the ESC t argument selecting the page on the printer.
	Table   byte
	charmap *charmap.Charmap
}

var codePages = map[string]CodePage{
	"cp437":  {Name: "cp437", Table: 0, charmap: charmap.CodePage437},
	"cp850":  {Name: "cp850", Table: 2, charmap: charmap.CodePage850},
	"cp860":  {Name: "cp860", Table: 3, charmap: charmap.CodePage860},
	"cp863":  {Name: "cp863", Table: 4, charmap: charmap.CodePage863},
	"cp865":  {Name: "cp865", Table: 5, charmap: charmap.CodePage865},
	"cp1252": {Name: "cp1252", Table: 16, charmap: charmap.Windows1252},
	"cp866":  {Name: "cp866", Table: 17, charmap: charmap.CodePage866},
	"cp858":  {Name: "cp858", Table: 19, charmap: charmap.CodePage858},
}

// LookupCodePage finds a code page by name, e.g. "cp437" or "CP850".
func LookupCodePage(name string) (CodePage, error) {
	cp, ok := codePages[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return CodePage{}, fmt.Errorf("unsupported code page %q", name)
	}
	return cp, nil
}

// Encode transcodes s to the code page. Runes the page cannot represent
// become '?'.
func (cp CodePage) Encode(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r < 0x80 {
			out = append(out, byte(r))
			continue
		}
		b, ok := cp.charmap.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	return out
}

// Device writes ESC/POS commands to an underlying connection.
type Device struct {
	w  io.Writer
	cp CodePage
}

// NewDevice wraps w, resets the printer and selects the code page.
func NewDevice(w io.Writer, cp CodePage) (*Device, error) {
	d := &Device{w: w, cp: cp}
	if err := d.write([]byte{esc, '@', esc, 't', cp.Table}); err != nil {
		return nil, fmt.Errorf("initializing printer: %w", err)
	}
	return d, nil
}

func (d *Device) SetSize(height, width int) error {
	if height < 1 || height > 8 || width < 1 || width > 8 {
		return fmt.Errorf("character size %dx%d out of range 1-8", height, width)
	}
	n := byte((width-1)<<4 | (height - 1))
	return d.write([]byte{gs, '!', n})
}

func (d *Device) LineSpacing(n int) error {
	if n < 0 || n > 255 {
		return fmt.Errorf("line spacing %d out of range 0-255", n)
	}
	return d.write([]byte{esc, '3', byte(n)})
}

func (d *Device) Text(s string) error {
	return d.write(d.cp.Encode(s))
}

func (d *Device) TextLn(s string) error {
	return d.Text(s + "\n")
}

func (d *Device) Ln(n int) error {
	if n <= 0 {
		return nil
	}
	return d.write(bytes.Repeat([]byte{'\n'}, n))
}

// Cut performs a full paper cut.
func (d *Device) Cut() error {
	return d.write([]byte{gs, 'V', 0})
}

// Close closes the underlying connection if it can be closed.
func (d *Device) Close() error {
	if c, ok := d.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (d *Device) write(b []byte) error {
	n, err := d.w.Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return io.ErrShortWrite
	}
	return nil
}

// ErrClosed is returned by writes to a closed port.
var ErrClosed = errors.New("escpos: port closed")
