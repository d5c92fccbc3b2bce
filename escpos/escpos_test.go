package escpos

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func newTestDevice(t *testing.T) (*Device, *bytes.Buffer) {
	t.Helper()
	cp, err := LookupCodePage("CP437")
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	d, err := NewDevice(&buf, cp)
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	buf.Reset()
	return d, &buf
}

func TestNewDeviceInitializes(t *testing.T) {
	cp, _ := LookupCodePage("cp858")
	var buf bytes.Buffer
	if _, err := NewDevice(&buf, cp); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x1b, '@', 0x1b, 't', 19}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("init bytes = % x, want % x", buf.Bytes(), want)
	}
}

func TestDeviceCommands(t *testing.T) {
	tests := []struct {
		name string
		run  func(d *Device) error
		want []byte
	}{
		{"size 3x3", func(d *Device) error { return d.SetSize(3, 3) }, []byte{0x1d, '!', 0x22}},
		{"size 2 high 1 wide", func(d *Device) error { return d.SetSize(2, 1) }, []byte{0x1d, '!', 0x01}},
		{"line spacing", func(d *Device) error { return d.LineSpacing(3) }, []byte{0x1b, '3', 3}},
		{"feed", func(d *Device) error { return d.Ln(3) }, []byte("\n\n\n")},
		{"feed zero", func(d *Device) error { return d.Ln(0) }, nil},
		{"text line", func(d *Device) error { return d.TextLn("Hi") }, []byte("Hi\n")},
		{"code page text", func(d *Device) error { return d.Text("Café ✓") }, []byte{'C', 'a', 'f', 0x82, ' ', '?'}},
		{"cut", func(d *Device) error { return d.Cut() }, []byte{0x1d, 'V', 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, buf := newTestDevice(t)
			if err := tt.run(d); err != nil {
				t.Fatalf("command failed: %v", err)
			}
			if !bytes.Equal(buf.Bytes(), tt.want) {
				t.Errorf("wrote % x, want % x", buf.Bytes(), tt.want)
			}
		})
	}
}

func TestDeviceRejectsOutOfRange(t *testing.T) {
	d, buf := newTestDevice(t)
	if err := d.SetSize(9, 1); err == nil {
		t.Error("SetSize(9, 1) succeeded")
	}
	if err := d.LineSpacing(256); err == nil {
		t.Error("LineSpacing(256) succeeded")
	}
	if buf.Len() != 0 {
		t.Errorf("rejected commands wrote % x", buf.Bytes())
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("paper jam") }

func TestDeviceWriteError(t *testing.T) {
	cp, _ := LookupCodePage("cp437")
	if _, err := NewDevice(failingWriter{}, cp); err == nil {
		t.Fatal("NewDevice succeeded on a failing writer")
	}
}

func TestLookupCodePageUnknown(t *testing.T) {
	if _, err := LookupCodePage("ebcdic"); err == nil {
		t.Error("expected error for unknown code page")
	}
}

func TestOpenPlainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lp0")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	d, err := Open(path, 9600, "cp437")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := d.TextLn("hello"); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.Text("after close"); !errors.Is(err, ErrClosed) {
		t.Errorf("write after close = %v, want ErrClosed", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := append([]byte{0x1b, '@', 0x1b, 't', 0}, "hello\n"...)
	if !bytes.Equal(got, want) {
		t.Errorf("file contents % x, want % x", got, want)
	}
}

func TestConsole(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	c := NewConsole(&buf)

	steps := []error{
		c.SetSize(3, 3),
		c.TextLn("Standup"),
		c.SetSize(2, 2),
		c.TextLn("09:00 AM - 09:15 AM"),
		c.Ln(100),
		c.Text("Room 4"),
	}
	for i, err := range steps {
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	want := "Standup\n09:00 AM - 09:15 AM\n\n\nRoom 4"
	if got := buf.String(); got != want {
		t.Errorf("console output %q, want %q", got, want)
	}
	if strings.Count(buf.String(), "\n") > 4 {
		t.Error("feed was not capped")
	}
}
