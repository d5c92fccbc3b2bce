package escpos

import (
	"fmt"
	"os"
	"sync"
)

// Port is an open serial or USB printer device.
type Port struct {
	name string

	mu   sync.Mutex
	file *os.File
}

// OpenPort opens the character device at name for writing. TTY devices are
// switched to raw mode at the given baud rate; USB line printer devices are
// written as they are.
func OpenPort(name string, baud int) (*Port, error) {
	f, err := os.OpenFile(name, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("opening printer port %s: %w", name, err)
	}
	if err := configurePort(f, baud); err != nil {
		f.Close()
		return nil, fmt.Errorf("configuring printer port %s: %w", name, err)
	}
	return &Port{name: name, file: f}, nil
}

func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return 0, ErrClosed
	}
	return p.file.Write(b)
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return nil
	}
	err := p.file.Close()
	p.file = nil
	return err
}

func (p *Port) String() string {
	return p.name
}

// Open connects to the printer on port and returns a ready Device.
func Open(port string, baud int, codePage string) (*Device, error) {
	cp, err := LookupCodePage(codePage)
	if err != nil {
		return nil, err
	}
	p, err := OpenPort(port, baud)
	if err != nil {
		return nil, err
	}
	d, err := NewDevice(p, cp)
	if err != nil {
		p.Close()
		return nil, err
	}
	return d, nil
}
