// Package printer drives the thermal receipt printer.
package printer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"deathteller/skull/internal/log"
)

const (
	DefaultColumns = 32
	lineFeed       = 0x0A
	feedLines      = 3
)

var (
	ErrNotReady = errors.New("printer not ready")
	ErrNoDevice = errors.New("no printer device configured")
)

var logo = []string{
	"DEATH'S FORTUNE",
	"+-------------+",
	"|    DEATH    |",
	"+-------------+",
}

// Printer writes fortunes to a device. A write failure latches a fault and the
// printer stays not ready until Reset.
type Printer struct {
	mu      sync.Mutex
	dev     io.Writer
	closer  io.Closer
	columns int
	fault   error
	printed int
}

func New(dev io.Writer, columns int) *Printer {
	if columns <= 0 {
		columns = DefaultColumns
	}
	p := &Printer{dev: dev, columns: columns}
	if c, ok := dev.(io.Closer); ok {
		p.closer = c
	}
	return p
}

// Open opens a device node such as /dev/usb/lp0 or a serial adapter. A tty
// is switched to raw output at baud. An empty path yields a printer that is
// never ready.
func Open(path string, columns, baud int) (*Printer, error) {
	if path == "" {
		return New(nil, columns), ErrNoDevice
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return New(nil, columns), fmt.Errorf("open printer %s: %w", path, err)
	}
	isTTY, err := configureTTY(f, baud)
	if err != nil {
		f.Close()
		return New(nil, columns), fmt.Errorf("configure printer %s: %w", path, err)
	}
	if isTTY {
		log.Info("printer opened", "device", path, "columns", columns, "baud", baud)
	} else {
		log.Info("printer opened", "device", path, "columns", columns)
	}
	return New(f, columns), nil
}

func (p *Printer) IsReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dev != nil && p.fault == nil
}

// Fault returns the latched write error, if any.
func (p *Printer) Fault() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fault
}

func (p *Printer) Reset() {
	p.mu.Lock()
	p.fault = nil
	p.mu.Unlock()
}

func (p *Printer) Printed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.printed
}

func (p *Printer) PrintFortune(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dev == nil || p.fault != nil {
		return ErrNotReady
	}

	var b strings.Builder
	for _, line := range logo {
		b.WriteString(center(line, p.columns))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	for _, line := range Wrap(text, p.columns) {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(center("--- Death's Fortune ---", p.columns))
	b.WriteByte('\n')
	for i := 0; i < feedLines; i++ {
		b.WriteByte(lineFeed)
	}

	if _, err := io.WriteString(p.dev, b.String()); err != nil {
		p.fault = err
		log.Error("printer write failed", "error", err)
		return fmt.Errorf("print fortune: %w", err)
	}
	p.printed++
	return nil
}

func (p *Printer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closer == nil {
		return nil
	}
	err := p.closer.Close()
	p.dev, p.closer = nil, nil
	return err
}

// Wrap breaks text into lines of at most width runes on word boundaries.
// Words longer than width are split.
func Wrap(text string, width int) []string {
	if width <= 0 {
		width = DefaultColumns
	}
	var lines []string
	var cur []rune
	for _, word := range strings.Fields(text) {
		w := []rune(word)
		for len(w) > width {
			if len(cur) > 0 {
				lines = append(lines, string(cur))
				cur = nil
			}
			lines = append(lines, string(w[:width]))
			w = w[width:]
		}
		switch {
		case len(cur) == 0:
			cur = w
		case len(cur)+1+len(w) <= width:
			cur = append(append(cur, ' '), w...)
		default:
			lines = append(lines, string(cur))
			cur = w
		}
	}
	if len(cur) > 0 {
		lines = append(lines, string(cur))
	}
	return lines
}

func center(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	return strings.Repeat(" ", (width-n)/2) + s
}
