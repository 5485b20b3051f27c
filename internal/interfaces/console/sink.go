package console

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"pricewatch/internal/application/port"
)

// Sink renders to a terminal: one live line rewritten in place plus event
// lines printed above it.
type Sink struct {
	mu  sync.Mutex
	out io.Writer
}

func NewSink() *Sink { return NewSinkTo(os.Stdout) }

func NewSinkTo(w io.Writer) *Sink { return &Sink{out: w} }

func (s *Sink) WriteLive(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprint(s.out, line) // no newline
	return err
}

// WriteEvent ends the live line, prints the event and leaves the cursor on a
// fresh line; the live line is redrawn on the next update.
func (s *Sink) WriteEvent(ts time.Time, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.out, "\r\033[K%s %s\n", ts.Format("2006-01-02 15:04:05"), line)
	return err
}

func (s *Sink) Bell() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprint(s.out, "\a")
	return err
}

func (s *Sink) NewLine() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprint(s.out, "\n")
	return err
}

var _ port.Sink = (*Sink)(nil)
