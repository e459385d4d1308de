// Package navserial reads navigation state and save commands from an INS
// serial port that emits one JSON object per line.
package navserial

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"go.bug.st/serial"
	"tailscale.com/tsweb"

	"github.com/banshee-data/costmap/internal/costmap/l1packets"
	"github.com/banshee-data/costmap/internal/monitoring"
)

// Port is the minimal interface needed from a serial port.
type Port interface {
	io.Reader
	io.Closer
}

// Sink accepts decoded messages without blocking.
type Sink interface {
	Enqueue(msg l1packets.Message) bool
}

// Status summarises what a Source has read.
type Status struct {
	Lines    int64     `json:"lines"`
	Poses    int64     `json:"poses"`
	Saves    int64     `json:"saves"`
	Errors   int64     `json:"errors"`
	Dropped  int64     `json:"dropped"`
	LastLine string    `json:"last_line,omitempty"`
	LastSeen time.Time `json:"last_seen,omitempty"`
}

// Source turns serial lines into messages for a Sink.
type Source struct {
	port Port
	sink Sink

	mu     sync.Mutex
	status Status
}

// NewSource wraps an open port.
func NewSource(port Port, sink Sink) *Source {
	return &Source{port: port, sink: sink}
}

// Open opens the serial port at path and returns a Source reading from it.
func Open(path string, opts PortOptions, sink Sink) (*Source, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return NewSource(port, sink), nil
}

// Monitor reads lines until ctx is cancelled or the port reaches EOF.
// Malformed lines are logged and skipped.
func (s *Source) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)
	lines := make(chan string)
	scanErr := make(chan error, 1)

	// Scan blocks until the port yields data or is closed.
	go func() {
		defer close(lines)
		for scan.Scan() {
			select {
			case lines <- scan.Text():
			case <-ctx.Done():
				scanErr <- ctx.Err()
				return
			}
		}
		scanErr <- scan.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			s.handleLine(line)
		}
	}
}

func (s *Source) handleLine(line string) {
	msg, err := ParseLine(line)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Lines++
	s.status.LastLine = line
	s.status.LastSeen = time.Now()
	if err != nil {
		s.status.Errors++
		monitoring.Warnf("navserial: %v", err)
		return
	}
	if msg == nil {
		return
	}
	switch msg.(type) {
	case *l1packets.NavState:
		s.status.Poses++
	case *l1packets.SaveCommand:
		s.status.Saves++
	}
	if s.sink != nil && !s.sink.Enqueue(msg) {
		s.status.Dropped++
	}
}

// Status returns a copy of the counters.
func (s *Source) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Close closes the underlying port.
func (s *Source) Close() error {
	return s.port.Close()
}

// AttachAdminRoutes registers a status endpoint on the tsweb debug mux.
func (s *Source) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.Handle("navserial", "INS serial status", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.Status()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}))
}
