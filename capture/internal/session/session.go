// Package session owns one open capture handle and classifies its read
// outcomes. Exactly one session may be open at a time; the supervisor
// enforces that by construction rather than by locking.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/e7canasta/scopeview/capture/internal/backend"
	"github.com/e7canasta/scopeview/capture/internal/negotiate"
)

// ErrOpenFailed reports that the backend could not open the device.
// During recovery it is transient and retried against the reconnect
// budget.
var ErrOpenFailed = errors.New("session: open failed")

// Outcome classifies one read.
type Outcome int

const (
	// OutcomeFrame delivered a decoded payload.
	OutcomeFrame Outcome = iota
	// OutcomeEmpty is a poll that produced no data. Common, usually
	// transient, never an error by itself.
	OutcomeEmpty
	// OutcomeFatal means the handle reports itself invalid or
	// disconnected.
	OutcomeFatal
)

// probeInterval is the pause between probe reads while the stream spins
// up.
const probeInterval = 50 * time.Millisecond

// Session wraps one open handle. Lifecycle is open → read* → close;
// a session is never reused after Close, reopens construct a new one.
type Session struct {
	handle backend.Handle
	name   string
	format negotiate.Result
	closed bool
}

// Open acquires a handle for the locator on the given provider.
func Open(p backend.Provider, loc backend.Locator) (*Session, error) {
	h, err := p.Open(loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrOpenFailed, p.Name(), loc, err)
	}
	return &Session{handle: h, name: fmt.Sprintf("%s:%s", p.Name(), loc)}, nil
}

// Negotiate applies the format request and remembers the applied mode.
func (s *Session) Negotiate(req negotiate.Request) negotiate.Result {
	s.format = negotiate.Apply(s.handle, req)
	return s.format
}

// Format returns the mode applied by the last Negotiate.
func (s *Session) Format() negotiate.Result { return s.format }

// Read polls the handle once and classifies the result.
func (s *Session) Read() (*backend.Payload, Outcome) {
	if s.closed {
		return nil, OutcomeFatal
	}
	payload, err := s.handle.Read()
	if err != nil {
		slog.Debug("session: read failed", "session", s.name, "error", err)
		return nil, OutcomeFatal
	}
	if payload == nil {
		return nil, OutcomeEmpty
	}
	return payload, OutcomeFrame
}

// Probe reads up to n frames to confirm the stream is actually alive,
// returning the first delivered payload. Backends regularly open
// without complaint and then never produce data; a dead probe is how
// that is caught before the session is trusted.
func (s *Session) Probe(n int) (*backend.Payload, bool) {
	for i := 0; i < n; i++ {
		payload, outcome := s.Read()
		if outcome == OutcomeFrame {
			return payload, true
		}
		if outcome == OutcomeFatal {
			return nil, false
		}
		time.Sleep(probeInterval)
	}
	return nil, false
}

// Close releases the handle. Idempotent: closing a closed session is a
// no-op.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if err := s.handle.Release(); err != nil {
		slog.Debug("session: release failed", "session", s.name, "error", err)
	}
}

// Name identifies the session in logs ("dshow:0", "v4l2:/dev/video1").
func (s *Session) Name() string { return s.name }
