package session

import (
	"errors"
	"testing"

	"github.com/e7canasta/scopeview/capture/internal/backend"
)

// scriptedHandle plays back a fixed sequence of read outcomes. A nil
// entry is an empty poll, a non-nil one a frame; readErr fires once the
// script runs out when set, otherwise reads keep coming up empty.
type scriptedHandle struct {
	script   []*backend.Payload
	pos      int
	readErr  error
	released int
}

func (h *scriptedHandle) Set(backend.Prop, float64) error { return nil }
func (h *scriptedHandle) Get(backend.Prop) float64        { return 0 }
func (h *scriptedHandle) SetFourCC(string) error          { return nil }
func (h *scriptedHandle) GetFourCC() string               { return "YUYV" }
func (h *scriptedHandle) Release() error                  { h.released++; return nil }

func (h *scriptedHandle) Read() (*backend.Payload, error) {
	if h.pos >= len(h.script) {
		if h.readErr != nil {
			return nil, h.readErr
		}
		return nil, nil
	}
	p := h.script[h.pos]
	h.pos++
	return p, nil
}

type scriptedProvider struct {
	handle  backend.Handle
	openErr error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Enumerate() ([]backend.DeviceInfo, error) { return nil, nil }

func (p *scriptedProvider) Open(backend.Locator) (backend.Handle, error) {
	if p.openErr != nil {
		return nil, p.openErr
	}
	return p.handle, nil
}

func frame() *backend.Payload {
	return &backend.Payload{Data: []byte{1, 2, 3}, Width: 4, Height: 2}
}

func TestOpen_WrapsFailure(t *testing.T) {
	p := &scriptedProvider{openErr: errors.New("device busy")}
	_, err := Open(p, backend.Locator{Index: 0})
	if !errors.Is(err, ErrOpenFailed) {
		t.Fatalf("got %v, want ErrOpenFailed", err)
	}
}

func TestRead_Classification(t *testing.T) {
	h := &scriptedHandle{
		script:  []*backend.Payload{frame(), nil},
		readErr: errors.New("handle disconnected"),
	}
	s, err := Open(&scriptedProvider{handle: h}, backend.Locator{Index: 0})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if p, outcome := s.Read(); outcome != OutcomeFrame || p == nil {
		t.Fatalf("read 1: got (%v, %v), want a frame", p, outcome)
	}
	if _, outcome := s.Read(); outcome != OutcomeEmpty {
		t.Fatalf("read 2: got %v, want OutcomeEmpty", outcome)
	}
	if _, outcome := s.Read(); outcome != OutcomeFatal {
		t.Fatalf("read 3: got %v, want OutcomeFatal", outcome)
	}
}

func TestRead_AfterCloseIsFatal(t *testing.T) {
	h := &scriptedHandle{script: []*backend.Payload{frame()}}
	s, _ := Open(&scriptedProvider{handle: h}, backend.Locator{Index: 0})
	s.Close()

	if _, outcome := s.Read(); outcome != OutcomeFatal {
		t.Fatalf("got %v, want OutcomeFatal on closed session", outcome)
	}
}

func TestProbe_ReturnsFirstFrame(t *testing.T) {
	h := &scriptedHandle{script: []*backend.Payload{nil, nil, frame()}}
	s, _ := Open(&scriptedProvider{handle: h}, backend.Locator{Index: 0})

	p, ok := s.Probe(5)
	if !ok {
		t.Fatal("probe failed, want success on third read")
	}
	if len(p.Data) != 3 {
		t.Errorf("probe must return the delivered payload, got %v", p)
	}
}

func TestProbe_DeadStream(t *testing.T) {
	h := &scriptedHandle{}
	s, _ := Open(&scriptedProvider{handle: h}, backend.Locator{Index: 0})

	if _, ok := s.Probe(3); ok {
		t.Fatal("probe succeeded on a stream that never delivers")
	}
}

func TestProbe_FatalAborts(t *testing.T) {
	h := &scriptedHandle{readErr: errors.New("gone")}
	s, _ := Open(&scriptedProvider{handle: h}, backend.Locator{Index: 0})

	if _, ok := s.Probe(10); ok {
		t.Fatal("probe succeeded on a fatal handle")
	}
	// A fatal read aborts immediately instead of burning the full
	// probe budget.
	if h.pos != 0 {
		t.Errorf("script position %d, want 0 (errors come from the empty tail)", h.pos)
	}
}

func TestClose_Idempotent(t *testing.T) {
	h := &scriptedHandle{}
	s, _ := Open(&scriptedProvider{handle: h}, backend.Locator{Index: 0})

	s.Close()
	s.Close()
	if h.released != 1 {
		t.Fatalf("handle released %d times, want 1", h.released)
	}
}

func TestName(t *testing.T) {
	s, _ := Open(&scriptedProvider{handle: &scriptedHandle{}}, backend.Locator{Path: "/dev/video2"})
	if s.Name() != "scripted:/dev/video2" {
		t.Errorf("got name %q", s.Name())
	}
}
