package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/e7canasta/scopeview/capture/internal/backend"
)

// step scripts one read outcome for a fake handle.
type step struct {
	payload *backend.Payload
	err     error
}

func frameStep() step {
	return step{payload: &backend.Payload{Data: []byte{0xDE, 0xAD}, Width: 2, Height: 1}}
}

func emptySteps(n int) []step {
	return make([]step, n)
}

// fakeHandle replays a script; once it runs out reads deliver frames
// forever, so tests control exactly how many stalls occur.
type fakeHandle struct {
	mu     sync.Mutex
	script []step
	pos    int
}

func (h *fakeHandle) Set(backend.Prop, float64) error { return nil }
func (h *fakeHandle) Get(backend.Prop) float64        { return 0 }
func (h *fakeHandle) SetFourCC(string) error          { return nil }
func (h *fakeHandle) GetFourCC() string               { return "YUYV" }
func (h *fakeHandle) Release() error                  { return nil }

func (h *fakeHandle) Read() (*backend.Payload, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pos >= len(h.script) {
		return frameStep().payload, nil
	}
	s := h.script[h.pos]
	h.pos++
	return s.payload, s.err
}

// fakeProvider hands out one scripted handle per Open call, failing
// once the handles run out.
type fakeProvider struct {
	mu      sync.Mutex
	name    string
	devices []backend.DeviceInfo
	handles []*fakeHandle
	opens   int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Enumerate() ([]backend.DeviceInfo, error) { return p.devices, nil }

func (p *fakeProvider) Open(backend.Locator) (backend.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opens++
	if len(p.handles) == 0 {
		return nil, errors.New("device unplugged")
	}
	h := p.handles[0]
	p.handles = p.handles[1:]
	return h, nil
}

func (p *fakeProvider) openCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opens
}

func testConfig() Config {
	return Config{
		Selector:      "0",
		MaxEmpty:      3,
		MaxReconnects: 2,
		RetryDelay:    time.Millisecond,
	}
}

func newTestSupervisor(t *testing.T, cfg Config, providers ...backend.Provider) *Supervisor {
	t.Helper()
	sup, err := NewSupervisor(cfg)
	require.NoError(t, err)
	sup.providersFn = func() []backend.Provider { return providers }
	return sup
}

func collect(t *testing.T, frames <-chan Frame, n int) []Frame {
	t.Helper()
	var out []Frame
	deadline := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case f, ok := <-frames:
			if !ok {
				return out
			}
			out = append(out, f)
		case <-deadline:
			t.Fatalf("timed out after %d of %d frames", len(out), n)
		}
	}
	return out
}

func drain(t *testing.T, frames <-chan Frame) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-frames:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("frame channel never closed")
		}
	}
}

func TestNewSupervisor_FailFast(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{
			name:   "negative fps",
			mutate: func(c *Config) { c.Format.FPS = -1 },
			errMsg: "fps",
		},
		{
			name:   "negative resolution",
			mutate: func(c *Config) { c.Format.Width = -640 },
			errMsg: "resolution",
		},
		{
			name:   "bad fourcc length",
			mutate: func(c *Config) { c.Format.FourCC = "MJPEG" },
			errMsg: "exactly 4 characters",
		},
		{
			name:   "bad fallback fourcc",
			mutate: func(c *Config) { c.Format.FallbackFourCC = "YU" },
			errMsg: "exactly 4 characters",
		},
		{
			name:   "negative retry delay",
			mutate: func(c *Config) { c.RetryDelay = -time.Second },
			errMsg: "retry delay",
		},
		{
			name:   "negative frame limit",
			mutate: func(c *Config) { c.FrameLimit = -1 },
			errMsg: "frame limit",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := NewSupervisor(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSupervisor_Defaults(t *testing.T) {
	sup, err := NewSupervisor(Config{})
	require.NoError(t, err)
	require.Equal(t, defaultMaxEmpty, sup.cfg.MaxEmpty)
	require.Equal(t, defaultMaxReconnects, sup.cfg.MaxReconnects)
	require.Equal(t, defaultProbeFrames, sup.cfg.ProbeFrames)
	require.Equal(t, defaultRetryDelay, sup.cfg.RetryDelay)
	require.Equal(t, defaultChannelDepth, sup.cfg.ChannelDepth)
}

func TestSupervisor_DeliversFramesInOrder(t *testing.T) {
	cfg := testConfig()
	cfg.FrameLimit = 5
	sup := newTestSupervisor(t, cfg, &fakeProvider{
		name:    "fake",
		handles: []*fakeHandle{{}},
	})

	frames, err := sup.Start(context.Background())
	require.NoError(t, err)
	defer sup.Stop()

	got := collect(t, frames, 5)
	for i, f := range got {
		require.Equal(t, uint64(i+1), f.Seq)
		require.NotEmpty(t, f.Data)
		require.NotEmpty(t, f.TraceID)
		require.False(t, f.Timestamp.IsZero())
	}

	drain(t, frames)
	require.NoError(t, sup.Err())
}

func TestSupervisor_NoBackendWrapsDeviceNotFound(t *testing.T) {
	cfg := testConfig()
	cfg.Selector = "definitely-not-a-camera"
	sup := newTestSupervisor(t, cfg,
		&fakeProvider{name: "first"},
		&fakeProvider{name: "second"},
	)

	_, err := sup.Start(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, ErrDeviceNotFound)
	// Each backend's failure survives in the aggregate.
	require.Contains(t, err.Error(), "first")
	require.Contains(t, err.Error(), "second")
}

func TestSupervisor_FallsThroughToWorkingBackend(t *testing.T) {
	cfg := testConfig()
	cfg.FrameLimit = 1
	broken := &fakeProvider{name: "broken"}
	working := &fakeProvider{name: "working", handles: []*fakeHandle{{}}}
	sup := newTestSupervisor(t, cfg, broken, working)

	frames, err := sup.Start(context.Background())
	require.NoError(t, err)
	defer sup.Stop()

	collect(t, frames, 1)
	require.Equal(t, "working", sup.Device().Backend)
}

func TestSupervisor_ReopensAfterStall(t *testing.T) {
	cfg := testConfig()
	cfg.FrameLimit = 2

	// First handle: one good frame (consumed by the open probe), then
	// enough empties to trip the watchdog. Second handle streams fine.
	first := &fakeHandle{script: append([]step{frameStep()}, emptySteps(10)...)}
	second := &fakeHandle{}
	provider := &fakeProvider{name: "fake", handles: []*fakeHandle{first, second}}
	sup := newTestSupervisor(t, cfg, provider)

	frames, err := sup.Start(context.Background())
	require.NoError(t, err)
	defer sup.Stop()

	got := collect(t, frames, 2)
	require.Len(t, got, 2)
	drain(t, frames)

	require.NoError(t, sup.Err())
	require.Equal(t, 2, provider.openCount())
	st := sup.Stats()
	require.Equal(t, uint32(1), st.Reopens)
	require.Zero(t, st.Reconnects)
}

func TestSupervisor_ExhaustsReconnectBudget(t *testing.T) {
	cfg := testConfig()

	// One working handle that stalls for good; every reopen fails.
	first := &fakeHandle{script: append([]step{frameStep()}, emptySteps(100)...)}
	provider := &fakeProvider{name: "fake", handles: []*fakeHandle{first}}
	sup := newTestSupervisor(t, cfg, provider)

	frames, err := sup.Start(context.Background())
	require.NoError(t, err)
	defer sup.Stop()

	drain(t, frames)

	require.ErrorIs(t, sup.Err(), ErrExhausted)
	st := sup.Stats()
	require.Equal(t, uint32(2), st.Reconnects)
	require.Equal(t, "exhausted", st.WatchdogState)
	require.False(t, st.IsConnected)
}

func TestSupervisor_DisableRetryStopsAtFirstStall(t *testing.T) {
	cfg := testConfig()
	cfg.DisableRetry = true

	first := &fakeHandle{script: append([]step{frameStep()}, emptySteps(100)...)}
	second := &fakeHandle{}
	provider := &fakeProvider{name: "fake", handles: []*fakeHandle{first, second}}
	sup := newTestSupervisor(t, cfg, provider)

	frames, err := sup.Start(context.Background())
	require.NoError(t, err)
	defer sup.Stop()

	drain(t, frames)

	require.ErrorIs(t, sup.Err(), ErrExhausted)
	require.Equal(t, 1, provider.openCount(), "no reopen may be attempted")
}

func TestSupervisor_ProbeFailureFailsTheBackend(t *testing.T) {
	cfg := testConfig()
	cfg.ProbeFrames = 2

	// The handle opens fine but never delivers; the probe must reject
	// it and Start must report device-not-found.
	dead := &fakeHandle{script: emptySteps(1000)}
	sup := newTestSupervisor(t, cfg, &fakeProvider{name: "fake", handles: []*fakeHandle{dead}})

	_, err := sup.Start(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, ErrDeviceNotFound)
	require.Contains(t, err.Error(), "no frames during probe")
}

func TestSupervisor_StartTwiceFails(t *testing.T) {
	cfg := testConfig()
	sup := newTestSupervisor(t, cfg, &fakeProvider{name: "fake", handles: []*fakeHandle{{}}})

	frames, err := sup.Start(context.Background())
	require.NoError(t, err)
	defer sup.Stop()
	defer drainAsync(frames)

	_, err = sup.Start(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "already started")
}

func TestSupervisor_StopIsIdempotent(t *testing.T) {
	cfg := testConfig()
	sup := newTestSupervisor(t, cfg, &fakeProvider{name: "fake", handles: []*fakeHandle{{}}})

	frames, err := sup.Start(context.Background())
	require.NoError(t, err)
	go drainAsync(frames)

	require.NoError(t, sup.Stop())
	require.NoError(t, sup.Stop())
	require.NoError(t, sup.Err())
}

func TestSupervisor_StopBeforeStart(t *testing.T) {
	sup, err := NewSupervisor(testConfig())
	require.NoError(t, err)
	require.NoError(t, sup.Stop())
}

func TestSupervisor_ContextCancelClosesChannel(t *testing.T) {
	cfg := testConfig()
	sup := newTestSupervisor(t, cfg, &fakeProvider{name: "fake", handles: []*fakeHandle{{}}})

	ctx, cancel := context.WithCancel(context.Background())
	frames, err := sup.Start(ctx)
	require.NoError(t, err)

	collect(t, frames, 1)
	cancel()
	drain(t, frames)
	require.NoError(t, sup.Err())
}

func TestSupervisor_UsedFallback(t *testing.T) {
	cfg := testConfig()
	cfg.Selector = "" // auto-detect against a non-vendor camera
	cfg.FrameLimit = 1
	sup := newTestSupervisor(t, cfg, &fakeProvider{
		name:    "fake",
		devices: []backend.DeviceInfo{{Index: 0, Name: "Generic Webcam"}},
		handles: []*fakeHandle{{}},
	})

	frames, err := sup.Start(context.Background())
	require.NoError(t, err)
	defer sup.Stop()
	drainAsync(frames)

	require.True(t, sup.UsedFallback())
	require.Equal(t, "Generic Webcam", sup.Device().DisplayName)
}

func drainAsync(frames <-chan Frame) {
	go func() {
		for range frames {
		}
	}()
}
