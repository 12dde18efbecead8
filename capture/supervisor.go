package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/scopeview/capture/internal/backend"
	"github.com/e7canasta/scopeview/capture/internal/negotiate"
	"github.com/e7canasta/scopeview/capture/internal/resolve"
	"github.com/e7canasta/scopeview/capture/internal/session"
	"github.com/e7canasta/scopeview/capture/internal/watchdog"
)

// pollBackoff is the pause after a tolerated empty read, keeping the
// read loop from spinning while the sensor warms up.
const pollBackoff = 10 * time.Millisecond

// stopTimeout bounds how long Stop waits for the capture goroutine.
const stopTimeout = 3 * time.Second

// Supervisor owns one capture session end to end: it resolves the
// device, negotiates a format, delivers frames on a channel and keeps
// the session alive through stalls until its reconnect budget runs
// out. A Supervisor runs at most once; build a new one to start over.
type Supervisor struct {
	cfg Config

	mu          sync.Mutex
	cancel      context.CancelFunc
	frames      chan Frame
	sess        *session.Session
	provider    backend.Provider
	locator     backend.Locator
	desc        DeviceDescriptor
	format      FormatResult
	pending     *backend.Payload
	fallback    bool
	err         error
	startedAt   time.Time
	lastFrameAt time.Time

	wg           sync.WaitGroup
	framesClosed atomic.Bool

	frameCount uint64
	emptyReads uint64
	bytesRead  uint64
	reopens    uint32

	dogState    atomic.Int32
	dogEmpty    atomic.Int64
	dogRetries  atomic.Int64
	disconnects atomic.Bool

	// providersFn is the backend search order; replaced in tests.
	providersFn func() []backend.Provider
}

// NewSupervisor validates cfg and builds a supervisor. Nothing touches
// the hardware until Start.
func NewSupervisor(cfg Config) (*Supervisor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := &Supervisor{cfg: cfg.withDefaults()}
	s.providersFn = s.platformProviders
	return s, nil
}

// platformProviders returns the backend candidates in platform
// preference order. An explicit Backend narrows the list to one entry
// (plus the native V4L2 path when raw capture is requested on Linux).
func (s *Supervisor) platformProviders() []backend.Provider {
	nativeFirst := s.cfg.NoConvert && runtime.GOOS == "linux"

	switch s.cfg.Backend {
	case BackendDShow:
		return []backend.Provider{backend.NewOpenCV(backend.KindDShow)}
	case BackendMSMF:
		return []backend.Provider{backend.NewOpenCV(backend.KindMSMF)}
	case BackendV4L2:
		if nativeFirst {
			return []backend.Provider{backend.NewNative(), backend.NewOpenCV(backend.KindV4L2)}
		}
		return []backend.Provider{backend.NewOpenCV(backend.KindV4L2)}
	case BackendAny:
		return []backend.Provider{backend.NewOpenCV(backend.KindAny)}
	}

	if runtime.GOOS == "windows" {
		return []backend.Provider{
			backend.NewOpenCV(backend.KindDShow),
			backend.NewOpenCV(backend.KindMSMF),
			backend.NewOpenCV(backend.KindAny),
		}
	}
	if nativeFirst {
		return []backend.Provider{
			backend.NewNative(),
			backend.NewOpenCV(backend.KindV4L2),
			backend.NewOpenCV(backend.KindAny),
		}
	}
	return []backend.Provider{
		backend.NewOpenCV(backend.KindV4L2),
		backend.NewOpenCV(backend.KindAny),
	}
}

// Start acquires the device and launches the capture loop. It blocks
// until a backend has produced a live session or every candidate has
// failed, in which case the returned error wraps ErrDeviceNotFound
// together with each backend's failure.
//
// The returned channel is closed when the stream ends, whether by
// Stop, context cancellation, frame limit or an exhausted reconnect
// budget; check Err after the close to tell the cases apart.
func (s *Supervisor) Start(ctx context.Context) (<-chan Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return nil, errors.New("capture: supervisor already started")
	}

	var failures []error
	acquired := false
	for _, p := range s.providersFn() {
		res, err := resolve.Resolve(s.cfg.Selector, p)
		if err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		sess, format, first, err := s.openSession(p, res.Locator)
		if err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		s.provider = p
		s.locator = res.Locator
		s.sess = sess
		s.format = format
		s.pending = first
		s.fallback = res.Fallback
		s.desc = DeviceDescriptor{
			Backend:     p.Name(),
			Index:       res.Locator.Index,
			Path:        res.Locator.Path,
			DisplayName: res.DisplayName,
		}
		acquired = true
		break
	}
	if !acquired {
		failures = append(failures, ErrDeviceNotFound)
		return nil, fmt.Errorf("capture: no backend could open device %q: %w",
			s.cfg.Selector, errors.Join(failures...))
	}

	slog.Info("capture: device acquired",
		"device", s.desc.String(),
		"format", s.format.String(),
		"selector", s.cfg.Selector)

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.frames = make(chan Frame, s.cfg.ChannelDepth)
	s.startedAt = time.Now()
	s.dogState.Store(int32(watchdog.Healthy))

	s.wg.Add(1)
	go s.run(runCtx)

	return s.frames, nil
}

// openSession opens, negotiates and probes one backend candidate. On
// success the probe's first frame is returned so it can be delivered.
func (s *Supervisor) openSession(p backend.Provider, loc backend.Locator) (*session.Session, FormatResult, *backend.Payload, error) {
	sess, err := session.Open(p, loc)
	if err != nil {
		return nil, FormatResult{}, nil, fmt.Errorf("%w: %w", session.ErrOpenFailed, err)
	}

	res := sess.Negotiate(negotiate.Request{
		Width:          s.cfg.Format.Width,
		Height:         s.cfg.Format.Height,
		FPS:            s.cfg.Format.FPS,
		FourCC:         string(s.cfg.Format.FourCC),
		FallbackFourCC: string(s.cfg.Format.FallbackFourCC),
		BufferCount:    s.cfg.Format.BufferCount,
		NoConvert:      s.cfg.NoConvert,
	})
	format := FormatResult{
		FourCC: FourCC(res.FourCC),
		Width:  res.Width,
		Height: res.Height,
		FPS:    res.FPS,
	}

	if s.cfg.ProbeFrames < 0 {
		return sess, format, nil, nil
	}
	first, alive := sess.Probe(s.cfg.ProbeFrames)
	if !alive {
		sess.Close()
		return nil, FormatResult{}, nil, fmt.Errorf("device %s produced no frames during probe", loc.String())
	}
	return sess, format, first, nil
}

func (s *Supervisor) run(ctx context.Context) {
	defer s.wg.Done()

	dog := watchdog.New(watchdog.Config{
		MaxEmpty:      s.cfg.MaxEmpty,
		MaxReconnects: s.cfg.MaxReconnects,
	})

	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	var terminal error
	defer func() {
		s.finish(terminal)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var payload *backend.Payload
		var outcome session.Outcome
		if pending != nil {
			payload, outcome = pending, session.OutcomeFrame
			pending = nil
		} else {
			payload, outcome = s.currentSession().Read()
		}

		if outcome == session.OutcomeFrame {
			dog.ObserveFrame()
			s.publishDog(dog)
			if !s.deliver(ctx, payload) {
				return
			}
			if s.cfg.FrameLimit > 0 && atomic.LoadUint64(&s.frameCount) >= uint64(s.cfg.FrameLimit) {
				slog.Info("capture: frame limit reached", "frames", s.cfg.FrameLimit)
				return
			}
			continue
		}

		atomic.AddUint64(&s.emptyReads, 1)
		if outcome == session.OutcomeFatal {
			// A dead handle reads as a stall; the watchdog escalates it
			// through the same empty-read path.
			slog.Warn("capture: session read failed", "device", s.desc.String())
		}
		action := dog.ObserveEmpty()
		s.publishDog(dog)
		if action == watchdog.Continue {
			if !sleepCtx(ctx, pollBackoff) {
				return
			}
			continue
		}

		if s.cfg.DisableRetry {
			terminal = fmt.Errorf("%w: device stalled after %d empty reads and retry is disabled",
				ErrExhausted, dog.ConsecutiveEmpty())
			return
		}

		recovered, err := s.reopenLoop(ctx, dog)
		if err != nil {
			terminal = err
			return
		}
		if !recovered {
			return
		}
		pending = s.takePending()
	}
}

// reopenLoop tears the session down and reopens the same device until
// it succeeds, the context ends, or the reconnect budget is spent.
// It returns (false, nil) on cancellation.
func (s *Supervisor) reopenLoop(ctx context.Context, dog *watchdog.Watchdog) (bool, error) {
	for {
		slog.Warn("capture: lost camera signal, reopening session",
			"device", s.desc.String(),
			"consecutive_empty", dog.ConsecutiveEmpty(),
			"failed_reconnects", dog.Reconnects())

		s.closeSession()
		if !sleepCtx(ctx, s.cfg.RetryDelay) {
			return false, nil
		}

		sess, format, first, err := s.openSession(s.provider, s.locator)
		if err == nil {
			s.installSession(sess, format, first)
			atomic.AddUint32(&s.reopens, 1)
			dog.ObserveReopen(true)
			s.publishDog(dog)
			slog.Info("capture: session reopened", "device", s.desc.String(), "format", format.String())
			return true, nil
		}

		slog.Error("capture: reopen failed", "device", s.desc.String(), "error", err)
		action := dog.ObserveReopen(false)
		s.publishDog(dog)
		if action == watchdog.GiveUp {
			return false, fmt.Errorf("%w: gave up on %s after %d failed reopen attempts",
				ErrExhausted, s.desc.String(), dog.Reconnects())
		}
	}
}

// deliver hands a payload to the consumer, blocking until it is taken
// or the context ends. Returns false on cancellation.
func (s *Supervisor) deliver(ctx context.Context, payload *backend.Payload) bool {
	seq := atomic.AddUint64(&s.frameCount, 1)
	atomic.AddUint64(&s.bytesRead, uint64(len(payload.Data)))

	now := time.Now()
	s.mu.Lock()
	format := s.format
	s.lastFrameAt = now
	s.mu.Unlock()

	width, height := payload.Width, payload.Height
	if width == 0 {
		width, height = format.Width, format.Height
	}
	frame := Frame{
		Seq:         seq,
		Timestamp:   now,
		Width:       width,
		Height:      height,
		PixelFormat: format.FourCC,
		Data:        payload.Data,
		TraceID:     uuid.New().String(),
	}

	select {
	case s.frames <- frame:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Supervisor) currentSession() *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

func (s *Supervisor) closeSession() {
	s.mu.Lock()
	sess := s.sess
	s.sess = nil
	s.mu.Unlock()
	if sess != nil {
		sess.Close()
	}
}

func (s *Supervisor) installSession(sess *session.Session, format FormatResult, first *backend.Payload) {
	s.mu.Lock()
	s.sess = sess
	s.format = format
	s.pending = first
	s.mu.Unlock()
}

func (s *Supervisor) takePending() *backend.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	first := s.pending
	s.pending = nil
	return first
}

// finish runs exactly once as the capture goroutine exits: it records
// the terminal error, releases the device and closes the channel.
func (s *Supervisor) finish(terminal error) {
	s.mu.Lock()
	if terminal != nil {
		s.err = terminal
	}
	s.mu.Unlock()

	if terminal != nil {
		slog.Error("capture: stream terminated", "device", s.desc.String(), "error", terminal)
	}

	s.closeSession()
	s.disconnects.Store(true)
	if s.framesClosed.CompareAndSwap(false, true) {
		close(s.frames)
	}
}

// Stop cancels the capture loop, waits for it to drain and releases
// the device. Safe to call more than once and before Start.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		slog.Warn("capture: capture goroutine did not exit in time", "timeout", stopTimeout)
	}

	st := s.Stats()
	slog.Info("capture: supervisor stopped",
		"device", st.Device,
		"frames", st.FrameCount,
		"empty_reads", st.EmptyReads,
		"reopens", st.Reopens,
		"reconnects", st.Reconnects)
	return nil
}

// Err returns the terminal error, if the stream ended abnormally. Only
// meaningful after the frame channel has closed.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Device describes the camera the supervisor bound to at Start.
func (s *Supervisor) Device() DeviceDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desc
}

// Format is the mode the device actually granted, refreshed after
// every reopen.
func (s *Supervisor) Format() FormatResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// UsedFallback reports whether device resolution fell back to index 0
// because auto-detection found no vendor camera.
func (s *Supervisor) UsedFallback() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fallback
}

// Stats snapshots the supervisor counters. Safe to call from any
// goroutine while the stream runs.
func (s *Supervisor) Stats() Stats {
	s.mu.Lock()
	desc := s.desc
	format := s.format
	startedAt := s.startedAt
	lastFrameAt := s.lastFrameAt
	s.mu.Unlock()

	st := Stats{
		FrameCount:       atomic.LoadUint64(&s.frameCount),
		EmptyReads:       atomic.LoadUint64(&s.emptyReads),
		BytesRead:        atomic.LoadUint64(&s.bytesRead),
		Reopens:          atomic.LoadUint32(&s.reopens),
		Reconnects:       uint32(s.dogRetries.Load()),
		ConsecutiveEmpty: int(s.dogEmpty.Load()),
		WatchdogState:    watchdog.State(s.dogState.Load()).String(),
		Resolution:       fmt.Sprintf("%dx%d", format.Width, format.Height),
		FourCC:           format.FourCC.String(),
		Device:           desc.String(),
		BackendName:      desc.Backend,
		IsConnected:      !s.disconnects.Load() && !startedAt.IsZero(),
	}
	if !startedAt.IsZero() && st.FrameCount > 0 {
		elapsed := time.Since(startedAt).Seconds()
		if elapsed > 0 {
			st.FPSReal = float64(st.FrameCount) / elapsed
		}
	}
	if !lastFrameAt.IsZero() {
		st.LatencyMS = time.Since(lastFrameAt).Milliseconds()
	}
	return st
}

func (s *Supervisor) publishDog(dog *watchdog.Watchdog) {
	s.dogState.Store(int32(dog.State()))
	s.dogEmpty.Store(int64(dog.ConsecutiveEmpty()))
	s.dogRetries.Store(int64(dog.Reconnects()))
}

// sleepCtx pauses for d, returning false if ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
