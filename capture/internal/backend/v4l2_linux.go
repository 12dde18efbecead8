//go:build linux

package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"
)

// readTimeout bounds a single native poll. A select on the stream
// channel with this timeout turns a stalled device into an empty read
// instead of an indefinite block.
const readTimeout = 500 * time.Millisecond

// V4L2Provider talks to /dev/video* nodes directly through go4vl,
// bypassing OpenCV's decode path. Frames come back exactly as the
// driver produced them (MJPG, YUYV, ...), which is what the raw dump
// needs: no colour conversion, no re-encoding.
type V4L2Provider struct{}

// NewNative returns the raw V4L2 provider.
func NewNative() *V4L2Provider { return &V4L2Provider{} }

func (p *V4L2Provider) Name() string { return "v4l2-native" }

func (p *V4L2Provider) Enumerate() ([]DeviceInfo, error) {
	return listDevices()
}

func (p *V4L2Provider) Open(loc Locator) (Handle, error) {
	path := loc.Path
	if path == "" {
		path = fmt.Sprintf("/dev/video%d", loc.Index)
	}
	dev, err := device.Open(path)
	if err != nil {
		return nil, fmt.Errorf("backend: v4l2 open %s: %w", path, err)
	}
	return &v4l2Handle{dev: dev, path: path}, nil
}

// v4l2Handle defers streaming until the first read so the negotiator
// can still adjust the pixel format on the idle descriptor. V4L2
// rejects S_FMT once buffers are queued.
type v4l2Handle struct {
	mu      sync.Mutex
	dev     *device.Device
	path    string
	cancel  context.CancelFunc
	frames  <-chan []byte
	started bool
	closed  bool
}

func (h *v4l2Handle) Set(p Prop, value float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	switch p {
	case PropWidth, PropHeight:
		pf, err := h.dev.GetPixFormat()
		if err != nil {
			return err
		}
		if p == PropWidth {
			pf.Width = uint32(value)
		} else {
			pf.Height = uint32(value)
		}
		return h.dev.SetPixFormat(pf)
	case PropFPS:
		return h.dev.SetFrameRate(uint32(value))
	case PropBufferSize, PropConvertRGB:
		// Buffer depth is fixed at open time in go4vl, and native reads
		// are never colour-converted. Both requests are driver-side
		// no-ops here; the read-back reports the truth.
		slog.Debug("backend: v4l2 ignoring property request", "prop", p, "value", value)
		return nil
	}
	return nil
}

func (h *v4l2Handle) Get(p Prop) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0
	}
	switch p {
	case PropWidth, PropHeight:
		pf, err := h.dev.GetPixFormat()
		if err != nil {
			return 0
		}
		if p == PropWidth {
			return float64(pf.Width)
		}
		return float64(pf.Height)
	case PropFPS:
		fps, err := h.dev.GetFrameRate()
		if err != nil {
			return 0
		}
		return float64(fps)
	case PropBufferSize:
		return float64(h.dev.BufferCount())
	case PropConvertRGB:
		return 0
	}
	return 0
}

func (h *v4l2Handle) SetFourCC(fcc string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	pf, err := h.dev.GetPixFormat()
	if err != nil {
		return err
	}
	pf.PixelFormat = FourCCCode(fcc)
	pf.Field = v4l2.FieldNone
	return h.dev.SetPixFormat(pf)
}

func (h *v4l2Handle) GetFourCC() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return "UNKNOWN"
	}
	pf, err := h.dev.GetPixFormat()
	if err != nil {
		return "UNKNOWN"
	}
	return FourCCString(pf.PixelFormat)
}

func (h *v4l2Handle) Read() (*Payload, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHandleClosed
	}
	if !h.started {
		ctx, cancel := context.WithCancel(context.Background())
		if err := h.dev.Start(ctx); err != nil {
			cancel()
			h.mu.Unlock()
			return nil, fmt.Errorf("backend: v4l2 start %s: %w", h.path, err)
		}
		h.cancel = cancel
		h.frames = h.dev.GetOutput()
		h.started = true
		slog.Debug("backend: v4l2 streaming started",
			"path", h.path,
			"buffers", h.dev.BufferCount(),
		)
	}
	frames := h.frames
	h.mu.Unlock()

	select {
	case raw, ok := <-frames:
		if !ok {
			return nil, fmt.Errorf("backend: v4l2 stream closed for %s", h.path)
		}
		if len(raw) == 0 {
			return nil, nil
		}
		data := make([]byte, len(raw))
		copy(data, raw)
		return &Payload{
			Data:   data,
			Width:  int(h.Get(PropWidth)),
			Height: int(h.Get(PropHeight)),
		}, nil
	case <-time.After(readTimeout):
		return nil, nil
	}
}

func (h *v4l2Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if h.cancel != nil {
		h.cancel()
	}
	if h.started {
		if err := h.dev.Stop(); err != nil {
			slog.Debug("backend: v4l2 stop failed", "path", h.path, "error", err)
		}
	}
	return h.dev.Close()
}
