package capture

import (
	"fmt"
	"strings"
	"time"
)

// Backend identifies the capture API family used to open a device.
type Backend int

const (
	// BackendAuto walks the platform preference order until a backend
	// yields frames.
	BackendAuto Backend = iota
	// BackendDShow forces DirectShow (Windows).
	BackendDShow
	// BackendMSMF forces Media Foundation (Windows).
	BackendMSMF
	// BackendV4L2 forces Video4Linux2 (Linux).
	BackendV4L2
	// BackendAny lets the capture library pick whatever works.
	BackendAny
)

// ParseBackend maps an operator token to a Backend.
func ParseBackend(value string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "auto":
		return BackendAuto, nil
	case "dshow", "directshow":
		return BackendDShow, nil
	case "msmf":
		return BackendMSMF, nil
	case "v4l2":
		return BackendV4L2, nil
	case "any":
		return BackendAny, nil
	}
	return BackendAuto, fmt.Errorf("capture: unknown backend %q (want auto, dshow, msmf, v4l2 or any)", value)
}

func (b Backend) String() string {
	switch b {
	case BackendAuto:
		return "auto"
	case BackendDShow:
		return "dshow"
	case BackendMSMF:
		return "msmf"
	case BackendV4L2:
		return "v4l2"
	case BackendAny:
		return "any"
	}
	return "unknown"
}

// DeviceDescriptor pins down the device a supervisor is bound to. The
// same descriptor is reused verbatim for every reopen attempt, so a
// session never silently migrates to a different camera.
type DeviceDescriptor struct {
	// Backend is the name of the backend that opened the device.
	Backend string
	// Index is the numeric device index, when index-addressed.
	Index int
	// Path is the device node path, when path-addressed ("/dev/video0").
	Path string
	// DisplayName is the human-readable camera name, when known.
	DisplayName string
}

func (d DeviceDescriptor) String() string {
	target := d.Path
	if target == "" {
		target = fmt.Sprintf("index %d", d.Index)
	}
	if d.DisplayName != "" {
		return fmt.Sprintf("%s (%s, %s)", d.DisplayName, target, d.Backend)
	}
	return fmt.Sprintf("%s (%s)", target, d.Backend)
}

// FormatRequest is what the operator asked for. Zero fields are left
// to the driver.
type FormatRequest struct {
	Width  int
	Height int
	FPS    float64
	// FourCC is the preferred pixel format.
	FourCC FourCC
	// FallbackFourCC is tried once when the device refuses FourCC.
	FallbackFourCC FourCC
	// BufferCount caps the driver-side frame queue. Small values keep
	// latency low on slow consumers.
	BufferCount int
}

// FormatResult is what the device actually granted. Drivers are free
// to ignore requests, so this is always read back after negotiation.
type FormatResult struct {
	FourCC FourCC
	Width  int
	Height int
	FPS    float64
}

func (r FormatResult) String() string {
	return fmt.Sprintf("%dx%d@%.4g %s", r.Width, r.Height, r.FPS, r.FourCC)
}

// Frame is one captured image delivered to the consumer. Data is owned
// by the receiver; the supervisor never reuses the slice.
type Frame struct {
	// Seq increments by one per delivered frame, starting at 1.
	Seq uint64
	// Timestamp is the delivery time.
	Timestamp time.Time
	Width     int
	Height    int
	// PixelFormat is the negotiated format the bytes are encoded in.
	PixelFormat FourCC
	Data        []byte
	// TraceID correlates a frame across downstream stages.
	TraceID string
}

// Stats is a point-in-time snapshot of supervisor health.
type Stats struct {
	FrameCount       uint64
	EmptyReads       uint64
	BytesRead        uint64
	Reopens          uint32
	Reconnects       uint32
	ConsecutiveEmpty int
	WatchdogState    string
	FPSReal          float64
	LatencyMS        int64
	Resolution       string
	FourCC           string
	Device           string
	BackendName      string
	IsConnected      bool
}

// Config drives NewSupervisor. Zero values get sensible defaults; see
// the field docs for what zero means.
type Config struct {
	// Selector picks the device: a numeric index, a device path, a
	// case-insensitive name fragment, or empty for vendor auto-detect.
	Selector string
	// Backend restricts the backend search; BackendAuto walks the
	// platform order.
	Backend Backend
	// Format is the requested capture mode.
	Format FormatRequest
	// NoConvert disables RGB conversion so raw sensor bytes come
	// through untouched. On Linux this prefers the native V4L2 path.
	NoConvert bool
	// ProbeFrames is how many reads the open probe attempts before
	// declaring a backend dead. 0 means the default of 5; -1 skips
	// probing.
	ProbeFrames int
	// MaxEmpty is the consecutive empty-read threshold that triggers a
	// reopen. 0 means the default of 60.
	MaxEmpty int
	// MaxReconnects is the lifetime budget of failed reopen attempts
	// before the supervisor gives up. 0 means the default of 5.
	MaxReconnects int
	// DisableRetry stops the supervisor at the first reopen trigger
	// instead of attempting recovery.
	DisableRetry bool
	// RetryDelay is the pause before each reopen attempt. 0 means the
	// default of 1s.
	RetryDelay time.Duration
	// FrameLimit stops the stream after N delivered frames. 0 means
	// unlimited.
	FrameLimit int
	// ChannelDepth is the frame channel buffer. 0 means the default
	// of 10.
	ChannelDepth int
}

const (
	defaultProbeFrames   = 5
	defaultMaxEmpty      = 60
	defaultMaxReconnects = 5
	defaultRetryDelay    = time.Second
	defaultChannelDepth  = 10
)

func (c *Config) withDefaults() Config {
	out := *c
	if out.ProbeFrames == 0 {
		out.ProbeFrames = defaultProbeFrames
	}
	if out.MaxEmpty == 0 {
		out.MaxEmpty = defaultMaxEmpty
	}
	if out.MaxReconnects == 0 {
		out.MaxReconnects = defaultMaxReconnects
	}
	if out.RetryDelay == 0 {
		out.RetryDelay = defaultRetryDelay
	}
	if out.ChannelDepth == 0 {
		out.ChannelDepth = defaultChannelDepth
	}
	return out
}

func (c *Config) validate() error {
	if c.Format.Width < 0 || c.Format.Height < 0 {
		return fmt.Errorf("capture: resolution must be non-negative, got %dx%d", c.Format.Width, c.Format.Height)
	}
	if c.Format.FPS < 0 {
		return fmt.Errorf("capture: fps must be non-negative, got %g", c.Format.FPS)
	}
	if fcc := c.Format.FourCC; !fcc.IsAuto() && len(fcc) != 4 {
		return fmt.Errorf("capture: FOURCC codes must be exactly 4 characters, got %q", string(fcc))
	}
	if fcc := c.Format.FallbackFourCC; !fcc.IsAuto() && len(fcc) != 4 {
		return fmt.Errorf("capture: fallback FOURCC codes must be exactly 4 characters, got %q", string(fcc))
	}
	if c.Format.BufferCount < 0 {
		return fmt.Errorf("capture: buffer count must be non-negative, got %d", c.Format.BufferCount)
	}
	if c.ProbeFrames < -1 {
		return fmt.Errorf("capture: probe frames must be -1, 0 or positive, got %d", c.ProbeFrames)
	}
	if c.MaxEmpty < 0 {
		return fmt.Errorf("capture: max empty reads must be non-negative, got %d", c.MaxEmpty)
	}
	if c.MaxReconnects < 0 {
		return fmt.Errorf("capture: max reconnects must be non-negative, got %d", c.MaxReconnects)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("capture: retry delay must be non-negative, got %s", c.RetryDelay)
	}
	if c.FrameLimit < 0 {
		return fmt.Errorf("capture: frame limit must be non-negative, got %d", c.FrameLimit)
	}
	if c.ChannelDepth < 0 {
		return fmt.Errorf("capture: channel depth must be non-negative, got %d", c.ChannelDepth)
	}
	return nil
}
