package backend

import (
	"fmt"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"
)

// OpenCVProvider drives a camera through OpenCV's VideoCapture with a
// fixed API preference. This is the workhorse backend on every
// platform: DirectShow and Media Foundation on Windows, V4L2 on Linux,
// or whatever OpenCV picks for KindAny.
type OpenCVProvider struct {
	kind Kind
	api  gocv.VideoCaptureAPI
}

// NewOpenCV returns a provider pinned to the given backend family.
func NewOpenCV(kind Kind) *OpenCVProvider {
	return &OpenCVProvider{kind: kind, api: captureAPI(kind)}
}

func captureAPI(kind Kind) gocv.VideoCaptureAPI {
	switch kind {
	case KindDShow:
		return gocv.VideoCaptureDshow
	case KindMSMF:
		return gocv.VideoCaptureMSMF
	case KindV4L2:
		return gocv.VideoCaptureV4L2
	default:
		return gocv.VideoCaptureAny
	}
}

func (p *OpenCVProvider) Name() string { return p.kind.String() }

// Enumerate delegates to the platform device list. OpenCV itself has no
// listing API, so names come from the native enumerator.
func (p *OpenCVProvider) Enumerate() ([]DeviceInfo, error) {
	return listDevices()
}

// Open acquires the device. When an index open fails and a display name
// is known, retries with the DirectShow "video=<name>" source string,
// which resolves devices whose index shifted since enumeration.
func (p *OpenCVProvider) Open(loc Locator) (Handle, error) {
	var (
		cap *gocv.VideoCapture
		err error
	)
	if loc.Path != "" {
		cap, err = gocv.OpenVideoCaptureWithAPI(loc.Path, p.api)
	} else {
		cap, err = gocv.OpenVideoCaptureWithAPI(loc.Index, p.api)
	}
	if (err != nil || !cap.IsOpened()) && loc.Name != "" && loc.Path == "" {
		if cap != nil {
			cap.Close()
		}
		source := "video=" + loc.Name
		slog.Debug("backend: index open failed, retrying by name",
			"backend", p.Name(),
			"source", source,
		)
		cap, err = gocv.OpenVideoCaptureWithAPI(source, p.api)
	}
	if err != nil {
		return nil, fmt.Errorf("backend: %s open %s: %w", p.Name(), loc, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("backend: %s open %s: device did not open", p.Name(), loc)
	}
	return &opencvHandle{cap: cap, mat: gocv.NewMat()}, nil
}

type opencvHandle struct {
	mu     sync.Mutex
	cap    *gocv.VideoCapture
	mat    gocv.Mat
	closed bool
}

func captureProp(p Prop) gocv.VideoCaptureProperties {
	switch p {
	case PropWidth:
		return gocv.VideoCaptureFrameWidth
	case PropHeight:
		return gocv.VideoCaptureFrameHeight
	case PropFPS:
		return gocv.VideoCaptureFPS
	case PropBufferSize:
		return gocv.VideoCaptureBufferSize
	default:
		return gocv.VideoCaptureConvertRGB
	}
}

// Set requests a property value. OpenCV's setter reports nothing useful
// even on real devices, so success here means only that the request was
// issued; read the value back to learn what stuck.
func (h *opencvHandle) Set(p Prop, value float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	h.cap.Set(captureProp(p), value)
	return nil
}

func (h *opencvHandle) Get(p Prop) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0
	}
	return h.cap.Get(captureProp(p))
}

func (h *opencvHandle) SetFourCC(fcc string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	h.cap.Set(gocv.VideoCaptureFOURCC, h.cap.ToCodec(fcc))
	return nil
}

func (h *opencvHandle) GetFourCC() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return "UNKNOWN"
	}
	return FourCCString(uint32(h.cap.Get(gocv.VideoCaptureFOURCC)))
}

// Read grabs the next frame. OpenCV reports a plain false both for a
// transient empty poll and for a dead device; the handle state tells
// the two apart.
func (h *opencvHandle) Read() (*Payload, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHandleClosed
	}
	if !h.cap.IsOpened() {
		return nil, fmt.Errorf("backend: capture handle reports closed")
	}
	if ok := h.cap.Read(&h.mat); !ok {
		if !h.cap.IsOpened() {
			return nil, fmt.Errorf("backend: device disconnected during read")
		}
		return nil, nil
	}
	if h.mat.Empty() {
		return nil, nil
	}
	return &Payload{
		Data:   h.mat.ToBytes(),
		Width:  h.mat.Cols(),
		Height: h.mat.Rows(),
	}, nil
}

// Release closes the capture handle. Safe to call repeatedly.
func (h *opencvHandle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.mat.Close()
	return h.cap.Close()
}
