// Package backend abstracts the OS capture APIs behind a small
// capability interface: enumerate devices, open one by locator, poke
// properties on the open handle, read frames. One Provider exists per
// backend family (OpenCV with a fixed API preference, native V4L2).
//
// Handles make no promise that a property set actually took effect.
// Real devices clamp, round, or silently ignore requests; callers must
// read the value back to learn what was applied.
package backend

import (
	"errors"
	"strconv"
)

// Kind identifies a capture backend family.
type Kind int

const (
	// KindAny lets the underlying library pick whatever works.
	KindAny Kind = iota
	// KindDShow is DirectShow (Windows).
	KindDShow
	// KindMSMF is Microsoft Media Foundation (Windows).
	KindMSMF
	// KindV4L2 is Video4Linux2 (Linux, including USB/IP attached devices).
	KindV4L2
)

// String returns the backend label used in logs and flags.
func (k Kind) String() string {
	switch k {
	case KindDShow:
		return "dshow"
	case KindMSMF:
		return "msmf"
	case KindV4L2:
		return "v4l2"
	default:
		return "any"
	}
}

// Prop names a tunable capture property. The set is the intersection of
// what the supported backends expose, which is all the negotiator needs.
type Prop int

const (
	PropWidth Prop = iota
	PropHeight
	PropFPS
	PropBufferSize
	PropConvertRGB
)

// DeviceInfo is one entry of a backend's device list.
type DeviceInfo struct {
	// Index is the enumeration position, usable as an open locator.
	Index int
	// Name is the display name reported by the backend (card name,
	// by-id filename, driver label).
	Name string
	// Path is the device node where the platform has one (/dev/video*).
	Path string
}

// Locator tells a Provider which device to open. Path wins over Index
// when set. Name is a hint only: some backends (DirectShow) can retry
// an open by display name when the index open fails.
type Locator struct {
	Index int
	Path  string
	Name  string
}

// String renders the locator the way operators typed it.
func (l Locator) String() string {
	if l.Path != "" {
		return l.Path
	}
	if l.Name != "" {
		return l.Name
	}
	return strconv.Itoa(l.Index)
}

// Payload is one frame read off a handle.
type Payload struct {
	Data   []byte
	Width  int
	Height int
}

// ErrHandleClosed reports a read or property access on a released handle.
var ErrHandleClosed = errors.New("backend: handle is closed")

// Handle is an open capture device.
//
// Read returns (nil, nil) for an empty poll: the backend produced no
// data this cycle, which is common and usually transient. A non-nil
// error means the handle itself is invalid or disconnected.
type Handle interface {
	Set(p Prop, value float64) error
	Get(p Prop) float64
	SetFourCC(fcc string) error
	GetFourCC() string
	Read() (*Payload, error)
	Release() error
}

// Provider is one backend family.
type Provider interface {
	// Name returns the backend label ("dshow", "v4l2", ...).
	Name() string
	// Enumerate lists the devices this backend can see, in index order.
	Enumerate() ([]DeviceInfo, error)
	// Open acquires a device handle. The handle may still turn out to
	// produce no frames; callers probe before trusting it.
	Open(loc Locator) (Handle, error)
}
