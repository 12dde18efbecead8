//go:build !linux

package backend

import "errors"

type V4L2Provider struct{}

// NewNative returns the raw V4L2 provider. It only functions on Linux;
// everywhere else it exists so callers can report a clear error instead
// of failing to build.
func NewNative() *V4L2Provider { return &V4L2Provider{} }

func (p *V4L2Provider) Name() string { return "v4l2-native" }

func (p *V4L2Provider) Enumerate() ([]DeviceInfo, error) {
	return nil, errors.New("backend: native V4L2 capture requires linux")
}

func (p *V4L2Provider) Open(loc Locator) (Handle, error) {
	return nil, errors.New("backend: native V4L2 capture requires linux")
}
