package capture

import (
	"runtime"

	"github.com/e7canasta/scopeview/capture/internal/backend"
	"github.com/e7canasta/scopeview/capture/internal/resolve"
)

// ListDevices enumerates the capture devices the platform backend can
// see and renders them one per line as "[index] name", the same labels
// the Selector name match runs against.
func ListDevices() string {
	var p backend.Provider
	if runtime.GOOS == "windows" {
		p = backend.NewOpenCV(backend.KindDShow)
	} else {
		p = backend.NewOpenCV(backend.KindV4L2)
	}
	devices, err := p.Enumerate()
	if err != nil {
		return "No capture devices found."
	}
	return resolve.FormatDeviceList(devices)
}
