//go:build !linux

package backend

import (
	"github.com/pion/mediadevices/pkg/driver"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
)

// listDevices enumerates cameras through the mediadevices driver
// manager, which wraps the native APIs (Media Foundation on Windows,
// AVFoundation on macOS) and exposes real display names. The blank
// import registers the platform camera drivers.
func listDevices() ([]DeviceInfo, error) {
	drivers := driver.GetManager().Query(driver.FilterVideoRecorder())
	infos := make([]DeviceInfo, 0, len(drivers))
	for i, d := range drivers {
		info := d.Info()
		name := info.Name
		if name == "" {
			name = info.Label
		}
		infos = append(infos, DeviceInfo{Index: i, Name: name})
	}
	return infos, nil
}
