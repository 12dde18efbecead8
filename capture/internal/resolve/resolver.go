// Package resolve turns an operator-supplied device selector into a
// concrete locator a backend can open. Selectors are forgiving: a
// number is an enumeration index, a path is used as-is, anything else
// is matched case-insensitively against device display names, and an
// empty selector auto-detects the microscope by its vendor string.
package resolve

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/e7canasta/scopeview/capture/internal/backend"
)

// VendorName is the display-name fragment auto-detection looks for.
const VendorName = "MikrOkularHD"

// ErrDeviceNotFound reports that no enumerated device matched the
// selector. It is fatal: there is nothing to retry against.
var ErrDeviceNotFound = errors.New("resolve: device not found")

// Lister is the slice of a backend provider resolution needs.
type Lister interface {
	Name() string
	Enumerate() ([]backend.DeviceInfo, error)
}

// Resolution is the outcome of a successful resolve.
type Resolution struct {
	Locator     backend.Locator
	DisplayName string
	// Fallback is set when auto-detection found no vendor match and the
	// resolver fell back to index 0. Callers surface it as a warning,
	// not an error: index 0 is usually the only camera anyway.
	Fallback bool
}

// Resolve maps a selector to a device locator using the lister's
// enumeration. Only a selector that names a device which cannot be
// found yields ErrDeviceNotFound; enumeration failures are folded into
// that error rather than surfaced on their own.
func Resolve(selector string, lister Lister) (Resolution, error) {
	token := strings.TrimSpace(selector)

	if isPath(token) {
		return Resolution{
			Locator:     backend.Locator{Path: token},
			DisplayName: token,
		}, nil
	}

	if idx, err := strconv.Atoi(token); err == nil && token != "" {
		res := Resolution{Locator: backend.Locator{Index: idx}}
		if devices, err := lister.Enumerate(); err == nil && idx >= 0 && idx < len(devices) {
			res.Locator.Name = devices[idx].Name
			res.Locator.Path = devices[idx].Path
			res.DisplayName = devices[idx].Name
		}
		return res, nil
	}

	devices, listErr := lister.Enumerate()

	if token == "" {
		if match, ok := findByName(devices, VendorName); ok {
			return Resolution{
				Locator:     locatorFor(match),
				DisplayName: match.Name,
			}, nil
		}
		slog.Warn("resolve: no device matched vendor string, falling back to index 0",
			"vendor", VendorName,
			"backend", lister.Name(),
			"devices", len(devices),
		)
		res := Resolution{Locator: backend.Locator{Index: 0}, Fallback: true}
		if len(devices) > 0 {
			res.Locator.Name = devices[0].Name
			res.Locator.Path = devices[0].Path
			res.DisplayName = devices[0].Name
		}
		return res, nil
	}

	if match, ok := findByName(devices, token); ok {
		return Resolution{
			Locator:     locatorFor(match),
			DisplayName: match.Name,
		}, nil
	}

	err := fmt.Errorf("%w: no device matching %q on %s backend", ErrDeviceNotFound, token, lister.Name())
	if listErr != nil {
		err = fmt.Errorf("%w (enumeration also failed: %v)", err, listErr)
	}
	return Resolution{}, err
}

func findByName(devices []backend.DeviceInfo, fragment string) (backend.DeviceInfo, bool) {
	needle := strings.ToLower(fragment)
	for _, d := range devices {
		if strings.Contains(strings.ToLower(d.Name), needle) {
			return d, true
		}
	}
	return backend.DeviceInfo{}, false
}

func locatorFor(d backend.DeviceInfo) backend.Locator {
	return backend.Locator{Index: d.Index, Path: d.Path, Name: d.Name}
}

func isPath(token string) bool {
	return strings.HasPrefix(token, "/dev/") || strings.HasPrefix(token, `\\?\`)
}

// FormatDeviceList renders an enumeration for operator consumption,
// one "[index] name" line per device.
func FormatDeviceList(devices []backend.DeviceInfo) string {
	if len(devices) == 0 {
		return "No capture devices found."
	}
	var b strings.Builder
	for i, d := range devices {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%d] %s", d.Index, d.Name)
	}
	return b.String()
}
