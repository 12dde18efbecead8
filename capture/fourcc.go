package capture

import (
	"fmt"
	"strings"

	"github.com/e7canasta/scopeview/capture/internal/backend"
)

// FourCC is a four-character pixel format code ("MJPG", "YUYV"). The
// empty value means "auto": leave the format up to the driver.
type FourCC string

// FourCCAuto skips format forcing entirely.
const FourCCAuto FourCC = ""

// ParseFourCC normalizes operator input. "auto", "default", "none" and
// the empty string all mean FourCCAuto; anything else must be exactly
// four characters and is uppercased.
func ParseFourCC(value string) (FourCC, error) {
	token := strings.TrimSpace(value)
	switch strings.ToLower(token) {
	case "", "auto", "default", "none":
		return FourCCAuto, nil
	}
	if len(token) != 4 {
		return FourCCAuto, fmt.Errorf("capture: FOURCC codes must be exactly 4 characters, got %q", value)
	}
	return FourCC(strings.ToUpper(token)), nil
}

// IsAuto reports whether the code defers to the driver default.
func (f FourCC) IsAuto() bool { return f == FourCCAuto }

// Matches compares two codes, treating driver aliases (YUYV/YUY2) as
// equal.
func (f FourCC) Matches(other FourCC) bool {
	return backend.FourCCEqual(string(f), string(other))
}

// String renders the code for display; the auto value reads "auto".
func (f FourCC) String() string {
	if f.IsAuto() {
		return "auto"
	}
	return string(f)
}

// DescribeFourCC converts the numeric code a backend reports into its
// readable form, "UNKNOWN" when nothing was negotiated.
func DescribeFourCC(code uint32) FourCC {
	return FourCC(backend.FourCCString(code))
}
