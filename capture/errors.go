package capture

import (
	"errors"

	"github.com/e7canasta/scopeview/capture/internal/resolve"
)

// ErrDeviceNotFound is wrapped into the Start error when no backend
// could produce a working device for the selector.
var ErrDeviceNotFound = resolve.ErrDeviceNotFound

// ErrExhausted is wrapped into the terminal error when the reconnect
// budget is spent, or when recovery is disabled and the device stalls.
var ErrExhausted = errors.New("capture: reconnect budget exhausted")
