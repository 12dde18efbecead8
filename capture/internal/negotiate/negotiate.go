// Package negotiate applies a requested capture format to an open
// handle and reports what the device actually accepted.
//
// The policy is deliberately best-effort. Capture backends clamp,
// round, and plainly lie about format requests, and several report an
// unrelated FourCC while still producing decodable frames. Every
// request is therefore followed by a read-back, mismatches trigger at
// most one fallback attempt, and nothing here is ever fatal: whether
// the negotiated mode works is judged by successful frame reads, not
// by string equality.
package negotiate

import (
	"log/slog"

	"github.com/e7canasta/scopeview/capture/internal/backend"
)

// Request carries the desired capture format. Zero values mean "leave
// the driver default alone"; an empty FourCC skips format forcing
// entirely.
type Request struct {
	Width          int
	Height         int
	FPS            float64
	FourCC         string
	FallbackFourCC string
	BufferCount    int
	// NoConvert asks the backend to hand over raw device bytes instead
	// of decoded BGR (the raw-dump path).
	NoConvert bool
}

// Result is the format the backend reports after negotiation. Fields
// reflect read-back values and may differ from the request.
type Result struct {
	FourCC string
	Width  int
	Height int
	FPS    float64
}

// Apply pushes the request onto the handle property by property, then
// reads back the applied mode. Set failures are logged and ignored;
// the read-back is the only source of truth.
func Apply(h backend.Handle, req Request) Result {
	if req.FourCC != "" {
		setFourCC(h, req.FourCC)
	}
	if req.NoConvert {
		set(h, backend.PropConvertRGB, 0)
	}
	if req.BufferCount > 0 {
		set(h, backend.PropBufferSize, float64(req.BufferCount))
	}
	if req.Width > 0 {
		set(h, backend.PropWidth, float64(req.Width))
	}
	if req.Height > 0 {
		set(h, backend.PropHeight, float64(req.Height))
	}
	if req.FPS > 0 {
		set(h, backend.PropFPS, req.FPS)
	}

	applied := h.GetFourCC()
	if req.FourCC != "" && !backend.FourCCEqual(applied, req.FourCC) && req.FallbackFourCC != "" {
		slog.Info("negotiate: requested format not applied, trying fallback",
			"requested", req.FourCC,
			"applied", applied,
			"fallback", req.FallbackFourCC,
		)
		setFourCC(h, req.FallbackFourCC)
		applied = h.GetFourCC()
	}
	if req.FourCC != "" && !backend.FourCCEqual(applied, req.FourCC) &&
		(req.FallbackFourCC == "" || !backend.FourCCEqual(applied, req.FallbackFourCC)) {
		// Proceeding anyway: plenty of backends misreport the FourCC
		// and still deliver frames. The probe decides.
		slog.Warn("negotiate: device kept its own pixel format",
			"requested", req.FourCC,
			"fallback", req.FallbackFourCC,
			"applied", applied,
		)
	}

	result := Result{
		FourCC: applied,
		Width:  int(h.Get(backend.PropWidth)),
		Height: int(h.Get(backend.PropHeight)),
		FPS:    h.Get(backend.PropFPS),
	}
	slog.Info("negotiate: active mode",
		"width", result.Width,
		"height", result.Height,
		"fps", result.FPS,
		"fourcc", result.FourCC,
	)
	return result
}

func set(h backend.Handle, p backend.Prop, v float64) {
	if err := h.Set(p, v); err != nil {
		slog.Debug("negotiate: property request failed", "prop", p, "value", v, "error", err)
	}
}

func setFourCC(h backend.Handle, fcc string) {
	if err := h.SetFourCC(fcc); err != nil {
		slog.Debug("negotiate: fourcc request failed", "fourcc", fcc, "error", err)
	}
}
