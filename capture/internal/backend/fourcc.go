package backend

import "strings"

// FourCCCode packs a four-character format code into its little-endian
// numeric form (the layout V4L2 and OpenCV both use).
func FourCCCode(fcc string) uint32 {
	if len(fcc) != 4 {
		return 0
	}
	return uint32(fcc[0]) | uint32(fcc[1])<<8 | uint32(fcc[2])<<16 | uint32(fcc[3])<<24
}

// FourCCString unpacks a numeric four-character code. Zero and codes
// containing non-printable bytes come back as "UNKNOWN", which is what
// backends report when no format is negotiated.
func FourCCString(code uint32) string {
	if code == 0 {
		return "UNKNOWN"
	}
	b := []byte{
		byte(code),
		byte(code >> 8),
		byte(code >> 16),
		byte(code >> 24),
	}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return "UNKNOWN"
		}
	}
	return string(b)
}

// FourCCEqual compares two format codes, folding case and the aliases
// drivers use interchangeably. DirectShow reports YUY2 for what V4L2
// calls YUYV; they are the same wire format.
func FourCCEqual(a, b string) bool {
	na := normalizeFourCC(a)
	nb := normalizeFourCC(b)
	return na == nb
}

func normalizeFourCC(fcc string) string {
	f := strings.ToUpper(strings.TrimSpace(fcc))
	if f == "YUY2" {
		return "YUYV"
	}
	return f
}
