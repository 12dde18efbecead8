package backend

import "testing"

func TestFourCCCodeRoundTrip(t *testing.T) {
	tests := []string{"MJPG", "YUYV", "H264", "RGB3"}
	for _, fcc := range tests {
		code := FourCCCode(fcc)
		if got := FourCCString(code); got != fcc {
			t.Errorf("FourCCString(FourCCCode(%q)) = %q", fcc, got)
		}
	}
}

func TestFourCCCode_LittleEndian(t *testing.T) {
	// 'M' | 'J'<<8 | 'P'<<16 | 'G'<<24
	if got := FourCCCode("MJPG"); got != 0x47504A4D {
		t.Errorf("FourCCCode(MJPG) = %#x, want 0x47504a4d", got)
	}
}

func TestFourCCString_Unknown(t *testing.T) {
	tests := []struct {
		name string
		code uint32
	}{
		{"zero", 0},
		{"non-printable", 0x01020304},
	}
	for _, tt := range tests {
		if got := FourCCString(tt.code); got != "UNKNOWN" {
			t.Errorf("%s: FourCCString(%#x) = %q, want UNKNOWN", tt.name, tt.code, got)
		}
	}
}

func TestFourCCEqual(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"MJPG", "MJPG", true},
		{"mjpg", "MJPG", true},
		{"YUYV", "YUY2", true},
		{"YUY2", "YUYV", true},
		{"YUY2", "YUY2", true},
		{"MJPG", "YUYV", false},
		{"", "MJPG", false},
	}
	for _, tt := range tests {
		if got := FourCCEqual(tt.a, tt.b); got != tt.want {
			t.Errorf("FourCCEqual(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
