package warmup

import (
	"math"
	"testing"
	"time"
)

// generateFrameTimes builds n timestamps at the given FPS, each offset
// by a deterministic pseudo-jitter of the given fraction of the frame
// interval.
func generateFrameTimes(n int, fps, jitterFrac float64) []time.Time {
	interval := time.Duration(float64(time.Second) / fps)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	times := make([]time.Time, n)
	for i := 0; i < n; i++ {
		// Alternating sine offset, bounded by jitterFrac of the
		// interval. Deterministic so failures reproduce.
		offset := time.Duration(jitterFrac * math.Sin(float64(i)*2.39996) * float64(interval))
		times[i] = base.Add(time.Duration(i)*interval + offset)
	}
	return times
}

func TestCalculate_StableStream(t *testing.T) {
	frameTimes := generateFrameTimes(60, 30.0, 0.03)
	stats := Calculate(frameTimes, 2*time.Second)

	if !stats.IsStable {
		t.Errorf("expected stable stream, got IsStable=false (fps %.2f±%.2f, jitter %.4fs)",
			stats.FPSMean, stats.FPSStdDev, stats.JitterMean)
	}
	if stats.FPSMean < 25 || stats.FPSMean > 35 {
		t.Errorf("got FPS mean %.2f, want ~30", stats.FPSMean)
	}
	if stats.FramesReceived != 60 {
		t.Errorf("got %d frames, want 60", stats.FramesReceived)
	}
}

func TestCalculate_JitteryStreamIsUnstable(t *testing.T) {
	frameTimes := generateFrameTimes(60, 30.0, 0.45)
	stats := Calculate(frameTimes, 2*time.Second)

	if stats.IsStable {
		t.Errorf("expected unstable stream, got IsStable=true (fps %.2f±%.2f, jitter %.4fs)",
			stats.FPSMean, stats.FPSStdDev, stats.JitterMean)
	}
}

func TestCalculate_MoreJitterNeverMoreStable(t *testing.T) {
	// Stability must degrade monotonically as jitter grows: once a
	// jitter level is unstable, every higher level is too.
	sawUnstable := false
	for _, jitter := range []float64{0.02, 0.10, 0.25, 0.40, 0.60} {
		stats := Calculate(generateFrameTimes(60, 10.0, jitter), 6*time.Second)
		if sawUnstable && stats.IsStable {
			t.Fatalf("jitter %.2f stable after a lower level was unstable", jitter)
		}
		if !stats.IsStable {
			sawUnstable = true
		}
	}
	if !sawUnstable {
		t.Fatal("no jitter level was unstable; thresholds look broken")
	}
}

func TestCalculate_FPSRange(t *testing.T) {
	stats := Calculate(generateFrameTimes(30, 15.0, 0.05), 2*time.Second)

	if stats.FPSMin > stats.FPSMean || stats.FPSMean > stats.FPSMax {
		t.Errorf("want FPSMin <= FPSMean <= FPSMax, got %.2f / %.2f / %.2f",
			stats.FPSMin, stats.FPSMean, stats.FPSMax)
	}
	if stats.JitterMax < stats.JitterMean {
		t.Errorf("want JitterMax >= JitterMean, got %.4f < %.4f", stats.JitterMax, stats.JitterMean)
	}
}

func TestCalculate_DegenerateInputs(t *testing.T) {
	empty := Calculate(nil, time.Second)
	if empty.FramesReceived != 0 || empty.IsStable {
		t.Errorf("empty input: got %+v, want zero frames and unstable", empty)
	}

	single := Calculate(generateFrameTimes(1, 30.0, 0), time.Second)
	if single.IsStable {
		t.Error("a single frame can never be stable")
	}
	if single.FramesReceived != 1 {
		t.Errorf("got %d frames, want 1", single.FramesReceived)
	}
}
