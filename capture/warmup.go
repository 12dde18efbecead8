package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/e7canasta/scopeview/capture/internal/warmup"
)

// WarmupStats summarizes delivery timing over a warmup window.
type WarmupStats struct {
	FramesReceived int
	Duration       time.Duration
	FPSMean        float64
	FPSStdDev      float64
	FPSMin         float64
	FPSMax         float64
	JitterMean     time.Duration
	JitterStdDev   time.Duration
	JitterMax      time.Duration
	// IsStable is true when frame pacing variance stayed within the
	// stability thresholds.
	IsStable bool
}

func (s WarmupStats) String() string {
	return fmt.Sprintf("frames=%d fps=%.2f±%.2f jitter=%s stable=%t",
		s.FramesReceived, s.FPSMean, s.FPSStdDev, s.JitterMean.Round(time.Millisecond), s.IsStable)
}

// CalculateFPSStats computes pacing statistics from frame arrival
// times observed over totalDuration.
func CalculateFPSStats(frameTimes []time.Time, totalDuration time.Duration) WarmupStats {
	raw := warmup.Calculate(frameTimes, totalDuration)
	return WarmupStats{
		FramesReceived: raw.FramesReceived,
		Duration:       raw.Duration,
		FPSMean:        raw.FPSMean,
		FPSStdDev:      raw.FPSStdDev,
		FPSMin:         raw.FPSMin,
		FPSMax:         raw.FPSMax,
		// The internal stats keep jitter in float seconds.
		JitterMean:   time.Duration(raw.JitterMean * float64(time.Second)),
		JitterStdDev: time.Duration(raw.JitterStdDev * float64(time.Second)),
		JitterMax:    time.Duration(raw.JitterMax * float64(time.Second)),
		IsStable:     raw.IsStable,
	}
}

// Warmup consumes frames for the given duration and reports pacing
// statistics, letting callers wait for the sensor to settle before
// trusting the stream. The consumed frames are discarded. Call it
// after Start and before handing the channel to the real consumer.
func (s *Supervisor) Warmup(ctx context.Context, frames <-chan Frame, duration time.Duration) (WarmupStats, error) {
	if duration <= 0 {
		return WarmupStats{}, fmt.Errorf("capture: warmup duration must be positive, got %s", duration)
	}

	slog.Info("capture: warming up", "duration", duration, "device", s.Device().String())

	deadline := time.NewTimer(duration)
	defer deadline.Stop()
	start := time.Now()

	var arrivals []time.Time
loop:
	for {
		select {
		case <-ctx.Done():
			return WarmupStats{}, ctx.Err()
		case <-deadline.C:
			break loop
		case frame, ok := <-frames:
			if !ok {
				if err := s.Err(); err != nil {
					return WarmupStats{}, fmt.Errorf("capture: stream ended during warmup: %w", err)
				}
				return WarmupStats{}, errors.New("capture: stream ended during warmup")
			}
			arrivals = append(arrivals, frame.Timestamp)
		}
	}

	if len(arrivals) < 2 {
		return WarmupStats{}, fmt.Errorf("capture: warmup received %d frames, need at least 2 to measure pacing", len(arrivals))
	}

	stats := CalculateFPSStats(arrivals, time.Since(start))
	slog.Info("capture: warmup complete",
		"frames", stats.FramesReceived,
		"fps_mean", fmt.Sprintf("%.2f", stats.FPSMean),
		"stable", stats.IsStable)
	return stats, nil
}
