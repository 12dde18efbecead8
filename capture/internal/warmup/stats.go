// Package warmup measures whether a freshly negotiated capture mode
// actually delivers frames at a steady rate. Format negotiation is
// best-effort and the probe only proves the stream is alive, not that
// it is stable; a short warmup over real frame timestamps closes that
// gap before the caller trusts the session.
package warmup

import (
	"math"
	"time"
)

const (
	// fpsStabilityThreshold: the stream is rate-stable when the stddev
	// of instantaneous FPS stays below this fraction of the mean.
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold: mean deviation from the expected
	// inter-frame interval must stay below this fraction of it.
	jitterStabilityThreshold = 0.20
)

// Stats summarises frame arrival behaviour over a warmup window.
type Stats struct {
	FramesReceived int
	Duration       time.Duration
	FPSMean        float64
	FPSStdDev      float64
	FPSMin         float64
	FPSMax         float64
	JitterMean     float64
	JitterStdDev   float64
	JitterMax      float64
	IsStable       bool
}

// Calculate derives arrival statistics from frame timestamps collected
// over totalDuration. Fewer than two timestamps can never be stable.
func Calculate(frameTimes []time.Time, totalDuration time.Duration) *Stats {
	n := len(frameTimes)
	if n == 0 {
		return &Stats{Duration: totalDuration}
	}

	fpsMean := float64(n) / totalDuration.Seconds()

	instantaneous := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		interval := frameTimes[i].Sub(frameTimes[i-1]).Seconds()
		if interval > 0 {
			instantaneous = append(instantaneous, 1.0/interval)
		}
	}
	if len(instantaneous) == 0 {
		return &Stats{
			FramesReceived: n,
			Duration:       totalDuration,
			FPSMean:        fpsMean,
		}
	}

	fpsMin, fpsMax := instantaneous[0], instantaneous[0]
	for _, fps := range instantaneous {
		if fps < fpsMin {
			fpsMin = fps
		}
		if fps > fpsMax {
			fpsMax = fps
		}
	}

	var sumSquares float64
	for _, fps := range instantaneous {
		diff := fps - fpsMean
		sumSquares += diff * diff
	}
	fpsStdDev := math.Sqrt(sumSquares / float64(len(instantaneous)))

	expectedInterval := 1.0 / fpsMean
	jitters := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		actual := frameTimes[i].Sub(frameTimes[i-1]).Seconds()
		jitters = append(jitters, math.Abs(actual-expectedInterval))
	}

	var jitterSum, jitterMax float64
	for _, j := range jitters {
		jitterSum += j
		if j > jitterMax {
			jitterMax = j
		}
	}
	jitterMean := jitterSum / float64(len(jitters))

	var jitterSumSquares float64
	for _, j := range jitters {
		diff := j - jitterMean
		jitterSumSquares += diff * diff
	}
	jitterStdDev := math.Sqrt(jitterSumSquares / float64(len(jitters)))

	return &Stats{
		FramesReceived: n,
		Duration:       totalDuration,
		FPSMean:        fpsMean,
		FPSStdDev:      fpsStdDev,
		FPSMin:         fpsMin,
		FPSMax:         fpsMax,
		JitterMean:     jitterMean,
		JitterStdDev:   jitterStdDev,
		JitterMax:      jitterMax,
		IsStable: fpsStdDev < fpsMean*fpsStabilityThreshold &&
			jitterMean < expectedInterval*jitterStabilityThreshold,
	}
}
