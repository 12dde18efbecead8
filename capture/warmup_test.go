package capture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCalculateFPSStats(t *testing.T) {
	base := time.Now()
	interval := 50 * time.Millisecond
	times := make([]time.Time, 40)
	for i := range times {
		times[i] = base.Add(time.Duration(i) * interval)
	}

	stats := CalculateFPSStats(times, 2*time.Second)
	require.Equal(t, 40, stats.FramesReceived)
	require.InDelta(t, 20.0, stats.FPSMean, 1.0)
	require.True(t, stats.IsStable, "perfectly paced frames must be stable")
}

func TestCalculateFPSStats_JitterIsDuration(t *testing.T) {
	// Intervals alternate 40ms / 60ms around an expected 50ms, so
	// every interval deviates by exactly 10ms. The public stats must
	// report that as a real duration, not raw float seconds.
	base := time.Now()
	times := []time.Time{base}
	for i := 0; i < 20; i++ {
		step := 40 * time.Millisecond
		if i%2 == 1 {
			step = 60 * time.Millisecond
		}
		times = append(times, times[len(times)-1].Add(step))
	}

	stats := CalculateFPSStats(times, time.Second)
	require.InDelta(t, float64(10*time.Millisecond), float64(stats.JitterMean), float64(time.Millisecond))
	require.Greater(t, stats.JitterMax, stats.JitterMean)
	require.Less(t, stats.JitterMax, 20*time.Millisecond)
	require.Contains(t, stats.String(), "jitter=10ms")
}

func TestWarmup_RejectsBadDuration(t *testing.T) {
	sup, err := NewSupervisor(Config{})
	require.NoError(t, err)

	_, err = sup.Warmup(context.Background(), nil, 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must be positive")
}

func TestWarmup_CollectsOverWindow(t *testing.T) {
	sup, err := NewSupervisor(Config{})
	require.NoError(t, err)

	frames := make(chan Frame)
	go func() {
		for i := 0; ; i++ {
			select {
			case frames <- Frame{Seq: uint64(i + 1), Timestamp: time.Now()}:
				time.Sleep(5 * time.Millisecond)
			case <-time.After(time.Second):
				return
			}
		}
	}()

	stats, err := sup.Warmup(context.Background(), frames, 150*time.Millisecond)
	require.NoError(t, err)
	require.GreaterOrEqual(t, stats.FramesReceived, 2)
	require.Greater(t, stats.FPSMean, 0.0)
}

func TestWarmup_TooFewFrames(t *testing.T) {
	sup, err := NewSupervisor(Config{})
	require.NoError(t, err)

	frames := make(chan Frame)
	_, err = sup.Warmup(context.Background(), frames, 20*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "need at least 2")
}

func TestWarmup_StreamEnded(t *testing.T) {
	sup, err := NewSupervisor(Config{})
	require.NoError(t, err)

	frames := make(chan Frame)
	close(frames)
	_, err = sup.Warmup(context.Background(), frames, time.Second)
	require.Error(t, err)
	require.Contains(t, err.Error(), "stream ended during warmup")
}

func TestWarmup_ContextCancel(t *testing.T) {
	sup, err := NewSupervisor(Config{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sup.Warmup(ctx, make(chan Frame), time.Second)
	require.ErrorIs(t, err, context.Canceled)
}
