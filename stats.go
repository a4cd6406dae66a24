package pylongstreamer

import (
	"math"
	"time"
)

// fpsStabilityThreshold is the maximum allowed FPS standard deviation as
// a fraction of mean FPS. A push rate is considered stable if
// stddev < 15% of mean FPS.
const fpsStabilityThreshold = 0.15

// pushRate summarizes the recent push cadence derived from timestamps.
type pushRate struct {
	mean   float64
	stdDev float64
	stable bool
}

// calculatePushRate computes the mean push rate over the timestamp
// window, the standard deviation of the instantaneous rates, and the
// stability verdict. Fewer than two timestamps yields a zero, unstable
// result.
func calculatePushRate(times []time.Time) pushRate {
	n := len(times)
	if n < 2 {
		return pushRate{}
	}

	total := times[n-1].Sub(times[0]).Seconds()
	if total <= 0 {
		return pushRate{}
	}
	mean := float64(n-1) / total

	instantaneous := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		interval := times[i].Sub(times[i-1]).Seconds()
		if interval > 0 {
			instantaneous = append(instantaneous, 1.0/interval)
		}
	}
	if len(instantaneous) == 0 {
		return pushRate{mean: mean}
	}

	var sumSquares float64
	for _, fps := range instantaneous {
		diff := fps - mean
		sumSquares += diff * diff
	}
	stdDev := math.Sqrt(sumSquares / float64(len(instantaneous)))

	return pushRate{
		mean:   mean,
		stdDev: stdDev,
		stable: stdDev < mean*fpsStabilityThreshold,
	}
}
