package workload

import (
	"context"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"time"
)

// ThinkTime is the pause a virtual user takes at the end of an iteration.
// Min == Max gives a fixed pause; otherwise the pause is uniform in [Min, Max).
type ThinkTime struct {
	Min time.Duration
	Max time.Duration
}

// Fixed returns a constant think time.
func Fixed(d time.Duration) ThinkTime {
	return ThinkTime{Min: d, Max: d}
}

// Between returns a uniform think time.
func Between(minDur, maxDur time.Duration) ThinkTime {
	return ThinkTime{Min: minDur, Max: maxDur}
}

// Draw picks a pause length.
func (t ThinkTime) Draw(rng *rand.Rand) time.Duration {
	if t.Max <= t.Min {
		return t.Min
	}
	return t.Min + time.Duration(rng.Int64N(int64(t.Max-t.Min)))
}

// Sleep blocks for d or until ctx is done. It reports whether the full
// pause elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// burnSink keeps the compiler from discarding the client-side work loop.
var burnSink atomic.Uint64

// BurnCPU spends client CPU the way a heavy page render would. It has no
// effect on the server under test.
func BurnCPU(iterations int) {
	var acc float64
	for i := 0; i < iterations; i++ {
		x := float64(i)
		acc += math.Sqrt(x) * math.Sin(x) * math.Cos(x)
	}
	burnSink.Store(math.Float64bits(acc))
}
