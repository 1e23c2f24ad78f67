// Package stats holds a small exponentially-weighted rate accumulator
// shared by the ring buffer's throughput stats (spec.md §4.8) and
// cmd/fecdemo's progress reporting.
//
// Grounded on bureau-foundation-bureau/lib/llm/context/estimator.go's
// CharEstimator: a single float64 smoothed by a fixed beta, updated once
// per observation window rather than per sample.
package stats

import "time"

// RateEWMA tracks a byte counter and its exponentially-smoothed rate,
// updating the smoothed value once per updateInterval rather than on
// every observation (so a burst of tiny writes doesn't thrash the
// average).
type RateEWMA struct {
	updateInterval time.Duration
	beta           float64

	windowStart time.Time
	windowBytes uint64
	windowCount uint64

	totalBytes uint64
	totalCount uint64

	bytesPerSec float64
	countPerSec float64

	observations int
}

// NewRateEWMA creates a rate accumulator with the given update window and
// smoothing factor beta (0 < beta <= 1; larger beta weighs new
// observations more heavily, matching the estimator.go convention).
func NewRateEWMA(updateInterval time.Duration, beta float64) *RateEWMA {
	return &RateEWMA{
		updateInterval: updateInterval,
		beta:           beta,
		windowStart:    time.Now(),
	}
}

// Observe records n bytes (and one logical item) having just been
// transferred, rolling the EWMA forward if the current window has
// elapsed.
func (r *RateEWMA) Observe(n uint64) {
	r.totalBytes += n
	r.totalCount++
	r.windowBytes += n
	r.windowCount++

	elapsed := time.Since(r.windowStart)
	if elapsed < r.updateInterval {
		return
	}

	observedBytesPerSec := float64(r.windowBytes) / elapsed.Seconds()
	observedCountPerSec := float64(r.windowCount) / elapsed.Seconds()

	r.observations++
	if r.observations == 1 {
		r.bytesPerSec = observedBytesPerSec
		r.countPerSec = observedCountPerSec
	} else {
		r.bytesPerSec = r.beta*observedBytesPerSec + (1-r.beta)*r.bytesPerSec
		r.countPerSec = r.beta*observedCountPerSec + (1-r.beta)*r.countPerSec
	}

	r.windowStart = time.Now()
	r.windowBytes = 0
	r.windowCount = 0
}

// Snapshot is a point-in-time read of the accumulator.
type Snapshot struct {
	Bytes     uint64
	Count     uint64
	BytesRate float64
	CountRate float64
}

// Snapshot returns the current totals and smoothed rates.
func (r *RateEWMA) Snapshot() Snapshot {
	return Snapshot{
		Bytes:     r.totalBytes,
		Count:     r.totalCount,
		BytesRate: r.bytesPerSec,
		CountRate: r.countPerSec,
	}
}
