// Package anomaly implements C6: a per-feature statistical novelty check
// over the feature vectors C3 produces (spec.md §4.5). It tracks a running
// mean and standard deviation per feature and reports how far a new vector
// sits from that running baseline in aggregate z-score terms.
package anomaly

import (
	"math"
	"sync"

	"github.com/adaptivebreaker/breaker/pkg/features"
)

const historyCapacity = 30

// exactRecomputeUpTo is the sample count up to and including which the
// running mean/stddev are recomputed exactly from the retained history rather than
// nudged by an EMA step; below this count an EMA has too little to average
// over and drifts badly from a couple of outliers.
const exactRecomputeUpTo = 10

const emaRate = 0.1

// varianceFloor keeps a feature whose observed variance collapses to zero
// (a constant value seen so far) from producing a divide-by-near-zero
// z-score the first time it moves even slightly.
const varianceFloor = 1e-4

// DefaultThreshold is the aggregate score above which Score flags a vector
// as anomalous (spec.md §4.5).
const DefaultThreshold = 2.5

// Detector is C6. Not safe for concurrent mutation; owned by a single
// orchestrator (spec.md §5).
type Detector struct {
	mu sync.Mutex

	count int
	mean  [features.Width]float64
	m2    [features.Width]float64 // per-feature variance: exact during warmup, EMA-updated after

	history   [][features.Width]float64 // bounded FIFO, most recent last
	threshold float64
}

// New creates a Detector with empty history and the default threshold.
func New() *Detector {
	return &Detector{
		history:   make([][features.Width]float64, 0, historyCapacity),
		threshold: DefaultThreshold,
	}
}

// SetThreshold overrides the anomaly threshold (used by adaptive config or
// tests); values <= 0 are ignored.
func (d *Detector) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.threshold = threshold
}

// Score folds vector into the running per-feature statistics and returns
// the aggregate anomaly score: sqrt(mean_i(((x_i - mean_i)/stddev_i)^2)).
func (d *Detector) Score(vector [features.Width]float64) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pushHistoryLocked(vector)
	d.count++

	if d.count <= exactRecomputeUpTo {
		d.recomputeExactLocked()
	} else {
		d.updateEMALocked(vector)
	}

	return d.scoreAgainstLocked(vector)
}

// IsAnomalous reports whether score exceeds the configured threshold.
func (d *Detector) IsAnomalous(score float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return score > d.threshold
}

func (d *Detector) scoreAgainstLocked(vector [features.Width]float64) float64 {
	if d.count == 0 {
		return 0
	}
	var sumSq float64
	for i := 0; i < features.Width; i++ {
		stddev := d.stddevLocked(i)
		z := (vector[i] - d.mean[i]) / stddev
		sumSq += z * z
	}
	return math.Sqrt(sumSq / float64(features.Width))
}

func (d *Detector) stddevLocked(i int) float64 {
	variance := d.m2[i]
	if variance < varianceFloor {
		variance = varianceFloor
	}
	return math.Sqrt(variance)
}

// recomputeExactLocked recomputes mean and variance per feature exactly
// from the retained history (population variance, no Bessel correction —
// this is a descriptive baseline, not a sample-to-population estimate).
func (d *Detector) recomputeExactLocked() {
	n := len(d.history)
	if n == 0 {
		return
	}
	for i := 0; i < features.Width; i++ {
		var sum float64
		for _, v := range d.history {
			sum += v[i]
		}
		mean := sum / float64(n)

		var sq float64
		for _, v := range d.history {
			d := v[i] - mean
			sq += d * d
		}
		d.mean[i] = mean
		d.m2[i] = sq / float64(n)
	}
}

// updateEMALocked nudges the running mean and variance toward vector by
// emaRate, once the exact-recompute warmup window has passed.
func (d *Detector) updateEMALocked(vector [features.Width]float64) {
	for i := 0; i < features.Width; i++ {
		delta := vector[i] - d.mean[i]
		d.mean[i] += emaRate * delta
		d.m2[i] = (1-emaRate)*d.m2[i] + emaRate*delta*delta
	}
}

func (d *Detector) pushHistoryLocked(vector [features.Width]float64) {
	d.history = append(d.history, vector)
	if len(d.history) > historyCapacity {
		d.history = d.history[1:]
	}
}

// SampleCount returns the number of vectors folded into the running
// statistics so far.
func (d *Detector) SampleCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}
