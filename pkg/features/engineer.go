// Package features turns a metric snapshot plus recent history into the
// fixed-width numeric feature vector the online learning stack consumes
// (spec.md §4.2, C3).
package features

import (
	"sync"

	"github.com/adaptivebreaker/breaker/pkg/breaker"
)

// Width is the fixed feature vector length F (spec.md §3).
const Width = 15

// Feature vector indices, fixed so tests can assert by position.
const (
	IdxLatencyNorm = iota
	IdxErrorRate
	IdxConcurrencyNorm
	IdxLoadNorm
	IdxTimeOfDay
	IdxErrorTrend
	IdxLatencyTrend
	IdxStabilityScore
	IdxLatencyTimesError
	IdxLatencySquared
	IdxConcurrencyTimesError
	IdxLoadTimesLatency
	IdxIsBusinessHours
	IdxIsNighttime
	IdxRecentFailureDecay
)

const trendWindowCapacity = 10
const trainingMemoryCapacity = 100

// TrainingExample pairs a feature vector with its learning target.
type TrainingExample struct {
	Features [Width]float64
	Target   float64
}

// snapshotSample is the slice of a Snapshot the trend window needs; keeping
// it this narrow means the trend window doesn't pin the whole Snapshot (and
// its raw record copy) in memory.
type snapshotSample struct {
	errorRate  float64
	p95Ms      float64
	latencyMs  float64 // normalized (ms/1000), used for the stability variance term
}

// Engineer is C3: it extracts feature vectors and maintains the bounded
// trend window and training memory the derived features and the ensemble's
// online learning both depend on. Not safe for concurrent mutation across
// orchestrators; a single orchestrator owns one Engineer (spec.md §5).
type Engineer struct {
	mu sync.Mutex

	trend    []snapshotSample // oldest first, capacity trendWindowCapacity
	training []TrainingExample
}

// New creates an Engineer with empty trend and training history.
func New() *Engineer {
	return &Engineer{
		trend:    make([]snapshotSample, 0, trendWindowCapacity),
		training: make([]TrainingExample, 0, trainingMemoryCapacity),
	}
}

// Extract computes the feature vector for snapshot and appends it to the
// trend window used by the next call's trend/stability/decay terms.
func (e *Engineer) Extract(snapshot *breaker.Snapshot) [Width]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := e.computeLocked(snapshot)
	errorRate := snapshot.ErrorRate()
	latencyNorm := float64(snapshot.P95Latency().Milliseconds()) / 1000.0
	e.pushTrendLocked(snapshotSample{errorRate: errorRate, p95Ms: float64(snapshot.P95Latency().Milliseconds()), latencyMs: latencyNorm})

	return v
}

func (e *Engineer) computeLocked(snapshot *breaker.Snapshot) [Width]float64 {
	latencyNorm := float64(snapshot.P95Latency().Milliseconds()) / 1000.0
	errorRate := snapshot.ErrorRate()
	concurrencyNorm := snapshot.Concurrency() / 10.0
	loadNorm := snapshot.SystemLoad() / 10.0
	timeOfDay := snapshot.TimeOfDay()

	errorTrend := e.errorTrend(errorRate)
	latencyTrend := e.latencyTrend(latencyNorm * 1000)
	stability := e.stabilityScore(errorRate, float64(snapshot.P95Latency().Milliseconds()), snapshot.SystemLoad())
	decay := e.recentFailureDecay()

	var v [Width]float64
	v[IdxLatencyNorm] = latencyNorm
	v[IdxErrorRate] = errorRate
	v[IdxConcurrencyNorm] = concurrencyNorm
	v[IdxLoadNorm] = loadNorm
	v[IdxTimeOfDay] = timeOfDay
	v[IdxErrorTrend] = errorTrend
	v[IdxLatencyTrend] = latencyTrend
	v[IdxStabilityScore] = stability
	v[IdxLatencyTimesError] = latencyNorm * errorRate
	v[IdxLatencySquared] = latencyNorm * latencyNorm
	v[IdxConcurrencyTimesError] = concurrencyNorm * errorRate
	v[IdxLoadTimesLatency] = loadNorm * latencyNorm
	v[IdxIsBusinessHours] = boolFloat(timeOfDay >= 0.33 && timeOfDay <= 0.75)
	v[IdxIsNighttime] = boolFloat(timeOfDay <= 0.25 || timeOfDay >= 0.875)
	v[IdxRecentFailureDecay] = decay

	return v
}

func (e *Engineer) pushTrendLocked(s snapshotSample) {
	if len(e.trend) >= trendWindowCapacity {
		e.trend = e.trend[1:]
	}
	e.trend = append(e.trend, s)
}

// errorTrend implements spec.md §4.2's exact formula, using the trend
// window contents *before* the current snapshot is pushed as "historical".
func (e *Engineer) errorTrend(newest float64) float64 {
	n := len(e.trend)
	switch {
	case n >= 3:
		weighted := weightedMean(errorRates(e.trend), 0.8)
		return clip((newest-weighted)*5, -1, 1)
	case n == 2:
		oldest := e.trend[0].errorRate
		return clip((newest-oldest)*5, -1, 1)
	default:
		return 0
	}
}

func (e *Engineer) latencyTrend(newestP95Ms float64) float64 {
	if len(e.trend) == 0 {
		return 0
	}
	oldest := e.trend[0].p95Ms
	return clip((newestP95Ms-oldest)/500, -1, 1)
}

func (e *Engineer) stabilityScore(errorRate, p95Ms, load float64) float64 {
	base := 0.5*(1-errorRate) + 0.3*max0(1-p95Ms/2000) + 0.2*clip(1-1.5*abs(0.6-load/10), 0, 1)

	n := len(e.trend)
	if n < 3 {
		return clip(base, 0, 1)
	}

	errVar := variance(errorRates(e.trend))
	latVar := variance(latencyNorms(e.trend))
	normErrVar := min1(errVar * 20)
	normLatVar := min1(latVar * 5)
	varianceComponent := 1 - (0.6*normErrVar + 0.4*normLatVar)

	return clip(base*(0.8+0.2*varianceComponent), 0, 1)
}

func (e *Engineer) recentFailureDecay() float64 {
	if len(e.trend) == 0 {
		return 0
	}
	weighted := weightedMean(errorRates(e.trend), 0.7)
	return clip(weighted*2, 0, 1)
}

// RecordTrainingExample appends (features, target) to the bounded training
// memory, evicting the oldest example at capacity M=100.
func (e *Engineer) RecordTrainingExample(f [Width]float64, target float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.training) >= trainingMemoryCapacity {
		e.training = e.training[1:]
	}
	e.training = append(e.training, TrainingExample{Features: f, Target: target})
}

// RecentBatch returns the most recent n training examples split into
// parallel feature/target slices, or two nil slices if fewer than n are
// available.
func (e *Engineer) RecentBatch(n int) ([][Width]float64, []float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if n <= 0 || len(e.training) < n {
		return nil, nil
	}
	start := len(e.training) - n
	feats := make([][Width]float64, n)
	targets := make([]float64, n)
	for i, ex := range e.training[start:] {
		feats[i] = ex.Features
		targets[i] = ex.Target
	}
	return feats, targets
}

// TrainingSize reports how many training examples are currently held.
func (e *Engineer) TrainingSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.training)
}

func errorRates(samples []snapshotSample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.errorRate
	}
	return out
}

func latencyNorms(samples []snapshotSample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.latencyMs
	}
	return out
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
