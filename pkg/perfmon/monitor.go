// Package perfmon implements C11: it tracks how well the online learning
// stack's predictions matched observed outcomes, and how effective a
// config change turned out to be (spec.md §4.10).
package perfmon

import (
	"fmt"
	"sync"

	"github.com/adaptivebreaker/breaker/pkg/breaker"
)

// Sink is the optional gauge-emitting collaborator C11 pushes to on every
// update (spec.md §4.10's "emits gauges"; spec.md §6's operational
// telemetry table). A nil Sink means "no metrics export".
type Sink interface {
	ObservePrediction(name string, report Report)
	ObserveConfig(name string, cfg breaker.Config, effectiveness float64)
}

// AccuracyThreshold is the |actual-predicted| bound below which a
// prediction counts as accurate (spec.md §8, §9 open question: kept
// distinct from the anomaly and significance thresholds since the spec
// leaves the relationship between them unspecified).
const AccuracyThreshold = 0.25

// changeRecord captures the mean absolute prediction error before a config
// change and the running mean of the prediction errors recorded after it, so
// effectiveness can be reported once post-change observations exist. The
// breaker's call error rate is not tracked here.
type changeRecord struct {
	config      breaker.Config
	preError    float64
	postError   float64
	postSamples int
	hasPost     bool
}

// Monitor is C11. Not safe for concurrent mutation; owned by a single
// orchestrator (spec.md §5).
type Monitor struct {
	mu sync.Mutex

	predictionCount int64
	accurateCount   int64
	totalAbsError   float64
	lastAbsError    float64
	lastActual      float64
	lastPredicted   float64
	currentConfig   breaker.Config
	changes         []changeRecord

	sink     Sink
	sinkName string
}

// New creates an empty Monitor.
func New() *Monitor {
	return &Monitor{}
}

// SetSink attaches a gauge-emitting sink, labeled by name. Passing a nil
// sink detaches it.
func (m *Monitor) SetSink(sink Sink, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
	m.sinkName = name
}

// RecordPrediction folds one predicted/actual pair into the running
// accuracy statistics.
func (m *Monitor) RecordPrediction(predicted, actual float64) {
	m.mu.Lock()

	err := absf(actual - predicted)
	m.predictionCount++
	m.totalAbsError += err
	m.lastAbsError = err
	m.lastActual = actual
	m.lastPredicted = predicted
	if err < AccuracyThreshold {
		m.accurateCount++
	}

	if len(m.changes) > 0 {
		last := &m.changes[len(m.changes)-1]
		last.postSamples++
		last.postError = runningAvg(last.postError, err, m.postSamplesLocked())
		last.hasPost = true
	}

	sink, name, report := m.sink, m.sinkName, m.reportLocked()
	m.mu.Unlock()

	if sink != nil {
		sink.ObservePrediction(name, report)
	}
}

// postSamplesLocked returns how many predictions have been recorded since
// the latest config change, the divisor of the post-change running average.
func (m *Monitor) postSamplesLocked() int {
	return m.changes[len(m.changes)-1].postSamples
}

// RecordConfigChange snapshots the current running error average as the
// pre-change baseline for a newly applied config, so effectiveness can be
// computed once observations after the change accumulate.
func (m *Monitor) RecordConfigChange(newConfig breaker.Config) {
	m.mu.Lock()

	m.currentConfig = newConfig
	m.changes = append(m.changes, changeRecord{
		config:   newConfig,
		preError: m.averageErrorLocked(),
	})

	sink, name := m.sink, m.sinkName
	m.mu.Unlock()

	if sink != nil {
		sink.ObserveConfig(name, newConfig, 0)
	}
}

func (m *Monitor) averageErrorLocked() float64 {
	if m.predictionCount == 0 {
		return 0
	}
	return m.totalAbsError / float64(m.predictionCount)
}

// Report is a point-in-time summary suitable for the hourly human-readable
// log line spec.md §4.10 asks for.
type Report struct {
	Predictions     int64
	AccuracyPercent float64
	AverageError    float64
	LastError       float64
	LastActual      float64
	LastPredicted   float64
	Effectiveness   float64 // post-change minus pre-change mean absolute prediction error of the latest change; 0 if none
}

// CurrentConfig returns the most recently applied config, or the zero
// Config if none has been recorded yet.
func (m *Monitor) CurrentConfig() breaker.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentConfig
}

// Snapshot builds a Report from the current statistics.
func (m *Monitor) Snapshot() Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reportLocked()
}

func (m *Monitor) reportLocked() Report {
	var accuracy float64
	if m.predictionCount > 0 {
		accuracy = 100 * float64(m.accurateCount) / float64(m.predictionCount)
	}

	var effectiveness float64
	if n := len(m.changes); n > 0 && m.changes[n-1].hasPost {
		last := m.changes[n-1]
		effectiveness = last.postError - last.preError
	}

	return Report{
		Predictions:     m.predictionCount,
		AccuracyPercent: accuracy,
		AverageError:    m.averageErrorLocked(),
		LastError:       m.lastAbsError,
		LastActual:      m.lastActual,
		LastPredicted:   m.lastPredicted,
		Effectiveness:   effectiveness,
	}
}

// String renders the report the way the hourly log line reads it.
func (r Report) String() string {
	return fmt.Sprintf("predictions=%d accuracy=%.1f%% avg_error=%.4f last_error=%.4f effectiveness=%+.4f",
		r.Predictions, r.AccuracyPercent, r.AverageError, r.LastError, r.Effectiveness)
}

func runningAvg(prevAvg, sample float64, n int) float64 {
	if n <= 1 {
		return sample
	}
	return prevAvg + (sample-prevAvg)/float64(n)
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
