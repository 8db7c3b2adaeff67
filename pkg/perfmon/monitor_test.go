package perfmon

import (
	"testing"

	"github.com/adaptivebreaker/breaker/pkg/breaker"
)

type fakeSink struct {
	predictionCalls int
	configCalls     int
	lastReport      Report
	lastName        string
}

func (f *fakeSink) ObservePrediction(name string, report Report) {
	f.predictionCalls++
	f.lastReport = report
	f.lastName = name
}

func (f *fakeSink) ObserveConfig(name string, cfg breaker.Config, effectiveness float64) {
	f.configCalls++
	f.lastName = name
}

func TestMonitor_RecordPredictionUpdatesAccuracy(t *testing.T) {
	m := New()
	m.RecordPrediction(0.5, 0.55) // err 0.05 < threshold, accurate
	m.RecordPrediction(0.5, 0.9)  // err 0.4 >= threshold, inaccurate

	r := m.Snapshot()
	if r.Predictions != 2 {
		t.Fatalf("Predictions = %d, want 2", r.Predictions)
	}
	if r.AccuracyPercent != 50 {
		t.Fatalf("AccuracyPercent = %v, want 50", r.AccuracyPercent)
	}
}

func TestMonitor_SnapshotWithNoPredictionsIsZeroValued(t *testing.T) {
	m := New()
	r := m.Snapshot()
	if r.Predictions != 0 || r.AccuracyPercent != 0 {
		t.Fatalf("Snapshot() on an empty monitor = %+v, want zero-valued", r)
	}
}

func TestMonitor_SinkReceivesPredictionAndConfigEvents(t *testing.T) {
	m := New()
	sink := &fakeSink{}
	m.SetSink(sink, "checkout")

	m.RecordPrediction(0.5, 0.5)
	if sink.predictionCalls != 1 {
		t.Fatalf("predictionCalls = %d, want 1", sink.predictionCalls)
	}
	if sink.lastName != "checkout" {
		t.Fatalf("lastName = %q, want checkout", sink.lastName)
	}

	m.RecordConfigChange(breaker.Config{WindowSize: 50})
	if sink.configCalls != 1 {
		t.Fatalf("configCalls = %d, want 1", sink.configCalls)
	}
}

func TestMonitor_SetSinkNilDetaches(t *testing.T) {
	m := New()
	sink := &fakeSink{}
	m.SetSink(sink, "checkout")
	m.SetSink(nil, "checkout")

	m.RecordPrediction(0.5, 0.5)
	if sink.predictionCalls != 0 {
		t.Fatalf("expected no sink calls after detaching, got %d", sink.predictionCalls)
	}
}

func TestMonitor_EffectivenessReflectsPostChangeErrorDelta(t *testing.T) {
	m := New()
	m.RecordPrediction(0.5, 0.5) // pre-change baseline: error 0
	m.RecordConfigChange(breaker.Config{WindowSize: 30})
	m.RecordPrediction(0.5, 0.9) // post-change error 0.4

	r := m.Snapshot()
	if r.Effectiveness <= 0 {
		t.Fatalf("expected a positive effectiveness delta (error got worse after the change), got %v", r.Effectiveness)
	}
}

func TestMonitor_CurrentConfigTracksLastRecordedChange(t *testing.T) {
	m := New()
	m.RecordConfigChange(breaker.Config{WindowSize: 42})
	if m.CurrentConfig().WindowSize != 42 {
		t.Fatalf("CurrentConfig().WindowSize = %d, want 42", m.CurrentConfig().WindowSize)
	}
}
