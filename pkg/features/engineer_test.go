package features

import (
	"testing"
	"time"

	"github.com/adaptivebreaker/breaker/pkg/breaker"
)

func snapshotWith(errorRate float64, p95 time.Duration) *breaker.Snapshot {
	w := breaker.NewWindow(20)
	successes := int(10 * (1 - errorRate))
	for i := 0; i < 10; i++ {
		w.Record(breaker.Record{Latency: p95, Success: i < successes})
	}
	return w.Snapshot()
}

func TestEngineer_ExtractProducesFixedWidthVector(t *testing.T) {
	e := New()
	v := e.Extract(snapshotWith(0.2, 100*time.Millisecond))
	if len(v) != Width {
		t.Fatalf("len(vector) = %d, want %d", len(v), Width)
	}
}

func TestEngineer_FirstExtractHasZeroTrend(t *testing.T) {
	e := New()
	v := e.Extract(snapshotWith(0.5, 200*time.Millisecond))
	if v[IdxErrorTrend] != 0 {
		t.Errorf("IdxErrorTrend on first extract = %v, want 0", v[IdxErrorTrend])
	}
	if v[IdxLatencyTrend] != 0 {
		t.Errorf("IdxLatencyTrend on first extract = %v, want 0", v[IdxLatencyTrend])
	}
}

func TestEngineer_ErrorTrendReflectsRisingErrorRate(t *testing.T) {
	e := New()
	e.Extract(snapshotWith(0.0, 50*time.Millisecond))
	e.Extract(snapshotWith(0.1, 50*time.Millisecond))
	v := e.Extract(snapshotWith(0.9, 50*time.Millisecond))

	if v[IdxErrorTrend] <= 0 {
		t.Fatalf("expected a positive error trend after a sharp error rate increase, got %v", v[IdxErrorTrend])
	}
}

func TestEngineer_RecordTrainingExampleEvictsAtCapacity(t *testing.T) {
	e := New()
	for i := 0; i < trainingMemoryCapacity+10; i++ {
		e.RecordTrainingExample([Width]float64{}, float64(i))
	}
	if e.TrainingSize() != trainingMemoryCapacity {
		t.Fatalf("TrainingSize() = %d, want capped at %d", e.TrainingSize(), trainingMemoryCapacity)
	}
}

func TestEngineer_RecentBatchRequiresEnoughExamples(t *testing.T) {
	e := New()
	for i := 0; i < 5; i++ {
		e.RecordTrainingExample([Width]float64{}, float64(i))
	}
	feats, targets := e.RecentBatch(10)
	if feats != nil || targets != nil {
		t.Fatal("expected RecentBatch to return nil slices when fewer examples exist than requested")
	}

	feats, targets = e.RecentBatch(3)
	if len(feats) != 3 || len(targets) != 3 {
		t.Fatalf("RecentBatch(3) returned %d/%d entries, want 3/3", len(feats), len(targets))
	}
	if targets[2] != 4 {
		t.Fatalf("expected the most recent examples last, got targets=%v", targets)
	}
}

func TestEngineer_BusinessHoursAndNighttimeAreMutuallyExclusive(t *testing.T) {
	e := New()
	v := e.Extract(snapshotWith(0.1, 50*time.Millisecond))
	if v[IdxIsBusinessHours] == 1 && v[IdxIsNighttime] == 1 {
		t.Fatal("expected IsBusinessHours and IsNighttime to never both be set")
	}
}
