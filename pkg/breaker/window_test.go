package breaker

import (
	"testing"
	"time"
)

func TestWindow_SnapshotAggregates(t *testing.T) {
	w := NewWindow(10)
	w.Record(Record{Latency: 100 * time.Millisecond, Success: true, InFlight: 1, SystemLoad: 0.2})
	w.Record(Record{Latency: 200 * time.Millisecond, Success: false, InFlight: 2, SystemLoad: 0.4})

	snap := w.Snapshot()
	if snap.ErrorRate() != 0.5 {
		t.Errorf("ErrorRate() = %v, want 0.5", snap.ErrorRate())
	}
	if snap.SuccessRate() != 0.5 {
		t.Errorf("SuccessRate() = %v, want 0.5", snap.SuccessRate())
	}
	if snap.Concurrency() != 1.5 {
		t.Errorf("Concurrency() = %v, want 1.5", snap.Concurrency())
	}
}

func TestWindow_EvictsOldestOnOverflow(t *testing.T) {
	w := NewWindow(2)
	w.Record(Record{Success: false})
	w.Record(Record{Success: false})
	w.Record(Record{Success: true})

	snap := w.Snapshot()
	if len(snap.Records()) != 2 {
		t.Fatalf("expected capacity-bounded 2 records, got %d", len(snap.Records()))
	}
	if snap.ErrorRate() != 0.5 {
		t.Errorf("ErrorRate() = %v, want 0.5 after oldest failure evicted", snap.ErrorRate())
	}
}

func TestEmptySnapshot(t *testing.T) {
	snap := EmptySnapshot()
	if !snap.Empty() {
		t.Fatal("expected EmptySnapshot() to report Empty()")
	}
	if snap.ErrorRate() != 0 || snap.P95Latency() != 0 {
		t.Fatal("expected zero-valued aggregates on an empty snapshot")
	}
}

func TestNewAggregateSnapshot(t *testing.T) {
	snap := NewAggregateSnapshot(50*time.Millisecond, 0.1, 0.9, 2.0, 0.3, 0.5)
	if snap.P95Latency() != 50*time.Millisecond {
		t.Errorf("P95Latency() = %v, want 50ms", snap.P95Latency())
	}
	if snap.Records() != nil {
		t.Error("expected a nil Records() for a rebuilt aggregate snapshot")
	}
}
