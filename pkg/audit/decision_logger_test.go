package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adaptivebreaker/breaker/pkg/breaker"
	"github.com/adaptivebreaker/breaker/pkg/logx"
)

func testLogger() *logx.Logger {
	return logx.New(logx.Options{Level: "error", Output: os.Stderr})
}

func TestDecisionLogger_RecordAndRetrieveInMemory(t *testing.T) {
	dl := NewDecisionLogger(testLogger(), 10, "")
	dl.Record(&DecisionRecord{
		Timestamp:    time.Now(),
		BreakerName:  "checkout",
		DecisionType: DecisionStateTransition,
		Trigger:      "outcome_evaluated",
		FromState:    breaker.Closed,
		ToState:      breaker.Open,
	})

	got := dl.Records()
	if len(got) != 1 {
		t.Fatalf("Records() len = %d, want 1", len(got))
	}
	if got[0].BreakerName != "checkout" {
		t.Errorf("BreakerName = %q, want checkout", got[0].BreakerName)
	}
}

func TestDecisionLogger_EvictsOldestAtCapacity(t *testing.T) {
	dl := NewDecisionLogger(testLogger(), 3, "")
	for i := 0; i < 5; i++ {
		dl.Record(&DecisionRecord{Trigger: string(rune('a' + i))})
	}
	got := dl.Records()
	if len(got) != 3 {
		t.Fatalf("Records() len = %d, want 3", len(got))
	}
	if got[len(got)-1].Trigger != string(rune('a'+4)) {
		t.Fatalf("expected the most recent record retained last, got %q", got[len(got)-1].Trigger)
	}
}

func TestDecisionLogger_NilLoggerIsSafe(t *testing.T) {
	var dl *DecisionLogger
	dl.Record(&DecisionRecord{Trigger: "x"})
	if got := dl.Records(); got != nil {
		t.Fatalf("Records() on a nil logger = %v, want nil", got)
	}
	if err := dl.Close(); err != nil {
		t.Fatalf("Close() on a nil logger = %v, want nil", err)
	}
}

func TestDecisionLogger_RecordNilIsNoOp(t *testing.T) {
	dl := NewDecisionLogger(testLogger(), 10, "")
	dl.Record(nil)
	if got := dl.Records(); len(got) != 0 {
		t.Fatalf("Records() len = %d, want 0 after recording nil", len(got))
	}
}

func TestDecisionLogger_WritesJSONAndCSVFiles(t *testing.T) {
	dir := t.TempDir()
	dl := NewDecisionLogger(testLogger(), 10, dir)
	dl.Record(&DecisionRecord{
		Timestamp:    time.Now(),
		BreakerName:  "checkout",
		DecisionType: DecisionConfigReplace,
		Trigger:      "significant_change",
		FromState:    breaker.Closed,
		ToState:      breaker.Closed,
	})
	if err := dl.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	jsonPath := filepath.Join(dir, "decisions.jsonl")
	if info, err := os.Stat(jsonPath); err != nil || info.Size() == 0 {
		t.Fatalf("expected a non-empty %s, err=%v", jsonPath, err)
	}
	csvPath := filepath.Join(dir, "decisions.csv")
	if info, err := os.Stat(csvPath); err != nil || info.Size() == 0 {
		t.Fatalf("expected a non-empty %s, err=%v", csvPath, err)
	}
}
