package audit

import (
	"testing"
	"time"

	"github.com/adaptivebreaker/breaker/pkg/breaker"
)

func TestRootCauseAnalyzer_NilTripReturnsNil(t *testing.T) {
	rc := NewRootCauseAnalyzer()
	if got := rc.Explain(nil, nil, time.Hour); got != nil {
		t.Fatalf("Explain(nil, ...) = %v, want nil", got)
	}
}

func TestRootCauseAnalyzer_NoHistoryYieldsGenuineChangeExplanation(t *testing.T) {
	rc := NewRootCauseAnalyzer()
	trip := &DecisionRecord{BreakerName: "checkout", Timestamp: time.Now(), ToState: breaker.Open}

	got := rc.Explain(trip, nil, time.Hour)
	if got.Confidence != 0.4 {
		t.Fatalf("Confidence = %v, want 0.4 for a trip with no relevant history", got.Confidence)
	}
}

func TestRootCauseAnalyzer_BlamesRecentReconfiguration(t *testing.T) {
	rc := NewRootCauseAnalyzer()
	now := time.Now()
	trip := &DecisionRecord{BreakerName: "checkout", Timestamp: now, ToState: breaker.Open}
	history := []*DecisionRecord{
		{
			BreakerName:  "checkout",
			Timestamp:    now.Add(-30 * time.Second),
			DecisionType: DecisionConfigReplace,
			NewConfig:    &breaker.Config{FailureRateThreshold: 0.9},
			Trigger:      "significant_change",
		},
	}

	got := rc.Explain(trip, history, time.Hour)
	if got.Confidence != 0.5 {
		t.Fatalf("Confidence = %v, want 0.5 for a trip shortly after a reconfiguration", got.Confidence)
	}
}

func TestRootCauseAnalyzer_BlamesAnomalySuppression(t *testing.T) {
	rc := NewRootCauseAnalyzer()
	now := time.Now()
	trip := &DecisionRecord{BreakerName: "checkout", Timestamp: now, ToState: breaker.Open}

	var history []*DecisionRecord
	for i := 1; i <= 4; i++ {
		history = append(history, &DecisionRecord{
			BreakerName: "checkout",
			Timestamp:   now.Add(-time.Duration(i) * time.Second),
			Trigger:     "anomaly_suppressed",
		})
	}

	got := rc.Explain(trip, history, time.Hour)
	if got.Confidence != 0.6 {
		t.Fatalf("Confidence = %v, want 0.6 for repeated anomaly suppression before the trip", got.Confidence)
	}
}

func TestRootCauseAnalyzer_IgnoresOtherBreakersHistory(t *testing.T) {
	rc := NewRootCauseAnalyzer()
	now := time.Now()
	trip := &DecisionRecord{BreakerName: "checkout", Timestamp: now, ToState: breaker.Open}
	history := []*DecisionRecord{
		{BreakerName: "payments", Timestamp: now.Add(-10 * time.Second), DecisionType: DecisionConfigReplace, NewConfig: &breaker.Config{}},
	}

	got := rc.Explain(trip, history, time.Hour)
	if got.Confidence != 0.4 {
		t.Fatalf("expected another breaker's history to be excluded, got confidence %v", got.Confidence)
	}
}

func TestRootCause_StringHandlesNil(t *testing.T) {
	var rc *RootCause
	if got := rc.String(); got != "" {
		t.Fatalf("String() on a nil RootCause = %q, want empty", got)
	}
}
