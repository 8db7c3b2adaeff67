package audit

import (
	"fmt"
	"strings"
	"time"
)

// RootCause is a best-effort explanation for why a breaker tripped, built
// from the decision records leading up to the transition.
type RootCause struct {
	Summary         string
	Confidence      float64
	ContributingLog []string
}

// RootCauseAnalyzer inspects the decisions immediately preceding an Open
// transition to suggest what drove it.
type RootCauseAnalyzer struct{}

// NewRootCauseAnalyzer creates a RootCauseAnalyzer.
func NewRootCauseAnalyzer() *RootCauseAnalyzer {
	return &RootCauseAnalyzer{}
}

// Explain looks at up to lookback of history ending at trip (a
// state_transition record whose ToState is Open) and produces a RootCause.
func (rc *RootCauseAnalyzer) Explain(trip *DecisionRecord, history []*DecisionRecord, lookback time.Duration) *RootCause {
	if trip == nil {
		return nil
	}

	cutoff := trip.Timestamp.Add(-lookback)
	var relevant []*DecisionRecord
	for _, r := range history {
		if r.BreakerName == trip.BreakerName && !r.Timestamp.Before(cutoff) && r.Timestamp.Before(trip.Timestamp) {
			relevant = append(relevant, r)
		}
	}

	var log []string
	var lastReplace *DecisionRecord
	anomalySuppressions := 0
	for _, r := range relevant {
		switch {
		case r.DecisionType == DecisionConfigReplace:
			lastReplace = r
			log = append(log, fmt.Sprintf("%s: reconfigured (%s)", r.Timestamp.Format(time.RFC3339), r.Trigger))
		case r.Trigger == "anomaly_suppressed":
			anomalySuppressions++
		}
	}

	switch {
	case anomalySuppressions >= 3:
		return &RootCause{
			Summary:         "repeated anomalous readings suppressed reconfiguration just before the trip; the breaker tripped on stale thresholds against a traffic shape the model hadn't caught up to",
			Confidence:      0.6,
			ContributingLog: log,
		}
	case lastReplace != nil && lastReplace.NewConfig != nil && trip.Timestamp.Sub(lastReplace.Timestamp) < 2*time.Minute:
		return &RootCause{
			Summary:         fmt.Sprintf("trip followed a reconfiguration to failure_rate_threshold=%.3f within %s; the new threshold may have been set too aggressively for the traffic that followed", lastReplace.NewConfig.FailureRateThreshold, trip.Timestamp.Sub(lastReplace.Timestamp).Round(time.Second)),
			Confidence:      0.5,
			ContributingLog: log,
		}
	case len(relevant) == 0:
		return &RootCause{
			Summary:         "no prior reconfiguration or suppressed tick found in the lookback window; the trip most likely reflects a genuine, sudden change in the operation's own failure rate",
			Confidence:      0.4,
			ContributingLog: nil,
		}
	default:
		return &RootCause{
			Summary:         "no single dominant cause identified from the decision trail preceding the trip",
			Confidence:      0.2,
			ContributingLog: log,
		}
	}
}

// String renders a one-line explanation suitable for a log line.
func (rc *RootCause) String() string {
	if rc == nil {
		return ""
	}
	if len(rc.ContributingLog) == 0 {
		return fmt.Sprintf("%s (confidence %.2f)", rc.Summary, rc.Confidence)
	}
	return fmt.Sprintf("%s (confidence %.2f); trail: %s", rc.Summary, rc.Confidence, strings.Join(rc.ContributingLog, " | "))
}
