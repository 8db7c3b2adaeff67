// Package audit keeps a durable trail of the reconfiguration and
// state-transition decisions the orchestrator makes, adapted from the
// teacher's failover decision log (pkg/audit/decision_logger.go) to the
// breaker's own event set: config replacements (C8) and admission-phase
// transitions (C9).
package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/adaptivebreaker/breaker/pkg/breaker"
	"github.com/adaptivebreaker/breaker/pkg/logx"
)

// DecisionType distinguishes the two kinds of event the orchestrator emits.
type DecisionType string

const (
	DecisionConfigReplace   DecisionType = "config_replace"
	DecisionStateTransition DecisionType = "state_transition"
)

// DecisionRecord is one audited event.
type DecisionRecord struct {
	Timestamp    time.Time              `json:"timestamp"`
	BreakerName  string                 `json:"breaker_name"`
	DecisionType DecisionType           `json:"decision_type"`
	Trigger      string                 `json:"trigger"` // significant_change, rate_limited, anomaly_suppressed, half_open_resolved, ...
	FromState    breaker.State          `json:"from_state"`
	ToState      breaker.State          `json:"to_state"`
	OldConfig    *breaker.Config        `json:"old_config,omitempty"`
	NewConfig    *breaker.Config        `json:"new_config,omitempty"`
	Confidence   float64                `json:"confidence"` // the composite prediction that drove this decision, if any
	Reasoning    string                 `json:"reasoning"`
	Context      map[string]interface{} `json:"context,omitempty"`
}

// DecisionLogger accumulates a bounded in-memory ring of records and,
// best-effort, appends them to JSON-lines and CSV files on disk.
type DecisionLogger struct {
	logger     *logx.Logger
	mu         sync.RWMutex
	records    []*DecisionRecord
	maxRecords int
	jsonFile   *os.File
	csvWriter  *csv.Writer
	csvFile    *os.File
	enabled    bool
}

// NewDecisionLogger creates a logger that keeps at most maxRecords records
// in memory and, if logDir is non-empty, mirrors them to
// <logDir>/decisions.jsonl and <logDir>/decisions.csv.
func NewDecisionLogger(logger *logx.Logger, maxRecords int, logDir string) *DecisionLogger {
	if maxRecords <= 0 {
		maxRecords = 1000
	}

	dl := &DecisionLogger{
		logger:     logger,
		maxRecords: maxRecords,
		enabled:    true,
	}

	if logDir == "" {
		return dl
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		logger.Error("failed to create audit log directory", "error", err, "path", logDir)
		return dl
	}

	if f, err := os.OpenFile(filepath.Join(logDir, "decisions.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err != nil {
		logger.Error("failed to open decision json log", "error", err)
	} else {
		dl.jsonFile = f
	}

	if f, err := os.OpenFile(filepath.Join(logDir, "decisions.csv"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err != nil {
		logger.Error("failed to open decision csv log", "error", err)
	} else {
		dl.csvFile = f
		dl.csvWriter = csv.NewWriter(f)
		if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
			_ = dl.csvWriter.Write([]string{"timestamp", "breaker", "type", "trigger", "from_state", "to_state", "confidence", "reasoning"})
			dl.csvWriter.Flush()
		}
	}

	return dl
}

// Record appends rec to the in-memory ring and, best-effort, to disk.
func (dl *DecisionLogger) Record(rec *DecisionRecord) {
	if dl == nil || !dl.enabled || rec == nil {
		return
	}

	dl.mu.Lock()
	dl.records = append(dl.records, rec)
	if len(dl.records) > dl.maxRecords {
		dl.records = dl.records[len(dl.records)-dl.maxRecords:]
	}
	dl.mu.Unlock()

	if dl.jsonFile != nil {
		if blob, err := json.Marshal(rec); err == nil {
			if _, err := dl.jsonFile.Write(append(blob, '\n')); err != nil {
				dl.logger.Warn("decision json log write failed", "error", err)
			}
		}
	}
	if dl.csvWriter != nil {
		row := []string{
			rec.Timestamp.Format(time.RFC3339Nano),
			rec.BreakerName,
			string(rec.DecisionType),
			rec.Trigger,
			rec.FromState.String(),
			rec.ToState.String(),
			strconv.FormatFloat(rec.Confidence, 'f', 4, 64),
			rec.Reasoning,
		}
		if err := dl.csvWriter.Write(row); err != nil {
			dl.logger.Warn("decision csv log write failed", "error", err)
		} else {
			dl.csvWriter.Flush()
		}
	}
}

// Records returns a snapshot of the records currently held in memory,
// oldest first.
func (dl *DecisionLogger) Records() []*DecisionRecord {
	if dl == nil {
		return nil
	}
	dl.mu.RLock()
	defer dl.mu.RUnlock()
	out := make([]*DecisionRecord, len(dl.records))
	copy(out, dl.records)
	return out
}

// Close flushes and closes any open log files.
func (dl *DecisionLogger) Close() error {
	if dl == nil {
		return nil
	}
	dl.mu.Lock()
	defer dl.mu.Unlock()

	var firstErr error
	if dl.csvWriter != nil {
		dl.csvWriter.Flush()
	}
	if dl.csvFile != nil {
		if err := dl.csvFile.Close(); err != nil {
			firstErr = err
		}
	}
	if dl.jsonFile != nil {
		if err := dl.jsonFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return fmt.Errorf("audit: close: %w", firstErr)
	}
	return nil
}
