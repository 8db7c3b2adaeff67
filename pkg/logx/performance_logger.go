package logx

import (
	"fmt"
	"sync"
	"time"
)

// PerformanceLogger tracks count/duration/error statistics per named
// operation. The orchestrator uses one instance to track execute() latency;
// the per-tick ML update is not timed separately.
type PerformanceLogger struct {
	logger       *Logger
	metrics      map[string]*PerformanceMetric
	metricsMutex sync.RWMutex
}

// PerformanceMetric aggregates timing data for one operation name.
type PerformanceMetric struct {
	Name          string
	Count         int64
	TotalDuration time.Duration
	MinDuration   time.Duration
	MaxDuration   time.Duration
	AvgDuration   time.Duration
	LastExecuted  time.Time
	ErrorCount    int64
	SuccessRate   float64
	ConcurrentOps int64
	MaxConcurrent int64
}

// PerformanceContext tracks a single in-flight operation.
type PerformanceContext struct {
	metricName string
	startTime  time.Time
	logger     *PerformanceLogger
}

// NewPerformanceLogger creates a PerformanceLogger.
func NewPerformanceLogger(logger *Logger) *PerformanceLogger {
	return &PerformanceLogger{
		logger:  logger,
		metrics: make(map[string]*PerformanceMetric),
	}
}

// StartOperation begins timing an operation named metricName.
func (pl *PerformanceLogger) StartOperation(metricName string) *PerformanceContext {
	pl.metricsMutex.Lock()
	defer pl.metricsMutex.Unlock()

	metric, exists := pl.metrics[metricName]
	if !exists {
		metric = &PerformanceMetric{Name: metricName, MinDuration: time.Hour}
		pl.metrics[metricName] = metric
	}
	metric.ConcurrentOps++
	if metric.ConcurrentOps > metric.MaxConcurrent {
		metric.MaxConcurrent = metric.ConcurrentOps
	}

	return &PerformanceContext{metricName: metricName, startTime: time.Now(), logger: pl}
}

// Complete records the outcome of the operation started by StartOperation.
func (pc *PerformanceContext) Complete(err error) time.Duration {
	duration := time.Since(pc.startTime)

	pc.logger.metricsMutex.Lock()
	defer pc.logger.metricsMutex.Unlock()

	metric := pc.logger.metrics[pc.metricName]
	metric.Count++
	metric.TotalDuration += duration
	metric.LastExecuted = time.Now()
	metric.ConcurrentOps--

	if duration < metric.MinDuration {
		metric.MinDuration = duration
	}
	if duration > metric.MaxDuration {
		metric.MaxDuration = duration
	}
	metric.AvgDuration = metric.TotalDuration / time.Duration(metric.Count)

	if err != nil {
		metric.ErrorCount++
	}
	metric.SuccessRate = float64(metric.Count-metric.ErrorCount) / float64(metric.Count) * 100

	if metric.Count%1000 == 0 {
		pc.logger.logger.Info("throughput",
			"metric", pc.metricName,
			"total_operations", metric.Count,
			"avg_duration", metric.AvgDuration.String(),
			"success_rate", fmt.Sprintf("%.2f%%", metric.SuccessRate),
		)
	}

	return duration
}

// GetMetric returns a copy of the metric for name, or nil if unseen.
func (pl *PerformanceLogger) GetMetric(name string) *PerformanceMetric {
	pl.metricsMutex.RLock()
	defer pl.metricsMutex.RUnlock()

	metric, exists := pl.metrics[name]
	if !exists {
		return nil
	}
	cp := *metric
	return &cp
}

// LogSlowOperations warns about operations whose average duration exceeds
// threshold.
func (pl *PerformanceLogger) LogSlowOperations(threshold time.Duration) {
	pl.metricsMutex.RLock()
	defer pl.metricsMutex.RUnlock()

	for name, metric := range pl.metrics {
		if metric.AvgDuration > threshold {
			pl.logger.Warn("slow operation detected",
				"metric", name,
				"avg_duration", metric.AvgDuration.String(),
				"threshold", threshold.String(),
				"total_operations", metric.Count,
			)
		}
	}
}
