// Package orchestrator implements C10, the public entry point of the
// adaptive breaker: it wraps a caller's operation, drives the online
// learning stack on every call, and gates admission through the breaker
// state machine while degrading safely if any ML component misbehaves
// (spec.md §4.9).
package orchestrator

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adaptivebreaker/breaker/pkg/adaptivecfg"
	"github.com/adaptivebreaker/breaker/pkg/anomaly"
	"github.com/adaptivebreaker/breaker/pkg/audit"
	"github.com/adaptivebreaker/breaker/pkg/breaker"
	"github.com/adaptivebreaker/breaker/pkg/config"
	"github.com/adaptivebreaker/breaker/pkg/ensemble"
	"github.com/adaptivebreaker/breaker/pkg/features"
	"github.com/adaptivebreaker/breaker/pkg/forecast"
	"github.com/adaptivebreaker/breaker/pkg/logx"
	"github.com/adaptivebreaker/breaker/pkg/perfmon"
	"github.com/adaptivebreaker/breaker/pkg/telemetry"
	"github.com/adaptivebreaker/breaker/pkg/threshold"
)

// ErrBreakerOpen is returned by Execute when admission is denied; the
// operation was not invoked (spec.md §7).
var ErrBreakerOpen = breaker.ErrOpen

// reportInterval is the hourly performance-report cadence spec.md §4.10
// asks for.
const reportInterval = time.Hour

// warmStartLookback bounds how much history a metric sink is asked for at
// startup.
const warmStartLookback = 24 * time.Hour

// rootCauseLookback bounds how far back Explain looks for the decisions
// that led up to an Open transition.
const rootCauseLookback = 10 * time.Minute

// slowOperationThreshold is the average Execute duration above which the
// hourly report calls out an operation as slow.
const slowOperationThreshold = 250 * time.Millisecond

// Orchestrator is C10. One instance owns one breaker's full ML stack;
// components C3-C7 are not safe to share across orchestrators (spec.md §5).
type Orchestrator struct {
	name string

	machine atomic.Pointer[breaker.Machine]
	window  *breaker.Window

	mlEnabled  atomic.Bool
	mlConfig   config.Config
	cfgManager *adaptivecfg.Manager

	engineer   *features.Engineer
	ensemble   *ensemble.Ensemble
	forecaster *forecast.Forecaster
	detector   *anomaly.Detector
	predictor  *threshold.Predictor
	perf       *perfmon.Monitor
	telem      *telemetry.Telemetry

	metricSink MetricSink
	modelSink  ModelSink

	decisions *audit.DecisionLogger
	patterns  *audit.PatternAnalyzer
	rootCause *audit.RootCauseAnalyzer

	logger  *logx.Logger
	perfLog *logx.PerformanceLogger

	opCount   int64
	inFlight  int64
	loadFn    func() float64

	reconfigMu   sync.Mutex
	lastReconfig time.Time

	predMu        sync.Mutex
	lastPredicted float64

	stopReport chan struct{}
	reportWG   sync.WaitGroup
}

// Op is the parameterless callable Execute protects (spec.md §6's "Inward
// contract").
type Op[T any] func() (T, error)

// New builds an Orchestrator. metricSink and modelSink may be nil, meaning
// "no persistence" (spec.md §9). logger may be nil, meaning the package
// default.
func New(cfg config.Config, metricSink MetricSink, modelSink ModelSink, logger *logx.Logger) *Orchestrator {
	if logger == nil {
		logger = logx.Default()
	}
	logger = logger.With("breaker", cfg.Name)

	o := &Orchestrator{
		name:       cfg.Name,
		window:     breaker.NewWindow(breaker.DefaultWindowCapacity),
		mlConfig:   cfg,
		metricSink: metricSink,
		modelSink:  modelSink,
		logger:     logger,
		perfLog:    logx.NewPerformanceLogger(logger),
		perf:       perfmon.New(),
		patterns:   audit.NewPatternAnalyzer(),
		rootCause:  audit.NewRootCauseAnalyzer(),
		loadFn:     func() float64 { return 0 },
		stopReport: make(chan struct{}),
	}

	initialCfg := cfg.InitialBreakerConfig()
	if err := initialCfg.Validate(); err != nil {
		logger.Error("invalid initial breaker config, falling back to safe defaults", "error", err)
		initialCfg = breaker.SafeDefaults()
		cfg.MLEnabled = false
		o.mlConfig.MLEnabled = false
	}
	o.machine.Store(breaker.NewMachine(initialCfg))
	o.perf.RecordConfigChange(initialCfg)

	o.mlEnabled.Store(cfg.MLEnabled)
	if cfg.MLEnabled {
		if !o.initML(cfg, initialCfg) {
			logger.Error("ML component initialization failed; running as a classic breaker with safe defaults")
			o.machine.Store(breaker.NewMachine(breaker.SafeDefaults()))
			o.perf.RecordConfigChange(breaker.SafeDefaults())
			o.mlEnabled.Store(false)
			o.mlConfig.MLEnabled = false
		}
	}

	o.reportWG.Add(1)
	go o.reportLoop(reportInterval)

	return o
}

// SetLoadProvider overrides how the per-call system_load reading is
// obtained; the core treats it as an external collaborator (spec.md §1).
func (o *Orchestrator) SetLoadProvider(fn func() float64) {
	if fn != nil {
		o.loadFn = fn
	}
}

// SetDecisionLogger attaches an audit trail: every config replacement and
// admission-phase transition is recorded to it. Passing nil detaches it.
func (o *Orchestrator) SetDecisionLogger(dl *audit.DecisionLogger) {
	o.decisions = dl
}

// SetTelemetry attaches a Prometheus gauge set: C11's accuracy/effectiveness
// reports and the raw per-tick feature vector are pushed to it under this
// orchestrator's name (spec.md §6's "Operational telemetry" table). Passing
// nil detaches it.
func (o *Orchestrator) SetTelemetry(t *telemetry.Telemetry) {
	o.telem = t
	if t != nil {
		o.perf.SetSink(t, o.name)
	} else {
		o.perf.SetSink(nil, o.name)
	}
}

// initML builds C3-C8 and attempts model/metric warm-start. It never lets a
// panic from a misbehaving collaborator escape construction, matching
// spec.md §4.9's failure-safe initialization.
func (o *Orchestrator) initML(cfg config.Config, initialCfg breaker.Config) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic during ML initialization", "panic", r)
			ok = false
		}
	}()

	o.engineer = features.New()
	o.ensemble = ensemble.New(time.Now().UnixNano())
	o.forecaster = forecast.New()
	o.detector = anomaly.New()
	o.predictor = threshold.New(o.engineer, o.ensemble, o.forecaster, cfg.MLTrainingInterval)
	o.cfgManager = adaptivecfg.New(initialCfg, cfg.MLSignificantChange)

	if o.modelSink != nil {
		if blob, err := o.modelSink.Load(cfg.Name); err != nil {
			o.logger.Warn("model sink load failed", "error", err)
		} else if blob != nil {
			if err := o.ensemble.Unmarshal(blob); err != nil {
				o.logger.Warn("failed to decode persisted ensemble; starting cold", "error", err)
			}
		}
	}

	if o.metricSink != nil {
		if history, err := o.metricSink.LoadHistorical(cfg.Name, warmStartLookback); err != nil {
			o.logger.Warn("metric sink warm-start load failed", "error", err)
		} else {
			for _, snap := range history {
				if snap != nil {
					o.engineer.Extract(snap)
				}
			}
		}
	}

	return true
}

// Execute runs op under protection, returning its value, its error, or
// ErrBreakerOpen (spec.md §4.9's per-call algorithm). It is a free function,
// not a method, because Go methods cannot carry their own type parameters.
func Execute[T any](o *Orchestrator, op Op[T]) (T, error) {
	var zero T
	if op == nil {
		return zero, errNilOp
	}

	pc := o.perfLog.StartOperation("execute")
	snapshot := o.safeSnapshot()

	n := atomic.AddInt64(&o.opCount, 1)
	if n%1000 == 0 {
		o.logger.Info("throughput", "operations", n)
	}

	if o.mlEnabled.Load() {
		o.runMLTickSafely(snapshot)
	}

	machine := o.machine.Load()
	beforeState := machine.State()
	admitErr := machine.Admit(time.Now())
	o.recordTransitionIfChanged(beforeState, machine.State(), "half_open_deadline_reached")
	if admitErr != nil {
		pc.Complete(admitErr)
		return zero, admitErr
	}

	atomic.AddInt64(&o.inFlight, 1)
	start := time.Now()
	value, opErr := op()
	latency := time.Since(start)
	inFlightNow := atomic.AddInt64(&o.inFlight, -1) + 1

	success := opErr == nil
	o.window.Record(breaker.NewRecord(latency, success, int(inFlightNow), o.loadFn()))
	beforeOutcomeState := machine.State()
	machine.RecordOutcome(success, time.Now())
	o.recordTransitionIfChanged(beforeOutcomeState, machine.State(), "outcome_evaluated")

	predicted := o.currentPrediction()
	actual := 0.0
	if success {
		actual = 1.0
	}
	o.perf.RecordPrediction(predicted, actual)

	pc.Complete(opErr)
	return value, opErr
}

// safeSnapshot substitutes an empty snapshot if reading the window panics
// (spec.md §4.9 step 1, §7's "Metric-snapshot computation errors").
func (o *Orchestrator) safeSnapshot() (snapshot *breaker.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Warn("metric snapshot computation failed; substituting empty snapshot", "panic", r)
			snapshot = breaker.EmptySnapshot()
		}
	}()
	return o.window.Snapshot()
}

// runMLTickSafely runs one pass through the ML update block. Every internal
// error is contained here: it is logged and the tick is otherwise
// abandoned, leaving the previous breaker config in place (spec.md §7).
func (o *Orchestrator) runMLTickSafely(snapshot *breaker.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("ML tick failed; leaving previous config in place", "panic", r)
		}
	}()

	if o.metricSink != nil {
		if err := o.metricSink.Store(snapshot, o.name); err != nil {
			o.logger.Warn("metric sink store failed", "error", err)
		}
	}

	feats := o.engineer.Extract(snapshot)
	if o.telem != nil {
		o.telem.ObserveFeatures(o.name, feats)
	}

	forecastTS := o.forecaster.Forecast()
	forecastEns := o.ensemble.Predict(feats)
	anomScore := o.detector.Score(feats)
	anom := o.detector.IsAnomalous(anomScore)

	result := o.predictor.Tick(snapshot, feats, forecastEns, forecastTS, anomScore)
	o.setCurrentPrediction(result.LastPrediction)

	o.logger.Debug("ml tick",
		"anomaly_score", anomScore,
		"anomaly", anom,
		"composite", result.LastPrediction,
		"window_size", result.WindowSize,
		"failure_rate", result.FailureRateThreshold,
		"open_wait_ms", result.OpenWaitMs,
	)

	// Scenario S4: an anomalous tick still lets C4/C5 learn from it; only
	// the reconfiguration attempt is suppressed, so a single unfamiliar
	// observation can't immediately rewrite the live breaker config.
	if !anom {
		o.replaceConfigIfNeeded(result)
	} else if o.decisions != nil {
		o.decisions.Record(&audit.DecisionRecord{
			Timestamp:    time.Now(),
			BreakerName:  o.name,
			DecisionType: audit.DecisionConfigReplace,
			Trigger:      "anomaly_suppressed",
			FromState:    o.State(),
			ToState:      o.State(),
			Confidence:   result.LastPrediction,
			Reasoning:    "reconfiguration attempt suppressed: current tick scored above the anomaly threshold",
		})
	}
}

// replaceConfigIfNeeded implements C8's significance gate and the 60s
// (configurable) reconfiguration rate limit (spec.md §4.7, §4.8).
func (o *Orchestrator) replaceConfigIfNeeded(result threshold.Result) {
	o.reconfigMu.Lock()
	defer o.reconfigMu.Unlock()

	minInterval := o.mlConfig.ReconfigMinInterval()
	if !o.lastReconfig.IsZero() && time.Since(o.lastReconfig) < minInterval {
		if o.decisions != nil {
			o.decisions.Record(&audit.DecisionRecord{
				Timestamp:    time.Now(),
				BreakerName:  o.name,
				DecisionType: audit.DecisionConfigReplace,
				Trigger:      "rate_limited",
				FromState:    o.State(),
				ToState:      o.State(),
				Confidence:   result.LastPrediction,
				Reasoning:    fmt.Sprintf("reconfiguration attempt within %s of the last replacement", minInterval),
			})
		}
		return
	}

	current := o.machine.Load()
	oldCfg := current.Config()
	newCfg := o.cfgManager.UpdatedConfig(result)

	if !o.cfgManager.IsSignificant(newCfg, oldCfg) {
		return
	}

	o.machine.Store(current.Replace(newCfg))
	o.lastReconfig = time.Now()
	o.perf.RecordConfigChange(newCfg)
	o.logger.Info("breaker config replaced",
		"window_size", newCfg.WindowSize,
		"failure_rate_threshold", newCfg.FailureRateThreshold,
		"open_state_wait", newCfg.OpenStateWait.String(),
	)
	if o.decisions != nil {
		o.decisions.Record(&audit.DecisionRecord{
			Timestamp:    time.Now(),
			BreakerName:  o.name,
			DecisionType: audit.DecisionConfigReplace,
			Trigger:      "significant_change",
			FromState:    o.State(),
			ToState:      o.State(),
			OldConfig:    &oldCfg,
			NewConfig:    &newCfg,
			Confidence:   result.LastPrediction,
			Reasoning:    "predicted composite health crossed the significance threshold against the live config",
		})
	}

	if o.modelSink != nil {
		if blob, err := o.ensemble.Marshal(); err != nil {
			o.logger.Warn("ensemble serialization failed", "error", err)
		} else if err := o.modelSink.Save(blob, o.name); err != nil {
			o.logger.Warn("model sink save failed", "error", err)
		}
	}
}

// recordTransitionIfChanged appends a state_transition record when from and
// to differ; a no-op when audit is not attached. A transition into Open
// additionally triggers a best-effort root-cause log line, since that's the
// moment an operator most wants an explanation.
func (o *Orchestrator) recordTransitionIfChanged(from, to breaker.State, trigger string) {
	if o.decisions == nil || from == to {
		return
	}
	rec := &audit.DecisionRecord{
		Timestamp:    time.Now(),
		BreakerName:  o.name,
		DecisionType: audit.DecisionStateTransition,
		Trigger:      trigger,
		FromState:    from,
		ToState:      to,
		Confidence:   o.currentPrediction(),
	}
	o.decisions.Record(rec)

	if to == breaker.Open {
		cause := o.rootCause.Explain(rec, o.decisions.Records(), rootCauseLookback)
		o.logger.Warn("breaker tripped", "root_cause", cause.String())
	}
}

// Patterns runs the audit package's decision-trail pattern analysis over the attached
// audit log's history within window, most confident first. Returns nil if
// no DecisionLogger is attached.
func (o *Orchestrator) Patterns(window time.Duration) []*audit.Pattern {
	if o.decisions == nil {
		return nil
	}
	return o.patterns.Analyze(o.decisions.Records(), window)
}

func (o *Orchestrator) currentPrediction() float64 {
	o.predMu.Lock()
	defer o.predMu.Unlock()
	return o.lastPredicted
}

func (o *Orchestrator) setCurrentPrediction(v float64) {
	o.predMu.Lock()
	defer o.predMu.Unlock()
	o.lastPredicted = v
}

// reportLoop emits an hourly human-readable performance summary until
// Shutdown is called (spec.md §9's "single goroutine/task owned by the
// orchestrator").
func (o *Orchestrator) reportLoop(interval time.Duration) {
	defer o.reportWG.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.logger.Info("performance report", "summary", o.perf.Snapshot().String())
			o.perfLog.LogSlowOperations(slowOperationThreshold)
		case <-o.stopReport:
			return
		}
	}
}

// Shutdown stops the periodic report loop and drains the metric sink, if
// any (spec.md §3's "Lifecycle").
func (o *Orchestrator) Shutdown() error {
	close(o.stopReport)
	o.reportWG.Wait()

	if o.decisions != nil {
		if err := o.decisions.Close(); err != nil {
			o.logger.Warn("decision logger close failed", "error", err)
		}
	}

	if o.metricSink != nil {
		if err := o.metricSink.Shutdown(); err != nil {
			return err
		}
	}
	return nil
}

// State returns the breaker's current admission phase.
func (o *Orchestrator) State() breaker.State {
	return o.machine.Load().State()
}

// Config returns the breaker's current live config.
func (o *Orchestrator) Config() breaker.Config {
	return o.machine.Load().Config()
}

// PerformanceReport returns the current C11 accuracy/effectiveness summary.
func (o *Orchestrator) PerformanceReport() perfmon.Report {
	return o.perf.Snapshot()
}

// DecisionHistory returns the attached audit trail's in-memory records, or
// nil if no DecisionLogger is attached.
func (o *Orchestrator) DecisionHistory() []*audit.DecisionRecord {
	return o.decisions.Records()
}

// MLEnabled reports whether ML-driven updates and reconfiguration are
// currently active.
func (o *Orchestrator) MLEnabled() bool {
	return o.mlEnabled.Load()
}

// SetMLEnabled toggles ML-driven updates and reconfiguration at runtime
// (breaker.ml.enabled, spec.md §6).
func (o *Orchestrator) SetMLEnabled(enabled bool) {
	if enabled && o.engineer == nil {
		o.logger.Warn("cannot enable ML: components were never initialized")
		return
	}
	o.mlEnabled.Store(enabled)
}

var errNilOp = errors.New("orchestrator: op must not be nil")
