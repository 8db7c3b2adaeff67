// Package threshold implements C7: it combines the ensemble's prediction,
// the ARMA forecast and the anomaly score into a single composite health
// score, derives the three breaker knobs from it, and drives the online
// learning updates for C4/C5 (spec.md §4.6).
package threshold

import (
	"math"
	"sync"

	"github.com/adaptivebreaker/breaker/pkg/breaker"
	"github.com/adaptivebreaker/breaker/pkg/ensemble"
	"github.com/adaptivebreaker/breaker/pkg/features"
	"github.com/adaptivebreaker/breaker/pkg/forecast"
)

// DefaultTrainingInterval is the batch-learn frequency in ticks
// (breaker.ml.training_interval, spec.md §6).
const DefaultTrainingInterval = 10

// anomalyDamp is the anom value above which ensemble_weight starts shrinking
// in favor of the AR/MA prior (spec.md §4.6 step 2).
const anomalyDamp = 0.8

// Result is one tick's output: the three breaker knobs plus the composite
// score that produced them.
type Result struct {
	WindowSize           int
	FailureRateThreshold float64
	OpenWaitMs           int
	LastPrediction       float64
}

// Predictor is C7. It owns the collaborators it must call learn/update on
// (C3's training memory, C4, C5); the anomaly score and feature vector for
// the tick are supplied by the caller, since the orchestrator needs the
// same anomaly reading independently to gate reconfiguration (spec.md
// §4.9 step 3, scenario S4). Not safe for concurrent mutation; owned by a
// single orchestrator (spec.md §5).
type Predictor struct {
	mu sync.Mutex

	engineer   *features.Engineer
	ensemble   *ensemble.Ensemble
	forecaster *forecast.Forecaster

	trainingInterval int
	tickCount        int
}

// New builds a Predictor over the given collaborators. trainingInterval <=
// 0 falls back to DefaultTrainingInterval.
func New(engineer *features.Engineer, ens *ensemble.Ensemble, forecaster *forecast.Forecaster, trainingInterval int) *Predictor {
	if trainingInterval <= 0 {
		trainingInterval = DefaultTrainingInterval
	}
	return &Predictor{
		engineer:         engineer,
		ensemble:         ens,
		forecaster:       forecaster,
		trainingInterval: trainingInterval,
	}
}

// Tick runs the full per-tick algorithm of spec.md §4.6 steps 2-7: it
// combines forecastEns/forecastTS/anom into a composite, derives knobs,
// records a training example, and drives C4/C5's online learning. Callers
// are expected to have already computed features/forecastEns/forecastTS/anom
// once this tick (spec.md §4.6 step 1) and to pass the same values here.
func (p *Predictor) Tick(snapshot *breaker.Snapshot, feats [features.Width]float64, forecastEns, forecastTS, anom float64) Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.tickCount++

	ensembleWeight := math.Min(0.8, 0.4+0.4*math.Min(1, float64(p.tickCount)/100))
	if anom > anomalyDamp {
		ensembleWeight *= 1 - (anom-anomalyDamp)*0.5
	}

	composite := ensembleWeight*forecastEns + (1-ensembleWeight)*forecastTS

	errorTrend := feats[features.IdxErrorTrend]
	latencyTrend := feats[features.IdxLatencyTrend]
	if errorTrend > 0.3 {
		composite *= 1 - (errorTrend-0.3)*0.5
	}
	if latencyTrend > 0.3 {
		composite *= 1 - (latencyTrend-0.3)*0.3
	}
	composite = clip01(composite)

	windowSize := int(math.Round(float64(breaker.MinWindowSize) + (1-composite)*float64(breaker.MaxWindowSize-breaker.MinWindowSize)))
	failureRate := breaker.MinFailureRateThreshold + composite*(breaker.MaxFailureRateThreshold-breaker.MinFailureRateThreshold)
	openWaitMs := int(math.Round(float64(breaker.MinOpenStateWait.Milliseconds()) + (1-composite)*float64((breaker.MaxOpenStateWait - breaker.MinOpenStateWait).Milliseconds())))

	target := p.learningTarget(snapshot, feats)

	p.engineer.RecordTrainingExample(feats, target)
	p.forecaster.Update(target)

	if p.tickCount%p.trainingInterval == 0 {
		if p.engineer.TrainingSize() >= p.trainingInterval {
			batchFeats, batchTargets := p.engineer.RecentBatch(p.trainingInterval)
			p.ensemble.LearnBatch(batchFeats, batchTargets)
		} else {
			p.ensemble.Learn(feats, target)
		}
	}

	return Result{
		WindowSize:           windowSize,
		FailureRateThreshold: failureRate,
		OpenWaitMs:           openWaitMs,
		LastPrediction:       composite,
	}
}

// learningTarget implements spec.md §4.6 step 6.
func (p *Predictor) learningTarget(snapshot *breaker.Snapshot, feats [features.Width]float64) float64 {
	successRate := snapshot.SuccessRate()
	p95Ms := float64(snapshot.P95Latency().Milliseconds())
	latencyScore := math.Max(0, 1-p95Ms/2000)
	stability := feats[features.IdxStabilityScore]
	return 0.6*successRate + 0.3*latencyScore + 0.1*stability
}

// TickCount returns the number of ticks processed so far.
func (p *Predictor) TickCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tickCount
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
