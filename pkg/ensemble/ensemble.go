package ensemble

import (
	"math"
	"math/rand"
	"sync"
)

// Size is the ensemble member count K (spec.md §3).
const Size = 3

const degenerateErrorThreshold = 1e-4

// hiddenSizes, momentum deltas and L2 deltas implement the diversification
// rule of spec.md §4.3.
var hiddenSizes = [Size]int{4, 6, 8}

const baseMomentum = 0.9
const baseL2 = 1e-3
const baseLearningRate = 0.05

// Ensemble is C4: K online regressors combined by an error-tracking weight
// vector. Not safe for concurrent mutation; owned by a single orchestrator
// (spec.md §5).
type Ensemble struct {
	mu      sync.Mutex
	nets    [Size]*net
	weights [Size]float64
}

// New builds an Ensemble with Xavier-initialized nets and uniform starting
// weights. seed makes initialization reproducible for tests.
func New(seed int64) *Ensemble {
	rng := rand.New(rand.NewSource(seed))

	e := &Ensemble{}
	for i := 0; i < Size; i++ {
		momentum := baseMomentum - 0.1*float64(i)
		l2 := baseL2 + float64(i)*1e-3
		// Learning rate varies +/-20% around the base rate, spread evenly
		// across the ensemble members.
		lrFactor := 1.0 + (float64(i)-float64(Size-1)/2)*(0.4/float64(Size-1))
		e.nets[i] = newNet(hiddenSizes[i], momentum, l2, baseLearningRate*lrFactor, rng)
		e.weights[i] = 1.0 / float64(Size)
	}
	return e
}

// Predict returns the ensemble's weighted-combination scalar in [0,1].
func (e *Ensemble) Predict(f [inputWidth]float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.predictLocked(f)
}

func (e *Ensemble) predictLocked(f [inputWidth]float64) float64 {
	var out float64
	for i, n := range e.nets {
		out += e.weights[i] * n.predict(f)
	}
	return clip01(out)
}

// Learn trains every net on one example and updates the combination
// weights from each net's resulting error.
func (e *Ensemble) Learn(f [inputWidth]float64, y float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.learnLocked(f, y)
}

func (e *Ensemble) learnLocked(f [inputWidth]float64, y float64) {
	var errs [Size]float64
	for i, n := range e.nets {
		pred := n.predict(f)
		errs[i] = math.Abs(pred - y)
		n.learn(f, y)
	}
	e.updateWeightsLocked(errs)
}

// LearnBatch trains every net over a batch of examples in order, updating
// the combination weights after each example exactly as Learn does — the
// batch call spec.md §4.6 makes every 10th tick.
func (e *Ensemble) LearnBatch(feats [][inputWidth]float64, targets []float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range feats {
		e.learnLocked(feats[i], targets[i])
	}
}

// updateWeightsLocked implements wi ∝ (Σ|εj| - |εi|), renormalized to sum
// to 1; a degenerate (near-zero) error vector resets to uniform weights.
func (e *Ensemble) updateWeightsLocked(errs [Size]float64) {
	maxErr := 0.0
	sumErr := 0.0
	for _, err := range errs {
		sumErr += err
		if err > maxErr {
			maxErr = err
		}
	}
	if maxErr <= degenerateErrorThreshold {
		for i := range e.weights {
			e.weights[i] = 1.0 / float64(Size)
		}
		return
	}

	var raw [Size]float64
	total := 0.0
	for i, err := range errs {
		raw[i] = sumErr - err
		if raw[i] < 0 {
			raw[i] = 0
		}
		total += raw[i]
	}
	if total <= 0 {
		for i := range e.weights {
			e.weights[i] = 1.0 / float64(Size)
		}
		return
	}
	for i := range e.weights {
		e.weights[i] = raw[i] / total
	}
}

// Weights returns a copy of the current combination weights.
func (e *Ensemble) Weights() [Size]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.weights
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
