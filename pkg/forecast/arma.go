// Package forecast implements C5: an ARMA-like online forecaster over the
// health signal, giving the threshold predictor a temporal prior
// independent of the ensemble's feature-driven prediction (spec.md §4.4).
package forecast

import "sync"

const arOrder = 5
const maOrder = 3
const learningRate = 0.01
const renormalizeEvery = 50

const maxARSum = 0.95
const maxMASum = 0.5

// Forecaster holds ARMA state: ŷₜ = Σaᵢ·yₜ₋ᵢ + Σbⱼ·εₜ₋ⱼ, clipped to [0,1].
// Coefficients are updated online by single-step gradient descent and
// periodically renormalized so the model can't run away. Not safe for
// concurrent mutation; owned by a single orchestrator (spec.md §5).
type Forecaster struct {
	mu sync.Mutex

	ar []float64 // length arOrder
	ma []float64 // length maOrder

	pastValues    []float64 // most recent last, length <= arOrder
	pastResiduals []float64 // most recent last, length <= maOrder

	lastForecast float64
	updates      int
}

// New creates a Forecaster with zeroed coefficients and empty history.
func New() *Forecaster {
	return &Forecaster{
		ar: make([]float64, arOrder),
		ma: make([]float64, maOrder),
	}
}

// Forecast returns the current ŷₜ without consuming any new observation.
// Called with an empty history it returns 0.5, the neutral prior.
func (f *Forecaster) Forecast() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forecastLocked()
}

func (f *Forecaster) forecastLocked() float64 {
	if len(f.pastValues) == 0 {
		return 0.5
	}
	var y float64
	for i, a := range f.ar {
		if i < len(f.pastValues) {
			y += a * lagged(f.pastValues, i)
		}
	}
	for j, b := range f.ma {
		if j < len(f.pastResiduals) {
			y += b * lagged(f.pastResiduals, j)
		}
	}
	return clip01(y)
}

// lagged returns the i-lags-back value from a "most recent last" slice
// (lag 0 is the most recent entry).
func lagged(series []float64, lag int) float64 {
	idx := len(series) - 1 - lag
	if idx < 0 {
		return 0
	}
	return series[idx]
}

// Update consumes one new observed target value: it computes a forecast
// from the current state, takes a gradient step on the AR/MA coefficients
// against the observed value, then advances the history.
func (f *Forecaster) Update(actual float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	forecastVal := f.forecastLocked()
	f.lastForecast = forecastVal
	residual := actual - forecastVal

	// Gradient of squared error (forecast-actual)^2 w.r.t. each coefficient
	// is 2*residual_sign*lagged_value; a single small step nudges the
	// coefficients toward reducing the next residual.
	for i := range f.ar {
		if i < len(f.pastValues) {
			f.ar[i] += learningRate * residual * lagged(f.pastValues, i)
		}
	}
	for j := range f.ma {
		if j < len(f.pastResiduals) {
			f.ma[j] += learningRate * residual * lagged(f.pastResiduals, j)
		}
	}

	f.pushValue(actual)
	f.pushResidual(residual)

	f.updates++
	if f.updates%renormalizeEvery == 0 {
		f.renormalizeLocked()
	}
}

func (f *Forecaster) pushValue(v float64) {
	f.pastValues = append(f.pastValues, v)
	if len(f.pastValues) > arOrder {
		f.pastValues = f.pastValues[1:]
	}
}

func (f *Forecaster) pushResidual(v float64) {
	f.pastResiduals = append(f.pastResiduals, v)
	if len(f.pastResiduals) > maOrder {
		f.pastResiduals = f.pastResiduals[1:]
	}
}

// renormalizeLocked rescales AR/MA coefficients when their absolute sums
// exceed the stability bounds spec.md §4.4 names.
func (f *Forecaster) renormalizeLocked() {
	rescale(f.ar, maxARSum)
	rescale(f.ma, maxMASum)
}

func rescale(coeffs []float64, maxSum float64) {
	sum := 0.0
	for _, c := range coeffs {
		sum += absf(c)
	}
	if sum <= maxSum || sum == 0 {
		return
	}
	factor := maxSum / sum
	for i := range coeffs {
		coeffs[i] *= factor
	}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
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

// LastForecast returns the forecast value computed by the most recent
// Update call (0 if Update has never been called).
func (f *Forecaster) LastForecast() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastForecast
}
