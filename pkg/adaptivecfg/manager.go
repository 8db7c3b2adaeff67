// Package adaptivecfg implements C8: it turns a threshold-predictor result
// into a candidate BreakerConfig and decides whether the change is large
// enough to justify swapping the breaker's live config (spec.md §4.7).
package adaptivecfg

import (
	"math"
	"time"

	"github.com/adaptivebreaker/breaker/pkg/breaker"
	"github.com/adaptivebreaker/breaker/pkg/threshold"
)

// significantChangeFraction is the default per-knob relative-change
// threshold (breaker.ml.significant_change, spec.md §6).
const significantChangeFraction = 0.10

// significantWaitAbsolute is the absolute open_state_wait change that is
// significant on its own, regardless of relative change (spec.md §4.7).
const significantWaitAbsolute = 1000 // ms

// epsilon guards the relative-change denominator against a zero "old" knob.
const epsilon = 1e-9

// Manager is C8. It is stateless beyond its significance threshold; the
// fixed operational constants it packages into new configs come from a
// template Config supplied at construction (spec.md §3's "plus fixed
// operational constants").
type Manager struct {
	template              breaker.Config
	significantChangeFrac float64
}

// New builds a Manager. template supplies the fixed operational constants
// (min-calls, half-open-calls, slow-call settings) that accompany every
// built config; significantChangeFrac <= 0 falls back to the spec default.
func New(template breaker.Config, significantChangeFrac float64) *Manager {
	if significantChangeFrac <= 0 {
		significantChangeFrac = significantChangeFraction
	}
	return &Manager{template: template, significantChangeFrac: significantChangeFrac}
}

// UpdatedConfig packages a threshold-predictor result plus the manager's
// fixed operational constants into a candidate BreakerConfig.
func (m *Manager) UpdatedConfig(result threshold.Result) breaker.Config {
	cfg := m.template
	cfg.WindowSize = result.WindowSize
	cfg.FailureRateThreshold = result.FailureRateThreshold
	cfg.OpenStateWait = time.Duration(result.OpenWaitMs) * time.Millisecond
	return cfg.Clamp()
}

// IsSignificant reports whether newCfg differs enough from oldCfg to
// justify a reconfiguration: any knob's relative change exceeds
// significantChangeFrac, or open_state_wait's absolute change exceeds 1s.
func (m *Manager) IsSignificant(newCfg, oldCfg breaker.Config) bool {
	if relativeChange(float64(newCfg.WindowSize), float64(oldCfg.WindowSize)) > m.significantChangeFrac {
		return true
	}
	if relativeChange(newCfg.FailureRateThreshold, oldCfg.FailureRateThreshold) > m.significantChangeFrac {
		return true
	}
	newWaitMs := float64(newCfg.OpenStateWait.Milliseconds())
	oldWaitMs := float64(oldCfg.OpenStateWait.Milliseconds())
	if relativeChange(newWaitMs, oldWaitMs) > m.significantChangeFrac {
		return true
	}
	if math.Abs(newWaitMs-oldWaitMs) > significantWaitAbsolute {
		return true
	}
	return false
}

func relativeChange(newVal, oldVal float64) float64 {
	denom := math.Max(math.Abs(oldVal), epsilon)
	return math.Abs(newVal-oldVal) / denom
}
