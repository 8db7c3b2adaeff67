// Package telemetry exposes the operational gauges spec.md §6 names as
// Prometheus metrics, labeled by breaker name so multiple breaker
// instances can share one registry.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adaptivebreaker/breaker/pkg/breaker"
	"github.com/adaptivebreaker/breaker/pkg/features"
	"github.com/adaptivebreaker/breaker/pkg/perfmon"
)

// Telemetry owns the gauge set spec.md §6's "Operational telemetry" table
// lists. Prometheus metric names can't contain dots, so each entry there
// (e.g. "ml.prediction.accuracy.percent") maps to an underscored name here
// (ml_prediction_accuracy_percent); the mapping is 1:1 and lossless.
type Telemetry struct {
	registry *prometheus.Registry

	predictionAccuracy  *prometheus.GaugeVec
	predictionErrorAvg  *prometheus.GaugeVec
	predictionErrorLast *prometheus.GaugeVec
	predictionActual    *prometheus.GaugeVec
	predictionForecast  *prometheus.GaugeVec

	featureLatency     *prometheus.GaugeVec
	featureErrorRate   *prometheus.GaugeVec
	featureConcurrency *prometheus.GaugeVec
	featureSystemLoad  *prometheus.GaugeVec

	configWindowSize    *prometheus.GaugeVec
	configThreshold     *prometheus.GaugeVec
	configWaitDuration  *prometheus.GaugeVec
	configEffectiveness *prometheus.GaugeVec
}

// New builds a Telemetry set registered on a fresh Registry.
func New() *Telemetry {
	reg := prometheus.NewRegistry()
	gauge := func(name, help string) *prometheus.GaugeVec {
		return promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: name,
			Help: help,
		}, []string{"breaker"})
	}

	return &Telemetry{
		registry:            reg,
		predictionAccuracy:  gauge("ml_prediction_accuracy_percent", "Fraction of predictions within the accuracy threshold, as a percentage."),
		predictionErrorAvg:  gauge("ml_prediction_error_avg", "Running average of |actual-predicted|."),
		predictionErrorLast: gauge("ml_prediction_error_last", "Most recent |actual-predicted|."),
		predictionActual:    gauge("ml_prediction_actual", "Most recent observed outcome fed to the accuracy tracker."),
		predictionForecast:  gauge("ml_prediction_forecast", "Most recent composite prediction."),
		featureLatency:      gauge("ml_feature_latency", "Latest normalized latency feature."),
		featureErrorRate:    gauge("ml_feature_error_rate", "Latest error rate feature."),
		featureConcurrency:  gauge("ml_feature_concurrency", "Latest normalized concurrency feature."),
		featureSystemLoad:   gauge("ml_feature_system_load", "Latest normalized system load feature."),
		configWindowSize:    gauge("ml_config_window_size", "Current breaker sliding-window size."),
		configThreshold:     gauge("ml_config_threshold", "Current breaker failure-rate threshold."),
		configWaitDuration:  gauge("ml_config_wait_duration", "Current breaker open-state wait, in milliseconds."),
		configEffectiveness: gauge("ml_config_effectiveness", "Post-change minus pre-change mean absolute prediction error of the latest reconfiguration."),
	}
}

// Registry exposes the underlying Prometheus registry, e.g. for tests that
// want to scrape a specific gauge's value directly.
func (t *Telemetry) Registry() *prometheus.Registry { return t.registry }

// Handler returns an http.Handler exposing the registry in the standard
// Prometheus exposition format.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// ObservePrediction updates the C11-derived prediction gauges for name. It
// also refreshes ml_config_effectiveness, since Report.Effectiveness only
// becomes meaningful once post-change predictions accumulate, which happens
// here rather than at the moment a config is applied.
func (t *Telemetry) ObservePrediction(name string, report perfmon.Report) {
	t.predictionAccuracy.WithLabelValues(name).Set(report.AccuracyPercent)
	t.predictionErrorAvg.WithLabelValues(name).Set(report.AverageError)
	t.predictionErrorLast.WithLabelValues(name).Set(report.LastError)
	t.predictionActual.WithLabelValues(name).Set(report.LastActual)
	t.predictionForecast.WithLabelValues(name).Set(report.LastPredicted)
	t.configEffectiveness.WithLabelValues(name).Set(report.Effectiveness)
}

// ObserveFeatures updates the raw per-tick feature gauges for name.
func (t *Telemetry) ObserveFeatures(name string, feats [features.Width]float64) {
	t.featureLatency.WithLabelValues(name).Set(feats[features.IdxLatencyNorm])
	t.featureErrorRate.WithLabelValues(name).Set(feats[features.IdxErrorRate])
	t.featureConcurrency.WithLabelValues(name).Set(feats[features.IdxConcurrencyNorm])
	t.featureSystemLoad.WithLabelValues(name).Set(feats[features.IdxLoadNorm])
}

// ObserveConfig updates the live-config gauges for name.
func (t *Telemetry) ObserveConfig(name string, cfg breaker.Config, effectiveness float64) {
	t.configWindowSize.WithLabelValues(name).Set(float64(cfg.WindowSize))
	t.configThreshold.WithLabelValues(name).Set(cfg.FailureRateThreshold)
	t.configWaitDuration.WithLabelValues(name).Set(float64(cfg.OpenStateWait.Milliseconds()))
	t.configEffectiveness.WithLabelValues(name).Set(effectiveness)
}
