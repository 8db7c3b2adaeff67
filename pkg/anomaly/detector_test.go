package anomaly

import (
	"testing"

	"github.com/adaptivebreaker/breaker/pkg/features"
)

func vec(fill float64) [features.Width]float64 {
	var v [features.Width]float64
	for i := range v {
		v[i] = fill
	}
	return v
}

func TestDetector_ConstantVectorsScoreNearZero(t *testing.T) {
	d := New()
	var score float64
	for i := 0; i < 5; i++ {
		score = d.Score(vec(1.0))
	}
	if score > 0.1 {
		t.Fatalf("expected a near-zero score for a repeated identical vector, got %v", score)
	}
}

func TestDetector_OutlierScoresHigherThanBaseline(t *testing.T) {
	d := New()
	for i := 0; i < 10; i++ {
		d.Score(vec(1.0))
	}
	outlier := d.Score(vec(50.0))
	if outlier <= DefaultThreshold {
		t.Fatalf("expected an outlier vector to exceed the default threshold, got %v", outlier)
	}
}

func TestDetector_IsAnomalousRespectsThreshold(t *testing.T) {
	d := New()
	if !d.IsAnomalous(3.0) {
		t.Fatal("expected 3.0 to exceed the default threshold of 2.5")
	}
	if d.IsAnomalous(1.0) {
		t.Fatal("expected 1.0 to fall under the default threshold")
	}

	d.SetThreshold(5.0)
	if d.IsAnomalous(3.0) {
		t.Fatal("expected 3.0 to fall under a raised threshold of 5.0")
	}
}

func TestDetector_SetThresholdIgnoresNonPositive(t *testing.T) {
	d := New()
	d.SetThreshold(-1)
	d.SetThreshold(0)
	if !d.IsAnomalous(3.0) {
		t.Fatal("expected non-positive SetThreshold calls to leave the default threshold in place")
	}
}

func TestDetector_SampleCountTracksScoreCalls(t *testing.T) {
	d := New()
	for i := 0; i < 4; i++ {
		d.Score(vec(float64(i)))
	}
	if d.SampleCount() != 4 {
		t.Fatalf("SampleCount() = %d, want 4", d.SampleCount())
	}
}

func TestDetector_TransitionsFromExactToEMA(t *testing.T) {
	d := New()
	for i := 0; i < exactRecomputeUpTo+5; i++ {
		d.Score(vec(1.0))
	}
	if d.SampleCount() != exactRecomputeUpTo+5 {
		t.Fatalf("SampleCount() = %d, want %d", d.SampleCount(), exactRecomputeUpTo+5)
	}
	score := d.Score(vec(1.0))
	if score > 0.1 {
		t.Fatalf("expected a stable repeated vector to keep scoring near zero after the EMA transition, got %v", score)
	}
}
