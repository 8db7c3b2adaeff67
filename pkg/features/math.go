package features

import "gonum.org/v1/gonum/stat"

// weightedMean computes an exponentially decayed mean over values (oldest
// first), with the most recent entry weighted 1 and each older entry
// weighted by an additional factor of decay — "decay toward older" in
// spec.md §4.2's phrasing.
func weightedMean(values []float64, decay float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	weights := make([]float64, n)
	w := 1.0
	for i := n - 1; i >= 0; i-- {
		weights[i] = w
		w *= decay
	}
	return stat.Mean(values, weights)
}

// variance is the (weight-free) unbiased sample variance of values (N-1
// denominator), using gonum's mean-and-variance helper.
func variance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	_, v := stat.MeanVariance(values, nil)
	return v
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func max0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
