// Package stats summarizes recorded distances
package stats

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes a set of distances in centimeters. StdDev is the sample standard deviation.
// Median and P90 are empirical quantiles, so they are always one of the input values.
type Summary struct {
	Count  int
	Mean   float64
	StdDev float64
	Min    float64
	Median float64
	P90    float64
}

// Summarize computes a Summary. The input is not modified. An empty input returns the zero Summary.
func Summarize(distances []float64) Summary {
	if len(distances) == 0 {
		return Summary{}
	}

	sorted := slices.Clone(distances)
	slices.Sort(sorted)

	s := Summary{
		Count:  len(sorted),
		Min:    floats.Min(sorted),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P90:    stat.Quantile(0.9, stat.Empirical, sorted, nil),
	}

	if len(sorted) < 2 {
		s.Mean = sorted[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(sorted, nil)
	return s
}

func (s Summary) String() string {
	if s.Count == 0 {
		return "no samples"
	}
	return fmt.Sprintf("n=%d mean=%.1f sd=%.1f min=%.1f median=%.1f p90=%.1f", s.Count, s.Mean, s.StdDev, s.Min, s.Median, s.P90)
}
