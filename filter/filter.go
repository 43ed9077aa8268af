// Package filter smooths a stream of RawSamples into one StableEstimate per cycle using a sliding
// median, which rejects the single-sample spikes common with ultrasonic cross-talk.
package filter

import (
	"slices"

	"github.com/calvinmclean/echoguide"
)

// Filter is a fixed-capacity median window for one Side. It is not safe for concurrent use; each
// pipeline owns its own Filter.
type Filter struct {
	side echoguide.Side

	window   []float64
	scratch  []float64
	head     int
	size     int
	capacity int

	dropoutLimit int
	misses       int

	estimate echoguide.StableEstimate
}

// New creates a Filter with the given window size and dropout limit
func New(side echoguide.Side, windowSize, dropoutLimit int) *Filter {
	f := &Filter{side: side}
	f.Reset(windowSize, dropoutLimit)
	return f
}

// Reset clears all state and resizes the window. This is the only place the window allocates.
func (f *Filter) Reset(windowSize, dropoutLimit int) {
	if windowSize < 1 {
		windowSize = 1
	}
	f.window = make([]float64, windowSize)
	f.scratch = make([]float64, windowSize)
	f.capacity = windowSize
	f.head = 0
	f.size = 0
	f.dropoutLimit = dropoutLimit
	f.misses = 0
	f.estimate = echoguide.StableEstimate{Side: f.side}
}

// Configured reports whether the filter already uses these settings
func (f *Filter) Configured(windowSize, dropoutLimit int) bool {
	return f.capacity == windowSize && f.dropoutLimit == dropoutLimit
}

// Update processes a new sample and returns the current estimate
func (f *Filter) Update(sample echoguide.RawSample) echoguide.StableEstimate {
	if !sample.Valid {
		f.misses++
		if f.misses > f.dropoutLimit {
			// the obstacle is gone: forget old readings so they can't resurface
			f.size = 0
			f.head = 0
			f.estimate = echoguide.StableEstimate{Side: f.side, Timestamp: sample.Timestamp}
		}
		return f.estimate
	}

	f.misses = 0
	f.window[f.head] = sample.Distance
	f.head = (f.head + 1) % f.capacity
	if f.size < f.capacity {
		f.size++
	}

	f.estimate = echoguide.StableEstimate{
		Side:      f.side,
		Distance:  f.median(),
		Valid:     true,
		Timestamp: sample.Timestamp,
	}
	return f.estimate
}

// Estimate returns the most recent estimate
func (f *Filter) Estimate() echoguide.StableEstimate {
	return f.estimate
}

// Len is the number of valid samples currently in the window
func (f *Filter) Len() int {
	return f.size
}

func (f *Filter) median() float64 {
	// the window is full or filled from index 0, so the first size entries are the live ones
	s := f.scratch[:f.size]
	copy(s, f.window[:f.size])
	slices.Sort(s)

	mid := f.size / 2
	if f.size%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}
