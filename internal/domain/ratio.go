package domain

import (
	"math"
	"time"
)

// BuyRatio returns the payout ratio for buying at ask: (1-ask)/ask.
// Defined only for 0 < ask < 1; returns 0 otherwise.
func BuyRatio(ask float64) float64 {
	if ask <= 0 || ask >= 1 || math.IsNaN(ask) {
		return 0
	}
	return (1 - ask) / ask
}

// SellRatio returns the payout ratio for selling at bid: bid/(1-bid).
// Defined only for 0 <= bid < 1; returns 0 otherwise.
func SellRatio(bid float64) float64 {
	if bid < 0 || bid >= 1 || math.IsNaN(bid) {
		return 0
	}
	return bid / (1 - bid)
}

// RatioSample is one point of a rolling ratio time-series.
type RatioSample struct {
	At    time.Time
	Value float64
}

// RatioSeries holds a rolling time-series of ratio samples, pruned by age.
type RatioSeries struct {
	samples []RatioSample
	maxAge  time.Duration
}

// NewRatioSeries creates a series that keeps samples up to maxAge old.
func NewRatioSeries(maxAge time.Duration) *RatioSeries {
	return &RatioSeries{maxAge: maxAge}
}

// Add appends a sample and prunes anything older than maxAge relative to it.
func (s *RatioSeries) Add(at time.Time, value float64) {
	s.samples = append(s.samples, RatioSample{At: at, Value: value})

	cutoff := at.Add(-s.maxAge)
	i := 0
	for i < len(s.samples)-1 && s.samples[i].At.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.samples = s.samples[i:]
	}
}

// Len returns the number of retained samples.
func (s *RatioSeries) Len() int {
	return len(s.samples)
}

// Reset drops all samples. Called on window rollover.
func (s *RatioSeries) Reset() {
	s.samples = s.samples[:0]
}

// Momentum returns (lastValue - anchorValue) / max(1, lastTime - anchorTime)
// in value-per-second, where anchor is the most recent sample at or before
// (lastTime - windowSec), falling back to the first sample if none qualifies.
// The second return is false when fewer than 2 samples exist.
func (s *RatioSeries) Momentum(windowSec float64) (float64, bool) {
	if len(s.samples) < 2 {
		return 0, false
	}

	last := s.samples[len(s.samples)-1]
	cutoff := last.At.Add(-time.Duration(windowSec * float64(time.Second)))

	anchor := s.samples[0]
	for i := len(s.samples) - 2; i >= 0; i-- {
		if !s.samples[i].At.After(cutoff) {
			anchor = s.samples[i]
			break
		}
	}

	dt := last.At.Sub(anchor.At).Seconds()
	if dt < 1 {
		dt = 1
	}
	return (last.Value - anchor.Value) / dt, true
}
