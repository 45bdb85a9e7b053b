package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuyRatio_Basic(t *testing.T) {
	// ask=0.40 → (1-0.40)/0.40 = 1.5
	assert.InDelta(t, 1.5, BuyRatio(0.40), 1e-9)
	// ask=0.25 → 3.0
	assert.InDelta(t, 3.0, BuyRatio(0.25), 1e-9)
}

func TestBuyRatio_OutOfDomain(t *testing.T) {
	assert.Equal(t, 0.0, BuyRatio(0))
	assert.Equal(t, 0.0, BuyRatio(1))
	assert.Equal(t, 0.0, BuyRatio(-0.1))
	assert.Equal(t, 0.0, BuyRatio(1.5))
}

func TestSellRatio_Basic(t *testing.T) {
	// bid=0.05 → 0.05/0.95 ≈ 0.0526
	assert.InDelta(t, 0.0526315789, SellRatio(0.05), 1e-9)
	// bid=0.75 → 3.0
	assert.InDelta(t, 3.0, SellRatio(0.75), 1e-9)
}

func TestSellRatio_OutOfDomain(t *testing.T) {
	assert.Equal(t, 0.0, SellRatio(-0.01))
	assert.Equal(t, 0.0, SellRatio(1))
	// bid=0 is defined and yields 0
	assert.Equal(t, 0.0, SellRatio(0))
}

// --- RatioSeries / Momentum ---

func TestMomentum_NeedsTwoSamples(t *testing.T) {
	s := NewRatioSeries(5 * time.Minute)
	_, ok := s.Momentum(30)
	assert.False(t, ok)

	s.Add(time.Now(), 1.0)
	_, ok = s.Momentum(30)
	assert.False(t, ok)
}

func TestMomentum_AnchorAtWindowEdge(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewRatioSeries(5 * time.Minute)
	s.Add(t0, 1.0)
	s.Add(t0.Add(10*time.Second), 1.2)
	s.Add(t0.Add(40*time.Second), 1.6)

	// window=30s → anchor is the sample at t0+10s (most recent at or
	// before t0+40s-30s), momentum = (1.6-1.2)/30
	m, ok := s.Momentum(30)
	assert.True(t, ok)
	assert.InDelta(t, 0.4/30, m, 1e-9)
}

func TestMomentum_FallbackToOldestSample(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewRatioSeries(5 * time.Minute)
	s.Add(t0, 1.0)
	s.Add(t0.Add(5*time.Second), 1.5)

	// No sample is older than 30s; the first one anchors instead.
	m, ok := s.Momentum(30)
	assert.True(t, ok)
	assert.InDelta(t, 0.5/5, m, 1e-9)
}

func TestMomentum_SubSecondFloor(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewRatioSeries(5 * time.Minute)
	s.Add(t0, 1.0)
	s.Add(t0.Add(100*time.Millisecond), 1.1)

	// dt is floored at 1s so a burst of ticks cannot explode momentum.
	m, ok := s.Momentum(30)
	assert.True(t, ok)
	assert.InDelta(t, 0.1, m, 1e-9)
}

func TestRatioSeries_PrunesByAge(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewRatioSeries(time.Minute)
	s.Add(t0, 1.0)
	s.Add(t0.Add(30*time.Second), 1.1)
	s.Add(t0.Add(2*time.Minute), 1.2)

	assert.Equal(t, 1, s.Len(), "samples older than maxAge should be dropped")
}

func TestRatioSeries_Reset(t *testing.T) {
	s := NewRatioSeries(time.Minute)
	s.Add(time.Now(), 1.0)
	s.Reset()
	assert.Equal(t, 0, s.Len())
}
