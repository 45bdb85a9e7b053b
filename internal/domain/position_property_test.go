package domain

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Ledger invariants under arbitrary interleavings of buys and sells.
func TestLedger_Property_SharesNeverNegative(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("shares stay non-negative and cash flows monotone", prop.ForAll(
		func(buys []float64, sells []float64, prices []float64) bool {
			if len(prices) == 0 {
				return true
			}
			l := NewLedger()
			price := func(i int) float64 {
				p := prices[i%len(prices)]
				if p <= 0.01 {
					p = 0.01
				}
				if p >= 0.99 {
					p = 0.99
				}
				return p
			}

			var prevSpent, prevReceived float64
			for i, b := range buys {
				l.ApplyBuy(OutcomeUp, b, price(i))
				if l.Shares(OutcomeUp) < 0 {
					return false
				}
				if l.Cash().Spent < prevSpent {
					return false
				}
				prevSpent = l.Cash().Spent
			}
			for i, s := range sells {
				l.ApplySell(OutcomeUp, s, price(i))
				if l.Shares(OutcomeUp) < 0 {
					return false
				}
				if l.Cash().Received < prevReceived {
					return false
				}
				prevReceived = l.Cash().Received
			}
			return l.Cash().NetSpent() == l.Cash().Spent-l.Cash().Received
		},
		gen.SliceOf(gen.Float64Range(-10, 100)),
		gen.SliceOf(gen.Float64Range(-10, 200)),
		gen.SliceOf(gen.Float64Range(0, 1)),
	))

	properties.TestingRun(t)
}
