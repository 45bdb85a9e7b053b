package engine

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

// A normalized SELL either trades nothing, or trades a size within
// [minShares, available] that never strands a residual smaller than the
// minimum sellable size.
func TestNormalizeTradeSize_Property_SellResidual(t *testing.T) {
	const (
		minShares = 5.0
		maxSize   = 100.0
		precision = 2
		eps       = 1e-9
	)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("sell size is 0 or in [minShares, available] with a sellable residual", prop.ForAll(
		func(raw, available, price float64) bool {
			size := NormalizeTradeSize(raw, domain.SideSell, price, maxSize, available,
				minShares, 0, precision)
			if size == 0 {
				return true
			}
			if size < minShares-eps || size > available+eps {
				return false
			}
			rem := available - size
			return rem <= eps || rem >= minShares-eps
		},
		gen.Float64Range(-10, 300),
		gen.Float64Range(0, 200),
		gen.Float64Range(0.02, 0.98),
	))

	properties.Property("buy size is 0 or in [minShares, maxSize]", prop.ForAll(
		func(raw, price float64) bool {
			size := NormalizeTradeSize(raw, domain.SideBuy, price, maxSize, 0,
				minShares, 0, precision)
			if size == 0 {
				return true
			}
			return size >= minShares-eps && size <= maxSize+eps
		},
		gen.Float64Range(-10, 500),
		gen.Float64Range(0.02, 0.98),
	))

	properties.TestingRun(t)
}
