package engine

import (
	"math"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

// Sizer converts a candidate signal into a raw trade size. The final
// size always passes through NormalizeTradeSize.
type Sizer struct {
	cfg Config
}

// RawSize scales the base size by conviction (ratio over threshold) and
// dampens it as volatility rises and time runs out. Doji signals trade
// at a reduced multiple.
func (s *Sizer) RawSize(sig Signal, ec *evalContext) float64 {
	volDamp := 1 - ec.vol[sig.Outcome]*s.cfg.VolSizeDampen
	if volDamp < s.cfg.SizeDampenFloor {
		volDamp = s.cfg.SizeDampenFloor
	}
	timeDamp := 1 - (1-ec.timeFrac)*s.cfg.TimeSizeDampen
	if timeDamp < s.cfg.SizeDampenFloor {
		timeDamp = s.cfg.SizeDampenFloor
	}

	dojiMult := 1.0
	if sig.Doji {
		dojiMult = s.cfg.DojiSizeMult
	}

	conviction := 1.0
	if sig.Threshold > 0 && sig.Ratio/sig.Threshold > 1 {
		conviction = math.Pow(sig.Ratio/sig.Threshold, s.cfg.ScaleExponent)
	}

	size := s.cfg.BaseSize * volDamp * timeDamp * dojiMult * conviction
	if size > s.cfg.MaxSize {
		size = s.cfg.MaxSize
	}
	return size
}

// NormalizeTradeSize turns a raw size into a valid order size, or 0 when
// no valid order exists. Pure and deterministic.
//
// For SELLs the result is never allowed to strand a positive residual
// below the minimum sellable size: either the whole position is sold or
// at least minShares remain sellable.
func NormalizeTradeSize(rawSize float64, side domain.Side, price, maxSize, available,
	minShares, minNotional float64, precision int) float64 {

	if rawSize <= 0 || math.IsNaN(rawSize) || math.IsInf(rawSize, 0) {
		return 0
	}

	hardMin := minShares
	if price > 0 {
		if byNotional := math.Ceil(minNotional / price); byNotional > hardMin {
			hardMin = byNotional
		}
	}

	size := rawSize
	switch side {
	case domain.SideSell:
		if available < hardMin {
			return 0
		}
		if size < hardMin {
			size = hardMin
		}
		if size > available {
			size = available
		}
		// Unsellable remainder: selling size would leave a stub that
		// can never be sold on its own. Take the whole position instead.
		if rem := available - size; rem > 0 && rem < hardMin {
			size = available
		}
	default: // BUY
		if size < hardMin {
			size = hardMin
		}
		if size > maxSize {
			size = maxSize
		}
	}

	size = roundTo(size, precision)

	// Rounding guards: keep the SELL residual invariant intact.
	if side == domain.SideSell {
		if size > available {
			size = available
		}
		if rem := available - size; rem > 0 && rem < hardMin {
			size = available
		}
	}

	if size < minShares {
		return 0
	}
	if price > 0 && size*price < minNotional {
		return 0
	}
	return size
}

func roundTo(v float64, precision int) float64 {
	pow := math.Pow(10, float64(precision))
	return math.Round(v*pow) / pow
}
