package engine

import (
	"fmt"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

// Hedger conditionally places the opposite-outcome buy after a confirmed
// entry fill. A hedge never triggers a further hedge.
type Hedger struct {
	cfg Config
}

// Evaluate returns the hedge intent for a confirmed non-hedge BUY, or
// ok=false when any gate fails. Callers guarantee the trigger's status
// is filled or partial.
func (h *Hedger) Evaluate(ec *evalContext, trigger domain.TradeRecord) (orderIntent, bool) {
	if !h.cfg.HedgeEnabled {
		return orderIntent{}, false
	}
	if trigger.IsHedge || trigger.Side != domain.SideBuy || trigger.FilledSize <= 0 {
		return orderIntent{}, false
	}

	opp := trigger.Outcome.Opposite()
	q := ec.quotes[opp]
	ask := q.Ask
	if ask <= h.cfg.MinPrice || ask >= h.cfg.MaxPrice {
		return orderIntent{}, false
	}

	limit := h.cfg.MaxSpread - (1-ec.timeFrac)*h.cfg.SpreadTimePenalty - ec.vol[opp]*h.cfg.SpreadVolPenalty
	if limit < h.cfg.SpreadFloor {
		limit = h.cfg.SpreadFloor
	}
	if q.Spread() > limit {
		return orderIntent{}, false
	}

	// Loser clamp: no hedge entries on the non-favored side late.
	if opp != ec.favored && ec.timeLeft <= h.cfg.NoLateBuySec {
		return orderIntent{}, false
	}

	ratio := domain.BuyRatio(ask)
	if ratio < h.cfg.HedgeRatioMin || ratio > h.cfg.HedgeRatioMax {
		return orderIntent{}, false
	}

	size := trigger.FilledSize * h.cfg.HedgeSizeMult
	if size > h.cfg.MaxSize {
		size = h.cfg.MaxSize
	}

	return orderIntent{
		Key:     signalKey(opp, domain.SideBuy),
		Outcome: opp,
		Side:    domain.SideBuy,
		Price:   ask,
		Size:    size,
		IsHedge: true,
		HedgeOf: trigger.ID,
		Reason:  fmt.Sprintf("hedge of %s (ratio %.2f)", trigger.ID, ratio),
	}, true
}
