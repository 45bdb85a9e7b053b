package engine

import (
	"math"
	"time"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

// Signal is a candidate trade emitted by the evaluator. It fires only
// when every gating predicate passed.
type Signal struct {
	Key         string
	Outcome     domain.Outcome
	Side        domain.Side
	Price       float64
	Ratio       float64
	Momentum    float64
	Threshold   float64
	MinMomentum float64
	Doji        bool // fired under the doji allowance, at reduced size
}

// Evaluator derives payout ratios, momentum and time-decay-adjusted
// thresholds from the current quotes. It is a pure function of the
// evaluation context and never mutates engine state.
type Evaluator struct {
	cfg Config
}

// Best returns the highest-conviction candidate for this tick, at most
// one per outcome. Candidates are ranked by ratio margin over their
// effective threshold.
func (ev *Evaluator) Best(ec *evalContext, led *domain.Ledger,
	series map[domain.Outcome]*domain.RatioSeries, cooldowns map[string]time.Time) (Signal, bool) {

	var best Signal
	found := false
	for _, o := range []domain.Outcome{domain.OutcomeUp, domain.OutcomeDown} {
		sig, ok := ev.bestForOutcome(ec, led, series[o], cooldowns, o)
		if !ok {
			continue
		}
		if !found || margin(sig) > margin(best) {
			best = sig
			found = true
		}
	}
	return best, found
}

func margin(s Signal) float64 {
	if s.Threshold <= 0 {
		return s.Ratio
	}
	return s.Ratio / s.Threshold
}

// bestForOutcome evaluates the BUY and SELL candidates for one outcome
// and returns at most one of them. The outcome-level lock: a BUY and a
// SELL on the same side can never both fire in one evaluation.
func (ev *Evaluator) bestForOutcome(ec *evalContext, led *domain.Ledger,
	series *domain.RatioSeries, cooldowns map[string]time.Time, o domain.Outcome) (Signal, bool) {

	q := ec.quotes[o]
	vol := ec.vol[o]
	effThr := ev.effectiveThreshold(ec, vol)
	effMom := ev.effectiveMinMomentum(ec, vol)

	mom := 0.0
	if m, ok := series.Momentum(ev.cfg.MomentumWindowSec); ok {
		mom = m
	}

	var buy, sell Signal
	haveBuy := ev.buyCandidate(ec, o, q, vol, effThr, effMom, mom, cooldowns, &buy)
	haveSell := ev.sellCandidate(ec, led, o, q, vol, effThr, effMom, mom, cooldowns, &sell)

	switch {
	case haveBuy && haveSell:
		if margin(sell) > margin(buy) {
			return sell, true
		}
		return buy, true
	case haveBuy:
		return buy, true
	case haveSell:
		return sell, true
	}
	return Signal{}, false
}

func (ev *Evaluator) buyCandidate(ec *evalContext, o domain.Outcome, q domain.Quote,
	vol, effThr, effMom, mom float64, cooldowns map[string]time.Time, out *Signal) bool {

	price := q.Ask
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return false
	}
	if price <= ev.cfg.MinPrice || price >= ev.cfg.MaxPrice {
		return false
	}
	if q.Spread() > ev.spreadLimit(ec, vol) {
		return false
	}

	ratio := domain.BuyRatio(price)
	favoredGate := o == ec.favored && price >= ev.cfg.FavoredMinPrice
	if ratio < effThr && !favoredGate {
		return false
	}
	if mom < effMom {
		return false
	}
	if !ev.cooldownElapsed(cooldowns, o, domain.SideBuy, ec.now) {
		return false
	}
	// End-of-window clamp: no entries on the losing side late.
	if o != ec.favored && ec.timeLeft <= ev.cfg.NoLateBuySec {
		return false
	}

	doji := ev.isDoji(ec)
	if doji && !ev.cfg.AllowDojiBuy {
		return false
	}

	*out = Signal{
		Key:         "buy-" + string(o),
		Outcome:     o,
		Side:        domain.SideBuy,
		Price:       price,
		Ratio:       ratio,
		Momentum:    mom,
		Threshold:   effThr,
		MinMomentum: effMom,
		Doji:        doji,
	}
	return true
}

func (ev *Evaluator) sellCandidate(ec *evalContext, led *domain.Ledger, o domain.Outcome,
	q domain.Quote, vol, effThr, effMom, mom float64, cooldowns map[string]time.Time, out *Signal) bool {

	if led.Shares(o) <= 0 {
		return false
	}
	price := q.Bid
	if price <= 0 || price >= 1 {
		return false
	}
	if q.Spread() > ev.spreadLimit(ec, vol) {
		return false
	}

	ratio := domain.SellRatio(price)
	if ratio < effThr {
		return false
	}
	if mom < effMom {
		return false
	}
	if !ev.cooldownElapsed(cooldowns, o, domain.SideSell, ec.now) {
		return false
	}
	// End-of-window clamp: never dump the favored side right at expiry.
	if o == ec.favored && ec.timeLeft <= ev.cfg.NoLateSellSec {
		return false
	}

	*out = Signal{
		Key:         "sell-" + string(o),
		Outcome:     o,
		Side:        domain.SideSell,
		Price:       price,
		Ratio:       ratio,
		Momentum:    mom,
		Threshold:   effThr,
		MinMomentum: effMom,
	}
	return true
}

// effectiveThreshold tightens the base payout-ratio floor as implied
// volatility rises and as the window runs out.
func (ev *Evaluator) effectiveThreshold(ec *evalContext, vol float64) float64 {
	tighten := 1 + vol*ev.cfg.VolTightenK + (1-ec.timeFrac)*ev.cfg.TimeTightenK
	return ev.cfg.BaseThreshold * tighten
}

// effectiveMinMomentum raises the momentum floor under the same
// conditions.
func (ev *Evaluator) effectiveMinMomentum(ec *evalContext, vol float64) float64 {
	return ev.cfg.BaseMinMomentum + vol*ev.cfg.VolMomentumB + (1-ec.timeFrac)*ev.cfg.TimeMomentumB
}

// spreadLimit shrinks the acceptable spread late in the window and under
// high volatility, floored at SpreadFloor.
func (ev *Evaluator) spreadLimit(ec *evalContext, vol float64) float64 {
	limit := ev.cfg.MaxSpread - (1-ec.timeFrac)*ev.cfg.SpreadTimePenalty - vol*ev.cfg.SpreadVolPenalty
	if limit < ev.cfg.SpreadFloor {
		return ev.cfg.SpreadFloor
	}
	if limit > ev.cfg.MaxSpread {
		return ev.cfg.MaxSpread
	}
	return limit
}

// isDoji reports whether the two outcome mids sit within the doji band.
func (ev *Evaluator) isDoji(ec *evalContext) bool {
	up := ec.quotes[domain.OutcomeUp].Mid()
	down := ec.quotes[domain.OutcomeDown].Mid()
	return math.Abs(up-down) <= ev.cfg.DojiThreshold
}

func (ev *Evaluator) cooldownElapsed(cooldowns map[string]time.Time, o domain.Outcome, s domain.Side, now time.Time) bool {
	last, ok := cooldowns[signalKey(o, s)]
	if !ok {
		return true
	}
	return now.Sub(last) >= ev.cfg.SignalCooldown
}
