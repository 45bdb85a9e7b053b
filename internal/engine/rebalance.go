package engine

import (
	"fmt"
	"math"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

// Action is a forced trade produced by the late-window safety
// controller. It pre-empts normal signals for the tick that produced it.
type Action struct {
	Kind           string // doji-unwind | sell-loser | buy-winner
	Outcome        domain.Outcome
	Side           domain.Side
	Price          float64
	Size           float64
	IgnoreCooldown bool
	Reason         string
}

// Rebalancer keeps settlement PnL above a buffer and net spend under a
// cap, tightening both as expiry approaches, and neutralizes inventory
// when the market sits near 50/50. Evaluated before normal signals on
// every tick.
type Rebalancer struct {
	cfg        Config
	prevWinner domain.Outcome
}

// Evaluate returns the action for this tick, or nil. Precedence is
// fixed: the doji unwind is checked first, then solvency. Reordering
// would change which action fires when both are eligible.
func (r *Rebalancer) Evaluate(ec *evalContext, led *domain.Ledger) *Action {
	winner := ec.favored
	loser := winner.Opposite()

	flipped := r.prevWinner != "" && r.prevWinner != winner
	r.prevWinner = winner

	lateDepth := r.lateDepth(ec.timeLeft)

	if act := r.dojiUnwind(ec, led, lateDepth); act != nil {
		return act
	}
	return r.solvency(ec, led, winner, loser, flipped, lateDepth)
}

// Reset clears the favored-side memory. Called on window rollover.
func (r *Rebalancer) Reset() {
	r.prevWinner = ""
}

// lateDepth is 0 outside the late window and grows linearly to 1 at
// expiry.
func (r *Rebalancer) lateDepth(timeLeft float64) float64 {
	if timeLeft > r.cfg.LateWindowSec {
		return 0
	}
	if r.cfg.LateWindowSec <= 0 {
		return 1
	}
	d := 1 - timeLeft/r.cfg.LateWindowSec
	if d > 1 {
		return 1
	}
	return d
}

// dojiUnwind sells down the larger position when the market is near
// 50/50 inside the late window: no directional conviction means held
// inventory is pure risk.
func (r *Rebalancer) dojiUnwind(ec *evalContext, led *domain.Ledger, lateDepth float64) *Action {
	if lateDepth <= 0 {
		return nil
	}
	upQ := ec.quotes[domain.OutcomeUp]
	downQ := ec.quotes[domain.OutcomeDown]
	gap := math.Abs(upQ.Mid() - downQ.Mid())
	if gap > r.cfg.DojiThreshold {
		return nil
	}

	upNotional := led.Shares(domain.OutcomeUp) * upQ.Mid()
	downNotional := led.Shares(domain.OutcomeDown) * downQ.Mid()
	target := domain.OutcomeUp
	if downNotional > upNotional {
		target = domain.OutcomeDown
	}
	shares := led.Shares(target)
	if shares <= 0 {
		return nil
	}

	q := ec.quotes[target]
	if q.Bid <= 0 {
		return nil
	}
	if !r.cfg.DojiOverrideSpread && q.Spread() > r.cfg.MaxSpread {
		return nil
	}

	size := shares
	if size > r.cfg.MaxRebalanceSize {
		size = r.cfg.MaxRebalanceSize
	}
	return &Action{
		Kind:           "doji-unwind",
		Outcome:        target,
		Side:           domain.SideSell,
		Price:          q.Bid,
		Size:           size,
		IgnoreCooldown: r.cfg.RebalanceIgnoreCooldown,
		Reason:         fmt.Sprintf("mid gap %.3f within doji band", gap),
	}
}

// solvency forces a trade when the favored side flipped late, the
// projected settlement PnL dropped below the buffer, or net spend
// exceeded the cap.
func (r *Rebalancer) solvency(ec *evalContext, led *domain.Ledger,
	winner, loser domain.Outcome, flipped bool, lateDepth float64) *Action {

	winnerShares := led.Shares(winner)
	netSpent := led.Cash().NetSpent()
	pnl := led.SettlementPnL(winner)

	// Nothing held and nothing at risk: there is no exposure to protect.
	if winnerShares <= 0 && led.Shares(loser) <= 0 && netSpent <= 0 {
		return nil
	}

	effBuffer := r.cfg.SettlementBuffer * (1 + lateDepth*(r.cfg.LateBufferMult-1))
	effCapMult := r.cfg.CapMult - lateDepth*(r.cfg.CapMult-r.cfg.CapMultFloor)
	if effCapMult < r.cfg.CapMultFloor {
		effCapMult = r.cfg.CapMultFloor
	}
	cap := winnerShares * effCapMult

	lateFlip := flipped && lateDepth > 0 && r.cfg.FlipRebalance
	bufferBreach := pnl < effBuffer
	capBreach := netSpent > cap
	if !lateFlip && !bufferBreach && !capBreach {
		return nil
	}

	winnerAsk := ec.quotes[winner].Ask
	loserBid := ec.quotes[loser].Bid

	bufferGap := effBuffer - pnl
	capGap := netSpent - cap
	gap := math.Max(bufferGap, capGap)
	if gap <= 0 {
		gap = r.cfg.SettlementBuffer
	}

	// Marginal gains: selling the loser yields its bid per share,
	// buying the winner yields 1-ask per share at settlement.
	sellGain := loserBid
	buyGain := 1 - winnerAsk
	reason := fmt.Sprintf("pnl=%.2f buffer=%.2f netSpent=%.2f cap=%.2f flip=%v",
		pnl, effBuffer, netSpent, cap, lateFlip)

	sell := func() *Action {
		if led.Shares(loser) <= 0 || loserBid <= 0 {
			return nil
		}
		size := gap / math.Max(sellGain, 1e-6)
		size = math.Min(size, led.Shares(loser))
		size = math.Min(size, r.cfg.RebalanceSizeMult*r.cfg.BaseSize)
		return &Action{
			Kind:           "sell-loser",
			Outcome:        loser,
			Side:           domain.SideSell,
			Price:          loserBid,
			Size:           size,
			IgnoreCooldown: r.cfg.RebalanceIgnoreCooldown || lateFlip,
			Reason:         reason,
		}
	}
	buy := func() *Action {
		if winnerAsk <= 0 || winnerAsk >= 1 || buyGain <= 0 {
			return nil
		}
		size := gap / buyGain
		size = math.Min(size, r.cfg.RebalanceSizeMult*r.cfg.BaseSize)
		return &Action{
			Kind:           "buy-winner",
			Outcome:        winner,
			Side:           domain.SideBuy,
			Price:          winnerAsk,
			Size:           size,
			IgnoreCooldown: r.cfg.RebalanceIgnoreCooldown || lateFlip,
			Reason:         reason,
		}
	}

	switch r.cfg.RebalancePolicy {
	case PolicyBuyWinner:
		if act := buy(); act != nil {
			return act
		}
		return sell()
	case PolicyBalanced:
		// Buying the winner cannot close a cap breach once the cap
		// multiplier sits below the winner's ask: each buy raises the
		// cap by less than it raises net spend.
		if buyGain > sellGain && effCapMult >= winnerAsk {
			if act := buy(); act != nil {
				return act
			}
		}
		if act := sell(); act != nil {
			return act
		}
		return buy()
	default: // sell-loser first
		if act := sell(); act != nil {
			return act
		}
		return buy()
	}
}
