package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

func rebalConfig() Config {
	var cfg Config
	setDefaults(&cfg)
	return cfg
}

func TestRebalancer_NoActionWhenHealthy(t *testing.T) {
	r := &Rebalancer{cfg: rebalConfig()}
	led := domain.NewLedger()
	led.ApplyBuy(domain.OutcomeUp, 20, 0.50) // net spent 10, pnl(UP)=10

	ec := newTestContext(
		domain.Quote{Bid: 0.70, Ask: 0.72},
		domain.Quote{Bid: 0.26, Ask: 0.28},
		400,
	)
	assert.Nil(t, r.Evaluate(ec, led))
}

func TestRebalancer_BufferBreachSellsLoser(t *testing.T) {
	r := &Rebalancer{cfg: rebalConfig()}
	led := domain.NewLedger()
	led.ApplyBuy(domain.OutcomeUp, 5, 0.50)    // winner side, 2.50 spent
	led.ApplyBuy(domain.OutcomeDown, 20, 0.60) // loser bag, 12.00 spent

	// pnl(UP) = 5 - 14.5 = -9.5, far below the 0.5 buffer.
	ec := newTestContext(
		domain.Quote{Bid: 0.70, Ask: 0.72},
		domain.Quote{Bid: 0.30, Ask: 0.34},
		400,
	)

	act := r.Evaluate(ec, led)
	require.NotNil(t, act)
	assert.Equal(t, "sell-loser", act.Kind)
	assert.Equal(t, domain.OutcomeDown, act.Outcome)
	assert.Equal(t, domain.SideSell, act.Side)
	assert.InDelta(t, 0.30, act.Price, 1e-9)
	// gap 10 / bid 0.30 = 33.3 shares, clamped to the 20 held.
	assert.InDelta(t, 20.0, act.Size, 1e-9)
}

func TestRebalancer_BuyWinnerPolicy(t *testing.T) {
	cfg := rebalConfig()
	cfg.RebalancePolicy = PolicyBuyWinner
	r := &Rebalancer{cfg: cfg}
	led := domain.NewLedger()
	led.ApplyBuy(domain.OutcomeDown, 20, 0.60)

	ec := newTestContext(
		domain.Quote{Bid: 0.70, Ask: 0.72},
		domain.Quote{Bid: 0.30, Ask: 0.34},
		400,
	)

	act := r.Evaluate(ec, led)
	require.NotNil(t, act)
	assert.Equal(t, "buy-winner", act.Kind)
	assert.Equal(t, domain.OutcomeUp, act.Outcome)
	assert.Equal(t, domain.SideBuy, act.Side)
	assert.InDelta(t, 0.72, act.Price, 1e-9)
}

func TestRebalancer_SolvencyNeverLowersSettlementPnL(t *testing.T) {
	// Whatever the policy picks to close a buffer breach, applying the
	// action must leave the projected settlement PnL no worse than
	// before it fired.
	for _, policy := range []string{PolicySellLoser, PolicyBuyWinner, PolicyBalanced} {
		t.Run(policy, func(t *testing.T) {
			cfg := rebalConfig()
			cfg.RebalancePolicy = policy
			r := &Rebalancer{cfg: cfg}

			led := domain.NewLedger()
			led.ApplyBuy(domain.OutcomeUp, 5, 0.50)    // winner side, 2.50 spent
			led.ApplyBuy(domain.OutcomeDown, 20, 0.60) // loser bag, 12.00 spent

			ec := newTestContext(
				domain.Quote{Bid: 0.70, Ask: 0.72},
				domain.Quote{Bid: 0.30, Ask: 0.34},
				400,
			)
			winner := ec.favored
			require.Equal(t, domain.OutcomeUp, winner)
			before := led.SettlementPnL(winner)
			require.Less(t, before, cfg.SettlementBuffer, "setup must breach the buffer")

			act := r.Evaluate(ec, led)
			require.NotNil(t, act)
			if act.Side == domain.SideSell {
				led.ApplySell(act.Outcome, act.Size, act.Price)
			} else {
				led.ApplyBuy(act.Outcome, act.Size, act.Price)
			}
			assert.GreaterOrEqual(t, led.SettlementPnL(winner), before,
				"forced %s made settlement solvency worse", act.Kind)
		})
	}
}

func TestRebalancer_LateFlipBypassesCooldown(t *testing.T) {
	cfg := rebalConfig()
	cfg.FlipRebalance = true
	cfg.RebalanceIgnoreCooldown = false
	r := &Rebalancer{cfg: cfg}

	led := domain.NewLedger()
	led.ApplyBuy(domain.OutcomeUp, 10, 0.50)

	// First tick: UP favored, remembered as previous winner.
	early := newTestContext(
		domain.Quote{Bid: 0.70, Ask: 0.72},
		domain.Quote{Bid: 0.26, Ask: 0.28},
		400,
	)
	r.Evaluate(early, led)

	// Inside the late window the favored side flips to DOWN.
	flipped := newTestContext(
		domain.Quote{Bid: 0.30, Ask: 0.34},
		domain.Quote{Bid: 0.70, Ask: 0.72},
		100,
	)
	act := r.Evaluate(flipped, led)
	require.NotNil(t, act)
	assert.True(t, act.IgnoreCooldown, "late flip overrides the per-signal cooldown")
	assert.Equal(t, "sell-loser", act.Kind)
	assert.Equal(t, domain.OutcomeUp, act.Outcome, "the old winner is now the loser")
}

func TestRebalancer_DojiUnwindTakesPrecedence(t *testing.T) {
	r := &Rebalancer{cfg: rebalConfig()}
	led := domain.NewLedger()
	led.ApplyBuy(domain.OutcomeDown, 30, 0.55) // bigger notional on DOWN
	led.ApplyBuy(domain.OutcomeUp, 5, 0.45)

	// Late window, mids 0.49 vs 0.50: a doji. The unwind runs before any
	// solvency check.
	ec := newTestContext(
		domain.Quote{Bid: 0.47, Ask: 0.51},
		domain.Quote{Bid: 0.48, Ask: 0.52},
		100,
	)

	act := r.Evaluate(ec, led)
	require.NotNil(t, act)
	assert.Equal(t, "doji-unwind", act.Kind)
	assert.Equal(t, domain.OutcomeDown, act.Outcome, "sell the larger notional side")
	assert.Equal(t, domain.SideSell, act.Side)
	assert.InDelta(t, 0.48, act.Price, 1e-9)
}

func TestRebalancer_DojiOnlyInsideLateWindow(t *testing.T) {
	r := &Rebalancer{cfg: rebalConfig()}
	led := domain.NewLedger()
	led.ApplyBuy(domain.OutcomeUp, 30, 0.50) // DOWN is favored, UP is the bag

	// Same doji book, but 400s remain (late window is 180s): the pnl
	// breach still produces a solvency action, not an unwind.
	ec := newTestContext(
		domain.Quote{Bid: 0.47, Ask: 0.51},
		domain.Quote{Bid: 0.48, Ask: 0.52},
		400,
	)

	act := r.Evaluate(ec, led)
	require.NotNil(t, act)
	assert.NotEqual(t, "doji-unwind", act.Kind)
}

func TestRebalancer_SellSizeCappedByMultiple(t *testing.T) {
	cfg := rebalConfig()
	cfg.BaseSize = 10
	cfg.RebalanceSizeMult = 2 // cap forced sells at 20 shares
	r := &Rebalancer{cfg: cfg}

	led := domain.NewLedger()
	led.ApplyBuy(domain.OutcomeDown, 200, 0.60)

	ec := newTestContext(
		domain.Quote{Bid: 0.70, Ask: 0.72},
		domain.Quote{Bid: 0.30, Ask: 0.34},
		400,
	)

	act := r.Evaluate(ec, led)
	require.NotNil(t, act)
	assert.Equal(t, "sell-loser", act.Kind)
	assert.InDelta(t, 20.0, act.Size, 1e-9)
}

func TestRebalancer_ResetForgetsPreviousWinner(t *testing.T) {
	cfg := rebalConfig()
	cfg.FlipRebalance = true
	r := &Rebalancer{cfg: cfg}
	led := domain.NewLedger() // empty: no buffer/cap breach possible

	up := newTestContext(
		domain.Quote{Bid: 0.70, Ask: 0.72},
		domain.Quote{Bid: 0.26, Ask: 0.28},
		100,
	)
	r.Evaluate(up, led)
	r.Reset()

	// After reset the flip detector has no memory, so a favored change
	// right away is not a flip.
	down := newTestContext(
		domain.Quote{Bid: 0.26, Ask: 0.28},
		domain.Quote{Bid: 0.70, Ask: 0.72},
		100,
	)
	assert.Nil(t, r.Evaluate(down, led))
}
