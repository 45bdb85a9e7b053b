package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/alejandrodnm/updownbot/internal/ports"
)

// reconcileEpsilon is the share discrepancy below which the local ledger
// and the exchange are considered in agreement.
const reconcileEpsilon = 0.01

// reconcile compares the local ledger with the exchange-reported
// conditional balances and adopts the exchange's share counts when they
// disagree. Runs on its own interval and on visibility-regain events,
// guarded against overlapping passes.
func (e *Engine) reconcile(ctx context.Context) {
	if e.reconBusy {
		return
	}
	e.reconBusy = true
	defer func() { e.reconBusy = false }()

	if e.window.Slug == "" {
		return
	}

	for _, o := range []domain.Outcome{domain.OutcomeUp, domain.OutcomeDown} {
		tokenID := e.window.Token(o).TokenID
		if tokenID == "" {
			continue
		}
		bal, err := e.api.GetBalance(ctx, ports.AssetConditional, tokenID)
		if err != nil {
			slog.Warn("engine: reconcile balance fetch failed", "outcome", string(o), "err", err)
			continue
		}

		local := e.ledger.Shares(o)
		remote := bal.Available()
		if math.Abs(local-remote) <= reconcileEpsilon {
			continue
		}

		slog.Info("engine: reconciling ledger to exchange",
			"outcome", string(o),
			"local", fmt.Sprintf("%.2f", local),
			"exchange", fmt.Sprintf("%.2f", remote),
		)
		e.ledger.Reconcile(o, remote)
	}
}
