package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

// rollover switches the engine to a new window. The closing window is
// snapshotted for reporting first, then all ephemeral state — ledger,
// cash flow, retry timers, cooldowns, ratio series — is reset atomically
// before the first tick of the new window is processed.
func (e *Engine) rollover(ctx context.Context, next domain.Window) {
	if e.window.Slug == next.Slug {
		e.window = next
		return
	}

	if e.window.Slug != "" {
		e.closeWindow(ctx)
	}

	e.window = next
	slog.Info("engine: window started",
		"slug", next.Slug,
		"start", next.StartTime.Format("15:04:05"),
		"end", next.EndTime.Format("15:04:05"),
	)
}

func (e *Engine) closeWindow(ctx context.Context) {
	winner := e.currentWinner()
	sum := domain.NewWindowSummary(e.window, e.ledger, winner, e.now())
	sum.Attempts = e.stats.attempts
	sum.Fills = e.stats.fills
	sum.NoFills = e.stats.noFills
	sum.Errors = e.stats.errors
	sum.Skips = e.stats.skips

	slog.Info("engine: window closed",
		"slug", sum.Slug,
		"winner", string(sum.Winner),
		"settlement_pnl", fmt.Sprintf("%.2f", sum.SettlementPnL),
		"net_spent", fmt.Sprintf("%.2f", sum.NetSpent),
		"attempts", sum.Attempts,
		"fills", sum.Fills,
		"errors", sum.Errors,
	)

	if e.store != nil {
		if err := e.store.SaveWindowSummary(ctx, sum); err != nil {
			slog.Warn("engine: error saving window summary", "slug", sum.Slug, "err", err)
		}
	}
	if e.notify != nil {
		e.notify.WindowClosed(sum)
	}

	e.ledger.Reset()
	for _, s := range e.series {
		s.Reset()
	}
	e.quotes = make(map[domain.Outcome]domain.Quote)
	e.cooldowns = make(map[string]time.Time)
	e.executor.Reset()
	e.rebalancer.Reset()
	e.balances.Reset()
	e.stats = windowStats{}
}

// currentWinner is the outcome with the higher final bid, falling back
// to the higher mid.
func (e *Engine) currentWinner() domain.Outcome {
	up, okUp := e.quotes[domain.OutcomeUp]
	down, okDown := e.quotes[domain.OutcomeDown]
	if !okUp || !okDown {
		return domain.OutcomeUp
	}
	return favoredOutcome(up, down)
}
