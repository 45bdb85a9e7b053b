package domain

import "time"

// WindowSummary is the rollover snapshot of one completed window, taken
// before the ephemeral engine state is reset.
type WindowSummary struct {
	Slug          string
	StartTime     time.Time
	EndTime       time.Time
	Winner        Outcome
	UpShares      float64
	UpAvgCost     float64
	DownShares    float64
	DownAvgCost   float64
	Spent         float64
	Received      float64
	NetSpent      float64
	SettlementPnL float64
	Attempts      int
	Fills         int
	NoFills       int
	Errors        int
	Skips         int
	ClosedAt      time.Time
}

// NewWindowSummary snapshots the ledger for a closing window. Winner is
// the outcome holding the higher final bid.
func NewWindowSummary(w Window, led *Ledger, winner Outcome, closedAt time.Time) WindowSummary {
	up := led.Position(OutcomeUp)
	down := led.Position(OutcomeDown)
	cash := led.Cash()
	return WindowSummary{
		Slug:          w.Slug,
		StartTime:     w.StartTime,
		EndTime:       w.EndTime,
		Winner:        winner,
		UpShares:      up.Shares,
		UpAvgCost:     up.AvgCost,
		DownShares:    down.Shares,
		DownAvgCost:   down.AvgCost,
		Spent:         cash.Spent,
		Received:      cash.Received,
		NetSpent:      cash.NetSpent(),
		SettlementPnL: led.SettlementPnL(winner),
		ClosedAt:      closedAt,
	}
}
