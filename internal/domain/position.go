package domain

// Position tracks shares and cost basis for one outcome.
// AvgCost is meaningful only while Shares > 0.
type Position struct {
	Shares  float64
	AvgCost float64
}

// CashFlow accumulates gross spend and proceeds for the active window.
// Both fields are monotonically non-decreasing.
type CashFlow struct {
	Spent    float64
	Received float64
}

// NetSpent returns spent minus received.
func (c CashFlow) NetSpent() float64 {
	return c.Spent - c.Received
}

// Ledger owns the per-outcome positions and cash flow for the active
// window. It is mutated only by confirmed fills and reset on rollover.
type Ledger struct {
	positions map[Outcome]Position
	cash      CashFlow
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{positions: make(map[Outcome]Position)}
}

// ApplyBuy records a confirmed buy fill. AvgCost becomes the
// volume-weighted blend of the existing basis and the new fill.
func (l *Ledger) ApplyBuy(o Outcome, shares, price float64) {
	if shares <= 0 {
		return
	}
	pos := l.positions[o]
	total := pos.Shares + shares
	pos.AvgCost = (pos.AvgCost*pos.Shares + price*shares) / total
	pos.Shares = total
	l.positions[o] = pos
	l.cash.Spent += shares * price
}

// ApplySell records a confirmed sell fill. Shares never go negative and
// AvgCost is left unchanged while any shares remain.
func (l *Ledger) ApplySell(o Outcome, shares, price float64) {
	if shares <= 0 {
		return
	}
	pos := l.positions[o]
	sold := shares
	if sold > pos.Shares {
		sold = pos.Shares
	}
	pos.Shares -= sold
	if pos.Shares == 0 {
		pos.AvgCost = 0
	}
	l.positions[o] = pos
	l.cash.Received += sold * price
}

// Reconcile overwrites the tracked share count with the exchange-reported
// one, keeping the cost basis. Used when the external ledger disagrees.
func (l *Ledger) Reconcile(o Outcome, shares float64) {
	pos := l.positions[o]
	if shares < 0 {
		shares = 0
	}
	pos.Shares = shares
	if pos.Shares == 0 {
		pos.AvgCost = 0
	}
	l.positions[o] = pos
}

// Position returns a copy of the position for the given outcome.
func (l *Ledger) Position(o Outcome) Position {
	return l.positions[o]
}

// Shares returns the tracked share count for the given outcome.
func (l *Ledger) Shares(o Outcome) float64 {
	return l.positions[o].Shares
}

// Cash returns the window cash flow so far.
func (l *Ledger) Cash() CashFlow {
	return l.cash
}

// SettlementPnL is the projected profit assuming winner resolves
// favorably: every winning share redeems for 1 unit of collateral.
func (l *Ledger) SettlementPnL(winner Outcome) float64 {
	return l.Shares(winner) - l.cash.NetSpent()
}

// Reset clears positions and cash flow. Called atomically on rollover
// after the window snapshot has been taken.
func (l *Ledger) Reset() {
	l.positions = make(map[Outcome]Position)
	l.cash = CashFlow{}
}
