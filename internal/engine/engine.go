package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/alejandrodnm/updownbot/internal/ports"
)

// Engine runs the per-window decision/execution loop for one Up/Down
// market. All decision logic executes on the single Run goroutine; the
// only asynchronous step is order submission, serialized by the
// executor's busy flag.
type Engine struct {
	cfg    Config
	api    ports.OrderAPI
	store  ports.TradeStorage
	notify ports.Notifier

	evaluator  *Evaluator
	sizer      *Sizer
	executor   *Executor
	hedger     *Hedger
	rebalancer *Rebalancer
	balances   *balanceCache

	window    domain.Window
	ledger    *domain.Ledger
	trades    *domain.TradeLog
	quotes    map[domain.Outcome]domain.Quote
	series    map[domain.Outcome]*domain.RatioSeries
	cooldowns map[string]time.Time
	stats     windowStats
	reconBusy bool

	events chan any
	now    func() time.Time
}

// Events consumed by the control loop.
type (
	quoteEvent     struct{ tick ports.TickEvent }
	windowEvent    struct{ w domain.Window }
	reconcileEvent struct{}
)

// orderResult carries an asynchronous submission outcome back into the
// loop.
type orderResult struct {
	intent orderIntent
	price  float64
	res    ports.SubmitResult
	err    error
}

// New creates an engine. Unset config knobs get defaults.
func New(cfg Config, api ports.OrderAPI, store ports.TradeStorage, notify ports.Notifier) *Engine {
	setDefaults(&cfg)

	e := &Engine{
		cfg:       cfg,
		api:       api,
		store:     store,
		notify:    notify,
		ledger:    domain.NewLedger(),
		trades:    domain.NewTradeLog(cfg.TradeLogCap),
		quotes:    make(map[domain.Outcome]domain.Quote),
		cooldowns: make(map[string]time.Time),
		events:    make(chan any, 256),
		now:       time.Now,
	}
	e.series = map[domain.Outcome]*domain.RatioSeries{
		domain.OutcomeUp:   domain.NewRatioSeries(5 * time.Minute),
		domain.OutcomeDown: domain.NewRatioSeries(5 * time.Minute),
	}
	e.evaluator = &Evaluator{cfg: cfg}
	e.sizer = &Sizer{cfg: cfg}
	e.executor = newExecutor(cfg, api, e.emit, func() time.Time { return e.now() })
	e.hedger = &Hedger{cfg: cfg}
	e.rebalancer = &Rebalancer{cfg: cfg}
	e.balances = newBalanceCache(api, cfg.BalanceStaleAfter, func() time.Time { return e.now() })
	return e
}

// emit queues an event from a submission goroutine back into the loop.
func (e *Engine) emit(ev any) {
	e.events <- ev
}

// OnTick feeds a quote tick into the loop. Ticks are dropped when the
// queue is full; the next tick refreshes the same state anyway.
func (e *Engine) OnTick(t ports.TickEvent) {
	select {
	case e.events <- quoteEvent{tick: t}:
	default:
		slog.Debug("engine: tick dropped, queue full", "token", t.TokenID)
	}
}

// SetWindow switches the engine to a new window. The previous window is
// snapshotted and all ephemeral state reset before the first tick of the
// new one is processed.
func (e *Engine) SetWindow(w domain.Window) {
	e.events <- windowEvent{w: w}
}

// OnVisibilityRegained schedules a reconciliation pass, used after the
// quote stream reconnects.
func (e *Engine) OnVisibilityRegained() {
	select {
	case e.events <- reconcileEvent{}:
	default:
	}
}

// TradeLogSnapshot returns the latest n trade records, oldest first.
func (e *Engine) TradeLogSnapshot(n int) []domain.TradeRecord {
	return e.trades.Recent(n)
}

// Run consumes events until ctx is cancelled. Balance polling and
// reconciliation run on their own intervals inside the same loop.
func (e *Engine) Run(ctx context.Context) error {
	balTicker := time.NewTicker(e.cfg.BalancePollInterval)
	defer balTicker.Stop()
	reconTicker := time.NewTicker(e.cfg.ReconcileInterval)
	defer reconTicker.Stop()

	slog.Info("engine: starting",
		"threshold", e.cfg.BaseThreshold,
		"base_size", e.cfg.BaseSize,
		"order_type", string(e.cfg.OrderType),
		"sim", e.cfg.SimMode,
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-e.events:
			e.handle(ctx, ev)
		case <-balTicker.C:
			e.pollBalances(ctx)
		case <-reconTicker.C:
			e.reconcile(ctx)
		}
	}
}

func (e *Engine) handle(ctx context.Context, ev any) {
	switch ev := ev.(type) {
	case quoteEvent:
		e.handleQuote(ctx, ev.tick)
	case orderResult:
		e.handleOrderResult(ctx, ev)
	case windowEvent:
		e.rollover(ctx, ev.w)
	case reconcileEvent:
		e.reconcile(ctx)
	default:
		slog.Warn("engine: unknown event", "type", fmt.Sprintf("%T", ev))
	}
}

/// handleQuote is the main decision path: update state, let the
// rebalancer pre-empt, otherwise evaluate, size and submit the best
// candidate signal.
func (e *Engine) handleQuote(ctx context.Context, t ports.TickEvent) {
	outcome, ok := e.window.OutcomeFor(t.TokenID)
	if !ok {
		return
	}
	q := domain.Quote{Outcome: outcome, Bid: t.BestBid, Ask: t.BestAsk, Timestamp: t.At}
	if !q.Valid() {
		return
	}
	e.quotes[outcome] = q
	if r := domain.BuyRatio(q.Ask); r > 0 {
		e.series[outcome].Add(t.At, r)
	}

	now := e.now()
	if !e.window.Active(now) {
		return
	}
	ec := e.buildContext(now)
	if ec == nil {
		return
	}

	// Safety controller runs first and pre-empts normal signals.
	if act := e.rebalancer.Evaluate(ec, e.ledger); act != nil {
		e.executeRebalance(ctx, ec, act)
		return
	}

	sig, ok := e.evaluator.Best(ec, e.ledger, e.series, e.cooldowns)
	if !ok {
		return
	}

	size := e.sizer.RawSize(sig, ec)
	if sig.Side == domain.SideBuy {
		size = e.capToCollateral(ctx, size, sig.Price)
	}
	avail := e.sellAvailable(ctx, sig)
	size = NormalizeTradeSize(size, sig.Side, sig.Price, e.cfg.MaxSize, avail,
		e.cfg.MinShares, e.cfg.MinNotional, e.cfg.SizePrecision)
	if size <= 0 {
		return
	}

	in := orderIntent{
		Key:     signalKey(sig.Outcome, sig.Side),
		Outcome: sig.Outcome,
		Side:    sig.Side,
		TokenID: e.window.Token(sig.Outcome).TokenID,
		Price:   sig.Price,
		Size:    size,
		Reason:  sig.Key,
	}
	if e.submit(ctx, in) {
		e.cooldowns[in.Key] = now
	}
}

// submit runs one intent through the executor: gate, price selection,
// then either the live asynchronous submission or the simulated fill.
// Returns true when an order was actually sent (or simulated).
func (e *Engine) submit(ctx context.Context, in orderIntent) bool {
	if !e.executor.Gate(in) {
		return false
	}
	price, rejected := e.executor.PreparePrice(ctx, in)
	if rejected != nil {
		e.recordTrade(ctx, *rejected)
		return false
	}

	if e.cfg.SimMode {
		res := ports.SubmitResult{
			OrderID:    "sim-" + in.Key,
			FilledSize: in.Size,
			AvgPrice:   price,
		}
		e.handleOrderResult(ctx, orderResult{intent: in, price: price, res: res})
		return true
	}

	e.executor.Launch(ctx, in, price)
	return true
}

// executeRebalance sizes and submits a safety action from the
// InventoryRebalancer. Flip-triggered actions bypass the cooldown.
func (e *Engine) executeRebalance(ctx context.Context, ec *evalContext, act *Action) {
	now := ec.now
	key := signalKey(act.Outcome, act.Side)
	if !act.IgnoreCooldown {
		if last, ok := e.cooldowns[key]; ok && now.Sub(last) < e.cfg.SignalCooldown {
			return
		}
	}

	size := act.Size
	if act.Side == domain.SideSell {
		avail := e.sellAvailableFor(ctx, act.Outcome)
		size = NormalizeTradeSize(size, act.Side, act.Price, e.cfg.MaxRebalanceSize, avail,
			e.cfg.MinShares, e.cfg.MinNotional, e.cfg.SizePrecision)
	} else {
		size = e.capToCollateral(ctx, size, act.Price)
		size = NormalizeTradeSize(size, act.Side, act.Price, e.cfg.MaxRebalanceSize, 0,
			e.cfg.MinShares, e.cfg.MinNotional, e.cfg.SizePrecision)
	}
	if size <= 0 {
		return
	}

	slog.Info("engine: rebalance action",
		"kind", act.Kind,
		"outcome", string(act.Outcome),
		"side", string(act.Side),
		"price", fmt.Sprintf("%.2f", act.Price),
		"size", fmt.Sprintf("%.2f", size),
		"reason", act.Reason,
	)

	in := orderIntent{
		Key:     key,
		Outcome: act.Outcome,
		Side:    act.Side,
		TokenID: e.window.Token(act.Outcome).TokenID,
		Price:   act.Price,
		Size:    size,
		Reason:  act.Kind + ": " + act.Reason,
	}
	if e.submit(ctx, in) {
		e.cooldowns[key] = now
	}
}

// handleOrderResult finalizes an asynchronous submission: classify,
// update ledger on fills, then give the hedger a chance to fire.
func (e *Engine) handleOrderResult(ctx context.Context, ev orderResult) {
	fin := e.executor.Finish(ev.intent, ev.price, ev.res, ev.err)
	e.applyFill(fin.record)
	e.recordTrade(ctx, fin.record)

	if fin.refreshBalances {
		e.balances.Invalidate()
	}
	if fin.hedgeEligible {
		e.maybeHedge(ctx, fin.record)
	}
}

// applyFill mutates ledger and cash flow for filled/partial/sim records.
func (e *Engine) applyFill(rec domain.TradeRecord) {
	if !rec.Status.Mutates() || rec.FilledSize <= 0 {
		return
	}
	price := rec.AvgPrice
	if price <= 0 {
		price = rec.Price
	}
	if rec.Side == domain.SideBuy {
		e.ledger.ApplyBuy(rec.Outcome, rec.FilledSize, price)
	} else {
		e.ledger.ApplySell(rec.Outcome, rec.FilledSize, price)
	}
}

// maybeHedge places the conditional opposite-outcome buy after a
// confirmed non-hedge entry fill. Hedges never trigger further hedges.
func (e *Engine) maybeHedge(ctx context.Context, trigger domain.TradeRecord) {
	ec := e.buildContext(e.now())
	if ec == nil {
		return
	}
	in, ok := e.hedger.Evaluate(ec, trigger)
	if !ok {
		return
	}
	in.TokenID = e.window.Token(in.Outcome).TokenID
	in.Size = NormalizeTradeSize(e.capToCollateral(ctx, in.Size, in.Price), in.Side,
		in.Price, e.cfg.MaxSize, 0, e.cfg.MinShares, e.cfg.MinNotional, e.cfg.SizePrecision)
	if in.Size <= 0 {
		return
	}
	// A hedge suppressed by an active backoff is a missed protection
	// worth auditing, unlike routine signal gating.
	if !e.executor.Gate(in) {
		e.recordTrade(ctx, e.executor.Blocked(in, "backoff active"))
		return
	}
	if e.submit(ctx, in) {
		slog.Info("engine: hedge submitted",
			"outcome", string(in.Outcome),
			"size", fmt.Sprintf("%.2f", in.Size),
			"hedge_of", in.HedgeOf,
		)
	}
}

// capToCollateral bounds a BUY by the collateral the exchange reports as
// spendable. Without a usable balance the size passes through unchanged.
func (e *Engine) capToCollateral(ctx context.Context, size, price float64) float64 {
	if price <= 0 {
		return size
	}
	bal, ok := e.balances.Collateral(ctx)
	if !ok {
		return size
	}
	if affordable := bal.Available() / price; size > affordable {
		return affordable
	}
	return size
}

// sellAvailable returns the sellable share count for a SELL signal,
// preferring the exchange-side conditional balance over the local ledger.
func (e *Engine) sellAvailable(ctx context.Context, sig Signal) float64 {
	if sig.Side != domain.SideSell {
		return 0
	}
	return e.sellAvailableFor(ctx, sig.Outcome)
}

func (e *Engine) sellAvailableFor(ctx context.Context, o domain.Outcome) float64 {
	tokenID := e.window.Token(o).TokenID
	if bal, ok := e.balances.Conditional(ctx, tokenID); ok {
		return bal.Available()
	}
	return e.ledger.Shares(o)
}

// pollBalances refreshes collateral and both conditional balances.
func (e *Engine) pollBalances(ctx context.Context) {
	tokens := make([]string, 0, 2)
	for _, t := range e.window.Tokens {
		if t.TokenID != "" {
			tokens = append(tokens, t.TokenID)
		}
	}
	e.balances.RefreshAll(ctx, tokens)
}

// recordTrade appends, persists and reports one attempt record.
func (e *Engine) recordTrade(ctx context.Context, rec domain.TradeRecord) {
	e.trades.Append(rec)
	e.stats.record(rec.Status)

	if e.store != nil {
		if err := e.store.SaveTrade(ctx, rec); err != nil {
			slog.Warn("engine: error saving trade", "id", rec.ID, "err", err)
		}
	}
	if e.notify != nil {
		e.notify.TradeRecorded(rec)
	}

	slog.Info("engine: trade attempt",
		"outcome", string(rec.Outcome),
		"side", string(rec.Side),
		"status", string(rec.Status),
		"requested", fmt.Sprintf("%.2f", rec.RequestedSize),
		"filled", fmt.Sprintf("%.2f", rec.FilledSize),
		"price", fmt.Sprintf("%.2f", rec.Price),
		"hedge", rec.IsHedge,
		"reason", rec.Reason,
	)
}

// buildContext snapshots everything a decision needs for one tick.
// Returns nil until both outcomes have delivered a quote.
func (e *Engine) buildContext(now time.Time) *evalContext {
	up, okUp := e.quotes[domain.OutcomeUp]
	down, okDown := e.quotes[domain.OutcomeDown]
	if !okUp || !okDown {
		return nil
	}

	timeLeft := e.window.TimeLeftSec(now)
	ec := &evalContext{
		now:      now,
		window:   e.window,
		quotes:   map[domain.Outcome]domain.Quote{domain.OutcomeUp: up, domain.OutcomeDown: down},
		timeLeft: timeLeft,
		timeFrac: domain.TimeFraction(timeLeft, e.window.DurationSec()),
		vol: map[domain.Outcome]float64{
			domain.OutcomeUp:   domain.VolScore(up.Mid(), timeLeft),
			domain.OutcomeDown: domain.VolScore(down.Mid(), timeLeft),
		},
		favored: favoredOutcome(up, down),
	}
	return ec
}

// favoredOutcome is the side with the higher bid, falling back to the
// higher mid when a bid is missing.
func favoredOutcome(up, down domain.Quote) domain.Outcome {
	if up.Bid > 0 && down.Bid > 0 {
		if down.Bid > up.Bid {
			return domain.OutcomeDown
		}
		return domain.OutcomeUp
	}
	if down.Mid() > up.Mid() {
		return domain.OutcomeDown
	}
	return domain.OutcomeUp
}

// evalContext is the per-tick snapshot every decision component reads.
// It is never mutated after construction.
type evalContext struct {
	now      time.Time
	window   domain.Window
	quotes   map[domain.Outcome]domain.Quote
	timeLeft float64
	timeFrac float64
	vol      map[domain.Outcome]float64
	favored  domain.Outcome
}

func signalKey(o domain.Outcome, s domain.Side) string {
	return string(o) + "/" + string(s)
}

// windowStats rolls up per-window attempt counters for reporting.
type windowStats struct {
	attempts, fills, noFills, errors, skips int
}

func (s *windowStats) record(st domain.TradeStatus) {
	s.attempts++
	switch st {
	case domain.StatusFilled, domain.StatusPartial, domain.StatusSim:
		s.fills++
	case domain.StatusNoFill:
		s.noFills++
	case domain.StatusError:
		s.errors++
	case domain.StatusSkipped, domain.StatusBlocked:
		s.skips++
	}
}
