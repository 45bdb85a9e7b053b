package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/alejandrodnm/updownbot/internal/ports"
)

// orderIntent is one fully-decided order before price selection.
type orderIntent struct {
	Key     string // outcome/side retry key
	Outcome domain.Outcome
	Side    domain.Side
	TokenID string
	Price   float64 // reference: ask for BUY, bid for SELL
	Size    float64
	IsHedge bool
	HedgeOf string
	Reason  string
}

// retryState tracks per-key backoff between attempts. Created lazily,
// nudge reset to zero on a fill, cleared on window rollover.
type retryState struct {
	nextAllowedAt  time.Time
	noMatchRetryAt time.Time
	nudge          float64
}

// finishResult is what Finish hands back to the engine loop.
type finishResult struct {
	record          domain.TradeRecord
	hedgeEligible   bool
	refreshBalances bool
}

// Executor owns the submission path: at most one order in flight across
// the whole engine, marketable price selection per side, and
// error-specific backoff. All state mutation happens on the engine loop
// goroutine; the spawned goroutine only performs the HTTP call.
type Executor struct {
	cfg  Config
	api  ports.OrderAPI
	emit func(ev any)
	now  func() time.Time

	busy          bool
	globalRetryAt time.Time
	retries       map[string]*retryState
	tickSizes     map[string]float64
	negRisk       map[string]bool
}

func newExecutor(cfg Config, api ports.OrderAPI, emit func(any), now func() time.Time) *Executor {
	return &Executor{
		cfg:       cfg,
		api:       api,
		emit:      emit,
		now:       now,
		retries:   make(map[string]*retryState),
		tickSizes: make(map[string]float64),
		negRisk:   make(map[string]bool),
	}
}

// Gate reports whether a new submission is currently allowed for this
// key: not busy, past the global retry-after, past the per-key timers.
func (x *Executor) Gate(in orderIntent) bool {
	now := x.now()
	if x.busy {
		return false
	}
	if now.Before(x.globalRetryAt) {
		return false
	}
	rs := x.retry(in.Key)
	if now.Before(rs.noMatchRetryAt) || now.Before(rs.nextAllowedAt) {
		return false
	}
	return true
}

// PreparePrice selects the submission price and validates the order.
// BUY rounds the reference up to the tick to stay marketable against the
// ask, SELL rounds down against the bid; the bounded per-key nudge is
// applied in the same marketable direction. A non-nil record means the
// attempt ends here (metadata error or validation skip).
func (x *Executor) PreparePrice(ctx context.Context, in orderIntent) (float64, *domain.TradeRecord) {
	tick, err := x.tickSize(ctx, in.TokenID)
	if err != nil {
		rec := x.baseRecord(in, in.Price)
		rec.Status = domain.StatusError
		rec.Reason = "tick size unavailable: " + err.Error()
		return 0, &rec
	}
	if _, err := x.tokenNegRisk(ctx, in.TokenID); err != nil {
		rec := x.baseRecord(in, in.Price)
		rec.Status = domain.StatusError
		rec.Reason = "neg-risk unavailable: " + err.Error()
		return 0, &rec
	}

	rs := x.retry(in.Key)
	var price float64
	if in.Side == domain.SideBuy {
		price = roundUpTo(in.Price, tick) + rs.nudge
	} else {
		price = roundDownTo(in.Price, tick) - rs.nudge
	}

	if price < x.cfg.MinPrice || price > x.cfg.MaxPrice {
		rec := x.baseRecord(in, price)
		rec.Status = domain.StatusSkipped
		rec.Reason = fmt.Sprintf("price %.3f outside tradable range", price)
		return 0, &rec
	}
	notional := price * in.Size
	if math.IsNaN(notional) || math.IsInf(notional, 0) || notional <= 0 {
		rec := x.baseRecord(in, price)
		rec.Status = domain.StatusSkipped
		rec.Reason = "invalid notional"
		return 0, &rec
	}
	if notional < x.cfg.MinNotional {
		rec := x.baseRecord(in, price)
		rec.Status = domain.StatusSkipped
		rec.Reason = fmt.Sprintf("notional %.2f below minimum", notional)
		return 0, &rec
	}
	return price, nil
}

// Launch submits asynchronously. The busy flag stays set until the
// result re-enters the loop and Finish runs.
func (x *Executor) Launch(ctx context.Context, in orderIntent, price float64) {
	x.busy = true
	go func() {
		res, err := x.api.Submit(ctx, ports.SubmitRequest{
			TokenID:      in.TokenID,
			Side:         in.Side,
			Price:        price,
			Size:         in.Size,
			OrderType:    x.cfg.OrderType,
			AwaitFill:    x.cfg.OrderType == domain.OrderGTC,
			MaxWait:      x.cfg.MaxWaitFill,
			PollInterval: x.cfg.PollInterval,
		})
		x.emit(orderResult{intent: in, price: price, res: res, err: err})
	}()
}

// Finish classifies the submission outcome, updates retry state and
// builds the attempt record. Runs on the engine loop goroutine.
func (x *Executor) Finish(in orderIntent, price float64, res ports.SubmitResult, err error) finishResult {
	x.busy = false
	now := x.now()
	rs := x.retry(in.Key)
	rec := x.baseRecord(in, price)

	var out finishResult
	switch {
	case err != nil && res.FilledSize > 0:
		// The order matched before the attempt failed (e.g. a cancel
		// after the fill-wait timed out). The fill is real and must
		// reach the ledger; only the remainder failed.
		rec.OrderID = res.OrderID
		rec.FilledSize = res.FilledSize
		rec.AvgPrice = res.AvgPrice
		if rec.AvgPrice <= 0 {
			rec.AvgPrice = price
		}
		rec.Status = domain.StatusPartial
		rec.Reason = joinReason(in.Reason, err.Error())
		rs.nudge = 0
		out.hedgeEligible = in.Side == domain.SideBuy && !in.IsHedge
	case err != nil:
		rec.Status = domain.StatusError
		rec.Reason = joinReason(in.Reason, err.Error())
		switch classifyError(err) {
		case errNoMatch:
			rs.noMatchRetryAt = now.Add(x.cfg.NoMatchRetry)
			x.bumpNudge(rs)
		case errInsufficient:
			backoff := x.cfg.BalanceBackoffSell
			if in.Side == domain.SideBuy {
				backoff = x.cfg.BalanceBackoffBuy
			}
			x.globalRetryAt = now.Add(backoff)
			out.refreshBalances = true
		case errPriceRange:
			x.globalRetryAt = now.Add(x.cfg.PriceBackoff)
		}
	case res.FilledSize <= 0:
		rec.Status = domain.StatusNoFill
		rec.OrderID = res.OrderID
		rs.noMatchRetryAt = now.Add(x.cfg.NoMatchRetry)
		x.bumpNudge(rs)
	default:
		rec.OrderID = res.OrderID
		rec.FilledSize = res.FilledSize
		rec.AvgPrice = res.AvgPrice
		if rec.AvgPrice <= 0 {
			rec.AvgPrice = price
		}
		if res.FilledSize >= in.Size {
			rec.Status = domain.StatusFilled
		} else {
			rec.Status = domain.StatusPartial
		}
		if x.cfg.SimMode {
			rec.Status = domain.StatusSim
		}
		rs.nudge = 0
		out.hedgeEligible = in.Side == domain.SideBuy && !in.IsHedge
	}

	out.record = rec
	return out
}

// Blocked builds the attempt record for a submission suppressed by an
// active backoff, so gated attempts still show up in the audit trail.
func (x *Executor) Blocked(in orderIntent, reason string) domain.TradeRecord {
	rec := x.baseRecord(in, in.Price)
	rec.Status = domain.StatusBlocked
	rec.Reason = joinReason(in.Reason, reason)
	return rec
}

// Reset drops all retry state and the global timer. Called on rollover.
func (x *Executor) Reset() {
	x.busy = false
	x.globalRetryAt = time.Time{}
	x.retries = make(map[string]*retryState)
}

// RetryState exposes a copy of the per-key state, for reporting.
func (x *Executor) RetryState(key string) (noMatchRetryAt time.Time, nudge float64) {
	rs := x.retry(key)
	return rs.noMatchRetryAt, rs.nudge
}

func (x *Executor) bumpNudge(rs *retryState) {
	rs.nudge += x.cfg.NudgeStep
	if rs.nudge > x.cfg.NudgeMax {
		rs.nudge = x.cfg.NudgeMax
	}
}

func (x *Executor) retry(key string) *retryState {
	rs, ok := x.retries[key]
	if !ok {
		rs = &retryState{}
		x.retries[key] = rs
	}
	return rs
}

func (x *Executor) baseRecord(in orderIntent, price float64) domain.TradeRecord {
	mode := domain.ModeLive
	if x.cfg.SimMode {
		mode = domain.ModeSim
	}
	return domain.TradeRecord{
		ID:            uuid.New().String(),
		Outcome:       in.Outcome,
		Side:          in.Side,
		RequestedSize: in.Size,
		Price:         price,
		Mode:          mode,
		Reason:        in.Reason,
		IsHedge:       in.IsHedge,
		HedgeOf:       in.HedgeOf,
		Timestamp:     x.now(),
	}
}

// tickSize returns the token's minimum price increment, cached after the
// first fetch.
func (x *Executor) tickSize(ctx context.Context, tokenID string) (float64, error) {
	if t, ok := x.tickSizes[tokenID]; ok {
		return t, nil
	}
	t, err := x.api.TickSize(ctx, tokenID)
	if err != nil {
		return 0, err
	}
	if t <= 0 {
		t = x.cfg.TickFallback
	}
	x.tickSizes[tokenID] = t
	return t, nil
}

func (x *Executor) tokenNegRisk(ctx context.Context, tokenID string) (bool, error) {
	if nr, ok := x.negRisk[tokenID]; ok {
		return nr, nil
	}
	nr, err := x.api.NegRisk(ctx, tokenID)
	if err != nil {
		return false, err
	}
	x.negRisk[tokenID] = nr
	return nr, nil
}

func joinReason(reason, detail string) string {
	if reason == "" {
		return detail
	}
	return reason + ": " + detail
}

func roundUpTo(v, tick float64) float64 {
	if tick <= 0 {
		return v
	}
	return math.Ceil(v/tick-1e-9) * tick
}

func roundDownTo(v, tick float64) float64 {
	if tick <= 0 {
		return v
	}
	return math.Floor(v/tick+1e-9) * tick
}
