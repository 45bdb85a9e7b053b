package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/alejandrodnm/updownbot/internal/ports"
)

// fakeAPI scripts OrderAPI responses for executor tests.
type fakeAPI struct {
	submitRes ports.SubmitResult
	submitErr error
	tickSize  float64
	tickErr   error
	balance   *ports.Balance // nil means an effectively unlimited 1000/1000
	submits   int
}

func (f *fakeAPI) Submit(ctx context.Context, req ports.SubmitRequest) (ports.SubmitResult, error) {
	f.submits++
	return f.submitRes, f.submitErr
}

func (f *fakeAPI) Cancel(ctx context.Context, orderID string) error { return nil }

func (f *fakeAPI) GetBalance(ctx context.Context, asset ports.AssetType, tokenID string) (ports.Balance, error) {
	if f.balance != nil {
		return *f.balance, nil
	}
	return ports.Balance{Balance: 1000, Allowance: 1000}, nil
}

func (f *fakeAPI) TickSize(ctx context.Context, tokenID string) (float64, error) {
	if f.tickErr != nil {
		return 0, f.tickErr
	}
	return f.tickSize, nil
}

func (f *fakeAPI) NegRisk(ctx context.Context, tokenID string) (bool, error) { return false, nil }

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestExecutor(api *fakeAPI) (*Executor, *fakeClock, chan any) {
	var cfg Config
	setDefaults(&cfg)
	clock := &fakeClock{t: testNow}
	events := make(chan any, 16)
	x := newExecutor(cfg, api, func(ev any) { events <- ev }, clock.now)
	return x, clock, events
}

func buyIntent() orderIntent {
	return orderIntent{
		Key:     signalKey(domain.OutcomeUp, domain.SideBuy),
		Outcome: domain.OutcomeUp,
		Side:    domain.SideBuy,
		TokenID: "tok-up",
		Price:   0.40,
		Size:    20,
	}
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		msg  string
		want errClass
	}{
		{"no match for order", errNoMatch},
		{"FOK order not filled", errNoMatch},
		{"order couldnt be fully filled", errNoMatch},
		{"not enough balance / allowance", errInsufficient},
		{"insufficient funds", errInsufficient},
		{"invalid price 0.991", errPriceRange},
		{"price out of range", errPriceRange},
		{"connection reset by peer", errGeneric},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, classifyError(errors.New(tc.msg)), tc.msg)
	}
}

func TestExecutor_NoMatchNudgeProgression(t *testing.T) {
	api := &fakeAPI{tickSize: 0.01}
	x, clock, _ := newTestExecutor(api)
	in := buyIntent()
	ctx := context.Background()

	price, rec := x.PreparePrice(ctx, in)
	require.Nil(t, rec)
	assert.InDelta(t, 0.40, price, 1e-9)

	// First no-match: nudge climbs one step and the key backs off.
	x.Finish(in, price, ports.SubmitResult{}, errors.New("no match"))
	_, nudge := x.RetryState(in.Key)
	assert.InDelta(t, 0.01, nudge, 1e-9)
	assert.False(t, x.Gate(in), "blocked until the no-match retry timer passes")

	clock.advance(4 * time.Second)
	require.True(t, x.Gate(in))
	price, rec = x.PreparePrice(ctx, in)
	require.Nil(t, rec)
	assert.InDelta(t, 0.41, price, 1e-9, "retry price carries the nudge")

	// Nudge saturates at NudgeMax after repeated misses.
	for i := 0; i < 6; i++ {
		x.Finish(in, price, ports.SubmitResult{}, errors.New("no match"))
		clock.advance(4 * time.Second)
	}
	_, nudge = x.RetryState(in.Key)
	assert.InDelta(t, 0.05, nudge, 1e-9)

	price, rec = x.PreparePrice(ctx, in)
	require.Nil(t, rec)
	assert.InDelta(t, 0.45, price, 1e-9)
}

func TestExecutor_NudgeResetsOnFill(t *testing.T) {
	api := &fakeAPI{tickSize: 0.01}
	x, clock, _ := newTestExecutor(api)
	in := buyIntent()

	x.Finish(in, 0.40, ports.SubmitResult{}, errors.New("no match"))
	clock.advance(4 * time.Second)

	fin := x.Finish(in, 0.41, ports.SubmitResult{OrderID: "o1", FilledSize: 20, AvgPrice: 0.41}, nil)
	assert.Equal(t, domain.StatusFilled, fin.record.Status)
	_, nudge := x.RetryState(in.Key)
	assert.Equal(t, 0.0, nudge)
}

func TestExecutor_InsufficientBalanceGlobalBackoff(t *testing.T) {
	api := &fakeAPI{tickSize: 0.01}
	x, clock, _ := newTestExecutor(api)
	in := buyIntent()

	fin := x.Finish(in, 0.40, ports.SubmitResult{}, errors.New("not enough balance / allowance"))
	assert.Equal(t, domain.StatusError, fin.record.Status)
	assert.True(t, fin.refreshBalances)

	// Global: a different key is blocked too.
	other := orderIntent{Key: signalKey(domain.OutcomeDown, domain.SideSell)}
	assert.False(t, x.Gate(other))

	// BUY uses the longer backoff (30s default).
	clock.advance(20 * time.Second)
	assert.False(t, x.Gate(other))
	clock.advance(11 * time.Second)
	assert.True(t, x.Gate(other))
}

func TestExecutor_PriceRangeBackoff(t *testing.T) {
	api := &fakeAPI{tickSize: 0.01}
	x, clock, _ := newTestExecutor(api)
	in := buyIntent()

	x.Finish(in, 0.40, ports.SubmitResult{}, errors.New("invalid price"))
	assert.False(t, x.Gate(in))
	clock.advance(21 * time.Second)
	assert.True(t, x.Gate(in))
}

func TestExecutor_LaunchSerializesSubmissions(t *testing.T) {
	api := &fakeAPI{tickSize: 0.01, submitRes: ports.SubmitResult{OrderID: "o1", FilledSize: 20}}
	x, _, events := newTestExecutor(api)
	in := buyIntent()

	x.Launch(context.Background(), in, 0.40)
	assert.False(t, x.Gate(in), "busy while a submission is in flight")

	ev := <-events
	res, ok := ev.(orderResult)
	require.True(t, ok)
	x.Finish(res.intent, res.price, res.res, res.err)
	assert.True(t, x.Gate(in))
	assert.Equal(t, 1, api.submits)
}

func TestExecutor_PartialVersusFilled(t *testing.T) {
	api := &fakeAPI{tickSize: 0.01}
	x, _, _ := newTestExecutor(api)
	in := buyIntent()

	fin := x.Finish(in, 0.40, ports.SubmitResult{OrderID: "o1", FilledSize: 12, AvgPrice: 0.40}, nil)
	assert.Equal(t, domain.StatusPartial, fin.record.Status)
	assert.True(t, fin.hedgeEligible)

	fin = x.Finish(in, 0.40, ports.SubmitResult{OrderID: "o2", FilledSize: 20, AvgPrice: 0.40}, nil)
	assert.Equal(t, domain.StatusFilled, fin.record.Status)
}

func TestExecutor_PartialFillSurvivesSubmitError(t *testing.T) {
	api := &fakeAPI{tickSize: 0.01}
	x, _, _ := newTestExecutor(api)
	in := buyIntent()

	// A GTC wait can time out with real fills already matched; the
	// failed cancel then surfaces as an error next to those fills. The
	// fills must reach the ledger anyway.
	fin := x.Finish(in, 0.40,
		ports.SubmitResult{OrderID: "o1", FilledSize: 12, AvgPrice: 0.40},
		errors.New("cancel order o1: connection reset by peer"))

	assert.Equal(t, domain.StatusPartial, fin.record.Status)
	assert.Equal(t, "o1", fin.record.OrderID)
	assert.InDelta(t, 12.0, fin.record.FilledSize, 1e-9)
	assert.InDelta(t, 0.40, fin.record.AvgPrice, 1e-9)
	assert.True(t, fin.record.Status.Mutates(), "partial fills update the ledger")
	assert.True(t, fin.hedgeEligible)
	assert.True(t, x.Gate(in), "a fill clears the attempt without backoff")
}

func TestExecutor_NoFillAndErrorNeverHedgeEligible(t *testing.T) {
	api := &fakeAPI{tickSize: 0.01}
	x, clock, _ := newTestExecutor(api)
	in := buyIntent()

	fin := x.Finish(in, 0.40, ports.SubmitResult{OrderID: "o1"}, nil)
	assert.Equal(t, domain.StatusNoFill, fin.record.Status)
	assert.False(t, fin.hedgeEligible)

	clock.advance(4 * time.Second)
	fin = x.Finish(in, 0.40, ports.SubmitResult{}, errors.New("connection reset by peer"))
	assert.Equal(t, domain.StatusError, fin.record.Status)
	assert.False(t, fin.hedgeEligible)
}

func TestExecutor_HedgeFillNotHedgeEligible(t *testing.T) {
	api := &fakeAPI{tickSize: 0.01}
	x, _, _ := newTestExecutor(api)
	in := buyIntent()
	in.IsHedge = true

	fin := x.Finish(in, 0.40, ports.SubmitResult{OrderID: "o1", FilledSize: 20}, nil)
	assert.False(t, fin.hedgeEligible, "hedges never chain")
}

func TestExecutor_PreparePriceSkipsOutOfRange(t *testing.T) {
	api := &fakeAPI{tickSize: 0.01}
	x, _, _ := newTestExecutor(api)
	in := buyIntent()
	in.Price = 0.985 // rounds up to 0.99, above MaxPrice

	_, rec := x.PreparePrice(context.Background(), in)
	require.NotNil(t, rec)
	assert.Equal(t, domain.StatusSkipped, rec.Status)
}

func TestExecutor_PreparePriceMetadataError(t *testing.T) {
	api := &fakeAPI{tickErr: errors.New("boom")}
	x, _, _ := newTestExecutor(api)

	_, rec := x.PreparePrice(context.Background(), buyIntent())
	require.NotNil(t, rec)
	assert.Equal(t, domain.StatusError, rec.Status)
}

func TestExecutor_SellPriceRoundsDownMinusNudge(t *testing.T) {
	api := &fakeAPI{tickSize: 0.01}
	x, clock, _ := newTestExecutor(api)
	in := orderIntent{
		Key:     signalKey(domain.OutcomeUp, domain.SideSell),
		Outcome: domain.OutcomeUp,
		Side:    domain.SideSell,
		TokenID: "tok-up",
		Price:   0.758,
		Size:    10,
	}

	price, rec := x.PreparePrice(context.Background(), in)
	require.Nil(t, rec)
	assert.InDelta(t, 0.75, price, 1e-9)

	x.Finish(in, price, ports.SubmitResult{}, errors.New("no match"))
	clock.advance(4 * time.Second)
	price, rec = x.PreparePrice(context.Background(), in)
	require.Nil(t, rec)
	assert.InDelta(t, 0.74, price, 1e-9, "sell nudges down toward the bid")
}

func TestExecutor_ResetClearsState(t *testing.T) {
	api := &fakeAPI{tickSize: 0.01}
	x, _, _ := newTestExecutor(api)
	in := buyIntent()

	x.Finish(in, 0.40, ports.SubmitResult{}, errors.New("invalid price"))
	require.False(t, x.Gate(in))

	x.Reset()
	assert.True(t, x.Gate(in))
	_, nudge := x.RetryState(in.Key)
	assert.Equal(t, 0.0, nudge)
}
