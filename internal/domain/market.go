package domain

import "time"

// Outcome is one of the two complementary sides of an Up/Down market.
type Outcome string

const (
	OutcomeUp   Outcome = "UP"
	OutcomeDown Outcome = "DOWN"
)

// Opposite returns the other side of the market.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeUp {
		return OutcomeDown
	}
	return OutcomeUp
}

// Token is one tradable side of the market with its stable CLOB token ID.
type Token struct {
	TokenID string
	Outcome Outcome
}

// Quote is the current best bid/ask for one outcome.
// Bid and ask are probabilities in (0,1).
type Quote struct {
	Outcome   Outcome
	Bid       float64
	Ask       float64
	Timestamp time.Time
}

// Spread returns ask - bid.
func (q Quote) Spread() float64 {
	return q.Ask - q.Bid
}

// Mid returns the midpoint, falling back to the side that is present.
func (q Quote) Mid() float64 {
	switch {
	case q.Bid > 0 && q.Ask > 0:
		return (q.Bid + q.Ask) / 2
	case q.Bid > 0:
		return q.Bid
	default:
		return q.Ask
	}
}

// Valid reports whether the quote carries usable prices.
func (q Quote) Valid() bool {
	return q.Bid > 0 || q.Ask > 0
}

// Window is one 15-minute Up/Down market.
type Window struct {
	Slug      string
	StartTime time.Time
	EndTime   time.Time
	Tokens    [2]Token
}

// Token returns the token for the given outcome.
func (w Window) Token(o Outcome) Token {
	for _, t := range w.Tokens {
		if t.Outcome == o {
			return t
		}
	}
	return w.Tokens[0]
}

// OutcomeFor maps a token ID back to its outcome. The second return is
// false when the token does not belong to this window.
func (w Window) OutcomeFor(tokenID string) (Outcome, bool) {
	for _, t := range w.Tokens {
		if t.TokenID == tokenID {
			return t.Outcome, true
		}
	}
	return "", false
}

// TimeLeftSec returns seconds until expiry, floored at 0.
func (w Window) TimeLeftSec(now time.Time) float64 {
	left := w.EndTime.Sub(now).Seconds()
	if left < 0 {
		return 0
	}
	return left
}

// DurationSec returns the full window length in seconds.
func (w Window) DurationSec() float64 {
	return w.EndTime.Sub(w.StartTime).Seconds()
}

// Active reports whether now falls inside the window.
func (w Window) Active(now time.Time) bool {
	return !w.StartTime.IsZero() && !now.Before(w.StartTime) && now.Before(w.EndTime)
}
