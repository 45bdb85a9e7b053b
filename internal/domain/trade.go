package domain

import "time"

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType is the time-in-force for a submission.
type OrderType string

const (
	OrderGTC OrderType = "GTC" // good-till-cancelled
	OrderFOK OrderType = "FOK" // fill-or-kill
	OrderFAK OrderType = "FAK" // fill-and-kill
)

// TradeStatus classifies the outcome of one submission attempt.
type TradeStatus string

const (
	StatusFilled  TradeStatus = "filled"
	StatusPartial TradeStatus = "partial"
	StatusNoFill  TradeStatus = "no-fill"
	StatusSkipped TradeStatus = "skipped"
	StatusBlocked TradeStatus = "blocked"
	StatusError   TradeStatus = "error"
	StatusSim     TradeStatus = "sim"
)

// Mutates reports whether a record with this status updates the ledger.
func (s TradeStatus) Mutates() bool {
	return s == StatusFilled || s == StatusPartial || s == StatusSim
}

// TradeMode distinguishes real submissions from simulated ones.
type TradeMode string

const (
	ModeLive TradeMode = "live"
	ModeSim  TradeMode = "sim"
)

// TradeRecord is one entry of the append-only attempt log. Every attempt
// is recorded, including skips and errors.
type TradeRecord struct {
	ID            string
	Outcome       Outcome
	Side          Side
	RequestedSize float64
	FilledSize    float64
	Price         float64
	AvgPrice      float64
	Status        TradeStatus
	Mode          TradeMode
	Reason        string
	OrderID       string
	IsHedge       bool
	HedgeOf       string
	Timestamp     time.Time
}

// TradeLog is a capped ring buffer of trade records. Appends never fail;
// old entries are overwritten once the capacity is reached.
type TradeLog struct {
	buf   []TradeRecord
	next  int
	total int
}

// NewTradeLog creates a log that retains the last capacity records.
func NewTradeLog(capacity int) *TradeLog {
	if capacity <= 0 {
		capacity = 256
	}
	return &TradeLog{buf: make([]TradeRecord, 0, capacity)}
}

// Append adds a record, evicting the oldest when full.
func (t *TradeLog) Append(rec TradeRecord) {
	if len(t.buf) < cap(t.buf) {
		t.buf = append(t.buf, rec)
	} else {
		t.buf[t.next] = rec
		t.next = (t.next + 1) % cap(t.buf)
	}
	t.total++
}

// Total returns the number of records ever appended.
func (t *TradeLog) Total() int {
	return t.total
}

// Recent returns up to n records, newest last.
func (t *TradeLog) Recent(n int) []TradeRecord {
	size := len(t.buf)
	if n > size {
		n = size
	}
	out := make([]TradeRecord, 0, n)
	for i := size - n; i < size; i++ {
		idx := (t.next + i) % size
		out = append(out, t.buf[idx])
	}
	return out
}
