package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

// TickEvent is one best bid/ask update for a token.
type TickEvent struct {
	TokenID string
	BestBid float64
	BestAsk float64
	At      time.Time
}

// QuoteStream delivers tick events for subscribed tokens. Implementations
// reconnect on their own; a value on Reconnected signals that visibility
// was regained and a reconciliation pass is warranted.
type QuoteStream interface {
	// Subscribe replaces the current token subscription. Ticks for the
	// new tokens flow on the returned channel until ctx is cancelled.
	Subscribe(ctx context.Context, tokenIDs []string) (<-chan TickEvent, error)

	// Reconnected emits after the underlying connection is re-established.
	Reconnected() <-chan struct{}

	Close() error
}

// WindowSource resolves the currently active 15-minute window and its
// token pair.
type WindowSource interface {
	CurrentWindow(ctx context.Context) (domain.Window, error)
}
