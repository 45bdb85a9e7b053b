package polymarket

// stream.go — Market data over the CLOB websocket.
//
// One connection per subscription, reconnected with exponential backoff
// and jitter. Book snapshots and price changes are reduced to best
// bid/ask tick events; consumers see a flat stream and a reconnect
// signal for reconciliation.

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alejandrodnm/updownbot/internal/ports"
)

const (
	defaultWSBase = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

	reconnectBase   = time.Second
	reconnectMax    = 30 * time.Second
	reconnectJitter = 0.2
	readTimeout     = 60 * time.Second
)

// MarketStream implements ports.QuoteStream over the CLOB market
// websocket channel.
type MarketStream struct {
	url         string
	reconnected chan struct{}
	cancel      context.CancelFunc
}

// NewMarketStream creates a stream client. An empty url uses production.
func NewMarketStream(url string) *MarketStream {
	if url == "" {
		url = defaultWSBase
	}
	return &MarketStream{
		url:         url,
		reconnected: make(chan struct{}, 1),
	}
}

type wsSubscribe struct {
	AssetIDs []string `json:"assets_ids"`
	Type     string   `json:"type"`
}

type wsMessage struct {
	EventType string        `json:"event_type"`
	AssetID   string        `json:"asset_id"`
	Timestamp string        `json:"timestamp"`
	Bids      []wsBookLevel `json:"bids"`
	Asks      []wsBookLevel `json:"asks"`
	BestBid   string        `json:"best_bid"`
	BestAsk   string        `json:"best_ask"`
}

type wsBookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// Subscribe replaces any previous subscription and streams ticks for the
// given tokens until ctx is cancelled.
func (s *MarketStream) Subscribe(ctx context.Context, tokenIDs []string) (<-chan ports.TickEvent, error) {
	if len(tokenIDs) == 0 {
		return nil, fmt.Errorf("polymarket.Subscribe: no tokens")
	}
	if s.cancel != nil {
		s.cancel()
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	out := make(chan ports.TickEvent, 128)
	go s.run(runCtx, tokenIDs, out)
	return out, nil
}

// Reconnected emits after the connection is re-established.
func (s *MarketStream) Reconnected() <-chan struct{} {
	return s.reconnected
}

// Close stops the current subscription.
func (s *MarketStream) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// run dials, reads, and reconnects until ctx is cancelled.
func (s *MarketStream) run(ctx context.Context, tokenIDs []string, out chan<- ports.TickEvent) {
	defer close(out)

	attempt := 0
	first := true
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
		if err != nil {
			slog.Warn("stream: dial failed", "attempt", attempt+1, "err", err)
			if !s.wait(ctx, attempt) {
				return
			}
			attempt++
			continue
		}

		if err := conn.WriteJSON(wsSubscribe{AssetIDs: tokenIDs, Type: "market"}); err != nil {
			slog.Warn("stream: subscribe failed", "err", err)
			conn.Close()
			if !s.wait(ctx, attempt) {
				return
			}
			attempt++
			continue
		}

		// Any subscription after the first is a reconnect, even when the
		// redial succeeded without a failed attempt in between.
		if !first {
			select {
			case s.reconnected <- struct{}{}:
			default:
			}
		}
		first = false
		attempt = 0
		slog.Info("stream: connected", "tokens", len(tokenIDs))

		s.readLoop(ctx, conn, out)
		conn.Close()
	}
}

func (s *MarketStream) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- ports.TickEvent) {
	for {
		if ctx.Err() != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			slog.Warn("stream: read failed", "err", err)
			return
		}

		for _, tick := range parseTicks(data) {
			select {
			case out <- tick:
			case <-ctx.Done():
				return
			}
		}
	}
}

// parseTicks reduces a websocket frame to best bid/ask events. Frames
// may carry a single message or an array of them.
func parseTicks(data []byte) []ports.TickEvent {
	var msgs []wsMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		var single wsMessage
		if err := json.Unmarshal(data, &single); err != nil {
			return nil
		}
		msgs = []wsMessage{single}
	}

	ticks := make([]ports.TickEvent, 0, len(msgs))
	for _, m := range msgs {
		if m.AssetID == "" {
			continue
		}
		var bid, ask float64
		switch m.EventType {
		case "book":
			bid, ask = bestOfBook(m.Bids, m.Asks)
		case "price_change":
			bid = parseFloat(m.BestBid)
			ask = parseFloat(m.BestAsk)
		default:
			continue
		}
		if bid <= 0 && ask <= 0 {
			continue
		}
		ticks = append(ticks, ports.TickEvent{
			TokenID: m.AssetID,
			BestBid: bid,
			BestAsk: ask,
			At:      parseWSTimestamp(m.Timestamp),
		})
	}
	return ticks
}

// bestOfBook extracts the highest bid and lowest ask from book levels.
func bestOfBook(bids, asks []wsBookLevel) (bestBid, bestAsk float64) {
	for _, lvl := range bids {
		if p := parseFloat(lvl.Price); p > bestBid {
			bestBid = p
		}
	}
	for _, lvl := range asks {
		p := parseFloat(lvl.Price)
		if p > 0 && (bestAsk == 0 || p < bestAsk) {
			bestAsk = p
		}
	}
	return bestBid, bestAsk
}

func parseWSTimestamp(s string) time.Time {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC()
	}
	return time.Now().UTC()
}

// wait sleeps the backoff delay for the given attempt, with ±20% jitter.
func (s *MarketStream) wait(ctx context.Context, attempt int) bool {
	delay := reconnectBase << attempt
	if delay > reconnectMax || delay <= 0 {
		delay = reconnectMax
	}
	factor := 1 + (rand.Float64()*2-1)*reconnectJitter
	delay = time.Duration(float64(delay) * factor)

	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}

var _ ports.QuoteStream = (*MarketStream)(nil)
