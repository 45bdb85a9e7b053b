package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/updownbot/internal/ports"
)

// balanceCache caches exchange-reported balances. Conditional balances
// are preferred over the local ledger for SELL sizing because they
// reflect exchange-side truth.
type balanceCache struct {
	api        ports.OrderAPI
	staleAfter time.Duration
	now        func() time.Time

	collateral  balanceEntry
	conditional map[string]balanceEntry // token ID
}

type balanceEntry struct {
	bal       ports.Balance
	fetchedAt time.Time
}

func newBalanceCache(api ports.OrderAPI, staleAfter time.Duration, now func() time.Time) *balanceCache {
	return &balanceCache{
		api:         api,
		staleAfter:  staleAfter,
		now:         now,
		conditional: make(map[string]balanceEntry),
	}
}

// Conditional returns the cached conditional balance for tokenID,
// refreshing synchronously when the cache is stale. ok is false when no
// usable value exists.
func (b *balanceCache) Conditional(ctx context.Context, tokenID string) (ports.Balance, bool) {
	if tokenID == "" {
		return ports.Balance{}, false
	}
	entry, exists := b.conditional[tokenID]
	if exists && b.now().Sub(entry.fetchedAt) < b.staleAfter {
		return entry.bal, true
	}

	bal, err := b.api.GetBalance(ctx, ports.AssetConditional, tokenID)
	if err != nil {
		slog.Warn("engine: conditional balance fetch failed", "token", tokenID, "err", err)
		if exists {
			return entry.bal, true
		}
		return ports.Balance{}, false
	}
	b.conditional[tokenID] = balanceEntry{bal: bal, fetchedAt: b.now()}
	return bal, true
}

// Collateral returns the cached collateral balance, refreshing when
// stale.
func (b *balanceCache) Collateral(ctx context.Context) (ports.Balance, bool) {
	if !b.collateral.fetchedAt.IsZero() && b.now().Sub(b.collateral.fetchedAt) < b.staleAfter {
		return b.collateral.bal, true
	}
	bal, err := b.api.GetBalance(ctx, ports.AssetCollateral, "")
	if err != nil {
		slog.Warn("engine: collateral balance fetch failed", "err", err)
		if !b.collateral.fetchedAt.IsZero() {
			return b.collateral.bal, true
		}
		return ports.Balance{}, false
	}
	b.collateral = balanceEntry{bal: bal, fetchedAt: b.now()}
	return bal, true
}

// RefreshAll force-refreshes collateral and the given conditional
// tokens. Failures keep the previous entries.
func (b *balanceCache) RefreshAll(ctx context.Context, tokenIDs []string) {
	if bal, err := b.api.GetBalance(ctx, ports.AssetCollateral, ""); err == nil {
		b.collateral = balanceEntry{bal: bal, fetchedAt: b.now()}
	}
	for _, id := range tokenIDs {
		if bal, err := b.api.GetBalance(ctx, ports.AssetConditional, id); err == nil {
			b.conditional[id] = balanceEntry{bal: bal, fetchedAt: b.now()}
		}
	}
}

// Invalidate marks everything stale so the next read refetches. Used
// after an insufficient-balance rejection.
func (b *balanceCache) Invalidate() {
	b.collateral.fetchedAt = time.Time{}
	for id, entry := range b.conditional {
		entry.fetchedAt = time.Time{}
		b.conditional[id] = entry
	}
}

// Reset drops all entries. Called on window rollover.
func (b *balanceCache) Reset() {
	b.collateral = balanceEntry{}
	b.conditional = make(map[string]balanceEntry)
}
