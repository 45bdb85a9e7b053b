package ports

import (
	"context"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

// TradeStorage persists trade records and window settlement summaries.
type TradeStorage interface {
	SaveTrade(ctx context.Context, rec domain.TradeRecord) error

	SaveWindowSummary(ctx context.Context, sum domain.WindowSummary) error

	// RecentTrades returns the latest records, newest first.
	RecentTrades(ctx context.Context, limit int) ([]domain.TradeRecord, error)

	Close() error
}
