package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

// AssetType selects which balance GetBalance reports.
type AssetType string

const (
	AssetCollateral  AssetType = "COLLATERAL"
	AssetConditional AssetType = "CONDITIONAL"
)

// SubmitRequest describes one order submission to the CLOB.
type SubmitRequest struct {
	TokenID      string
	Side         domain.Side
	Price        float64
	Size         float64 // shares
	OrderType    domain.OrderType
	PostOnly     bool
	AwaitFill    bool
	MaxWait      time.Duration
	PollInterval time.Duration
}

// SubmitResult is the CLOB response for a submission.
type SubmitResult struct {
	OrderID    string
	Status     string
	FilledSize float64
	AvgPrice   float64
}

// Balance is an exchange-reported balance/allowance pair.
type Balance struct {
	Balance   float64
	Allowance float64
}

// Available returns min(balance, allowance) — what can actually trade.
func (b Balance) Available() float64 {
	if b.Allowance < b.Balance {
		return b.Allowance
	}
	return b.Balance
}

// OrderAPI submits and manages orders on the CLOB. TickSize and NegRisk
// are order metadata needed before the first submission per token; callers
// cache the results.
type OrderAPI interface {
	Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error)

	Cancel(ctx context.Context, orderID string) error

	// GetBalance returns the collateral balance, or the conditional
	// balance of tokenID when asset is AssetConditional.
	GetBalance(ctx context.Context, asset AssetType, tokenID string) (Balance, error)

	TickSize(ctx context.Context, tokenID string) (float64, error)

	NegRisk(ctx context.Context, tokenID string) (bool, error)
}
