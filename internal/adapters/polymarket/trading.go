package polymarket

// trading.go — Order execution via Polymarket CLOB API.
//
// Implements ports.OrderAPI. Authentication (L1/L2 headers, order
// signing) is handled by the session layer the client is constructed
// with and is out of scope here; this file owns request/response
// mapping and fill polling.

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/alejandrodnm/updownbot/internal/ports"
)

// clobOrderRequest is the JSON body sent to POST /order.
type clobOrderRequest struct {
	TokenID   string  `json:"tokenID"`
	Price     float64 `json:"price"`
	Size      float64 `json:"size"`
	Side      string  `json:"side"`
	OrderType string  `json:"orderType"`
	PostOnly  bool    `json:"postOnly,omitempty"`
}

type clobOrderResponse struct {
	ErrorMsg     string `json:"errorMsg"`
	OrderID      string `json:"orderID"`
	Status       string `json:"status"`
	TakingAmount string `json:"takingAmount"`
	MakingAmount string `json:"makingAmount"`
	AvgPrice     string `json:"avgPrice"`
	Success      bool   `json:"success"`
}

type clobOrderStatusResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Price        string `json:"price"`
}

type clobBalanceResponse struct {
	Balance   string `json:"balance"`
	Allowance string `json:"allowance"`
}

type clobTickSizeResponse struct {
	MinimumTickSize float64 `json:"minimum_tick_size"`
}

type clobNegRiskResponse struct {
	NegRisk bool `json:"neg_risk"`
}

// TradingClient implements ports.OrderAPI against the CLOB REST API.
type TradingClient struct {
	client *Client
}

// NewTradingClient wraps the rate-limited HTTP client.
func NewTradingClient(client *Client) *TradingClient {
	return &TradingClient{client: client}
}

// Submit posts one order and classifies the immediate response. For GTC
// orders with AwaitFill set, the resting order is polled until it fills
// or MaxWait elapses, then cancelled.
func (tc *TradingClient) Submit(ctx context.Context, req ports.SubmitRequest) (ports.SubmitResult, error) {
	body := clobOrderRequest{
		TokenID:   req.TokenID,
		Price:     req.Price,
		Size:      req.Size,
		Side:      string(req.Side),
		OrderType: string(req.OrderType),
		PostOnly:  req.PostOnly,
	}

	var resp clobOrderResponse
	url := tc.client.clobBase + "/order"
	if err := tc.client.post(ctx, tc.client.clobLimiter, url, body, &resp); err != nil {
		return ports.SubmitResult{}, fmt.Errorf("polymarket.Submit: post: %w", err)
	}
	if !resp.Success || resp.ErrorMsg != "" {
		return ports.SubmitResult{}, fmt.Errorf("polymarket.Submit: clob error: %s", resp.ErrorMsg)
	}

	result := ports.SubmitResult{
		OrderID:    resp.OrderID,
		Status:     resp.Status,
		FilledSize: parseShares(resp.TakingAmount),
		AvgPrice:   parseFloat(resp.AvgPrice),
	}

	if req.AwaitFill && req.OrderType == domain.OrderGTC && result.FilledSize < req.Size {
		return tc.awaitFill(ctx, req, result)
	}
	return result, nil
}

// awaitFill polls a resting GTC order until filled or MaxWait elapses.
// On timeout the remainder is cancelled and whatever matched is
// reported.
func (tc *TradingClient) awaitFill(ctx context.Context, req ports.SubmitRequest, result ports.SubmitResult) (ports.SubmitResult, error) {
	interval := req.PollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	deadline := time.Now().Add(req.MaxWait)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(interval):
		}

		var status clobOrderStatusResponse
		url := tc.client.clobBase + "/data/order/" + result.OrderID
		if err := tc.client.get(ctx, tc.client.clobLimiter, url, &status); err != nil {
			continue
		}
		result.FilledSize = parseShares(status.SizeMatched)
		result.Status = status.Status
		if result.FilledSize >= req.Size {
			return result, nil
		}
	}

	if err := tc.Cancel(ctx, result.OrderID); err != nil {
		return result, fmt.Errorf("polymarket.Submit: cancel after wait: %w", err)
	}
	return result, nil
}

// Cancel cancels a single order by its CLOB order ID.
func (tc *TradingClient) Cancel(ctx context.Context, orderID string) error {
	url := tc.client.clobBase + "/order/" + orderID
	if err := tc.client.del(ctx, tc.client.clobLimiter, url); err != nil {
		return fmt.Errorf("polymarket.Cancel %s: %w", orderID, err)
	}
	return nil
}

// GetBalance returns the collateral or per-token conditional balance
// with its allowance.
func (tc *TradingClient) GetBalance(ctx context.Context, asset ports.AssetType, tokenID string) (ports.Balance, error) {
	url := fmt.Sprintf("%s/balance-allowance?asset_type=%s", tc.client.clobBase, string(asset))
	if asset == ports.AssetConditional {
		url += "&token_id=" + tokenID
	}

	var resp clobBalanceResponse
	if err := tc.client.get(ctx, tc.client.clobLimiter, url, &resp); err != nil {
		return ports.Balance{}, fmt.Errorf("polymarket.GetBalance: %w", err)
	}
	return ports.Balance{
		Balance:   parseShares(resp.Balance),
		Allowance: parseShares(resp.Allowance),
	}, nil
}

// TickSize returns the token's minimum price increment.
func (tc *TradingClient) TickSize(ctx context.Context, tokenID string) (float64, error) {
	url := fmt.Sprintf("%s/tick-size?token_id=%s", tc.client.clobBase, tokenID)

	var resp clobTickSizeResponse
	if err := tc.client.get(ctx, tc.client.clobLimiter, url, &resp); err != nil {
		return 0, fmt.Errorf("polymarket.TickSize: %w", err)
	}
	return resp.MinimumTickSize, nil
}

// NegRisk reports whether the token trades through the NegRisk adapter.
func (tc *TradingClient) NegRisk(ctx context.Context, tokenID string) (bool, error) {
	url := fmt.Sprintf("%s/neg-risk?token_id=%s", tc.client.clobBase, tokenID)

	var resp clobNegRiskResponse
	if err := tc.client.get(ctx, tc.client.clobLimiter, url, &resp); err != nil {
		return false, fmt.Errorf("polymarket.NegRisk: %w", err)
	}
	return resp.NegRisk, nil
}

// parseShares converts a micro-unit string (e.g. "1000000") to shares.
func parseShares(s string) float64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Some endpoints already return decimal share counts.
		return parseFloat(s)
	}
	return float64(n) / 1_000_000
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

var _ ports.OrderAPI = (*TradingClient)(nil)
