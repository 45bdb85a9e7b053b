package engine

import (
	"time"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

// Config holds every tunable of the decision/execution loop. Zero values
// are replaced by defaults in New.
type Config struct {
	// Signal gates.
	BaseThreshold     float64 // payout ratio floor before tightening
	BaseMinMomentum   float64 // ratio momentum floor per second
	MomentumWindowSec float64
	MinPrice          float64 // tradable price range
	MaxPrice          float64
	FavoredMinPrice   float64 // BUY price gate for the higher-priced side
	MaxSpread         float64
	SpreadTimePenalty float64
	SpreadVolPenalty  float64
	SpreadFloor       float64
	VolTightenK       float64 // k_vol: threshold tightening per vol score
	TimeTightenK      float64 // k_time: threshold tightening as expiry nears
	VolMomentumB      float64 // b_vol: momentum floor raise per vol score
	TimeMomentumB     float64 // b_time: momentum floor raise as expiry nears
	SignalCooldown    time.Duration
	NoLateBuySec      float64 // no BUY on the non-favored side inside this
	NoLateSellSec     float64 // no SELL of the favored side inside this
	DojiThreshold     float64 // |upMid - downMid| at or below is a doji
	AllowDojiBuy      bool
	DojiSizeMult      float64

	// Sizing.
	BaseSize        float64 // shares
	MaxSize         float64
	ScaleExponent   float64
	MinShares       float64
	MinNotional     float64
	SizePrecision   int
	VolSizeDampen   float64
	TimeSizeDampen  float64
	SizeDampenFloor float64

	// Execution.
	OrderType          domain.OrderType
	TickFallback       float64
	NudgeStep          float64
	NudgeMax           float64
	NoMatchRetry       time.Duration
	BalanceBackoffBuy  time.Duration
	BalanceBackoffSell time.Duration
	PriceBackoff       time.Duration
	MaxWaitFill        time.Duration
	PollInterval       time.Duration
	SimMode            bool

	// Hedging.
	HedgeEnabled  bool
	HedgeRatioMin float64
	HedgeRatioMax float64
	HedgeSizeMult float64

	// Rebalancing.
	LateWindowSec           float64
	SettlementBuffer        float64
	LateBufferMult          float64
	CapMult                 float64
	CapMultFloor            float64
	MaxRebalanceSize        float64
	RebalanceSizeMult       float64
	RebalancePolicy         string // sell-loser | buy-winner | balanced
	FlipRebalance           bool
	RebalanceIgnoreCooldown bool
	DojiOverrideSpread      bool

	// Operational.
	BalancePollInterval time.Duration
	BalanceStaleAfter   time.Duration
	ReconcileInterval   time.Duration
	TradeLogCap         int
}

// Rebalance policies.
const (
	PolicySellLoser = "sell-loser"
	PolicyBuyWinner = "buy-winner"
	PolicyBalanced  = "balanced"
)

// setDefaults fills in unset knobs with production defaults.
func setDefaults(cfg *Config) {
	if cfg.BaseThreshold <= 0 {
		cfg.BaseThreshold = 1.5
	}
	if cfg.MomentumWindowSec <= 0 {
		cfg.MomentumWindowSec = 30
	}
	if cfg.MinPrice <= 0 {
		cfg.MinPrice = 0.02
	}
	if cfg.MaxPrice <= 0 {
		cfg.MaxPrice = 0.98
	}
	if cfg.FavoredMinPrice <= 0 {
		cfg.FavoredMinPrice = 0.70
	}
	if cfg.MaxSpread <= 0 {
		cfg.MaxSpread = 0.06
	}
	if cfg.SpreadFloor <= 0 {
		cfg.SpreadFloor = 0.015
	}
	if cfg.SignalCooldown <= 0 {
		cfg.SignalCooldown = 12 * time.Second
	}
	if cfg.NoLateBuySec <= 0 {
		cfg.NoLateBuySec = 90
	}
	if cfg.NoLateSellSec <= 0 {
		cfg.NoLateSellSec = 45
	}
	if cfg.DojiThreshold <= 0 {
		cfg.DojiThreshold = 0.04
	}
	if cfg.DojiSizeMult <= 0 {
		cfg.DojiSizeMult = 0.5
	}
	if cfg.BaseSize <= 0 {
		cfg.BaseSize = 20
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 100
	}
	if cfg.ScaleExponent <= 0 {
		cfg.ScaleExponent = 0.5
	}
	if cfg.MinShares <= 0 {
		cfg.MinShares = 5
	}
	if cfg.MinNotional <= 0 {
		cfg.MinNotional = 1.0
	}
	if cfg.SizePrecision <= 0 {
		cfg.SizePrecision = 2
	}
	if cfg.SizeDampenFloor <= 0 {
		cfg.SizeDampenFloor = 0.25
	}
	if cfg.OrderType == "" {
		cfg.OrderType = domain.OrderFAK
	}
	if cfg.TickFallback <= 0 {
		cfg.TickFallback = 0.01
	}
	if cfg.NudgeStep <= 0 {
		cfg.NudgeStep = 0.01
	}
	if cfg.NudgeMax <= 0 {
		cfg.NudgeMax = 0.05
	}
	if cfg.NoMatchRetry <= 0 {
		cfg.NoMatchRetry = 3 * time.Second
	}
	if cfg.BalanceBackoffBuy <= 0 {
		cfg.BalanceBackoffBuy = 30 * time.Second
	}
	if cfg.BalanceBackoffSell <= 0 {
		cfg.BalanceBackoffSell = 10 * time.Second
	}
	if cfg.PriceBackoff <= 0 {
		cfg.PriceBackoff = 20 * time.Second
	}
	if cfg.MaxWaitFill <= 0 {
		cfg.MaxWaitFill = 5 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.HedgeRatioMin <= 0 {
		cfg.HedgeRatioMin = 2.0
	}
	if cfg.HedgeRatioMax <= 0 {
		cfg.HedgeRatioMax = 9.0
	}
	if cfg.HedgeSizeMult <= 0 {
		cfg.HedgeSizeMult = 0.5
	}
	if cfg.LateWindowSec <= 0 {
		cfg.LateWindowSec = 180
	}
	if cfg.SettlementBuffer <= 0 {
		cfg.SettlementBuffer = 0.5
	}
	if cfg.LateBufferMult <= 0 {
		cfg.LateBufferMult = 2.0
	}
	if cfg.CapMult <= 0 {
		cfg.CapMult = 0.95
	}
	if cfg.CapMultFloor <= 0 {
		cfg.CapMultFloor = 0.70
	}
	if cfg.MaxRebalanceSize <= 0 {
		cfg.MaxRebalanceSize = 150
	}
	if cfg.RebalanceSizeMult <= 0 {
		cfg.RebalanceSizeMult = 3.0
	}
	if cfg.RebalancePolicy == "" {
		cfg.RebalancePolicy = PolicySellLoser
	}
	if cfg.BalancePollInterval <= 0 {
		cfg.BalancePollInterval = 15 * time.Second
	}
	if cfg.BalanceStaleAfter <= 0 {
		cfg.BalanceStaleAfter = 10 * time.Second
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = 60 * time.Second
	}
	if cfg.TradeLogCap <= 0 {
		cfg.TradeLogCap = 512
	}
}
