package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/alejandrodnm/updownbot/internal/engine"
)

// Config es la configuración completa del bot.
type Config struct {
	Signals   SignalsConfig   `yaml:"signals"`
	Sizing    SizingConfig    `yaml:"sizing"`
	Execution ExecutionConfig `yaml:"execution"`
	Hedge     HedgeConfig     `yaml:"hedge"`
	Rebalance RebalanceConfig `yaml:"rebalance"`
	Market    MarketConfig    `yaml:"market"`
	API       APIConfig       `yaml:"api"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

// SignalsConfig controla los gates de entrada y salida.
type SignalsConfig struct {
	BaseThreshold      float64 `yaml:"base_threshold"`
	BaseMinMomentum    float64 `yaml:"base_min_momentum"`
	MomentumWindowSec  float64 `yaml:"momentum_window_sec"`
	MinPrice           float64 `yaml:"min_price"`
	MaxPrice           float64 `yaml:"max_price"`
	FavoredMinPrice    float64 `yaml:"favored_min_price"`
	MaxSpread          float64 `yaml:"max_spread"`
	SpreadFloor        float64 `yaml:"spread_floor"`
	SpreadTimePenalty  float64 `yaml:"spread_time_penalty"`
	SpreadVolPenalty   float64 `yaml:"spread_vol_penalty"`
	VolTightenK        float64 `yaml:"vol_tighten_k"`
	TimeTightenK       float64 `yaml:"time_tighten_k"`
	VolMomentumB       float64 `yaml:"vol_momentum_b"`
	TimeMomentumB      float64 `yaml:"time_momentum_b"`
	CooldownSeconds    int     `yaml:"cooldown_seconds"`
	NoLateBuySec       float64 `yaml:"no_late_buy_sec"`
	NoLateSellSec      float64 `yaml:"no_late_sell_sec"`
	DojiThreshold      float64 `yaml:"doji_threshold"`
	AllowDojiBuy       bool    `yaml:"allow_doji_buy"`
	DojiSizeMult       float64 `yaml:"doji_size_mult"`
}

// SizingConfig controla el tamaño de las órdenes.
type SizingConfig struct {
	BaseSize        float64 `yaml:"base_size"`
	MaxSize         float64 `yaml:"max_size"`
	ScaleExponent   float64 `yaml:"scale_exponent"`
	MinShares       float64 `yaml:"min_shares"`
	MinNotional     float64 `yaml:"min_notional"`
	SizePrecision   int     `yaml:"size_precision"`
	VolSizeDampen   float64 `yaml:"vol_size_dampen"`
	TimeSizeDampen  float64 `yaml:"time_size_dampen"`
	SizeDampenFloor float64 `yaml:"size_dampen_floor"`
}

// ExecutionConfig controla la sumisión de órdenes y los backoffs.
type ExecutionConfig struct {
	OrderType              string  `yaml:"order_type"` // GTC | FOK | FAK
	TickFallback           float64 `yaml:"tick_fallback"`
	NudgeStep              float64 `yaml:"nudge_step"`
	NudgeMax               float64 `yaml:"nudge_max"`
	NoMatchRetrySeconds    int     `yaml:"no_match_retry_seconds"`
	BalanceBackoffBuySec   int     `yaml:"balance_backoff_buy_sec"`
	BalanceBackoffSellSec  int     `yaml:"balance_backoff_sell_sec"`
	PriceBackoffSeconds    int     `yaml:"price_backoff_seconds"`
	MaxWaitFillSeconds     int     `yaml:"max_wait_fill_seconds"`
	PollIntervalMillis     int     `yaml:"poll_interval_millis"`
	SimMode                bool    `yaml:"sim_mode"`
	BalancePollSeconds     int     `yaml:"balance_poll_seconds"`
	BalanceStaleAfterSec   int     `yaml:"balance_stale_after_sec"`
	ReconcileIntervalSec   int     `yaml:"reconcile_interval_sec"`
	TradeLogCap            int     `yaml:"trade_log_cap"`
}

// HedgeConfig controla las coberturas del lado opuesto.
type HedgeConfig struct {
	Enabled  bool    `yaml:"enabled"`
	RatioMin float64 `yaml:"ratio_min"`
	RatioMax float64 `yaml:"ratio_max"`
	SizeMult float64 `yaml:"size_mult"`
}

// RebalanceConfig controla el controlador de solvencia de fin de ventana.
type RebalanceConfig struct {
	LateWindowSec      float64 `yaml:"late_window_sec"`
	SettlementBuffer   float64 `yaml:"settlement_buffer"`
	LateBufferMult     float64 `yaml:"late_buffer_mult"`
	CapMult            float64 `yaml:"cap_mult"`
	CapMultFloor       float64 `yaml:"cap_mult_floor"`
	MaxRebalanceSize   float64 `yaml:"max_rebalance_size"`
	SizeMult           float64 `yaml:"size_mult"`
	Policy             string  `yaml:"policy"` // sell-loser | buy-winner | balanced
	FlipRebalance      bool    `yaml:"flip_rebalance"`
	IgnoreCooldown     bool    `yaml:"ignore_cooldown"`
	DojiOverrideSpread bool    `yaml:"doji_override_spread"`
}

// MarketConfig identifica la serie Up/Down a operar.
type MarketConfig struct {
	SeriesSlug string `yaml:"series_slug"` // p. ej. "bitcoin-up-or-down"
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	CLOBBase  string `yaml:"clob_base"`
	GammaBase string `yaml:"gamma_base"`
	WSBase    string `yaml:"ws_base"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Engine traduce la configuración YAML al Config del motor. Los knobs no
// seteados se quedan en cero y el motor aplica sus propios defaults.
func (c *Config) Engine() engine.Config {
	return engine.Config{
		BaseThreshold:     c.Signals.BaseThreshold,
		BaseMinMomentum:   c.Signals.BaseMinMomentum,
		MomentumWindowSec: c.Signals.MomentumWindowSec,
		MinPrice:          c.Signals.MinPrice,
		MaxPrice:          c.Signals.MaxPrice,
		FavoredMinPrice:   c.Signals.FavoredMinPrice,
		MaxSpread:         c.Signals.MaxSpread,
		SpreadTimePenalty: c.Signals.SpreadTimePenalty,
		SpreadVolPenalty:  c.Signals.SpreadVolPenalty,
		SpreadFloor:       c.Signals.SpreadFloor,
		VolTightenK:       c.Signals.VolTightenK,
		TimeTightenK:      c.Signals.TimeTightenK,
		VolMomentumB:      c.Signals.VolMomentumB,
		TimeMomentumB:     c.Signals.TimeMomentumB,
		SignalCooldown:    time.Duration(c.Signals.CooldownSeconds) * time.Second,
		NoLateBuySec:      c.Signals.NoLateBuySec,
		NoLateSellSec:     c.Signals.NoLateSellSec,
		DojiThreshold:     c.Signals.DojiThreshold,
		AllowDojiBuy:      c.Signals.AllowDojiBuy,
		DojiSizeMult:      c.Signals.DojiSizeMult,

		BaseSize:        c.Sizing.BaseSize,
		MaxSize:         c.Sizing.MaxSize,
		ScaleExponent:   c.Sizing.ScaleExponent,
		MinShares:       c.Sizing.MinShares,
		MinNotional:     c.Sizing.MinNotional,
		SizePrecision:   c.Sizing.SizePrecision,
		VolSizeDampen:   c.Sizing.VolSizeDampen,
		TimeSizeDampen:  c.Sizing.TimeSizeDampen,
		SizeDampenFloor: c.Sizing.SizeDampenFloor,

		OrderType:          domain.OrderType(c.Execution.OrderType),
		TickFallback:       c.Execution.TickFallback,
		NudgeStep:          c.Execution.NudgeStep,
		NudgeMax:           c.Execution.NudgeMax,
		NoMatchRetry:       time.Duration(c.Execution.NoMatchRetrySeconds) * time.Second,
		BalanceBackoffBuy:  time.Duration(c.Execution.BalanceBackoffBuySec) * time.Second,
		BalanceBackoffSell: time.Duration(c.Execution.BalanceBackoffSellSec) * time.Second,
		PriceBackoff:       time.Duration(c.Execution.PriceBackoffSeconds) * time.Second,
		MaxWaitFill:        time.Duration(c.Execution.MaxWaitFillSeconds) * time.Second,
		PollInterval:       time.Duration(c.Execution.PollIntervalMillis) * time.Millisecond,
		SimMode:            c.Execution.SimMode,

		HedgeEnabled:  c.Hedge.Enabled,
		HedgeRatioMin: c.Hedge.RatioMin,
		HedgeRatioMax: c.Hedge.RatioMax,
		HedgeSizeMult: c.Hedge.SizeMult,

		LateWindowSec:           c.Rebalance.LateWindowSec,
		SettlementBuffer:        c.Rebalance.SettlementBuffer,
		LateBufferMult:          c.Rebalance.LateBufferMult,
		CapMult:                 c.Rebalance.CapMult,
		CapMultFloor:            c.Rebalance.CapMultFloor,
		MaxRebalanceSize:        c.Rebalance.MaxRebalanceSize,
		RebalanceSizeMult:       c.Rebalance.SizeMult,
		RebalancePolicy:         c.Rebalance.Policy,
		FlipRebalance:           c.Rebalance.FlipRebalance,
		RebalanceIgnoreCooldown: c.Rebalance.IgnoreCooldown,
		DojiOverrideSpread:      c.Rebalance.DojiOverrideSpread,

		BalancePollInterval: time.Duration(c.Execution.BalancePollSeconds) * time.Second,
		BalanceStaleAfter:   time.Duration(c.Execution.BalanceStaleAfterSec) * time.Second,
		ReconcileInterval:   time.Duration(c.Execution.ReconcileIntervalSec) * time.Second,
		TradeLogCap:         c.Execution.TradeLogCap,
	}
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("UPDOWN_SERIES_SLUG"); v != "" {
		cfg.Market.SeriesSlug = v
	}
	if v := os.Getenv("UPDOWN_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if os.Getenv("UPDOWN_SIM") == "1" {
		cfg.Execution.SimMode = true
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
// Los knobs del motor tienen sus defaults en el propio motor.
func setDefaults(cfg *Config) {
	if cfg.Market.SeriesSlug == "" {
		cfg.Market.SeriesSlug = "bitcoin-up-or-down"
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "updownbot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// validate rechaza combinaciones que el motor no puede interpretar.
func (c *Config) validate() error {
	switch c.Execution.OrderType {
	case "", "GTC", "FOK", "FAK":
	default:
		return fmt.Errorf("invalid order_type %q", c.Execution.OrderType)
	}
	switch c.Rebalance.Policy {
	case "", engine.PolicySellLoser, engine.PolicyBuyWinner, engine.PolicyBalanced:
	default:
		return fmt.Errorf("invalid rebalance policy %q", c.Rebalance.Policy)
	}
	if c.Signals.MinPrice > 0 && c.Signals.MaxPrice > 0 && c.Signals.MinPrice >= c.Signals.MaxPrice {
		return fmt.Errorf("min_price %.2f must be below max_price %.2f",
			c.Signals.MinPrice, c.Signals.MaxPrice)
	}
	return nil
}
