package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/updownbot/config"
	"github.com/alejandrodnm/updownbot/internal/adapters/notify"
	"github.com/alejandrodnm/updownbot/internal/adapters/polymarket"
	"github.com/alejandrodnm/updownbot/internal/adapters/storage"
	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/alejandrodnm/updownbot/internal/engine"
	"github.com/alejandrodnm/updownbot/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	sim := flag.Bool("sim", false, "simulate fills instead of submitting orders")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	history := flag.Int("history", 0, "print the last N persisted trades and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *sim {
		cfg.Execution.SimMode = true
	}
	setupLogger(cfg.Log)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	notifier := notify.NewConsole(*verbose)

	if *history > 0 {
		recs, err := store.RecentTrades(context.Background(), *history)
		if err != nil {
			slog.Error("failed to load history", "err", err)
			os.Exit(1)
		}
		notifier.PrintRecent(recs)
		return
	}

	slog.Info("updownbot starting",
		"config", *configPath,
		"series", cfg.Market.SeriesSlug,
		"sim", cfg.Execution.SimMode,
	)

	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase)
	trading := polymarket.NewTradingClient(client)
	windows := polymarket.NewWindowClient(client, cfg.Market.SeriesSlug)
	stream := polymarket.NewMarketStream(cfg.API.WSBase)
	defer stream.Close()

	eng := engine.New(cfg.Engine(), trading, store, notifier)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := runWindows(ctx, eng, windows, stream); err != nil && ctx.Err() == nil {
			slog.Error("window loop exited", "err", err)
			cancel()
		}
	}()
	go watchReconnects(ctx, eng, stream)

	if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("engine exited with error", "err", err)
		os.Exit(1)
	}

	// Tail of the in-memory attempt log, so a shutdown leaves the last
	// activity on screen without querying the database.
	notifier.PrintRecent(eng.TradeLogSnapshot(20))
	slog.Info("updownbot stopped cleanly")
}

// runWindows resolves the active 15-minute window, subscribes the quote
// stream for its token pair, and rolls the engine over when it expires.
func runWindows(ctx context.Context, eng *engine.Engine, windows ports.WindowSource, stream ports.QuoteStream) error {
	var current domain.Window

	for {
		w, err := windows.CurrentWindow(ctx)
		if err != nil {
			slog.Warn("window resolve failed, retrying", "err", err)
			if !sleepCtx(ctx, 5*time.Second) {
				return ctx.Err()
			}
			continue
		}

		if w.Slug != current.Slug {
			current = w
			eng.SetWindow(w)

			tokens := []string{w.Tokens[0].TokenID, w.Tokens[1].TokenID}
			ticks, err := stream.Subscribe(ctx, tokens)
			if err != nil {
				return err
			}
			go pumpTicks(ctx, eng, ticks)

			slog.Info("window active",
				"slug", w.Slug,
				"start", w.StartTime.Format(time.RFC3339),
				"end", w.EndTime.Format(time.RFC3339),
			)
		}

		// Wake shortly after expiry to pick up the next window.
		wait := time.Until(current.EndTime) + 2*time.Second
		if wait < time.Second {
			wait = time.Second
		}
		if !sleepCtx(ctx, wait) {
			return ctx.Err()
		}
	}
}

// pumpTicks forwards stream events into the engine until the channel
// closes. Reconnects trigger a reconciliation pass.
func pumpTicks(ctx context.Context, eng *engine.Engine, ticks <-chan ports.TickEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-ticks:
			if !ok {
				return
			}
			eng.OnTick(t)
		}
	}
}

// watchReconnects schedules a position reconciliation every time the
// stream comes back after a drop.
func watchReconnects(ctx context.Context, eng *engine.Engine, stream ports.QuoteStream) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stream.Reconnected():
			slog.Info("stream reconnected, scheduling reconcile")
			eng.OnVisibilityRegained()
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
