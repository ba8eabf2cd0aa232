package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robotnikz/sunflow/pkg/collector"
	"github.com/robotnikz/sunflow/pkg/config"
	"github.com/robotnikz/sunflow/pkg/forecast"
	"github.com/robotnikz/sunflow/pkg/inverter"
	"github.com/robotnikz/sunflow/pkg/log"
	"github.com/robotnikz/sunflow/pkg/market"
	"github.com/robotnikz/sunflow/pkg/notify"
	"github.com/robotnikz/sunflow/pkg/retention"
	"github.com/robotnikz/sunflow/pkg/server"
	"github.com/robotnikz/sunflow/pkg/storage"

	"github.com/benbjohnson/clock"
	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
)

func main() {
	// init packages
	clk := clock.New()
	db := storage.Configured()
	cfg := config.Configured()

	inv := inverter.New(clk)
	mkt := market.New()
	fc := forecast.New(clk)
	sender := notify.NewDiscord()
	notifier := notify.New(sender, clk)
	hub := server.NewHub()

	// init server
	srv := server.Configured(db, cfg, inv, mkt, fc, sender, hub, clk)

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// If initialization inside lflag.Do failed, we wouldn't be here (panic).
	defer func() {
		if err := db.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		}
	}()

	// background jobs: inverter polling and retention rollup
	go collector.New(db, cfg, inv, notifier, clk, hub).Run(ctx)
	go retention.New(db, cfg, clk).Run(ctx)

	// Run will block until context is canceled or error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
