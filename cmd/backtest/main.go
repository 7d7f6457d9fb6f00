// Command backtest drives the engine against a live Binance futures feed,
// running an MA-cross strategy and recording fills/equity to disk.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backtestengine/internal/adapter"
	"backtestengine/internal/analytics"
	"backtestengine/internal/config"
	"backtestengine/internal/engine"
	"backtestengine/internal/logger"
	"backtestengine/internal/strategy"
	"backtestengine/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "backtest:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel())
	if err != nil {
		return err
	}
	defer log.Sync()

	eng := engine.New(cfg.BuildEngineConfig(), cfg.BuildBrokerConfig(), cfg.BuildGuardConfig(), log)

	feed := adapter.NewBinanceAdapter(log)
	if err := feed.Subscribe(cfg.App.Symbols); err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := feed.Connect(ctx); err != nil {
		return err
	}
	defer feed.Close()
	feed.Start()

	recorder, err := analytics.NewFillRecorder("fills.csv", log)
	if err != nil {
		return err
	}
	defer recorder.Close()

	hub := telemetry.NewHub(log)
	go hub.Run()
	go func() {
		_ = hub.ListenAndServe(":8090")
	}()

	strat := strategy.NewMaCross(cfg.App.Symbols[0], 0.01)

	go func() {
		<-ctx.Done()
		time.Sleep(2 * time.Second)
		feed.Close()
	}()

	result, err := eng.Run(feed, strat)
	if err != nil {
		return err
	}

	for _, f := range result.Broker.Fills() {
		recorder.Record(f)
		hub.BroadcastFill(f)
	}

	equityPoints := make([]analytics.EquityPoint, 0, len(strat.EquityCurve))
	for _, p := range strat.EquityCurve {
		equityPoints = append(equityPoints, analytics.EquityPoint{TimeMs: p.TimeMs, Equity: p.Equity})
	}
	equityRecorder, err := analytics.NewEquityRecorder("equity.csv")
	if err != nil {
		return err
	}
	defer equityRecorder.Close()
	if err := equityRecorder.WriteAll(equityPoints); err != nil {
		return err
	}

	log.Info("run complete", logger.F("events", result.EventCounts), logger.F("fills", len(result.Broker.Fills())))
	return nil
}
