package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/digitbot/config"
	"github.com/alejandrodnm/digitbot/internal/adapters/notify"
	"github.com/alejandrodnm/digitbot/internal/adapters/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	backtest := flag.Bool("backtest", false, "replay historical ticks and report the strategy result")
	live := flag.Bool("live", false, "trade the configured market on the broker (REAL MONEY on a real account)")
	serve := flag.Bool("serve", false, "start the JSON API")
	report := flag.Bool("report", false, "print saved backtests, live sessions and digit stats")
	csvPath := flag.String("csv", "", "CSV tick file for -backtest (overrides config)")
	ledgerPath := flag.String("ledger", "", "export the backtest ledger to this CSV path (overrides config)")
	trades := flag.Bool("trades", false, "print every trade in backtest reports")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
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
	if *csvPath != "" {
		cfg.Backtest.CSVPath = *csvPath
	}
	if *ledgerPath != "" {
		cfg.Backtest.LedgerPath = *ledgerPath
	}
	if *trades {
		cfg.Backtest.PrintTrades = true
	}
	setupLogger(cfg.Log)

	slog.Info("digitbot starting",
		"config", *configPath,
		"market", cfg.Session.Market,
		"contract", cfg.Session.ContractType,
		"backtest", *backtest,
		"live", *live,
		"serve", *serve,
		"report", *report,
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	console := notify.NewConsole(cfg.Backtest.PrintTrades)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case *backtest:
		err = runBacktest(ctx, cfg, store, console)
	case *live:
		err = runLive(ctx, cfg, store, console)
	case *serve:
		err = runServe(ctx, cfg, store)
	case *report:
		err = runReport(ctx, cfg, store, console)
	default:
		flag.Usage()
		return
	}
	if err != nil {
		slog.Error("digitbot exited with error", "err", err)
		store.Close()
		os.Exit(1)
	}

	slog.Info("digitbot stopped cleanly")
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
