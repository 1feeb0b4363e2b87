package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/digitbot/config"
	"github.com/alejandrodnm/digitbot/internal/adapters/csvfeed"
	"github.com/alejandrodnm/digitbot/internal/adapters/deriv"
	"github.com/alejandrodnm/digitbot/internal/adapters/notify"
	"github.com/alejandrodnm/digitbot/internal/adapters/storage"
	"github.com/alejandrodnm/digitbot/internal/application/engine/backtest"
	"github.com/alejandrodnm/digitbot/internal/domain"
	"github.com/alejandrodnm/digitbot/internal/ports"
)

func runBacktest(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage, console *notify.Console) error {
	slog.Info("=== BACKTEST MODE ===", "csv", cfg.Backtest.CSVPath, "workers", cfg.Backtest.Workers)

	source, closeSource, err := tickSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	markets := cfg.Backtest.Markets
	if len(markets) == 0 {
		markets = []string{cfg.Session.Market}
	}
	contracts := cfg.Backtest.ContractTypes
	if len(contracts) == 0 {
		contracts = []string{cfg.Session.ContractType}
	}

	// una descarga por mercado, compartida entre tipos de contrato
	var jobs []backtest.Job
	for _, market := range markets {
		points := cfg.SessionFor(market, contracts[0]).WithDefaults().DataPoints
		ticks, err := source.History(ctx, market, points)
		if err != nil {
			return fmt.Errorf("load ticks %s: %w", market, err)
		}
		slog.Info("backtest: ticks loaded", "market", market, "count", len(ticks))

		for _, ct := range contracts {
			jobs = append(jobs, backtest.Job{
				Name:   market + "/" + ct,
				Ticks:  ticks,
				Config: cfg.SessionFor(market, ct),
			})
		}
	}

	start := time.Now()
	results := backtest.RunBatch(ctx, jobs, cfg.Backtest.Workers)
	slog.Info("backtest: batch complete", "jobs", len(jobs), "elapsed", time.Since(start).Round(time.Millisecond))

	var (
		names []string
		ok    []domain.BacktestResult
	)
	for i, r := range results {
		if r.Err != nil {
			slog.Error("backtest failed", "job", r.Name, "err", r.Err)
			continue
		}
		console.PrintBacktest(r.Result)
		names = append(names, r.Name)
		ok = append(ok, r.Result)

		rec := domain.BacktestRecord{
			ID:        uuid.NewString(),
			CreatedAt: time.Now().UTC(),
			Config:    jobs[i].Config.WithDefaults(),
			Result:    r.Result,
		}
		if err := store.SaveBacktest(ctx, rec); err != nil {
			slog.Warn("backtest: save failed", "job", r.Name, "err", err)
		} else {
			slog.Info("backtest: saved", "job", r.Name, "id", rec.ID)
		}

		if cfg.Backtest.LedgerPath != "" {
			path := ledgerPathFor(cfg.Backtest.LedgerPath, r.Name, len(jobs) > 1)
			if err := csvfeed.WriteLedger(path, r.Result.Trades); err != nil {
				slog.Warn("backtest: ledger export failed", "path", path, "err", err)
			} else {
				slog.Info("backtest: ledger exported", "path", path, "trades", len(r.Result.Trades))
			}
		}
	}

	if len(ok) > 1 {
		console.PrintComparison(names, ok)
	}
	if len(ok) == 0 {
		return fmt.Errorf("all %d backtests failed", len(jobs))
	}
	return nil
}

// tickSource elige CSV si está configurado, si no el API de Deriv.
func tickSource(ctx context.Context, cfg *config.Config) (ports.TickSource, func(), error) {
	if cfg.Backtest.CSVPath != "" {
		return csvfeed.NewSource(cfg.Backtest.CSVPath, 0), func() {}, nil
	}
	client := deriv.NewClient(cfg.Deriv.Endpoint, cfg.Deriv.AppID, cfg.Deriv.APIToken)
	if err := client.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("connect deriv: %w", err)
	}
	return client, func() { client.Close() }, nil
}

// ledgerPathFor añade el nombre del job al fichero cuando hay varios.
func ledgerPathFor(base, job string, multi bool) string {
	if !multi {
		return base
	}
	ext := filepath.Ext(base)
	slug := strings.NewReplacer("/", "_", " ", "_").Replace(job)
	return strings.TrimSuffix(base, ext) + "_" + slug + ext
}
