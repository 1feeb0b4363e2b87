package main

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/digitbot/config"
	"github.com/alejandrodnm/digitbot/internal/adapters/notify"
	"github.com/alejandrodnm/digitbot/internal/adapters/storage"
	"github.com/alejandrodnm/digitbot/internal/domain"
)

const reportLimit = 20

func runReport(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage, console *notify.Console) error {
	records, err := store.ListBacktests(ctx, reportLimit)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No saved backtests.")
	} else {
		names := make([]string, len(records))
		results := make([]domain.BacktestResult, len(records))
		for i, rec := range records {
			names[i] = rec.CreatedAt.Local().Format("01-02 15:04") + " " + rec.ID[:min(8, len(rec.ID))]
			results[i] = rec.Result
		}
		console.PrintComparison(names, results)
	}

	sessions, err := store.ListSessions(ctx, reportLimit)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	console.PrintSessions(sessions)

	// estadística sobre los dígitos guardados por las sesiones live
	sess := cfg.SessionFor(cfg.Session.Market, cfg.Session.ContractType).WithDefaults()
	digits, err := store.RecentDigits(ctx, sess.Market, sess.WindowSize)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	console.PrintDigitStats(sess.Market, domain.ComputeStats(digits, sess.Barrier))
	console.PrintIndicators(domain.ComputeIndicators(digits, domain.DefaultIndicatorSpan), domain.DetectPatterns(digits))
	return nil
}
