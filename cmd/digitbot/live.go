package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alejandrodnm/digitbot/config"
	"github.com/alejandrodnm/digitbot/internal/adapters/deriv"
	"github.com/alejandrodnm/digitbot/internal/adapters/notify"
	"github.com/alejandrodnm/digitbot/internal/adapters/storage"
	"github.com/alejandrodnm/digitbot/internal/application/engine/live"
	"github.com/alejandrodnm/digitbot/internal/domain"
	"github.com/alejandrodnm/digitbot/internal/ports"
)

// stopFile: si existe, la sesión live se detiene limpiamente.
const stopFile = "STOP_LIVE"

func runLive(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage, console *notify.Console) error {
	if cfg.Deriv.APIToken == "" {
		return fmt.Errorf("live mode requires DERIV_API_TOKEN")
	}

	sess := cfg.SessionFor(cfg.Session.Market, cfg.Session.ContractType)

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════════╗")
	fmt.Println("║  ⚠️   LIVE TRADING MODE: REAL CONTRACTS ON THE BROKER     ║")
	fmt.Println("╚══════════════════════════════════════════════════════════╝")
	fmt.Printf("  Market:     %s\n", sess.Market)
	fmt.Printf("  Contract:   %s\n", sess.ContractType)
	fmt.Printf("  Stake:      $%.2f (martingale up to %d levels)\n", sess.StakeAmount, sess.MaxMartingaleLevel)
	fmt.Printf("  Stop loss:  $%.2f  Target: $%.2f\n", sess.StopLoss, sess.TargetProfit)
	fmt.Printf("  Stop file:  touch %s\n", stopFile)
	fmt.Println()
	fmt.Println("  Starting in 5 seconds... (Ctrl+C to abort)")

	select {
	case <-ctx.Done():
		slog.Info("live: aborted before start")
		return nil
	case <-time.After(5 * time.Second):
	}

	client := deriv.NewClient(cfg.Deriv.Endpoint, cfg.Deriv.AppID, cfg.Deriv.APIToken)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect deriv: %w", err)
	}
	defer client.Close()

	var notifier ports.Notifier = console
	var tg *notify.Telegram
	if cfg.Telegram.Enabled() {
		t, err := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, 2*time.Second)
		if err != nil {
			slog.Warn("live: telegram disabled", "err", err)
		} else {
			if len(cfg.Telegram.Events) > 0 {
				kinds := make([]domain.EventKind, len(cfg.Telegram.Events))
				for i, k := range cfg.Telegram.Events {
					kinds[i] = domain.EventKind(k)
				}
				t.OnlyKinds(kinds...)
			}
			t.StartAsync(0)
			defer t.Close()
			tg = t
			notifier = notify.Multi{console, t}
		}
	}

	eng, err := live.New(client, client, store, notifier, nil, live.Config{
		Session:           sess,
		Currency:          cfg.Live.Currency,
		DurationTicks:     cfg.Live.DurationTicks,
		MaxSubmitRetries:  cfg.Live.MaxSubmitRetries,
		RetryBackoff:      cfg.RetryBackoff(),
		MaxFailures:       cfg.Live.MaxFailures,
		Cooldown:          cfg.Cooldown(),
		UseAccountBalance: cfg.Live.UseAccountBalance,
		Warmup:            cfg.Live.Warmup,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go watchStopFile(ctx, cancel)
	if tg != nil && cfg.Telegram.Commands {
		tg.ListenForCommands(ctx, engineControl{eng})
	}

	slog.Info("=== LIVE MODE ===", "session", eng.ID(), "market", sess.Market, "contract", sess.ContractType)
	snap, err := eng.Run(ctx)
	console.PrintBacktest(snap.Result)
	if err != nil {
		return fmt.Errorf("live session %s: %w", eng.ID(), err)
	}
	slog.Info("live: session finished",
		"session", eng.ID(),
		"status", snap.Summary.Status,
		"stop_reason", snap.Summary.StopReason,
		"balance", fmt.Sprintf("$%.2f", snap.Summary.Balance),
	)
	return nil
}

// watchStopFile cancela la sesión cuando aparece el fichero STOP_LIVE.
func watchStopFile(ctx context.Context, cancel context.CancelFunc) {
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := os.Stat(stopFile); err == nil {
				slog.Warn("live: STOP_LIVE detected, stopping session")
				os.Remove(stopFile)
				cancel()
				return
			}
		}
	}
}

// engineControl expone el engine a los comandos de Telegram.
type engineControl struct {
	eng *live.Engine
}

func (c engineControl) Pause()         { c.eng.Pause() }
func (c engineControl) Resume()        { c.eng.Resume() }
func (c engineControl) BreakAfterWin() { c.eng.BreakAfterWin() }

func (c engineControl) Status() string {
	s := c.eng.Snapshot()
	return fmt.Sprintf("%s %s %s | bal $%.2f | %d trades (%dW/%dL) | level %d base $%.2f",
		s.Summary.Market, s.Summary.ContractType, s.Summary.Status,
		s.Summary.Balance, s.Summary.Trades, s.Summary.Wins, s.Summary.Losses,
		s.Staking.Level, s.Staking.BaseStake)
}
