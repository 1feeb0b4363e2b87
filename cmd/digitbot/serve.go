package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alejandrodnm/digitbot/config"
	"github.com/alejandrodnm/digitbot/internal/adapters/api"
	"github.com/alejandrodnm/digitbot/internal/adapters/storage"
)

const shutdownTimeout = 10 * time.Second

func runServe(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage) error {
	// sin fuente de ticks el API solo acepta requests con ticks en el body
	source, closeSource, err := tickSource(ctx, cfg)
	if err != nil {
		slog.Warn("serve: no tick source, requests must carry their ticks", "err", err)
		source, closeSource = nil, func() {}
	}
	defer closeSource()

	srv := api.New(store, store, source, api.Options{
		Defaults:       cfg.SessionDefault(),
		AllowedOrigins: cfg.API.AllowedOrigins,
		Workers:        cfg.Backtest.Workers,
		Release:        cfg.Log.Level != "debug",
	})

	httpSrv := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("=== API MODE ===", "addr", cfg.API.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("serve: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}
