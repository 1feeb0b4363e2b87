package ports

import (
	"context"

	"github.com/alejandrodnm/digitbot/internal/domain"
)

// BacktestStorage persiste los resultados de backtests.
type BacktestStorage interface {
	// SaveBacktest guarda el resumen y el ledger completo.
	SaveBacktest(ctx context.Context, rec domain.BacktestRecord) error

	// GetBacktest devuelve un backtest con sus trades; domain.ErrNotFound si no existe.
	GetBacktest(ctx context.Context, id string) (domain.BacktestRecord, error)

	// ListBacktests devuelve los más recientes primero, sin trades.
	ListBacktests(ctx context.Context, limit int) ([]domain.BacktestRecord, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
