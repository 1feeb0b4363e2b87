package storage

// sqlite.go: persistencia de backtests.
//
// Estrategia:
//   - `backtests`: una fila por ejecución con las columnas que se listan y el
//     resultado completo en JSON (sin trades).
//   - `backtest_trades`: el ledger, una fila por trade.
//   - Los tiempos se guardan como TEXT con ancho fijo para no depender del
//     formato por defecto del driver.
//   - Prune automático al arrancar: digit_history > 30d.

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/alejandrodnm/digitbot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS backtests (
    id             TEXT PRIMARY KEY,
    created_at     TEXT    NOT NULL,
    market         TEXT    NOT NULL,
    contract_type  TEXT    NOT NULL,
    total_trades   INTEGER NOT NULL DEFAULT 0,
    win_rate       REAL    NOT NULL DEFAULT 0,
    net_profit     REAL    NOT NULL DEFAULT 0,
    profit_factor  REAL,               -- NULL cuando no hay pérdidas
    stop_reason    TEXT    NOT NULL DEFAULT '',
    config_json    TEXT    NOT NULL,
    result_json    TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS backtest_trades (
    backtest_id     TEXT    NOT NULL,
    idx             INTEGER NOT NULL,
    tick_index      INTEGER NOT NULL,
    timestamp       TEXT    NOT NULL,
    contract_type   TEXT    NOT NULL,
    pred_digit      INTEGER NOT NULL,
    pred_barrier    INTEGER NOT NULL,
    direction       TEXT    NOT NULL DEFAULT '',
    confidence      REAL    NOT NULL DEFAULT 0,
    actual          INTEGER NOT NULL,
    won             INTEGER NOT NULL DEFAULT 0,
    stake           REAL    NOT NULL,
    profit_or_loss  REAL    NOT NULL,
    balance_after   REAL    NOT NULL,
    level           INTEGER NOT NULL DEFAULT 0,
    contract_id     TEXT    NOT NULL DEFAULT '',
    shadow_mismatch INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (backtest_id, idx)
);

CREATE INDEX IF NOT EXISTS idx_backtests_created ON backtests(created_at DESC);
`

const (
	retentionDigits = 30 * 24 * time.Hour // historial de dígitos: 30 días

	// ancho fijo para que el orden de texto sea cronológico
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// SQLiteStorage implementa ports.BacktestStorage y ports.SessionStorage usando
// SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica los schemas y limpia datos antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	for _, ddl := range []string{schema, liveSchema} {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
		}
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// SaveBacktest persiste el resumen y el ledger en una sola transacción.
func (s *SQLiteStorage) SaveBacktest(ctx context.Context, rec domain.BacktestRecord) error {
	cfgJSON, err := json.Marshal(rec.Config)
	if err != nil {
		return fmt.Errorf("storage.SaveBacktest: marshal config: %w", err)
	}
	res := rec.Result
	res.Trades = nil
	resJSON, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("storage.SaveBacktest: marshal result: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveBacktest: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO backtests
			(id, created_at, market, contract_type, total_trades, win_rate,
			 net_profit, profit_factor, stop_reason, config_json, result_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, formatTime(rec.CreatedAt), rec.Result.Market, string(rec.Result.ContractType),
		rec.Result.TotalTrades, rec.Result.WinRate, rec.Result.NetProfit,
		nullFloat(rec.Result.ProfitFactor), string(rec.Result.StopReason),
		string(cfgJSON), string(resJSON),
	); err != nil {
		return fmt.Errorf("storage.SaveBacktest: insert %s: %w", rec.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO backtest_trades (backtest_id, `+tradeColumns+`)
		VALUES (?, `+tradePlaceholders+`)`)
	if err != nil {
		return fmt.Errorf("storage.SaveBacktest: prepare: %w", err)
	}
	defer stmt.Close()

	for _, t := range rec.Result.Trades {
		args := append([]any{rec.ID}, tradeArgs(t)...)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("storage.SaveBacktest: insert trade %d: %w", t.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveBacktest: commit: %w", err)
	}
	return nil
}

// GetBacktest devuelve un backtest con su ledger completo.
func (s *SQLiteStorage) GetBacktest(ctx context.Context, id string) (domain.BacktestRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, profit_factor, config_json, result_json
		FROM backtests WHERE id = ?`, id)
	rec, err := scanBacktest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BacktestRecord{}, fmt.Errorf("storage.GetBacktest %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.BacktestRecord{}, fmt.Errorf("storage.GetBacktest %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tradeColumns+` FROM backtest_trades WHERE backtest_id = ? ORDER BY idx`, id)
	if err != nil {
		return domain.BacktestRecord{}, fmt.Errorf("storage.GetBacktest %s: query trades: %w", id, err)
	}
	defer rows.Close()
	trades, err := scanTrades(rows)
	if err != nil {
		return domain.BacktestRecord{}, fmt.Errorf("storage.GetBacktest %s: %w", id, err)
	}
	rec.Result.Trades = trades
	return rec, nil
}

// ListBacktests devuelve los más recientes primero, sin trades.
func (s *SQLiteStorage) ListBacktests(ctx context.Context, limit int) ([]domain.BacktestRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, profit_factor, config_json, result_json
		FROM backtests ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.ListBacktests: query: %w", err)
	}
	defer rows.Close()

	var out []domain.BacktestRecord
	for rows.Next() {
		rec, err := scanBacktest(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.ListBacktests: scan row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBacktest(r rowScanner) (domain.BacktestRecord, error) {
	var rec domain.BacktestRecord
	var createdAt, cfgJSON, resJSON string
	var pf sql.NullFloat64
	if err := r.Scan(&rec.ID, &createdAt, &pf, &cfgJSON, &resJSON); err != nil {
		return rec, err
	}
	rec.CreatedAt = parseTime(createdAt)
	if err := json.Unmarshal([]byte(cfgJSON), &rec.Config); err != nil {
		return rec, fmt.Errorf("decode config: %w", err)
	}
	if err := json.Unmarshal([]byte(resJSON), &rec.Result); err != nil {
		return rec, fmt.Errorf("decode result: %w", err)
	}
	// profit factor no viaja en el JSON: NULL ↔ +Inf
	if pf.Valid {
		rec.Result.ProfitFactor = pf.Float64
	} else {
		rec.Result.ProfitFactor = math.Inf(1)
	}
	return rec, nil
}

const tradeColumns = `idx, tick_index, timestamp, contract_type, pred_digit, pred_barrier,
	direction, confidence, actual, won, stake, profit_or_loss, balance_after, level,
	contract_id, shadow_mismatch`

const tradePlaceholders = `?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?`

func tradeArgs(t domain.TradeRecord) []any {
	return []any{
		t.Index, t.TickIndex, formatTime(t.Timestamp), string(t.ContractType),
		int(t.Prediction.Digit), int(t.Prediction.Barrier), string(t.Prediction.Direction),
		t.Confidence, int(t.Actual), boolToInt(t.Won), t.Stake, t.ProfitOrLoss,
		t.BalanceAfter, t.MartingaleLevel, t.ContractID, boolToInt(t.ShadowMismatch),
	}
}

func scanTrades(rows *sql.Rows) ([]domain.TradeRecord, error) {
	var out []domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		var ts, ct, dir string
		var digit, barrier, actual, won, mismatch int
		if err := rows.Scan(
			&t.Index, &t.TickIndex, &ts, &ct, &digit, &barrier,
			&dir, &t.Confidence, &actual, &won, &t.Stake, &t.ProfitOrLoss,
			&t.BalanceAfter, &t.MartingaleLevel, &t.ContractID, &mismatch,
		); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Timestamp = parseTime(ts)
		t.ContractType = domain.ContractType(ct)
		t.Actual = domain.Digit(actual)
		t.Won = won == 1
		t.ShadowMismatch = mismatch == 1
		t.Prediction = domain.Prediction{
			ContractType: t.ContractType,
			Digit:        domain.Digit(digit),
			Barrier:      domain.Digit(barrier),
			Direction:    domain.Direction(dir),
			Confidence:   t.Confidence,
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// pruneOld elimina datos antiguos para mantener la DB ligera.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionDigits)
	s.db.ExecContext(ctx, `DELETE FROM digit_history WHERE at < ?`, formatTime(cutoff))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func nullFloat(f float64) any {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil
	}
	return f
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
