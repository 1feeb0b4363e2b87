package storage

// live.go: persistencia de sesiones de trading en vivo.
//
// Tablas:
//   sessions: una fila por sesión (UPSERT en cada cambio de estado)
//   live_trades: trades liquidados por el broker
//   digit_history: cada dígito observado, para estadísticas fuera de sesión

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/digitbot/internal/domain"
)

const liveSchema = `
CREATE TABLE IF NOT EXISTS sessions (
    id               TEXT PRIMARY KEY,
    market           TEXT    NOT NULL,
    contract_type    TEXT    NOT NULL,
    status           TEXT    NOT NULL,
    stop_reason      TEXT    NOT NULL DEFAULT '',
    started_at       TEXT    NOT NULL,
    ended_at         TEXT    NOT NULL DEFAULT '',
    starting_balance REAL    NOT NULL DEFAULT 0,
    balance          REAL    NOT NULL DEFAULT 0,
    trades           INTEGER NOT NULL DEFAULT 0,
    wins             INTEGER NOT NULL DEFAULT 0,
    losses           INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS sessions_started ON sessions(started_at DESC);

CREATE TABLE IF NOT EXISTS live_trades (
    session_id      TEXT    NOT NULL,
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
    PRIMARY KEY (session_id, idx)
);

CREATE TABLE IF NOT EXISTS digit_history (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    market  TEXT    NOT NULL,
    at      TEXT    NOT NULL,
    price   REAL    NOT NULL,
    digit   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS digit_history_market ON digit_history(market, id DESC);
`

// ─── Sessions ────────────────────────────────────────────────────────────────

// SaveSession inserta o actualiza el resumen de la sesión.
func (s *SQLiteStorage) SaveSession(ctx context.Context, sum domain.SessionSummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions
			(id, market, contract_type, status, stop_reason, started_at, ended_at,
			 starting_balance, balance, trades, wins, losses)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status      = excluded.status,
			stop_reason = excluded.stop_reason,
			ended_at    = excluded.ended_at,
			balance     = excluded.balance,
			trades      = excluded.trades,
			wins        = excluded.wins,
			losses      = excluded.losses`,
		sum.ID, sum.Market, string(sum.ContractType), string(sum.Status), string(sum.StopReason),
		formatTime(sum.StartedAt), formatTime(sum.EndedAt),
		sum.StartingBalance, sum.Balance, sum.Trades, sum.Wins, sum.Losses,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveSession %s: %w", sum.ID, err)
	}
	return nil
}

// GetSession devuelve domain.ErrNotFound si la sesión no existe.
func (s *SQLiteStorage) GetSession(ctx context.Context, id string) (domain.SessionSummary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sum, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return sum, fmt.Errorf("storage.GetSession %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return sum, fmt.Errorf("storage.GetSession %s: %w", id, err)
	}
	return sum, nil
}

// ListSessions devuelve las más recientes primero.
func (s *SQLiteStorage) ListSessions(ctx context.Context, limit int) ([]domain.SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.ListSessions: query: %w", err)
	}
	defer rows.Close()

	var out []domain.SessionSummary
	for rows.Next() {
		sum, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.ListSessions: scan row: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

const sessionColumns = `id, market, contract_type, status, stop_reason, started_at, ended_at,
	starting_balance, balance, trades, wins, losses`

func scanSession(r rowScanner) (domain.SessionSummary, error) {
	var sum domain.SessionSummary
	var ct, status, reason, started, ended string
	err := r.Scan(&sum.ID, &sum.Market, &ct, &status, &reason, &started, &ended,
		&sum.StartingBalance, &sum.Balance, &sum.Trades, &sum.Wins, &sum.Losses)
	if err != nil {
		return sum, err
	}
	sum.ContractType = domain.ContractType(ct)
	sum.Status = domain.SessionStatus(status)
	sum.StopReason = domain.StopReason(reason)
	sum.StartedAt = parseTime(started)
	sum.EndedAt = parseTime(ended)
	return sum, nil
}

// ─── Trades ──────────────────────────────────────────────────────────────────

// SaveLiveTrade guarda un trade liquidado. Reescribir el mismo índice lo reemplaza.
func (s *SQLiteStorage) SaveLiveTrade(ctx context.Context, sessionID string, t domain.TradeRecord) error {
	args := append([]any{sessionID}, tradeArgs(t)...)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO live_trades (session_id, `+tradeColumns+`) VALUES (?, `+tradePlaceholders+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("storage.SaveLiveTrade %s#%d: %w", sessionID, t.Index, err)
	}
	return nil
}

// GetLiveTrades devuelve el ledger de la sesión en orden.
func (s *SQLiteStorage) GetLiveTrades(ctx context.Context, sessionID string) ([]domain.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tradeColumns+` FROM live_trades WHERE session_id = ? ORDER BY idx`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("storage.GetLiveTrades %s: query: %w", sessionID, err)
	}
	defer rows.Close()
	trades, err := scanTrades(rows)
	if err != nil {
		return nil, fmt.Errorf("storage.GetLiveTrades %s: %w", sessionID, err)
	}
	return trades, nil
}

// ─── Digit history ───────────────────────────────────────────────────────────

// SaveDigit registra un dígito observado.
func (s *SQLiteStorage) SaveDigit(ctx context.Context, market string, at time.Time, price float64, d domain.Digit) error {
	if !d.Valid() {
		return fmt.Errorf("storage.SaveDigit %s: %w: digit %d", market, domain.ErrMalformedTick, d)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO digit_history (market, at, price, digit) VALUES (?, ?, ?, ?)`,
		market, formatTime(at), price, int(d))
	if err != nil {
		return fmt.Errorf("storage.SaveDigit %s: %w", market, err)
	}
	return nil
}

// RecentDigits devuelve los últimos limit dígitos del mercado, el más antiguo primero.
func (s *SQLiteStorage) RecentDigits(ctx context.Context, market string, limit int) ([]domain.Digit, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT digit FROM digit_history WHERE market = ? ORDER BY id DESC LIMIT ?`, market, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentDigits %s: query: %w", market, err)
	}
	defer rows.Close()

	var (
		digits  []domain.Digit
		skipped int
	)
	for rows.Next() {
		var d int
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("storage.RecentDigits %s: scan: %w", market, err)
		}
		if !domain.Digit(d).Valid() {
			skipped++
			continue
		}
		digits = append(digits, domain.Digit(d))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if skipped > 0 {
		slog.Warn("storage: filas de digit_history fuera de rango ignoradas", "market", market, "skipped", skipped)
	}
	// la query los trae del más nuevo al más viejo
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	return digits, nil
}
