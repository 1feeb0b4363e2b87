package storage_test

import (
	"context"
	"database/sql"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/alejandrodnm/digitbot/internal/adapters/storage"
	"github.com/alejandrodnm/digitbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) *storage.SQLiteStorage {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func makeTrade(i int, won bool, stake, pnl, balance float64) domain.TradeRecord {
	return domain.TradeRecord{
		Index:        i,
		TickIndex:    10 + i,
		Timestamp:    time.Date(2024, 1, 1, 0, 0, i, 0, time.UTC),
		ContractType: domain.ContractMatches,
		Prediction: domain.Prediction{
			ContractType: domain.ContractMatches,
			Digit:        7,
			Barrier:      5,
			Confidence:   0.3,
		},
		Actual:       7,
		Won:          won,
		Stake:        stake,
		ProfitOrLoss: pnl,
		BalanceAfter: balance,
		Confidence:   0.3,
	}
}

func makeRecord(id string, created time.Time, trades ...domain.TradeRecord) domain.BacktestRecord {
	cfg := domain.SessionConfig{
		Market:          "R_100",
		ContractType:    domain.ContractMatches,
		StakeAmount:     10,
		WindowSize:      20,
		StartingBalance: 1000,
	}
	res := domain.Summarize(trades, 1000)
	res.Market = "R_100"
	res.ContractType = domain.ContractMatches
	res.StopReason = domain.StopReasonExhausted
	return domain.BacktestRecord{ID: id, CreatedAt: created, Config: cfg, Result: res}
}

func TestSQLiteStorage_SaveAndGetBacktest(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	rec := makeRecord("bt-1", time.Now().UTC(),
		makeTrade(1, true, 10, 90, 1090),
		makeTrade(2, false, 10, -10, 1080),
	)
	require.NoError(t, db.SaveBacktest(ctx, rec))

	got, err := db.GetBacktest(ctx, "bt-1")
	require.NoError(t, err)
	assert.Equal(t, "R_100", got.Config.Market)
	assert.Equal(t, 2, got.Result.TotalTrades)
	assert.InDelta(t, 80, got.Result.NetProfit, 1e-9)
	assert.InDelta(t, 9, got.Result.ProfitFactor, 1e-9)
	assert.Equal(t, []float64{1090, 1080}, got.Result.EquityCurve)

	require.Len(t, got.Result.Trades, 2)
	assert.Equal(t, rec.Result.Trades[0], got.Result.Trades[0])
	assert.Equal(t, "LOSS", got.Result.Trades[1].Result())
}

func TestSQLiteStorage_InfiniteProfitFactor(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	rec := makeRecord("bt-inf", time.Now().UTC(), makeTrade(1, true, 10, 90, 1090))
	require.True(t, math.IsInf(rec.Result.ProfitFactor, 1))
	require.NoError(t, db.SaveBacktest(ctx, rec))

	got, err := db.GetBacktest(ctx, "bt-inf")
	require.NoError(t, err)
	assert.True(t, math.IsInf(got.Result.ProfitFactor, 1))
	assert.False(t, got.Result.ProfitFactorDefined())
}

func TestSQLiteStorage_GetBacktest_NotFound(t *testing.T) {
	db := newDB(t)

	_, err := db.GetBacktest(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteStorage_ListBacktests_NewestFirst(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.SaveBacktest(ctx, makeRecord("old", base)))
	require.NoError(t, db.SaveBacktest(ctx, makeRecord("new", base.Add(500*time.Millisecond), makeTrade(1, true, 10, 90, 1090))))

	list, err := db.ListBacktests(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)
	assert.Equal(t, "old", list[1].ID)
	assert.Empty(t, list[0].Result.Trades, "listing does not load the ledger")
	assert.Equal(t, base.Add(500*time.Millisecond), list[0].CreatedAt)
}

func TestSQLiteStorage_DuplicateBacktestID(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveBacktest(ctx, makeRecord("dup", time.Now())))
	assert.Error(t, db.SaveBacktest(ctx, makeRecord("dup", time.Now())))
}

func TestSQLiteStorage_Sessions(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	started := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	sum := domain.SessionSummary{
		ID:              "s-1",
		Market:          "R_50",
		ContractType:    domain.ContractEvenOdd,
		Status:          domain.SessionRunning,
		StartedAt:       started,
		StartingBalance: 100,
		Balance:         100,
	}
	require.NoError(t, db.SaveSession(ctx, sum))

	sum.Status = domain.SessionStopped
	sum.StopReason = domain.StopReasonStopLoss
	sum.EndedAt = started.Add(time.Hour)
	sum.Balance = 80
	sum.Trades, sum.Losses = 2, 2
	require.NoError(t, db.SaveSession(ctx, sum))

	got, err := db.GetSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, sum, got)

	list, err := db.ListSessions(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = db.GetSession(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteStorage_LiveTrades(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	tr := makeTrade(1, true, 10, 9, 109)
	tr.ContractID = "4242"
	tr.ShadowMismatch = true
	require.NoError(t, db.SaveLiveTrade(ctx, "s-1", tr))
	require.NoError(t, db.SaveLiveTrade(ctx, "s-1", makeTrade(2, false, 10, -10, 99)))
	require.NoError(t, db.SaveLiveTrade(ctx, "s-2", makeTrade(1, false, 5, -5, 95)))

	trades, err := db.GetLiveTrades(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, tr, trades[0])
	assert.Equal(t, 2, trades[1].Index)
}

func TestSQLiteStorage_RecentDigits(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, d := range []domain.Digit{1, 2, 3, 4, 5} {
		require.NoError(t, db.SaveDigit(ctx, "R_100", now.Add(time.Duration(i)*time.Second), 100+float64(d)/100, d))
	}
	require.NoError(t, db.SaveDigit(ctx, "R_10", now, 1.009, 9))

	digits, err := db.RecentDigits(ctx, "R_100", 3)
	require.NoError(t, err)
	assert.Equal(t, []domain.Digit{3, 4, 5}, digits, "oldest first")

	digits, err = db.RecentDigits(ctx, "R_75", 3)
	require.NoError(t, err)
	assert.Empty(t, digits)
}

func TestSQLiteStorage_DigitsOutOfRange(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "digits.db")
	db, err := storage.NewSQLiteStorage(path)
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	assert.ErrorIs(t, db.SaveDigit(ctx, "R_100", now, 100.12, 12), domain.ErrMalformedTick)
	require.NoError(t, db.SaveDigit(ctx, "R_100", now, 100.01, 1))

	// una fila corrupta escrita por fuera del adapter
	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.ExecContext(ctx, `INSERT INTO digit_history (market, at, price, digit) VALUES ('R_100', '', 0, 42)`)
	require.NoError(t, err)
	require.NoError(t, db.SaveDigit(ctx, "R_100", now, 100.02, 2))

	digits, err := db.RecentDigits(ctx, "R_100", 10)
	require.NoError(t, err)
	assert.Equal(t, []domain.Digit{1, 2}, digits)
}
