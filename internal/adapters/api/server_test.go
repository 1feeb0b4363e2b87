package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/digitbot/internal/adapters/api"
	"github.com/alejandrodnm/digitbot/internal/adapters/storage"
	"github.com/alejandrodnm/digitbot/internal/domain"
)

type fakeSource struct {
	ticks  []domain.Tick
	err    error
	market string
	count  int
}

func (f *fakeSource) History(_ context.Context, market string, count int) ([]domain.Tick, error) {
	f.market, f.count = market, count
	return f.ticks, f.err
}

func (f *fakeSource) Subscribe(context.Context, string) (<-chan domain.Tick, error) {
	return nil, errors.New("not supported")
}

func defaults() domain.SessionConfig {
	return domain.SessionConfig{
		Market:          "R_100",
		ContractType:    domain.ContractEvenOdd,
		StakeAmount:     10,
		WindowSize:      5,
		Barrier:         domain.DefaultBarrier,
		StartingBalance: 1000,
		DataPoints:      50,
	}
}

func tickInputs(digits ...int) []api.TickInput {
	out := make([]api.TickInput, len(digits))
	for i, d := range digits {
		out[i] = api.TickInput{Epoch: 1704067200 + int64(i)*2, Price: 1000 + float64(d)/100}
	}
	return out
}

func repeat(d, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = d
	}
	return out
}

func newServer(t *testing.T, src *fakeSource) (*api.Server, *storage.SQLiteStorage) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	opts := api.Options{Defaults: defaults(), AllowedOrigins: []string{"http://localhost:3000"}, Workers: 2, Release: true}
	if src == nil {
		return api.New(db, db, nil, opts), db
	}
	return api.New(db, db, src, opts), db
}

func do(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func errorCode(out map[string]any) string {
	e, _ := out["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHealth(t *testing.T) {
	s, _ := newServer(t, nil)
	w, out := do(t, s.Handler(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", out["status"])
}

func TestRunBacktest_SaveAndFetch(t *testing.T) {
	s, _ := newServer(t, nil)
	h := s.Handler()

	ticks := tickInputs(1, 2, 3, 4, 5, 6, 7, 8, 9, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 0)
	w, out := do(t, h, http.MethodPost, "/api/v1/backtest", api.BacktestRequest{Ticks: ticks, IncludeTrades: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	id, _ := out["id"].(string)
	require.NotEmpty(t, id)
	result := out["result"].(map[string]any)
	total := result["total_trades"].(float64)
	assert.Greater(t, total, 0.0)
	assert.Len(t, result["trades"], int(total))
	assert.Equal(t, "ticks_exhausted", result["stop_reason"])

	w, got := do(t, h, http.MethodGet, "/api/v1/backtests/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, total, got["result"].(map[string]any)["total_trades"])
	assert.Nil(t, got["result"].(map[string]any)["trades"], "ledger only on request")

	w, ledger := do(t, h, http.MethodGet, "/api/v1/backtests/"+id+"/ledger", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, ledger["trades"], int(total))

	w, list := do(t, h, http.MethodGet, "/api/v1/backtests?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, list["backtests"], 1)
}

func TestRunBacktest_NullProfitFactorWithoutLosses(t *testing.T) {
	s, _ := newServer(t, nil)

	save := false
	w, out := do(t, s.Handler(), http.MethodPost, "/api/v1/backtest", api.BacktestRequest{Ticks: tickInputs(repeat(2, 12)...), Save: &save})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Empty(t, out["id"])
	result := out["result"].(map[string]any)
	assert.Equal(t, result["total_trades"], result["wins"])
	pf, present := result["profit_factor"]
	assert.True(t, present)
	assert.Nil(t, pf)
}

func TestRunBacktest_InvalidConfig(t *testing.T) {
	s, _ := newServer(t, nil)

	req := api.BacktestRequest{Config: domain.SessionConfig{ContractType: "rise_fall"}, Ticks: tickInputs(1, 2, 3)}
	w, out := do(t, s.Handler(), http.MethodPost, "/api/v1/backtest", req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_CONFIG", errorCode(out))
}

func TestRunBacktest_BadJSON(t *testing.T) {
	s, _ := newServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/backtest", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunBacktest_UsesTickSource(t *testing.T) {
	var ticks []domain.Tick
	for i, d := range repeat(4, 10) {
		ticks = append(ticks, domain.Tick{Timestamp: time.Unix(int64(i), 0), Price: 1000 + float64(d)/100})
	}
	src := &fakeSource{ticks: ticks}
	s, _ := newServer(t, src)

	req := api.BacktestRequest{Config: domain.SessionConfig{Market: "R_50", DataPoints: 500}}
	w, _ := do(t, s.Handler(), http.MethodPost, "/api/v1/backtest", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "R_50", src.market)
	assert.Equal(t, 500, src.count)
}

func TestRunBacktest_TickSourceFailure(t *testing.T) {
	s, _ := newServer(t, &fakeSource{err: errors.New("socket closed")})
	w, out := do(t, s.Handler(), http.MethodPost, "/api/v1/backtest", api.BacktestRequest{})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "TICK_SOURCE_ERROR", errorCode(out))
}

func TestRunBacktest_NoTicks(t *testing.T) {
	s, _ := newServer(t, nil)
	w, out := do(t, s.Handler(), http.MethodPost, "/api/v1/backtest", api.BacktestRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "NO_TICKS", errorCode(out))
}

func TestGetBacktest_NotFound(t *testing.T) {
	s, _ := newServer(t, nil)
	w, out := do(t, s.Handler(), http.MethodGet, "/api/v1/backtests/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(out))
}

func TestCompareBacktests(t *testing.T) {
	s, _ := newServer(t, nil)

	req := api.CompareRequest{
		Ticks: tickInputs(1, 3, 5, 7, 9, 2, 4, 6, 8, 0, 1, 3, 5, 7, 9),
		Variations: []api.Variation{
			{Name: "even_odd", Config: domain.SessionConfig{ContractType: domain.ContractEvenOdd}},
			{Name: "matches", Config: domain.SessionConfig{ContractType: domain.ContractMatches}},
			{Config: domain.SessionConfig{ContractType: "bogus"}},
		},
	}
	w, out := do(t, s.Handler(), http.MethodPost, "/api/v1/backtest/compare", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	rows := out["comparison"].([]any)
	require.Len(t, rows, 3)
	first := rows[0].(map[string]any)
	assert.Equal(t, "even_odd", first["name"])
	assert.NotNil(t, first["result"])
	last := rows[2].(map[string]any)
	assert.Equal(t, "variation-3", last["name"])
	assert.NotEmpty(t, last["error"])
}

func TestDigitStats(t *testing.T) {
	s, db := newServer(t, nil)
	ctx := context.Background()
	for i, d := range []domain.Digit{9, 1, 1, 1, 2} {
		require.NoError(t, db.SaveDigit(ctx, "R_100", time.Unix(int64(i), 0), 0, d))
	}

	w, out := do(t, s.Handler(), http.MethodGet, "/api/v1/digits/R_100?window=4", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 4.0, out["total"])
	assert.Equal(t, 1.0, out["most_frequent"])
	streaks := out["streaks"].([]any)
	require.Len(t, streaks, 1)
	assert.Equal(t, 3.0, streaks[0].(map[string]any)["length"])

	// indicadores sobre [1 1 1 2] con span 4
	w, out = do(t, s.Handler(), http.MethodGet, "/api/v1/digits/R_100?window=4&span=4", nil)
	require.Equal(t, http.StatusOK, w.Code)
	ind := out["indicators"].(map[string]any)
	assert.Equal(t, 4.0, ind["span"])
	due := ind["due"].([]any)
	require.Len(t, due, 3)
	assert.Equal(t, 1.0, due[0].(map[string]any)["digit"])
	up := ind["trending_up"].([]any)
	require.Len(t, up, 1)
	assert.Equal(t, 2.0, up[0].(map[string]any)["digit"])
	assert.Empty(t, out["patterns"])
}

func TestSessions(t *testing.T) {
	s, db := newServer(t, nil)
	h := s.Handler()

	w, out := do(t, h, http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, out["sessions"])

	require.NoError(t, db.SaveSession(context.Background(), domain.SessionSummary{
		ID: "s-1", Market: "R_100", ContractType: domain.ContractDiffers, Status: domain.SessionRunning, StartedAt: time.Now(),
	}))
	w, out = do(t, h, http.MethodGet, "/api/v1/sessions/s-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, out["session"])

	w, _ = do(t, h, http.MethodGet, "/api/v1/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORS_Preflight(t *testing.T) {
	s, _ := newServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/backtests", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNoRoute(t *testing.T) {
	s, _ := newServer(t, nil)
	w, out := do(t, s.Handler(), http.MethodGet, "/api/v1/nothing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(out))
}
