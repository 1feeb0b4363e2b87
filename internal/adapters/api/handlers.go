package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alejandrodnm/digitbot/internal/application/engine/backtest"
	"github.com/alejandrodnm/digitbot/internal/domain"
)

// runBacktest handles POST /api/v1/backtest
func (s *Server) runBacktest(c *gin.Context) {
	var req BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	cfg := s.defaults()
	overlay(&cfg, req.Config)
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_CONFIG", err.Error())
		return
	}

	ticks, ok := s.loadTicks(c, cfg.Market, req.Ticks, cfg.DataPoints)
	if !ok {
		return
	}

	res, err := backtest.Run(c.Request.Context(), ticks, cfg, nil)
	if err != nil {
		status, code := statusFor(err)
		writeError(c, status, code, err.Error())
		return
	}

	resp := BacktestResponse{Config: cfg, Result: newResultView(res, req.IncludeTrades)}
	if req.Save == nil || *req.Save {
		rec := domain.BacktestRecord{ID: newID(), CreatedAt: time.Now().UTC(), Config: cfg, Result: res}
		if err := s.backtests.SaveBacktest(c.Request.Context(), rec); err != nil {
			slog.Error("api: save backtest failed", "err", err)
			writeError(c, http.StatusInternalServerError, "STORAGE_ERROR", err.Error())
			return
		}
		resp.ID, resp.CreatedAt = rec.ID, rec.CreatedAt
	}
	c.JSON(http.StatusOK, resp)
}

// compareBacktests handles POST /api/v1/backtest/compare
func (s *Server) compareBacktests(c *gin.Context) {
	var req CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	market := req.Market
	if market == "" {
		market = s.opts.Defaults.Market
	}

	jobs := make([]backtest.Job, len(req.Variations))
	points := 0
	for i, v := range req.Variations {
		cfg := s.defaults()
		overlay(&cfg, v.Config)
		cfg.Market = market
		cfg = cfg.WithDefaults()
		points = max(points, cfg.DataPoints)
		name := v.Name
		if name == "" {
			name = fmt.Sprintf("variation-%d", i+1)
		}
		jobs[i] = backtest.Job{Name: name, Config: cfg}
	}

	ticks, ok := s.loadTicks(c, market, req.Ticks, points)
	if !ok {
		return
	}
	for i := range jobs {
		jobs[i].Ticks = ticks
	}

	results := backtest.RunBatch(c.Request.Context(), jobs, s.opts.Workers)
	out := make([]ComparisonResult, len(results))
	for i, r := range results {
		out[i] = ComparisonResult{Name: r.Name}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
			continue
		}
		v := newResultView(r.Result, false)
		out[i].Result = &v
	}
	c.JSON(http.StatusOK, gin.H{"comparison": out})
}

// listBacktests handles GET /api/v1/backtests
func (s *Server) listBacktests(c *gin.Context) {
	recs, err := s.backtests.ListBacktests(c.Request.Context(), queryInt(c, "limit", defaultListLimit, 500))
	if err != nil {
		status, code := statusFor(err)
		writeError(c, status, code, err.Error())
		return
	}
	out := make([]BacktestResponse, len(recs))
	for i, r := range recs {
		out[i] = BacktestResponse{ID: r.ID, CreatedAt: r.CreatedAt, Config: r.Config, Result: newResultView(r.Result, false)}
	}
	c.JSON(http.StatusOK, gin.H{"backtests": out})
}

// getBacktest handles GET /api/v1/backtests/:id
func (s *Server) getBacktest(c *gin.Context) {
	rec, err := s.backtests.GetBacktest(c.Request.Context(), c.Param("id"))
	if err != nil {
		status, code := statusFor(err)
		writeError(c, status, code, err.Error())
		return
	}
	includeTrades := c.Query("trades") == "true"
	c.JSON(http.StatusOK, BacktestResponse{
		ID: rec.ID, CreatedAt: rec.CreatedAt, Config: rec.Config, Result: newResultView(rec.Result, includeTrades),
	})
}

// getLedger handles GET /api/v1/backtests/:id/ledger
func (s *Server) getLedger(c *gin.Context) {
	rec, err := s.backtests.GetBacktest(c.Request.Context(), c.Param("id"))
	if err != nil {
		status, code := statusFor(err)
		writeError(c, status, code, err.Error())
		return
	}
	trades := rec.Result.Trades
	if trades == nil {
		trades = []domain.TradeRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"id": rec.ID, "trades": trades})
}

// digitStats handles GET /api/v1/digits/:market?window=&barrier=&span=
func (s *Server) digitStats(c *gin.Context) {
	market := c.Param("market")
	window := queryInt(c, "window", defaultDigits, maxDigits)
	digits, err := s.sessions.RecentDigits(c.Request.Context(), market, window)
	if err != nil {
		status, code := statusFor(err)
		writeError(c, status, code, err.Error())
		return
	}

	barrier := s.opts.Defaults.Barrier
	if b := queryInt(c, "barrier", -1, 9); b >= 0 {
		barrier = domain.Digit(b)
	}
	span := queryInt(c, "span", domain.DefaultIndicatorSpan, maxDigits)
	c.JSON(http.StatusOK, newDigitStatsResponse(market,
		domain.ComputeStats(digits, barrier),
		domain.ComputeIndicators(digits, span),
		domain.DetectPatterns(digits),
	))
}

// listSessions handles GET /api/v1/sessions
func (s *Server) listSessions(c *gin.Context) {
	sessions, err := s.sessions.ListSessions(c.Request.Context(), queryInt(c, "limit", defaultListLimit, 500))
	if err != nil {
		status, code := statusFor(err)
		writeError(c, status, code, err.Error())
		return
	}
	if sessions == nil {
		sessions = []domain.SessionSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// getSession handles GET /api/v1/sessions/:id
func (s *Server) getSession(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	sum, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		status, code := statusFor(err)
		writeError(c, status, code, err.Error())
		return
	}
	trades, err := s.sessions.GetLiveTrades(ctx, id)
	if err != nil {
		status, code := statusFor(err)
		writeError(c, status, code, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sum, "trades": trades})
}

// loadTicks usa las ticks de la request o pide historial al broker. Si falla
// escribe la respuesta de error y devuelve false.
func (s *Server) loadTicks(c *gin.Context, market string, in []TickInput, count int) ([]domain.Tick, bool) {
	if len(in) > maxRequestTicks {
		writeError(c, http.StatusBadRequest, "TOO_MANY_TICKS", fmt.Sprintf("at most %d ticks per request", maxRequestTicks))
		return nil, false
	}
	if len(in) > 0 {
		return toTicks(in), true
	}
	if s.source == nil {
		writeError(c, http.StatusBadRequest, "NO_TICKS", "no ticks in request and no tick source configured")
		return nil, false
	}
	ticks, err := s.source.History(c.Request.Context(), market, count)
	if err != nil {
		writeError(c, http.StatusBadGateway, "TICK_SOURCE_ERROR", err.Error())
		return nil, false
	}
	return ticks, true
}

// overlay copia sobre dst los campos de src que vienen informados.
// Los ceros cuentan como "no informado".
func overlay(dst *domain.SessionConfig, src domain.SessionConfig) {
	if src.Market != "" {
		dst.Market = src.Market
	}
	if src.ContractType != "" {
		dst.ContractType = src.ContractType
	}
	if src.StakeAmount > 0 {
		dst.StakeAmount = src.StakeAmount
	}
	if src.MartingaleStartAfter > 0 {
		dst.MartingaleStartAfter = src.MartingaleStartAfter
	}
	if src.MaxMartingaleLevel > 0 {
		dst.MaxMartingaleLevel = src.MaxMartingaleLevel
	}
	if src.Progression != "" {
		dst.Progression = src.Progression
	}
	if src.ProgressionFactor > 0 {
		dst.ProgressionFactor = src.ProgressionFactor
	}
	if src.MaxStake > 0 {
		dst.MaxStake = src.MaxStake
	}
	if src.TargetProfit > 0 {
		dst.TargetProfit = src.TargetProfit
	}
	if src.StopLoss > 0 {
		dst.StopLoss = src.StopLoss
	}
	if src.MinConfidence > 0 {
		dst.MinConfidence = src.MinConfidence
	}
	if src.WindowSize > 0 {
		dst.WindowSize = src.WindowSize
		if dst.MinSamples > src.WindowSize {
			dst.MinSamples = 0
		}
	}
	if src.MinSamples > 0 {
		dst.MinSamples = src.MinSamples
	}
	if src.Precision > 0 {
		dst.Precision = src.Precision
	}
	if src.Barrier > 0 {
		dst.Barrier = src.Barrier
	}
	for k, v := range src.Payouts {
		if dst.Payouts == nil {
			dst.Payouts = make(map[domain.ContractType]float64)
		}
		dst.Payouts[k] = v
	}
	if src.StartingBalance > 0 {
		dst.StartingBalance = src.StartingBalance
	}
	if src.DataPoints > 0 {
		dst.DataPoints = src.DataPoints
	}
}
