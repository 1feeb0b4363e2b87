package engine

import (
	"fmt"
	"time"

	"github.com/alejandrodnm/digitbot/internal/domain"
)

// Session is the per-session pipeline state shared by the backtest and live
// engines: window, predictor, staking controller, ledger and balance.
// It is driven by a single goroutine in tick order.
type Session struct {
	cfg       domain.SessionConfig
	window    *domain.DigitWindow
	predictor domain.Predictor
	staking   *domain.Martingale

	trades      []domain.TradeRecord
	balance     float64
	ticks       int
	skipped     int
	ceilingHits int
}

// Decision is a trade the pipeline wants to open on the next tick.
type Decision struct {
	Prediction domain.Prediction
	Stake      float64
	Level      int
}

// Settlement is the outcome of a decision, computed locally or reported by the broker.
type Settlement struct {
	TickIndex      int
	Timestamp      time.Time
	Actual         domain.Digit
	Won            bool
	ProfitOrLoss   float64
	ContractID     string
	ShadowMismatch bool
}

// NewSession validates cfg and builds the pipeline. A nil predictor uses the
// frequency baseline.
func NewSession(cfg domain.SessionConfig, predictor domain.Predictor) (*Session, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine.NewSession: %w", err)
	}
	window, err := domain.NewDigitWindow(cfg.WindowSize, cfg.Precision)
	if err != nil {
		return nil, fmt.Errorf("engine.NewSession: %w", err)
	}
	stakingCfg, err := cfg.Staking()
	if err != nil {
		return nil, fmt.Errorf("engine.NewSession: %w", err)
	}
	staking, err := domain.NewMartingale(stakingCfg)
	if err != nil {
		return nil, fmt.Errorf("engine.NewSession: %w", err)
	}
	if predictor == nil {
		predictor = domain.FrequencyPredictor{}
	}
	return &Session{
		cfg:       cfg,
		window:    window,
		predictor: predictor,
		staking:   staking,
		balance:   cfg.StartingBalance,
	}, nil
}

// Config returns the effective configuration, defaults applied.
func (s *Session) Config() domain.SessionConfig { return s.cfg }

// Observe pushes a tick into the window. Malformed ticks are counted and
// rejected without touching the window.
func (s *Session) Observe(t domain.Tick) (domain.Digit, error) {
	s.ticks++
	d, err := s.window.Push(t)
	if err != nil {
		s.skipped++
		return 0, err
	}
	return d, nil
}

// Stats computes the statistics of the current window.
func (s *Session) Stats() domain.DigitStats {
	return domain.ComputeStats(s.window.Snapshot(), s.cfg.Barrier)
}

// Decide returns the trade to open, if the window is warm and the prediction
// clears the confidence threshold.
func (s *Session) Decide() (Decision, bool) {
	if s.window.Len() < s.cfg.MinSamples {
		return Decision{}, false
	}
	p := s.predictor.Predict(s.Stats(), s.cfg.ContractType)
	p.ContractType = s.cfg.ContractType
	p.Confidence = clamp01(p.Confidence)
	if p.Confidence < s.cfg.MinConfidence {
		return Decision{}, false
	}
	return Decision{
		Prediction: p,
		Stake:      s.staking.NextStake(),
		Level:      s.staking.State().Level,
	}, true
}

// Evaluate settles a decision locally against the actual digit.
func (s *Session) Evaluate(d Decision, actual domain.Digit) (domain.Outcome, error) {
	return domain.Evaluate(s.cfg.ContractType, d.Prediction, actual, d.Stake, s.cfg.Payout())
}

// Apply records a settled trade: staking, ledger and balance move together.
// It reports whether the martingale ceiling was reached by this trade.
func (s *Session) Apply(d Decision, st Settlement) (domain.TradeRecord, bool) {
	var ceiling bool
	if st.Won {
		s.staking.RecordWin()
	} else if s.staking.RecordLoss() {
		ceiling = true
		s.ceilingHits++
	}

	s.balance += st.ProfitOrLoss
	rec := domain.TradeRecord{
		Index:           len(s.trades) + 1,
		TickIndex:       st.TickIndex,
		Timestamp:       st.Timestamp,
		ContractType:    s.cfg.ContractType,
		Prediction:      d.Prediction,
		Actual:          st.Actual,
		Won:             st.Won,
		Stake:           d.Stake,
		ProfitOrLoss:    st.ProfitOrLoss,
		BalanceAfter:    s.balance,
		Confidence:      d.Prediction.Confidence,
		MartingaleLevel: d.Level,
		ContractID:      st.ContractID,
		ShadowMismatch:  st.ShadowMismatch,
	}
	s.trades = append(s.trades, rec)
	return rec, ceiling
}

// StopReason reports whether target profit or stop loss has been crossed.
func (s *Session) StopReason() domain.StopReason {
	return s.cfg.StopCrossed(s.Net())
}

// Balance is the running balance.
func (s *Session) Balance() float64 { return s.balance }

// Net is the running profit or loss since the session started.
func (s *Session) Net() float64 { return s.balance - s.cfg.StartingBalance }

// Ticks is the number of ticks observed, malformed ones included.
func (s *Session) Ticks() int { return s.ticks }

// Staking returns the controller state.
func (s *Session) Staking() domain.StakingState { return s.staking.State() }

// Trades returns a copy of the ledger.
func (s *Session) Trades() []domain.TradeRecord {
	out := make([]domain.TradeRecord, len(s.trades))
	copy(out, s.trades)
	return out
}

// Result aggregates the ledger.
func (s *Session) Result() domain.BacktestResult {
	r := domain.Summarize(s.Trades(), s.cfg.StartingBalance)
	r.Market = s.cfg.Market
	r.ContractType = s.cfg.ContractType
	r.TicksProcessed = s.ticks
	r.TicksSkipped = s.skipped
	r.CeilingHits = s.ceilingHits
	return r
}

func clamp01(x float64) float64 {
	if x != x || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
