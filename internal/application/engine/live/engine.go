package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/digitbot/internal/application/engine"
	"github.com/alejandrodnm/digitbot/internal/domain"
	"github.com/alejandrodnm/digitbot/internal/ports"
)

const (
	defaultSubmitRetries = 3
	defaultRetryBackoff  = time.Second
	defaultDurationTicks = 1
	defaultCurrency      = "USD"
)

// Config holds configuration for the live trading loop.
type Config struct {
	Session          domain.SessionConfig
	Currency         string
	DurationTicks    int
	MaxSubmitRetries int
	RetryBackoff     time.Duration
	// MaxFailures is the number of submissions that exhaust their retries
	// before the session is degraded.
	MaxFailures int
	// Cooldown re-enables submissions this long after the session degraded.
	// Zero keeps it degraded until Resume.
	Cooldown time.Duration
	// UseAccountBalance replaces the configured starting balance with the
	// broker's balance when the session starts.
	UseAccountBalance bool
	// Warmup preloads the window from the source history before subscribing.
	Warmup bool
}

// Snapshot is an inspectable copy of the session state.
type Snapshot struct {
	Summary   domain.SessionSummary
	Staking   domain.StakingState
	Stats     domain.DigitStats
	LastDigit domain.Digit
	Breaker   domain.CircuitBreaker
	Result    domain.BacktestResult
}

// Engine drives one live session: one market, one tick stream, one ledger.
type Engine struct {
	source   ports.TickSource
	executor ports.ContractExecutor
	store    ports.SessionStorage // optional
	notifier ports.Notifier       // optional
	cfg      Config

	id        string
	predictor domain.Predictor

	mu            sync.Mutex
	session       *engine.Session
	status        domain.SessionStatus
	stopReason    domain.StopReason
	breaker       domain.CircuitBreaker
	breakAfterWin bool
	lastDigit     domain.Digit
	startedAt     time.Time
	endedAt       time.Time
}

// New validates the configuration and creates a live engine. store and
// notifier may be nil.
func New(
	source ports.TickSource,
	executor ports.ContractExecutor,
	store ports.SessionStorage,
	notifier ports.Notifier,
	predictor domain.Predictor,
	cfg Config,
) (*Engine, error) {
	cfg.Session = cfg.Session.WithDefaults()
	if err := cfg.Session.Validate(); err != nil {
		return nil, fmt.Errorf("live.New: %w", err)
	}
	if cfg.Session.Market == "" {
		return nil, fmt.Errorf("live.New: %w: market is required", domain.ErrInvalidConfig)
	}
	if cfg.MaxSubmitRetries < 0 {
		cfg.MaxSubmitRetries = 0
	} else if cfg.MaxSubmitRetries == 0 {
		cfg.MaxSubmitRetries = defaultSubmitRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.DurationTicks <= 0 {
		cfg.DurationTicks = defaultDurationTicks
	}
	if cfg.Currency == "" {
		cfg.Currency = defaultCurrency
	}
	return &Engine{
		source:    source,
		executor:  executor,
		store:     store,
		notifier:  notifier,
		cfg:       cfg,
		id:        uuid.New().String(),
		predictor: predictor,
		status:    domain.SessionStopped,
		breaker:   domain.CircuitBreaker{MaxFailures: cfg.MaxFailures, CooldownDuration: cfg.Cooldown},
	}, nil
}

// ID is the session identifier used for persistence.
func (le *Engine) ID() string { return le.id }

// Run processes the live tick stream until the stream closes, ctx is
// cancelled, or a stop condition is crossed. Each tick, including any contract
// submission it triggers, completes before the next tick is read.
func (le *Engine) Run(ctx context.Context) (Snapshot, error) {
	if err := le.start(ctx); err != nil {
		return Snapshot{}, err
	}

	ticks, err := le.source.Subscribe(ctx, le.cfg.Session.Market)
	if err != nil {
		le.finish(ctx, domain.StopReasonSourceClosed)
		return le.Snapshot(), fmt.Errorf("live.Run: subscribe %s: %w", le.cfg.Session.Market, err)
	}

	for {
		select {
		case <-ctx.Done():
			le.finish(context.WithoutCancel(ctx), domain.StopReasonCancelled)
			return le.Snapshot(), nil
		case tick, ok := <-ticks:
			if !ok {
				le.finish(ctx, domain.StopReasonSourceClosed)
				return le.Snapshot(), nil
			}
			if reason := le.onTick(ctx, tick); reason != domain.StopReasonNone {
				le.finish(ctx, reason)
				return le.Snapshot(), nil
			}
		}
	}
}

func (le *Engine) start(ctx context.Context) error {
	cfg := le.cfg.Session
	if le.cfg.UseAccountBalance {
		bal, err := le.executor.Balance(ctx)
		if err != nil {
			slog.Warn("live: balance unavailable, using configured starting balance", "err", err)
		} else {
			cfg.StartingBalance = bal
		}
	}

	sess, err := engine.NewSession(cfg, le.predictor)
	if err != nil {
		return fmt.Errorf("live.Run: %w", err)
	}

	if le.cfg.Warmup {
		history, err := le.source.History(ctx, cfg.Market, cfg.WindowSize)
		if err != nil {
			slog.Warn("live: warmup history failed", "market", cfg.Market, "err", err)
		}
		for _, t := range history {
			if _, err := sess.Observe(t); err != nil {
				slog.Debug("live: skipped warmup tick", "err", err)
			}
		}
	}

	le.mu.Lock()
	le.session = sess
	le.status = domain.SessionRunning
	le.startedAt = time.Now().UTC()
	le.mu.Unlock()

	le.persistSession(ctx)
	le.notify(ctx, domain.EventStarted, fmt.Sprintf("session started on %s (%s), balance $%.2f",
		cfg.Market, cfg.ContractType, sess.Balance()), nil)
	slog.Info("live: session started",
		"id", le.id,
		"market", cfg.Market,
		"contract", cfg.ContractType,
		"balance", fmt.Sprintf("$%.2f", sess.Balance()),
	)
	return nil
}

// onTick runs the pipeline for one tick and returns a stop reason when the
// session must end.
func (le *Engine) onTick(ctx context.Context, tick domain.Tick) domain.StopReason {
	le.mu.Lock()
	digit, err := le.session.Observe(tick)
	if err == nil {
		le.lastDigit = digit
	}
	now := time.Now()
	recovered := le.status == domain.SessionDegraded && le.breaker.IsOpen(now)
	if recovered {
		le.status = domain.SessionRunning
	}
	tradable := le.status == domain.SessionRunning && le.breaker.IsOpen(now)
	var (
		dec engine.Decision
		ok  bool
	)
	if err == nil && tradable {
		dec, ok = le.session.Decide()
	}
	le.mu.Unlock()

	if recovered {
		slog.Info("live: cooldown elapsed, submissions re-enabled", "market", le.cfg.Session.Market)
		le.notify(ctx, domain.EventResumed, "cooldown elapsed, submissions re-enabled", nil)
		le.persistSession(ctx)
	}
	if err != nil {
		slog.Warn("live: malformed tick skipped", "market", le.cfg.Session.Market, "err", err)
		return domain.StopReasonNone
	}
	if le.store != nil {
		if err := le.store.SaveDigit(ctx, le.cfg.Session.Market, tick.Timestamp, tick.Price, digit); err != nil {
			slog.Warn("live: save digit failed", "err", err)
		}
	}
	if !ok {
		return domain.StopReasonNone
	}

	outcome, err := le.submit(ctx, dec)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		// cancelled mid-submission; nothing was applied
		return domain.StopReasonNone
	case errors.Is(err, domain.ErrContractRejected):
		slog.Warn("live: contract rejected, trade skipped", "prediction", dec.Prediction.Label(), "err", err)
		return domain.StopReasonNone
	default:
		le.recordFailure(ctx, err)
		return domain.StopReasonNone
	}

	return le.settle(ctx, dec, outcome)
}

// settle applies the broker's outcome to the session.
func (le *Engine) settle(ctx context.Context, dec engine.Decision, outcome domain.ContractOutcome) domain.StopReason {
	st := engine.Settlement{
		Timestamp:    outcome.SettledAt,
		Actual:       -1,
		Won:          outcome.Won,
		ProfitOrLoss: outcome.Profit,
		ContractID:   outcome.ContractID,
	}

	le.mu.Lock()
	if outcome.HasExit {
		st.Actual = outcome.ExitDigit
		local, err := le.session.Evaluate(dec, outcome.ExitDigit)
		if err == nil && local.Won != outcome.Won {
			st.ShadowMismatch = true
		}
	}
	st.TickIndex = le.session.Ticks() - 1
	le.breaker.RecordSuccess()
	rec, ceiling := le.session.Apply(dec, st)
	reason := le.session.StopReason()
	pause := rec.Won && le.breakAfterWin
	if pause {
		le.breakAfterWin = false
		le.status = domain.SessionPaused
	}
	balance := le.session.Balance()
	le.mu.Unlock()

	if st.ShadowMismatch {
		slog.Warn("live: broker outcome differs from local evaluation",
			"contract_id", rec.ContractID,
			"prediction", rec.Prediction.Label(),
			"exit_digit", rec.Actual,
			"broker_won", rec.Won,
		)
	}
	slog.Info("live: trade settled",
		"n", rec.Index,
		"prediction", rec.Prediction.Label(),
		"actual", rec.Actual,
		"result", rec.Result(),
		"stake", fmt.Sprintf("$%.2f", rec.Stake),
		"pnl", fmt.Sprintf("$%.2f", rec.ProfitOrLoss),
		"balance", fmt.Sprintf("$%.2f", balance),
	)

	if le.store != nil {
		if err := le.store.SaveLiveTrade(ctx, le.id, rec); err != nil {
			slog.Warn("live: save trade failed", "err", err)
		}
	}
	le.notify(ctx, domain.EventTrade, fmt.Sprintf("#%d %s → %s, %s $%.2f",
		rec.Index, rec.Prediction.Label(), rec.Result(), signWord(rec.ProfitOrLoss), abs(rec.ProfitOrLoss)), &rec)
	if ceiling {
		le.notify(ctx, domain.EventCeiling, fmt.Sprintf("martingale ceiling reached, holding stake at $%.2f", rec.Stake), nil)
	}
	if pause {
		le.notify(ctx, domain.EventPaused, "paused after win", nil)
	}
	le.persistSession(ctx)
	return reason
}

func (le *Engine) recordFailure(ctx context.Context, err error) {
	le.mu.Lock()
	tripped := le.breaker.RecordFailure(time.Now(), err.Error())
	if tripped {
		le.status = domain.SessionDegraded
	}
	le.mu.Unlock()

	slog.Error("live: contract submission failed", "err", err, "degraded", tripped)
	if tripped {
		le.notify(ctx, domain.EventDegraded, "order placement failing, new submissions halted: "+err.Error(), nil)
		le.persistSession(ctx)
	}
}

func (le *Engine) finish(ctx context.Context, reason domain.StopReason) {
	le.mu.Lock()
	le.status = domain.SessionStopped
	le.stopReason = reason
	le.endedAt = time.Now().UTC()
	var balance float64
	if le.session != nil {
		balance = le.session.Balance()
	}
	le.mu.Unlock()

	slog.Info("live: session stopped", "id", le.id, "reason", reason, "balance", fmt.Sprintf("$%.2f", balance))
	le.persistSession(ctx)
	le.notify(ctx, domain.EventStopped, fmt.Sprintf("session stopped (%s), balance $%.2f", reason, balance), nil)
}

// Pause halts new trades; ticks keep updating the window.
func (le *Engine) Pause() {
	le.mu.Lock()
	defer le.mu.Unlock()
	if le.status == domain.SessionRunning {
		le.status = domain.SessionPaused
	}
}

// Resume re-enables trading. It also clears a degraded session.
func (le *Engine) Resume() {
	le.mu.Lock()
	defer le.mu.Unlock()
	if le.status == domain.SessionPaused || le.status == domain.SessionDegraded {
		le.status = domain.SessionRunning
		le.breaker.Reset()
	}
}

// BreakAfterWin pauses the session after the next winning trade.
func (le *Engine) BreakAfterWin() {
	le.mu.Lock()
	defer le.mu.Unlock()
	le.breakAfterWin = true
}

// Snapshot returns a consistent copy of the session state. Safe to call from
// any goroutine.
func (le *Engine) Snapshot() Snapshot {
	le.mu.Lock()
	defer le.mu.Unlock()
	snap := Snapshot{
		Summary:   le.summaryLocked(),
		LastDigit: le.lastDigit,
		Breaker:   le.breaker,
	}
	if le.session != nil {
		snap.Staking = le.session.Staking()
		snap.Stats = le.session.Stats()
		snap.Result = le.session.Result()
		snap.Result.StopReason = le.stopReason
	}
	return snap
}

func (le *Engine) summaryLocked() domain.SessionSummary {
	s := domain.SessionSummary{
		ID:           le.id,
		Market:       le.cfg.Session.Market,
		ContractType: le.cfg.Session.ContractType,
		Status:       le.status,
		StopReason:   le.stopReason,
		StartedAt:    le.startedAt,
		EndedAt:      le.endedAt,
	}
	if le.session != nil {
		r := le.session.Result()
		s.StartingBalance = r.StartingBalance
		s.Balance = le.session.Balance()
		s.Trades = r.TotalTrades
		s.Wins = r.Wins
		s.Losses = r.Losses
	}
	return s
}

func (le *Engine) persistSession(ctx context.Context) {
	if le.store == nil {
		return
	}
	le.mu.Lock()
	s := le.summaryLocked()
	le.mu.Unlock()
	if err := le.store.SaveSession(ctx, s); err != nil {
		slog.Warn("live: save session failed", "err", err)
	}
}

func (le *Engine) notify(ctx context.Context, kind domain.EventKind, msg string, rec *domain.TradeRecord) {
	if le.notifier == nil {
		return
	}
	le.mu.Lock()
	var balance float64
	if le.session != nil {
		balance = le.session.Balance()
	}
	le.mu.Unlock()

	ev := domain.SessionEvent{
		Kind:      kind,
		SessionID: le.id,
		Market:    le.cfg.Session.Market,
		Message:   msg,
		Balance:   balance,
		Trade:     rec,
		At:        time.Now().UTC(),
	}
	if err := le.notifier.Notify(ctx, ev); err != nil {
		slog.Warn("live: notify failed", "kind", kind, "err", err)
	}
}

func signWord(v float64) string {
	if v >= 0 {
		return "won"
	}
	return "lost"
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
