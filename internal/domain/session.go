package domain

import (
	"fmt"
	"time"
)

// DefaultPayouts are the payout ratios used when a contract type has none
// configured. Matches pays long odds, differs pays little.
var DefaultPayouts = map[ContractType]float64{
	ContractMatches:   9.0,
	ContractDiffers:   0.9,
	ContractOverUnder: 1.0,
	ContractEvenOdd:   1.0,
}

// SessionConfig is everything one analysis session (backtest run or live
// session) needs. Validate it before starting; it is never re-checked mid-stream.
type SessionConfig struct {
	Market       string       `json:"market"`
	ContractType ContractType `json:"contract_type"`

	StakeAmount          float64 `json:"stake_amount"`
	MartingaleStartAfter int     `json:"martingale_start_after"`
	MaxMartingaleLevel   int     `json:"max_martingale_level"`
	Progression          string  `json:"martingale_progression,omitempty"` // exponential | linear | fibonacci
	ProgressionFactor    float64 `json:"martingale_multiplier"`            // ratio for exponential, step for linear
	MaxStake             float64 `json:"max_stake"`

	TargetProfit float64 `json:"target_profit"` // > 0 enables
	StopLoss     float64 `json:"stop_loss"`     // > 0 enables

	MinConfidence float64 `json:"min_confidence"`
	WindowSize    int     `json:"window_size"`
	MinSamples    int     `json:"min_samples"` // digits needed before trading; defaults to WindowSize
	Precision     int     `json:"precision"`   // 0 picks the market precision
	Barrier       Digit   `json:"barrier"`

	Payouts         map[ContractType]float64 `json:"payouts,omitempty"`
	StartingBalance float64                  `json:"starting_balance"`
	DataPoints      int                      `json:"data_points"` // backtest only
}

// WithDefaults fills the optional fields.
func (c SessionConfig) WithDefaults() SessionConfig {
	if c.MinSamples <= 0 {
		c.MinSamples = c.WindowSize
	}
	if c.Precision <= 0 {
		c.Precision = MarketPrecision(c.Market)
	}
	if c.ProgressionFactor == 0 {
		c.ProgressionFactor = 2
	}
	if c.DataPoints <= 0 {
		c.DataPoints = 1000
	}
	return c
}

// Validate fails fast on anything that would break the session later.
func (c SessionConfig) Validate() error {
	if !c.ContractType.Valid() {
		return fmt.Errorf("%w: contract type: %w: %q", ErrInvalidConfig, ErrUnknownContract, c.ContractType)
	}
	if c.WindowSize <= 0 {
		return fmt.Errorf("%w: window size must be positive, got %d", ErrInvalidConfig, c.WindowSize)
	}
	if c.MinSamples > c.WindowSize {
		return fmt.Errorf("%w: min samples %d exceeds window size %d", ErrInvalidConfig, c.MinSamples, c.WindowSize)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 || c.MinConfidence != c.MinConfidence {
		return fmt.Errorf("%w: min confidence must be within [0,1], got %v", ErrInvalidConfig, c.MinConfidence)
	}
	if c.StakeAmount <= 0 {
		return fmt.Errorf("%w: stake amount must be positive, got %v", ErrInvalidConfig, c.StakeAmount)
	}
	if c.TargetProfit < 0 || c.StopLoss < 0 {
		return fmt.Errorf("%w: target profit and stop loss must be >= 0", ErrInvalidConfig)
	}
	if !c.Barrier.Valid() {
		return fmt.Errorf("%w: barrier must be a digit, got %d", ErrInvalidConfig, c.Barrier)
	}
	if c.Payout() <= 0 {
		return fmt.Errorf("%w: payout ratio for %s must be positive", ErrInvalidConfig, c.ContractType)
	}
	if _, err := c.Staking(); err != nil {
		return err
	}
	return nil
}

// Payout is the payout ratio for the session's contract type.
func (c SessionConfig) Payout() float64 {
	if p, ok := c.Payouts[c.ContractType]; ok {
		return p
	}
	return DefaultPayouts[c.ContractType]
}

// Staking builds the martingale configuration.
func (c SessionConfig) Staking() (StakingConfig, error) {
	mult, err := ParseProgression(c.Progression, c.ProgressionFactor)
	if err != nil {
		return StakingConfig{}, err
	}
	return StakingConfig{
		BaseStake:  c.StakeAmount,
		StartAfter: c.MartingaleStartAfter,
		MaxLevel:   c.MaxMartingaleLevel,
		MaxStake:   c.MaxStake,
		Multiplier: mult,
	}, nil
}

// StopCrossed reports whether the net result hit a session stop condition.
func (c SessionConfig) StopCrossed(net float64) StopReason {
	if c.TargetProfit > 0 && net >= c.TargetProfit {
		return StopReasonTargetProfit
	}
	if c.StopLoss > 0 && net <= -c.StopLoss {
		return StopReasonStopLoss
	}
	return StopReasonNone
}

// SessionStatus is the lifecycle of a live session.
type SessionStatus string

const (
	SessionRunning  SessionStatus = "running"
	SessionPaused   SessionStatus = "paused"
	SessionDegraded SessionStatus = "degraded"
	SessionStopped  SessionStatus = "stopped"
)

// SessionSummary is the persisted view of a live session.
type SessionSummary struct {
	ID              string        `json:"id"`
	Market          string        `json:"market"`
	ContractType    ContractType  `json:"contract_type"`
	Status          SessionStatus `json:"status"`
	StopReason      StopReason    `json:"stop_reason,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	EndedAt         time.Time     `json:"ended_at"`
	StartingBalance float64       `json:"starting_balance"`
	Balance         float64       `json:"balance"`
	Trades          int           `json:"trades"`
	Wins            int           `json:"wins"`
	Losses          int           `json:"losses"`
}

// EventKind classifies session notifications.
type EventKind string

const (
	EventStarted  EventKind = "started"
	EventTrade    EventKind = "trade"
	EventCeiling  EventKind = "martingale_ceiling"
	EventDegraded EventKind = "degraded"
	EventPaused   EventKind = "paused"
	EventResumed  EventKind = "resumed"
	EventStopped  EventKind = "stopped"
)

// SessionEvent is something worth telling the operator about.
type SessionEvent struct {
	Kind      EventKind
	SessionID string
	Market    string
	Message   string
	Balance   float64
	Trade     *TradeRecord
	At        time.Time
}
