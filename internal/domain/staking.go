package domain

import (
	"fmt"
	"math"
	"strings"
)

// Multiplier maps a martingale level to a stake multiplier. Must be
// monotonically increasing with multiplier(0) == 1.
type Multiplier func(level int) float64

// Exponential is the classic martingale: ratio^level.
func Exponential(ratio float64) Multiplier {
	return func(level int) float64 { return math.Pow(ratio, float64(level)) }
}

// Linear grows the stake by step base stakes per level: 1 + step*level.
func Linear(step float64) Multiplier {
	return func(level int) float64 { return 1 + step*float64(level) }
}

// Fibonacci follows 1, 2, 3, 5, 8, ...
func Fibonacci() Multiplier {
	return func(level int) float64 {
		a, b := 1.0, 2.0
		for i := 0; i < level; i++ {
			a, b = b, a+b
		}
		return a
	}
}

// ParseProgression builds a Multiplier from its config name.
func ParseProgression(name string, factor float64) (Multiplier, error) {
	switch strings.ToLower(name) {
	case "", "exponential", "martingale":
		if factor <= 1 {
			return nil, fmt.Errorf("%w: exponential progression needs a factor > 1, got %v", ErrInvalidConfig, factor)
		}
		return Exponential(factor), nil
	case "linear":
		if factor <= 0 {
			return nil, fmt.Errorf("%w: linear progression needs a factor > 0, got %v", ErrInvalidConfig, factor)
		}
		return Linear(factor), nil
	case "fibonacci":
		return Fibonacci(), nil
	}
	return nil, fmt.Errorf("%w: unknown martingale progression %q", ErrInvalidConfig, name)
}

// StakingConfig configures a Martingale.
type StakingConfig struct {
	BaseStake float64
	// StartAfter is the number of consecutive losses needed before escalating.
	StartAfter int
	// MaxLevel is the number of stake tiers including the base stake, so the
	// highest reachable level is MaxLevel-1. Zero or one disables escalation.
	MaxLevel int
	// MaxStake caps the stake of any single trade; zero means no cap.
	MaxStake   float64
	Multiplier Multiplier
}

// StakingState is the mutable part of the controller.
type StakingState struct {
	Level             int     `json:"level"`
	BaseStake         float64 `json:"base_stake"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
}

// Martingale sizes stakes across a trade sequence. One instance per session.
type Martingale struct {
	cfg             StakingConfig
	state           StakingState
	ceilingReported bool
}

// NewMartingale validates cfg and returns a controller at level 0.
func NewMartingale(cfg StakingConfig) (*Martingale, error) {
	if cfg.BaseStake <= 0 {
		return nil, fmt.Errorf("%w: base stake must be positive, got %v", ErrInvalidConfig, cfg.BaseStake)
	}
	if cfg.StartAfter < 0 {
		return nil, fmt.Errorf("%w: martingale start-after must be >= 0, got %d", ErrInvalidConfig, cfg.StartAfter)
	}
	if cfg.MaxLevel < 0 {
		return nil, fmt.Errorf("%w: max martingale level must be >= 0, got %d", ErrInvalidConfig, cfg.MaxLevel)
	}
	if cfg.MaxStake < 0 {
		return nil, fmt.Errorf("%w: max stake must be >= 0, got %v", ErrInvalidConfig, cfg.MaxStake)
	}
	if cfg.MaxStake > 0 && cfg.BaseStake > cfg.MaxStake {
		return nil, fmt.Errorf("%w: base stake %v exceeds max stake %v", ErrInvalidConfig, cfg.BaseStake, cfg.MaxStake)
	}
	if cfg.Multiplier == nil {
		cfg.Multiplier = Exponential(2)
	}
	return &Martingale{cfg: cfg, state: StakingState{BaseStake: cfg.BaseStake}}, nil
}

// NextStake is the stake for the next trade.
func (m *Martingale) NextStake() float64 {
	return m.stakeAt(m.state.Level)
}

func (m *Martingale) stakeAt(level int) float64 {
	stake := m.cfg.BaseStake * m.cfg.Multiplier(level)
	if m.cfg.MaxStake > 0 && stake > m.cfg.MaxStake {
		return m.cfg.MaxStake
	}
	return stake
}

func (m *Martingale) topLevel() int {
	if m.cfg.MaxLevel <= 1 {
		return 0
	}
	return m.cfg.MaxLevel - 1
}

// RecordWin resets the sequence to the base stake.
func (m *Martingale) RecordWin() {
	m.state.Level = 0
	m.state.ConsecutiveLosses = 0
	m.ceilingReported = false
}

// RecordLoss advances the sequence. It returns true the first time in a losing
// run that escalation is refused by the level ceiling or the stake cap; the
// caller keeps trading at the held stake.
func (m *Martingale) RecordLoss() (ceilingReached bool) {
	m.state.ConsecutiveLosses++
	if m.state.ConsecutiveLosses < m.cfg.StartAfter {
		return false
	}

	next := m.state.Level + 1
	blocked := next > m.topLevel() ||
		(m.cfg.MaxStake > 0 && m.cfg.BaseStake*m.cfg.Multiplier(next) > m.cfg.MaxStake)
	if !blocked {
		m.state.Level = next
		return false
	}
	if m.ceilingReported {
		return false
	}
	m.ceilingReported = true
	return true
}

// State returns a copy of the controller state.
func (m *Martingale) State() StakingState { return m.state }

// AtCeiling reports whether the controller is holding at its ceiling.
func (m *Martingale) AtCeiling() bool { return m.ceilingReported }

// Reset returns to level 0, as when a session restarts.
func (m *Martingale) Reset() {
	m.state = StakingState{BaseStake: m.cfg.BaseStake}
	m.ceilingReported = false
}
