package domain

import "time"

// CircuitBreaker tracks failed contract submissions and halts trading once
// they persist. A tripped breaker stays tripped until Reset, or until
// CooldownUntil passes when a cooldown is configured.
type CircuitBreaker struct {
	ConsecutiveFailures int           `json:"consecutive_failures"`
	MaxFailures         int           `json:"max_failures"`
	CooldownDuration    time.Duration `json:"cooldown_duration"`
	CooldownUntil       time.Time     `json:"cooldown_until"`
	Triggered           bool          `json:"triggered"`
	TriggeredReason     string        `json:"triggered_reason,omitempty"`
}

// IsOpen returns true if trading is allowed (circuit not triggered).
func (cb *CircuitBreaker) IsOpen(now time.Time) bool {
	if !cb.Triggered {
		return true
	}
	if cb.CooldownDuration > 0 && !now.Before(cb.CooldownUntil) {
		cb.Reset()
		return true
	}
	return false
}

// RecordFailure records a submission that failed after all retries.
func (cb *CircuitBreaker) RecordFailure(now time.Time, reason string) (tripped bool) {
	cb.ConsecutiveFailures++
	limit := cb.MaxFailures
	if limit <= 0 {
		limit = 1
	}
	if cb.ConsecutiveFailures < limit || cb.Triggered {
		return false
	}
	cb.Triggered = true
	cb.TriggeredReason = reason
	if cb.CooldownDuration > 0 {
		cb.CooldownUntil = now.Add(cb.CooldownDuration)
	}
	return true
}

// RecordSuccess resets the consecutive failure counter.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.ConsecutiveFailures = 0
}

// Reset closes the breaker.
func (cb *CircuitBreaker) Reset() {
	cb.ConsecutiveFailures = 0
	cb.Triggered = false
	cb.TriggeredReason = ""
	cb.CooldownUntil = time.Time{}
}
