package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alejandrodnm/digitbot/internal/application/engine"
	"github.com/alejandrodnm/digitbot/internal/domain"
)

// contractRequest maps a decision to what the broker needs.
func (le *Engine) contractRequest(dec engine.Decision) domain.ContractRequest {
	req := domain.ContractRequest{
		Market:       le.cfg.Session.Market,
		ContractType: le.cfg.Session.ContractType,
		Direction:    dec.Prediction.Direction,
		Digit:        dec.Prediction.Digit,
		Stake:        dec.Stake,
		Currency:     le.cfg.Currency,
		DurationTick: le.cfg.DurationTicks,
	}
	if req.ContractType == domain.ContractOverUnder {
		req.Digit = dec.Prediction.Barrier
	}
	return req
}

// submit buys the contract, retrying transient failures with exponential
// backoff. Rejections and context cancellation are returned immediately.
func (le *Engine) submit(ctx context.Context, dec engine.Decision) (domain.ContractOutcome, error) {
	req := le.contractRequest(dec)

	var lastErr error
	for attempt := 0; attempt <= le.cfg.MaxSubmitRetries; attempt++ {
		outcome, err := le.executor.Buy(ctx, req)
		if err == nil {
			return outcome, nil
		}
		if errors.Is(err, domain.ErrContractRejected) || ctx.Err() != nil {
			return domain.ContractOutcome{}, err
		}
		lastErr = err
		if attempt == le.cfg.MaxSubmitRetries {
			break
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * le.cfg.RetryBackoff
		slog.Warn("live: buy failed, retrying", "attempt", attempt+1, "wait", wait, "err", err)
		select {
		case <-ctx.Done():
			return domain.ContractOutcome{}, ctx.Err()
		case <-time.After(wait):
		}
	}
	return domain.ContractOutcome{}, fmt.Errorf("live.submit: failed after %d retries: %w", le.cfg.MaxSubmitRetries, lastErr)
}
