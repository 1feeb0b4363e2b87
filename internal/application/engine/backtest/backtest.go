package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/digitbot/internal/application/engine"
	"github.com/alejandrodnm/digitbot/internal/domain"
)

// maxWarnings caps the warnings kept on a result; the rest are only counted.
const maxWarnings = 50

// Run replays ticks in order through the session pipeline and aggregates the
// ledger. A trade decided on tick i settles against the digit of the next
// valid tick. The run stops early when target profit or stop loss is crossed,
// or when ctx is cancelled or a trade cannot be evaluated; the partial result
// is returned together with the error.
func Run(ctx context.Context, ticks []domain.Tick, cfg domain.SessionConfig, predictor domain.Predictor) (domain.BacktestResult, error) {
	sess, err := engine.NewSession(cfg, predictor)
	if err != nil {
		return domain.BacktestResult{}, fmt.Errorf("backtest.Run: %w", err)
	}

	var (
		pending  *engine.Decision
		warnings []string
		stop     = domain.StopReasonExhausted
	)

	for i, tick := range ticks {
		if err := ctx.Err(); err != nil {
			res := finish(sess, warnings, domain.StopReasonCancelled)
			return res, fmt.Errorf("backtest.Run: %w", err)
		}

		digit, err := sess.Observe(tick)
		if err != nil {
			if errors.Is(err, domain.ErrMalformedTick) && len(warnings) < maxWarnings {
				warnings = append(warnings, fmt.Sprintf("tick %d skipped: %v", i, err))
			}
			slog.Debug("backtest: skipped tick", "index", i, "err", err)
			continue
		}

		if pending != nil {
			out, err := sess.Evaluate(*pending, digit)
			if err != nil {
				res := finish(sess, warnings, domain.StopReasonError)
				return res, fmt.Errorf("backtest.Run: evaluate tick %d: %w", i, err)
			}
			sess.Apply(*pending, engine.Settlement{
				TickIndex:    i,
				Timestamp:    tick.Timestamp,
				Actual:       digit,
				Won:          out.Won,
				ProfitOrLoss: out.ProfitOrLoss,
			})
			pending = nil

			if reason := sess.StopReason(); reason != domain.StopReasonNone {
				stop = reason
				break
			}
		}

		if d, ok := sess.Decide(); ok {
			pending = &d
		}
	}

	return finish(sess, warnings, stop), nil
}

func finish(sess *engine.Session, warnings []string, stop domain.StopReason) domain.BacktestResult {
	res := sess.Result()
	res.StopReason = stop
	res.Warnings = warnings
	return res
}
