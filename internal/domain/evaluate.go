package domain

import "fmt"

// Outcome is the local settlement of one contract.
type Outcome struct {
	Won          bool
	ProfitOrLoss float64
}

// Evaluate settles a prediction against the actual digit. It has no state:
// identical inputs always give identical outcomes.
func Evaluate(ct ContractType, p Prediction, actual Digit, stake, payoutRatio float64) (Outcome, error) {
	var won bool
	switch ct {
	case ContractMatches:
		won = actual == p.Digit
	case ContractDiffers:
		won = actual != p.Digit
	case ContractOverUnder:
		switch p.Direction {
		case DirectionOver:
			won = actual > p.Barrier
		case DirectionUnder:
			won = actual < p.Barrier
		default:
			return Outcome{}, fmt.Errorf("domain.Evaluate: over_under needs a direction, got %q", p.Direction)
		}
	case ContractEvenOdd:
		switch p.Direction {
		case DirectionEven:
			won = actual.Even()
		case DirectionOdd:
			won = !actual.Even()
		default:
			return Outcome{}, fmt.Errorf("domain.Evaluate: even_odd needs a direction, got %q", p.Direction)
		}
	default:
		return Outcome{}, fmt.Errorf("domain.Evaluate: %w: %q", ErrUnknownContract, ct)
	}

	if won {
		return Outcome{Won: true, ProfitOrLoss: stake * payoutRatio}, nil
	}
	return Outcome{Won: false, ProfitOrLoss: -stake}, nil
}
