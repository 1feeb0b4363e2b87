package domain

// Prediction is the call for the next tick. Recomputed per tick, never persisted
// on its own (a trade record keeps a copy).
type Prediction struct {
	ContractType ContractType `json:"contract_type"`
	Digit        Digit        `json:"digit"`   // matches / differs
	Barrier      Digit        `json:"barrier"` // over_under
	Direction    Direction    `json:"direction,omitempty"`
	Confidence   float64      `json:"confidence"`
}

// Label is a short human readable form, e.g. "match 7" or "over 5".
func (p Prediction) Label() string {
	switch p.ContractType {
	case ContractMatches:
		return "match " + string(rune('0'+p.Digit))
	case ContractDiffers:
		return "differ " + string(rune('0'+p.Digit))
	case ContractOverUnder:
		return string(p.Direction) + " " + string(rune('0'+p.Barrier))
	case ContractEvenOdd:
		return string(p.Direction)
	}
	return "-"
}

// Predictor turns statistics into a prediction. Implementations must be
// deterministic: identical inputs give identical predictions.
type Predictor interface {
	Predict(stats DigitStats, ct ContractType) Prediction
}

// PredictorFunc adapts a plain function, e.g. a learned model, to Predictor.
type PredictorFunc func(stats DigitStats, ct ContractType) Prediction

// Predict calls f and clamps the confidence.
func (f PredictorFunc) Predict(stats DigitStats, ct ContractType) Prediction {
	p := f(stats, ct)
	p.ContractType = ct
	p.Confidence = clamp01(p.Confidence)
	return p
}

// FrequencyPredictor calls the side the window's frequencies favour, with the
// driving frequency as confidence.
type FrequencyPredictor struct{}

// Predict implements Predictor.
func (FrequencyPredictor) Predict(stats DigitStats, ct ContractType) Prediction {
	p := Prediction{ContractType: ct, Barrier: stats.Barrier}
	if stats.Empty() {
		return p
	}
	switch ct {
	case ContractMatches:
		p.Digit = stats.MostFrequent
		p.Confidence = stats.Frequencies[stats.MostFrequent]
	case ContractDiffers:
		p.Digit = stats.LeastFrequent
		p.Confidence = 1 - stats.Frequencies[stats.LeastFrequent]
	case ContractOverUnder:
		if stats.OverFraction > stats.UnderFraction {
			p.Direction = DirectionOver
			p.Confidence = stats.OverFraction
		} else {
			p.Direction = DirectionUnder
			p.Confidence = stats.UnderFraction
		}
	case ContractEvenOdd:
		if stats.EvenFraction > stats.OddFraction {
			p.Direction = DirectionEven
			p.Confidence = stats.EvenFraction
		} else {
			p.Direction = DirectionOdd
			p.Confidence = stats.OddFraction
		}
	}
	p.Confidence = clamp01(p.Confidence)
	return p
}

func clamp01(x float64) float64 {
	if x != x || x < 0 { // NaN or negative
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
