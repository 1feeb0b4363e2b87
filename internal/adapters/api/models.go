package api

import (
	"time"

	"github.com/alejandrodnm/digitbot/internal/domain"
)

// TickInput es un tick enviado en el cuerpo de la request.
type TickInput struct {
	Epoch int64   `json:"epoch"`
	Price float64 `json:"price"`
}

// BacktestRequest es el cuerpo de POST /api/v1/backtest. Los campos de config
// que no vengan (o vengan a cero) toman el valor de la configuración del servidor.
type BacktestRequest struct {
	Config        domain.SessionConfig `json:"config"`
	Ticks         []TickInput          `json:"ticks,omitempty"` // vacío = pedir historial al broker
	IncludeTrades bool                 `json:"include_trades"`
	Save          *bool                `json:"save,omitempty"` // nil = true
}

// CompareRequest es el cuerpo de POST /api/v1/backtest/compare: las mismas
// ticks con varias configuraciones.
type CompareRequest struct {
	Market     string      `json:"market"`
	Ticks      []TickInput `json:"ticks,omitempty"`
	Variations []Variation `json:"variations" binding:"required,min=1"`
}

// Variation es una configuración con nombre dentro de una comparación.
type Variation struct {
	Name   string               `json:"name"`
	Config domain.SessionConfig `json:"config"`
}

// ResultView es domain.BacktestResult con un profit factor serializable:
// null cuando no hubo pérdidas.
type ResultView struct {
	domain.BacktestResult
	ProfitFactor *float64 `json:"profit_factor"`
}

// BacktestResponse es la respuesta de un backtest guardado o recién ejecutado.
type BacktestResponse struct {
	ID        string               `json:"id,omitempty"`
	CreatedAt time.Time            `json:"created_at,omitempty"`
	Config    domain.SessionConfig `json:"config"`
	Result    ResultView           `json:"result"`
}

// ComparisonResult es una fila de la comparación.
type ComparisonResult struct {
	Name   string      `json:"name"`
	Result *ResultView `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// DigitStatsResponse es la respuesta de GET /api/v1/digits/:market.
type DigitStatsResponse struct {
	Market      string          `json:"market"`
	Total       int             `json:"total"`
	Counts      [10]int         `json:"counts"`
	Frequencies [10]float64     `json:"frequencies"`
	MostFreq    domain.Digit    `json:"most_frequent"`
	LeastFreq   domain.Digit    `json:"least_frequent"`
	Barrier     domain.Digit    `json:"barrier"`
	Over        float64         `json:"over_fraction"`
	Under       float64         `json:"under_fraction"`
	Even        float64         `json:"even_fraction"`
	Odd         float64         `json:"odd_fraction"`
	SinceLast   [10]int         `json:"since_last"`
	Missing     []domain.Digit  `json:"missing"`
	Streaks     []domain.Streak `json:"streaks"`
	Invalid     int             `json:"invalid,omitempty"`

	Indicators domain.Indicators `json:"indicators"`
	Patterns   []domain.Pattern  `json:"patterns"`
}

// ErrorResponse es el formato común de error.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describe el error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newResultView(r domain.BacktestResult, includeTrades bool) ResultView {
	v := ResultView{BacktestResult: r}
	if r.ProfitFactorDefined() {
		pf := r.ProfitFactor
		v.ProfitFactor = &pf
	}
	if !includeTrades {
		v.Trades = nil
	}
	return v
}

func newDigitStatsResponse(market string, s domain.DigitStats, ind domain.Indicators, patterns []domain.Pattern) DigitStatsResponse {
	if patterns == nil {
		patterns = []domain.Pattern{}
	}
	return DigitStatsResponse{
		Market:      market,
		Total:       s.Total,
		Counts:      s.Counts,
		Frequencies: s.Frequencies,
		MostFreq:    s.MostFrequent,
		LeastFreq:   s.LeastFrequent,
		Barrier:     s.Barrier,
		Over:        s.OverFraction,
		Under:       s.UnderFraction,
		Even:        s.EvenFraction,
		Odd:         s.OddFraction,
		SinceLast:   s.SinceLast,
		Missing:     s.Missing,
		Streaks:     s.Streaks,
		Invalid:     s.Invalid,
		Indicators:  ind,
		Patterns:    patterns,
	}
}

func toTicks(in []TickInput) []domain.Tick {
	ticks := make([]domain.Tick, len(in))
	for i, t := range in {
		ticks[i] = domain.Tick{Timestamp: time.Unix(t.Epoch, 0).UTC(), Price: t.Price}
	}
	return ticks
}
