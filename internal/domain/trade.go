package domain

import "time"

// TradeRecord is one executed or simulated trade. Immutable once appended.
type TradeRecord struct {
	Index           int          `json:"index"`      // 1-based trade number
	TickIndex       int          `json:"tick_index"` // tick that settled the trade
	Timestamp       time.Time    `json:"timestamp"`
	ContractType    ContractType `json:"contract_type"`
	Prediction      Prediction   `json:"prediction"`
	Actual          Digit        `json:"actual"` // -1 when the broker reported no exit digit
	Won             bool         `json:"won"`
	Stake           float64      `json:"stake"`
	ProfitOrLoss    float64      `json:"profit_or_loss"`
	BalanceAfter    float64      `json:"balance_after"`
	Confidence      float64      `json:"confidence"`
	MartingaleLevel int          `json:"martingale_level"`

	// Live only.
	ContractID     string `json:"contract_id,omitempty"`
	ShadowMismatch bool   `json:"shadow_mismatch,omitempty"`
}

// Result is "WIN" or "LOSS".
func (t TradeRecord) Result() string {
	if t.Won {
		return "WIN"
	}
	return "LOSS"
}

// StopReason explains why a session or backtest ended.
type StopReason string

const (
	StopReasonNone         StopReason = ""
	StopReasonExhausted    StopReason = "ticks_exhausted"
	StopReasonTargetProfit StopReason = "target_profit"
	StopReasonStopLoss     StopReason = "stop_loss"
	StopReasonCancelled    StopReason = "cancelled"
	StopReasonSourceClosed StopReason = "source_closed"
	StopReasonError        StopReason = "error"
)
