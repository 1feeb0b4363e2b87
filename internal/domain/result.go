package domain

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// BacktestResult aggregates a trade ledger. It carries no ids or wall-clock
// times so two runs over the same input compare equal.
type BacktestResult struct {
	Market       string       `json:"market"`
	ContractType ContractType `json:"contract_type"`

	TicksProcessed int `json:"ticks_processed"`
	TicksSkipped   int `json:"ticks_skipped"`

	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"` // 0-1

	StartingBalance float64 `json:"starting_balance"`
	FinalBalance    float64 `json:"final_balance"`
	NetProfit       float64 `json:"net_profit"`
	GrossProfit     float64 `json:"gross_profit"`
	GrossLoss       float64 `json:"gross_loss"`
	// ProfitFactor is GrossProfit/GrossLoss; +Inf when there are wins and no
	// losses, 0 when there are no wins.
	ProfitFactor float64 `json:"-"`

	MaxConsecutiveWins   int     `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	MaxDrawdown          float64 `json:"max_drawdown"`
	MaxDrawdownPct       float64 `json:"max_drawdown_pct"`

	AverageWin  float64 `json:"average_win"`
	AverageLoss float64 `json:"average_loss"`
	LargestWin  float64 `json:"largest_win"`
	LargestLoss float64 `json:"largest_loss"`
	SharpeRatio float64 `json:"sharpe_ratio"`

	EquityCurve []float64     `json:"equity_curve"`
	Trades      []TradeRecord `json:"trades"`

	StopReason  StopReason `json:"stop_reason"`
	CeilingHits int        `json:"ceiling_hits"`
	Warnings    []string   `json:"warnings,omitempty"`
}

// ProfitFactorDefined reports whether ProfitFactor is a finite number.
func (r BacktestResult) ProfitFactorDefined() bool {
	return !math.IsInf(r.ProfitFactor, 0)
}

// Summarize computes the ledger statistics. The equity curve is the running
// balance after each trade, starting from startingBalance.
func Summarize(trades []TradeRecord, startingBalance float64) BacktestResult {
	r := BacktestResult{
		StartingBalance: startingBalance,
		FinalBalance:    startingBalance,
		TotalTrades:     len(trades),
		Trades:          trades,
		EquityCurve:     make([]float64, 0, len(trades)),
	}

	balance := startingBalance
	peak := startingBalance
	var winRun, lossRun int
	returns := make([]float64, 0, len(trades))

	for _, t := range trades {
		balance += t.ProfitOrLoss
		r.EquityCurve = append(r.EquityCurve, balance)
		if t.Stake > 0 {
			returns = append(returns, t.ProfitOrLoss/t.Stake)
		}

		if t.Won {
			r.Wins++
			r.GrossProfit += t.ProfitOrLoss
			r.LargestWin = math.Max(r.LargestWin, t.ProfitOrLoss)
			winRun++
			lossRun = 0
		} else {
			r.Losses++
			r.GrossLoss += -t.ProfitOrLoss
			r.LargestLoss = math.Max(r.LargestLoss, -t.ProfitOrLoss)
			lossRun++
			winRun = 0
		}
		r.MaxConsecutiveWins = max(r.MaxConsecutiveWins, winRun)
		r.MaxConsecutiveLosses = max(r.MaxConsecutiveLosses, lossRun)

		if balance > peak {
			peak = balance
		}
		if dd := peak - balance; dd > r.MaxDrawdown {
			r.MaxDrawdown = dd
			if peak > 0 {
				r.MaxDrawdownPct = dd / peak * 100
			}
		}
	}

	r.FinalBalance = balance
	r.NetProfit = balance - startingBalance
	if r.TotalTrades > 0 {
		r.WinRate = float64(r.Wins) / float64(r.TotalTrades)
	}
	if r.Wins > 0 {
		r.AverageWin = r.GrossProfit / float64(r.Wins)
	}
	if r.Losses > 0 {
		r.AverageLoss = r.GrossLoss / float64(r.Losses)
	}

	switch {
	case r.GrossLoss > 0:
		r.ProfitFactor = r.GrossProfit / r.GrossLoss
	case r.GrossProfit > 0:
		r.ProfitFactor = math.Inf(1)
	}

	if len(returns) > 1 {
		mean, std := stat.MeanStdDev(returns, nil)
		if std > 0 {
			r.SharpeRatio = mean / std
		}
	}
	return r
}

// BacktestRecord is a stored backtest: the run parameters plus its result.
type BacktestRecord struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Config    SessionConfig  `json:"config"`
	Result    BacktestResult `json:"result"`
}
