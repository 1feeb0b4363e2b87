package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alejandrodnm/digitbot/internal/domain"
	"github.com/alejandrodnm/digitbot/internal/ports"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Notifier e imprime los informes de backtest.
type Console struct {
	out    io.Writer
	trades bool // imprimir el ledger completo en los informes
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(trades bool) *Console {
	return &Console{out: os.Stdout, trades: trades}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, trades bool) *Console {
	return &Console{out: w, trades: trades}
}

// Notify imprime el evento en una línea.
func (c *Console) Notify(_ context.Context, ev domain.SessionEvent) error {
	fmt.Fprintln(c.out, eventLine(ev))
	return nil
}

// eventLine es el formato compartido por consola y Telegram.
func eventLine(ev domain.SessionEvent) string {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s %s", at.Format("15:04:05"), ev.Market, strings.ToUpper(string(ev.Kind)))
	if t := ev.Trade; t != nil {
		fmt.Fprintf(&sb, " #%d %s stake $%.2f → %s (digit %s) %+.2f | bal $%.2f",
			t.Index, t.Prediction.Label(), t.Stake, t.Result(), digitLabel(t.Actual), t.ProfitOrLoss, t.BalanceAfter)
		if t.ShadowMismatch {
			sb.WriteString(" [broker≠local]")
		}
	} else {
		fmt.Fprintf(&sb, " | bal $%.2f", ev.Balance)
	}
	if ev.Message != "" {
		fmt.Fprintf(&sb, " | %s", ev.Message)
	}
	return sb.String()
}

// PrintBacktest imprime el resumen de un backtest y, si está activado, su ledger.
func (c *Console) PrintBacktest(r domain.BacktestResult) {
	fmt.Fprintf(c.out, "\n── BACKTEST %s / %s ──\n", r.Market, r.ContractType)
	fmt.Fprintf(c.out, "  Ticks:        %d processed, %d skipped\n", r.TicksProcessed, r.TicksSkipped)
	fmt.Fprintf(c.out, "  Trades:       %d (W %d / L %d, %.1f%% win rate)\n",
		r.TotalTrades, r.Wins, r.Losses, r.WinRate*100)
	fmt.Fprintf(c.out, "  Balance:      $%.2f → $%.2f (net %+.2f)\n", r.StartingBalance, r.FinalBalance, r.NetProfit)
	fmt.Fprintf(c.out, "  Profit factor: %s | Sharpe %.3f\n", ProfitFactorLabel(r), r.SharpeRatio)
	fmt.Fprintf(c.out, "  Drawdown:     $%.2f (%.1f%%)\n", r.MaxDrawdown, r.MaxDrawdownPct)
	fmt.Fprintf(c.out, "  Streaks:      %d wins / %d losses max\n", r.MaxConsecutiveWins, r.MaxConsecutiveLosses)
	fmt.Fprintf(c.out, "  Avg win/loss: $%.2f / $%.2f (largest $%.2f / $%.2f)\n",
		r.AverageWin, r.AverageLoss, r.LargestWin, r.LargestLoss)
	fmt.Fprintf(c.out, "  Stop:         %s", r.StopReason)
	if r.CeilingHits > 0 {
		fmt.Fprintf(c.out, " | martingale ceiling hit %d times", r.CeilingHits)
	}
	fmt.Fprintln(c.out)
	for _, w := range r.Warnings {
		fmt.Fprintf(c.out, "  WARN: %s\n", w)
	}

	if c.trades && len(r.Trades) > 0 {
		c.printTrades(r.Trades)
	}
}

// PrintComparison imprime una fila por backtest, para comparar mercados o contratos.
func (c *Console) PrintComparison(names []string, results []domain.BacktestResult) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Run", "Market", "Contract", "Trades", "Win%", "Net", "PF", "MaxDD", "Sharpe", "Stop")
	for i, r := range results {
		name := ""
		if i < len(names) {
			name = names[i]
		}
		table.Append(
			name,
			r.Market,
			string(r.ContractType),
			fmt.Sprintf("%d", r.TotalTrades),
			fmt.Sprintf("%.1f", r.WinRate*100),
			fmt.Sprintf("%+.2f", r.NetProfit),
			ProfitFactorLabel(r),
			fmt.Sprintf("%.2f", r.MaxDrawdown),
			fmt.Sprintf("%.3f", r.SharpeRatio),
			string(r.StopReason),
		)
	}
	table.Render()
}

func (c *Console) printTrades(trades []domain.TradeRecord) {
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Tick", "Prediction", "Conf", "Actual", "Result", "Stake", "P/L", "Balance", "Lvl")
	for _, t := range trades {
		table.Append(
			fmt.Sprintf("%d", t.Index),
			fmt.Sprintf("%d", t.TickIndex),
			t.Prediction.Label(),
			fmt.Sprintf("%.2f", t.Confidence),
			digitLabel(t.Actual),
			t.Result(),
			fmt.Sprintf("$%.2f", t.Stake),
			fmt.Sprintf("%+.2f", t.ProfitOrLoss),
			fmt.Sprintf("$%.2f", t.BalanceAfter),
			fmt.Sprintf("%d", t.MartingaleLevel),
		)
	}
	table.Render()
}

// PrintDigitStats imprime la distribución de dígitos de una ventana.
func (c *Console) PrintDigitStats(market string, s domain.DigitStats) {
	fmt.Fprintf(c.out, "\n── DIGITS %s (%d samples) ──\n", market, s.Total)
	if s.Empty() {
		fmt.Fprintln(c.out, "  (no data)")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Digit", "Count", "Freq%", "Since last", "Bar")
	for d := 0; d < 10; d++ {
		table.Append(
			fmt.Sprintf("%d", d),
			fmt.Sprintf("%d", s.Counts[d]),
			fmt.Sprintf("%.1f", s.Frequencies[d]*100),
			fmt.Sprintf("%d", s.SinceLast[d]),
			strings.Repeat("█", int(s.Frequencies[d]*50+0.5)),
		)
	}
	table.Render()
	fmt.Fprintf(c.out, "  Most %d | Least %d | Over %d: %.1f%% Under: %.1f%% | Even %.1f%% Odd %.1f%%\n",
		s.MostFrequent, s.LeastFrequent, s.Barrier, s.OverFraction*100, s.UnderFraction*100,
		s.EvenFraction*100, s.OddFraction*100)
	if len(s.Missing) > 0 {
		fmt.Fprintf(c.out, "  Missing: %v\n", s.Missing)
	}
	for _, st := range s.Streaks {
		fmt.Fprintf(c.out, "  Streak: digit %d ×%d at %d\n", st.Digit, st.Length, st.Start)
	}
}

// PrintIndicators imprime los indicadores hot/cold/due/tendencia y un resumen
// de los patrones detectados.
func (c *Console) PrintIndicators(ind domain.Indicators, patterns []domain.Pattern) {
	fmt.Fprintf(c.out, "\n── INDICATORS (last %d digits) ──\n", ind.Span)
	rows := []struct {
		name   string
		scored []domain.ScoredDigit
	}{
		{"Hot", ind.Hot},
		{"Cold", ind.Cold},
		{"Due", ind.Due},
		{"Trending up", ind.TrendingUp},
		{"Trending down", ind.TrendingDown},
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Indicator", "Digits (score)")
	for _, r := range rows {
		parts := make([]string, len(r.scored))
		for i, sd := range r.scored {
			parts[i] = fmt.Sprintf("%d (%.2f)", sd.Digit, sd.Score)
		}
		if len(parts) == 0 {
			parts = append(parts, "-")
		}
		table.Append(r.name, strings.Join(parts, ", "))
	}
	table.Render()

	if len(patterns) == 0 {
		fmt.Fprintln(c.out, "  Patterns: none")
		return
	}
	byKind := make(map[domain.PatternKind]int)
	var strongest domain.Pattern
	for _, p := range patterns {
		byKind[p.Kind]++
		if p.Confidence > strongest.Confidence {
			strongest = p
		}
	}
	fmt.Fprintf(c.out, "  Patterns: %d exact, %d arithmetic, %d odd/even, %d high/low\n",
		byKind[domain.PatternExact], byKind[domain.PatternArithmetic],
		byKind[domain.PatternOddEven], byKind[domain.PatternHighLow])
	fmt.Fprintf(c.out, "  Strongest: %s %v at %d (%.2f)\n", strongest.Kind, strongest.Digits, strongest.Start, strongest.Confidence)
}

// PrintSessions imprime el histórico de sesiones en vivo.
func (c *Console) PrintSessions(sessions []domain.SessionSummary) {
	fmt.Fprintf(c.out, "\n── LIVE SESSIONS (%d) ──\n", len(sessions))
	if len(sessions) == 0 {
		fmt.Fprintln(c.out, "  (none)")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Started", "Market", "Contract", "Status", "Trades", "W/L", "Start$", "Bal$", "Net", "Stop")
	for _, s := range sessions {
		table.Append(
			s.StartedAt.Format("2006-01-02 15:04"),
			s.Market,
			string(s.ContractType),
			string(s.Status),
			fmt.Sprintf("%d", s.Trades),
			fmt.Sprintf("%d/%d", s.Wins, s.Losses),
			fmt.Sprintf("%.2f", s.StartingBalance),
			fmt.Sprintf("%.2f", s.Balance),
			fmt.Sprintf("%+.2f", s.Balance-s.StartingBalance),
			string(s.StopReason),
		)
	}
	table.Render()
}

// ProfitFactorLabel muestra "∞" cuando no hubo pérdidas.
func ProfitFactorLabel(r domain.BacktestResult) string {
	if !r.ProfitFactorDefined() {
		return "∞"
	}
	return fmt.Sprintf("%.2f", r.ProfitFactor)
}

func digitLabel(d domain.Digit) string {
	if !d.Valid() {
		return "?"
	}
	return fmt.Sprintf("%d", d)
}

// Multi reparte cada evento entre varios notificadores. Un fallo no impide
// que los demás reciban el evento.
type Multi []ports.Notifier

// Notify implementa ports.Notifier.
func (m Multi) Notify(ctx context.Context, ev domain.SessionEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
