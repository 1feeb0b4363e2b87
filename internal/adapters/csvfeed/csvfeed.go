// Package csvfeed lee ticks históricos desde CSV y exporta ledgers de trades.
//
// Formato de entrada (cabecera obligatoria):
//
//	epoch,price[,market]
//
// price se lee como texto para conservar los ceros finales; un precio no
// numérico se entrega como NaN y el backtest lo cuenta como tick malformado.
package csvfeed

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/digitbot/internal/domain"
)

// TickRow es una fila del CSV de ticks.
type TickRow struct {
	Epoch  int64  `csv:"epoch"`
	Price  string `csv:"price"`
	Market string `csv:"market,omitempty"`
}

// LedgerRow es una fila del CSV exportado.
type LedgerRow struct {
	Index           int     `csv:"index"`
	TickIndex       int     `csv:"tick_index"`
	Timestamp       string  `csv:"timestamp"`
	ContractType    string  `csv:"contract_type"`
	Prediction      string  `csv:"prediction"`
	Actual          int     `csv:"actual"`
	Result          string  `csv:"result"`
	Stake           float64 `csv:"stake"`
	ProfitOrLoss    float64 `csv:"profit_or_loss"`
	BalanceAfter    float64 `csv:"balance_after"`
	Confidence      float64 `csv:"confidence"`
	MartingaleLevel int     `csv:"martingale_level"`
	ContractID      string  `csv:"contract_id"`
}

// ReadTicks carga todas las filas del fichero. Si market no está vacío y el
// fichero trae columna market, solo devuelve las filas de ese mercado.
func ReadTicks(path, market string) ([]domain.Tick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csvfeed.ReadTicks: %w", err)
	}
	defer f.Close()

	var rows []TickRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("csvfeed.ReadTicks %s: %w", path, err)
	}

	ticks := make([]domain.Tick, 0, len(rows))
	for _, r := range rows {
		if market != "" && r.Market != "" && r.Market != market {
			continue
		}
		ticks = append(ticks, domain.Tick{
			Timestamp: time.Unix(r.Epoch, 0).UTC(),
			Price:     parsePrice(r.Price),
		})
	}
	return ticks, nil
}

func parsePrice(s string) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return math.NaN()
	}
	return d.InexactFloat64()
}

// WriteLedger exporta los trades a path, sobrescribiendo el fichero.
func WriteLedger(path string, trades []domain.TradeRecord) error {
	rows := make([]LedgerRow, len(trades))
	for i, t := range trades {
		rows[i] = LedgerRow{
			Index:           t.Index,
			TickIndex:       t.TickIndex,
			Timestamp:       t.Timestamp.UTC().Format(time.RFC3339),
			ContractType:    string(t.ContractType),
			Prediction:      t.Prediction.Label(),
			Actual:          int(t.Actual),
			Result:          t.Result(),
			Stake:           t.Stake,
			ProfitOrLoss:    t.ProfitOrLoss,
			BalanceAfter:    t.BalanceAfter,
			Confidence:      t.Confidence,
			MartingaleLevel: t.MartingaleLevel,
			ContractID:      t.ContractID,
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csvfeed.WriteLedger: %w", err)
	}
	defer f.Close()
	if err := gocsv.MarshalFile(&rows, f); err != nil {
		return fmt.Errorf("csvfeed.WriteLedger %s: %w", path, err)
	}
	return f.Close()
}

// Source reproduce un CSV como ports.TickSource. Sirve para backtests sin red
// y para ensayar el loop en vivo contra datos grabados.
type Source struct {
	path     string
	interval time.Duration
}

// NewSource crea un Source; interval es la pausa entre ticks en Subscribe.
func NewSource(path string, interval time.Duration) *Source {
	return &Source{path: path, interval: interval}
}

// History devuelve los últimos count ticks del fichero.
func (s *Source) History(_ context.Context, market string, count int) ([]domain.Tick, error) {
	ticks, err := ReadTicks(s.path, market)
	if err != nil {
		return nil, err
	}
	if count > 0 && len(ticks) > count {
		ticks = ticks[len(ticks)-count:]
	}
	return ticks, nil
}

// Subscribe entrega el fichero completo en orden y cierra el canal al acabar.
func (s *Source) Subscribe(ctx context.Context, market string) (<-chan domain.Tick, error) {
	ticks, err := ReadTicks(s.path, market)
	if err != nil {
		return nil, err
	}
	out := make(chan domain.Tick)
	go func() {
		defer close(out)
		for _, t := range ticks {
			select {
			case out <- t:
			case <-ctx.Done():
				return
			}
			if s.interval > 0 {
				select {
				case <-time.After(s.interval):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
