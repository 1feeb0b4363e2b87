package domain

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared by the engine and its adapters.
var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrMalformedTick    = errors.New("malformed tick")
	ErrUnknownContract  = errors.New("unknown contract type")
	ErrContractRejected = errors.New("contract rejected")
	ErrNotFound         = errors.New("not found")
)

// DefaultPrecision is used for markets without a known pip size.
const DefaultPrecision = 2

// marketPrecision is the number of decimals each synthetic index is quoted with.
var marketPrecision = map[string]int{
	"R_10":   3,
	"R_25":   3,
	"R_50":   4,
	"R_75":   4,
	"R_100":  2,
	"RDBEAR": 4,
	"RDBULL": 4,
}

// MarketPrecision returns the quote precision for a market symbol.
func MarketPrecision(market string) int {
	if p, ok := marketPrecision[market]; ok {
		return p
	}
	return DefaultPrecision
}

// Tick is one timestamped price observation.
type Tick struct {
	Timestamp time.Time
	Price     float64
}

// Valid reports whether the tick carries a usable price.
func (t Tick) Valid() bool {
	return !math.IsNaN(t.Price) && !math.IsInf(t.Price, 0) && t.Price >= 0
}

// Digit is the last decimal digit of a quote, 0-9.
type Digit int

// Valid reports whether d is in 0-9.
func (d Digit) Valid() bool { return d >= 0 && d <= 9 }

// Even reports whether the digit is even.
func (d Digit) Even() bool { return d%2 == 0 }

// LastDigit renders price with `precision` decimals and returns its final digit.
func LastDigit(price float64, precision int) (Digit, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return 0, fmt.Errorf("%w: price %v", ErrMalformedTick, price)
	}
	if precision < 0 {
		return 0, fmt.Errorf("%w: negative precision %d", ErrInvalidConfig, precision)
	}
	s := decimal.NewFromFloat(price).StringFixed(int32(precision))
	return Digit(s[len(s)-1] - '0'), nil
}

// DigitOf extracts the tick's last digit.
func (t Tick) DigitOf(precision int) (Digit, error) {
	return LastDigit(t.Price, precision)
}
