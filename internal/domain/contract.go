package domain

import (
	"fmt"
	"strings"
	"time"
)

// ContractType is the digit contract family a session trades.
type ContractType string

const (
	ContractMatches   ContractType = "matches"
	ContractDiffers   ContractType = "differs"
	ContractOverUnder ContractType = "over_under"
	ContractEvenOdd   ContractType = "even_odd"
)

// ContractTypes lists every supported contract type.
var ContractTypes = []ContractType{ContractMatches, ContractDiffers, ContractOverUnder, ContractEvenOdd}

// ParseContractType accepts the canonical names, case-insensitive.
func ParseContractType(s string) (ContractType, error) {
	ct := ContractType(strings.ToLower(strings.TrimSpace(s)))
	if !ct.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownContract, s)
	}
	return ct, nil
}

// Valid reports whether ct is a known contract type.
func (ct ContractType) Valid() bool {
	switch ct {
	case ContractMatches, ContractDiffers, ContractOverUnder, ContractEvenOdd:
		return true
	}
	return false
}

// Direction is the side called for over_under and even_odd contracts.
type Direction string

const (
	DirectionNone  Direction = ""
	DirectionOver  Direction = "over"
	DirectionUnder Direction = "under"
	DirectionEven  Direction = "even"
	DirectionOdd   Direction = "odd"
)

// ContractRequest is what the live loop sends to the order-placement collaborator.
type ContractRequest struct {
	Market       string
	ContractType ContractType
	Direction    Direction
	Digit        Digit // predicted digit for matches/differs, barrier for over_under
	Stake        float64
	Currency     string
	DurationTick int
}

// ContractOutcome is the broker's authoritative settlement of a contract.
type ContractOutcome struct {
	ContractID string
	Won        bool
	Profit     float64 // signed balance delta
	ExitDigit  Digit
	HasExit    bool // ExitDigit is only meaningful when true
	SettledAt  time.Time
}
