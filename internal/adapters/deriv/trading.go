package deriv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alejandrodnm/digitbot/internal/domain"
)

// rejectCodes son errores del API que no se resuelven reintentando.
var rejectCodes = map[string]bool{
	"ContractBuyValidationError": true,
	"InvalidContractProposal":    true,
	"InsufficientBalance":        true,
	"InvalidSymbol":              true,
	"MarketIsClosed":             true,
	"PermissionDenied":           true,
	"InputValidationFailed":      true,
}

// contractCode maps a request to the API contract_type.
func contractCode(req domain.ContractRequest) (string, error) {
	switch req.ContractType {
	case domain.ContractMatches:
		return "DIGITMATCH", nil
	case domain.ContractDiffers:
		return "DIGITDIFF", nil
	case domain.ContractOverUnder:
		switch req.Direction {
		case domain.DirectionOver:
			return "DIGITOVER", nil
		case domain.DirectionUnder:
			return "DIGITUNDER", nil
		}
	case domain.ContractEvenOdd:
		switch req.Direction {
		case domain.DirectionEven:
			return "DIGITEVEN", nil
		case domain.DirectionOdd:
			return "DIGITODD", nil
		}
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownContract, req.ContractType)
	}
	return "", fmt.Errorf("%w: %s needs a direction", domain.ErrContractRejected, req.ContractType)
}

// Buy compra el contrato y espera a que se liquide vía proposal_open_contract.
func (c *Client) Buy(ctx context.Context, req domain.ContractRequest) (domain.ContractOutcome, error) {
	code, err := contractCode(req)
	if err != nil {
		return domain.ContractOutcome{}, fmt.Errorf("deriv.Buy: %w", err)
	}
	params := buyParameters{
		ContractType: code,
		Symbol:       req.Market,
		Duration:     req.DurationTick,
		DurationUnit: "t",
		Basis:        "stake",
		Currency:     req.Currency,
		Amount:       req.Stake,
	}
	if req.ContractType != domain.ContractEvenOdd {
		params.Barrier = strconv.Itoa(int(req.Digit))
	}

	var bought buyResponse
	err = c.call(ctx, func(id int) any {
		return buyRequest{Buy: 1, Price: req.Stake, Parameters: params, ReqID: id}
	}, &bought)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && rejectCodes[apiErr.Code] {
			return domain.ContractOutcome{}, fmt.Errorf("deriv.Buy: %w: %v", domain.ErrContractRejected, err)
		}
		return domain.ContractOutcome{}, fmt.Errorf("deriv.Buy: %w", err)
	}

	contractID := bought.Buy.ContractID
	outcome, err := c.waitSettlement(ctx, contractID, req.Market)
	if err != nil {
		return domain.ContractOutcome{}, fmt.Errorf("deriv.Buy: contract %d: %w", contractID, err)
	}
	return outcome, nil
}

// waitSettlement sigue el contrato hasta que se vende.
func (c *Client) waitSettlement(ctx context.Context, contractID int64, market string) (domain.ContractOutcome, error) {
	msgs, done, cancel, err := c.stream(ctx, func(id int) any {
		return openContractRequest{ProposalOpenContract: 1, ContractID: contractID, Subscribe: 1, ReqID: id}
	})
	if err != nil {
		return domain.ContractOutcome{}, err
	}
	defer cancel()

	var subID string
	defer func() { c.forget(subID) }()

	for {
		select {
		case <-ctx.Done():
			return domain.ContractOutcome{}, ctx.Err()
		case <-done:
			return domain.ContractOutcome{}, ErrClosed
		case raw := <-msgs:
			var env envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				continue
			}
			if env.Subscription != nil {
				subID = env.Subscription.ID
			}
			var resp openContractResponse
			if err := decodeResponse(raw, &resp); err != nil {
				return domain.ContractOutcome{}, err
			}
			poc := resp.ProposalOpenContract
			if poc.IsSold == 0 && poc.Status != "won" && poc.Status != "lost" && poc.Status != "sold" {
				continue
			}
			return settlementOutcome(contractID, poc.Profit, poc.Status, poc.ExitTickDisplayValue, poc.ExitTick.InexactFloat64(), poc.SellTime, market), nil
		}
	}
}

// settlementOutcome builds the outcome from a sold contract. The exit digit
// comes from the display value, which keeps the pip-size trailing zeros.
func settlementOutcome(contractID int64, profit float64, status, display string, exitTick float64, sellTime int64, market string) domain.ContractOutcome {
	out := domain.ContractOutcome{
		ContractID: strconv.FormatInt(contractID, 10),
		Won:        status == "won" || (status != "lost" && profit > 0),
		Profit:     profit,
		SettledAt:  time.Now().UTC(),
	}
	if sellTime > 0 {
		out.SettledAt = time.Unix(sellTime, 0).UTC()
	}
	if n := len(display); n > 0 && display[n-1] >= '0' && display[n-1] <= '9' {
		out.ExitDigit = domain.Digit(display[n-1] - '0')
		out.HasExit = true
	} else if exitTick > 0 {
		if d, err := domain.LastDigit(exitTick, domain.MarketPrecision(market)); err == nil {
			out.ExitDigit = d
			out.HasExit = true
		}
	}
	return out
}

// Balance devuelve el saldo de la cuenta autorizada.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	var resp balanceResponse
	if err := c.call(ctx, func(id int) any { return balanceRequest{Balance: 1, ReqID: id} }, &resp); err != nil {
		return 0, fmt.Errorf("deriv.Balance: %w", err)
	}
	return resp.Balance.Balance, nil
}
