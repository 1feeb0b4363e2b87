package deriv

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// DTOs del WebSocket API de Deriv. Solo se usan dentro de este paquete.

// envelope contiene los campos comunes a toda respuesta.
type envelope struct {
	MsgType      string        `json:"msg_type"`
	ReqID        int           `json:"req_id"`
	Error        *apiError     `json:"error,omitempty"`
	Subscription *subscription `json:"subscription,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type subscription struct {
	ID string `json:"id"`
}

// --- requests ---

type authorizeRequest struct {
	Authorize string `json:"authorize"`
	ReqID     int    `json:"req_id"`
}

type historyRequest struct {
	TicksHistory string `json:"ticks_history"`
	Count        int    `json:"count"`
	End          string `json:"end"`
	Style        string `json:"style"`
	ReqID        int    `json:"req_id"`
}

type ticksRequest struct {
	Ticks     string `json:"ticks"`
	Subscribe int    `json:"subscribe"`
	ReqID     int    `json:"req_id"`
}

type forgetRequest struct {
	Forget string `json:"forget"`
	ReqID  int    `json:"req_id"`
}

type buyRequest struct {
	Buy        int           `json:"buy"`
	Price      float64       `json:"price"`
	Parameters buyParameters `json:"parameters"`
	ReqID      int           `json:"req_id"`
}

type buyParameters struct {
	ContractType string  `json:"contract_type"`
	Symbol       string  `json:"symbol"`
	Duration     int     `json:"duration"`
	DurationUnit string  `json:"duration_unit"`
	Barrier      string  `json:"barrier,omitempty"`
	Basis        string  `json:"basis"`
	Currency     string  `json:"currency"`
	Amount       float64 `json:"amount"`
}

type openContractRequest struct {
	ProposalOpenContract int   `json:"proposal_open_contract"`
	ContractID           int64 `json:"contract_id"`
	Subscribe            int   `json:"subscribe"`
	ReqID                int   `json:"req_id"`
}

type balanceRequest struct {
	Balance int `json:"balance"`
	ReqID   int `json:"req_id"`
}

type pingRequest struct {
	Ping  int `json:"ping"`
	ReqID int `json:"req_id"`
}

// --- responses ---

type authorizeResponse struct {
	Authorize struct {
		LoginID  string  `json:"loginid"`
		Balance  float64 `json:"balance"`
		Currency string  `json:"currency"`
	} `json:"authorize"`
}

// historyResponse: los precios llegan como números JSON; decimal conserva la
// representación exacta.
type historyResponse struct {
	History struct {
		Prices []decimal.Decimal `json:"prices"`
		Times  []int64           `json:"times"`
	} `json:"history"`
	PipSize int `json:"pip_size"`
}

type tickResponse struct {
	Tick struct {
		Epoch   int64           `json:"epoch"`
		Quote   decimal.Decimal `json:"quote"`
		Symbol  string          `json:"symbol"`
		PipSize int             `json:"pip_size"`
	} `json:"tick"`
}

type buyResponse struct {
	Buy struct {
		ContractID   int64   `json:"contract_id"`
		BuyPrice     float64 `json:"buy_price"`
		BalanceAfter float64 `json:"balance_after"`
		LongCode     string  `json:"longcode"`
	} `json:"buy"`
}

type openContractResponse struct {
	ProposalOpenContract struct {
		ContractID           int64           `json:"contract_id"`
		IsSold               int             `json:"is_sold"`
		Status               string          `json:"status"` // open | won | lost | sold
		Profit               float64         `json:"profit"`
		ExitTick             decimal.Decimal `json:"exit_tick"`
		ExitTickDisplayValue string          `json:"exit_tick_display_value"`
		SellTime             int64           `json:"sell_time"`
		DateExpiry           int64           `json:"date_expiry"`
	} `json:"proposal_open_contract"`
}

type balanceResponse struct {
	Balance struct {
		Balance  float64 `json:"balance"`
		Currency string  `json:"currency"`
	} `json:"balance"`
}

// decode deserializa el mensaje completo en out.
func decode(raw []byte, out any) error {
	return json.Unmarshal(raw, out)
}
