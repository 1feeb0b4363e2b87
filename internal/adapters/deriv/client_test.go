package deriv_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/digitbot/internal/adapters/deriv"
	"github.com/alejandrodnm/digitbot/internal/domain"
)

// fakeDeriv emula el subconjunto del API que usa el cliente.
type fakeDeriv struct {
	t        *testing.T
	history  []byte
	attempts atomic.Int32
	failFor  int32 // primeras N conexiones devuelven 503
	buys     atomic.Int32
}

func (f *fakeDeriv) handler(w http.ResponseWriter, r *http.Request) {
	n := f.attempts.Add(1)
	if n <= f.failFor {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	assert.Equal(f.t, "1089", r.URL.Query().Get("app_id"))

	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var req map[string]any
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		reqID := req["req_id"]
		reply := func(msg map[string]any) {
			msg["req_id"] = reqID
			_ = conn.WriteJSON(msg)
		}

		switch {
		case req["authorize"] != nil:
			if req["authorize"] == "bad" {
				reply(map[string]any{"msg_type": "authorize", "error": map[string]any{"code": "InvalidToken", "message": "The token is invalid."}})
				continue
			}
			reply(map[string]any{"msg_type": "authorize", "authorize": map[string]any{"loginid": "VRTC1", "currency": "USD", "balance": 1000}})

		case req["ticks_history"] != nil:
			var msg map[string]any
			require.NoError(f.t, json.Unmarshal(f.history, &msg))
			reply(msg)

		case req["ticks"] != nil:
			for i, q := range []float64{1234.5, 1234.51, 1234.67} {
				reply(map[string]any{
					"msg_type":     "tick",
					"subscription": map[string]any{"id": "sub-ticks"},
					"tick":         map[string]any{"epoch": 1704067300 + i, "quote": q, "symbol": req["ticks"], "pip_size": 2},
				})
			}

		case req["buy"] != nil:
			f.buys.Add(1)
			params := req["parameters"].(map[string]any)
			if params["amount"].(float64) > 100 {
				reply(map[string]any{"msg_type": "buy", "error": map[string]any{"code": "InsufficientBalance", "message": "Your account balance is insufficient."}})
				continue
			}
			if params["contract_type"] == "DIGITODD" {
				reply(map[string]any{"msg_type": "buy", "error": map[string]any{"code": "RateLimit", "message": "slow down"}})
				continue
			}
			assert.Equal(f.t, "DIGITMATCH", params["contract_type"])
			assert.Equal(f.t, "7", params["barrier"])
			assert.Equal(f.t, "t", params["duration_unit"])
			reply(map[string]any{"msg_type": "buy", "buy": map[string]any{"contract_id": 4242, "buy_price": params["amount"]}})

		case req["proposal_open_contract"] != nil:
			sub := map[string]any{"id": "sub-poc"}
			reply(map[string]any{"msg_type": "proposal_open_contract", "subscription": sub,
				"proposal_open_contract": map[string]any{"contract_id": 4242, "is_sold": 0, "status": "open"}})
			reply(map[string]any{"msg_type": "proposal_open_contract", "subscription": sub,
				"proposal_open_contract": map[string]any{
					"contract_id": 4242, "is_sold": 1, "status": "won", "profit": 80.5,
					"exit_tick": 1234.7, "exit_tick_display_value": "1234.70", "sell_time": 1704067310,
				}})

		case req["balance"] != nil:
			reply(map[string]any{"msg_type": "balance", "balance": map[string]any{"balance": 987.65, "currency": "USD"}})

		case req["forget"] != nil:
			reply(map[string]any{"msg_type": "forget", "forget": 1})

		case req["ping"] != nil:
			reply(map[string]any{"msg_type": "ping", "ping": "pong"})
		}
	}
}

func newFake(t *testing.T) (*fakeDeriv, *httptest.Server) {
	data, err := os.ReadFile("../../../testdata/fixtures/deriv_ticks_history.json")
	require.NoError(t, err)
	f := &fakeDeriv{t: t, history: data}
	srv := httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(srv.Close)
	return f, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func connect(t *testing.T, srv *httptest.Server, token string) *deriv.Client {
	c := deriv.NewClient(wsURL(srv), "", token, deriv.WithRetryWait(time.Millisecond))
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConnect_RetriesWithBackoff(t *testing.T) {
	f, srv := newFake(t)
	f.failFor = 2

	connect(t, srv, "good")
	assert.Equal(t, int32(3), f.attempts.Load())
}

func TestConnect_GivesUpAfterThreeAttempts(t *testing.T) {
	f, srv := newFake(t)
	f.failFor = 10

	c := deriv.NewClient(wsURL(srv), "", "", deriv.WithRetryWait(time.Millisecond))
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(3), f.attempts.Load())
}

func TestConnect_InvalidTokenNotRetried(t *testing.T) {
	f, srv := newFake(t)

	c := deriv.NewClient(wsURL(srv), "", "bad", deriv.WithRetryWait(time.Millisecond))
	err := c.Connect(context.Background())

	var apiErr *deriv.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "InvalidToken", apiErr.Code)
	assert.Equal(t, int32(1), f.attempts.Load())
}

func TestHistory(t *testing.T) {
	_, srv := newFake(t)
	c := connect(t, srv, "")

	ticks, err := c.History(context.Background(), "R_100", 5)
	require.NoError(t, err)
	require.Len(t, ticks, 5)
	assert.Equal(t, time.Unix(1704067200, 0).UTC(), ticks[0].Timestamp)

	// 1234.5 arrives without its trailing zero; the digit is still 0
	d, err := ticks[0].DigitOf(domain.MarketPrecision("R_100"))
	require.NoError(t, err)
	assert.Equal(t, domain.Digit(0), d)
	d, _ = ticks[4].DigitOf(2)
	assert.Equal(t, domain.Digit(9), d)
}

func TestSubscribe_DeliversInOrder(t *testing.T) {
	_, srv := newFake(t)
	c := connect(t, srv, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := c.Subscribe(ctx, "R_100")
	require.NoError(t, err)

	var prices []float64
	for i := 0; i < 3; i++ {
		select {
		case tk := <-ch:
			prices = append(prices, tk.Price)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for ticks")
		}
	}
	assert.Equal(t, []float64{1234.5, 1234.51, 1234.67}, prices)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel closes after cancel")
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
}

func TestBuy_WaitsForSettlement(t *testing.T) {
	_, srv := newFake(t)
	c := connect(t, srv, "good")

	out, err := c.Buy(context.Background(), domain.ContractRequest{
		Market:       "R_100",
		ContractType: domain.ContractMatches,
		Digit:        7,
		Stake:        10,
		Currency:     "USD",
		DurationTick: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "4242", out.ContractID)
	assert.True(t, out.Won)
	assert.InDelta(t, 80.5, out.Profit, 1e-9)
	assert.True(t, out.HasExit)
	assert.Equal(t, domain.Digit(0), out.ExitDigit)
	assert.Equal(t, time.Unix(1704067310, 0).UTC(), out.SettledAt)
}

func TestBuy_RejectionIsFinal(t *testing.T) {
	_, srv := newFake(t)
	c := connect(t, srv, "good")

	_, err := c.Buy(context.Background(), domain.ContractRequest{
		Market: "R_100", ContractType: domain.ContractMatches, Digit: 7, Stake: 500, Currency: "USD", DurationTick: 1,
	})
	assert.ErrorIs(t, err, domain.ErrContractRejected)
}

func TestBuy_TransientErrorIsNotRejection(t *testing.T) {
	_, srv := newFake(t)
	c := connect(t, srv, "good")

	_, err := c.Buy(context.Background(), domain.ContractRequest{
		Market: "R_100", ContractType: domain.ContractEvenOdd, Direction: domain.DirectionOdd, Stake: 1, Currency: "USD", DurationTick: 1,
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrContractRejected)
}

func TestBuy_MissingDirection(t *testing.T) {
	f, srv := newFake(t)
	c := connect(t, srv, "good")

	_, err := c.Buy(context.Background(), domain.ContractRequest{
		Market: "R_100", ContractType: domain.ContractOverUnder, Digit: 5, Stake: 1,
	})
	assert.ErrorIs(t, err, domain.ErrContractRejected)
	assert.Equal(t, int32(0), f.buys.Load())
}

func TestBalance(t *testing.T) {
	_, srv := newFake(t)
	c := connect(t, srv, "good")

	bal, err := c.Balance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 987.65, bal, 1e-9)
}

func TestClosedClient(t *testing.T) {
	_, srv := newFake(t)
	c := connect(t, srv, "")
	require.NoError(t, c.Close())

	_, err := c.Balance(context.Background())
	assert.ErrorIs(t, err, deriv.ErrClosed)
}
