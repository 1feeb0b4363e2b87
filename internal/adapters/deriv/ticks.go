package deriv

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/digitbot/internal/domain"
)

// maxQueuedTicks limita los ticks pendientes de consumir por suscripción.
// Si el consumidor se atrasa más que esto se descartan los más antiguos.
const maxQueuedTicks = 4096

// History devuelve los últimos count ticks del mercado, el más antiguo primero.
func (c *Client) History(ctx context.Context, market string, count int) ([]domain.Tick, error) {
	var resp historyResponse
	err := c.call(ctx, func(id int) any {
		return historyRequest{TicksHistory: market, Count: count, End: "latest", Style: "ticks", ReqID: id}
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("deriv.History %s: %w", market, err)
	}

	prices, times := resp.History.Prices, resp.History.Times
	if len(prices) != len(times) {
		return nil, fmt.Errorf("deriv.History %s: %d prices for %d times", market, len(prices), len(times))
	}
	ticks := make([]domain.Tick, len(prices))
	for i := range prices {
		ticks[i] = domain.Tick{
			Timestamp: time.Unix(times[i], 0).UTC(),
			Price:     prices[i].InexactFloat64(),
		}
	}
	return ticks, nil
}

// Subscribe entrega los ticks del mercado en orden hasta que ctx se cancela o
// la conexión se cierra.
func (c *Client) Subscribe(ctx context.Context, market string) (<-chan domain.Tick, error) {
	msgs, done, cancel, err := c.stream(ctx, func(id int) any {
		return ticksRequest{Ticks: market, Subscribe: 1, ReqID: id}
	})
	if err != nil {
		return nil, fmt.Errorf("deriv.Subscribe %s: %w", market, err)
	}

	q := newTickQueue()
	out := make(chan domain.Tick)
	go q.pump(ctx, done, out)

	go func() {
		defer cancel()
		var subID string
		for {
			select {
			case <-ctx.Done():
				c.forget(subID)
				return
			case <-done:
				return
			case raw := <-msgs:
				var env envelope
				if err := json.Unmarshal(raw, &env); err != nil {
					continue
				}
				if env.Error != nil {
					slog.Error("deriv: tick subscription error", "market", market, "code", env.Error.Code, "msg", env.Error.Message)
					q.close()
					return
				}
				if env.Subscription != nil {
					subID = env.Subscription.ID
				}
				var tr tickResponse
				if err := decode(raw, &tr); err != nil {
					slog.Debug("deriv: bad tick", "err", err)
					continue
				}
				q.push(domain.Tick{
					Timestamp: time.Unix(tr.Tick.Epoch, 0).UTC(),
					Price:     tr.Tick.Quote.InexactFloat64(),
				})
			}
		}
	}()
	return out, nil
}

// forget cancela una suscripción en el servidor; best effort.
func (c *Client) forget(subID string) {
	if subID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	var resp json.RawMessage
	if err := c.call(ctx, func(id int) any { return forgetRequest{Forget: subID, ReqID: id} }, &resp); err != nil {
		slog.Debug("deriv: forget failed", "subscription", subID, "err", err)
	}
}

// tickQueue desacopla el readLoop del consumidor: el readLoop nunca se bloquea
// esperando a que el engine procese un tick.
type tickQueue struct {
	mu      sync.Mutex
	buf     []domain.Tick
	closed  bool
	ready   chan struct{}
	dropped int
}

func newTickQueue() *tickQueue {
	return &tickQueue{ready: make(chan struct{}, 1)}
}

func (q *tickQueue) push(t domain.Tick) {
	q.mu.Lock()
	if len(q.buf) >= maxQueuedTicks {
		q.buf = q.buf[1:]
		q.dropped++
		if q.dropped%100 == 1 {
			slog.Warn("deriv: consumer lagging, dropping oldest ticks", "dropped", q.dropped)
		}
	}
	q.buf = append(q.buf, t)
	q.mu.Unlock()
	q.signal()
}

func (q *tickQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *tickQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// pump entrega los ticks en orden y cierra out al terminar. Si la conexión
// se cierra, entrega antes lo que ya estaba en la cola.
func (q *tickQueue) pump(ctx context.Context, done <-chan struct{}, out chan<- domain.Tick) {
	defer close(out)
	for {
		last := false
		select {
		case <-ctx.Done():
			return
		case <-done:
			last = true
		case <-q.ready:
		}

		q.mu.Lock()
		batch, closed := q.buf, q.closed
		q.buf = nil
		q.mu.Unlock()

		for _, t := range batch {
			select {
			case out <- t:
			case <-ctx.Done():
				return
			}
		}
		if closed || last {
			return
		}
	}
}
