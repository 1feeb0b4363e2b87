package deriv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/digitbot/internal/domain"
)

func TestTickQueue_FlushesOnConnectionClose(t *testing.T) {
	q := newTickQueue()
	base := time.Unix(1704067200, 0).UTC()
	for i := 0; i < 3; i++ {
		q.push(domain.Tick{Timestamp: base.Add(time.Duration(i) * time.Second), Price: float64(100 + i)})
	}
	done := make(chan struct{})
	close(done)

	out := make(chan domain.Tick, 3)
	q.pump(context.Background(), done, out)

	var prices []float64
	for tk := range out {
		prices = append(prices, tk.Price)
	}
	assert.Equal(t, []float64{100, 101, 102}, prices)
}

func TestTickQueue_DropsOldestWhenFull(t *testing.T) {
	q := newTickQueue()
	for i := 0; i < maxQueuedTicks+5; i++ {
		q.push(domain.Tick{Timestamp: time.Unix(int64(i), 0), Price: float64(i)})
	}
	q.close()

	out := make(chan domain.Tick, maxQueuedTicks)
	q.pump(context.Background(), nil, out)

	assert.Len(t, out, maxQueuedTicks)
	first := <-out
	assert.Equal(t, float64(5), first.Price)
}
