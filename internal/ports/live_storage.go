package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/digitbot/internal/domain"
)

// SessionStorage persists live trading state.
type SessionStorage interface {
	// Sessions
	SaveSession(ctx context.Context, s domain.SessionSummary) error
	GetSession(ctx context.Context, id string) (domain.SessionSummary, error)
	ListSessions(ctx context.Context, limit int) ([]domain.SessionSummary, error)

	// Trades
	SaveLiveTrade(ctx context.Context, sessionID string, t domain.TradeRecord) error
	GetLiveTrades(ctx context.Context, sessionID string) ([]domain.TradeRecord, error)

	// Digit history
	SaveDigit(ctx context.Context, market string, at time.Time, price float64, d domain.Digit) error
	RecentDigits(ctx context.Context, market string, limit int) ([]domain.Digit, error)
}
