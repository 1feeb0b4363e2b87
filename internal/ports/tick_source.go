package ports

import (
	"context"

	"github.com/alejandrodnm/digitbot/internal/domain"
)

// TickSource provee ticks de un mercado, históricos o en vivo.
type TickSource interface {
	// History devuelve los últimos count ticks del mercado, el más antiguo primero.
	History(ctx context.Context, market string, count int) ([]domain.Tick, error)

	// Subscribe entrega ticks en orden de llegada hasta que ctx se cancela.
	// El canal se cierra cuando la suscripción termina.
	Subscribe(ctx context.Context, market string) (<-chan domain.Tick, error)
}
