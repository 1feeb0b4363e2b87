package ports

import (
	"context"

	"github.com/alejandrodnm/digitbot/internal/domain"
)

// Notifier presenta los eventos de una sesión al usuario.
type Notifier interface {
	// Notify entrega un evento. En consola imprime una línea; en Telegram
	// envía un mensaje al chat configurado.
	Notify(ctx context.Context, ev domain.SessionEvent) error
}
