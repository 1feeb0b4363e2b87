package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/alejandrodnm/digitbot/internal/domain"
)

// Controller es lo que los comandos del bot pueden hacer sobre la sesión.
type Controller interface {
	Pause()
	Resume()
	BreakAfterWin()
	Status() string
}

// Telegram implementa ports.Notifier enviando cada evento al chat configurado.
type Telegram struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	kinds          map[domain.EventKind]bool // vacío = todos

	mu     sync.Mutex
	queue  chan domain.SessionEvent // nil = envío síncrono
	closed bool
	wg     sync.WaitGroup
}

const (
	defaultQueueSize = 64
	asyncSendTimeout = 30 * time.Second
)

// NewTelegram crea el notificador contra el API real de Telegram.
func NewTelegram(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Telegram, error) {
	return NewTelegramWithEndpoint(botToken, chatID, tgbotapi.APIEndpoint, http.DefaultClient, maxRetries, retryDelayBase)
}

// NewTelegramWithEndpoint permite apuntar a otro endpoint (tests).
// endpoint sigue el formato de tgbotapi.APIEndpoint: ".../bot%s/%s".
func NewTelegramWithEndpoint(botToken, chatID, endpoint string, client *http.Client, maxRetries int, retryDelayBase time.Duration) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(botToken, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("notify.NewTelegram: create bot: %w", err)
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("notify.NewTelegram: invalid chat ID: %w", err)
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &Telegram{bot: bot, chatID: id, maxRetries: maxRetries, retryDelayBase: retryDelayBase}, nil
}

// OnlyKinds limita los eventos enviados; los trades pueden ser muchos.
func (t *Telegram) OnlyKinds(kinds ...domain.EventKind) {
	t.kinds = make(map[domain.EventKind]bool, len(kinds))
	for _, k := range kinds {
		t.kinds[k] = true
	}
}

// Notify implementa ports.Notifier. Con StartAsync solo encola el evento.
func (t *Telegram) Notify(ctx context.Context, ev domain.SessionEvent) error {
	if len(t.kinds) > 0 && !t.kinds[ev.Kind] {
		return nil
	}

	t.mu.Lock()
	if t.queue != nil && !t.closed {
		select {
		case t.queue <- ev:
			t.mu.Unlock()
			return nil
		default:
			t.mu.Unlock()
			return fmt.Errorf("notify.Telegram: queue full, %s event dropped", ev.Kind)
		}
	}
	t.mu.Unlock()
	return t.send(ctx, formatEvent(ev))
}

// StartAsync envía los eventos desde una goroutine para que los reintentos
// no frenen el loop de ticks. Close vacía la cola.
func (t *Telegram) StartAsync(buffer int) {
	if buffer <= 0 {
		buffer = defaultQueueSize
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.queue != nil || t.closed {
		return
	}
	t.queue = make(chan domain.SessionEvent, buffer)
	t.wg.Add(1)
	go t.deliver(t.queue)
}

func (t *Telegram) deliver(queue <-chan domain.SessionEvent) {
	defer t.wg.Done()
	for ev := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), asyncSendTimeout)
		if err := t.send(ctx, formatEvent(ev)); err != nil {
			slog.Warn("telegram: event dropped", "kind", ev.Kind, "err", err)
		}
		cancel()
	}
}

// Close espera a que se entreguen los eventos encolados. Los Notify
// posteriores vuelven a ser síncronos.
func (t *Telegram) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	queue := t.queue
	t.mu.Unlock()

	if queue != nil {
		close(queue)
	}
	t.wg.Wait()
}

// ListenForCommands atiende /status, /pause, /resume y /breakwin hasta que ctx
// se cancela. Solo acepta comandos del chat configurado.
func (t *Telegram) ListenForCommands(ctx context.Context, ctl Controller) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				t.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				msg := update.Message
				if msg == nil || !msg.IsCommand() || msg.Chat == nil || msg.Chat.ID != t.chatID {
					continue
				}
				reply := t.handleCommand(msg.Command(), ctl)
				if err := t.send(ctx, escapeMarkdownV2(reply)); err != nil {
					slog.Warn("telegram: reply failed", "command", msg.Command(), "err", err)
				}
			}
		}
	}()
}

func (t *Telegram) handleCommand(cmd string, ctl Controller) string {
	switch cmd {
	case "status":
		return ctl.Status()
	case "pause":
		ctl.Pause()
		return "paused"
	case "resume":
		ctl.Resume()
		return "resumed"
	case "breakwin":
		ctl.BreakAfterWin()
		return "will pause after the next win"
	}
	return "commands: /status /pause /resume /breakwin"
}

// send envía un mensaje MarkdownV2 con backoff lineal.
func (t *Telegram) send(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < t.maxRetries; i++ {
		if _, err := t.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if i == t.maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.retryDelayBase * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("notify.Telegram: failed after %d retries: %w", t.maxRetries, lastErr)
}

func formatEvent(ev domain.SessionEvent) string {
	icon := "ℹ️"
	switch ev.Kind {
	case domain.EventTrade:
		icon = "🔴"
		if ev.Trade != nil && ev.Trade.Won {
			icon = "🟢"
		}
	case domain.EventCeiling, domain.EventDegraded:
		icon = "⚠️"
	case domain.EventStopped:
		icon = "🏁"
	}
	return icon + " " + escapeMarkdownV2(eventLine(ev))
}

// escapeMarkdownV2 escapa los caracteres especiales de MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
