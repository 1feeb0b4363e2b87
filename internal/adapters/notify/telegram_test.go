package notify_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/digitbot/internal/adapters/notify"
	"github.com/alejandrodnm/digitbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTelegram responde getMe y sendMessage; failFirst hace fallar los
// primeros envíos.
type fakeTelegram struct {
	mu        sync.Mutex
	failFirst int
	sends     int
	texts     []string
	chatIDs   []string
}

func (f *fakeTelegram) handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"digitbot","username":"digitbot"}}`))
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		_ = r.ParseForm()
		f.mu.Lock()
		defer f.mu.Unlock()
		f.sends++
		if f.sends <= f.failFirst {
			w.Write([]byte(`{"ok":false,"error_code":500,"description":"Internal Server Error"}`))
			return
		}
		f.texts = append(f.texts, r.PostForm.Get("text"))
		f.chatIDs = append(f.chatIDs, r.PostForm.Get("chat_id"))
		w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"},"text":"ok"}}`))
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeTelegram) sent() (texts, chatIDs []string, sends int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...), append([]string(nil), f.chatIDs...), f.sends
}

func newTelegram(t *testing.T, f *fakeTelegram) *notify.Telegram {
	srv := httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(srv.Close)
	tg, err := notify.NewTelegramWithEndpoint("TOKEN", "42", srv.URL+"/bot%s/%s", srv.Client(), 3, time.Millisecond)
	require.NoError(t, err)
	return tg
}

func TestTelegram_NotifyTrade(t *testing.T) {
	f := &fakeTelegram{}
	tg := newTelegram(t, f)

	tr := makeTrade(1, true, 9.5)
	err := tg.Notify(context.Background(), domain.SessionEvent{Kind: domain.EventTrade, Market: "R_100", Trade: &tr})
	require.NoError(t, err)

	texts, chatIDs, _ := f.sent()
	require.Len(t, texts, 1)
	assert.Equal(t, "42", chatIDs[0])
	assert.True(t, strings.HasPrefix(texts[0], "🟢"))
	assert.Contains(t, texts[0], `\+9\.50`, "MarkdownV2 escaped")
}

func TestTelegram_RetriesThenSucceeds(t *testing.T) {
	f := &fakeTelegram{failFirst: 2}
	tg := newTelegram(t, f)

	err := tg.Notify(context.Background(), domain.SessionEvent{Kind: domain.EventDegraded, Market: "R_100", Message: "broker down"})
	require.NoError(t, err)
	texts, _, sends := f.sent()
	assert.Equal(t, 3, sends)
	require.Len(t, texts, 1)
	assert.True(t, strings.HasPrefix(texts[0], "⚠️"))
}

func TestTelegram_GivesUp(t *testing.T) {
	f := &fakeTelegram{failFirst: 10}
	tg := newTelegram(t, f)

	err := tg.Notify(context.Background(), domain.SessionEvent{Kind: domain.EventStopped})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 retries")
}

func TestTelegram_OnlyKinds(t *testing.T) {
	f := &fakeTelegram{}
	tg := newTelegram(t, f)
	tg.OnlyKinds(domain.EventStopped)

	tr := makeTrade(1, false, -10)
	require.NoError(t, tg.Notify(context.Background(), domain.SessionEvent{Kind: domain.EventTrade, Trade: &tr}))
	require.NoError(t, tg.Notify(context.Background(), domain.SessionEvent{Kind: domain.EventStopped}))
	texts, _, _ := f.sent()
	assert.Len(t, texts, 1)
}

func TestTelegram_InvalidChatID(t *testing.T) {
	f := &fakeTelegram{}
	srv := httptest.NewServer(http.HandlerFunc(f.handler))
	defer srv.Close()

	_, err := notify.NewTelegramWithEndpoint("TOKEN", "not-a-number", srv.URL+"/bot%s/%s", srv.Client(), 1, time.Millisecond)
	assert.Error(t, err)
}

func TestTelegram_NoWaitAfterLastAttempt(t *testing.T) {
	f := &fakeTelegram{failFirst: 10}
	srv := httptest.NewServer(http.HandlerFunc(f.handler))
	defer srv.Close()
	tg, err := notify.NewTelegramWithEndpoint("TOKEN", "42", srv.URL+"/bot%s/%s", srv.Client(), 1, time.Second)
	require.NoError(t, err)

	start := time.Now()
	err = tg.Notify(context.Background(), domain.SessionEvent{Kind: domain.EventStopped})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestTelegram_AsyncDeliversOnClose(t *testing.T) {
	f := &fakeTelegram{failFirst: 2}
	srv := httptest.NewServer(http.HandlerFunc(f.handler))
	defer srv.Close()
	tg, err := notify.NewTelegramWithEndpoint("TOKEN", "42", srv.URL+"/bot%s/%s", srv.Client(), 3, 100*time.Millisecond)
	require.NoError(t, err)
	tg.StartAsync(8)

	start := time.Now()
	require.NoError(t, tg.Notify(context.Background(), domain.SessionEvent{Kind: domain.EventDegraded, Message: "broker down"}))
	require.NoError(t, tg.Notify(context.Background(), domain.SessionEvent{Kind: domain.EventStopped}))
	assert.Less(t, time.Since(start), 100*time.Millisecond, "Notify only enqueues")

	tg.Close()
	texts, _, sends := f.sent()
	assert.Equal(t, 4, sends)
	require.Len(t, texts, 2)
	assert.True(t, strings.HasPrefix(texts[0], "⚠️"))
	assert.True(t, strings.HasPrefix(texts[1], "🏁"))

	// cerrado: vuelve a enviar en línea
	require.NoError(t, tg.Notify(context.Background(), domain.SessionEvent{Kind: domain.EventStarted}))
	texts, _, _ = f.sent()
	assert.Len(t, texts, 3)
}
