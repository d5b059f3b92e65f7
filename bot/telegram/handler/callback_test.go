package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/liuran001/MuzmoBot-Go/bot/muzmo"
	"github.com/liuran001/MuzmoBot-Go/bot/pipeline"
	"github.com/liuran001/MuzmoBot-Go/bot/session"
	"github.com/liuran001/MuzmoBot-Go/bot/telegram"
	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// apiRecorder is a fake Bot API server that records called methods.
type apiRecorder struct {
	mu      sync.Mutex
	methods []string
}

func (a *apiRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	a.mu.Lock()
	a.methods = append(a.methods, method)
	a.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "editMessageText", "sendMessage":
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":10,"date":0,"chat":{"id":1,"type":"private"}}}`))
	default:
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}
}

func (a *apiRecorder) calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.methods...)
}

func newTestBot(t *testing.T) (*telego.Bot, *apiRecorder) {
	t.Helper()
	rec := &apiRecorder{}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)

	b, err := telego.NewBot("123456:"+strings.Repeat("A", 35),
		telego.WithAPIServer(srv.URL),
		telego.WithHTTPClient(srv.Client()),
		telego.WithDiscardLogger(),
	)
	require.NoError(t, err)
	return b, rec
}

type expiredSelector struct{}

func (expiredSelector) Candidate(chatID int64, token string) (muzmo.Candidate, error) {
	return muzmo.Candidate{}, session.ErrSessionExpired
}

func (expiredSelector) Select(ctx context.Context, sel pipeline.Selection, d pipeline.Deliverer) (*pipeline.Outcome, error) {
	return nil, session.ErrSessionExpired
}

func (expiredSelector) Retry(ctx context.Context, sel pipeline.Selection, d pipeline.Deliverer) (*pipeline.Outcome, error) {
	return nil, session.ErrSessionExpired
}

func callbackUpdate(data string) *telego.Update {
	return &telego.Update{CallbackQuery: &telego.CallbackQuery{
		ID:      "q-1",
		From:    telego.User{ID: 1, FirstName: "Ivan"},
		Data:    data,
		Message: &telego.Message{MessageID: 10, Chat: telego.Chat{ID: 1, Type: "private"}},
	}}
}

func TestSelectHandlerAnswersGarbageThroughRateLimiter(t *testing.T) {
	b, rec := newTestBot(t)
	h := &SelectHandler{Pipeline: expiredSelector{}, RateLimiter: telegram.NewRateLimiter(1000, 5)}

	h.Handle(context.Background(), b, callbackUpdate("music 163 123"))
	assert.Equal(t, []string{"answerCallbackQuery"}, rec.calls())
}

func TestSelectHandlerReportsExpiredSession(t *testing.T) {
	b, rec := newTestBot(t)
	h := &SelectHandler{Pipeline: expiredSelector{}, RateLimiter: telegram.NewRateLimiter(1000, 5)}

	h.Handle(context.Background(), b, callbackUpdate(callbackData(actionPick, "sid:0")))
	assert.Equal(t, []string{"answerCallbackQuery", "editMessageText"}, rec.calls())

	_, busy := h.busy.Load(int64(1))
	assert.False(t, busy)
}
