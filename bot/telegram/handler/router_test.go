package handler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	name  string
	mu    sync.Mutex
	calls []string
	block chan struct{}

	running atomic.Int32
	maxSeen atomic.Int32
}

func (h *recordingHandler) Handle(ctx context.Context, b *telego.Bot, update *telego.Update) {
	cur := h.running.Add(1)
	defer h.running.Add(-1)
	for {
		seen := h.maxSeen.Load()
		if cur <= seen || h.maxSeen.CompareAndSwap(seen, cur) {
			break
		}
	}
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	h.calls = append(h.calls, h.name)
	h.mu.Unlock()
}

func commandUpdate(text string, chatType string) telego.Update {
	return telego.Update{Message: &telego.Message{
		Text:     text,
		Chat:     telego.Chat{ID: 1, Type: chatType},
		Entities: []telego.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}},
	}}
}

func textUpdate(text string, chatType string) telego.Update {
	return telego.Update{Message: &telego.Message{Text: text, Chat: telego.Chat{ID: 1, Type: chatType}}}
}

func newTestRouter() *Router {
	return &Router{
		Start:    &recordingHandler{name: "start"},
		Help:     &recordingHandler{name: "help"},
		About:    &recordingHandler{name: "about"},
		Status:   &recordingHandler{name: "status"},
		Search:   &recordingHandler{name: "search"},
		Callback: &recordingHandler{name: "callback"},
		BotName:  "MuzmoBot",
	}
}

func routedName(r *Router, update telego.Update) string {
	h := r.route(&update)
	if h == nil {
		return ""
	}
	return h.(*recordingHandler).name
}

func TestRouteCommands(t *testing.T) {
	r := newTestRouter()
	assert.Equal(t, "start", routedName(r, commandUpdate("/start", "private")))
	assert.Equal(t, "help", routedName(r, commandUpdate("/help@MuzmoBot", "group")))
	assert.Equal(t, "about", routedName(r, commandUpdate("/about", "private")))
	assert.Equal(t, "status", routedName(r, commandUpdate("/status", "supergroup")))
	assert.Equal(t, "search", routedName(r, commandUpdate("/search Игорь Тальков", "group")))
	assert.Empty(t, routedName(r, commandUpdate("/status@OtherBot", "group")))
	assert.Empty(t, routedName(r, commandUpdate("/unknown", "private")))
}

func TestRoutePlainText(t *testing.T) {
	r := newTestRouter()
	assert.Equal(t, "search", routedName(r, textUpdate("Игорь Тальков я вернусь", "private")))
	assert.Empty(t, routedName(r, textUpdate("Игорь Тальков я вернусь", "group")))
	assert.Empty(t, routedName(r, telego.Update{Message: &telego.Message{Chat: telego.Chat{Type: "private"}}}))
}

func TestRouteCallback(t *testing.T) {
	r := newTestRouter()
	update := telego.Update{CallbackQuery: &telego.CallbackQuery{ID: "q", Data: "pick sid:0"}}
	assert.Equal(t, "callback", routedName(r, update))

	r.Callback = nil
	assert.Nil(t, r.route(&update))
}

func TestDispatchRunsHandlersConcurrentlyUpToLimit(t *testing.T) {
	search := &recordingHandler{name: "search", block: make(chan struct{})}
	r := &Router{Search: search, MaxInFlight: 2}

	dispatched := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			r.Dispatch(context.Background(), nil, textUpdate("query", "private"))
		}
		close(dispatched)
	}()

	require.Eventually(t, func() bool { return search.running.Load() == 2 }, time.Second, 5*time.Millisecond)
	select {
	case <-dispatched:
		t.Fatal("dispatch should block while the limit is reached")
	case <-time.After(50 * time.Millisecond):
	}

	close(search.block)
	<-dispatched
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))

	search.mu.Lock()
	defer search.mu.Unlock()
	assert.Len(t, search.calls, 5)
	assert.LessOrEqual(t, search.maxSeen.Load(), int32(2))
}

func TestDispatchRecoversPanics(t *testing.T) {
	r := &Router{Search: panicHandler{}}
	r.Dispatch(context.Background(), nil, textUpdate("query", "private"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, r.Wait(ctx))
}

func TestDispatchStopsWhenContextDone(t *testing.T) {
	search := &recordingHandler{name: "search", block: make(chan struct{})}
	r := &Router{Search: search, MaxInFlight: 1}
	r.Dispatch(context.Background(), nil, textUpdate("first", "private"))
	require.Eventually(t, func() bool { return search.running.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Dispatch(ctx, nil, textUpdate("second", "private"))

	close(search.block)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, r.Wait(waitCtx))
	assert.Len(t, search.calls, 1)
}

type panicHandler struct{}

func (panicHandler) Handle(ctx context.Context, b *telego.Bot, update *telego.Update) {
	panic("boom")
}
