package handler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	botpkg "github.com/liuran001/MuzmoBot-Go/bot"
	"github.com/liuran001/MuzmoBot-Go/bot/telegram"
	"github.com/mymmrac/telego"
	"golang.org/x/sync/semaphore"
)

// Router delegates updates to feature handlers. Every update runs in its own
// goroutine, at most MaxInFlight at a time when set.
type Router struct {
	Start    MessageHandler
	Help     MessageHandler
	About    MessageHandler
	Status   MessageHandler
	Search   MessageHandler
	Callback CallbackHandler

	BotName     string
	MaxInFlight int64
	Logger      botpkg.Logger

	once sync.Once
	sem  *semaphore.Weighted
	wg   sync.WaitGroup
}

// UpdateHandler adapts the router to the polling loop of b.
func (r *Router) UpdateHandler(b *telego.Bot) telegram.UpdateHandler {
	return func(ctx context.Context, update telego.Update) {
		r.Dispatch(ctx, b, update)
	}
}

// Dispatch routes one update. It returns once the handler has been started.
func (r *Router) Dispatch(ctx context.Context, b *telego.Bot, update telego.Update) {
	h := r.route(&update)
	if h == nil {
		return
	}
	r.once.Do(func() {
		if r.MaxInFlight > 0 {
			r.sem = semaphore.NewWeighted(r.MaxInFlight)
		}
	})
	if r.sem != nil {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return
		}
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if r.sem != nil {
			defer r.sem.Release(1)
		}
		defer func() {
			if rec := recover(); rec != nil && r.Logger != nil {
				r.Logger.Error("handler panic", "update_id", update.UpdateID, "panic", fmt.Sprint(rec), "stack", string(debug.Stack()))
			}
		}()
		h.Handle(ctx, b, &update)
	}()
}

// Wait blocks until running handlers finish or ctx is done.
func (r *Router) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Router) route(update *telego.Update) MessageHandler {
	if update == nil {
		return nil
	}
	if update.CallbackQuery != nil {
		if r.Callback == nil {
			return nil
		}
		return r.Callback
	}

	message := update.Message
	if message == nil || message.Text == "" {
		return nil
	}
	if isCommandMessage(message) {
		var h MessageHandler
		switch commandName(message.Text, r.BotName) {
		case "start":
			h = r.Start
		case "help":
			h = r.Help
		case "about":
			h = r.About
		case "status":
			h = r.Status
		case "search":
			h = r.Search
		}
		return h
	}
	if message.Chat.Type != "private" {
		return nil
	}
	return r.Search
}
