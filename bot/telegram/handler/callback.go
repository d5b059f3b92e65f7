package handler

import (
	"context"
	"errors"
	"sync"

	botpkg "github.com/liuran001/MuzmoBot-Go/bot"
	"github.com/liuran001/MuzmoBot-Go/bot/muzmo"
	"github.com/liuran001/MuzmoBot-Go/bot/pipeline"
	"github.com/liuran001/MuzmoBot-Go/bot/session"
	"github.com/liuran001/MuzmoBot-Go/bot/telegram"
	"github.com/liuran001/MuzmoBot-Go/bot/transfer"
	"github.com/mymmrac/telego"
)

// Selector delivers a chosen search result.
type Selector interface {
	Candidate(chatID int64, token string) (muzmo.Candidate, error)
	Select(ctx context.Context, sel pipeline.Selection, d pipeline.Deliverer) (*pipeline.Outcome, error)
	Retry(ctx context.Context, sel pipeline.Selection, d pipeline.Deliverer) (*pipeline.Outcome, error)
}

// SelectHandler handles "pick" and "retry" buttons under search results.
type SelectHandler struct {
	Pipeline    Selector
	UploadBot   *telego.Bot
	RateLimiter *telegram.RateLimiter
	Logger      botpkg.Logger

	busy sync.Map // chat id -> struct{}
}

// failure is what the user sees after a selection fails.
type failure struct {
	text     string
	alert    string
	keyboard *telego.InlineKeyboardMarkup
}

func (h *SelectHandler) Handle(ctx context.Context, b *telego.Bot, update *telego.Update) {
	if update == nil || update.CallbackQuery == nil || h.Pipeline == nil {
		return
	}
	query := update.CallbackQuery
	action, token, ok := parseCallbackData(query.Data)
	if !ok || query.Message == nil {
		h.answer(ctx, b, query, "", false)
		return
	}
	msg := query.Message.Message()
	if msg == nil {
		h.answer(ctx, b, query, "", false)
		return
	}
	chatID := msg.Chat.ID

	candidate, err := h.Pipeline.Candidate(chatID, token)
	if err != nil {
		h.answer(ctx, b, query, "", false)
		h.edit(ctx, b, msg, sessionExpired, nil)
		return
	}
	if _, loaded := h.busy.LoadOrStore(chatID, struct{}{}); loaded {
		h.answer(ctx, b, query, busyText, true)
		return
	}
	defer h.busy.Delete(chatID)

	h.edit(ctx, b, msg, preparing, nil)

	sel := pipeline.Selection{
		ChatID:   chatID,
		ChatName: chatName(msg.Chat),
		UserID:   query.From.ID,
		UserName: displayName(&query.From),
		Token:    token,
	}
	d := &chatDeliverer{
		bot:     b,
		upload:  h.UploadBot,
		rl:      h.RateLimiter,
		logger:  h.Logger,
		chatID:  chatID,
		replyTo: replyTarget(msg),
	}

	run := h.Pipeline.Select
	if action == actionRetry {
		run = h.Pipeline.Retry
	}
	out, err := run(ctx, sel, d)
	if err != nil {
		f := describeFailure(candidate, token, err)
		if f == nil {
			h.answer(ctx, b, query, "", false)
			return
		}
		if h.Logger != nil {
			h.Logger.Warn("selection failed", "chat_id", chatID, "item_id", candidate.ItemID, "action", action, "error", err)
		}
		h.answer(ctx, b, query, f.alert, f.alert != "")
		h.edit(ctx, b, msg, f.text, f.keyboard)
		return
	}

	h.answer(ctx, b, query, callbackText, false)
	if h.Logger != nil {
		h.Logger.Debug("audio delivered", "chat_id", chatID, "item_id", candidate.ItemID, "mode", out.Mode, "attempts", out.AttemptsUsed, "size", out.Size)
	}
	_ = deleteMessage(ctx, h.RateLimiter, b, &telego.DeleteMessageParams{
		ChatID:    telego.ChatID{ID: chatID},
		MessageID: msg.MessageID,
	})
}

// describeFailure maps a selection error to user text. A nil result means
// nothing should be shown.
func describeFailure(c muzmo.Candidate, token string, err error) *failure {
	var oversize *transfer.OversizeError
	switch {
	case errors.Is(err, context.Canceled):
		return nil
	case errors.As(err, &oversize):
		return &failure{text: oversizeText(c.Label(), oversize.SizeMB(), oversize.LimitMB())}
	case errors.Is(err, muzmo.ErrResolutionExhausted):
		return &failure{
			text:     linkUnavailableFor(c.Label()),
			alert:    linkUnavailable,
			keyboard: retryKeyboard(token),
		}
	case errors.Is(err, session.ErrSessionExpired),
		errors.Is(err, session.ErrChoiceNotFound),
		errors.Is(err, session.ErrInvalidToken):
		return &failure{text: sessionExpired}
	default:
		return &failure{text: transferFailed, keyboard: retryKeyboard(token)}
	}
}

// replyTarget is the user's query message the result list answered.
func replyTarget(msg *telego.Message) int {
	if msg == nil || msg.ReplyToMessage == nil {
		return 0
	}
	return msg.ReplyToMessage.MessageID
}

func (h *SelectHandler) answer(ctx context.Context, b *telego.Bot, query *telego.CallbackQuery, text string, alert bool) {
	_ = telegram.AnswerCallbackQueryWithRetry(ctx, h.RateLimiter, b, query.From.ID, &telego.AnswerCallbackQueryParams{
		CallbackQueryID: query.ID,
		Text:            text,
		ShowAlert:       alert,
	})
}

func (h *SelectHandler) edit(ctx context.Context, b *telego.Bot, msg *telego.Message, text string, keyboard *telego.InlineKeyboardMarkup) {
	_, _ = editText(ctx, h.RateLimiter, b, &telego.EditMessageTextParams{
		ChatID:             telego.ChatID{ID: msg.Chat.ID},
		MessageID:          msg.MessageID,
		Text:               text,
		ParseMode:          telego.ModeMarkdownV2,
		LinkPreviewOptions: noPreview(),
		ReplyMarkup:        keyboard,
	})
}
