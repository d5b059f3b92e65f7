package handler

import (
	"context"

	"github.com/liuran001/MuzmoBot-Go/bot/telegram"
	"github.com/mymmrac/telego"
)

// StartHandler greets the user and asks for a query.
type StartHandler struct {
	RateLimiter *telegram.RateLimiter
}

func (h *StartHandler) Handle(ctx context.Context, b *telego.Bot, update *telego.Update) {
	if update == nil || update.Message == nil {
		return
	}
	message := update.Message
	firstName := ""
	if message.From != nil {
		firstName = message.From.FirstName
	}
	chatID := telego.ChatID{ID: message.Chat.ID}

	if _, err := sendText(ctx, h.RateLimiter, b, &telego.SendMessageParams{
		ChatID:    chatID,
		Text:      greeting(firstName),
		ParseMode: telego.ModeMarkdownV2,
	}); err != nil {
		return
	}
	_, _ = sendText(ctx, h.RateLimiter, b, &telego.SendMessageParams{
		ChatID: chatID,
		Text:   enterQuery,
	})
}

// HelpHandler handles /help.
type HelpHandler struct {
	SiteURL     string
	RateLimiter *telegram.RateLimiter
}

func (h *HelpHandler) Handle(ctx context.Context, b *telego.Bot, update *telego.Update) {
	if update == nil || update.Message == nil {
		return
	}
	_, _ = sendText(ctx, h.RateLimiter, b, &telego.SendMessageParams{
		ChatID:             telego.ChatID{ID: update.Message.Chat.ID},
		Text:               helpTextFor(h.SiteURL),
		ParseMode:          telego.ModeMarkdownV2,
		LinkPreviewOptions: noPreview(),
		ReplyParameters:    &telego.ReplyParameters{MessageID: update.Message.MessageID},
	})
}
