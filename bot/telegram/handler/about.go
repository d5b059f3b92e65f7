package handler

import (
	"context"
	"fmt"

	"github.com/liuran001/MuzmoBot-Go/bot/telegram"
	"github.com/mymmrac/telego"
)

// AboutHandler handles /about command.
type AboutHandler struct {
	RuntimeVer  string
	BinVersion  string
	CommitSHA   string
	BuildTime   string
	BuildArch   string
	RateLimiter *telegram.RateLimiter
}

func (h *AboutHandler) Handle(ctx context.Context, b *telego.Bot, update *telego.Update) {
	if update == nil || update.Message == nil {
		return
	}
	_, _ = sendText(ctx, h.RateLimiter, b, &telego.SendMessageParams{
		ChatID:             telego.ChatID{ID: update.Message.Chat.ID},
		Text:               h.text(),
		ParseMode:          telego.ModeMarkdownV2,
		LinkPreviewOptions: noPreview(),
		ReplyParameters:    &telego.ReplyParameters{MessageID: update.Message.MessageID},
	})
}

func (h *AboutHandler) text() string {
	return fmt.Sprintf(aboutText,
		mdV2Replacer.Replace(h.BinVersion),
		mdV2Replacer.Replace(h.CommitSHA),
		mdV2Replacer.Replace(h.BuildTime),
		mdV2Replacer.Replace(h.RuntimeVer),
		mdV2Replacer.Replace(h.BuildArch),
	)
}
