package handler

import (
	"context"
	"fmt"
	"strings"

	botpkg "github.com/liuran001/MuzmoBot-Go/bot"
	"github.com/liuran001/MuzmoBot-Go/bot/telegram"
	"github.com/mymmrac/telego"
)

// StatusHandler handles /status command.
type StatusHandler struct {
	Repo        botpkg.SongRepository
	RateLimiter *telegram.RateLimiter
}

func (h *StatusHandler) Handle(ctx context.Context, b *telego.Bot, update *telego.Update) {
	if update == nil || update.Message == nil || h.Repo == nil {
		return
	}
	message := update.Message

	total, _ := h.Repo.Count(ctx)
	chatCount, _ := h.Repo.CountByChatID(ctx, message.Chat.ID)

	userID := int64(0)
	userCount := int64(0)
	if message.From != nil {
		userID = message.From.ID
		userCount, _ = h.Repo.CountByUserID(ctx, userID)
	}
	sendCount, _ := h.Repo.GetSendCount(ctx)

	msgText := fmt.Sprintf(statusInfo, total, statusChatInfo(message.Chat), chatCount, userID, userID, userCount, sendCount, lastSongText(ctx, h.Repo))
	_, _ = sendText(ctx, h.RateLimiter, b, &telego.SendMessageParams{
		ChatID:             telego.ChatID{ID: message.Chat.ID},
		Text:               msgText,
		ParseMode:          telego.ModeMarkdownV2,
		LinkPreviewOptions: noPreview(),
		ReplyParameters:    &telego.ReplyParameters{MessageID: message.MessageID},
	})
}

func statusChatInfo(chat telego.Chat) string {
	switch {
	case chat.Username != "" && chat.Title == "":
		return link(chat.Username, fmt.Sprintf("tg://user?id=%d", chat.ID))
	case chat.Username != "":
		return link(chat.Title, "https://t.me/"+chat.Username)
	default:
		return mdV2Replacer.Replace(chatName(chat))
	}
}

func lastSongText(ctx context.Context, repo botpkg.SongRepository) string {
	song, err := repo.Last(ctx)
	if err != nil || song == nil {
		return noLastSong
	}
	name := song.DisplayName
	if name == "" {
		name = strings.TrimSpace(song.Performer + " - " + song.Title)
	}
	if song.DurationLabel != "" {
		name += " (" + song.DurationLabel + ")"
	}
	return mdV2Replacer.Replace(name)
}
