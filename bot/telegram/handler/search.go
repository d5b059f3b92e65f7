package handler

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	botpkg "github.com/liuran001/MuzmoBot-Go/bot"
	"github.com/liuran001/MuzmoBot-Go/bot/pipeline"
	"github.com/liuran001/MuzmoBot-Go/bot/session"
	"github.com/liuran001/MuzmoBot-Go/bot/telegram"
	"github.com/mymmrac/telego"
)

// Searcher runs a search for a chat.
type Searcher interface {
	Search(ctx context.Context, chatID int64, query string) (*pipeline.SearchResult, error)
	SearchURL(query string) string
	MinQueryLength() int
}

// SearchHandler handles /search and private message search.
type SearchHandler struct {
	Pipeline    Searcher
	SiteURL     string
	RateLimiter *telegram.RateLimiter
	Logger      botpkg.Logger
}

func (h *SearchHandler) Handle(ctx context.Context, b *telego.Bot, update *telego.Update) {
	if update == nil || update.Message == nil || h.Pipeline == nil {
		return
	}
	message := update.Message
	chatID := telego.ChatID{ID: message.Chat.ID}

	query := message.Text
	if strings.HasPrefix(strings.TrimSpace(query), "/") {
		query = commandArguments(query)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		_, _ = sendText(ctx, h.RateLimiter, b, &telego.SendMessageParams{
			ChatID:          chatID,
			Text:            enterQuery,
			ReplyParameters: &telego.ReplyParameters{MessageID: message.MessageID},
		})
		return
	}
	if minLen := h.Pipeline.MinQueryLength(); utf8.RuneCountInString(query) < minLen {
		_, _ = sendText(ctx, h.RateLimiter, b, &telego.SendMessageParams{
			ChatID:          chatID,
			Text:            queryTooShortText(minLen),
			ParseMode:       telego.ModeMarkdownV2,
			ReplyParameters: &telego.ReplyParameters{MessageID: message.MessageID},
		})
		return
	}

	status, err := sendText(ctx, h.RateLimiter, b, &telego.SendMessageParams{
		ChatID:          chatID,
		Text:            searching,
		ParseMode:       telego.ModeMarkdownV2,
		ReplyParameters: &telego.ReplyParameters{MessageID: message.MessageID},
	})
	if err != nil {
		return
	}

	result, err := h.Pipeline.Search(ctx, message.Chat.ID, query)
	if err != nil {
		h.reportFailure(ctx, b, status, query, err)
		return
	}
	if result.FailedPages > 0 && h.Logger != nil {
		h.Logger.Warn("search returned partial results", "chat_id", message.Chat.ID, "failed_pages", result.FailedPages)
	}

	_, _ = editText(ctx, h.RateLimiter, b, &telego.EditMessageTextParams{
		ChatID:             chatID,
		MessageID:          status.MessageID,
		Text:               resultsHeaderText(h.SiteURL),
		ParseMode:          telego.ModeMarkdownV2,
		LinkPreviewOptions: noPreview(),
		ReplyMarkup:        choicesKeyboard(result.Choices),
	})
}

func (h *SearchHandler) reportFailure(ctx context.Context, b *telego.Bot, status *telego.Message, query string, err error) {
	params := &telego.EditMessageTextParams{
		ChatID:             telego.ChatID{ID: status.Chat.ID},
		MessageID:          status.MessageID,
		ParseMode:          telego.ModeMarkdownV2,
		LinkPreviewOptions: noPreview(),
	}
	switch {
	case errors.Is(err, session.ErrSuperseded), errors.Is(err, context.Canceled):
		// A newer query owns the chat now; its own status message replaces this one.
		_ = deleteMessage(ctx, h.RateLimiter, b, &telego.DeleteMessageParams{
			ChatID:    telego.ChatID{ID: status.Chat.ID},
			MessageID: status.MessageID,
		})
		return
	case errors.Is(err, pipeline.ErrNoResults):
		params.Text = nothingFoundText(h.Pipeline.SearchURL(query))
	case errors.Is(err, pipeline.ErrQueryTooShort):
		params.Text = queryTooShortText(h.Pipeline.MinQueryLength())
	default:
		if h.Logger != nil {
			h.Logger.Error("search failed", "chat_id", status.Chat.ID, "error", err)
		}
		params.Text = searchFailed
	}
	_, _ = editText(ctx, h.RateLimiter, b, params)
}
