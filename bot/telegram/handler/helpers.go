package handler

import (
	"context"
	"strings"

	"github.com/liuran001/MuzmoBot-Go/bot/pipeline"
	"github.com/liuran001/MuzmoBot-Go/bot/telegram"
	"github.com/mymmrac/telego"
)

const (
	actionPick  = "pick"
	actionRetry = "retry"
)

func commandArguments(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	parts := strings.SplitN(text, " ", 2)
	if len(parts) < 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func commandName(text, botName string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	parts := strings.SplitN(text, " ", 2)
	command := strings.TrimPrefix(parts[0], "/")
	if command == "" {
		return ""
	}
	if strings.Contains(command, "@") {
		seg := strings.SplitN(command, "@", 2)
		command = seg[0]
		if botName != "" && len(seg) > 1 && seg[1] != "" && !strings.EqualFold(seg[1], botName) {
			return ""
		}
	}
	return strings.ToLower(command)
}

func isCommandMessage(message *telego.Message) bool {
	if message == nil || message.Text == "" {
		return false
	}
	if !strings.HasPrefix(message.Text, "/") {
		return false
	}
	for _, entity := range message.Entities {
		if entity.Type == "bot_command" && entity.Offset == 0 {
			return true
		}
	}
	return false
}

// callbackData encodes an action and a session token, e.g. "pick 3f2a...:4".
func callbackData(action, token string) string {
	return action + " " + token
}

// parseCallbackData splits data built by callbackData.
func parseCallbackData(data string) (action, token string, ok bool) {
	action, token, found := strings.Cut(strings.TrimSpace(data), " ")
	if !found {
		return "", "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", "", false
	}
	switch action {
	case actionPick, actionRetry:
		return action, token, true
	default:
		return "", "", false
	}
}

// choicesKeyboard renders one button per row, labelled with the result text.
func choicesKeyboard(choices []pipeline.Choice) *telego.InlineKeyboardMarkup {
	rows := make([][]telego.InlineKeyboardButton, 0, len(choices))
	for _, choice := range choices {
		rows = append(rows, []telego.InlineKeyboardButton{{
			Text:         choice.Label,
			CallbackData: callbackData(actionPick, choice.Token),
		}})
	}
	return &telego.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func retryKeyboard(token string) *telego.InlineKeyboardMarkup {
	return &telego.InlineKeyboardMarkup{InlineKeyboard: [][]telego.InlineKeyboardButton{{
		{Text: retryButton, CallbackData: callbackData(actionRetry, token)},
	}}}
}

func displayName(user *telego.User) string {
	if user == nil {
		return ""
	}
	if user.Username != "" {
		return user.Username
	}
	return strings.TrimSpace(user.FirstName + " " + user.LastName)
}

func chatName(chat telego.Chat) string {
	if chat.Title != "" {
		return chat.Title
	}
	if chat.Username != "" {
		return chat.Username
	}
	return strings.TrimSpace(chat.FirstName + " " + chat.LastName)
}

func sendText(ctx context.Context, rl *telegram.RateLimiter, b *telego.Bot, params *telego.SendMessageParams) (*telego.Message, error) {
	if rl != nil {
		return telegram.SendMessageWithRetry(ctx, rl, b, params)
	}
	return b.SendMessage(ctx, params)
}

func editText(ctx context.Context, rl *telegram.RateLimiter, b *telego.Bot, params *telego.EditMessageTextParams) (*telego.Message, error) {
	var (
		msg *telego.Message
		err error
	)
	if rl != nil {
		msg, err = telegram.EditMessageTextWithRetry(ctx, rl, b, params)
	} else {
		msg, err = b.EditMessageText(ctx, params)
	}
	if telegram.IsMessageNotModified(err) {
		return msg, nil
	}
	return msg, err
}

func deleteMessage(ctx context.Context, rl *telegram.RateLimiter, b *telego.Bot, params *telego.DeleteMessageParams) error {
	if rl != nil {
		return telegram.DeleteMessageWithRetry(ctx, rl, b, params)
	}
	return b.DeleteMessage(ctx, params)
}

func noPreview() *telego.LinkPreviewOptions {
	return &telego.LinkPreviewOptions{IsDisabled: true}
}
