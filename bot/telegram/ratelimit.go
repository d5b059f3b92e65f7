package telegram

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	botpkg "github.com/liuran001/MuzmoBot-Go/bot"
	"github.com/mymmrac/telego"
	"golang.org/x/time/rate"
)

const (
	limiterCapacity = 10000
	limiterIdleTTL  = time.Hour
)

// RateLimiter paces Bot API calls per chat.
type RateLimiter struct {
	limiters *expirable.LRU[int64, *rate.Limiter]
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	logger   botpkg.Logger
}

func NewRateLimiter(msgPerSec float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters: expirable.NewLRU[int64, *rate.Limiter](limiterCapacity, nil, limiterIdleTTL),
		rate:     rate.Limit(msgPerSec),
		burst:    burst,
	}
}

func (rl *RateLimiter) SetLogger(logger botpkg.Logger) {
	rl.logger = logger
}

func (rl *RateLimiter) logError(msg string, args ...any) {
	if rl.logger != nil {
		rl.logger.Error(msg, args...)
	}
}

func (rl *RateLimiter) getLimiter(chatID int64) *rate.Limiter {
	if limiter, ok := rl.limiters.Get(chatID); ok {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, ok := rl.limiters.Get(chatID); ok {
		return limiter
	}

	limiter := rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters.Add(chatID, limiter)
	return limiter
}

func (rl *RateLimiter) Wait(ctx context.Context, chatID int64) error {
	return rl.getLimiter(chatID).Wait(ctx)
}

type APIError struct {
	Code       int
	Message    string
	RetryAfter int
}

var retryAfterPattern = regexp.MustCompile(`(?i)retry\s+after[:\s]+(\d+)`)

func (e *APIError) Error() string {
	return e.Message
}

func parseRetryAfter(err error) (int, bool) {
	if err == nil {
		return 0, false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter, true
	}

	errMsg := err.Error()
	if matches := retryAfterPattern.FindStringSubmatch(errMsg); len(matches) == 2 {
		if parsed, parseErr := strconv.Atoi(matches[1]); parseErr == nil {
			return parsed, parsed > 0
		}
	}
	if parsed, parseErr := strconv.Atoi(errMsg); parseErr == nil {
		return parsed, parsed > 0
	}
	return 0, false
}

func IsMessageNotModified(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}

func WithRetry(ctx context.Context, rl *RateLimiter, chatID int64, fn func() error) error {
	if fn == nil {
		return nil
	}
	if rl == nil {
		return fn()
	}
	maxRetries := 3
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := rl.Wait(ctx, chatID); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}

		retryAfter, shouldRetry := parseRetryAfter(err)
		if !shouldRetry {
			return err
		}

		if attempt < maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(retryAfter) * time.Second):
			}
		}
	}

	return &APIError{Code: 429, Message: "max retries exceeded"}
}

func call[T any](ctx context.Context, rl *RateLimiter, chatID int64, name string, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error
	err := WithRetry(ctx, rl, chatID, func() error {
		res, err := fn()
		if err != nil {
			lastErr = err
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		if rl != nil && !IsMessageNotModified(lastErr) {
			rl.logError(name+" failed", "chat_id", chatID, "error", lastErr)
		}
		return result, lastErr
	}
	return result, nil
}

func SendMessageWithRetry(ctx context.Context, rl *RateLimiter, b *telego.Bot, params *telego.SendMessageParams) (*telego.Message, error) {
	return call(ctx, rl, params.ChatID.ID, "SendMessage", func() (*telego.Message, error) {
		return b.SendMessage(ctx, params)
	})
}

func EditMessageTextWithRetry(ctx context.Context, rl *RateLimiter, b *telego.Bot, params *telego.EditMessageTextParams) (*telego.Message, error) {
	return call(ctx, rl, params.ChatID.ID, "EditMessageText", func() (*telego.Message, error) {
		return b.EditMessageText(ctx, params)
	})
}

func DeleteMessageWithRetry(ctx context.Context, rl *RateLimiter, b *telego.Bot, params *telego.DeleteMessageParams) error {
	_, err := call(ctx, rl, params.ChatID.ID, "DeleteMessage", func() (struct{}, error) {
		return struct{}{}, b.DeleteMessage(ctx, params)
	})
	return err
}

func SendAudioWithRetry(ctx context.Context, rl *RateLimiter, b *telego.Bot, params *telego.SendAudioParams) (*telego.Message, error) {
	return call(ctx, rl, params.ChatID.ID, "SendAudio", func() (*telego.Message, error) {
		return b.SendAudio(ctx, params)
	})
}

func SendChatActionWithRetry(ctx context.Context, rl *RateLimiter, b *telego.Bot, params *telego.SendChatActionParams) error {
	_, err := call(ctx, rl, params.ChatID.ID, "SendChatAction", func() (struct{}, error) {
		return struct{}{}, b.SendChatAction(ctx, params)
	})
	return err
}

func AnswerCallbackQueryWithRetry(ctx context.Context, rl *RateLimiter, b *telego.Bot, chatID int64, params *telego.AnswerCallbackQueryParams) error {
	_, err := call(ctx, rl, chatID, "AnswerCallbackQuery", func() (struct{}, error) {
		return struct{}{}, b.AnswerCallbackQuery(ctx, params)
	})
	return err
}
