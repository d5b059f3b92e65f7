package telegram

import (
	"context"
	"fmt"
	"net/http"
	"time"

	botpkg "github.com/liuran001/MuzmoBot-Go/bot"
	"github.com/liuran001/MuzmoBot-Go/bot/config"
	"github.com/mymmrac/telego"
)

// Bot wraps telego with application configuration.
type Bot struct {
	client *telego.Bot
	upload *telego.Bot
	logger botpkg.Logger
}

// UpdateHandler receives every polled update.
type UpdateHandler func(ctx context.Context, update telego.Update)

// New creates a new Telegram bot client.
func New(cfg *config.Config, logger botpkg.Logger) (*Bot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	token := cfg.BotToken()
	if token == "" {
		return nil, fmt.Errorf("BOT_TOKEN required")
	}

	pollClient := &http.Client{
		Timeout:   2 * time.Minute,
		Transport: newTransport(),
	}
	uploadClient := &http.Client{
		Timeout:   15 * time.Minute,
		Transport: newTransport(),
	}

	client, err := telego.NewBot(token, botOptions(cfg, pollClient, logger)...)
	if err != nil {
		return nil, err
	}
	upload, err := telego.NewBot(token, botOptions(cfg, uploadClient, logger)...)
	if err != nil {
		return nil, err
	}

	return &Bot{client: client, upload: upload, logger: logger}, nil
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

func botOptions(cfg *config.Config, client *http.Client, logger botpkg.Logger) []telego.BotOption {
	options := []telego.BotOption{
		telego.WithHTTPClient(client),
		telego.WithLogger(telegoLogger{logger: logger}),
	}
	if api := cfg.GetString("BotAPI"); api != "" {
		options = append(options, telego.WithAPIServer(api))
	}
	if cfg.GetBool("BotDebug") {
		options = append(options, telego.WithDebugMode())
	}
	return options
}

// Start long-polls updates and hands each one to handle until ctx is done.
func (b *Bot) Start(ctx context.Context, handle UpdateHandler) error {
	updates, err := b.client.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message", "callback_query"},
	})
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	b.logger.Info("long polling started")
	for update := range updates {
		handle(ctx, update)
	}
	b.logger.Info("long polling stopped")
	return nil
}

// Client exposes the underlying bot client.
func (b *Bot) Client() *telego.Bot {
	return b.client
}

// UploadClient exposes a dedicated client for uploads.
func (b *Bot) UploadClient() *telego.Bot {
	if b.upload != nil {
		return b.upload
	}
	return b.client
}

// GetMe retrieves bot info.
func (b *Bot) GetMe(ctx context.Context) (*telego.User, error) {
	return b.client.GetMe(ctx)
}

type telegoLogger struct {
	logger botpkg.Logger
}

func (l telegoLogger) Debugf(format string, args ...any) {
	if l.logger == nil {
		return
	}
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l telegoLogger) Errorf(format string, args ...any) {
	if l.logger == nil {
		return
	}
	l.logger.Error(fmt.Sprintf(format, args...))
}

// WithTimeout returns a context with timeout for Telegram requests.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}
