package bot

import "context"

// Logger is the minimal logging abstraction used across modules.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

// Config provides typed access to configuration values.
type Config interface {
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetIntSlice(key string) []int
}

// SongRepository stores Telegram file ids of already delivered songs.
// Only delivery results are persisted, never search queries.
type SongRepository interface {
	FindByItemID(ctx context.Context, itemID string) (*SongInfo, error)
	Create(ctx context.Context, song *SongInfo) error
	DeleteByItemID(ctx context.Context, itemID string) error
	Count(ctx context.Context) (int64, error)
	CountByUserID(ctx context.Context, userID int64) (int64, error)
	CountByChatID(ctx context.Context, chatID int64) (int64, error)
	Last(ctx context.Context) (*SongInfo, error)
	IncrementSendCount(ctx context.Context) error
	GetSendCount(ctx context.Context) (int64, error)
}

// WorkerPool limits concurrency for background tasks.
type WorkerPool interface {
	Submit(task func()) error
	SubmitWait(task func() error) error
	SubmitWaitContext(ctx context.Context, task func() error) error
	Shutdown(ctx context.Context) error
	Size() int
}
