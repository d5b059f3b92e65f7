package bot

import "time"

// SongInfo represents a song that was delivered at least once.
// FileID lets the bot re-send the audio without touching the source site.
type SongInfo struct {
	ID            uint
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
	ItemID        string // Source site item identifier
	DisplayName   string // "<performer> - <title>" as rendered by the site
	DurationLabel string
	Performer     string
	Title         string
	FileName      string
	MusicSize     int64
	FileID        string
	Delivery      string // "remote" or "upload"
	FromUserID    int64
	FromUserName  string
	FromChatID    int64
	FromChatName  string
}
