package transfer

import (
	"context"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"
)

// AudioMeta describes the track being delivered.
type AudioMeta struct {
	Performer string
	Title     string
	FileName  string
	Source    string
}

// Delivery is what the chat side reports back after sending audio.
type Delivery struct {
	FileID string
}

// Deliverer hands audio to the chat side, either by URL or as a local file.
type Deliverer interface {
	DeliverRemote(ctx context.Context, url string, meta AudioMeta) (*Delivery, error)
	DeliverFile(ctx context.Context, path string, meta AudioMeta) (*Delivery, error)
}

// StagingNotifier is optionally implemented by a Deliverer that wants to
// know when local staging starts.
type StagingNotifier interface {
	Staging(ctx context.Context)
}

// Mode is how an audio file reached the user.
type Mode string

const (
	ModeRemote Mode = "remote"
	ModeUpload Mode = "upload"
	ModeCached Mode = "cached"
)

// Outcome is the result of a successful transfer.
type Outcome struct {
	Mode   Mode
	Size   int64
	FileID string
}

var unsafeFileChars = regexp.MustCompile(`[\\/:*?"<>|\x00-\x1f]+`)

const maxFileNameBytes = 180

// FileName builds "<performer> - <title><ext>" safe for any filesystem.
// The extension is taken from the media URL and defaults to .mp3.
func FileName(performer, title, mediaURL string) string {
	base := strings.TrimSpace(title)
	if p := strings.TrimSpace(performer); p != "" {
		base = p + " - " + base
	}
	base = strings.TrimSpace(unsafeFileChars.ReplaceAllString(base, "_"))
	base = strings.Trim(base, ". ")
	if base == "" {
		base = "audio"
	}
	for len(base) > maxFileNameBytes {
		_, size := utf8.DecodeLastRuneInString(base)
		base = base[:len(base)-size]
	}
	return base + audioExt(mediaURL)
}

func audioExt(mediaURL string) string {
	u := mediaURL
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	switch ext := strings.ToLower(path.Ext(u)); ext {
	case ".mp3", ".m4a", ".ogg", ".flac", ".wav":
		return ext
	default:
		return ".mp3"
	}
}
