package id3

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2"
	botpkg "github.com/liuran001/MuzmoBot-Go/bot"
)

// ErrUnsupportedFormat is returned for files that are not mp3.
var ErrUnsupportedFormat = errors.New("id3: unsupported audio format for tags")

// ErrTruncatedAudio is returned for files too short to hold a tag header.
var ErrTruncatedAudio = errors.New("id3: audio file shorter than a tag header")

const tagHeaderSize = 10

type ID3Service struct {
	logger botpkg.Logger
}

func NewID3Service(logger botpkg.Logger) *ID3Service {
	return &ID3Service{logger: logger}
}

func (s *ID3Service) EmbedTags(audioPath string, tag *TagData) error {
	if tag.Empty() {
		return nil
	}

	switch strings.ToLower(filepath.Ext(audioPath)) {
	case ".mp3":
		return s.embedMp3Tags(audioPath, tag)
	default:
		return ErrUnsupportedFormat
	}
}

func (s *ID3Service) embedMp3Tags(audioPath string, tagData *TagData) error {
	info, err := os.Stat(audioPath)
	if err != nil {
		return err
	}
	if info.Size() < tagHeaderSize {
		return ErrTruncatedAudio
	}

	meta, err := id3v2.Open(audioPath, id3v2.Options{Parse: true})
	if err != nil {
		return err
	}
	defer meta.Close()

	meta.SetDefaultEncoding(id3v2.EncodingUTF8)
	writeMp3BasicTags(meta, tagData)

	if s.logger != nil {
		s.logger.Debug("embedding mp3 tags", "path", audioPath, "artist", tagData.Artist, "title", tagData.Title)
	}
	return meta.Save()
}

func writeMp3BasicTags(meta *id3v2.Tag, tagData *TagData) {
	if tagData.Title != "" {
		meta.SetTitle(tagData.Title)
	}
	if tagData.Artist != "" {
		meta.SetArtist(tagData.Artist)
	}
	if tagData.Album != "" {
		meta.SetAlbum(tagData.Album)
	}
	if tagData.Comment != "" {
		meta.AddCommentFrame(id3v2.CommentFrame{
			Encoding:    id3v2.EncodingUTF8,
			Language:    "rus",
			Description: "source",
			Text:        tagData.Comment,
		})
	}
}
