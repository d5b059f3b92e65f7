package id3

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bogem/id3v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedMp3Tags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Игорь Тальков - Я вернусь.mp3")
	require.NoError(t, os.WriteFile(path, mpegFrame(), 0o644))

	svc := NewID3Service(nil)
	err := svc.EmbedTags(path, &TagData{
		Title:   "Я вернусь",
		Artist:  "Игорь Тальков",
		Comment: "https://rmr.muzmo.cc/info?id=79702189",
	})
	require.NoError(t, err)

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	require.NoError(t, err)
	defer tag.Close()
	assert.Equal(t, "Я вернусь", tag.Title())
	assert.Equal(t, "Игорь Тальков", tag.Artist())

	comments := tag.GetFrames(tag.CommonID("Comments"))
	require.Len(t, comments, 1)
	cf, ok := comments[0].(id3v2.CommentFrame)
	require.True(t, ok)
	assert.Equal(t, "https://rmr.muzmo.cc/info?id=79702189", cf.Text)
}

func TestEmbedMp3TagsKeepsAudio(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.mp3")
	audio := mpegFrame()
	require.NoError(t, os.WriteFile(path, audio, 0o644))

	require.NoError(t, NewID3Service(nil).EmbedTags(path, &TagData{Title: "Я вернусь"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ID3", string(data[:3]))
	assert.Equal(t, audio, data[len(data)-len(audio):])
}

func TestEmbedMp3TagsRejectsTruncatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.mp3")
	require.NoError(t, os.WriteFile(path, []byte{0xFF, 0xFB, 0x90, 0x64}, 0o644))

	err := NewID3Service(nil).EmbedTags(path, &TagData{Title: "x"})
	assert.ErrorIs(t, err, ErrTruncatedAudio)
}

// mpegFrame is one 128 kbit/s 44.1 kHz MPEG-1 Layer III frame of silence.
func mpegFrame() []byte {
	frame := make([]byte, 417)
	copy(frame, []byte{0xFF, 0xFB, 0x90, 0x64})
	return frame
}

func TestEmbedTagsSkipsEmptyAndUnsupported(t *testing.T) {
	svc := NewID3Service(nil)
	assert.NoError(t, svc.EmbedTags("/does/not/exist.mp3", &TagData{}))
	assert.NoError(t, svc.EmbedTags("/does/not/exist.mp3", nil))
	assert.ErrorIs(t, svc.EmbedTags("track.ogg", &TagData{Title: "x"}), ErrUnsupportedFormat)
}
