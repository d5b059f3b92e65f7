package id3

// TagData is the metadata written into a staged audio file.
type TagData struct {
	Title   string
	Artist  string
	Album   string
	Comment string
}

// Empty reports whether there is nothing to write.
func (t *TagData) Empty() bool {
	return t == nil || (t.Title == "" && t.Artist == "" && t.Album == "" && t.Comment == "")
}

// Tagger embeds tags into a file on disk.
type Tagger interface {
	EmbedTags(audioPath string, tag *TagData) error
}
