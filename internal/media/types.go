// Package media defines the types exchanged with the extraction engine.
package media

// LiveStatus values reported by the extraction engine.
const (
	StatusIsLive   = "is_live"
	StatusWasLive  = "was_live"
	StatusUpcoming = "is_upcoming"
	StatusNotLive  = "not_live"
)

// Item is a single video or broadcast as reported by the extraction engine.
type Item struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	IsLive     bool   `json:"is_live"`
	LiveStatus string `json:"live_status"`
}

// Live reports whether the item is currently broadcasting.
func (i *Item) Live() bool {
	return i != nil && (i.IsLive || i.LiveStatus == StatusIsLive)
}

// Listing is either a single item or a playlist-like listing of items.
// Entries may contain nil elements for unavailable items.
type Listing struct {
	Item
	Type    string  `json:"_type"`
	Entries []*Item `json:"entries"`
}

// IsPlaylist reports whether the listing carries entries.
func (l *Listing) IsPlaylist() bool {
	return l != nil && l.Entries != nil
}

// Locator is a direct media URL the muxing engine can read.
type Locator struct {
	URL      string `json:"url"`
	FormatID string `json:"format_id"`
	VCodec   string `json:"vcodec"`
	ACodec   string `json:"acodec"`
}

// HasVideo reports whether the locator carries a video stream.
func (l Locator) HasVideo() bool { return l.VCodec != "" && l.VCodec != "none" }

// HasAudio reports whether the locator carries an audio stream.
func (l Locator) HasAudio() bool { return l.ACodec != "" && l.ACodec != "none" }

// Format is one entry of an item's available formats.
type Format struct {
	FormatID   string `json:"format_id"`
	Ext        string `json:"ext"`
	Resolution string `json:"resolution"`
	Filesize   int64  `json:"filesize"`
}

// Info is the descriptive metadata of a single video.
type Info struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Uploader   string   `json:"uploader"`
	Duration   float64  `json:"duration"`
	ViewCount  int64    `json:"view_count"`
	Thumbnail  string   `json:"thumbnail"`
	UploadDate string   `json:"upload_date"`
	Formats    []Format `json:"formats"`
}
