package source

import (
	"net/url"
	"strings"
)

// playlistParams are query parameters that tie a watch URL to a playlist
// or radio context rather than to the video itself.
var playlistParams = map[string]bool{
	"list":        true,
	"index":       true,
	"start_radio": true,
	"rv":          true,
}

// NormalizeAddress strips playlist noise from a source or watch URL.
// Remaining query parameters keep their original order, so normalizing an
// already-normalized address returns it unchanged.
func NormalizeAddress(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}

	var kept []string
	for _, pair := range strings.Split(u.RawQuery, "&") {
		if pair == "" {
			continue
		}
		key := pair
		if i := strings.IndexByte(pair, '='); i >= 0 {
			key = pair[:i]
		}
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if playlistParams[key] {
			continue
		}
		kept = append(kept, pair)
	}

	u.RawQuery = strings.Join(kept, "&")
	u.ForceQuery = false
	return u.String()
}

// WatchURL returns the canonical watch URL for a video id.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + url.QueryEscape(videoID)
}
