// Package youtube turns the URL shapes users paste into a single-video
// reference that can be handed to the extractor.
package youtube

import (
	"errors"
	"net/url"
	"regexp"
)

// WatchURLTemplate is the canonical single-video URL form.
const WatchURLTemplate = "https://www.youtube.com/watch?v="

// ErrNoVideoID is returned when none of the known URL shapes yields an id.
var ErrNoVideoID = errors.New("no video id in url")

// Tried in order, first match wins.
var idPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:v=|/)([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`/shorts/([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`embed/([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`youtu\.be/([0-9A-Za-z_-]{11})`),
}

// VideoReference identifies exactly one video.
type VideoReference struct {
	ID string
}

// WatchURL returns the canonical watch URL, stripped of playlist, radio and
// any other parameters.
func (r VideoReference) WatchURL() string {
	return WatchURLTemplate + r.ID
}

// ExtractVideoID returns the 11 character video id embedded in raw.
func ExtractVideoID(raw string) (string, bool) {
	for _, re := range idPatterns {
		if m := re.FindStringSubmatch(raw); len(m) > 1 {
			return m[1], true
		}
	}
	return "", false
}

// Normalize maps raw to a VideoReference. URLs that encode the same video
// always normalize to the same reference.
func Normalize(raw string) (VideoReference, error) {
	id, ok := ExtractVideoID(raw)
	if !ok {
		return VideoReference{}, ErrNoVideoID
	}
	return VideoReference{ID: id}, nil
}

// IsPurePlaylist reports whether raw points at a playlist without any
// individually addressable video. A playlist parameter next to a valid
// video reference is not a pure playlist.
func IsPurePlaylist(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	q := u.Query()
	if !q.Has("list") || q.Has("v") {
		return false
	}
	_, ok := ExtractVideoID(raw)
	return !ok
}
