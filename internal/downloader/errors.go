package downloader

import "errors"

// Failure classes surfaced by the Service. Wrapped errors keep the class
// reachable through errors.Is; anything else is an unknown failure.
var (
	// ErrInvalidURL means no video id could be extracted from the URL.
	ErrInvalidURL = errors.New("invalid YouTube URL")
	// ErrPlaylistRejected covers pure playlist URLs and anything the
	// extractor resolves to a playlist.
	ErrPlaylistRejected = errors.New("playlists are not allowed")
	// ErrExternalTool means the metadata or download call failed.
	ErrExternalTool = errors.New("extractor failed")
	// ErrNoFileProduced means the download succeeded but left no file with
	// the expected extension.
	ErrNoFileProduced = errors.New("no file was produced")
)
