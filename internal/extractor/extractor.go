// Package extractor describes the external extraction/transcoding tool the
// downloader drives, and provides the yt-dlp backed implementation.
package extractor

import (
	"context"

	"github.com/lrstanley/go-ytdlp"
)

// TypePlaylist is the resolved type the tool reports for playlists.
const TypePlaylist = string(ytdlp.ExtractedTypePlaylist)

// Progress statuses forwarded to ProgressFunc.
const (
	StatusDownloading = string(ytdlp.ProgressStatusDownloading)
	StatusFinished    = string(ytdlp.ProgressStatusFinished)
)

// Encoding is one stream variant reported by the tool. Empty codec strings
// and a zero height mean the attribute is absent.
type Encoding struct {
	FormatID   string
	VideoCodec string
	AudioCodec string
	Height     int
}

// HasVideo reports whether the encoding carries a video stream.
func (e Encoding) HasVideo() bool { return e.VideoCodec != "" }

// HasAudio reports whether the encoding carries an audio stream.
func (e Encoding) HasAudio() bool { return e.AudioCodec != "" }

// Muxed reports whether audio and video are already combined.
func (e Encoding) Muxed() bool { return e.HasVideo() && e.HasAudio() }

// Metadata is the metadata-only view of a resolved URL.
type Metadata struct {
	ID        string
	Type      string
	Title     string
	Encodings []Encoding
}

// Progress is a single progress callback invocation.
type Progress struct {
	Status          string
	DownloadedBytes int64
	// TotalBytes is either the exact size or the tool's estimate.
	TotalBytes int64
}

// ProgressFunc is invoked synchronously from the tool's download loop and
// must not block.
type ProgressFunc func(Progress)

// AudioExtraction asks the tool to transcode the download to an audio file.
type AudioExtraction struct {
	Codec   string
	Quality string
}

// Options is the declarative option set passed to every tool invocation.
type Options struct {
	Quiet          bool
	NoPlaylist     bool
	PlaylistEnd    int
	SkipExtractors []string
	Format         string
	OutputTemplate string
	MergeFormat    string
	ExtractAudio   *AudioExtraction
	Progress       ProgressFunc
}

// Tool is the external extraction engine.
type Tool interface {
	// ExtractMetadata resolves url without downloading anything.
	ExtractMetadata(ctx context.Context, url string, opts Options) (*Metadata, error)
	// Materialize downloads url to files matching opts.OutputTemplate.
	Materialize(ctx context.Context, url string, opts Options) error
}
