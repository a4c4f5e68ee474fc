// Package downloader resolves YouTube URLs to quality options and drives the
// extractor to materialize the chosen one.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"golang.org/x/sync/semaphore"

	"github.com/cnrxad/self-hosted-yt-downloader/internal/extractor"
	"github.com/cnrxad/self-hosted-yt-downloader/internal/progress"
	"github.com/cnrxad/self-hosted-yt-downloader/internal/youtube"
)

// TempDirPattern names the per-download scratch directories.
const TempDirPattern = "ytstream-*"

// Defaults applied by NewService.
const (
	DefaultAudioQuality  = "192"
	DefaultMaxConcurrent = 3
)

// inFlightCeiling keeps per-stream percentages below progress.Complete, which
// is reserved for the end of the whole download.
const inFlightCeiling = 99.99

var unsafeTitleChars = regexp.MustCompile(`[^a-zA-Z0-9_\- ]`)

// ProgressSink receives download percentages. Enqueue must not block.
type ProgressSink interface {
	Enqueue(percent float64)
}

// Config tunes the Service.
type Config struct {
	// WorkDir holds the scratch directories; empty means os.TempDir().
	WorkDir       string
	MaxHeight     int
	AudioQuality  string
	MaxConcurrent int64
}

// File is a materialized download, fully read into memory.
type File struct {
	Name string
	Ext  string
	// Resolution is the vertical resolution of a video download, or
	// "unknown". Empty for audio.
	Resolution string
	Data       []byte
}

// Service implements the analyze and download pipelines.
type Service struct {
	tool   extractor.Tool
	sink   ProgressSink
	cache  *MetadataCache
	slots  *semaphore.Weighted
	cfg    Config
	logger *slog.Logger
}

// NewService wires a Service. cache may be nil.
func NewService(tool extractor.Tool, sink ProgressSink, cache *MetadataCache, cfg Config, logger *slog.Logger) *Service {
	if cfg.MaxHeight <= 0 {
		cfg.MaxHeight = DefaultMaxHeight
	}
	if cfg.AudioQuality == "" {
		cfg.AudioQuality = DefaultAudioQuality
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tool:   tool,
		sink:   sink,
		cache:  cache,
		slots:  semaphore.NewWeighted(cfg.MaxConcurrent),
		cfg:    cfg,
		logger: logger,
	}
}

// Download resolves rawURL, picks the encoding for tier, has the extractor
// write it to a scratch directory and returns its bytes. The scratch
// directory is gone by the time Download returns. Cancelling ctx stops the
// extractor.
func (s *Service) Download(ctx context.Context, rawURL, tier string) (*File, error) {
	ref, err := resolve(rawURL)
	if err != nil {
		return nil, err
	}

	md, err := s.metadata(ctx, ref)
	if err != nil {
		return nil, err
	}

	audio := IsAudioTier(tier)
	ext := "mp4"
	if audio {
		ext = "mp3"
	}
	name := SanitizeTitle(md.Title) + "." + ext
	sel := SelectFormat(md.Encodings, tier, s.cfg.MaxHeight)

	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.slots.Release(1)

	s.logger.Info("download: starting",
		slog.String("video_id", ref.ID),
		slog.String("tier", tier),
		slog.String("format", sel.Expression),
	)

	data, err := s.materialize(ctx, ref, sel, audio, ext)
	if err != nil {
		return nil, err
	}

	f := &File{Name: name, Ext: ext, Data: data}
	if !audio {
		f.Resolution = "unknown"
		if sel.Height > 0 {
			f.Resolution = strconv.Itoa(sel.Height)
		}
	}

	s.logger.Info("download: ready",
		slog.String("video_id", ref.ID),
		slog.String("file", f.Name),
		slog.Int("bytes", len(f.Data)),
	)
	return f, nil
}

func (s *Service) materialize(ctx context.Context, ref youtube.VideoReference, sel Selection, audio bool, ext string) ([]byte, error) {
	dir, err := os.MkdirTemp(s.cfg.WorkDir, TempDirPattern)
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("download: scratch dir cleanup failed", slog.String("dir", dir), slog.Any("error", err))
		}
	}()

	opts := baseOptions()
	opts.Format = sel.Expression
	opts.OutputTemplate = filepath.Join(dir, "%(title)s.%(ext)s")
	opts.Progress = s.forwardProgress
	if audio {
		opts.ExtractAudio = &extractor.AudioExtraction{Codec: "mp3", Quality: s.cfg.AudioQuality}
	} else {
		opts.MergeFormat = "mp4"
	}

	if err := s.tool.Materialize(ctx, ref.WatchURL(), opts); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrExternalTool, err)
	}
	s.complete()

	path, err := findOutput(dir, ext)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return data, nil
}

// findOutput returns the first file in dir with extension ext.
func findOutput(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("list scratch dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, _ := filepath.Match("*."+ext, e.Name()); ok {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", ErrNoFileProduced
}

// forwardProgress runs on the extractor's callback goroutine. A download can
// span several streams (video then audio), each reporting its own "finished",
// so only byte progress is forwarded here, capped below Complete.
func (s *Service) forwardProgress(p extractor.Progress) {
	if s.sink == nil || p.Status != extractor.StatusDownloading {
		return
	}
	if p.TotalBytes > 0 && p.DownloadedBytes > 0 {
		s.sink.Enqueue(min(progress.Percent(p.DownloadedBytes, p.TotalBytes), inFlightCeiling))
	}
}

// complete reports the end of a download once the tool has exited cleanly.
func (s *Service) complete() {
	if s.sink != nil {
		s.sink.Enqueue(progress.Complete)
	}
}

// metadata fetches (or recalls) the metadata-only view of ref.
func (s *Service) metadata(ctx context.Context, ref youtube.VideoReference) (*extractor.Metadata, error) {
	if md, ok := s.cache.Get(ctx, ref.ID); ok {
		return md, nil
	}

	opts := baseOptions()
	md, err := s.tool.ExtractMetadata(ctx, ref.WatchURL(), opts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrExternalTool, err)
	}
	if md.Type == extractor.TypePlaylist {
		return nil, ErrPlaylistRejected
	}

	s.cache.Set(ctx, ref.ID, md)
	return md, nil
}

// resolve applies the playlist gate and normalizes rawURL.
func resolve(rawURL string) (youtube.VideoReference, error) {
	if youtube.IsPurePlaylist(rawURL) {
		return youtube.VideoReference{}, ErrPlaylistRejected
	}
	ref, err := youtube.Normalize(rawURL)
	if errors.Is(err, youtube.ErrNoVideoID) {
		return youtube.VideoReference{}, ErrInvalidURL
	}
	return ref, err
}

// baseOptions keeps every invocation on a single video.
func baseOptions() extractor.Options {
	return extractor.Options{
		Quiet:          true,
		NoPlaylist:     true,
		PlaylistEnd:    1,
		SkipExtractors: []string{"playlists", "channels"},
	}
}

// SanitizeTitle strips everything but letters, digits, '_', '-' and spaces.
func SanitizeTitle(title string) string {
	safe := unsafeTitleChars.ReplaceAllString(title, "")
	if safe == "" {
		return "video"
	}
	return safe
}
