package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
)

// DefaultProgressInterval is how often yt-dlp progress is sampled.
const DefaultProgressInterval = 250 * time.Millisecond

// YTDLP runs the yt-dlp executable through go-ytdlp.
type YTDLP struct {
	executable       string
	progressInterval time.Duration
}

// NewYTDLP creates a yt-dlp backed Tool. An empty executable resolves
// yt-dlp from PATH.
func NewYTDLP(executable string, progressInterval time.Duration) *YTDLP {
	if progressInterval <= 0 {
		progressInterval = DefaultProgressInterval
	}
	return &YTDLP{
		executable:       executable,
		progressInterval: progressInterval,
	}
}

// ExtractMetadata implements Tool.
func (y *YTDLP) ExtractMetadata(ctx context.Context, url string, opts Options) (*Metadata, error) {
	cmd := y.command(opts).
		SkipDownload().
		FlatPlaylist().
		DumpSingleJSON()

	res, err := cmd.Run(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp metadata %s: %w", url, err)
	}

	md, err := parseMetadata(res.Stdout)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp metadata %s: %w", url, err)
	}
	return md, nil
}

// Materialize implements Tool.
func (y *YTDLP) Materialize(ctx context.Context, url string, opts Options) error {
	cmd := y.command(opts).ForceOverwrites()

	if opts.OutputTemplate != "" {
		cmd.Output(opts.OutputTemplate)
	}
	if opts.Format != "" {
		cmd.Format(opts.Format)
	}
	if opts.MergeFormat != "" {
		cmd.MergeOutputFormat(opts.MergeFormat)
	}
	if a := opts.ExtractAudio; a != nil {
		cmd.ExtractAudio().AudioFormat(a.Codec)
		if a.Quality != "" {
			cmd.AudioQuality(a.Quality)
		}
	}
	if opts.Progress != nil {
		cb := opts.Progress
		cmd.ProgressFunc(y.progressInterval, func(u ytdlp.ProgressUpdate) {
			cb(Progress{
				Status:          string(u.Status),
				DownloadedBytes: int64(u.DownloadedBytes),
				TotalBytes:      int64(u.TotalBytes),
			})
		})
	}

	if _, err := cmd.Run(ctx, url); err != nil {
		return fmt.Errorf("yt-dlp download %s: %w", url, err)
	}
	return nil
}

func (y *YTDLP) command(opts Options) *ytdlp.Command {
	cmd := ytdlp.New()
	if y.executable != "" {
		cmd.SetExecutable(y.executable)
	}

	// ProgressFunc passes --progress, which yt-dlp honours under --quiet.
	if opts.Quiet {
		cmd.Quiet()
	}
	cmd.NoWarnings()
	if opts.NoPlaylist {
		cmd.NoPlaylist()
	}
	if opts.PlaylistEnd > 0 {
		cmd.PlaylistItems(fmt.Sprintf("1:%d", opts.PlaylistEnd))
	}
	if len(opts.SkipExtractors) > 0 {
		cmd.ExtractorArgs("youtube:skip=" + strings.Join(opts.SkipExtractors, ","))
	}
	return cmd
}

// parseMetadata decodes a --dump-single-json document. go-ytdlp already maps
// yt-dlp's "none" codec marker to nil.
func parseMetadata(stdout string) (*Metadata, error) {
	raw := json.RawMessage(stdout)
	info, err := ytdlp.ParseExtractedInfo(&raw)
	if err != nil {
		return nil, fmt.Errorf("decode info json: %w", err)
	}

	md := &Metadata{
		ID:        info.ID,
		Type:      string(info.Type),
		Title:     deref(info.Title),
		Encodings: make([]Encoding, 0, len(info.Formats)),
	}
	for _, f := range info.Formats {
		if f == nil {
			continue
		}
		enc := Encoding{
			FormatID:   deref(f.FormatID),
			VideoCodec: deref(f.VCodec),
			AudioCodec: deref(f.ACodec),
		}
		if f.Height != nil && *f.Height > 0 {
			enc.Height = int(*f.Height)
		}
		md.Encodings = append(md.Encodings, enc)
	}
	return md, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
