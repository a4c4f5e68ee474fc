package downloader

import (
	"context"
	"fmt"
	"sort"

	"github.com/cnrxad/self-hosted-yt-downloader/internal/extractor"
	"github.com/cnrxad/self-hosted-yt-downloader/internal/models"
)

// Heights offered on their own, in display order.
var standardHeights = []int{1080, 720, 480, 360}

// Catalog is what the analyze endpoint returns.
type Catalog struct {
	Title   string
	Options []models.QualityOption
}

// BuildOptions projects raw encodings onto the user-facing quality options:
// "best" labelled with the tallest video, each standard height below it, and
// one "mp3" option when an audio-only stream exists.
func BuildOptions(encodings []extractor.Encoding) []models.QualityOption {
	seen := make(map[int]bool)
	var heights []int
	hasAudioOnly := false

	for _, e := range encodings {
		if e.HasVideo() && e.Height > 0 && !seen[e.Height] {
			seen[e.Height] = true
			heights = append(heights, e.Height)
		}
		if !e.HasVideo() && e.HasAudio() {
			hasAudioOnly = true
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(heights)))

	options := make([]models.QualityOption, 0, len(standardHeights)+2)
	if len(heights) > 0 {
		maxHeight := heights[0]
		options = append(options, models.QualityOption{
			ID:    TierBest,
			Label: fmt.Sprintf("MP4 · %dp", maxHeight),
		})
		for _, h := range standardHeights {
			if seen[h] && h != maxHeight {
				options = append(options, models.QualityOption{
					ID:    fmt.Sprintf("%dp", h),
					Label: fmt.Sprintf("MP4 · %dp", h),
				})
			}
		}
	}

	if hasAudioOnly {
		options = append(options, models.QualityOption{ID: TierAudio, Label: "MP3 · Audio"})
	}
	return options
}

// Analyze resolves rawURL to its title and quality options without
// downloading anything.
func (s *Service) Analyze(ctx context.Context, rawURL string) (*Catalog, error) {
	ref, err := resolve(rawURL)
	if err != nil {
		return nil, err
	}

	md, err := s.metadata(ctx, ref)
	if err != nil {
		return nil, err
	}

	title := md.Title
	if title == "" {
		title = "Unknown"
	}
	return &Catalog{Title: title, Options: BuildOptions(md.Encodings)}, nil
}
