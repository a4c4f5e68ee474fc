package downloader

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cnrxad/self-hosted-yt-downloader/internal/extractor"
)

// Quality tiers accepted by Download.
const (
	TierBest  = "best"
	TierAudio = "mp3"
)

// DefaultMaxHeight caps every video tier.
const DefaultMaxHeight = 1080

// Format expressions handed to the extractor when no concrete format id is
// picked.
const (
	BestAudioExpression = "bestaudio/best"
	CombinedExpression  = "bestvideo+bestaudio/best"
)

var tierPattern = regexp.MustCompile(`^(\d+)p`)

// Selection is the outcome of SelectFormat.
type Selection struct {
	// Expression is either a concrete format id or a combined expression
	// that makes the extractor mux the streams itself.
	Expression string
	// Height of the chosen candidate, 0 when none qualified.
	Height int
}

// IsAudioTier reports whether tier asks for the audio-only download.
func IsAudioTier(tier string) bool {
	return strings.EqualFold(strings.TrimSpace(tier), TierAudio)
}

// TargetHeight parses tier ("720p") into a height clamped to maxHeight.
// "best" and anything unparseable resolve to maxHeight.
func TargetHeight(tier string, maxHeight int) int {
	if maxHeight <= 0 {
		maxHeight = DefaultMaxHeight
	}
	m := tierPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(tier)))
	if m == nil {
		return maxHeight
	}
	h, err := strconv.Atoi(m[1])
	if err != nil || h <= 0 {
		return maxHeight
	}
	return min(h, maxHeight)
}

// SelectFormat picks the best encoding for tier. Pre-muxed streams are used
// directly; a video-only pick or no pick at all falls back to a combined
// best video + best audio expression.
func SelectFormat(encodings []extractor.Encoding, tier string, maxHeight int) Selection {
	if IsAudioTier(tier) {
		return Selection{Expression: BestAudioExpression}
	}

	target := TargetHeight(tier, maxHeight)

	var best *extractor.Encoding
	for i := range encodings {
		e := &encodings[i]
		if e.Height == 0 || !e.HasVideo() || e.Height > target {
			continue
		}
		if best == nil || e.Height > best.Height {
			best = e
		}
	}

	switch {
	case best == nil:
		return Selection{Expression: CombinedExpression}
	case best.Muxed():
		return Selection{Expression: best.FormatID, Height: best.Height}
	default:
		return Selection{Expression: cappedExpression(target), Height: best.Height}
	}
}

// cappedExpression keeps the extractor's own mux within the requested
// height, falling back to the unconstrained combination.
func cappedExpression(height int) string {
	return fmt.Sprintf("bestvideo[height<=%d]+bestaudio/best[height<=%d]/%s", height, height, CombinedExpression)
}
