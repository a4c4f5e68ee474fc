package downloader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cnrxad/self-hosted-yt-downloader/internal/extractor"
)

// fakeTool stands in for yt-dlp. Materialize writes content to the output
// template with the extension implied by the options.
type fakeTool struct {
	mu            sync.Mutex
	metadata      map[string]*extractor.Metadata
	metadataErr   error
	materializeFn func(ctx context.Context, url string, opts extractor.Options) error
	content       map[string][]byte
	progress      []extractor.Progress

	metadataCalls    int
	materializeCalls int
	lastOptions      extractor.Options
	lastDir          string
}

func newFakeTool() *fakeTool {
	return &fakeTool{
		metadata: make(map[string]*extractor.Metadata),
		content:  make(map[string][]byte),
	}
}

func (f *fakeTool) ExtractMetadata(_ context.Context, url string, _ extractor.Options) (*extractor.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metadataCalls++
	if f.metadataErr != nil {
		return nil, f.metadataErr
	}
	md, ok := f.metadata[url]
	if !ok {
		return &extractor.Metadata{Type: "video", Title: "Untitled"}, nil
	}
	return md, nil
}

func (f *fakeTool) Materialize(ctx context.Context, url string, opts extractor.Options) error {
	f.mu.Lock()
	f.materializeCalls++
	f.lastOptions = opts
	f.lastDir = filepath.Dir(opts.OutputTemplate)
	fn := f.materializeFn
	data := f.content[url]
	updates := append([]extractor.Progress(nil), f.progress...)
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, url, opts)
	}

	for _, p := range updates {
		if opts.Progress != nil {
			opts.Progress(p)
		}
	}

	ext := "mp4"
	if opts.ExtractAudio != nil {
		ext = opts.ExtractAudio.Codec
	}
	path := strings.Replace(opts.OutputTemplate, "%(title)s.%(ext)s", "output."+ext, 1)
	return os.WriteFile(path, data, 0o644)
}

func (f *fakeTool) options() extractor.Options {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastOptions
}

func (f *fakeTool) materializeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.materializeCalls
}

func (f *fakeTool) metadataCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metadataCalls
}

func (f *fakeTool) dir() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastDir
}

type recordingSink struct {
	mu     sync.Mutex
	values []float64
}

func (r *recordingSink) Enqueue(p float64) {
	r.mu.Lock()
	r.values = append(r.values, p)
	r.mu.Unlock()
}

func (r *recordingSink) snapshot() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.values...)
}
