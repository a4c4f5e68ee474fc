package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnrxad/self-hosted-yt-downloader/internal/extractor"
)

const rickURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

func newTestService(t *testing.T, tool *fakeTool, sink ProgressSink) (*Service, string) {
	t.Helper()
	workDir := t.TempDir()
	svc := NewService(tool, sink, nil, Config{WorkDir: workDir}, nil)
	return svc, workDir
}

func assertNoScratchDirs(t *testing.T, workDir string) {
	t.Helper()
	left, err := filepath.Glob(filepath.Join(workDir, TempDirPattern))
	require.NoError(t, err)
	assert.Empty(t, left, "scratch directories must be removed")
}

func rickTool() *fakeTool {
	tool := newFakeTool()
	tool.metadata[rickURL] = &extractor.Metadata{
		Type:  "video",
		Title: "Rick Astley - Never Gonna Give You Up (Official Video)!",
		Encodings: []extractor.Encoding{
			muxed("18", 360),
			videoOnly("137", 1080),
			audioOnly("140"),
		},
	}
	tool.content[rickURL] = []byte("rick-bytes")
	return tool
}

func TestDownload_Video(t *testing.T) {
	tool := rickTool()
	svc, workDir := newTestService(t, tool, nil)

	f, err := svc.Download(context.Background(), "https://youtu.be/dQw4w9WgXcQ", "360p")
	require.NoError(t, err)

	assert.Equal(t, "Rick Astley - Never Gonna Give You Up Official Video.mp4", f.Name)
	assert.Equal(t, "mp4", f.Ext)
	assert.Equal(t, "360", f.Resolution)
	assert.Equal(t, []byte("rick-bytes"), f.Data)

	opts := tool.options()
	assert.Equal(t, "18", opts.Format)
	assert.Equal(t, "mp4", opts.MergeFormat)
	assert.Nil(t, opts.ExtractAudio)
	assert.True(t, opts.NoPlaylist)
	assert.Equal(t, 1, opts.PlaylistEnd)
	assert.Equal(t, []string{"playlists", "channels"}, opts.SkipExtractors)
	assert.NotNil(t, opts.Progress)
	assert.Equal(t, workDir, filepath.Dir(tool.dir()))

	assertNoScratchDirs(t, workDir)
}

func TestDownload_VideoOnlyPickUsesCombinedExpression(t *testing.T) {
	tool := rickTool()
	svc, _ := newTestService(t, tool, nil)

	f, err := svc.Download(context.Background(), rickURL, "best")
	require.NoError(t, err)
	assert.Equal(t, "1080", f.Resolution)
	assert.Equal(t, cappedExpression(1080), tool.options().Format)
}

func TestDownload_UnknownResolution(t *testing.T) {
	tool := newFakeTool()
	tool.metadata[rickURL] = &extractor.Metadata{Type: "video", Title: "x", Encodings: []extractor.Encoding{audioOnly("140")}}
	svc, _ := newTestService(t, tool, nil)

	f, err := svc.Download(context.Background(), rickURL, "720p")
	require.NoError(t, err)
	assert.Equal(t, "unknown", f.Resolution)
	assert.Equal(t, CombinedExpression, tool.options().Format)
}

func TestDownload_Audio(t *testing.T) {
	tool := rickTool()
	svc, workDir := newTestService(t, tool, nil)

	f, err := svc.Download(context.Background(), rickURL, "mp3")
	require.NoError(t, err)

	assert.Equal(t, "Rick Astley - Never Gonna Give You Up Official Video.mp3", f.Name)
	assert.Equal(t, "mp3", f.Ext)
	assert.Empty(t, f.Resolution)

	opts := tool.options()
	assert.Equal(t, BestAudioExpression, opts.Format)
	require.NotNil(t, opts.ExtractAudio)
	assert.Equal(t, extractor.AudioExtraction{Codec: "mp3", Quality: "192"}, *opts.ExtractAudio)
	assert.Empty(t, opts.MergeFormat)

	assertNoScratchDirs(t, workDir)
}

func TestDownload_ForwardsProgress(t *testing.T) {
	tool := rickTool()
	tool.progress = []extractor.Progress{
		{Status: extractor.StatusDownloading, DownloadedBytes: 1, TotalBytes: 3},
		{Status: extractor.StatusDownloading, DownloadedBytes: 0, TotalBytes: 3},
		{Status: extractor.StatusDownloading, DownloadedBytes: 5, TotalBytes: 0},
		{Status: extractor.StatusDownloading, DownloadedBytes: 3, TotalBytes: 3},
		{Status: "post_processing"},
		{Status: extractor.StatusFinished},
	}
	sink := &recordingSink{}
	svc, _ := newTestService(t, tool, sink)

	_, err := svc.Download(context.Background(), rickURL, "best")
	require.NoError(t, err)
	assert.Equal(t, []float64{33.33, 99.99, 100}, sink.snapshot())
}

func TestDownload_CompleteOnlyAfterLastStream(t *testing.T) {
	tool := rickTool()
	// bestvideo+bestaudio: yt-dlp fetches two streams, each ending in "finished".
	tool.progress = []extractor.Progress{
		{Status: extractor.StatusDownloading, DownloadedBytes: 50, TotalBytes: 100},
		{Status: extractor.StatusFinished},
		{Status: extractor.StatusDownloading, DownloadedBytes: 10, TotalBytes: 100},
		{Status: extractor.StatusFinished},
	}
	sink := &recordingSink{}
	svc, _ := newTestService(t, tool, sink)

	_, err := svc.Download(context.Background(), rickURL, "1080p")
	require.NoError(t, err)
	assert.Equal(t, []float64{50, 10, 100}, sink.snapshot())
}

func TestDownload_NoCompleteOnToolFailure(t *testing.T) {
	tool := rickTool()
	tool.materializeFn = func(_ context.Context, _ string, opts extractor.Options) error {
		opts.Progress(extractor.Progress{Status: extractor.StatusDownloading, DownloadedBytes: 100, TotalBytes: 100})
		opts.Progress(extractor.Progress{Status: extractor.StatusFinished})
		return errors.New("ERROR: Postprocessing: audio conversion failed")
	}
	sink := &recordingSink{}
	svc, _ := newTestService(t, tool, sink)

	_, err := svc.Download(context.Background(), rickURL, "mp3")
	assert.ErrorIs(t, err, ErrExternalTool)
	assert.Equal(t, []float64{99.99}, sink.snapshot())
}

func TestDownload_RejectsBeforeCallingTool(t *testing.T) {
	tool := rickTool()
	svc, _ := newTestService(t, tool, nil)
	ctx := context.Background()

	_, err := svc.Download(ctx, "https://www.youtube.com/playlist?list=PL123", "best")
	assert.ErrorIs(t, err, ErrPlaylistRejected)

	_, err = svc.Download(ctx, "https://vimeo.com/12345", "best")
	assert.ErrorIs(t, err, ErrInvalidURL)

	assert.Zero(t, tool.metadataCount())
	assert.Zero(t, tool.materializeCount())
}

func TestDownload_ToolFailure(t *testing.T) {
	tool := rickTool()
	tool.materializeFn = func(_ context.Context, _ string, opts extractor.Options) error {
		// Leave a partial file behind to prove cleanup.
		_ = os.WriteFile(filepath.Join(filepath.Dir(opts.OutputTemplate), "part.mp4.part"), []byte("x"), 0o644)
		return errors.New("ERROR: Requested format is not available")
	}
	svc, workDir := newTestService(t, tool, nil)

	_, err := svc.Download(context.Background(), rickURL, "best")
	assert.ErrorIs(t, err, ErrExternalTool)
	assertNoScratchDirs(t, workDir)
}

func TestDownload_NoFileProduced(t *testing.T) {
	tool := rickTool()
	tool.materializeFn = func(_ context.Context, _ string, opts extractor.Options) error {
		return os.WriteFile(filepath.Join(filepath.Dir(opts.OutputTemplate), "video.webm"), []byte("x"), 0o644)
	}
	svc, workDir := newTestService(t, tool, nil)

	_, err := svc.Download(context.Background(), rickURL, "best")
	assert.ErrorIs(t, err, ErrNoFileProduced)
	assertNoScratchDirs(t, workDir)
}

func TestDownload_CancelStopsTool(t *testing.T) {
	tool := rickTool()
	started := make(chan struct{})
	tool.materializeFn = func(ctx context.Context, _ string, _ extractor.Options) error {
		close(started)
		<-ctx.Done()
		return errors.New("signal: killed")
	}
	svc, workDir := newTestService(t, tool, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := svc.Download(ctx, rickURL, "best")
		errCh <- err
	}()

	<-started
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("download did not return after cancel")
	}
	assertNoScratchDirs(t, workDir)
}

func TestDownload_ConcurrentDownloadsAreIsolated(t *testing.T) {
	tool := newFakeTool()
	const n = 6
	urls := make([]string, n)
	for i := range n {
		id := fmt.Sprintf("video%06d", i)
		urls[i] = "https://www.youtube.com/watch?v=" + id
		tool.metadata[urls[i]] = &extractor.Metadata{Type: "video", Title: id, Encodings: []extractor.Encoding{muxed("18", 360)}}
		tool.content[urls[i]] = []byte("content-" + id)
	}
	svc, workDir := newTestService(t, tool, &recordingSink{})

	var wg sync.WaitGroup
	results := make([]*File, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Download(context.Background(), urls[i], "best")
		}(i)
	}
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		id := fmt.Sprintf("video%06d", i)
		assert.Equal(t, id+".mp4", results[i].Name)
		assert.Equal(t, []byte("content-"+id), results[i].Data)
	}
	assertNoScratchDirs(t, workDir)
}

func TestDownload_UsesMetadataCache(t *testing.T) {
	tool := rickTool()
	cache := NewMetadataCache(context.Background(), "", time.Minute, 10, nil)
	svc := NewService(tool, nil, cache, Config{WorkDir: t.TempDir()}, nil)
	ctx := context.Background()

	_, err := svc.Analyze(ctx, rickURL)
	require.NoError(t, err)
	_, err = svc.Download(ctx, "https://youtu.be/dQw4w9WgXcQ", "mp3")
	require.NoError(t, err)

	assert.Equal(t, 1, tool.metadataCount())
	hits, misses := cache.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestSanitizeTitle(t *testing.T) {
	assert.Equal(t, "Hello World - 2024_final", SanitizeTitle("Hello, World! - 2024_final?"))
	assert.Equal(t, "Caf", SanitizeTitle("Café"))
	assert.Equal(t, "video", SanitizeTitle("日本語"))
	assert.Equal(t, "etcpasswd", SanitizeTitle("../etc/passwd"))
}
