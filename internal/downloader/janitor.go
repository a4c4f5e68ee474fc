package downloader

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// SweepStale removes scratch directories under workDir older than maxAge.
// They only survive a download when the process died mid-request.
func SweepStale(workDir string, maxAge time.Duration) (int, error) {
	if workDir == "" {
		workDir = os.TempDir()
	}
	dirs, err := filepath.Glob(filepath.Join(workDir, TempDirPattern))
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, d := range dirs {
		info, err := os.Stat(d)
		if err != nil || !info.IsDir() {
			continue
		}
		if time.Since(info.ModTime()) <= maxAge {
			continue
		}
		if err := os.RemoveAll(d); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// RunJanitor calls SweepStale every interval until ctx is done.
func RunJanitor(ctx context.Context, workDir string, interval, maxAge time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := SweepStale(workDir, maxAge)
			if err != nil {
				logger.Warn("janitor: sweep failed", slog.Any("error", err))
			}
			if n > 0 {
				logger.Info("janitor: removed stale scratch dirs", slog.Int("count", n))
			}
		}
	}
}
