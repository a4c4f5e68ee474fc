package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cnrxad/self-hosted-yt-downloader/internal/config"
	"github.com/cnrxad/self-hosted-yt-downloader/internal/downloader"
	"github.com/cnrxad/self-hosted-yt-downloader/internal/extractor"
	"github.com/cnrxad/self-hosted-yt-downloader/internal/handlers"
	"github.com/cnrxad/self-hosted-yt-downloader/internal/progress"
)

func main() {
	cfg := config.Load()
	logger := cfg.NewLogger()
	slog.SetDefault(logger)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := progress.NewHub(cfg.ProgressQueue, logger)
	go hub.Run(ctx)

	cache := downloader.NewMetadataCache(ctx, cfg.RedisURL, cfg.CacheTTL, cfg.CacheMaxEntries, logger)
	defer cache.Close()
	go cache.Run(ctx, cfg.CacheCleanup)

	svc := downloader.NewService(
		extractor.NewYTDLP(cfg.YTDLPPath, cfg.ProgressInterval),
		hub,
		cache,
		downloader.Config{
			WorkDir:       cfg.WorkDir,
			MaxHeight:     cfg.MaxHeight,
			AudioQuality:  cfg.AudioQuality,
			MaxConcurrent: int64(cfg.MaxConcurrent),
		},
		logger,
	)

	// Scratch dirs a previous crash left behind.
	go downloader.RunJanitor(ctx, cfg.WorkDir, cfg.JanitorInterval, cfg.JanitorMaxAge, logger)

	h := handlers.New(svc, hub, cfg.WSWriteTimeout, stop, logger)
	router := handlers.NewRouter(h, handlers.RouterConfig{
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		FrontendDir:    cfg.FrontendDir,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", cfg.Addr), slog.String("work_dir", cfg.WorkDir))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
}
