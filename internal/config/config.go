// Package config loads the server configuration from the environment.
package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/anatolykoptev/go-kit/env"
)

// Config holds every tunable of the server.
type Config struct {
	Addr        string
	FrontendDir string
	CORSOrigins []string

	YTDLPPath        string
	WorkDir          string
	MaxHeight        int
	AudioQuality     string
	MaxConcurrent    int
	ProgressInterval time.Duration

	ProgressQueue  int
	WSWriteTimeout time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	CacheTTL        time.Duration
	CacheMaxEntries int
	CacheCleanup    time.Duration
	RedisURL        string

	JanitorInterval time.Duration
	JanitorMaxAge   time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads the configuration, falling back to defaults for unset keys.
func Load() Config {
	return Config{
		Addr:        env.Str("ADDR", "127.0.0.1:4321"),
		FrontendDir: env.Str("FRONTEND_DIR", "frontend/dist"),
		CORSOrigins: env.List("CORS_ORIGINS", "*"),

		YTDLPPath:        env.Str("YTDLP_PATH", ""),
		WorkDir:          env.Str("WORK_DIR", os.TempDir()),
		MaxHeight:        env.Int("MAX_HEIGHT", 1080),
		AudioQuality:     env.Str("AUDIO_QUALITY", "192"),
		MaxConcurrent:    env.Int("MAX_CONCURRENT_DOWNLOADS", 3),
		ProgressInterval: env.Duration("PROGRESS_INTERVAL", 250*time.Millisecond),

		ProgressQueue:  env.Int("PROGRESS_QUEUE", 256),
		WSWriteTimeout: env.Duration("WS_WRITE_TIMEOUT", 5*time.Second),

		RateLimitRPS:   env.Float("RATE_LIMIT_RPS", 10),
		RateLimitBurst: env.Int("RATE_LIMIT_BURST", 20),

		CacheTTL:        env.Duration("CACHE_TTL", 10*time.Minute),
		CacheMaxEntries: env.Int("CACHE_MAX_ENTRIES", 500),
		CacheCleanup:    env.Duration("CACHE_CLEANUP_INTERVAL", 5*time.Minute),
		RedisURL:        env.Str("REDIS_URL", ""),

		JanitorInterval: env.Duration("JANITOR_INTERVAL", time.Hour),
		JanitorMaxAge:   env.Duration("JANITOR_MAX_AGE", 6*time.Hour),

		LogLevel:  env.Str("LOG_LEVEL", "info"),
		LogFormat: env.Str("LOG_FORMAT", "text"),
	}
}

// NewLogger builds the process logger from LogLevel and LogFormat.
func (c Config) NewLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.EqualFold(c.LogFormat, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(h)
}
