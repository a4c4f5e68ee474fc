package downloader

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cnrxad/self-hosted-yt-downloader/internal/extractor"
)

const cacheKeyPrefix = "ytstream:meta:"

// MetadataCache keeps extractor metadata per video id: L1 in memory, L2 in
// Redis when configured. A nil *MetadataCache is a valid, always-missing cache.
type MetadataCache struct {
	mu         sync.RWMutex
	l1         map[string]cacheEntry
	rdb        *redis.Client // nil if Redis unavailable
	ttl        time.Duration
	maxEntries int
	logger     *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheEntry struct {
	md        *extractor.Metadata
	expiresAt time.Time
}

// NewMetadataCache sets up the cache. A non-positive ttl disables it
// (returns nil). redisURL can be empty to disable L2.
func NewMetadataCache(ctx context.Context, redisURL string, ttl time.Duration, maxEntries int, logger *slog.Logger) *MetadataCache {
	if ttl <= 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &MetadataCache{
		l1:         make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		logger:     logger,
	}

	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Warn("cache: invalid redis URL, L2 disabled", slog.Any("error", err))
		} else {
			rdb := redis.NewClient(opts)
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := rdb.Ping(pingCtx).Err(); err != nil {
				logger.Warn("cache: redis unreachable, L2 disabled", slog.Any("error", err))
				_ = rdb.Close()
			} else {
				c.rdb = rdb
				logger.Info("cache: L2 redis connected", slog.String("addr", opts.Addr))
			}
		}
	}

	logger.Info("cache: initialized",
		slog.Duration("ttl", ttl),
		slog.Bool("redis", c.rdb != nil),
		slog.Int("max_entries", maxEntries),
	)
	return c
}

// Get tries L1, then L2. An L2 hit repopulates L1.
func (c *MetadataCache) Get(ctx context.Context, videoID string) (*extractor.Metadata, bool) {
	if c == nil {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.l1[videoID]
	c.mu.RUnlock()
	if ok && time.Now().Before(e.expiresAt) {
		c.hits.Add(1)
		return e.md, true
	}

	if c.rdb != nil {
		raw, err := c.rdb.Get(ctx, cacheKeyPrefix+videoID).Bytes()
		if err == nil {
			var md extractor.Metadata
			if err := json.Unmarshal(raw, &md); err == nil {
				c.storeL1(videoID, &md)
				c.hits.Add(1)
				return &md, true
			}
		} else if err != redis.Nil {
			c.logger.Debug("cache: redis get failed", slog.Any("error", err))
		}
	}

	c.misses.Add(1)
	return nil, false
}

// Set stores md in both tiers.
func (c *MetadataCache) Set(ctx context.Context, videoID string, md *extractor.Metadata) {
	if c == nil || md == nil {
		return
	}
	c.storeL1(videoID, md)

	if c.rdb == nil {
		return
	}
	raw, err := json.Marshal(md)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKeyPrefix+videoID, raw, c.ttl).Err(); err != nil {
		c.logger.Debug("cache: redis set failed", slog.Any("error", err))
	}
}

func (c *MetadataCache) storeL1(videoID string, md *extractor.Metadata) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries > 0 && len(c.l1) >= c.maxEntries {
		c.evictExpiredLocked(now)
		if len(c.l1) >= c.maxEntries {
			return
		}
	}
	c.l1[videoID] = cacheEntry{md: md, expiresAt: now.Add(c.ttl)}
}

// Cleanup drops expired L1 entries and returns how many were removed.
func (c *MetadataCache) Cleanup() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictExpiredLocked(time.Now())
}

func (c *MetadataCache) evictExpiredLocked(now time.Time) int {
	n := 0
	for k, e := range c.l1 {
		if !now.Before(e.expiresAt) {
			delete(c.l1, k)
			n++
		}
	}
	return n
}

// Run evicts expired entries every interval until ctx is done.
func (c *MetadataCache) Run(ctx context.Context, interval time.Duration) {
	if c == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := c.Cleanup()
			hits, misses := c.Stats()
			c.logger.Debug("cache: sweep",
				slog.Int("evicted", n),
				slog.Int64("hits", hits),
				slog.Int64("misses", misses),
			)
		}
	}
}

// Stats returns hit and miss counters.
func (c *MetadataCache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}

// Close releases the Redis connection, if any.
func (c *MetadataCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
