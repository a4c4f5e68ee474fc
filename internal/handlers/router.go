package handlers

import (
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/cnrxad/self-hosted-yt-downloader/internal/models"
)

// RouterConfig controls the router's outer surface.
type RouterConfig struct {
	// CORSOrigins lists allowed origins; empty or "*" allows all.
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
	// FrontendDir is served at / when it contains an index.html.
	FrontendDir string
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), AccessLog(h.logger))
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	limited := RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst)

	api := r.Group("/api")
	{
		api.GET("", h.Root)
		api.POST("/analyze", limited, h.Analyze)
		api.GET("/download", limited, h.Download)
		api.POST("/shutdown", h.Shutdown)
	}

	r.GET("/ws/progress", h.Progress)

	if mountFrontend(r, cfg.FrontendDir) {
		h.logger.Info("serving frontend", slog.String("dir", cfg.FrontendDir))
	} else {
		r.NoRoute(func(c *gin.Context) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not found"})
		})
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition", "X-Video-Resolution", RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}

	var explicit []string
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			explicit = nil
			break
		}
		if o != "" {
			explicit = append(explicit, o)
		}
	}

	if len(explicit) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = explicit
		cfg.AllowCredentials = true
	}
	return cfg
}

// mountFrontend serves a built single-page app from dir, falling back to
// index.html for unknown paths. Reports false when dir has no index.html.
func mountFrontend(r *gin.Engine, dir string) bool {
	if dir == "" {
		return false
	}
	index := filepath.Join(dir, "index.html")
	if _, err := os.Stat(index); err != nil {
		return false
	}

	root := http.Dir(dir)
	files := http.FileServer(root)

	r.NoRoute(func(c *gin.Context) {
		p := c.Request.URL.Path
		if (c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead) || strings.HasPrefix(p, "/api/") {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not found"})
			return
		}

		if f, err := root.Open(path.Clean(p)); err == nil {
			st, err := f.Stat()
			_ = f.Close()
			if err == nil && !st.IsDir() {
				files.ServeHTTP(c.Writer, c.Request)
				return
			}
		}
		c.File(index)
	})
	return true
}
