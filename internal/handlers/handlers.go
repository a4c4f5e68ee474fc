package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/cnrxad/self-hosted-yt-downloader/internal/downloader"
	"github.com/cnrxad/self-hosted-yt-downloader/internal/models"
	"github.com/cnrxad/self-hosted-yt-downloader/internal/progress"
)

// StatusClientClosedRequest is logged when the client went away mid-request.
const StatusClientClosedRequest = 499

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the UI may be served from a dev server on another port
	},
}

// Pipeline is the analyze/download backend.
type Pipeline interface {
	Analyze(ctx context.Context, rawURL string) (*downloader.Catalog, error)
	Download(ctx context.Context, rawURL, tier string) (*downloader.File, error)
}

// Handler serves the HTTP API.
type Handler struct {
	pipeline       Pipeline
	hub            *progress.Hub
	wsWriteTimeout time.Duration
	shutdown       func()
	logger         *slog.Logger
}

// New creates a Handler. shutdown may be nil, in which case the shutdown
// endpoint reports the server as not initialized.
func New(pipeline Pipeline, hub *progress.Hub, wsWriteTimeout time.Duration, shutdown func(), logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		pipeline:       pipeline,
		hub:            hub,
		wsWriteTimeout: wsWriteTimeout,
		shutdown:       shutdown,
		logger:         logger,
	}
}

// Root answers GET /api.
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, models.MessageResponse{Message: "YT Downloader API running"})
}

// Analyze handles POST /api/analyze.
func (h *Handler) Analyze(c *gin.Context) {
	var req models.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "url is required"})
		return
	}

	cat, err := h.pipeline.Analyze(c.Request.Context(), req.URL)
	if err != nil {
		h.fail(c, "analyze", err)
		return
	}

	c.JSON(http.StatusOK, models.AnalyzeResponse{Title: cat.Title, Formats: cat.Options})
}

// Download handles GET /api/download. The whole file is prepared before the
// first byte is written, so a failure never yields a partial body.
func (h *Handler) Download(c *gin.Context) {
	var q models.DownloadQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "url and format are required"})
		return
	}

	f, err := h.pipeline.Download(c.Request.Context(), q.URL, q.Format)
	if err != nil {
		h.fail(c, "download", err)
		return
	}

	headers := map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, f.Name),
	}
	if f.Resolution != "" {
		headers["X-Video-Resolution"] = f.Resolution
	}
	c.DataFromReader(http.StatusOK, int64(len(f.Data)), "application/octet-stream", bytes.NewReader(f.Data), headers)
}

// Progress handles the /ws/progress websocket. The connection stays
// subscribed until the peer disconnects or a push fails.
func (h *Handler) Progress(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log(c).Warn("ws upgrade failed", slog.Any("error", err))
		return
	}

	sub := progress.NewWSSubscriber(conn, h.wsWriteTimeout)
	h.hub.Subscribe(sub)
	defer h.hub.Unsubscribe(sub)

	_ = sub.Drain()
}

// Shutdown handles POST /api/shutdown.
func (h *Handler) Shutdown(c *gin.Context) {
	if h.shutdown == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "server not initialized"})
		return
	}
	h.log(c).Info("shutdown requested")
	c.JSON(http.StatusOK, models.MessageResponse{Message: "server shutting down"})
	go h.shutdown()
}

// fail logs err with its full chain and writes the client-facing error body.
func (h *Handler) fail(c *gin.Context, op string, err error) {
	if errors.Is(err, context.Canceled) && c.Request.Context().Err() != nil {
		h.log(c).Info(op+": client went away", slog.Any("error", err))
		c.AbortWithStatus(StatusClientClosedRequest)
		return
	}

	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.log(c).Error(op+" failed", slog.Int("status", status), slog.Any("error", err))
	} else {
		h.log(c).Warn(op+" rejected", slog.Int("status", status), slog.Any("error", err))
	}
	c.JSON(status, models.ErrorResponse{Error: msg})
}

// errorStatus maps a pipeline error to its HTTP status and public message.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, downloader.ErrInvalidURL):
		return http.StatusBadRequest, downloader.ErrInvalidURL.Error()
	case errors.Is(err, downloader.ErrPlaylistRejected):
		return http.StatusBadRequest, downloader.ErrPlaylistRejected.Error()
	case errors.Is(err, downloader.ErrExternalTool):
		return http.StatusBadGateway, "could not retrieve the video from YouTube"
	case errors.Is(err, downloader.ErrNoFileProduced):
		return http.StatusInternalServerError, "the download finished but produced no file"
	default:
		return http.StatusInternalServerError, "unexpected server error"
	}
}

func (h *Handler) log(c *gin.Context) *slog.Logger {
	if id := c.GetString(requestIDKey); id != "" {
		return h.logger.With(slog.String("request_id", id))
	}
	return h.logger
}
