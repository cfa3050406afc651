package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edaptivai-netizen/edaptiv-learning/internal/domain/generation"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/domain/learning"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/http/response"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/observability"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/logger"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/services"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/sse"
)

type VideoHandler struct {
	log       *logger.Logger
	videos    services.VideoGenerationService
	hub       *sse.SSEHub
	heartbeat time.Duration
}

func NewVideoHandler(log *logger.Logger, videos services.VideoGenerationService, hub *sse.SSEHub) *VideoHandler {
	return &VideoHandler{
		log:       log.With("handler", "VideoHandler"),
		videos:    videos,
		hub:       hub,
		heartbeat: 15 * time.Second,
	}
}

// POST /api/materials/:id/video
func (h *VideoHandler) TriggerVideo(c *gin.Context) {
	userID, materialID, ok := studentAndMaterial(c)
	if !ok {
		return
	}
	res, err := h.videos.Trigger(c.Request.Context(), userID, materialID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	if res.Status == learning.VideoStatusCompleted {
		response.RespondOK(c, res)
		return
	}
	response.RespondAccepted(c, res)
}

// GET /api/materials/:id/video/status
func (h *VideoHandler) VideoStatus(c *gin.Context) {
	userID, materialID, ok := studentAndMaterial(c)
	if !ok {
		return
	}
	view, err := h.videos.Status(c.Request.Context(), userID, materialID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, view)
}

// GET /api/materials/:id/video/events
//
// Streams the current status, then every change, and closes after a
// terminal status. Each event carries a freshly signed URL when completed.
func (h *VideoHandler) VideoEvents(c *gin.Context) {
	userID, materialID, ok := studentAndMaterial(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	view, err := h.videos.Status(ctx, userID, materialID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	if h.hub == nil {
		response.RespondErr(c, generation.NewError(generation.CodeInternal, "video.events", "status stream not configured", nil))
		return
	}

	client := h.hub.NewSSEClient(userID)
	h.hub.AddChannel(client, sse.VideoChannel(view.AdaptedContentID))
	defer h.hub.CloseClient(client)
	observability.Current().SSEClientsAdd(1)
	defer observability.Current().SSEClientsAdd(-1)

	// read again now that changes can no longer be missed
	if view, err = h.videos.Status(ctx, userID, materialID); err != nil {
		response.RespondErr(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	h.send(c, sse.SSEEventVideoStatus, view)
	if view.Status.Terminal() {
		return
	}

	hb := time.NewTicker(h.heartbeat)
	defer hb.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			return
		case <-hb.C:
			h.send(c, "ping", gin.H{"at": time.Now().UTC()})
		case <-client.Outbound:
			view, err := h.videos.Status(ctx, userID, materialID)
			if err != nil {
				h.log.Warn("Status refresh failed", "material_id", materialID, "error", err)
				h.send(c, "error", gin.H{"message": "could not load video status"})
				return
			}
			h.send(c, sse.SSEEventVideoStatus, view)
			if view.Status.Terminal() {
				return
			}
		}
	}
}

func (h *VideoHandler) send(c *gin.Context, event sse.SSEEvent, data any) {
	c.SSEvent(string(event), data)
	c.Writer.Flush()
}

