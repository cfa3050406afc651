package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	types "github.com/edaptivai-netizen/edaptiv-learning/internal/domain"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/logger"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/sse"
)

// SSEPublisher is the cross-node bus; redis.SSEBus satisfies it.
type SSEPublisher interface {
	Publish(ctx context.Context, msg sse.SSEMessage) error
}

type VideoStatusNotifier interface {
	VideoStatusChanged(ctx context.Context, adaptedContentID uuid.UUID, status types.VideoStatus, errMsg string)
}

type VideoStatusEvent struct {
	AdaptedContentID uuid.UUID         `json:"adapted_content_id"`
	Status           types.VideoStatus `json:"status"`
	Error            string            `json:"error,omitempty"`
	At               time.Time         `json:"at"`
}

type videoStatusNotifier struct {
	log *logger.Logger
	hub *sse.SSEHub
	bus SSEPublisher
}

// NewVideoStatusNotifier publishes on bus when set; the bus forwarder then
// broadcasts on every node's hub, this one included. Without a bus the local
// hub is used directly.
func NewVideoStatusNotifier(baseLog *logger.Logger, hub *sse.SSEHub, bus SSEPublisher) VideoStatusNotifier {
	return &videoStatusNotifier{
		log: baseLog.With("service", "VideoStatusNotifier"),
		hub: hub,
		bus: bus,
	}
}

func (n *videoStatusNotifier) VideoStatusChanged(ctx context.Context, adaptedContentID uuid.UUID, status types.VideoStatus, errMsg string) {
	msg := sse.SSEMessage{
		Channel: sse.VideoChannel(adaptedContentID),
		Event:   sse.SSEEventVideoStatus,
		Data: VideoStatusEvent{
			AdaptedContentID: adaptedContentID,
			Status:           status,
			Error:            errMsg,
			At:               time.Now().UTC(),
		},
	}
	if n.bus != nil {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
		defer cancel()
		err := n.bus.Publish(pubCtx, msg)
		if err == nil {
			return
		}
		n.log.Warn("Status publish failed; broadcasting locally", "adapted_content_id", adaptedContentID, "error", err)
	}
	if n.hub != nil {
		n.hub.Broadcast(msg)
	}
}
