package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/logger"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/sse"
)

func TestDecodeMessage(t *testing.T) {
	msg, err := decodeMessage(`{"channel":"video:abc","event":"video_status","data":{"status":"completed"}}`)
	if err != nil {
		t.Fatalf("decodeMessage: %v", err)
	}
	if msg.Channel != "video:abc" || msg.Event != sse.SSEEventVideoStatus {
		t.Fatalf("msg: %+v", msg)
	}
	if _, err := decodeMessage(`{"event":"video_status"}`); err == nil {
		t.Fatalf("want error for missing channel")
	}
	if _, err := decodeMessage(`not json`); err == nil {
		t.Fatalf("want error for bad json")
	}
}

func TestNewSSEBusRequiresAddr(t *testing.T) {
	if _, err := NewSSEBus(context.Background(), logger.NewNop(), Config{}); err == nil {
		t.Fatalf("want error for missing address")
	}
}

func TestSSEBusRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bus, err := NewSSEBus(ctx, logger.NewNop(), Config{Addr: addr, Channel: "video-status-test"})
	if err != nil {
		t.Fatalf("NewSSEBus: %v", err)
	}
	defer bus.Close()

	got := make(chan sse.SSEMessage, 1)
	if err := bus.StartForwarder(ctx, func(m sse.SSEMessage) { got <- m }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	if err := bus.Publish(ctx, sse.SSEMessage{Channel: "video:1", Event: sse.SSEEventVideoStatus}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case m := <-got:
		if m.Channel != "video:1" {
			t.Fatalf("channel: want=video:1 got=%s", m.Channel)
		}
	case <-ctx.Done():
		t.Fatalf("no message forwarded")
	}
}
