package sse

import (
	"testing"

	"github.com/google/uuid"

	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/logger"
)

func TestBroadcastReachesOnlySubscribedChannel(t *testing.T) {
	hub := NewSSEHub(logger.NewNop())
	a := hub.NewSSEClient(uuid.New())
	b := hub.NewSSEClient(uuid.New())
	chA := VideoChannel(uuid.New())
	chB := VideoChannel(uuid.New())
	hub.AddChannel(a, chA)
	hub.AddChannel(b, chB)

	hub.Broadcast(SSEMessage{Channel: chA, Event: SSEEventVideoStatus, Data: "x"})

	select {
	case msg := <-a.Outbound:
		if msg.Channel != chA {
			t.Fatalf("channel: want=%s got=%s", chA, msg.Channel)
		}
	default:
		t.Fatalf("client a did not receive message")
	}
	select {
	case msg := <-b.Outbound:
		t.Fatalf("client b received %+v", msg)
	default:
	}
}

func TestBroadcastDropsWhenBufferFull(t *testing.T) {
	hub := NewSSEHub(logger.NewNop())
	c := hub.NewSSEClient(uuid.New())
	ch := VideoChannel(uuid.New())
	hub.AddChannel(c, ch)

	for i := 0; i < cap(c.Outbound)+5; i++ {
		hub.Broadcast(SSEMessage{Channel: ch, Event: SSEEventVideoStatus})
	}
	if got := len(c.Outbound); got != cap(c.Outbound) {
		t.Fatalf("buffered: want=%d got=%d", cap(c.Outbound), got)
	}
}

func TestCloseClientUnsubscribesOnce(t *testing.T) {
	hub := NewSSEHub(logger.NewNop())
	c := hub.NewSSEClient(uuid.New())
	ch := VideoChannel(uuid.New())
	hub.AddChannel(c, ch)

	hub.CloseClient(c)
	hub.CloseClient(c)

	if n := hub.Subscribers(ch); n != 0 {
		t.Fatalf("subscribers: want=0 got=%d", n)
	}
	select {
	case <-c.Done():
	default:
		t.Fatalf("done not closed")
	}
}
