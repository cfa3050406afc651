package videogen

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"

	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/logger"
)

type Runner interface {
	Run(ctx context.Context, adaptedContentID uuid.UUID, attempt int) error
	Fail(ctx context.Context, adaptedContentID uuid.UUID, attempt int, reason string) error
}

type Activities struct {
	Log    *logger.Logger
	Runner Runner

	// HeartbeatEvery defaults to 10s.
	HeartbeatEvery time.Duration
}

func (a *Activities) GenerateVideo(ctx context.Context, in Input) error {
	if a == nil || a.Runner == nil {
		return fmt.Errorf("videogen: activity not configured")
	}
	if in.AdaptedContentID == uuid.Nil {
		return fmt.Errorf("videogen: missing adapted_content_id")
	}
	stop := a.startHeartbeat(ctx, in)
	defer stop()
	return a.Runner.Run(ctx, in.AdaptedContentID, in.Attempt)
}

func (a *Activities) FailVideoGeneration(ctx context.Context, in FailInput) error {
	if a == nil || a.Runner == nil {
		return fmt.Errorf("videogen: activity not configured")
	}
	return a.Runner.Fail(ctx, in.AdaptedContentID, in.Attempt, in.Reason)
}

func (a *Activities) startHeartbeat(ctx context.Context, in Input) func() {
	every := a.HeartbeatEvery
	if every <= 0 {
		every = 10 * time.Second
	}
	done := make(chan struct{})
	go func() {
		tick := time.NewTicker(every)
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-tick.C:
				activity.RecordHeartbeat(ctx, in.Attempt)
			}
		}
	}()
	return func() { close(done) }
}
