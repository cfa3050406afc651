package videogen

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const interruptedReason = "video generation did not finish; please retry"

// Workflow runs one generation attempt. The activity is never retried by
// Temporal; a retry is a new attempt claimed through the status tracker.
func Workflow(ctx workflow.Context, in Input) error {
	log := workflow.GetLogger(ctx)

	actx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: in.activityTimeout(),
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	err := workflow.ExecuteActivity(actx, ActivityGenerateVideo, in).Get(ctx, nil)
	if err == nil {
		return nil
	}
	log.Warn("Generate activity failed", "adapted_content_id", in.AdaptedContentID, "attempt", in.Attempt, "error", err)

	// Covers worker crashes and activity timeouts where the pipeline never got
	// to record its own failure. A no-op when the row already moved on.
	fctx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 5,
		},
	})
	fail := FailInput{AdaptedContentID: in.AdaptedContentID, Attempt: in.Attempt, Reason: interruptedReason}
	if ferr := workflow.ExecuteActivity(fctx, ActivityFailVideoGeneration, fail).Get(ctx, nil); ferr != nil {
		log.Error("Compensating failure write failed", "adapted_content_id", in.AdaptedContentID, "error", ferr)
	}
	return err
}
