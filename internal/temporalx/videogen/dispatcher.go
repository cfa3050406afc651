package videogen

import (
	"context"
	"errors"
	"fmt"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/logger"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/services"
)

var _ services.Dispatcher = (*Dispatcher)(nil)

// Dispatcher starts one VideoGeneration workflow per claimed attempt.
type Dispatcher struct {
	log             *logger.Logger
	tc              temporalsdkclient.Client
	taskQueue       string
	pipelineTimeout time.Duration
}

func NewDispatcher(baseLog *logger.Logger, tc temporalsdkclient.Client, taskQueue string, pipelineTimeout time.Duration) *Dispatcher {
	if pipelineTimeout <= 0 {
		pipelineTimeout = services.DefaultPipelineTimeout
	}
	return &Dispatcher{
		log:             baseLog.With("component", "TemporalVideoDispatcher"),
		tc:              tc,
		taskQueue:       taskQueue,
		pipelineTimeout: pipelineTimeout,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, job services.GenerationJob) error {
	if d.tc == nil {
		return fmt.Errorf("videogen: temporal client is not configured")
	}
	in := Input{
		AdaptedContentID: job.AdaptedContentID,
		Attempt:          job.Attempt,
		PipelineSeconds:  int(d.pipelineTimeout / time.Second),
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                                       WorkflowID(job.AdaptedContentID, job.Attempt),
		TaskQueue:                                d.taskQueue,
		WorkflowExecutionTimeout:                 in.activityTimeout() + 2*time.Minute,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}
	run, err := d.tc.ExecuteWorkflow(ctx, opts, WorkflowName, in)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			d.log.Debug("Workflow already started", "workflow_id", opts.ID)
			return nil
		}
		return fmt.Errorf("videogen: start workflow %s: %w", opts.ID, err)
	}
	d.log.Info("Workflow started", "workflow_id", run.GetID(), "run_id", run.GetRunID())
	return nil
}
