package videogen

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"

	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/logger"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/services"
)

func TestDispatchStartsWorkflowPerAttempt(t *testing.T) {
	tc := &mocks.Client{}
	run := &mocks.WorkflowRun{}
	job := services.GenerationJob{AdaptedContentID: uuid.New(), Attempt: 3}
	wantID := WorkflowID(job.AdaptedContentID, 3)

	run.On("GetID").Return(wantID)
	run.On("GetRunID").Return("run-1")
	tc.On("ExecuteWorkflow",
		mock.Anything,
		mock.MatchedBy(func(o temporalsdkclient.StartWorkflowOptions) bool {
			return o.ID == wantID && o.TaskQueue == "edaptiv-video" &&
				o.WorkflowIDReusePolicy == enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE
		}),
		WorkflowName,
		Input{AdaptedContentID: job.AdaptedContentID, Attempt: 3, PipelineSeconds: 60},
	).Return(run, nil).Once()

	d := NewDispatcher(logger.NewNop(), tc, "edaptiv-video", time.Minute)
	require.NoError(t, d.Dispatch(context.Background(), job))
	tc.AssertExpectations(t)
}

func TestDispatchToleratesDuplicateStart(t *testing.T) {
	tc := &mocks.Client{}
	tc.On("ExecuteWorkflow", mock.Anything, mock.Anything, WorkflowName, mock.Anything).
		Return(nil, serviceerror.NewWorkflowExecutionAlreadyStarted("already started", "req", "run")).Once()

	d := NewDispatcher(logger.NewNop(), tc, "q", 0)
	require.NoError(t, d.Dispatch(context.Background(), services.GenerationJob{AdaptedContentID: uuid.New(), Attempt: 1}))
	tc.AssertExpectations(t)
}

func TestWorkflowIDFormat(t *testing.T) {
	id := uuid.MustParse("7f1c0b6e-3d0a-4d7e-9a55-0c1e2f3a4b5c")
	require.Equal(t, "video-7f1c0b6e-3d0a-4d7e-9a55-0c1e2f3a4b5c-2", WorkflowID(id, 2))
}
