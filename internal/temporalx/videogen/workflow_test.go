package videogen

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/logger"
)

type fakeRunner struct {
	mu      sync.Mutex
	runErr  error
	runs    int
	reasons []string
}

func (f *fakeRunner) Run(ctx context.Context, id uuid.UUID, attempt int) error {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	return f.runErr
}

func (f *fakeRunner) Fail(ctx context.Context, id uuid.UUID, attempt int, reason string) error {
	f.mu.Lock()
	f.reasons = append(f.reasons, reason)
	f.mu.Unlock()
	return nil
}

func newWorkflowEnv(t *testing.T) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	acts := &Activities{Log: logger.NewNop(), Runner: &fakeRunner{}}
	env.RegisterWorkflowWithOptions(Workflow, workflow.RegisterOptions{Name: WorkflowName})
	env.RegisterActivityWithOptions(acts.GenerateVideo, activity.RegisterOptions{Name: ActivityGenerateVideo})
	env.RegisterActivityWithOptions(acts.FailVideoGeneration, activity.RegisterOptions{Name: ActivityFailVideoGeneration})
	return env
}

func TestWorkflowCompletes(t *testing.T) {
	env := newWorkflowEnv(t)
	in := Input{AdaptedContentID: uuid.New(), Attempt: 1, PipelineSeconds: 240}
	env.OnActivity(ActivityGenerateVideo, mock.Anything, in).Return(nil).Once()

	env.ExecuteWorkflow(WorkflowName, in)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	env.AssertExpectations(t)
}

func TestWorkflowCompensatesFailedActivity(t *testing.T) {
	env := newWorkflowEnv(t)
	in := Input{AdaptedContentID: uuid.New(), Attempt: 2, PipelineSeconds: 240}
	env.OnActivity(ActivityGenerateVideo, mock.Anything, in).Return(errors.New("worker lost")).Once()
	env.OnActivity(ActivityFailVideoGeneration, mock.Anything, mock.MatchedBy(func(f FailInput) bool {
		return f.AdaptedContentID == in.AdaptedContentID && f.Attempt == 2 && f.Reason == interruptedReason
	})).Return(nil).Once()

	env.ExecuteWorkflow(WorkflowName, in)

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	env.AssertExpectations(t)
}

func TestGenerateVideoActivityRunsPipeline(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	runner := &fakeRunner{}
	acts := &Activities{Log: logger.NewNop(), Runner: runner, HeartbeatEvery: time.Millisecond}
	env.RegisterActivity(acts)

	_, err := env.ExecuteActivity(acts.GenerateVideo, Input{AdaptedContentID: uuid.New(), Attempt: 1})
	require.NoError(t, err)
	require.Equal(t, 1, runner.runs)

	_, err = env.ExecuteActivity(acts.GenerateVideo, Input{Attempt: 1})
	require.Error(t, err)
	require.Equal(t, 1, runner.runs)
}

func TestFailActivityPassesReason(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	runner := &fakeRunner{}
	acts := &Activities{Log: logger.NewNop(), Runner: runner}
	env.RegisterActivity(acts)

	_, err := env.ExecuteActivity(acts.FailVideoGeneration, FailInput{AdaptedContentID: uuid.New(), Attempt: 1, Reason: "gone"})
	require.NoError(t, err)
	require.Equal(t, []string{"gone"}, runner.reasons)
}

func TestActivityTimeoutAddsGrace(t *testing.T) {
	if got := (Input{}).activityTimeout(); got != 270*time.Second {
		t.Fatalf("default: want=270s got=%s", got)
	}
	if got := (Input{PipelineSeconds: 10}).activityTimeout(); got != 40*time.Second {
		t.Fatalf("custom: want=40s got=%s", got)
	}
}
