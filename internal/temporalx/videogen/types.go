package videogen

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	WorkflowName                = "VideoGeneration"
	ActivityGenerateVideo       = "GenerateVideo"
	ActivityFailVideoGeneration = "FailVideoGeneration"
)

// activityGrace is added to the pipeline timeout so the pipeline's own
// deadline fires first and records a proper timeout on the row.
const activityGrace = 30 * time.Second

type Input struct {
	AdaptedContentID uuid.UUID `json:"adapted_content_id"`
	Attempt          int       `json:"attempt"`
	PipelineSeconds  int       `json:"pipeline_seconds"`
}

type FailInput struct {
	AdaptedContentID uuid.UUID `json:"adapted_content_id"`
	Attempt          int       `json:"attempt"`
	Reason           string    `json:"reason"`
}

func (in Input) activityTimeout() time.Duration {
	secs := in.PipelineSeconds
	if secs <= 0 {
		secs = 240
	}
	return time.Duration(secs)*time.Second + activityGrace
}

// WorkflowID ties one workflow execution to one generation attempt.
func WorkflowID(adaptedContentID uuid.UUID, attempt int) string {
	return fmt.Sprintf("video-%s-%d", adaptedContentID, attempt)
}
