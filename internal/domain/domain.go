package domain

import (
	"github.com/edaptivai-netizen/edaptiv-learning/internal/domain/learning"
)

type LearningStyle = learning.LearningStyle
type Challenge = learning.Challenge
type ChallengeSet = learning.ChallengeSet
type Subject = learning.Subject
type VideoStatus = learning.VideoStatus

type StudyMaterial = learning.StudyMaterial
type StudentProfile = learning.StudentProfile
type AdaptedContent = learning.AdaptedContent

const (
	VideoStatusPending    = learning.VideoStatusPending
	VideoStatusGenerating = learning.VideoStatusGenerating
	VideoStatusCompleted  = learning.VideoStatusCompleted
	VideoStatusFailed     = learning.VideoStatusFailed
)

// Models lists every persisted type, in dependency order, for AutoMigrate.
func Models() []any {
	return []any{
		&learning.StudentProfile{},
		&learning.StudyMaterial{},
		&learning.AdaptedContent{},
	}
}
