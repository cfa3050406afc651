package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type VideoStatus string

const (
	VideoStatusPending    VideoStatus = "pending"
	VideoStatusGenerating VideoStatus = "generating"
	VideoStatusCompleted  VideoStatus = "completed"
	VideoStatusFailed     VideoStatus = "failed"
)

func (s VideoStatus) Terminal() bool {
	return s == VideoStatusCompleted || s == VideoStatusFailed
}

// AdaptedContent is the personalised text and video state of one
// (student, material) pair. VideoKey is set iff VideoStatus is completed.
type AdaptedContent struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID  uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_adapted_content_student_material,priority:1" json:"student_id"`
	Student    *StudentProfile `gorm:"constraint:OnDelete:CASCADE;foreignKey:StudentID;references:UserID" json:"-"`
	MaterialID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_adapted_content_student_material,priority:2;index:idx_adapted_content_reuse,priority:1" json:"material_id"`
	Material   *StudyMaterial  `gorm:"constraint:OnDelete:CASCADE;foreignKey:MaterialID;references:ID" json:"-"`

	AdaptedText     string `gorm:"column:adapted_text" json:"adapted_text"`
	AdaptationNotes string `gorm:"column:adaptation_notes" json:"adaptation_notes"`

	LearningStyle LearningStyle               `gorm:"column:learning_style;not null;index:idx_adapted_content_reuse,priority:2" json:"learning_style"`
	Challenges    datatypes.JSONSlice[string] `gorm:"column:challenges" json:"challenges"`
	ChallengeKey  string                      `gorm:"column:challenge_key;not null;default:'';index:idx_adapted_content_reuse,priority:3" json:"-"`

	VideoKey         *string     `gorm:"column:video_key" json:"-"`
	VideoStatus      VideoStatus `gorm:"column:video_status;not null;default:'pending';index" json:"video_status"`
	VideoError       *string     `gorm:"column:video_error" json:"video_error,omitempty"`
	VideoGeneratedAt *time.Time  `gorm:"column:video_generated_at" json:"video_generated_at,omitempty"`

	RenderJobID         string     `gorm:"column:render_job_id" json:"-"`
	GenerationAttempt   int        `gorm:"column:generation_attempt;not null;default:0" json:"generation_attempt"`
	GenerationStartedAt *time.Time `gorm:"column:generation_started_at" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AdaptedContent) TableName() string { return "adapted_content" }

func (a *AdaptedContent) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.VideoStatus == "" {
		a.VideoStatus = VideoStatusPending
	}
	return nil
}

// ApplyProfile stamps the learner profile the content was adapted for.
// Challenges and ChallengeKey are always written together.
func (a *AdaptedContent) ApplyProfile(style LearningStyle, challenges ChallengeSet) {
	a.LearningStyle = style
	a.Challenges = datatypes.NewJSONSlice(challenges.Strings())
	a.ChallengeKey = challenges.Key()
}

func (a *AdaptedContent) ChallengeSet() (ChallengeSet, error) {
	return ParseChallengeKey(a.ChallengeKey)
}

func (a *AdaptedContent) HasVideo() bool {
	return a.VideoStatus == VideoStatusCompleted && a.VideoKey != nil && *a.VideoKey != ""
}
