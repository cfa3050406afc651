package learning

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Subject string

const (
	SubjectMath          Subject = "math"
	SubjectScience       Subject = "science"
	SubjectEnglish       Subject = "english"
	SubjectHistory       Subject = "history"
	SubjectSocialStudies Subject = "social_studies"
	SubjectComputer      Subject = "computer"
	SubjectArt           Subject = "art"
	SubjectOther         Subject = "other"
)

func NormalizeSubject(s string) Subject {
	switch sub := Subject(strings.ToLower(strings.TrimSpace(s))); sub {
	case SubjectMath, SubjectScience, SubjectEnglish, SubjectHistory,
		SubjectSocialStudies, SubjectComputer, SubjectArt:
		return sub
	default:
		return SubjectOther
	}
}

type StudyMaterial struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`

	Title       string  `gorm:"column:title;not null" json:"title"`
	Description string  `gorm:"column:description" json:"description"`
	Subject     Subject `gorm:"column:subject;not null;index" json:"subject"`
	GradeLevel  int     `gorm:"column:grade_level" json:"grade_level"`

	TargetLearningStyles datatypes.JSONSlice[string] `gorm:"column:target_learning_styles" json:"target_learning_styles"`
	TargetChallenges     datatypes.JSONSlice[string] `gorm:"column:target_challenges" json:"target_challenges"`

	// Inline text wins over the uploaded file when both are present.
	ContentText string `gorm:"column:content_text" json:"-"`
	StorageKey  string `gorm:"column:storage_key" json:"storage_key,omitempty"`
	MimeType    string `gorm:"column:mime_type" json:"mime_type,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (StudyMaterial) TableName() string { return "study_material" }

func (m *StudyMaterial) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.Subject = NormalizeSubject(string(m.Subject))
	return nil
}
