package learning

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// StudentProfile is the learner side of an adaptation. It is keyed by the
// authenticated user id.
type StudentProfile struct {
	UserID        uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"user_id"`
	DisplayName   string                      `gorm:"column:display_name" json:"display_name"`
	LearningStyle LearningStyle               `gorm:"column:learning_style;not null" json:"learning_style"`
	Challenges    datatypes.JSONSlice[string] `gorm:"column:challenges" json:"challenges"`
	GradeLevel    int                         `gorm:"column:grade_level" json:"grade_level"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (StudentProfile) TableName() string { return "student_profile" }

func (p *StudentProfile) ChallengeSet() (ChallengeSet, error) {
	return NewChallengeSet(p.Challenges...)
}

// FirstName is what scripts greet the student with.
func (p *StudentProfile) FirstName() string {
	name := strings.TrimSpace(p.DisplayName)
	if name == "" {
		return "there"
	}
	if i := strings.IndexAny(name, " \t"); i > 0 {
		return name[:i]
	}
	return name
}
