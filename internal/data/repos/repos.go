package repos

import (
	"gorm.io/gorm"

	"github.com/edaptivai-netizen/edaptiv-learning/internal/data/repos/learning"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/logger"
)

type StudyMaterialRepo = learning.StudyMaterialRepo
type StudentProfileRepo = learning.StudentProfileRepo
type AdaptedContentRepo = learning.AdaptedContentRepo

type RegenerationFilter = learning.RegenerationFilter

func NewStudyMaterialRepo(db *gorm.DB, baseLog *logger.Logger) StudyMaterialRepo {
	return learning.NewStudyMaterialRepo(db, baseLog)
}
func NewStudentProfileRepo(db *gorm.DB, baseLog *logger.Logger) StudentProfileRepo {
	return learning.NewStudentProfileRepo(db, baseLog)
}
func NewAdaptedContentRepo(db *gorm.DB, baseLog *logger.Logger) AdaptedContentRepo {
	return learning.NewAdaptedContentRepo(db, baseLog)
}

type Repos struct {
	Materials       StudyMaterialRepo
	Profiles        StudentProfileRepo
	AdaptedContents AdaptedContentRepo
}

func New(db *gorm.DB, baseLog *logger.Logger) Repos {
	return Repos{
		Materials:       NewStudyMaterialRepo(db, baseLog),
		Profiles:        NewStudentProfileRepo(db, baseLog),
		AdaptedContents: NewAdaptedContentRepo(db, baseLog),
	}
}
