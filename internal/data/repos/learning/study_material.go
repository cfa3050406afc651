package learning

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/edaptivai-netizen/edaptiv-learning/internal/domain"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/dbctx"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/logger"
)

type StudyMaterialRepo interface {
	Create(dbc dbctx.Context, m *types.StudyMaterial) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.StudyMaterial, error)
}

type studyMaterialRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStudyMaterialRepo(db *gorm.DB, baseLog *logger.Logger) StudyMaterialRepo {
	return &studyMaterialRepo{db: db, log: baseLog.With("repo", "StudyMaterialRepo")}
}

func (r *studyMaterialRepo) Create(dbc dbctx.Context, m *types.StudyMaterial) error {
	return dbc.DB(r.db).Create(m).Error
}

func (r *studyMaterialRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.StudyMaterial, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var m types.StudyMaterial
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&m).Error; err != nil {
		return nil, err
	}
	if m.ID == uuid.Nil {
		return nil, nil
	}
	return &m, nil
}
