package learning

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/edaptivai-netizen/edaptiv-learning/internal/domain"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/dbctx"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/logger"
)

type StudentProfileRepo interface {
	Upsert(dbc dbctx.Context, p *types.StudentProfile) error
	GetByUserID(dbc dbctx.Context, userID uuid.UUID) (*types.StudentProfile, error)
}

type studentProfileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStudentProfileRepo(db *gorm.DB, baseLog *logger.Logger) StudentProfileRepo {
	return &studentProfileRepo{db: db, log: baseLog.With("repo", "StudentProfileRepo")}
}

func (r *studentProfileRepo) Upsert(dbc dbctx.Context, p *types.StudentProfile) error {
	return dbc.DB(r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "learning_style", "challenges", "grade_level", "updated_at"}),
	}).Create(p).Error
}

func (r *studentProfileRepo) GetByUserID(dbc dbctx.Context, userID uuid.UUID) (*types.StudentProfile, error) {
	if userID == uuid.Nil {
		return nil, nil
	}
	var p types.StudentProfile
	if err := dbc.DB(r.db).Where("user_id = ?", userID).Limit(1).Find(&p).Error; err != nil {
		return nil, err
	}
	if p.UserID == uuid.Nil {
		return nil, nil
	}
	return &p, nil
}
