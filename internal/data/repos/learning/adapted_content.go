package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/edaptivai-netizen/edaptiv-learning/internal/domain"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/dbctx"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/logger"
)

// claimableStatuses may enter generating unconditionally. A generating row
// is claimable only once its claim has gone stale.
var claimableStatuses = []string{
	string(types.VideoStatusPending),
	string(types.VideoStatusFailed),
}

type RegenerationFilter struct {
	MaterialID  *uuid.UUID
	StaleBefore time.Time
	Limit       int
}

type AdaptedContentRepo interface {
	// GetOrCreate inserts ac unless a row for (student, material) exists and
	// returns whichever row won, plus whether it was created by this call.
	GetOrCreate(dbc dbctx.Context, ac *types.AdaptedContent) (*types.AdaptedContent, bool, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.AdaptedContent, error)
	GetByStudentAndMaterial(dbc dbctx.Context, studentID, materialID uuid.UUID) (*types.AdaptedContent, error)

	ClaimForGeneration(dbc dbctx.Context, id uuid.UUID, staleBefore time.Time) (*types.AdaptedContent, error)
	AdoptCachedVideo(dbc dbctx.Context, id uuid.UUID, videoKey string) (bool, error)
	SetRenderJob(dbc dbctx.Context, id uuid.UUID, attempt int, jobID string) (bool, error)
	CompleteGeneration(dbc dbctx.Context, id uuid.UUID, attempt int, videoKey string) (bool, error)
	FailGeneration(dbc dbctx.Context, id uuid.UUID, attempt int, message string) (bool, error)

	FindReusable(dbc dbctx.Context, materialID uuid.UUID, style types.LearningStyle, challengeKey string) (*types.AdaptedContent, error)
	ListForRegeneration(dbc dbctx.Context, filter RegenerationFilter) ([]*types.AdaptedContent, error)
	ResetToPending(dbc dbctx.Context, id uuid.UUID, fromStatus types.VideoStatus) (bool, error)
}

type adaptedContentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAdaptedContentRepo(db *gorm.DB, baseLog *logger.Logger) AdaptedContentRepo {
	return &adaptedContentRepo{db: db, log: baseLog.With("repo", "AdaptedContentRepo")}
}

func (r *adaptedContentRepo) GetOrCreate(dbc dbctx.Context, ac *types.AdaptedContent) (*types.AdaptedContent, bool, error) {
	res := dbc.DB(r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "student_id"}, {Name: "material_id"}},
		DoNothing: true,
	}).Create(ac)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return ac, true, nil
	}
	existing, err := r.GetByStudentAndMaterial(dbc, ac.StudentID, ac.MaterialID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *adaptedContentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.AdaptedContent, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var ac types.AdaptedContent
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&ac).Error; err != nil {
		return nil, err
	}
	if ac.ID == uuid.Nil {
		return nil, nil
	}
	return &ac, nil
}

func (r *adaptedContentRepo) GetByStudentAndMaterial(dbc dbctx.Context, studentID, materialID uuid.UUID) (*types.AdaptedContent, error) {
	if studentID == uuid.Nil || materialID == uuid.Nil {
		return nil, nil
	}
	var ac types.AdaptedContent
	if err := dbc.DB(r.db).
		Where("student_id = ? AND material_id = ?", studentID, materialID).
		Limit(1).
		Find(&ac).Error; err != nil {
		return nil, err
	}
	if ac.ID == uuid.Nil {
		return nil, nil
	}
	return &ac, nil
}

// ClaimForGeneration moves the row into generating and bumps its attempt.
// It returns nil when another caller holds a live claim or the row is completed.
func (r *adaptedContentRepo) ClaimForGeneration(dbc dbctx.Context, id uuid.UUID, staleBefore time.Time) (*types.AdaptedContent, error) {
	var claimed *types.AdaptedContent
	err := dbc.DB(r.db).Transaction(func(txx *gorm.DB) error {
		now := time.Now().UTC()
		res := txx.Model(&types.AdaptedContent{}).
			Where("id = ?", id).
			Where(
				txx.Where("video_status IN ?", claimableStatuses).
					Or("video_status = ? AND generation_started_at IS NOT NULL AND generation_started_at < ?", string(types.VideoStatusGenerating), staleBefore.UTC()),
			).
			Updates(map[string]interface{}{
				"video_status":          string(types.VideoStatusGenerating),
				"generation_attempt":    gorm.Expr("generation_attempt + 1"),
				"generation_started_at": now,
				"video_key":             nil,
				"video_error":           nil,
				"video_generated_at":    nil,
				"render_job_id":         "",
				"updated_at":            now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		var row types.AdaptedContent
		if err := txx.Where("id = ?", id).First(&row).Error; err != nil {
			return err
		}
		claimed = &row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *adaptedContentRepo) AdoptCachedVideo(dbc dbctx.Context, id uuid.UUID, videoKey string) (bool, error) {
	now := time.Now().UTC()
	res := dbc.DB(r.db).Model(&types.AdaptedContent{}).
		Where("id = ? AND video_status IN ?", id, claimableStatuses).
		Updates(map[string]interface{}{
			"video_status":       string(types.VideoStatusCompleted),
			"video_key":          videoKey,
			"video_error":        nil,
			"video_generated_at": now,
			"updated_at":         now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *adaptedContentRepo) SetRenderJob(dbc dbctx.Context, id uuid.UUID, attempt int, jobID string) (bool, error) {
	return r.updateAttempt(dbc, id, attempt, map[string]interface{}{
		"render_job_id": jobID,
	})
}

func (r *adaptedContentRepo) CompleteGeneration(dbc dbctx.Context, id uuid.UUID, attempt int, videoKey string) (bool, error) {
	now := time.Now().UTC()
	return r.updateAttempt(dbc, id, attempt, map[string]interface{}{
		"video_status":       string(types.VideoStatusCompleted),
		"video_key":          videoKey,
		"video_error":        nil,
		"video_generated_at": now,
	})
}

func (r *adaptedContentRepo) FailGeneration(dbc dbctx.Context, id uuid.UUID, attempt int, message string) (bool, error) {
	if message == "" {
		message = "video generation failed"
	}
	return r.updateAttempt(dbc, id, attempt, map[string]interface{}{
		"video_status": string(types.VideoStatusFailed),
		"video_key":    nil,
		"video_error":  message,
	})
}

// updateAttempt applies updates only while the row is still generating under
// the given attempt, so a superseded worker cannot overwrite a newer cycle.
func (r *adaptedContentRepo) updateAttempt(dbc dbctx.Context, id uuid.UUID, attempt int, updates map[string]interface{}) (bool, error) {
	updates["updated_at"] = time.Now().UTC()
	res := dbc.DB(r.db).Model(&types.AdaptedContent{}).
		Where("id = ? AND video_status = ? AND generation_attempt = ?", id, string(types.VideoStatusGenerating), attempt).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *adaptedContentRepo) FindReusable(dbc dbctx.Context, materialID uuid.UUID, style types.LearningStyle, challengeKey string) (*types.AdaptedContent, error) {
	if materialID == uuid.Nil || style == "" {
		return nil, nil
	}
	var ac types.AdaptedContent
	err := dbc.DB(r.db).
		Where("material_id = ? AND learning_style = ? AND challenge_key = ?", materialID, string(style), challengeKey).
		Where("video_status = ? AND video_key IS NOT NULL AND video_key <> ''", string(types.VideoStatusCompleted)).
		Order("video_generated_at DESC").
		Limit(1).
		Find(&ac).Error
	if err != nil {
		return nil, err
	}
	if ac.ID == uuid.Nil {
		return nil, nil
	}
	return &ac, nil
}

func (r *adaptedContentRepo) ListForRegeneration(dbc dbctx.Context, filter RegenerationFilter) ([]*types.AdaptedContent, error) {
	q := dbc.DB(r.db).Model(&types.AdaptedContent{})
	cond := r.db.Where("video_status IN ?", []string{string(types.VideoStatusFailed), string(types.VideoStatusCompleted)})
	if !filter.StaleBefore.IsZero() {
		cond = cond.Or("video_status = ? AND generation_started_at < ?", string(types.VideoStatusGenerating), filter.StaleBefore.UTC())
	}
	q = q.Where(cond)
	if filter.MaterialID != nil && *filter.MaterialID != uuid.Nil {
		q = q.Where("material_id = ?", *filter.MaterialID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var out []*types.AdaptedContent
	if err := q.Order("updated_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *adaptedContentRepo) ResetToPending(dbc dbctx.Context, id uuid.UUID, fromStatus types.VideoStatus) (bool, error) {
	now := time.Now().UTC()
	res := dbc.DB(r.db).Model(&types.AdaptedContent{}).
		Where("id = ? AND video_status = ?", id, string(fromStatus)).
		Updates(map[string]interface{}{
			"video_status":       string(types.VideoStatusPending),
			"video_key":          nil,
			"video_generated_at": nil,
			"updated_at":         now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
