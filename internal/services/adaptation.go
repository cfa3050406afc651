package services

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/edaptivai-netizen/edaptiv-learning/internal/data/repos"
	types "github.com/edaptivai-netizen/edaptiv-learning/internal/domain"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/domain/generation"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/dbctx"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/gcp"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/logger"
)

const maxMaterialTextBytes = 64 << 10

// AdaptedMaterial is what a student sees for one material.
type AdaptedMaterial struct {
	Material *types.StudyMaterial
	Profile  *types.StudentProfile
	Content  *types.AdaptedContent
	Created  bool
}

type AdaptationService interface {
	// EnsureAdapted returns the student's adapted content for a material,
	// creating it on first view.
	EnsureAdapted(ctx context.Context, studentID, materialID uuid.UUID) (*AdaptedMaterial, error)
	LoadContext(ctx context.Context, studentID, materialID uuid.UUID) (*types.StudyMaterial, *types.StudentProfile, error)
	MaterialText(ctx context.Context, m *types.StudyMaterial) string
}

type adaptationService struct {
	log       *logger.Logger
	repos     repos.Repos
	scripts   ScriptProvider
	materials gcp.BucketService
}

func NewAdaptationService(baseLog *logger.Logger, r repos.Repos, scripts ScriptProvider, materials gcp.BucketService) AdaptationService {
	return &adaptationService{
		log:       baseLog.With("service", "AdaptationService"),
		repos:     r,
		scripts:   scripts,
		materials: materials,
	}
}

func (s *adaptationService) LoadContext(ctx context.Context, studentID, materialID uuid.UUID) (*types.StudyMaterial, *types.StudentProfile, error) {
	dbc := dbctx.New(ctx)
	material, err := s.repos.Materials.GetByID(dbc, materialID)
	if err != nil {
		return nil, nil, fmt.Errorf("load material: %w", err)
	}
	if material == nil {
		return nil, nil, generation.NewError(generation.CodeNotFound, "adaptation", "material not found", nil)
	}
	profile, err := s.repos.Profiles.GetByUserID(dbc, studentID)
	if err != nil {
		return nil, nil, fmt.Errorf("load student profile: %w", err)
	}
	if profile == nil {
		return nil, nil, generation.NewError(generation.CodeNotFound, "adaptation", "student profile not found", nil)
	}
	return material, profile, nil
}

func (s *adaptationService) EnsureAdapted(ctx context.Context, studentID, materialID uuid.UUID) (*AdaptedMaterial, error) {
	material, profile, err := s.LoadContext(ctx, studentID, materialID)
	if err != nil {
		return nil, err
	}
	dbc := dbctx.New(ctx)
	existing, err := s.repos.AdaptedContents.GetByStudentAndMaterial(dbc, studentID, materialID)
	if err != nil {
		return nil, fmt.Errorf("load adapted content: %w", err)
	}
	if existing != nil {
		return &AdaptedMaterial{Material: material, Profile: profile, Content: existing}, nil
	}

	challenges, err := profile.ChallengeSet()
	if err != nil {
		return nil, generation.NewError(generation.CodeInvalidArgument, "adaptation", err.Error(), err)
	}
	result := s.scripts.GenerateScript(ctx, ScriptRequest{
		OriginalContent: s.MaterialText(ctx, material),
		LearningStyle:   profile.LearningStyle,
		Challenges:      challenges,
		StudentName:     profile.FirstName(),
		Subject:         material.Subject,
		Title:           material.Title,
	})

	ac := &types.AdaptedContent{
		StudentID:       studentID,
		MaterialID:      materialID,
		AdaptedText:     result.TeachingScript,
		AdaptationNotes: result.Notes,
		VideoStatus:     types.VideoStatusPending,
	}
	ac.ApplyProfile(profile.LearningStyle, challenges)

	row, created, err := s.repos.AdaptedContents.GetOrCreate(dbc, ac)
	if err != nil {
		return nil, fmt.Errorf("create adapted content: %w", err)
	}
	if created {
		s.log.Info("Adapted content created",
			"adapted_content_id", row.ID,
			"material_id", materialID,
			"student_id", studentID,
			"fallback", !result.Success,
		)
	}
	return &AdaptedMaterial{Material: material, Profile: profile, Content: row, Created: created}, nil
}

// MaterialText prefers inline text and otherwise reads the head of the
// uploaded file. It never fails; the description stands in when nothing
// else is readable.
func (s *adaptationService) MaterialText(ctx context.Context, m *types.StudyMaterial) string {
	if m == nil {
		return ""
	}
	if t := strings.TrimSpace(m.ContentText); t != "" {
		return t
	}
	fallback := strings.TrimSpace(m.Title + ". " + m.Description)
	key := strings.TrimSpace(m.StorageKey)
	if key == "" || s.materials == nil {
		return fallback
	}
	rc, err := s.materials.DownloadFile(ctx, gcp.BucketCategoryMaterial, key)
	if err != nil {
		s.log.Warn("Material download failed", "material_id", m.ID, "key", key, "error", err)
		return fallback
	}
	defer rc.Close()
	raw, err := io.ReadAll(io.LimitReader(rc, maxMaterialTextBytes))
	if err != nil {
		s.log.Warn("Material read failed", "material_id", m.ID, "key", key, "error", err)
		return fallback
	}
	text := strings.TrimSpace(strings.ToValidUTF8(string(raw), ""))
	if text == "" {
		return fallback
	}
	return text
}
