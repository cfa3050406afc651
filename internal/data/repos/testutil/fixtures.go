package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/edaptivai-netizen/edaptiv-learning/internal/domain"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/domain/learning"
)

func SeedMaterial(tb testing.TB, ctx context.Context, tx *gorm.DB, title string) *types.StudyMaterial {
	tb.Helper()
	m := &types.StudyMaterial{
		ID:          uuid.New(),
		OwnerUserID: uuid.New(),
		Title:       title,
		Description: "Intro to " + title,
		Subject:     learning.SubjectScience,
		GradeLevel:  7,
		ContentText: "Plants turn sunlight, water and carbon dioxide into glucose and oxygen.",
		TargetLearningStyles: datatypes.NewJSONSlice([]string{
			string(learning.LearningStyleVisual),
		}),
		TargetChallenges: datatypes.NewJSONSlice([]string{}),
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed material: %v", err)
	}
	return m
}

func SeedStudent(tb testing.TB, ctx context.Context, tx *gorm.DB, name string, style learning.LearningStyle, challenges ...string) *types.StudentProfile {
	tb.Helper()
	cs, err := learning.NewChallengeSet(challenges...)
	if err != nil {
		tb.Fatalf("seed student challenges: %v", err)
	}
	p := &types.StudentProfile{
		UserID:        uuid.New(),
		DisplayName:   name,
		LearningStyle: style,
		Challenges:    datatypes.NewJSONSlice(cs.Strings()),
		GradeLevel:    7,
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed student: %v", err)
	}
	return p
}

func SeedAdaptedContent(tb testing.TB, ctx context.Context, tx *gorm.DB, student *types.StudentProfile, material *types.StudyMaterial) *types.AdaptedContent {
	tb.Helper()
	cs, err := student.ChallengeSet()
	if err != nil {
		tb.Fatalf("seed adapted content: %v", err)
	}
	ac := &types.AdaptedContent{
		StudentID:   student.UserID,
		MaterialID:  material.ID,
		AdaptedText: "Hi " + student.FirstName() + "! " + material.ContentText,
	}
	ac.ApplyProfile(student.LearningStyle, cs)
	if err := tx.WithContext(ctx).Create(ac).Error; err != nil {
		tb.Fatalf("seed adapted content: %v", err)
	}
	return ac
}
