package learning

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/edaptivai-netizen/edaptiv-learning/internal/domain"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/domain/learning"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/data/repos/testutil"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/dbctx"
)

func TestAdaptedContentGetOrCreateIsUniquePerPair(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewAdaptedContentRepo(db, testutil.Logger(t))

	m := testutil.SeedMaterial(t, ctx, db, "Photosynthesis")
	s := testutil.SeedStudent(t, ctx, db, "Ada", learning.LearningStyleVisual)

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 8)
	created := make([]bool, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ac := &types.AdaptedContent{StudentID: s.UserID, MaterialID: m.ID}
			ac.ApplyProfile(s.LearningStyle, learning.ChallengeSet{})
			got, isNew, err := repo.GetOrCreate(dbctx.Context{Ctx: ctx}, ac)
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			ids[i] = got.ID
			created[i] = isNew
		}(i)
	}
	wg.Wait()

	var count int64
	if err := db.Model(&types.AdaptedContent{}).Where("student_id = ? AND material_id = ?", s.UserID, m.ID).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("rows: want=1 got=%d", count)
	}
	newCount := 0
	for i := range ids {
		if ids[i] != ids[0] {
			t.Fatalf("ids differ: %s vs %s", ids[i], ids[0])
		}
		if created[i] {
			newCount++
		}
	}
	if newCount != 1 {
		t.Fatalf("created: want=1 got=%d", newCount)
	}
}

func TestClaimForGenerationIsExclusive(t *testing.T) {
	assertExclusiveClaim(t, testutil.DB(t))
}

// Row locks instead of a single sqlite connection.
func TestClaimForGenerationIsExclusivePostgres(t *testing.T) {
	assertExclusiveClaim(t, testutil.Postgres(t))
}

func assertExclusiveClaim(t *testing.T, db *gorm.DB) {
	t.Helper()
	ctx := context.Background()
	repo := NewAdaptedContentRepo(db, testutil.Logger(t))

	m := testutil.SeedMaterial(t, ctx, db, "Fractions")
	s := testutil.SeedStudent(t, ctx, db, "Grace", learning.LearningStyleAuditory)
	ac := testutil.SeedAdaptedContent(t, ctx, db, s, m)

	stale := time.Now().Add(-time.Hour)
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := repo.ClaimForGeneration(dbctx.Context{Ctx: ctx}, ac.ID, stale)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if claimed != nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("claims: want=1 got=%d", wins)
	}

	got, err := repo.GetByID(dbctx.Context{Ctx: ctx}, ac.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.VideoStatus != types.VideoStatusGenerating || got.GenerationAttempt != 1 {
		t.Fatalf("after claim: status=%q attempt=%d", got.VideoStatus, got.GenerationAttempt)
	}
}

func TestGenerationLifecycle(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewAdaptedContentRepo(db, testutil.Logger(t))

	m := testutil.SeedMaterial(t, ctx, db, "Volcanoes")
	s := testutil.SeedStudent(t, ctx, db, "Linus", learning.LearningStyleVisual)
	ac := testutil.SeedAdaptedContent(t, ctx, db, s, m)
	stale := time.Now().Add(-time.Hour)

	claimed, err := repo.ClaimForGeneration(dbc, ac.ID, stale)
	if err != nil || claimed == nil {
		t.Fatalf("first claim: claimed=%v err=%v", claimed, err)
	}
	ok, err := repo.FailGeneration(dbc, ac.ID, claimed.GenerationAttempt, "Video generation timed out")
	if err != nil || !ok {
		t.Fatalf("fail: ok=%v err=%v", ok, err)
	}

	retry, err := repo.ClaimForGeneration(dbc, ac.ID, stale)
	if err != nil || retry == nil {
		t.Fatalf("retry claim: claimed=%v err=%v", retry, err)
	}
	if retry.GenerationAttempt != 2 || retry.VideoError != nil {
		t.Fatalf("retry: attempt=%d error=%v", retry.GenerationAttempt, retry.VideoError)
	}

	// A late writer from attempt 1 must not touch attempt 2.
	if ok, _ := repo.CompleteGeneration(dbc, ac.ID, 1, "videos/stale.mp4"); ok {
		t.Fatalf("stale completion: want rejected")
	}
	ok, err = repo.CompleteGeneration(dbc, ac.ID, 2, "videos/fresh.mp4")
	if err != nil || !ok {
		t.Fatalf("complete: ok=%v err=%v", ok, err)
	}

	done, _ := repo.GetByID(dbc, ac.ID)
	if !done.HasVideo() || *done.VideoKey != "videos/fresh.mp4" || done.VideoGeneratedAt == nil {
		t.Fatalf("completed row: status=%q key=%v", done.VideoStatus, done.VideoKey)
	}

	if again, _ := repo.ClaimForGeneration(dbc, ac.ID, stale); again != nil {
		t.Fatalf("claim on completed: want nil")
	}
}

func TestClaimRecoversStaleGenerating(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewAdaptedContentRepo(db, testutil.Logger(t))

	m := testutil.SeedMaterial(t, ctx, db, "Rivers")
	s := testutil.SeedStudent(t, ctx, db, "Alan", learning.LearningStyleKinesthetic)
	ac := testutil.SeedAdaptedContent(t, ctx, db, s, m)

	if c, _ := repo.ClaimForGeneration(dbc, ac.ID, time.Now().Add(-time.Hour)); c == nil {
		t.Fatalf("initial claim failed")
	}
	if c, _ := repo.ClaimForGeneration(dbc, ac.ID, time.Now().Add(-time.Hour)); c != nil {
		t.Fatalf("live claim must block")
	}
	c, err := repo.ClaimForGeneration(dbc, ac.ID, time.Now().Add(time.Minute))
	if err != nil || c == nil {
		t.Fatalf("stale claim: claimed=%v err=%v", c, err)
	}
	if c.GenerationAttempt != 2 {
		t.Fatalf("stale claim attempt: want=2 got=%d", c.GenerationAttempt)
	}
}

func TestFindReusableRequiresExactChallengeSet(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewAdaptedContentRepo(db, testutil.Logger(t))

	m := testutil.SeedMaterial(t, ctx, db, "Cells")
	a := testutil.SeedStudent(t, ctx, db, "A", learning.LearningStyleVisual, "dyslexia")
	acA := testutil.SeedAdaptedContent(t, ctx, db, a, m)
	claimed, _ := repo.ClaimForGeneration(dbc, acA.ID, time.Now().Add(-time.Hour))
	if ok, err := repo.CompleteGeneration(dbc, acA.ID, claimed.GenerationAttempt, "videos/a.mp4"); err != nil || !ok {
		t.Fatalf("complete A: ok=%v err=%v", ok, err)
	}

	hit, err := repo.FindReusable(dbc, m.ID, learning.LearningStyleVisual, learning.MustChallengeSet("dyslexia").Key())
	if err != nil || hit == nil || hit.ID != acA.ID {
		t.Fatalf("exact match: hit=%v err=%v", hit, err)
	}
	if hit, _ := repo.FindReusable(dbc, m.ID, learning.LearningStyleVisual, learning.MustChallengeSet("dyslexia", "adhd").Key()); hit != nil {
		t.Fatalf("superset must not match")
	}
	if hit, _ := repo.FindReusable(dbc, m.ID, learning.LearningStyleVisual, ""); hit != nil {
		t.Fatalf("empty set must not match a non-empty set")
	}
	if hit, _ := repo.FindReusable(dbc, m.ID, learning.LearningStyleAuditory, learning.MustChallengeSet("dyslexia").Key()); hit != nil {
		t.Fatalf("different style must not match")
	}
}

func TestAdoptCachedVideoOnlyFromClaimableStates(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewAdaptedContentRepo(db, testutil.Logger(t))

	m := testutil.SeedMaterial(t, ctx, db, "Magnets")
	s := testutil.SeedStudent(t, ctx, db, "B", learning.LearningStyleVisual)
	ac := testutil.SeedAdaptedContent(t, ctx, db, s, m)

	ok, err := repo.AdoptCachedVideo(dbc, ac.ID, "videos/shared.mp4")
	if err != nil || !ok {
		t.Fatalf("adopt: ok=%v err=%v", ok, err)
	}
	if ok, _ := repo.AdoptCachedVideo(dbc, ac.ID, "videos/other.mp4"); ok {
		t.Fatalf("adopt on completed: want rejected")
	}
	got, _ := repo.GetByID(dbc, ac.ID)
	if *got.VideoKey != "videos/shared.mp4" {
		t.Fatalf("key: want=videos/shared.mp4 got=%s", *got.VideoKey)
	}

	if ok, _ := repo.ResetToPending(dbc, ac.ID, types.VideoStatusCompleted); !ok {
		t.Fatalf("reset: want ok")
	}
	got, _ = repo.GetByID(dbc, ac.ID)
	if got.VideoStatus != types.VideoStatusPending || got.VideoKey != nil {
		t.Fatalf("reset: status=%q key=%v", got.VideoStatus, got.VideoKey)
	}
}

func TestListForRegeneration(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewAdaptedContentRepo(db, testutil.Logger(t))

	m := testutil.SeedMaterial(t, ctx, db, "Gravity")
	pending := testutil.SeedAdaptedContent(t, ctx, db, testutil.SeedStudent(t, ctx, db, "P", learning.LearningStyleVisual), m)
	failed := testutil.SeedAdaptedContent(t, ctx, db, testutil.SeedStudent(t, ctx, db, "F", learning.LearningStyleVisual), m)
	c, _ := repo.ClaimForGeneration(dbc, failed.ID, time.Now().Add(-time.Hour))
	_, _ = repo.FailGeneration(dbc, failed.ID, c.GenerationAttempt, "boom")

	rows, err := repo.ListForRegeneration(dbc, RegenerationFilter{MaterialID: &m.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != failed.ID {
		t.Fatalf("list: want only failed row, got=%d rows", len(rows))
	}
	_ = pending
}

func TestStudentProfileUpsert(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewStudentProfileRepo(db, testutil.Logger(t))

	p := &types.StudentProfile{UserID: uuid.New(), DisplayName: "Ada", LearningStyle: learning.LearningStyleVisual}
	if err := repo.Upsert(dbc, p); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	p2 := &types.StudentProfile{UserID: p.UserID, DisplayName: "Ada L", LearningStyle: learning.LearningStyleAuditory}
	if err := repo.Upsert(dbc, p2); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	got, err := repo.GetByUserID(dbc, p.UserID)
	if err != nil || got == nil {
		t.Fatalf("get: %v", err)
	}
	if got.LearningStyle != learning.LearningStyleAuditory || got.DisplayName != "Ada L" {
		t.Fatalf("upsert did not update: %+v", got)
	}
	missing, err := repo.GetByUserID(dbc, uuid.New())
	if err != nil || missing != nil {
		t.Fatalf("missing: want nil,nil got=%v,%v", missing, err)
	}
}
