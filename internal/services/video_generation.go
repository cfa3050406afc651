package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/edaptivai-netizen/edaptiv-learning/internal/data/repos"
	types "github.com/edaptivai-netizen/edaptiv-learning/internal/domain"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/domain/generation"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/observability"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/dbctx"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/gcp"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/logger"
)

var tracer = otel.Tracer("github.com/edaptivai-netizen/edaptiv-learning/internal/services")

const (
	DefaultPipelineTimeout = 240 * time.Second
	DefaultRenderTimeout   = 200 * time.Second
	DefaultSignedURLTTL    = time.Hour
)

// GenerationJob is one claimed generation cycle.
type GenerationJob struct {
	AdaptedContentID uuid.UUID `json:"adapted_content_id"`
	Attempt          int       `json:"attempt"`
}

// Dispatcher hands a claimed job to whatever runs the pipeline. Dispatch must
// not block on the pipeline itself.
type Dispatcher interface {
	Dispatch(ctx context.Context, job GenerationJob) error
}

type PipelineConfig struct {
	PipelineTimeout time.Duration
	RenderTimeout   time.Duration
	// StaleAfter is how long a generating claim is honoured before another
	// trigger may take it over.
	StaleAfter   time.Duration
	SignedURLTTL time.Duration
}

// Resolved fills every unset field with the value the pipeline runs with.
func (c PipelineConfig) Resolved() PipelineConfig { return c.withDefaults() }

func (c PipelineConfig) withDefaults() PipelineConfig {
	if c.PipelineTimeout <= 0 {
		c.PipelineTimeout = DefaultPipelineTimeout
	}
	if c.RenderTimeout <= 0 || c.RenderTimeout > c.PipelineTimeout {
		c.RenderTimeout = DefaultRenderTimeout
		if c.RenderTimeout > c.PipelineTimeout {
			c.RenderTimeout = c.PipelineTimeout
		}
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 2 * c.PipelineTimeout
	}
	if c.SignedURLTTL <= 0 {
		c.SignedURLTTL = DefaultSignedURLTTL
	}
	return c
}

type VideoStatusView struct {
	AdaptedContentID uuid.UUID         `json:"adapted_content_id"`
	MaterialID       uuid.UUID         `json:"material_id"`
	Status           types.VideoStatus `json:"status"`
	Error            string            `json:"error,omitempty"`
	Attempt          int               `json:"attempt"`
	GeneratedAt      *time.Time        `json:"generated_at,omitempty"`
	VideoURL         string            `json:"video_url,omitempty"`
	ExpiresAt        *time.Time        `json:"expires_at,omitempty"`
	ExpiresIn        int               `json:"expires_in,omitempty"`
}

type TriggerResult struct {
	Status types.VideoStatus `json:"status"`
	Cached bool              `json:"cached"`
	Video  *VideoStatusView  `json:"video"`
}

type VideoGenerationService interface {
	Trigger(ctx context.Context, userID, materialID uuid.UUID) (*TriggerResult, error)
	Status(ctx context.Context, userID, materialID uuid.UUID) (*VideoStatusView, error)
	// Run executes one claimed cycle under the pipeline deadline. Failures are
	// recorded on the row before Run returns them.
	Run(ctx context.Context, adaptedContentID uuid.UUID, attempt int) error
	// Fail records a failure for a cycle that could not report one itself.
	Fail(ctx context.Context, adaptedContentID uuid.UUID, attempt int, reason string) error
	SetDispatcher(d Dispatcher)
}

type VideoGenerationDeps struct {
	Log        *logger.Logger
	Repos      repos.Repos
	Adaptation AdaptationService
	Cache      VideoCache
	Render     AvatarRenderClient
	Streamer   AssetStreamer
	Bucket     gcp.BucketService
	Notifier   VideoStatusNotifier
	Dispatcher Dispatcher
	Config     PipelineConfig
}

type videoGenerationService struct {
	log        *logger.Logger
	repos      repos.Repos
	adaptation AdaptationService
	cache      VideoCache
	render     AvatarRenderClient
	streamer   AssetStreamer
	bucket     gcp.BucketService
	notifier   VideoStatusNotifier
	cfg        PipelineConfig

	mu         sync.RWMutex
	dispatcher Dispatcher

	now func() time.Time
}

func NewVideoGenerationService(deps VideoGenerationDeps) VideoGenerationService {
	return &videoGenerationService{
		log:        deps.Log.With("service", "VideoGenerationService"),
		repos:      deps.Repos,
		adaptation: deps.Adaptation,
		cache:      deps.Cache,
		render:     deps.Render,
		streamer:   deps.Streamer,
		bucket:     deps.Bucket,
		notifier:   deps.Notifier,
		dispatcher: deps.Dispatcher,
		cfg:        deps.Config.withDefaults(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *videoGenerationService) SetDispatcher(d Dispatcher) {
	s.mu.Lock()
	s.dispatcher = d
	s.mu.Unlock()
}

func (s *videoGenerationService) currentDispatcher() Dispatcher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dispatcher
}

// VideoKey is where one attempt's render is stored. Attempts never share a
// key, so a late writer cannot clobber a newer video.
func VideoKey(materialID, adaptedContentID uuid.UUID, attempt int) string {
	return fmt.Sprintf("videos/%s/%s/%d-%s.mp4", materialID, adaptedContentID, attempt, uuid.New())
}

// =====================================
// Trigger / Status
// =====================================

func (s *videoGenerationService) Trigger(ctx context.Context, userID, materialID uuid.UUID) (*TriggerResult, error) {
	am, err := s.adaptation.EnsureAdapted(ctx, userID, materialID)
	if err != nil {
		return nil, err
	}
	ac := am.Content
	dbc := dbctx.New(ctx)

	if ac.HasVideo() {
		view, err := s.view(ctx, ac)
		if err != nil {
			return nil, err
		}
		return &TriggerResult{Status: ac.VideoStatus, Video: view}, nil
	}
	if ac.VideoStatus == types.VideoStatusGenerating && !s.isStale(ac) {
		return s.resultFor(ctx, ac, false)
	}

	if ac.VideoStatus != types.VideoStatusGenerating {
		challenges, err := ac.ChallengeSet()
		if err != nil {
			return nil, generation.NewError(generation.CodeInvalidArgument, "video.trigger", err.Error(), err)
		}
		hit, err := s.cache.FindReusable(ctx, ac.MaterialID, ac.LearningStyle, challenges)
		if err != nil {
			return nil, generation.Wrap(generation.CodeInternal, "video.trigger.cache", err)
		}
		if hit != nil && hit.SourceID != ac.ID {
			adopted, err := s.repos.AdaptedContents.AdoptCachedVideo(dbc, ac.ID, hit.VideoKey)
			if err != nil {
				return nil, generation.Wrap(generation.CodeInternal, "video.trigger.adopt", err)
			}
			if adopted {
				observability.Current().IncCacheHit("trigger")
				s.log.Info("Reused cached video",
					"adapted_content_id", ac.ID,
					"source_adapted_content_id", hit.SourceID,
					"material_id", ac.MaterialID,
				)
				s.notify(ctx, ac.ID, types.VideoStatusCompleted, "")
				return s.reloadResult(ctx, ac.ID, true)
			}
			return s.reloadResult(ctx, ac.ID, false)
		}
	}

	claimed, err := s.repos.AdaptedContents.ClaimForGeneration(dbc, ac.ID, s.now().Add(-s.cfg.StaleAfter))
	if err != nil {
		return nil, generation.Wrap(generation.CodeInternal, "video.trigger.claim", err)
	}
	if claimed == nil {
		// someone else claimed or finished it first
		return s.reloadResult(ctx, ac.ID, false)
	}

	job := GenerationJob{AdaptedContentID: claimed.ID, Attempt: claimed.GenerationAttempt}
	d := s.currentDispatcher()
	if d == nil {
		_ = s.Fail(ctx, job.AdaptedContentID, job.Attempt, "video generation is not available")
		return nil, generation.NewError(generation.CodeInternal, "video.trigger", "no dispatcher configured", nil)
	}
	if err := d.Dispatch(ctx, job); err != nil {
		observability.Current().IncDispatch("error")
		s.log.Error("Dispatch failed", "adapted_content_id", job.AdaptedContentID, "attempt", job.Attempt, "error", err)
		_ = s.Fail(ctx, job.AdaptedContentID, job.Attempt, "could not start video generation")
		return nil, generation.NewError(generation.CodeInternal, "video.trigger", "could not start video generation", err)
	}

	observability.Current().IncDispatch("ok")
	s.log.Info("Video generation dispatched", "adapted_content_id", job.AdaptedContentID, "attempt", job.Attempt)
	s.notify(ctx, claimed.ID, types.VideoStatusGenerating, "")
	return s.resultFor(ctx, claimed, false)
}

func (s *videoGenerationService) Status(ctx context.Context, userID, materialID uuid.UUID) (*VideoStatusView, error) {
	ac, err := s.repos.AdaptedContents.GetByStudentAndMaterial(dbctx.New(ctx), userID, materialID)
	if err != nil {
		return nil, generation.Wrap(generation.CodeInternal, "video.status.load", err)
	}
	if ac == nil {
		return nil, generation.NewError(generation.CodeNotFound, "video.status", "no adapted content for this material", nil)
	}
	return s.view(ctx, ac)
}

func (s *videoGenerationService) isStale(ac *types.AdaptedContent) bool {
	if ac.GenerationStartedAt == nil {
		return false
	}
	return ac.GenerationStartedAt.Before(s.now().Add(-s.cfg.StaleAfter))
}

func (s *videoGenerationService) reloadResult(ctx context.Context, id uuid.UUID, cached bool) (*TriggerResult, error) {
	ac, err := s.repos.AdaptedContents.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return nil, generation.Wrap(generation.CodeInternal, "video.trigger.reload", err)
	}
	if ac == nil {
		return nil, generation.NewError(generation.CodeNotFound, "video.trigger", "adapted content disappeared", nil)
	}
	return s.resultFor(ctx, ac, cached)
}

func (s *videoGenerationService) resultFor(ctx context.Context, ac *types.AdaptedContent, cached bool) (*TriggerResult, error) {
	view, err := s.view(ctx, ac)
	if err != nil {
		return nil, err
	}
	return &TriggerResult{Status: ac.VideoStatus, Cached: cached, Video: view}, nil
}

// view signs a fresh URL on every call for completed rows.
func (s *videoGenerationService) view(ctx context.Context, ac *types.AdaptedContent) (*VideoStatusView, error) {
	v := &VideoStatusView{
		AdaptedContentID: ac.ID,
		MaterialID:       ac.MaterialID,
		Status:           ac.VideoStatus,
		Attempt:          ac.GenerationAttempt,
		GeneratedAt:      ac.VideoGeneratedAt,
	}
	if ac.VideoError != nil {
		v.Error = *ac.VideoError
	}
	if !ac.HasVideo() {
		return v, nil
	}
	url, expiresAt, err := s.bucket.SignedURL(ctx, gcp.BucketCategoryVideo, *ac.VideoKey, s.cfg.SignedURLTTL)
	if err != nil {
		return nil, generation.Wrap(generation.CodeInternal, "video.sign", err)
	}
	v.VideoURL = url
	v.ExpiresAt = &expiresAt
	v.ExpiresIn = int(expiresAt.Sub(s.now()).Seconds())
	if v.ExpiresIn < 1 {
		v.ExpiresIn = 1
	}
	return v, nil
}

// =====================================
// Pipeline
// =====================================

func (s *videoGenerationService) Run(ctx context.Context, adaptedContentID uuid.UUID, attempt int) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PipelineTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "videogen.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("adapted_content.id", adaptedContentID.String()),
		attribute.Int("generation.attempt", attempt),
	)

	started := time.Now()
	err := s.run(ctx, adaptedContentID, attempt)
	if err == nil {
		observability.Current().ObserveGeneration(string(types.VideoStatusCompleted), "", time.Since(started))
		s.log.Info("Video generation finished",
			"adapted_content_id", adaptedContentID,
			"attempt", attempt,
			"duration", time.Since(started).String(),
		)
		return nil
	}

	err = s.classify(ctx, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(generation.CodeOf(err)))
	observability.Current().ObserveGeneration(string(types.VideoStatusFailed), string(generation.CodeOf(err)), time.Since(started))
	s.log.Error("Video generation failed",
		"adapted_content_id", adaptedContentID,
		"attempt", attempt,
		"code", generation.CodeOf(err),
		"duration", time.Since(started).String(),
		"error", err,
	)
	if ferr := s.Fail(ctx, adaptedContentID, attempt, generation.UserMessage(err)); ferr != nil {
		s.log.Error("Recording generation failure failed", "adapted_content_id", adaptedContentID, "error", ferr)
	}
	return err
}

// classify turns an internal or uncoded error that hit the pipeline deadline
// into a timeout; provider and stream codes are kept.
func (s *videoGenerationService) classify(ctx context.Context, err error) error {
	code := generation.CodeOf(err)
	if code != "" && code != generation.CodeInternal {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return generation.NewError(generation.CodeTimeout, "video.run",
			fmt.Sprintf("exceeded %s", s.cfg.PipelineTimeout), err)
	}
	return generation.Wrap(generation.CodeInternal, "video.run", err)
}

func (s *videoGenerationService) run(ctx context.Context, id uuid.UUID, attempt int) error {
	dbc := dbctx.New(ctx)
	ac, err := s.repos.AdaptedContents.GetByID(dbc, id)
	if err != nil {
		return generation.Wrap(generation.CodeInternal, "video.run.load", err)
	}
	if ac == nil {
		return generation.NewError(generation.CodeNotFound, "video.run", "adapted content not found", nil)
	}
	if ac.VideoStatus != types.VideoStatusGenerating || ac.GenerationAttempt != attempt {
		s.log.Warn("Skipping superseded generation",
			"adapted_content_id", id,
			"attempt", attempt,
			"current_attempt", ac.GenerationAttempt,
			"status", ac.VideoStatus,
		)
		return nil
	}
	material, err := s.repos.Materials.GetByID(dbc, ac.MaterialID)
	if err != nil {
		return generation.Wrap(generation.CodeInternal, "video.run.material", err)
	}
	if material == nil {
		return generation.NewError(generation.CodeNotFound, "video.run", "material not found", nil)
	}

	// another student may have finished an identical render meanwhile
	challenges, err := ac.ChallengeSet()
	if err != nil {
		return generation.NewError(generation.CodeInvalidArgument, "video.run", err.Error(), err)
	}
	hit, err := s.cache.FindReusable(ctx, ac.MaterialID, ac.LearningStyle, challenges)
	if err != nil {
		return generation.Wrap(generation.CodeInternal, "video.run.cache", err)
	}
	if hit != nil && hit.SourceID != ac.ID {
		observability.Current().IncCacheHit("queue")
		return s.complete(ctx, ac.ID, attempt, hit.VideoKey, false)
	}

	job, err := s.render.Submit(ctx, ac.AdaptedText, material.Subject)
	if err != nil {
		return err
	}
	if _, err := s.repos.AdaptedContents.SetRenderJob(dbc, ac.ID, attempt, job.ID); err != nil {
		s.log.Warn("Recording render job id failed", "adapted_content_id", ac.ID, "job_id", job.ID, "error", err)
	}

	loc, err := s.render.Poll(ctx, job, s.cfg.RenderTimeout)
	if err != nil {
		return err
	}

	key := VideoKey(material.ID, ac.ID, attempt)
	if err := s.streamer.StreamToStorage(ctx, loc.URL, key); err != nil {
		return err
	}
	return s.complete(ctx, ac.ID, attempt, key, true)
}

// complete records the key. ownsObject means the object was written by this
// attempt and must be removed if the attempt has been superseded.
func (s *videoGenerationService) complete(ctx context.Context, id uuid.UUID, attempt int, key string, ownsObject bool) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	ok, err := s.repos.AdaptedContents.CompleteGeneration(dbctx.New(writeCtx), id, attempt, key)
	if err != nil {
		return generation.Wrap(generation.CodeInternal, "video.run.complete", err)
	}
	if !ok {
		s.log.Warn("Generation superseded before completion", "adapted_content_id", id, "attempt", attempt)
		if ownsObject {
			if derr := s.bucket.DeleteFile(writeCtx, gcp.BucketCategoryVideo, key); derr != nil {
				s.log.Warn("Deleting superseded video failed", "key", key, "error", derr)
			}
		}
		return nil
	}
	s.notify(writeCtx, id, types.VideoStatusCompleted, "")
	return nil
}

func (s *videoGenerationService) Fail(ctx context.Context, adaptedContentID uuid.UUID, attempt int, reason string) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	ok, err := s.repos.AdaptedContents.FailGeneration(dbctx.New(writeCtx), adaptedContentID, attempt, reason)
	if err != nil {
		return err
	}
	if ok {
		s.notify(writeCtx, adaptedContentID, types.VideoStatusFailed, reason)
	}
	return nil
}

func (s *videoGenerationService) notify(ctx context.Context, id uuid.UUID, status types.VideoStatus, errMsg string) {
	if s.notifier == nil {
		return
	}
	s.notifier.VideoStatusChanged(ctx, id, status, errMsg)
}
