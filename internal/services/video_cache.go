package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/edaptivai-netizen/edaptiv-learning/internal/data/repos"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/domain/learning"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/dbctx"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/gcp"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/logger"
)

// CachedVideo is a finished render that another student's row may share.
type CachedVideo struct {
	SourceID uuid.UUID
	VideoKey string
}

type VideoCache interface {
	// FindReusable matches material, learning style and challenge set exactly.
	// It returns nil when nothing qualifies.
	FindReusable(ctx context.Context, materialID uuid.UUID, style learning.LearningStyle, challenges learning.ChallengeSet) (*CachedVideo, error)
}

type videoCache struct {
	log    *logger.Logger
	repo   repos.AdaptedContentRepo
	bucket gcp.BucketService
}

// NewVideoCache checks hits against the bucket when bucket is non-nil, so a
// row whose object was removed is not handed out again.
func NewVideoCache(baseLog *logger.Logger, repo repos.AdaptedContentRepo, bucket gcp.BucketService) VideoCache {
	return &videoCache{
		log:    baseLog.With("service", "VideoCache"),
		repo:   repo,
		bucket: bucket,
	}
}

func (c *videoCache) FindReusable(ctx context.Context, materialID uuid.UUID, style learning.LearningStyle, challenges learning.ChallengeSet) (*CachedVideo, error) {
	row, err := c.repo.FindReusable(dbctx.New(ctx), materialID, style, challenges.Key())
	if err != nil {
		return nil, err
	}
	if row == nil || row.VideoKey == nil {
		return nil, nil
	}
	if c.bucket != nil {
		ok, err := c.bucket.Exists(ctx, gcp.BucketCategoryVideo, *row.VideoKey)
		if err != nil {
			return nil, err
		}
		if !ok {
			c.log.Warn("Cached video object missing; ignoring hit", "adapted_content_id", row.ID, "key", *row.VideoKey)
			return nil, nil
		}
	}
	return &CachedVideo{SourceID: row.ID, VideoKey: *row.VideoKey}, nil
}
