package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/edaptivai-netizen/edaptiv-learning/internal/app"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/data/repos"
	types "github.com/edaptivai-netizen/edaptiv-learning/internal/domain"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/dbctx"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/gcp"
)

func main() {
	var (
		dryRun   bool
		limit    int
		parallel int
		material string
	)
	flag.BoolVar(&dryRun, "dry-run", false, "print the rows that would be regenerated")
	flag.IntVar(&limit, "limit", 0, "limit number of rows inspected")
	flag.IntVar(&parallel, "parallel", 2, "pipelines run at once")
	flag.StringVar(&material, "material", "", "only rows for this study material id")
	flag.Parse()

	var materialID *uuid.UUID
	if s := strings.TrimSpace(material); s != "" {
		id, err := uuid.Parse(s)
		if err != nil || id == uuid.Nil {
			fmt.Printf("invalid --material %q\n", s)
			os.Exit(2)
		}
		materialID = &id
	}
	if parallel < 1 {
		parallel = 1
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Printf("load config: %v\n", err)
		os.Exit(1)
	}
	// runs pipelines inline; no dispatcher needed
	cfg.Temporal.Address = ""

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	svc := application.Services
	staleBefore := cfg.Pipeline.StaleBefore(time.Now())
	rows, err := svc.Repos.AdaptedContents.ListForRegeneration(dbctx.New(ctx), repos.RegenerationFilter{
		MaterialID:  materialID,
		StaleBefore: staleBefore,
		Limit:       limit,
	})
	if err != nil {
		fmt.Printf("list adapted content: %v\n", err)
		os.Exit(1)
	}

	var done, failed, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, row := range rows {
		row := row
		if row == nil || row.ID == uuid.Nil {
			continue
		}
		ok, reason, err := needsRegeneration(gctx, svc.Bucket, row)
		if err != nil {
			fmt.Printf("check %s: %v\n", row.ID, err)
			failed.Add(1)
			continue
		}
		if !ok {
			skipped.Add(1)
			continue
		}
		if dryRun {
			fmt.Printf("[dry-run] regenerate adapted_content_id=%s material_id=%s (%s)\n", row.ID, row.MaterialID, reason)
			continue
		}
		g.Go(func() error {
			if err := regenerate(gctx, svc, row, staleBefore); err != nil {
				fmt.Printf("regenerate %s: %v\n", row.ID, err)
				failed.Add(1)
				return nil
			}
			fmt.Printf("regenerated adapted_content_id=%s\n", row.ID)
			done.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	fmt.Printf("done; regenerated=%d failed=%d skipped=%d\n", done.Load(), failed.Load(), skipped.Load())
	if failed.Load() > 0 {
		application.Close()
		os.Exit(1)
	}
}

// needsRegeneration keeps failed and stale rows, and completed rows whose
// object has gone missing from the bucket.
func needsRegeneration(ctx context.Context, bucket gcp.BucketService, row *types.AdaptedContent) (bool, string, error) {
	switch row.VideoStatus {
	case types.VideoStatusFailed:
		return true, "failed", nil
	case types.VideoStatusGenerating:
		return true, "stale claim", nil
	case types.VideoStatusCompleted:
		if row.VideoKey == nil || *row.VideoKey == "" {
			return true, "completed without key", nil
		}
		exists, err := bucket.Exists(ctx, gcp.BucketCategoryVideo, *row.VideoKey)
		if err != nil {
			return false, "", err
		}
		if !exists {
			return true, "object missing", nil
		}
	}
	return false, "", nil
}

func regenerate(ctx context.Context, svc app.Services, row *types.AdaptedContent, staleBefore time.Time) error {
	dbc := dbctx.New(ctx)
	ac := svc.Repos.AdaptedContents
	if row.VideoStatus == types.VideoStatusCompleted {
		if _, err := ac.ResetToPending(dbc, row.ID, types.VideoStatusCompleted); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	claimed, err := ac.ClaimForGeneration(dbc, row.ID, staleBefore)
	if err != nil {
		return fmt.Errorf("claim: %w", err)
	}
	if claimed == nil {
		return fmt.Errorf("row is held by another generation")
	}
	return svc.Videos.Run(ctx, claimed.ID, claimed.GenerationAttempt)
}
