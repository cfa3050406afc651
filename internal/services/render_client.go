package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/edaptivai-netizen/edaptiv-learning/internal/domain/generation"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/domain/learning"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/did"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/logger"
)

const (
	DefaultMaxScriptChars = 3000
	DefaultPollInterval   = 2 * time.Second
)

// RenderJobHandle identifies a remote render while it is being polled.
type RenderJobHandle struct {
	ID          string
	SubmittedAt time.Time
}

// AssetLocation is where a finished render can be downloaded from.
type AssetLocation struct {
	URL string
}

type AvatarRenderClient interface {
	Submit(ctx context.Context, script string, subject learning.Subject) (RenderJobHandle, error)
	Poll(ctx context.Context, job RenderJobHandle, timeout time.Duration) (AssetLocation, error)
}

type RenderClientConfig struct {
	MaxScriptChars int
	PollInterval   time.Duration
}

type avatarRenderClient struct {
	log          *logger.Logger
	provider     did.Client
	presets      *AvatarPresets
	maxChars     int
	pollInterval time.Duration
}

func NewAvatarRenderClient(baseLog *logger.Logger, provider did.Client, presets *AvatarPresets, cfg RenderClientConfig) AvatarRenderClient {
	maxChars := cfg.MaxScriptChars
	if maxChars <= 3 {
		maxChars = DefaultMaxScriptChars
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &avatarRenderClient{
		log:          baseLog.With("service", "AvatarRenderClient"),
		provider:     provider,
		presets:      presets,
		maxChars:     maxChars,
		pollInterval: interval,
	}
}

// TruncateScript caps script at max runes. A cut script keeps max-3 runes
// and ends in "...", so the result is exactly max runes long.
func TruncateScript(script string, max int) string {
	if max <= 3 || utf8.RuneCountInString(script) <= max {
		return script
	}
	runes := []rune(script)
	return string(runes[:max-3]) + "..."
}

func (c *avatarRenderClient) Submit(ctx context.Context, script string, subject learning.Subject) (RenderJobHandle, error) {
	ctx, span := tracer.Start(ctx, "videogen.submit")
	defer span.End()

	script = strings.TrimSpace(script)
	if script == "" {
		return RenderJobHandle{}, generation.NewError(generation.CodeProviderRejected, "render.submit", "empty script", nil)
	}
	if n := utf8.RuneCountInString(script); n > c.maxChars {
		c.log.Info("Truncating render script", "chars", n, "max_chars", c.maxChars)
		script = TruncateScript(script, c.maxChars)
	}

	preset := c.presets.For(subject)
	span.SetAttributes(
		attribute.String("render.subject", string(subject)),
		attribute.Int("render.script_chars", utf8.RuneCountInString(script)),
	)

	talk, err := c.provider.CreateTalk(ctx, did.CreateTalkRequest{
		SourceURL:     preset.SourceURL,
		Script:        script,
		VoiceProvider: preset.VoiceProvider,
		VoiceID:       preset.VoiceID,
		Stitch:        true,
		Fluent:        true,
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, context.DeadlineExceeded) {
			return RenderJobHandle{}, generation.NewError(generation.CodeTimeout, "render.submit", "deadline reached while submitting render", err)
		}
		return RenderJobHandle{}, generation.NewError(generation.CodeProviderRejected, "render.submit", providerDetail(err), err)
	}

	span.SetAttributes(attribute.String("render.job_id", talk.ID))
	c.log.Info("Render job submitted", "job_id", talk.ID, "status", talk.Status, "subject", subject)
	return RenderJobHandle{ID: talk.ID, SubmittedAt: time.Now().UTC()}, nil
}

func (c *avatarRenderClient) Poll(ctx context.Context, job RenderJobHandle, timeout time.Duration) (AssetLocation, error) {
	ctx, span := tracer.Start(ctx, "videogen.poll")
	defer span.End()
	span.SetAttributes(attribute.String("render.job_id", job.ID))

	if strings.TrimSpace(job.ID) == "" {
		return AssetLocation{}, generation.NewError(generation.CodeProviderRejected, "render.poll", "missing render job id", nil)
	}
	pollCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	polls := 0
	for {
		polls++
		talk, err := c.provider.GetTalk(pollCtx, job.ID)
		if err != nil {
			if pollCtx.Err() != nil {
				break
			}
			c.log.Warn("Render poll failed; continuing", "job_id", job.ID, "poll", polls, "error", err)
		} else {
			switch strings.ToLower(strings.TrimSpace(talk.Status)) {
			case did.StatusDone, "completed":
				if u := talk.AssetURL(); u != "" {
					span.SetAttributes(attribute.Int("render.polls", polls))
					c.log.Info("Render job finished", "job_id", job.ID, "polls", polls)
					return AssetLocation{URL: u}, nil
				}
			case did.StatusError, did.StatusRejected:
				msg := talk.Error.String()
				if msg == "" {
					msg = "render job " + job.ID + " ended with status " + talk.Status
				}
				return AssetLocation{}, generation.NewError(generation.CodeProviderRejected, "render.poll", msg, nil)
			}
		}

		select {
		case <-pollCtx.Done():
		case <-time.After(c.pollInterval):
			continue
		}
		break
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return AssetLocation{}, generation.NewError(generation.CodeInternal, "render.poll", "polling cancelled", ctx.Err())
	}
	msg := fmt.Sprintf("render job %s did not finish in time", job.ID)
	span.SetAttributes(attribute.Int("render.polls", polls))
	return AssetLocation{}, generation.NewError(generation.CodeTimeout, "render.poll", msg, pollCtx.Err())
}

func providerDetail(err error) string {
	var httpErr *did.HTTPError
	if errors.As(err, &httpErr) {
		body := strings.TrimSpace(httpErr.Body)
		if len(body) > 500 {
			body = body[:500]
		}
		if body == "" {
			return fmt.Sprintf("provider returned HTTP %d", httpErr.StatusCode)
		}
		return fmt.Sprintf("provider returned HTTP %d: %s", httpErr.StatusCode, body)
	}
	return err.Error()
}
