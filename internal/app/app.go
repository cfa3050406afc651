package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/edaptivai-netizen/edaptiv-learning/internal/clients/redis"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/data/db"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/data/repos"
	apphttp "github.com/edaptivai-netizen/edaptiv-learning/internal/http"
	httpH "github.com/edaptivai-netizen/edaptiv-learning/internal/http/handlers"
	httpMW "github.com/edaptivai-netizen/edaptiv-learning/internal/http/middleware"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/jobs/worker"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/observability"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/did"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/gcp"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/logger"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/openai"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/services"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/sse"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/temporalx"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/temporalx/temporalworker"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/temporalx/videogen"
)

// Services are the long-lived components shared by the API process and the
// maintenance commands.
type Services struct {
	Repos      repos.Repos
	Bucket     gcp.BucketService
	Adaptation services.AdaptationService
	Videos     services.VideoGenerationService
}

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Metrics  *observability.Metrics
	Services Services

	server   *apphttp.Server
	hub      *sse.SSEHub
	pg       *db.PostgresService
	bus      redis.SSEBus
	temporal temporalsdkclient.Client
	tworker  *temporalworker.Runner
	lworker  *worker.Worker

	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
	closeOnce    sync.Once
}

// New builds every component. Nothing is started until Start.
func New(ctx context.Context, cfg Config) (*App, error) {
	log, err := logger.NewWithOptions(logger.Options{
		Mode:     cfg.Log.Mode,
		Level:    cfg.Log.Level,
		Redact:   cfg.Log.Redact,
		HashSalt: cfg.Log.HashSalt,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &App{Log: log, Cfg: cfg}
	a.otelShutdown = observability.InitOTel(ctx, log, cfg.Otel)
	a.Metrics = observability.Init(cfg.MetricsEnabled)

	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, log := a.Cfg, a.Log

	pg, err := db.NewPostgresService(log, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	a.pg = pg
	if err := pg.AutoMigrateAll(); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	bucket, err := gcp.NewBucketService(log, cfg.Storage)
	if err != nil {
		return fmt.Errorf("init bucket service: %w", err)
	}

	didClient, err := did.NewClient(log, did.Config{
		APIKey:     cfg.DID.APIKey,
		BaseURL:    cfg.DID.BaseURL,
		Timeout:    cfg.DID.Timeout,
		MaxRetries: cfg.DID.MaxRetries,
	})
	if err != nil {
		return fmt.Errorf("init render provider: %w", err)
	}

	var llm openai.Client
	if cfg.Script.APIKey != "" {
		llm, err = openai.NewClient(log, openai.Config{
			APIKey:     cfg.Script.APIKey,
			BaseURL:    cfg.Script.BaseURL,
			Model:      cfg.Script.Model,
			MaxRetries: cfg.Script.MaxRetries,
		})
		if err != nil {
			return fmt.Errorf("init script model: %w", err)
		}
	} else {
		log.Warn("No script model configured; every video uses the templated script")
	}

	presets, err := services.LoadAvatarPresets(cfg.DID.PresetsPath, services.AvatarPreset{
		SourceURL:     cfg.DID.AvatarURL,
		VoiceProvider: cfg.DID.VoiceProvider,
		VoiceID:       cfg.DID.VoiceID,
	})
	if err != nil {
		return fmt.Errorf("load avatar presets: %w", err)
	}

	r := repos.New(pg.DB(), log)
	a.hub = sse.NewSSEHub(log)

	var pub services.SSEPublisher
	if cfg.Redis.Addr != "" {
		bus, err := redis.NewSSEBus(ctx, log, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		})
		if err != nil {
			return fmt.Errorf("init redis bus: %w", err)
		}
		a.bus = bus
		pub = bus
	}

	adaptation := services.NewAdaptationService(log, r, services.NewScriptProvider(log, llm), bucket)
	videos := services.NewVideoGenerationService(services.VideoGenerationDeps{
		Log:        log,
		Repos:      r,
		Adaptation: adaptation,
		Cache:      services.NewVideoCache(log, r.AdaptedContents, bucket),
		Render: services.NewAvatarRenderClient(log, didClient, presets, services.RenderClientConfig{
			MaxScriptChars: cfg.Pipeline.MaxScriptChars,
			PollInterval:   cfg.Pipeline.PollInterval,
		}),
		Streamer: services.NewAssetStreamer(log, bucket, nil),
		Bucket:   bucket,
		Notifier: services.NewVideoStatusNotifier(log, a.hub, pub),
		Config:   cfg.Pipeline.Services(),
	})
	a.Services = Services{Repos: r, Bucket: bucket, Adaptation: adaptation, Videos: videos}

	if err := a.wireDispatcher(ctx); err != nil {
		return err
	}

	checks := map[string]httpH.Pinger{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := pg.DB().DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if a.bus != nil {
		checks["redis"] = a.bus.Ping
	}

	a.server = apphttp.NewServer(apphttp.RouterConfig{
		Log:             log,
		ServiceName:     cfg.ServiceName,
		CORSOrigins:     cfg.CORSOrigins,
		Metrics:         a.Metrics,
		AuthMiddleware:  httpMW.NewAuthMiddleware(log, []byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer),
		HealthHandler:   httpH.NewHealthHandler(checks),
		MaterialHandler: httpH.NewMaterialHandler(adaptation),
		VideoHandler:    httpH.NewVideoHandler(log, videos, a.hub),
	})
	return nil
}

// wireDispatcher prefers Temporal when an address is configured and falls
// back to the in-process pool otherwise.
func (a *App) wireDispatcher(ctx context.Context) error {
	cfg, log := a.Cfg, a.Log
	videos := a.Services.Videos

	if cfg.Temporal.Enabled() {
		tc, err := temporalx.NewClient(ctx, log, cfg.Temporal)
		if err != nil {
			return fmt.Errorf("init temporal client: %w", err)
		}
		a.temporal = tc
		tcfg := cfg.Temporal.Normalized()
		runner, err := temporalworker.NewRunner(log, tc, tcfg, videos, cfg.Worker.Concurrency)
		if err != nil {
			return fmt.Errorf("init temporal worker: %w", err)
		}
		a.tworker = runner
		videos.SetDispatcher(videogen.NewDispatcher(log, tc, tcfg.TaskQueue, cfg.Pipeline.PipelineTimeout))
		log.Info("Video generation dispatched through Temporal", "task_queue", tcfg.TaskQueue)
		return nil
	}

	a.lworker = worker.NewWorker(log, videos, worker.Config{
		Concurrency: cfg.Worker.Concurrency,
		QueueSize:   cfg.Worker.QueueSize,
	})
	videos.SetDispatcher(a.lworker)
	log.Info("Video generation dispatched in-process", "concurrency", cfg.Worker.Concurrency)
	return nil
}

// Start launches the background components: the generation worker, the
// cross-instance status forwarder and the metrics listener.
func (a *App) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.bus != nil {
		if err := a.bus.StartForwarder(ctx, a.hub.Broadcast); err != nil {
			return fmt.Errorf("start redis forwarder: %w", err)
		}
	}
	if a.tworker != nil {
		if err := a.tworker.Start(ctx); err != nil {
			return fmt.Errorf("start temporal worker: %w", err)
		}
	}
	if a.lworker != nil {
		a.lworker.Start(ctx)
	}
	if a.Cfg.MetricsEnabled {
		a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
	}
	return nil
}

// Run starts the background components and serves HTTP until ctx ends.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	return a.server.Run(ctx, a.Cfg.HTTPAddr)
}

// Close stops workers first so queued cycles are failed while the database
// is still reachable. It is safe to call more than once.
func (a *App) Close() {
	if a == nil {
		return
	}
	a.closeOnce.Do(a.close)
}

func (a *App) close() {
	if a.cancel != nil {
		a.cancel()
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.lworker != nil {
		a.lworker.Stop(stopCtx)
	}
	if a.temporal != nil {
		a.temporal.Close()
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.Log.Warn("Closing redis bus failed", "error", err)
		}
	}
	if a.pg != nil {
		if err := a.pg.Close(); err != nil {
			a.Log.Warn("Closing postgres failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(stopCtx); err != nil {
			a.Log.Warn("OpenTelemetry shutdown failed", "error", err)
		}
	}
	a.Log.Sync()
}
