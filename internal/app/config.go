package app

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/edaptivai-netizen/edaptiv-learning/internal/data/db"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/observability"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/envutil"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/gcp"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/services"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/temporalx"
)

// Config is the whole process configuration. It is read from the
// environment once; no component reads env vars after this.
type Config struct {
	Environment string   `validate:"oneof=development staging production test"`
	HTTPAddr    string   `validate:"required"`
	ServiceName string   `validate:"required"`
	CORSOrigins []string `validate:"dive,url"`

	Log      LogConfig
	Postgres db.PostgresConfig
	Storage  gcp.ObjectStorageConfig
	DID      DIDConfig
	Script   ScriptConfig
	Auth     AuthConfig
	Redis    RedisConfig
	Temporal temporalx.Config
	Pipeline PipelineConfig
	Worker   WorkerConfig
	Otel     observability.OtelConfig

	MetricsEnabled bool
	MetricsAddr    string
}

type LogConfig struct {
	Mode     string
	Level    string
	Redact   bool
	HashSalt string
}

type DIDConfig struct {
	APIKey        string `validate:"required"`
	BaseURL       string `validate:"omitempty,url"`
	AvatarURL     string `validate:"omitempty,url"`
	VoiceProvider string
	VoiceID       string
	PresetsPath   string `validate:"omitempty,file"`
	Timeout       time.Duration
	MaxRetries    int `validate:"min=0,max=5"`
}

// ScriptConfig points at an OpenAI-compatible chat endpoint. Without a key
// every script uses the templated fallback.
type ScriptConfig struct {
	APIKey     string
	BaseURL    string `validate:"omitempty,url"`
	Model      string
	MaxRetries int `validate:"min=0,max=5"`
}

type AuthConfig struct {
	JWTSecret string `validate:"required,min=16"`
	Issuer    string
}

type RedisConfig struct {
	Addr     string `validate:"omitempty,hostname_port"`
	Password string
	DB       int `validate:"min=0,max=15"`
	Channel  string
}

type PipelineConfig struct {
	PipelineTimeout time.Duration `validate:"required,gtfield=RenderTimeout"`
	RenderTimeout   time.Duration `validate:"required"`
	PollInterval    time.Duration `validate:"required"`
	MaxScriptChars  int           `validate:"min=100,max=10000"`
	SignedURLTTL    time.Duration `validate:"required"`
	StaleAfter      time.Duration
}

// Services is the subset the generation service runs with.
func (c PipelineConfig) Services() services.PipelineConfig {
	return services.PipelineConfig{
		PipelineTimeout: c.PipelineTimeout,
		RenderTimeout:   c.RenderTimeout,
		StaleAfter:      c.StaleAfter,
		SignedURLTTL:    c.SignedURLTTL,
	}
}

// StaleBefore is the claim cutoff: generating rows started before it may be
// taken over.
func (c PipelineConfig) StaleBefore(now time.Time) time.Time {
	return now.Add(-c.Services().Resolved().StaleAfter)
}

type WorkerConfig struct {
	Concurrency int `validate:"min=1,max=64"`
	QueueSize   int `validate:"min=1"`
}

// LoadConfig reads an optional .env (or ENV_FILE) first, then the process
// environment, then validates the result.
func LoadConfig() (Config, error) {
	if err := loadDotEnv(envutil.String("ENV_FILE", ".env")); err != nil {
		return Config{}, err
	}
	cfg, err := configFromEnv()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func configFromEnv() (Config, error) {
	emulatorHost := envutil.String("STORAGE_EMULATOR_HOST", "")
	mode, fallback, err := gcp.ResolveObjectStorageMode(envutil.String("OBJECT_STORAGE_MODE", ""), emulatorHost)
	if err != nil {
		return Config{}, err
	}
	env := strings.ToLower(envutil.String("APP_ENV", "development"))

	cfg := Config{
		Environment: env,
		HTTPAddr:    envutil.String("HTTP_ADDR", ":"+envutil.String("PORT", "8080")),
		ServiceName: envutil.String("SERVICE_NAME", "edaptiv-learning"),
		CORSOrigins: envutil.CSV("CORS_ALLOWED_ORIGINS", nil),

		Log: LogConfig{
			Mode:     envutil.String("LOG_MODE", env),
			Level:    envutil.String("LOG_LEVEL", ""),
			Redact:   envutil.Bool("LOG_REDACTION_ENABLED", true),
			HashSalt: envutil.String("LOG_HASH_SALT", ""),
		},
		Postgres: db.PostgresConfig{
			Host:            envutil.String("POSTGRES_HOST", "localhost"),
			Port:            envutil.Int("POSTGRES_PORT", 5432),
			User:            envutil.String("POSTGRES_USER", "postgres"),
			Password:        envutil.String("POSTGRES_PASSWORD", ""),
			Name:            envutil.String("POSTGRES_NAME", "edaptiv"),
			SSLMode:         envutil.String("POSTGRES_SSLMODE", "disable"),
			MaxOpenConns:    envutil.Int("POSTGRES_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    envutil.Int("POSTGRES_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envutil.Seconds("POSTGRES_CONN_MAX_LIFETIME_SECONDS", 1800),
		},
		Storage: gcp.ObjectStorageConfig{
			Mode:                  mode,
			EmulatorHost:          emulatorHost,
			CompatibilityFallback: fallback,
			VideoBucket:           envutil.String("GCS_VIDEO_BUCKET", ""),
			MaterialBucket:        envutil.String("GCS_MATERIAL_BUCKET", ""),
			PublicBaseURL:         envutil.String("GCS_PUBLIC_BASE_URL", ""),
			SigningAccount:        envutil.String("GCS_SIGNING_ACCOUNT", ""),
			SigningKeyPEM:         envutil.String("GCS_SIGNING_KEY_PEM", ""),
			CredentialsJSON:       envutil.String("GOOGLE_APPLICATION_CREDENTIALS_JSON", ""),
			CredentialsFile:       envutil.String("GOOGLE_APPLICATION_CREDENTIALS", ""),
		},
		DID: DIDConfig{
			APIKey:        envutil.String("DID_API_KEY", ""),
			BaseURL:       envutil.String("DID_BASE_URL", ""),
			AvatarURL:     envutil.String("DID_AVATAR_URL", ""),
			VoiceProvider: envutil.String("DID_VOICE_PROVIDER", ""),
			VoiceID:       envutil.String("DID_VOICE_ID", ""),
			PresetsPath:   envutil.String("AVATAR_PRESETS_PATH", ""),
			Timeout:       envutil.Seconds("DID_HTTP_TIMEOUT_SECONDS", 30),
			MaxRetries:    envutil.Int("DID_MAX_RETRIES", 2),
		},
		Script: ScriptConfig{
			APIKey:     envutil.String("SCRIPT_LLM_API_KEY", ""),
			BaseURL:    envutil.String("SCRIPT_LLM_BASE_URL", ""),
			Model:      envutil.String("SCRIPT_LLM_MODEL", ""),
			MaxRetries: envutil.Int("SCRIPT_LLM_MAX_RETRIES", 2),
		},
		Auth: AuthConfig{
			JWTSecret: envutil.String("JWT_SECRET_KEY", ""),
			Issuer:    envutil.String("JWT_ISSUER", ""),
		},
		Redis: RedisConfig{
			Addr:     envutil.String("REDIS_ADDR", ""),
			Password: envutil.String("REDIS_PASSWORD", ""),
			DB:       envutil.Int("REDIS_DB", 0),
			Channel:  envutil.String("REDIS_CHANNEL", "video-status"),
		},
		Temporal: temporalx.Config{
			Address:                envutil.String("TEMPORAL_ADDRESS", ""),
			Namespace:              envutil.String("TEMPORAL_NAMESPACE", ""),
			TaskQueue:              envutil.String("TEMPORAL_TASK_QUEUE", ""),
			ClientCertPath:         envutil.String("TEMPORAL_CLIENT_CERT_PATH", ""),
			ClientKeyPath:          envutil.String("TEMPORAL_CLIENT_KEY_PATH", ""),
			ClientCAPath:           envutil.String("TEMPORAL_CLIENT_CA_PATH", ""),
			DialTimeout:            envutil.Seconds("TEMPORAL_DIAL_TIMEOUT_SECONDS", 5),
			DialMaxWait:            envutil.Seconds("TEMPORAL_DIAL_MAX_WAIT_SECONDS", 60),
			Backoff:                envutil.Millis("TEMPORAL_DIAL_BACKOFF_MS", 250),
			BackoffMax:             envutil.Millis("TEMPORAL_DIAL_BACKOFF_MAX_MS", 5000),
			AutoRegisterNamespace:  envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false),
			NamespaceRetentionDays: envutil.Int("TEMPORAL_NAMESPACE_RETENTION_DAYS", 7),
		},
		Pipeline: PipelineConfig{
			PipelineTimeout: envutil.Seconds("VIDEO_PIPELINE_TIMEOUT_SECONDS", 240),
			RenderTimeout:   envutil.Seconds("VIDEO_RENDER_TIMEOUT_SECONDS", 200),
			PollInterval:    envutil.Millis("VIDEO_POLL_INTERVAL_MS", 2000),
			MaxScriptChars:  envutil.Int("VIDEO_SCRIPT_MAX_CHARS", 3000),
			SignedURLTTL:    envutil.Seconds("VIDEO_SIGNED_URL_TTL_SECONDS", 3600),
			StaleAfter:      envutil.Seconds("VIDEO_STALE_AFTER_SECONDS", 0),
		},
		Worker: WorkerConfig{
			Concurrency: envutil.Int("WORKER_CONCURRENCY", 4),
			QueueSize:   envutil.Int("WORKER_QUEUE_SIZE", 64),
		},
		Otel: observability.OtelConfig{
			Enabled:     envutil.Bool("OTEL_ENABLED", false),
			Environment: env,
			Version:     envutil.String("SERVICE_VERSION", ""),
			Endpoint:    envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:     observability.ParseHeaders(envutil.String("OTEL_EXPORTER_OTLP_HEADERS", "")),
			Insecure:    envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false),
			SampleRatio: envutil.Float("OTEL_SAMPLER_RATIO", 0.1),
		},
		MetricsEnabled: envutil.Bool("METRICS_ENABLED", false),
		MetricsAddr:    envutil.String("METRICS_ADDR", ""),
	}
	cfg.Otel.ServiceName = cfg.ServiceName
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags, then the storage rules owned by gcp.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := gcp.ValidateObjectStorageConfig(c.Storage); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
