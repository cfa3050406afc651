package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/edaptivai-netizen/edaptiv-learning/internal/http/handlers"
	httpMW "github.com/edaptivai-netizen/edaptiv-learning/internal/http/middleware"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/observability"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins []string
	Metrics     *observability.Metrics

	AuthMiddleware  *httpMW.AuthMiddleware
	HealthHandler   *httpH.HealthHandler
	MaterialHandler *httpH.MaterialHandler
	VideoHandler    *httpH.VideoHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "edaptiv-learning"
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	protected := r.Group("/api")
	if cfg.AuthMiddleware != nil {
		protected.Use(cfg.AuthMiddleware.RequireAuth())
	}

	if cfg.MaterialHandler != nil {
		protected.GET("/materials/:id", cfg.MaterialHandler.GetMaterial)
	}
	if cfg.VideoHandler != nil {
		protected.POST("/materials/:id/video", cfg.VideoHandler.TriggerVideo)
		protected.GET("/materials/:id/video/status", cfg.VideoHandler.VideoStatus)
		protected.GET("/materials/:id/video/events", cfg.VideoHandler.VideoEvents)
	}

	return r
}
