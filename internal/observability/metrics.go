package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/logger"
)

// Metrics is a process-wide registry. All methods are safe on a nil
// receiver so callers never check whether metrics are enabled.
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	generations        *CounterVec
	generationDuration *HistogramVec
	cacheHits          *CounterVec
	dispatches         *CounterVec
	sseClients         *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Current() *Metrics {
	return instance
}

// Init builds the registry when enabled is true. Later calls return the
// same instance.
func Init(enabled bool) *Metrics {
	if !enabled {
		return instance
	}
	initOnce.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("edaptiv_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec("edaptiv_api_request_duration_seconds", "API latency by method/route.",
			[]string{"method", "route"}, []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}),
		apiInflight: NewGauge("edaptiv_api_inflight_requests", "In-flight API requests."),

		generations: NewCounterVec("edaptiv_video_generations_total", "Finished generation attempts by status and error code.", []string{"status", "code"}),
		generationDuration: NewHistogramVec("edaptiv_video_generation_duration_seconds", "Wall time of generation attempts.",
			[]string{"status"}, []float64{5, 15, 30, 60, 90, 120, 180, 240, 300}),
		cacheHits:  NewCounterVec("edaptiv_video_cache_hits_total", "Videos reused instead of rendered, by stage.", []string{"stage"}),
		dispatches: NewCounterVec("edaptiv_video_dispatches_total", "Generation jobs handed to a dispatcher.", []string{"result"}),
		sseClients: NewGauge("edaptiv_sse_clients", "Connected status stream clients."),
	}
}

func (m *Metrics) families() []family {
	return []family{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.generations, m.generationDuration, m.cacheHits, m.dispatches, m.sseClients,
	}
}

// StartServer serves the exposition on its own listener until ctx ends.
func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	addr = strings.TrimSpace(addr)
	if m == nil || addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", "error", err, "addr", addr)
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, f := range m.families() {
		if err := f.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	method = orUnknown(method)
	route = orUnknown(route)
	m.apiRequests.Inc(method, route, orUnknown(status))
	m.apiLatency.Observe(dur.Seconds(), method, route)
}

func (m *Metrics) APIInflightInc() {
	if m != nil {
		m.apiInflight.Add(1)
	}
}

func (m *Metrics) APIInflightDec() {
	if m != nil {
		m.apiInflight.Add(-1)
	}
}

// ObserveGeneration records one finished attempt. code is empty on success.
func (m *Metrics) ObserveGeneration(status, code string, dur time.Duration) {
	if m == nil {
		return
	}
	if code == "" {
		code = "none"
	}
	m.generations.Inc(orUnknown(status), code)
	m.generationDuration.Observe(dur.Seconds(), orUnknown(status))
}

func (m *Metrics) IncCacheHit(stage string) {
	if m != nil {
		m.cacheHits.Inc(orUnknown(stage))
	}
}

func (m *Metrics) IncDispatch(result string) {
	if m != nil {
		m.dispatches.Inc(orUnknown(result))
	}
}

func (m *Metrics) SSEClientsAdd(delta float64) {
	if m != nil {
		m.sseClients.Add(delta)
	}
}

func orUnknown(v string) string {
	if strings.TrimSpace(v) == "" {
		return "unknown"
	}
	return v
}
