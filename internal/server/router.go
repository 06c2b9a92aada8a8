package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/conclave/agent/collaboration"
)

// StatusSource 提供协调者状态快照
type StatusSource interface {
	Status(ctx context.Context) (collaboration.Status, error)
}

// RequestRecorder 记录 HTTP 请求指标
type RequestRecorder interface {
	RecordHTTPRequest(method, path string, status int, duration time.Duration)
}

// RouterConfig 路由依赖
type RouterConfig struct {
	Status StatusSource
	// Ready 在所有角色完成注册后关闭；nil 视为已就绪
	Ready    <-chan struct{}
	Gatherer prometheus.Gatherer
	Recorder RequestRecorder
	Version  string
	// 单次 /status 查询的超时
	StatusTimeout time.Duration
}

// NewRouter 创建观测路由
func NewRouter(cfg RouterConfig, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = 2 * time.Second
	}
	h := &handlers{cfg: cfg, logger: logger.With(zap.String("component", "http_router"))}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if cfg.Recorder != nil {
		r.Use(metricsMiddleware(cfg.Recorder))
	}

	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	r.Get("/status", h.status)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	return r
}

type handlers struct {
	cfg    RouterConfig
	logger *zap.Logger
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.cfg.Version,
	})
}

func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Ready != nil {
		select {
		case <-h.cfg.Ready:
		default:
			WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "registering"})
			return
		}
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())
	if h.cfg.Status == nil {
		WriteJSON(w, http.StatusNotFound, Response{Success: false, Timestamp: time.Now(), RequestID: requestID})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.StatusTimeout)
	defer cancel()

	st, err := h.cfg.Status.Status(ctx)
	if err != nil {
		WriteError(w, requestID, err, h.logger)
		return
	}
	WriteSuccess(w, requestID, st)
}

// metricsMiddleware 按路由模板记录请求数与耗时
func metricsMiddleware(rec RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			path := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				path = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			rec.RecordHTTPRequest(r.Method, path, status, time.Since(start))
		})
	}
}
