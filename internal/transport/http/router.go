package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"nexops/internal/platform/middleware"
	"nexops/pkg/platform/httputil"
)

// RouterConfig collects what NewRouter mounts besides the operator API.
type RouterConfig struct {
	Logger         *slog.Logger
	Latency        middleware.LatencyObserver
	RequestTimeout time.Duration
	Metrics        http.Handler
	Health         func() error
}

// NewRouter wires every endpoint. The websocket sits outside the request
// timeout and JSON content-type checks.
func NewRouter(h *Handler, hub *Hub, cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	r := chi.NewRouter()
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(cfg.Logger, cfg.Latency))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireActor(cfg.Logger))
		if hub != nil {
			r.Get("/sync/ws", hub.HandleWebSocket)
		}
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
			r.Use(middleware.ContentTypeJSON)
			h.Register(r)
		})
	})
	return r
}
