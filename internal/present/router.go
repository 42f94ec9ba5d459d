package present

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
)

// RouterConfig holds what the HTTP routes expose. Nil fields disable their
// routes.
type RouterConfig struct {
	Presenter *Presenter
	Hub       *Hub
	Gatherer  prometheus.Gatherer
	Logger    *slog.Logger
	// Tracer traces requests. Nil uses the global provider.
	Tracer trace.Tracer
}

// NewRouter returns the HTTP handler:
//
//	GET /healthz       liveness
//	GET /frame/latest  summary of the last presented frame (204 before any)
//	GET /frame/stats   presented and dropped counts
//	GET /frames        websocket stream of frame summaries
//	GET /metrics       Prometheus exposition
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "http")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(Tracing(cfg.Tracer))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if p := cfg.Presenter; p != nil {
		r.Route("/frame", func(r chi.Router) {
			r.Get("/latest", func(w http.ResponseWriter, _ *http.Request) {
				f, ok := p.Latest()
				if !ok {
					w.WriteHeader(http.StatusNoContent)
					return
				}
				writeJSON(w, logger, Summarize(f))
			})
			r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, logger, p.Stats())
			})
		})
	}

	if cfg.Hub != nil {
		r.Get("/frames", cfg.Hub.ServeHTTP)
	}

	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("write response failed", "error", err)
	}
}
