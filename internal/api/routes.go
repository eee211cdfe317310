package api

import (
	"net/http"

	"github.com/HaoYang670/rucat/internal/auth"
	"github.com/HaoYang670/rucat/internal/health"
	"github.com/HaoYang670/rucat/internal/observability"
	"github.com/HaoYang670/rucat/internal/store"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Store         store.EngineStore
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	Auth          auth.Provider
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Store, cfg.Metrics, cfg.HealthChecker)

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes) - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	// Engine endpoints - auth required
	authMiddleware := AuthMiddleware(cfg.Auth)
	mux.Handle("POST /engine", authMiddleware(http.HandlerFunc(handler.CreateEngine)))
	mux.Handle("GET /engines", authMiddleware(http.HandlerFunc(handler.ListEngines)))
	mux.Handle("GET /engine/{id}", authMiddleware(http.HandlerFunc(handler.GetEngine)))
	mux.Handle("POST /engine/{id}/stop", authMiddleware(http.HandlerFunc(handler.StopEngine)))
	mux.Handle("POST /engine/{id}/restart", authMiddleware(http.HandlerFunc(handler.RestartEngine)))
	mux.Handle("DELETE /engine/{id}", authMiddleware(http.HandlerFunc(handler.DeleteEngine)))

	// Apply middleware chain (order matters: each wrap becomes the new
	// outermost layer, so Recovery runs first and ContentType runs last)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
