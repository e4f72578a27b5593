// Package httpapi assembles the HTTP surface: middleware chain, registry
// routes, and operational endpoints.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"veris/internal/identity/handler"
	"veris/internal/platform/health"
	"veris/internal/platform/ratelimit"
	"veris/pkg/platform/middleware/auth"
	"veris/pkg/platform/middleware/device"
	"veris/pkg/platform/middleware/metadata"
	"veris/pkg/platform/middleware/request"
	"veris/pkg/platform/middleware/requesttime"
	"veris/pkg/requestcontext"
)

// Deps carries everything the router needs wired in from main.
type Deps struct {
	Identity          *handler.Handler
	JWTValidator      auth.JWTValidator
	RevocationChecker auth.TokenRevocationChecker
	// Limiter throttles authenticated mutations; nil disables limiting.
	Limiter ratelimit.Limiter
	Health  *health.Registry
	Logger  *slog.Logger
}

// NewRouter builds the full router. Read endpoints are public; mutations sit
// behind bearer-token authentication.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(request.ID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(device.Middleware)
	r.Use(logRequests(deps.Logger))

	r.Get("/healthz", handleHealth(deps.Health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(public chi.Router) {
		authed := public.With(auth.RequireAuth(deps.JWTValidator, deps.RevocationChecker, deps.Logger))
		if deps.Limiter != nil {
			authed = authed.With(ratelimit.Middleware(deps.Limiter, deps.Logger))
		}
		deps.Identity.Register(public, authed)
	})

	return r
}

func logRequests(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.InfoContext(r.Context(), "request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", requestcontext.RequestID(r.Context()),
			)
		})
	}
}

func handleHealth(reg *health.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := reg.Check(r.Context())

		status := http.StatusOK
		if !health.Healthy(results) {
			status = http.StatusServiceUnavailable
		}

		deps := make(map[string]string, len(results))
		for name, err := range results {
			if err != nil {
				deps[name] = "unhealthy"
				continue
			}
			deps[name] = "ok"
		}

		writeJSON(w, status, map[string]any{
			"status":       http.StatusText(status),
			"dependencies": deps,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
