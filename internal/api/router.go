// Package api wires the HTTP surface: the planning routes under the
// configured base path plus the operational endpoints at the root.
package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"audit-planner/internal/api/auditors"
	"audit-planner/internal/api/health"
	"audit-planner/internal/api/plans"
	"audit-planner/internal/api/respond"
	"audit-planner/internal/api/stores"
	apperrors "audit-planner/internal/common/errors"
	"audit-planner/internal/common/logger"
	"audit-planner/internal/common/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const DefaultOrigin = "http://localhost:8501"

type Deps struct {
	Plans    plans.Service
	Auditors auditors.Service
	Stores   stores.Service
	Health   *health.Handler

	BasePath           string
	AllowedOrigins     []string
	ExposeErrorDetails bool
	Logger             logger.Logger
}

type mounter interface {
	MountRoutes(r chi.Router)
}

// NewRouter builds the root handler.
func NewRouter(deps Deps) http.Handler {
	log := logger.Component(deps.Logger, "http")
	resp := respond.New(apperrors.NewErrorHandler(log, deps.ExposeErrorDetails))

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{DefaultOrigin}
	}

	r := chi.NewRouter()
	r.Use(respond.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(observe(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{respond.RequestIDHeader},
		AllowCredentials: false,
	}))

	if deps.Health != nil {
		deps.Health.MountRoutes(r)
	}
	r.Handle("/metrics", promhttp.Handler())

	routes := []mounter{
		plans.NewHandler(deps.Plans, resp),
		auditors.NewHandler(deps.Auditors, resp),
		stores.NewHandler(deps.Stores, resp),
	}
	mount := func(api chi.Router) {
		for _, m := range routes {
			m.MountRoutes(api)
		}
	}
	if base := strings.TrimRight(deps.BasePath, "/"); base != "" {
		r.Route(base, mount)
	} else {
		r.Group(mount)
	}
	return r
}

// observe counts every request by route pattern and logs it.
func observe(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			if route == "/metrics" || route == "/health" {
				return
			}
			log.Debug("request served", map[string]interface{}{
				"method":     r.Method,
				"route":      route,
				"status":     status,
				"durationMs": time.Since(start).Milliseconds(),
				"requestId":  respond.RequestIDFrom(r.Context()),
			})
		})
	}
}
