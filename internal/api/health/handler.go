package health

import (
	"context"
	"net/http"
	"time"

	"audit-planner/internal/api/respond"
	"audit-planner/internal/common/logger"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// Handler serves liveness and readiness. Required checks gate readiness;
// informational checks are reported but never fail it.
type Handler struct {
	required      map[string]Check
	informational map[string]Check
	timeout       time.Duration
	logger        logger.Logger
}

func NewHandler(log logger.Logger) *Handler {
	return &Handler{
		required:      make(map[string]Check),
		informational: make(map[string]Check),
		timeout:       3 * time.Second,
		logger:        logger.Component(log, "health"),
	}
}

// Require adds a check that must pass for /ready to answer 200.
func (h *Handler) Require(name string, c Check) *Handler {
	h.required[name] = c
	return h
}

// Inform adds a check whose result is only reported.
func (h *Handler) Inform(name string, c Check) *Handler {
	h.informational[name] = c
	return h
}

type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (h *Handler) Live(w http.ResponseWriter, _ *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	out := readiness{Status: "ready", Checks: make(map[string]string)}
	status := http.StatusOK
	for name, c := range h.required {
		if err := c(ctx); err != nil {
			h.logger.Warn("readiness check failed", map[string]interface{}{"check": name, "error": err})
			out.Checks[name] = err.Error()
			out.Status = "not_ready"
			status = http.StatusServiceUnavailable
			continue
		}
		out.Checks[name] = "ok"
	}
	for name, c := range h.informational {
		if err := c(ctx); err != nil {
			out.Checks[name] = "degraded: " + err.Error()
			continue
		}
		out.Checks[name] = "ok"
	}
	respond.JSON(w, status, out)
}
