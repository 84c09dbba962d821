package plans

import "github.com/go-chi/chi/v5"

// MountRoutes registers the audit plan endpoints on r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/process", h.Process)
	r.Get("/audit-plans", h.List)
	r.Get("/audit-plan/{id}", h.Get)
	r.Put("/audit-plan/{id}", h.Update)
}
