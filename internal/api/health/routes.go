package health

import "github.com/go-chi/chi/v5"

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.Live)
	r.Get("/ready", h.Ready)
}
