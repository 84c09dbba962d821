package stores

import "github.com/go-chi/chi/v5"

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/store", h.Create)
	r.Get("/store", h.List)
	r.Get("/store/open", h.ListOpen)
	r.Get("/store/{id}", h.Get)
	r.Put("/store/{id}", h.UpdateStatus)
}
