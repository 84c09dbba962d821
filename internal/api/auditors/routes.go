package auditors

import "github.com/go-chi/chi/v5"

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/auditor", h.Create)
	r.Get("/auditors", h.List)
	r.Get("/auditors/available", h.ListAvailable)
	r.Get("/auditor/{id}", h.Get)
	r.Put("/auditor/{id}", h.UpdateStatus)
	r.Put("/auditor/{id}/hours", h.UpdateHours)
}
