package image

import (
	"github.com/go-chi/chi/v5"
)

// Routes returns the image router
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Upload)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)

	r.Post("/sync", h.Sync)
	r.Post("/merge", h.Merge)

	return r
}
