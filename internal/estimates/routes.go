package estimates

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/estimates", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Post("/preview", h.Preview)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Put("/", h.Update)
			r.Delete("/", h.Delete)
			r.Post("/send", h.Send)
			r.Post("/approve", h.Approve)
			r.Post("/reject", h.Reject)
			r.Post("/expire", h.Expire)
			r.Post("/copy", h.Copy)
		})
	})
}
