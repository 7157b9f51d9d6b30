package expenses

import "github.com/go-chi/chi/v5"

// MountRoutes registers Expenses Entry routes. Paths stay flat so other
// packages can add actions under /expenses-entries/{name}.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/expenses-entries", h.create)
	r.Get("/expenses-entries/{name}", h.show)
	r.Delete("/expenses-entries/{name}", h.delete)
	r.Post("/expenses-entries/{name}/submit", h.submit)
	r.Post("/expenses-entries/{name}/cancel", h.cancel)
	r.Post("/expenses-entries/{name}/gl-entries", h.postGL)
}
