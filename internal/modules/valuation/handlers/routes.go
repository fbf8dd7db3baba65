package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers valuation routes under /portfolio
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/portfolio", h.HandleGetPortfolio)
	r.Get("/portfolio/performance", h.HandleGetPerformance)
	r.Get("/portfolio/concentration", h.HandleGetConcentration)
}
