package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers ledger routes under /portfolio
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/portfolio/buy", h.HandleBuy)
	r.Post("/portfolio/sell", h.HandleSell)
	r.Get("/portfolio/transactions", h.HandleListTransactions)
}
