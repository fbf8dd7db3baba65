// Package handlers provides HTTP handlers for valuation and performance.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/folio-hq/folio/internal/domain"
	"github.com/folio-hq/folio/internal/identity"
	"github.com/folio-hq/folio/internal/modules/ledger"
	"github.com/folio-hq/folio/internal/modules/valuation"
)

// Handler handles valuation HTTP requests
type Handler struct {
	ledgerService *ledger.Service
	service       *valuation.Service
	initialValue  float64
	defaultUserID string
	log           zerolog.Logger
}

// NewHandler creates a new valuation handler
func NewHandler(
	ledgerService *ledger.Service,
	service *valuation.Service,
	initialValue float64,
	defaultUserID string,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		ledgerService: ledgerService,
		service:       service,
		initialValue:  initialValue,
		defaultUserID: defaultUserID,
		log:           log.With().Str("handler", "valuation").Logger(),
	}
}

// HandleGetPortfolio returns the user's portfolio marked to market, lazily
// creating it on first access.
// GET /api/portfolio
func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID := identity.FromContext(r.Context(), h.defaultUserID)

	p, err := h.ledgerService.GetOrCreate(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	valued := h.service.ValuePortfolio(r.Context(), p)

	// The ledger view and the valued view are merged so the response carries
	// both the authoritative fields and the derived ones, like the stored
	// record plus computed metrics.
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"userId":         valued.UserID,
		"cash":           valued.Cash,
		"positions":      valued.Positions,
		"transactions":   p.Transactions,
		"totalValue":     valued.TotalValue,
		"totalPL":        valued.TotalPL,
		"totalPLPercent": valued.TotalPLPercent,
	})
}

// HandleGetPerformance returns the performance report
// GET /api/portfolio/performance
func (h *Handler) HandleGetPerformance(w http.ResponseWriter, r *http.Request) {
	userID := identity.FromContext(r.Context(), h.defaultUserID)

	p, err := h.ledgerService.Get(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	report := h.service.Performance(r.Context(), p, h.initialValue)
	h.writeJSON(w, http.StatusOK, report)
}

// HandleGetConcentration returns concentration and diversification metrics
// GET /api/portfolio/concentration
func (h *Handler) HandleGetConcentration(w http.ResponseWriter, r *http.Request) {
	userID := identity.FromContext(r.Context(), h.defaultUserID)

	p, err := h.ledgerService.Get(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	report := h.service.Concentration(r.Context(), p)
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var persistence domain.PersistenceError

	switch {
	case errors.Is(err, domain.ErrPortfolioNotFound):
		h.writeError(w, http.StatusNotFound, "portfolio_not_found", "Portfolio not found")
	case errors.As(err, &persistence):
		h.log.Error().Err(err).Msg("Persistence failure")
		h.writeError(w, http.StatusInternalServerError, "persistence_failure", "Operation could not complete")
	default:
		h.log.Error().Err(err).Msg("Unhandled error")
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Internal error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, map[string]string{"error": message, "code": code})
}
