// Package handlers provides HTTP handlers for ledger operations.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/folio-hq/folio/internal/domain"
	"github.com/folio-hq/folio/internal/identity"
	"github.com/folio-hq/folio/internal/modules/ledger"
)

// Handler handles ledger HTTP requests
type Handler struct {
	service       *ledger.Service
	defaultUserID string
	log           zerolog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(service *ledger.Service, defaultUserID string, log zerolog.Logger) *Handler {
	return &Handler{
		service:       service,
		defaultUserID: defaultUserID,
		log:           log.With().Str("handler", "ledger").Logger(),
	}
}

// orderRequest is the body of buy and sell requests
type orderRequest struct {
	Ticker   string  `json:"ticker"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

// HandleBuy executes a buy order
// POST /api/portfolio/buy
func (h *Handler) HandleBuy(w http.ResponseWriter, r *http.Request) {
	h.handleOrder(w, r, h.service.Buy, "Stock purchased successfully")
}

// HandleSell executes a sell order
// POST /api/portfolio/sell
func (h *Handler) HandleSell(w http.ResponseWriter, r *http.Request) {
	h.handleOrder(w, r, h.service.Sell, "Stock sold successfully")
}

func (h *Handler) handleOrder(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, userID, ticker string, quantity, price float64) (domain.Transaction, error),
	message string,
) {
	userID := identity.FromContext(r.Context(), h.defaultUserID)

	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	txn, err := op(r.Context(), userID, req.Ticker, req.Quantity, req.Price)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":       message,
		"transactionId": txn.ID,
	})
}

// HandleListTransactions returns the transaction history
// GET /api/portfolio/transactions
func (h *Handler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID := identity.FromContext(r.Context(), h.defaultUserID)

	transactions, err := h.service.ListTransactions(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
	})
}

// writeDomainError maps domain error kinds to HTTP responses so clients can
// branch on a stable code string.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var invalidArg domain.InvalidArgumentError
	var persistence domain.PersistenceError

	switch {
	case errors.As(err, &invalidArg):
		h.writeError(w, http.StatusBadRequest, "invalid_argument", invalidArg.Error())
	case errors.Is(err, domain.ErrInsufficientFunds):
		h.writeError(w, http.StatusBadRequest, "insufficient_funds", "Insufficient funds")
	case errors.Is(err, domain.ErrInsufficientShares):
		h.writeError(w, http.StatusBadRequest, "insufficient_shares", "Insufficient shares")
	case errors.Is(err, domain.ErrPositionNotFound):
		h.writeError(w, http.StatusNotFound, "position_not_found", "Position not found")
	case errors.Is(err, domain.ErrPortfolioNotFound):
		h.writeError(w, http.StatusNotFound, "portfolio_not_found", "Portfolio not found")
	case errors.As(err, &persistence):
		h.log.Error().Err(err).Msg("Persistence failure")
		h.writeError(w, http.StatusInternalServerError, "persistence_failure", "Operation could not be saved")
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
