package transaction

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/hamedsh/walletledger/internal/common/logger"
)

type ServiceInterface interface {
	List(ctx context.Context, walletUUID string, filter ListFilter) ([]Transaction, error)
	Get(ctx context.Context, walletUUID string, id int64) (*Transaction, error)
}

type Handler struct {
	service ServiceInterface
	logger  *logger.Logger
}

func NewHandler(service ServiceInterface, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

// List handles GET /wallets/{uuid}/transactions/ with optional status and
// type query filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	walletUUID := r.PathValue("uuid")

	filter := ListFilter{
		Status: r.URL.Query().Get("status"),
		Type:   r.URL.Query().Get("type"),
	}

	txs, err := h.service.List(r.Context(), walletUUID, filter)
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			h.respondError(w, http.StatusNotFound, "wallet not found")
			return
		}
		if errors.Is(err, ErrValidation) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Errorf("Failed to list transactions: %v", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.respondJSON(w, http.StatusOK, txs)
}

// Get handles GET /wallets/{uuid}/transactions/{id}/.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	walletUUID := r.PathValue("uuid")

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "transaction not found")
		return
	}

	tx, err := h.service.Get(r.Context(), walletUUID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "transaction not found")
			return
		}
		h.logger.Errorf("Failed to get transaction: %v", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.respondJSON(w, http.StatusOK, tx)
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Errorf("Failed to encode response: %v", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, msg string) {
	h.respondJSON(w, status, ErrorResponse{Error: msg})
}
