package withdrawal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/hamedsh/walletledger/internal/common/db"
	"github.com/hamedsh/walletledger/internal/common/logger"
	"github.com/hamedsh/walletledger/internal/transaction"
	"github.com/hamedsh/walletledger/internal/wallet"
)

type ServiceInterface interface {
	Schedule(ctx context.Context, walletUUID string, amount int64, scheduledFor time.Time, idempotencyKey string) (*transaction.Transaction, error)
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

// Withdraw handles POST /wallets/{uuid}/withdraw.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	walletUUID := r.PathValue("uuid")

	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if err := wallet.ValidateIdempotencyKey(idempotencyKey); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	tx, err := h.service.Schedule(r.Context(), walletUUID, req.Amount, req.ScheduledFor, idempotencyKey)
	if err != nil {
		switch {
		case errors.Is(err, wallet.ErrNotFound):
			h.respondError(w, http.StatusNotFound, "wallet not found")
		case errors.Is(err, ErrValidation):
			h.respondError(w, http.StatusBadRequest, err.Error())
		case db.IsSerializationFailure(err):
			h.respondError(w, http.StatusServiceUnavailable, "temporary conflict, please retry")
		default:
			h.logger.Errorf("Failed to schedule withdrawal: %v", err)
			h.respondError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.respondJSON(w, http.StatusCreated, tx)
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
