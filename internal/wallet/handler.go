package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hamedsh/walletledger/internal/common/db"
	"github.com/hamedsh/walletledger/internal/common/logger"
	"github.com/hamedsh/walletledger/internal/transaction"
)

type ServiceInterface interface {
	Create(ctx context.Context) (*Wallet, error)
	Get(ctx context.Context, walletUUID string) (*Wallet, error)
	Deposit(ctx context.Context, walletUUID string, amount int64, idempotencyKey string) (*transaction.Transaction, error)
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

// Create handles POST /wallets/.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	wal, err := h.service.Create(r.Context())
	if err != nil {
		h.logger.Errorf("Failed to create wallet: %v", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.respondJSON(w, http.StatusCreated, wal)
}

// Get handles GET /wallets/{uuid}/.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	wal, err := h.service.Get(r.Context(), r.PathValue("uuid"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "wallet not found")
			return
		}
		h.logger.Errorf("Failed to get wallet: %v", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.respondJSON(w, http.StatusOK, wal)
}

// Deposit handles POST /wallets/{uuid}/deposit.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	walletUUID := r.PathValue("uuid")

	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if err := ValidateIdempotencyKey(idempotencyKey); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	tx, err := h.service.Deposit(r.Context(), walletUUID, req.Amount, idempotencyKey)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			h.respondError(w, http.StatusNotFound, "wallet not found")
		case errors.Is(err, ErrValidation):
			h.respondError(w, http.StatusBadRequest, err.Error())
		case db.IsSerializationFailure(err):
			h.respondError(w, http.StatusServiceUnavailable, "temporary conflict, please retry")
		default:
			h.logger.Errorf("Deposit failed: %v", err)
			h.respondError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	wal, err := h.service.Get(r.Context(), walletUUID)
	if err != nil {
		h.logger.Errorf("Failed to reload wallet after deposit: %v", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.respondJSON(w, http.StatusOK, DepositResponse{Wallet: wal, Transaction: tx})
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
