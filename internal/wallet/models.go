package wallet

import (
	"errors"
	"time"

	"github.com/hamedsh/walletledger/internal/transaction"
)

var (
	// ErrNotFound is returned when no wallet exists for the given identifier.
	ErrNotFound = errors.New("wallet not found")

	// ErrValidation wraps rejected request parameters; handlers map it to 400
	// with errors.Is.
	ErrValidation = errors.New("validation failed")
)

// Wallet holds a single-currency balance in minor units (e.g. Rials).
// balance never goes below zero at commit boundaries; mutation happens only
// under a row lock inside a database transaction.
type Wallet struct {
	ID        int64     `json:"-"`
	UUID      string    `json:"uuid"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DepositRequest struct {
	Amount int64 `json:"amount"`
}

type DepositResponse struct {
	Wallet      *Wallet                  `json:"wallet"`
	Transaction *transaction.Transaction `json:"transaction"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Kafka event payloads published through the outbox.
type WalletCreatedEvent struct {
	WalletUUID string    `json:"wallet_uuid"`
	Timestamp  time.Time `json:"timestamp"`
}

type WalletDepositedEvent struct {
	WalletUUID    string    `json:"wallet_uuid"`
	TransactionID int64     `json:"transaction_id"`
	Amount        int64     `json:"amount"`
	Timestamp     time.Time `json:"timestamp"`
}
