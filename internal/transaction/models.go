package transaction

import (
	"encoding/json"
	"errors"
	"time"
)

const (
	TypeDeposit    = "DEPOSIT"
	TypeWithdrawal = "WITHDRAWAL"
)

const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

var (
	// ErrNotFound is returned when a transaction does not exist, or when a
	// status-scoped lock finds the row in a different status. The executor
	// relies on the second case for at-most-once processing.
	ErrNotFound = errors.New("transaction not found")

	// ErrDuplicateIdempotencyKey surfaces the unique-index violation on
	// idempotency_key; callers re-read and return the winning row.
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")

	// ErrWalletNotFound is returned by listing operations for unknown wallets.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrValidation wraps rejected request parameters; handlers map it to 400
	// with errors.Is.
	ErrValidation = errors.New("validation failed")
)

// Transaction is an append-only record of one credit or debit attempt.
// Deposits are born COMPLETED; withdrawals start PENDING and are moved by the
// executor along PENDING/FAILED -> PROCESSING -> COMPLETED | FAILED.
type Transaction struct {
	ID                 int64           `json:"id"`
	WalletID           int64           `json:"-"`
	WalletUUID         string          `json:"wallet_uuid"`
	Amount             int64           `json:"amount"`
	Type               string          `json:"transaction_type"`
	Status             string          `json:"status"`
	ScheduledFor       *time.Time      `json:"scheduled_for"`
	ExecutedAt         *time.Time      `json:"executed_at"`
	ThirdPartyResponse json.RawMessage `json:"third_party_response"`
	RetryCount         int             `json:"retry_count"`
	IdempotencyKey     *string         `json:"-"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// ListFilter narrows a wallet's transaction listing.
type ListFilter struct {
	Status string
	Type   string
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Kafka event payloads published through the outbox.
type WithdrawalScheduledEvent struct {
	TransactionID int64     `json:"transaction_id"`
	WalletUUID    string    `json:"wallet_uuid"`
	Amount        int64     `json:"amount"`
	ScheduledFor  time.Time `json:"scheduled_for"`
	Timestamp     time.Time `json:"timestamp"`
}

type WithdrawalSettledEvent struct {
	TransactionID int64     `json:"transaction_id"`
	WalletUUID    string    `json:"wallet_uuid"`
	Amount        int64     `json:"amount"`
	Status        string    `json:"status"`
	RetryCount    int       `json:"retry_count"`
	Timestamp     time.Time `json:"timestamp"`
}
