package wallet

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hamedsh/walletledger/internal/common/db"
	"github.com/hamedsh/walletledger/internal/common/logger"
)

type Repository struct {
	db     *db.DB
	logger *logger.Logger
}

func NewRepository(database *db.DB, log *logger.Logger) *Repository {
	return &Repository{
		db:     database,
		logger: log,
	}
}

// Create inserts a wallet with a fresh uuid and zero balance within the
// caller's transaction.
func (r *Repository) Create(ctx context.Context, tx *sql.Tx) (*Wallet, error) {
	query := `
		INSERT INTO wallets (uuid, balance)
		VALUES ($1, 0)
		RETURNING id, uuid, balance, created_at, updated_at
	`

	w := &Wallet{}
	err := tx.QueryRowContext(ctx, query, uuid.NewString()).Scan(
		&w.ID, &w.UUID, &w.Balance, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	return w, nil
}

// FindByUUID retrieves a wallet without locking.
func (r *Repository) FindByUUID(ctx context.Context, walletUUID string) (*Wallet, error) {
	query := `
		SELECT id, uuid, balance, created_at, updated_at
		FROM wallets
		WHERE uuid = $1
	`
	return scanWallet(r.db.QueryRowContext(ctx, query, walletUUID))
}

// LockByUUID acquires an exclusive row lock on the wallet. Every
// balance-changing operation on the wallet serializes on this lock.
func (r *Repository) LockByUUID(ctx context.Context, tx *sql.Tx, walletUUID string) (*Wallet, error) {
	query := `
		SELECT id, uuid, balance, created_at, updated_at
		FROM wallets
		WHERE uuid = $1
		FOR UPDATE
	`
	return scanWallet(tx.QueryRowContext(ctx, query, walletUUID))
}

// LockByID is LockByUUID by surrogate id, used by the withdrawal executor
// which only has the transaction's wallet_id.
func (r *Repository) LockByID(ctx context.Context, tx *sql.Tx, id int64) (*Wallet, error) {
	query := `
		SELECT id, uuid, balance, created_at, updated_at
		FROM wallets
		WHERE id = $1
		FOR UPDATE
	`
	return scanWallet(tx.QueryRowContext(ctx, query, id))
}

// AddBalance applies a signed delta as a single UPDATE computed in the
// database. No balance is read into memory, so a stale read can never corrupt
// the arithmetic; the caller must have validated sufficiency under the same
// row lock before passing a negative delta.
func (r *Repository) AddBalance(ctx context.Context, tx *sql.Tx, walletID int64, delta int64) error {
	query := `
		UPDATE wallets
		SET balance = balance + $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2
	`

	result, err := tx.ExecContext(ctx, query, delta, walletID)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

func scanWallet(row *sql.Row) (*Wallet, error) {
	w := &Wallet{}
	err := row.Scan(&w.ID, &w.UUID, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan wallet: %w", err)
	}
	return w, nil
}
