package transaction

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hamedsh/walletledger/internal/common/db"
	"github.com/hamedsh/walletledger/internal/common/logger"
)

// Repository is the only path to transaction rows. Methods that take a
// *sql.Tx participate in the caller's locking transaction; the rest read
// through the pool.
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

const selectColumns = `
	t.id, t.wallet_id, w.uuid, t.amount, t.transaction_type, t.status,
	t.scheduled_for, t.executed_at, t.third_party_response, t.retry_count,
	t.idempotency_key, t.created_at, t.updated_at
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	t := &Transaction{}
	err := row.Scan(
		&t.ID,
		&t.WalletID,
		&t.WalletUUID,
		&t.Amount,
		&t.Type,
		&t.Status,
		&t.ScheduledFor,
		&t.ExecutedAt,
		&t.ThirdPartyResponse,
		&t.RetryCount,
		&t.IdempotencyKey,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	return t, nil
}

// Create inserts a transaction within the caller's transaction. A unique
// violation on idempotency_key maps to ErrDuplicateIdempotencyKey so the
// service can re-read and return the winner.
func (r *Repository) Create(ctx context.Context, tx *sql.Tx, t *Transaction) error {
	query := `
		INSERT INTO transactions
			(wallet_id, amount, transaction_type, status, scheduled_for,
			 executed_at, third_party_response, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, retry_count, created_at, updated_at
	`

	err := tx.QueryRowContext(ctx, query,
		t.WalletID,
		t.Amount,
		t.Type,
		t.Status,
		t.ScheduledFor,
		t.ExecutedAt,
		t.ThirdPartyResponse,
		t.IdempotencyKey,
	).Scan(&t.ID, &t.RetryCount, &t.CreatedAt, &t.UpdatedAt)

	if err != nil {
		if db.IsUniqueViolation(err, "transactions_idempotency_key_key") {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// FindByID retrieves a transaction without locking.
func (r *Repository) FindByID(ctx context.Context, id int64) (*Transaction, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM transactions t
		JOIN wallets w ON w.id = t.wallet_id
		WHERE t.id = $1
	`
	return scanTransaction(r.db.QueryRowContext(ctx, query, id))
}

// FindByIDTx retrieves a transaction through an open transaction, observing
// its uncommitted updates.
func (r *Repository) FindByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*Transaction, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM transactions t
		JOIN wallets w ON w.id = t.wallet_id
		WHERE t.id = $1
	`
	return scanTransaction(tx.QueryRowContext(ctx, query, id))
}

// FindByIdempotencyKey looks a transaction up by key without locking.
func (r *Repository) FindByIdempotencyKey(ctx context.Context, key string) (*Transaction, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM transactions t
		JOIN wallets w ON w.id = t.wallet_id
		WHERE t.idempotency_key = $1
	`
	return scanTransaction(r.db.QueryRowContext(ctx, query, key))
}

// FindByWalletAndID retrieves one of a wallet's transactions.
func (r *Repository) FindByWalletAndID(ctx context.Context, walletUUID string, id int64) (*Transaction, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM transactions t
		JOIN wallets w ON w.id = t.wallet_id
		WHERE w.uuid = $1 AND t.id = $2
	`
	return scanTransaction(r.db.QueryRowContext(ctx, query, walletUUID, id))
}

// ListByWallet returns a wallet's transactions, newest first, optionally
// filtered by status and type.
func (r *Repository) ListByWallet(ctx context.Context, walletUUID string, filter ListFilter) ([]Transaction, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM transactions t
		JOIN wallets w ON w.id = t.wallet_id
		WHERE w.uuid = $1
	`

	args := []interface{}{walletUUID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND t.status = $%d", len(args))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND t.transaction_type = $%d", len(args))
	}
	query += " ORDER BY t.created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// LockInStatuses acquires an exclusive lock on the transaction row, matching
// only if its current status is one of statuses. ErrNotFound otherwise: a
// concurrent executor that already moved the row past these statuses makes
// this call miss, which is the guard against double-processing.
func (r *Repository) LockInStatuses(ctx context.Context, tx *sql.Tx, id int64, statuses []string) (*Transaction, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM transactions t
		JOIN wallets w ON w.id = t.wallet_id
		WHERE t.id = $1 AND t.status = ANY($2)
		FOR UPDATE OF t
	`
	return scanTransaction(tx.QueryRowContext(ctx, query, id, pq.Array(statuses)))
}

// MarkProcessing transitions a locked withdrawal into PROCESSING.
func (r *Repository) MarkProcessing(ctx context.Context, tx *sql.Tx, id int64) error {
	query := `
		UPDATE transactions
		SET status = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2
	`
	if _, err := tx.ExecContext(ctx, query, StatusProcessing, id); err != nil {
		return fmt.Errorf("failed to mark transaction processing: %w", err)
	}
	return nil
}

// MarkCompleted records a successful terminal transition.
func (r *Repository) MarkCompleted(ctx context.Context, tx *sql.Tx, id int64, response []byte) error {
	query := `
		UPDATE transactions
		SET status = $1, executed_at = CURRENT_TIMESTAMP,
		    third_party_response = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3
	`
	if _, err := tx.ExecContext(ctx, query, StatusCompleted, response, id); err != nil {
		return fmt.Errorf("failed to mark transaction completed: %w", err)
	}
	return nil
}

// MarkFailed records a failed transition. retry_count is computed in SQL so
// concurrent increments can never lose an update; callers re-read the row
// afterwards. incrementRetry is false for insufficient-balance failures,
// which are not bank-induced.
func (r *Repository) MarkFailed(ctx context.Context, tx *sql.Tx, id int64, response []byte, incrementRetry bool) error {
	increment := 0
	if incrementRetry {
		increment = 1
	}

	query := `
		UPDATE transactions
		SET status = $1, executed_at = CURRENT_TIMESTAMP,
		    third_party_response = $2, retry_count = retry_count + $3,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $4
	`
	if _, err := tx.ExecContext(ctx, query, StatusFailed, response, increment, id); err != nil {
		return fmt.Errorf("failed to mark transaction failed: %w", err)
	}
	return nil
}

// ListDuePendingWithdrawals returns pending withdrawals whose scheduled time
// has arrived. Runs outside any transaction; the executor's status-scoped
// lock makes duplicate dispatch harmless.
func (r *Repository) ListDuePendingWithdrawals(ctx context.Context, now time.Time) ([]Transaction, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM transactions t
		JOIN wallets w ON w.id = t.wallet_id
		WHERE t.transaction_type = $1 AND t.status = $2 AND t.scheduled_for <= $3
		ORDER BY t.scheduled_for ASC
	`

	rows, err := r.db.QueryContext(ctx, query, TypeWithdrawal, StatusPending, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due withdrawals: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// ListFailedRetryable returns failed withdrawals still under the retry cap.
func (r *Repository) ListFailedRetryable(ctx context.Context, maxRetries int) ([]Transaction, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM transactions t
		JOIN wallets w ON w.id = t.wallet_id
		WHERE t.transaction_type = $1 AND t.status = $2 AND t.retry_count < $3
		ORDER BY t.updated_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, TypeWithdrawal, StatusFailed, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to list retryable withdrawals: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// WalletExistsByUUID reports whether the wallet exists, without touching the
// wallet package (listing endpoints only need a 404 check).
func (r *Repository) WalletExistsByUUID(ctx context.Context, walletUUID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM wallets WHERE uuid = $1)`, walletUUID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check wallet existence: %w", err)
	}
	return exists, nil
}

func collectTransactions(rows *sql.Rows) ([]Transaction, error) {
	var txs []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}
