package withdrawal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hamedsh/walletledger/internal/bank"
	"github.com/hamedsh/walletledger/internal/common/db"
	"github.com/hamedsh/walletledger/internal/common/logger"
	"github.com/hamedsh/walletledger/internal/common/redis"
	"github.com/hamedsh/walletledger/internal/transaction"
	"github.com/hamedsh/walletledger/internal/wallet"
	"github.com/hamedsh/walletledger/pkg/outbox"
)

const (
	TopicWithdrawalScheduled = "withdrawal.scheduled"
	TopicWithdrawalSettled   = "withdrawal.settled"

	idempotencyCacheTTL = 30 * time.Minute
)

var insufficientBalanceResponse = []byte(`{"error": "Insufficient balance"}`)

// BankClient is the third-party deposit call the executor makes while the
// wallet row is locked. The concrete client lives in internal/bank.
type BankClient interface {
	RequestDeposit(ctx context.Context, walletUUID string, amount int64) bank.Result
}

type Service struct {
	walletRepo *wallet.Repository
	txRepo     *transaction.Repository
	outboxRepo *outbox.Repository
	bank       BankClient
	redis      *redis.Client
	db         *db.DB
	logger     *logger.Logger
}

func NewService(
	walletRepo *wallet.Repository,
	txRepo *transaction.Repository,
	outboxRepo *outbox.Repository,
	bankClient BankClient,
	redisClient *redis.Client,
	database *db.DB,
	log *logger.Logger,
) *Service {
	return &Service{
		walletRepo: walletRepo,
		txRepo:     txRepo,
		outboxRepo: outboxRepo,
		bank:       bankClient,
		redis:      redisClient,
		db:         database,
		logger:     log,
	}
}

// Schedule records a future withdrawal as a PENDING transaction. The wallet's
// balance is deliberately not checked here: sufficiency is only decidable at
// execution time, under the wallet lock.
func (s *Service) Schedule(ctx context.Context, walletUUID string, amount int64, scheduledFor time.Time, idempotencyKey string) (*transaction.Transaction, error) {
	if err := ValidateRequest(amount, scheduledFor, time.Now()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	if idempotencyKey != "" {
		if existing, err := s.findIdempotentReplay(ctx, walletUUID, amount, idempotencyKey); err != nil {
			return nil, err
		} else if existing != nil {
			return existing, nil
		}
	}

	created, err := s.createWithdrawal(ctx, walletUUID, amount, scheduledFor, idempotencyKey)
	if errors.Is(err, transaction.ErrDuplicateIdempotencyKey) {
		winner, lookupErr := s.txRepo.FindByIdempotencyKey(ctx, idempotencyKey)
		if lookupErr != nil {
			return nil, fmt.Errorf("failed to resolve idempotency conflict: %w", lookupErr)
		}
		s.logger.Infof("Idempotent withdrawal request (concurrent): key=%s tx=%d", idempotencyKey, winner.ID)
		return winner, nil
	}
	if err != nil {
		return nil, err
	}

	if idempotencyKey != "" {
		if err := s.redis.CacheIdempotentTransaction(ctx, idempotencyKey, created.ID, idempotencyCacheTTL); err != nil {
			s.logger.Warnf("Failed to cache idempotency key %s: %v", idempotencyKey, err)
		}
	}

	s.logger.Infof("Withdrawal scheduled: wallet=%s amount=%d scheduled_for=%s tx=%d",
		walletUUID, amount, scheduledFor.Format(time.RFC3339), created.ID)
	return created, nil
}

func (s *Service) createWithdrawal(ctx context.Context, walletUUID string, amount int64, scheduledFor time.Time, idempotencyKey string) (*transaction.Transaction, error) {
	var created *transaction.Transaction

	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		// No lock: scheduling never touches the balance.
		w, err := s.walletRepo.FindByUUID(ctx, walletUUID)
		if err != nil {
			return err
		}

		t := &transaction.Transaction{
			WalletID:     w.ID,
			WalletUUID:   w.UUID,
			Amount:       amount,
			Type:         transaction.TypeWithdrawal,
			Status:       transaction.StatusPending,
			ScheduledFor: &scheduledFor,
		}
		if idempotencyKey != "" {
			t.IdempotencyKey = &idempotencyKey
		}

		if err := s.txRepo.Create(ctx, tx, t); err != nil {
			return err
		}

		event := &outbox.OutboxEvent{
			AggregateID: w.UUID,
			EventType:   TopicWithdrawalScheduled,
			Topic:       TopicWithdrawalScheduled,
			Payload: eventPayload(transaction.WithdrawalScheduledEvent{
				TransactionID: t.ID,
				WalletUUID:    w.UUID,
				Amount:        amount,
				ScheduledFor:  scheduledFor,
				Timestamp:     time.Now(),
			}),
		}
		if err := s.outboxRepo.SaveEvent(ctx, tx, event); err != nil {
			return err
		}

		created = t
		return nil
	})

	if err != nil {
		return nil, err
	}
	return created, nil
}

// Execute settles one due withdrawal inside a single database transaction:
// lock the transaction row (only in PENDING or FAILED), lock the wallet, debit,
// call the bank, and either commit the debit or compensate it. Holding the
// wallet lock across the bank call serializes all balance movement for the
// wallet, so the sufficiency check can never be invalidated mid-flight.
//
// Settled outcomes (COMPLETED, or FAILED for insufficient balance or a bank
// rejection) return the final row with a nil error. An error return means the
// attempt itself broke and nothing was committed.
func (s *Service) Execute(ctx context.Context, id int64) (*transaction.Transaction, error) {
	var settled *transaction.Transaction
	var debited bool

	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		t, err := s.txRepo.LockInStatuses(ctx, tx, id, []string{
			transaction.StatusPending, transaction.StatusFailed,
		})
		if err != nil {
			return err
		}

		if err := s.txRepo.MarkProcessing(ctx, tx, t.ID); err != nil {
			return err
		}

		w, err := s.walletRepo.LockByID(ctx, tx, t.WalletID)
		if err != nil {
			return err
		}

		if w.Balance < t.Amount {
			s.logger.Warnf("Withdrawal %d failed: insufficient balance (wallet=%s balance=%d amount=%d)",
				t.ID, w.UUID, w.Balance, t.Amount)
			// Not a bank failure, so the retry budget is untouched; the row
			// stays eligible and succeeds once deposits arrive.
			if err := s.txRepo.MarkFailed(ctx, tx, t.ID, insufficientBalanceResponse, false); err != nil {
				return err
			}
			return s.finishExecute(ctx, tx, t.ID, w.UUID, &settled)
		}

		if err := s.walletRepo.AddBalance(ctx, tx, w.ID, -t.Amount); err != nil {
			return err
		}
		debited = true

		result := s.bank.RequestDeposit(ctx, w.UUID, t.Amount)
		if result.Success {
			if err := s.txRepo.MarkCompleted(ctx, tx, t.ID, result.Response); err != nil {
				return err
			}
			return s.finishExecute(ctx, tx, t.ID, w.UUID, &settled)
		}

		// Compensate the debit before recording the failure; both land in the
		// same commit, so no observer ever sees the money gone.
		if err := s.walletRepo.AddBalance(ctx, tx, w.ID, t.Amount); err != nil {
			return err
		}
		if err := s.txRepo.MarkFailed(ctx, tx, t.ID, result.Response, true); err != nil {
			return err
		}
		return s.finishExecute(ctx, tx, t.ID, w.UUID, &settled)
	})

	if err != nil {
		return nil, err
	}

	if debited && settled.Status == transaction.StatusCompleted {
		s.redis.InvalidateWalletBalance(ctx, settled.WalletUUID)
	}

	s.logger.Infof("Withdrawal %d settled: status=%s retry_count=%d", settled.ID, settled.Status, settled.RetryCount)
	return settled, nil
}

// finishExecute re-reads the settled row through the open transaction and
// queues the settlement event in the same commit.
func (s *Service) finishExecute(ctx context.Context, tx *sql.Tx, id int64, walletUUID string, out **transaction.Transaction) error {
	t, err := s.txRepo.FindByIDTx(ctx, tx, id)
	if err != nil {
		return err
	}

	event := &outbox.OutboxEvent{
		AggregateID: walletUUID,
		EventType:   TopicWithdrawalSettled,
		Topic:       TopicWithdrawalSettled,
		Payload: eventPayload(transaction.WithdrawalSettledEvent{
			TransactionID: t.ID,
			WalletUUID:    walletUUID,
			Amount:        t.Amount,
			Status:        t.Status,
			RetryCount:    t.RetryCount,
			Timestamp:     time.Now(),
		}),
	}
	if err := s.outboxRepo.SaveEvent(ctx, tx, event); err != nil {
		return err
	}

	*out = t
	return nil
}

func (s *Service) findIdempotentReplay(ctx context.Context, walletUUID string, amount int64, key string) (*transaction.Transaction, error) {
	if id, ok, err := s.redis.GetIdempotentTransaction(ctx, key); err != nil {
		s.logger.Warnf("Idempotency cache read failed for %s: %v", key, err)
	} else if ok {
		existing, err := s.txRepo.FindByID(ctx, id)
		if err == nil {
			s.warnOnMismatch(existing, walletUUID, amount, key)
			return existing, nil
		}
		if !errors.Is(err, transaction.ErrNotFound) {
			return nil, err
		}
	}

	existing, err := s.txRepo.FindByIdempotencyKey(ctx, key)
	if errors.Is(err, transaction.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.warnOnMismatch(existing, walletUUID, amount, key)
	s.logger.Infof("Idempotent request replay: key=%s tx=%d", key, existing.ID)

	if cacheErr := s.redis.CacheIdempotentTransaction(ctx, key, existing.ID, idempotencyCacheTTL); cacheErr != nil {
		s.logger.Warnf("Failed to cache idempotency key %s: %v", key, cacheErr)
	}
	return existing, nil
}

func (s *Service) warnOnMismatch(existing *transaction.Transaction, walletUUID string, amount int64, key string) {
	if existing.Amount != amount || existing.WalletUUID != walletUUID {
		s.logger.Warnf(
			"Idempotency conflict: key=%s existing_amount=%d new_amount=%d existing_wallet=%s new_wallet=%s",
			key, existing.Amount, amount, existing.WalletUUID, walletUUID,
		)
	}
}

func eventPayload(v interface{}) map[string]interface{} {
	data, _ := json.Marshal(v)
	var m map[string]interface{}
	json.Unmarshal(data, &m)
	return m
}
