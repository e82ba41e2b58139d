package wallet

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hamedsh/walletledger/internal/common/db"
	"github.com/hamedsh/walletledger/internal/common/logger"
	"github.com/hamedsh/walletledger/internal/common/redis"
	"github.com/hamedsh/walletledger/internal/transaction"
	"github.com/hamedsh/walletledger/pkg/outbox"
)

const (
	TopicWalletCreated   = "wallet.created"
	TopicWalletDeposited = "wallet.deposited"

	balanceCacheTTL     = 10 * time.Minute
	idempotencyCacheTTL = 30 * time.Minute
)

type Service struct {
	repo       *Repository
	txRepo     *transaction.Repository
	outboxRepo *outbox.Repository
	redis      *redis.Client
	db         *db.DB
	logger     *logger.Logger
}

func NewService(
	repo *Repository,
	txRepo *transaction.Repository,
	outboxRepo *outbox.Repository,
	redisClient *redis.Client,
	database *db.DB,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:       repo,
		txRepo:     txRepo,
		outboxRepo: outboxRepo,
		redis:      redisClient,
		db:         database,
		logger:     log,
	}
}

// Create makes a new empty wallet.
func (s *Service) Create(ctx context.Context) (*Wallet, error) {
	var created *Wallet

	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		w, err := s.repo.Create(ctx, tx)
		if err != nil {
			return err
		}
		created = w

		event := &outbox.OutboxEvent{
			AggregateID: w.UUID,
			EventType:   TopicWalletCreated,
			Topic:       TopicWalletCreated,
			Payload: eventPayload(WalletCreatedEvent{
				WalletUUID: w.UUID,
				Timestamp:  time.Now(),
			}),
		}
		return s.outboxRepo.SaveEvent(ctx, tx, event)
	})

	if err != nil {
		return nil, err
	}

	s.logger.Infof("Wallet created: %s", created.UUID)
	return created, nil
}

// Get retrieves a wallet, preferring the cached balance.
func (s *Service) Get(ctx context.Context, walletUUID string) (*Wallet, error) {
	cached, ok, err := s.redis.GetCachedWalletBalance(ctx, walletUUID)
	if err != nil {
		s.logger.Warnf("Balance cache read failed for %s: %v", walletUUID, err)
	}

	w, err := s.repo.FindByUUID(ctx, walletUUID)
	if err != nil {
		return nil, err
	}

	if ok {
		w.Balance = cached
		return w, nil
	}

	if err := s.redis.CacheWalletBalance(ctx, walletUUID, w.Balance, balanceCacheTTL); err != nil {
		s.logger.Warnf("Failed to cache balance for %s: %v", walletUUID, err)
	}

	return w, nil
}

// Deposit credits the wallet and records a COMPLETED deposit transaction, all
// under the wallet's row lock. The idempotency pre-check is an optimization;
// correctness rests on the unique index, whose violation is caught below.
func (s *Service) Deposit(ctx context.Context, walletUUID string, amount int64, idempotencyKey string) (*transaction.Transaction, error) {
	if err := ValidateAmount(amount); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	if idempotencyKey != "" {
		if existing, err := s.findIdempotentReplay(ctx, walletUUID, amount, idempotencyKey); err != nil {
			return nil, err
		} else if existing != nil {
			return existing, nil
		}
	}

	created, err := s.createDeposit(ctx, walletUUID, amount, idempotencyKey)
	if errors.Is(err, transaction.ErrDuplicateIdempotencyKey) {
		// A concurrent writer with the same key won the insert race.
		winner, lookupErr := s.txRepo.FindByIdempotencyKey(ctx, idempotencyKey)
		if lookupErr != nil {
			return nil, fmt.Errorf("failed to resolve idempotency conflict: %w", lookupErr)
		}
		s.logger.Infof("Idempotent deposit request (concurrent): key=%s tx=%d", idempotencyKey, winner.ID)
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
	s.redis.InvalidateWalletBalance(ctx, walletUUID)

	s.logger.Infof("Deposit completed: wallet=%s amount=%d tx=%d idempotency_key=%s",
		walletUUID, amount, created.ID, idempotencyKey)
	return created, nil
}

func (s *Service) createDeposit(ctx context.Context, walletUUID string, amount int64, idempotencyKey string) (*transaction.Transaction, error) {
	var created *transaction.Transaction

	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		w, err := s.repo.LockByUUID(ctx, tx, walletUUID)
		if err != nil {
			return err
		}

		if err := s.repo.AddBalance(ctx, tx, w.ID, amount); err != nil {
			return err
		}

		now := time.Now()
		t := &transaction.Transaction{
			WalletID:   w.ID,
			WalletUUID: w.UUID,
			Amount:     amount,
			Type:       transaction.TypeDeposit,
			Status:     transaction.StatusCompleted,
			ExecutedAt: &now,
		}
		if idempotencyKey != "" {
			t.IdempotencyKey = &idempotencyKey
		}

		if err := s.txRepo.Create(ctx, tx, t); err != nil {
			return err
		}

		event := &outbox.OutboxEvent{
			AggregateID: w.UUID,
			EventType:   TopicWalletDeposited,
			Topic:       TopicWalletDeposited,
			Payload: eventPayload(WalletDepositedEvent{
				WalletUUID:    w.UUID,
				TransactionID: t.ID,
				Amount:        amount,
				Timestamp:     now,
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

// findIdempotentReplay returns the stored transaction for the key, if any.
// Mismatched parameters are logged and the stored row still wins; the key,
// not the payload, identifies the logical request.
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
