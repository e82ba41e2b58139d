package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hamedsh/walletledger/internal/common/config"
	"github.com/hamedsh/walletledger/internal/common/db"
	"github.com/hamedsh/walletledger/internal/common/logger"
	"github.com/hamedsh/walletledger/internal/common/redis"
	"github.com/hamedsh/walletledger/internal/transaction"
	"github.com/hamedsh/walletledger/pkg/outbox"
)

func setupTestService(t *testing.T) (*Service, *db.DB, *redis.Client) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	dbCfg := config.DatabaseConfig{
		Host:            "localhost",
		Port:            "5432",
		User:            "postgres",
		Password:        "postgres",
		DBName:          "walletledger_test",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}

	log := logger.New("test")
	database, err := db.Connect(dbCfg, log)
	if err != nil {
		t.Skipf("Cannot connect to database: %v", err)
		return nil, nil, nil
	}

	schema := `
	CREATE TABLE IF NOT EXISTS wallets (
		id BIGSERIAL PRIMARY KEY,
		uuid UUID NOT NULL UNIQUE,
		balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id BIGSERIAL PRIMARY KEY,
		wallet_id BIGINT NOT NULL REFERENCES wallets(id) ON DELETE CASCADE,
		amount BIGINT NOT NULL CHECK (amount > 0),
		transaction_type VARCHAR(10) NOT NULL,
		status VARCHAR(10) NOT NULL DEFAULT 'PENDING',
		scheduled_for TIMESTAMPTZ,
		executed_at TIMESTAMPTZ,
		third_party_response JSONB,
		retry_count INTEGER NOT NULL DEFAULT 0,
		idempotency_key UUID UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS outbox_events (
		id BIGSERIAL PRIMARY KEY,
		aggregate_id VARCHAR(64) NOT NULL,
		event_type VARCHAR(64) NOT NULL,
		topic VARCHAR(64) NOT NULL,
		payload JSONB NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		published_at TIMESTAMPTZ
	);

	TRUNCATE wallets, transactions, outbox_events CASCADE;
	`
	if _, err := database.Exec(schema); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	redisCfg := config.RedisConfig{
		Host: "localhost",
		Port: "6379",
	}
	redisClient, err := redis.Connect(redisCfg, log)
	if err != nil {
		t.Skipf("Cannot connect to Redis: %v", err)
		return nil, nil, nil
	}

	repo := NewRepository(database, log)
	txRepo := transaction.NewRepository(database, log)
	outboxRepo := outbox.NewRepository(database.DB, log)
	service := NewService(repo, txRepo, outboxRepo, redisClient, database, log)

	return service, database, redisClient
}

func cleanupTestService(database *db.DB, redisClient *redis.Client) {
	if database != nil {
		database.Exec("TRUNCATE wallets, transactions, outbox_events CASCADE")
		database.Close()
	}
	if redisClient != nil {
		redisClient.FlushDB(context.Background())
		redisClient.Close()
	}
}

func TestServiceCreateAndGet(t *testing.T) {
	service, database, redisClient := setupTestService(t)
	if service == nil {
		return
	}
	defer cleanupTestService(database, redisClient)

	ctx := context.Background()

	created, err := service.Create(ctx)
	if err != nil {
		t.Fatalf("Failed to create wallet: %v", err)
	}
	if created.UUID == "" {
		t.Fatal("Expected a uuid on the created wallet")
	}
	if created.Balance != 0 {
		t.Errorf("Expected zero balance, got %d", created.Balance)
	}

	got, err := service.Get(ctx, created.UUID)
	if err != nil {
		t.Fatalf("Failed to get wallet: %v", err)
	}
	if got.UUID != created.UUID || got.Balance != 0 {
		t.Errorf("Get returned %+v, expected the created wallet", got)
	}

	// Creation must have queued an outbox event in the same commit.
	var events int
	if err := database.QueryRow(
		"SELECT COUNT(*) FROM outbox_events WHERE topic = $1 AND aggregate_id = $2",
		TopicWalletCreated, created.UUID,
	).Scan(&events); err != nil {
		t.Fatalf("Failed to count outbox events: %v", err)
	}
	if events != 1 {
		t.Errorf("Expected 1 wallet.created outbox event, got %d", events)
	}
}

func TestServiceGetUnknownWallet(t *testing.T) {
	service, database, redisClient := setupTestService(t)
	if service == nil {
		return
	}
	defer cleanupTestService(database, redisClient)

	_, err := service.Get(context.Background(), uuid.NewString())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestServiceDeposit(t *testing.T) {
	service, database, redisClient := setupTestService(t)
	if service == nil {
		return
	}
	defer cleanupTestService(database, redisClient)

	ctx := context.Background()
	w, err := service.Create(ctx)
	if err != nil {
		t.Fatalf("Failed to create wallet: %v", err)
	}

	tx, err := service.Deposit(ctx, w.UUID, 1000, "")
	if err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}

	if tx.Type != transaction.TypeDeposit || tx.Status != transaction.StatusCompleted {
		t.Errorf("Expected COMPLETED DEPOSIT, got %s %s", tx.Type, tx.Status)
	}
	if tx.ExecutedAt == nil {
		t.Error("Expected executed_at to be set on a completed deposit")
	}

	got, err := service.Get(ctx, w.UUID)
	if err != nil {
		t.Fatalf("Failed to reload wallet: %v", err)
	}
	if got.Balance != 1000 {
		t.Errorf("Expected balance 1000, got %d", got.Balance)
	}
}

func TestServiceDepositUnknownWallet(t *testing.T) {
	service, database, redisClient := setupTestService(t)
	if service == nil {
		return
	}
	defer cleanupTestService(database, redisClient)

	_, err := service.Deposit(context.Background(), uuid.NewString(), 100, "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestServiceDepositIdempotentReplay(t *testing.T) {
	service, database, redisClient := setupTestService(t)
	if service == nil {
		return
	}
	defer cleanupTestService(database, redisClient)

	ctx := context.Background()
	w, err := service.Create(ctx)
	if err != nil {
		t.Fatalf("Failed to create wallet: %v", err)
	}

	key := uuid.NewString()

	first, err := service.Deposit(ctx, w.UUID, 500, key)
	if err != nil {
		t.Fatalf("First deposit failed: %v", err)
	}

	second, err := service.Deposit(ctx, w.UUID, 500, key)
	if err != nil {
		t.Fatalf("Replayed deposit failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("Expected replay to return transaction %d, got %d", first.ID, second.ID)
	}

	// A mismatched replay still returns the stored row; it must not apply.
	mismatched, err := service.Deposit(ctx, w.UUID, 9999, key)
	if err != nil {
		t.Fatalf("Mismatched replay failed: %v", err)
	}
	if mismatched.ID != first.ID || mismatched.Amount != 500 {
		t.Errorf("Expected stored transaction to win, got %+v", mismatched)
	}

	got, err := service.Get(ctx, w.UUID)
	if err != nil {
		t.Fatalf("Failed to reload wallet: %v", err)
	}
	if got.Balance != 500 {
		t.Errorf("Expected balance credited exactly once (500), got %d", got.Balance)
	}
}

func TestServiceDepositConcurrentSameKey(t *testing.T) {
	service, database, redisClient := setupTestService(t)
	if service == nil {
		return
	}
	defer cleanupTestService(database, redisClient)

	ctx := context.Background()
	w, err := service.Create(ctx)
	if err != nil {
		t.Fatalf("Failed to create wallet: %v", err)
	}

	key := uuid.NewString()
	const concurrency = 8

	var wg sync.WaitGroup
	ids := make([]int64, concurrency)
	errs := make([]error, concurrency)

	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(n int) {
			defer wg.Done()
			tx, err := service.Deposit(ctx, w.UUID, 300, key)
			if err != nil {
				errs[n] = err
				return
			}
			ids[n] = tx.ID
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Concurrent deposit %d failed: %v", i, err)
		}
	}
	for i := 1; i < concurrency; i++ {
		if ids[i] != ids[0] {
			t.Errorf("Expected all callers to see transaction %d, caller %d saw %d", ids[0], i, ids[i])
		}
	}

	got, err := service.Get(ctx, w.UUID)
	if err != nil {
		t.Fatalf("Failed to reload wallet: %v", err)
	}
	if got.Balance != 300 {
		t.Errorf("Expected balance credited exactly once (300), got %d", got.Balance)
	}
}

func TestServiceDepositConcurrentNoLostUpdates(t *testing.T) {
	service, database, redisClient := setupTestService(t)
	if service == nil {
		return
	}
	defer cleanupTestService(database, redisClient)

	ctx := context.Background()
	w, err := service.Create(ctx)
	if err != nil {
		t.Fatalf("Failed to create wallet: %v", err)
	}

	const concurrency = 10

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			if _, err := service.Deposit(ctx, w.UUID, 100, ""); err != nil {
				t.Errorf("Concurrent deposit failed: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := service.Get(ctx, w.UUID)
	if err != nil {
		t.Fatalf("Failed to reload wallet: %v", err)
	}
	if got.Balance != concurrency*100 {
		t.Errorf("Expected balance %d, got %d", concurrency*100, got.Balance)
	}
}
