package outbox

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/hamedsh/walletledger/internal/common/config"
	"github.com/hamedsh/walletledger/internal/common/db"
	"github.com/hamedsh/walletledger/internal/common/logger"
)

func setupTestRepo(t *testing.T) (*Repository, *db.DB) {
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
		return nil, nil
	}

	schema := `
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

	TRUNCATE outbox_events;
	`
	if _, err := database.Exec(schema); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		database.Exec("TRUNCATE outbox_events")
		database.Close()
	})

	return NewRepository(database.DB, log), database
}

func saveTestEvent(t *testing.T, repo *Repository, database *db.DB, topic string) *OutboxEvent {
	t.Helper()
	event := &OutboxEvent{
		AggregateID: "wallet-1",
		EventType:   topic,
		Topic:       topic,
		Payload:     map[string]interface{}{"amount": float64(100)},
	}
	err := database.WithTransaction(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		return repo.SaveEvent(ctx, tx, event)
	})
	if err != nil {
		t.Fatalf("Failed to save event: %v", err)
	}
	return event
}

func TestRepositorySaveAndFetch(t *testing.T) {
	repo, database := setupTestRepo(t)
	if repo == nil {
		return
	}

	event := saveTestEvent(t, repo, database, "wallet.deposited")
	if event.ID == "" {
		t.Fatal("Expected an id after save")
	}
	if event.Status != StatusPending {
		t.Errorf("Expected status pending, got %s", event.Status)
	}

	pending, err := repo.FetchPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("FetchPending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending event, got %d", len(pending))
	}
	if pending[0].Topic != "wallet.deposited" {
		t.Errorf("Expected topic wallet.deposited, got %s", pending[0].Topic)
	}
	if pending[0].Payload["amount"] != float64(100) {
		t.Errorf("Expected payload round-trip, got %v", pending[0].Payload)
	}
}

func TestRepositoryMarkPublished(t *testing.T) {
	repo, database := setupTestRepo(t)
	if repo == nil {
		return
	}

	event := saveTestEvent(t, repo, database, "wallet.created")
	ctx := context.Background()

	if err := repo.MarkPublished(ctx, event.ID); err != nil {
		t.Fatalf("MarkPublished failed: %v", err)
	}

	pending, err := repo.FetchPending(ctx, 10)
	if err != nil {
		t.Fatalf("FetchPending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Expected no pending events after publish, got %d", len(pending))
	}
}

func TestRepositoryMarkFailedExhaustsBudget(t *testing.T) {
	repo, database := setupTestRepo(t)
	if repo == nil {
		return
	}

	event := saveTestEvent(t, repo, database, "withdrawal.settled")
	ctx := context.Background()

	// Below the attempt budget the event stays pending.
	if err := repo.MarkFailed(ctx, event.ID, "broker unreachable", 2); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	pending, err := repo.FetchPending(ctx, 10)
	if err != nil {
		t.Fatalf("FetchPending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected event still pending after 1 of 2 attempts, got %d", len(pending))
	}
	if pending[0].Attempts != 1 || pending[0].LastError != "broker unreachable" {
		t.Errorf("Expected attempt recorded, got %+v", pending[0])
	}

	// The second failure spends the budget.
	if err := repo.MarkFailed(ctx, event.ID, "broker unreachable", 2); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	pending, err = repo.FetchPending(ctx, 10)
	if err != nil {
		t.Fatalf("FetchPending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Expected event dropped from pending at the attempt cap, got %d", len(pending))
	}
}

type fakeProducer struct {
	published []string
	err       error
}

func (f *fakeProducer) PublishEvent(ctx context.Context, topic, key string, payload interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, topic)
	return nil
}

func TestPublisherDrainsPending(t *testing.T) {
	repo, database := setupTestRepo(t)
	if repo == nil {
		return
	}

	saveTestEvent(t, repo, database, "wallet.created")
	saveTestEvent(t, repo, database, "wallet.deposited")

	producer := &fakeProducer{}
	publisher := NewPublisher(repo, producer, logger.New("test"), time.Second)

	if err := publisher.publishPending(context.Background()); err != nil {
		t.Fatalf("publishPending failed: %v", err)
	}

	if len(producer.published) != 2 {
		t.Fatalf("Expected 2 events published, got %d", len(producer.published))
	}

	pending, err := repo.FetchPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("FetchPending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Expected no pending events after drain, got %d", len(pending))
	}
}

func TestPublisherRecordsFailures(t *testing.T) {
	repo, database := setupTestRepo(t)
	if repo == nil {
		return
	}

	saveTestEvent(t, repo, database, "wallet.created")

	producer := &fakeProducer{err: errors.New("broker down")}
	publisher := NewPublisher(repo, producer, logger.New("test"), time.Second)

	if err := publisher.publishPending(context.Background()); err != nil {
		t.Fatalf("publishPending failed: %v", err)
	}

	pending, err := repo.FetchPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("FetchPending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected event still pending after one failure, got %d", len(pending))
	}
	if pending[0].Attempts != 1 || pending[0].LastError != "broker down" {
		t.Errorf("Expected failure recorded, got %+v", pending[0])
	}
}
