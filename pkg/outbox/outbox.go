package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hamedsh/walletledger/internal/common/logger"
)

const (
	StatusPending   = "pending"
	StatusPublished = "published"
	StatusFailed    = "failed"
)

// OutboxEvent is a domain event persisted in the same transaction as the
// state change it describes. The publisher drains pending events to Kafka, so
// a broker outage never blocks or breaks a ledger write.
type OutboxEvent struct {
	ID          string
	AggregateID string
	EventType   string
	Topic       string
	Payload     map[string]interface{}
	Status      string
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	PublishedAt *time.Time
}

type Repository struct {
	db     *sql.DB
	logger *logger.Logger
}

func NewRepository(db *sql.DB, log *logger.Logger) *Repository {
	return &Repository{db: db, logger: log}
}

// SaveEvent inserts the event within the caller's transaction.
func (r *Repository) SaveEvent(ctx context.Context, tx *sql.Tx, event *OutboxEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO outbox_events (aggregate_id, event_type, topic, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, status, created_at
	`

	err = tx.QueryRowContext(ctx, query,
		event.AggregateID,
		event.EventType,
		event.Topic,
		payload,
	).Scan(&event.ID, &event.Status, &event.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}

	return nil
}

// FetchPending returns the oldest pending events, up to limit.
func (r *Repository) FetchPending(ctx context.Context, limit int) ([]OutboxEvent, error) {
	query := `
		SELECT id, aggregate_id, event_type, topic, payload, status, attempts,
		       COALESCE(last_error, ''), created_at, published_at
		FROM outbox_events
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending events: %w", err)
	}
	defer rows.Close()

	var events []OutboxEvent
	for rows.Next() {
		var event OutboxEvent
		var payload []byte

		err := rows.Scan(
			&event.ID,
			&event.AggregateID,
			&event.EventType,
			&event.Topic,
			&payload,
			&event.Status,
			&event.Attempts,
			&event.LastError,
			&event.CreatedAt,
			&event.PublishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}

		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &event.Payload); err != nil {
				r.logger.Warnf("Failed to unmarshal payload for event %s: %v", event.ID, err)
			}
		}

		events = append(events, event)
	}

	return events, rows.Err()
}

// MarkPublished records a successful publish.
func (r *Repository) MarkPublished(ctx context.Context, id string) error {
	query := `
		UPDATE outbox_events
		SET status = $1, published_at = CURRENT_TIMESTAMP, attempts = attempts + 1
		WHERE id = $2
	`

	if _, err := r.db.ExecContext(ctx, query, StatusPublished, id); err != nil {
		return fmt.Errorf("failed to mark event published: %w", err)
	}
	return nil
}

// MarkFailed records a publish failure; the event stays pending until the
// attempt budget is spent.
func (r *Repository) MarkFailed(ctx context.Context, id, lastError string, maxAttempts int) error {
	query := `
		UPDATE outbox_events
		SET attempts = attempts + 1,
		    last_error = $1,
		    status = CASE WHEN attempts + 1 >= $2 THEN 'failed' ELSE status END
		WHERE id = $3
	`

	if _, err := r.db.ExecContext(ctx, query, lastError, maxAttempts, id); err != nil {
		return fmt.Errorf("failed to mark event failed: %w", err)
	}
	return nil
}
