package outbox

import (
	"context"
	"time"

	"github.com/hamedsh/walletledger/internal/common/logger"
)

const (
	publishBatchSize   = 100
	publishMaxAttempts = 10
)

// EventPublisher is the slice of the Kafka producer the publisher needs.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic, key string, payload interface{}) error
}

// Publisher periodically drains pending outbox events to Kafka.
type Publisher struct {
	repo     *Repository
	producer EventPublisher
	logger   *logger.Logger
	interval time.Duration
}

func NewPublisher(repo *Repository, producer EventPublisher, log *logger.Logger, interval time.Duration) *Publisher {
	return &Publisher{
		repo:     repo,
		producer: producer,
		logger:   log,
		interval: interval,
	}
}

// Start runs the publish loop until ctx is cancelled.
func (p *Publisher) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.publishPending(ctx); err != nil {
				p.logger.Errorf("Outbox publish cycle failed: %v", err)
			}
		}
	}
}

func (p *Publisher) publishPending(ctx context.Context) error {
	events, err := p.repo.FetchPending(ctx, publishBatchSize)
	if err != nil {
		return err
	}

	for _, event := range events {
		if err := p.producer.PublishEvent(ctx, event.Topic, event.AggregateID, event.Payload); err != nil {
			p.logger.Warnf("Failed to publish outbox event %s: %v", event.ID, err)
			if markErr := p.repo.MarkFailed(ctx, event.ID, err.Error(), publishMaxAttempts); markErr != nil {
				p.logger.Errorf("Failed to record publish failure for %s: %v", event.ID, markErr)
			}
			continue
		}

		if err := p.repo.MarkPublished(ctx, event.ID); err != nil {
			p.logger.Errorf("Failed to mark event %s published: %v", event.ID, err)
		}
	}

	if len(events) > 0 {
		p.logger.Debugf("Outbox cycle processed %d event(s)", len(events))
	}

	return nil
}
