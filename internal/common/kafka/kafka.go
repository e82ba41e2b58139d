package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/hamedsh/walletledger/internal/common/config"
	"github.com/hamedsh/walletledger/internal/common/logger"
)

// Producer publishes JSON events. Topics are created by the broker
// (auto.create.topics.enable) or provisioned out of band.
type Producer struct {
	writer  *kafkago.Writer
	brokers []string
	logger  *logger.Logger
}

func NewProducer(cfg config.KafkaConfig, log *logger.Logger) *Producer {
	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer:  writer,
		brokers: cfg.Brokers,
		logger:  log,
	}
}

// PublishEvent marshals payload as JSON and publishes it to topic, keyed so
// events for the same aggregate land on the same partition in order.
func (p *Producer) PublishEvent(ctx context.Context, topic, key string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafkago.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", topic, err)
	}

	p.logger.Debugf("Published event to %s key=%s", topic, key)
	return nil
}

// Ping checks that at least one broker is reachable.
func (p *Producer) Ping(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}

	conn, err := kafkago.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial kafka broker %s: %w", p.brokers[0], err)
	}
	return conn.Close()
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer reads messages from a single topic as part of a consumer group.
type Consumer struct {
	reader *kafkago.Reader
	logger *logger.Logger
}

func NewConsumer(cfg config.KafkaConfig, topic string, log *logger.Logger) *Consumer {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
	})

	return &Consumer{reader: reader, logger: log}
}

// Consume delivers messages to handler until ctx is cancelled. A handler
// error is logged and the message is skipped; offsets are committed by the
// reader either way.
func (c *Consumer) Consume(ctx context.Context, handler func(ctx context.Context, key, value []byte) error) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read message: %w", err)
		}

		if err := handler(ctx, msg.Key, msg.Value); err != nil {
			c.logger.Errorf("Handler failed for message key=%s: %v", string(msg.Key), err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// UnmarshalEvent decodes a consumed JSON payload.
func UnmarshalEvent(value []byte, v interface{}) error {
	return json.Unmarshal(value, v)
}
