// Package kafka drains task records from and publishes prelabel tasks to
// Kafka topics.
package kafka

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/ResumeLens/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ResumeLens/pkg/errors"
)

// DefaultIdleTimeout ends a drain when no message arrives for this long.
const DefaultIdleTimeout = 5 * time.Second

// ConsumerConfig holds configuration for the Consumer.
type ConsumerConfig struct {
	Brokers []string
	GroupID string
	// IdleTimeout ends a drain once the topic has been quiet this long.
	IdleTimeout time.Duration
	// MaxMessages caps one drain. Zero means no cap.
	MaxMessages int
	MinBytes    int
	MaxBytes    int
}

// ReaderInterface abstracts kafka.Reader for testing.
type ReaderInterface interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads a topic until it goes idle. It implements the stream
// source used by task ingestion.
type Consumer struct {
	config    ConsumerConfig
	logger    logging.Logger
	newReader func(topic string) ReaderInterface
}

// ValidateConsumerConfig checks the settings a drain needs.
func ValidateConsumerConfig(cfg ConsumerConfig) error {
	if len(cfg.Brokers) == 0 {
		return errors.Validation("brokers", "at least one broker is required")
	}
	if cfg.GroupID == "" {
		return errors.Validation("group_id", "a consumer group is required")
	}
	if cfg.MaxMessages < 0 {
		return errors.Validation("max_messages", "must not be negative")
	}
	return nil
}

// NewConsumer returns a Consumer that opens one reader per Fetch.
func NewConsumer(cfg ConsumerConfig, logger logging.Logger) (*Consumer, error) {
	if err := ValidateConsumerConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.MinBytes == 0 {
		cfg.MinBytes = 1
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = 50 * 1024 * 1024
	}
	c := &Consumer{config: cfg, logger: logging.OrNop(logger).Named("kafka.consumer")}
	c.newReader = func(topic string) ReaderInterface {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.config.Brokers,
			GroupID:     c.config.GroupID,
			Topic:       topic,
			MinBytes:    c.config.MinBytes,
			MaxBytes:    c.config.MaxBytes,
			MaxWait:     c.config.IdleTimeout,
			StartOffset: kafka.FirstOffset,
		})
	}
	return c, nil
}

// NewConsumerWithReader is NewConsumer with a fixed reader factory.
func NewConsumerWithReader(cfg ConsumerConfig, newReader func(topic string) ReaderInterface, logger logging.Logger) (*Consumer, error) {
	c, err := NewConsumer(cfg, logger)
	if err != nil {
		return nil, err
	}
	c.newReader = newReader
	return c, nil
}

// Fetch drains topic and returns every message value in offset order.
// Offsets are committed only after the whole drain succeeded.
func (c *Consumer) Fetch(ctx context.Context, topic string) ([][]byte, error) {
	if topic == "" {
		return nil, errors.Validation("topic", "a topic is required")
	}
	reader := c.newReader(topic)
	defer func() {
		if err := reader.Close(); err != nil {
			c.logger.Warn("failed to close reader", logging.String("topic", topic), logging.Err(err))
		}
	}()

	var (
		values [][]byte
		msgs   []kafka.Message
	)
	for c.config.MaxMessages == 0 || len(values) < c.config.MaxMessages {
		fetchCtx, cancel := context.WithTimeout(ctx, c.config.IdleTimeout)
		msg, err := reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if stderrors.Is(err, context.DeadlineExceeded) {
				break
			}
			return nil, errors.Wrap(err, errors.ErrCodeMessagingError, "fetch message").WithDetail("topic=" + topic)
		}
		values = append(values, msg.Value)
		msgs = append(msgs, msg)
	}

	if len(msgs) > 0 {
		if err := reader.CommitMessages(ctx, msgs...); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeMessagingError, "commit offsets").WithDetail("topic=" + topic)
		}
	}
	c.logger.Info("drained topic", logging.String("topic", topic), logging.Int("messages", len(values)))
	return values, nil
}
