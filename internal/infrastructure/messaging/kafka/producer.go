package kafka

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"github.com/turtacn/ResumeLens/internal/application/prelabel"
	"github.com/turtacn/ResumeLens/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ResumeLens/pkg/errors"
)

var ErrProducerClosed = errors.New(errors.ErrCodeMessagingError, "producer closed")

// contentTypeHeader marks every published value as JSON.
var contentTypeHeader = kafka.Header{Key: "content-type", Value: []byte("application/json")}

// ProducerConfig holds configuration for the Producer.
type ProducerConfig struct {
	Brokers          []string
	Topic            string
	BatchSize        int
	BatchTimeout     time.Duration
	WriteTimeout     time.Duration
	CompressionCodec string
}

// WriterInterface abstracts kafka.Writer for testing.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes to one topic.
type Producer struct {
	writer WriterInterface
	config ProducerConfig
	logger logging.Logger
	closed atomic.Bool
	sent   atomic.Int64
}

var _ prelabel.Publisher = (*Producer)(nil)

// ValidateProducerConfig checks brokers, topic and codec.
func ValidateProducerConfig(cfg ProducerConfig) error {
	if len(cfg.Brokers) == 0 {
		return errors.Validation("brokers", "at least one broker is required")
	}
	if cfg.Topic == "" {
		return errors.Validation("topic", "a topic is required")
	}
	if _, err := parseCompression(cfg.CompressionCodec); err != nil {
		return err
	}
	return nil
}

func parseCompression(codec string) (compress.Compression, error) {
	switch strings.ToLower(codec) {
	case "", "none":
		return compress.None, nil
	case "gzip":
		return compress.Gzip, nil
	case "snappy":
		return compress.Snappy, nil
	case "lz4":
		return compress.Lz4, nil
	case "zstd":
		return compress.Zstd, nil
	default:
		return compress.None, errors.Validation("compression_codec", "unknown codec "+codec)
	}
}

// NewProducer returns a Producer backed by a kafka.Writer.
func NewProducer(cfg ProducerConfig, logger logging.Logger) (*Producer, error) {
	if err := ValidateProducerConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	codec, _ := parseCompression(cfg.CompressionCodec)

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireAll,
		Compression:  codec,
	}
	return NewProducerWithWriter(w, cfg, logger), nil
}

// NewProducerWithWriter wraps an existing writer.
func NewProducerWithWriter(w WriterInterface, cfg ProducerConfig, logger logging.Logger) *Producer {
	return &Producer{writer: w, config: cfg, logger: logging.OrNop(logger).Named("kafka.producer")}
}

// Publish writes msgs synchronously in one batch.
func (p *Producer) Publish(ctx context.Context, msgs ...prelabel.Message) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if len(msgs) == 0 {
		return nil
	}
	out := make([]kafka.Message, len(msgs))
	for i, m := range msgs {
		out[i] = kafka.Message{Key: m.Key, Value: m.Value, Headers: []kafka.Header{contentTypeHeader}}
	}
	start := time.Now()
	if err := p.writer.WriteMessages(ctx, out...); err != nil {
		return errors.Wrap(err, errors.ErrCodeMessagingError, "publish").WithDetail("topic=" + p.config.Topic)
	}
	p.sent.Add(int64(len(out)))
	p.logger.Info("published messages",
		logging.String("topic", p.config.Topic),
		logging.Int("messages", len(out)),
		logging.Duration("took", time.Since(start)),
	)
	return nil
}

// Sent returns the number of messages written so far.
func (p *Producer) Sent() int64 { return p.sent.Load() }

func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeMessagingError, "close writer")
	}
	return nil
}
