package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ResumeLens/internal/application/ingest"
	pkgerrors "github.com/turtacn/ResumeLens/pkg/errors"
)

var _ ingest.StreamSource = (*Consumer)(nil)

type mockKafkaReader struct {
	fetchFunc  func(ctx context.Context) (kafka.Message, error)
	commitFunc func(ctx context.Context, msgs ...kafka.Message) error
	closed     bool
}

func (m *mockKafkaReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx)
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (m *mockKafkaReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.commitFunc != nil {
		return m.commitFunc(ctx, msgs...)
	}
	return nil
}

func (m *mockKafkaReader) Close() error {
	m.closed = true
	return nil
}

// queuedReader returns values in order and then blocks until the fetch
// context ends.
func queuedReader(values ...string) *mockKafkaReader {
	i := 0
	return &mockKafkaReader{fetchFunc: func(ctx context.Context) (kafka.Message, error) {
		if i < len(values) {
			i++
			return kafka.Message{Offset: int64(i - 1), Value: []byte(values[i-1])}, nil
		}
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}}
}

func newTestConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Brokers:     []string{"localhost:9092"},
		GroupID:     "test-group",
		IdleTimeout: 20 * time.Millisecond,
	}
}

func newTestConsumer(t *testing.T, cfg ConsumerConfig, r *mockKafkaReader) *Consumer {
	t.Helper()
	c, err := NewConsumerWithReader(cfg, func(string) ReaderInterface { return r }, nil)
	require.NoError(t, err)
	return c
}

func TestValidateConsumerConfig(t *testing.T) {
	assert.NoError(t, ValidateConsumerConfig(newTestConsumerConfig()))

	cfg := newTestConsumerConfig()
	cfg.Brokers = nil
	assert.True(t, pkgerrors.IsCode(ValidateConsumerConfig(cfg), pkgerrors.ErrCodeValidation))

	cfg = newTestConsumerConfig()
	cfg.GroupID = ""
	assert.Error(t, ValidateConsumerConfig(cfg))

	cfg = newTestConsumerConfig()
	cfg.MaxMessages = -1
	assert.Error(t, ValidateConsumerConfig(cfg))
}

func TestNewConsumer_Defaults(t *testing.T) {
	cfg := newTestConsumerConfig()
	cfg.IdleTimeout = 0
	c, err := NewConsumer(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultIdleTimeout, c.config.IdleTimeout)
	assert.Equal(t, 1, c.config.MinBytes)
}

func TestConsumer_FetchDrainsUntilIdle(t *testing.T) {
	r := queuedReader(`{"id":1}`, `{"id":2}`, `{"id":3}`)
	var committed []kafka.Message
	r.commitFunc = func(_ context.Context, msgs ...kafka.Message) error {
		committed = msgs
		return nil
	}
	c := newTestConsumer(t, newTestConsumerConfig(), r)

	values, err := c.Fetch(context.Background(), "tasks")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte(`{"id":1}`), []byte(`{"id":2}`), []byte(`{"id":3}`)}, values)
	assert.Len(t, committed, 3)
	assert.True(t, r.closed)
}

func TestConsumer_FetchMaxMessages(t *testing.T) {
	r := queuedReader("a", "b", "c")
	cfg := newTestConsumerConfig()
	cfg.MaxMessages = 2
	c := newTestConsumer(t, cfg, r)

	values, err := c.Fetch(context.Background(), "tasks")
	require.NoError(t, err)
	assert.Len(t, values, 2)
}

func TestConsumer_FetchEmptyTopic(t *testing.T) {
	committed := false
	r := queuedReader()
	r.commitFunc = func(context.Context, ...kafka.Message) error {
		committed = true
		return nil
	}
	c := newTestConsumer(t, newTestConsumerConfig(), r)

	values, err := c.Fetch(context.Background(), "tasks")
	require.NoError(t, err)
	assert.Empty(t, values)
	assert.False(t, committed)
}

func TestConsumer_FetchErrors(t *testing.T) {
	r := &mockKafkaReader{fetchFunc: func(context.Context) (kafka.Message, error) {
		return kafka.Message{}, errors.New("broker unreachable")
	}}
	c := newTestConsumer(t, newTestConsumerConfig(), r)

	_, err := c.Fetch(context.Background(), "tasks")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeMessagingError))

	_, err = c.Fetch(context.Background(), "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeValidation))
}

func TestConsumer_FetchCommitError(t *testing.T) {
	r := queuedReader("a")
	r.commitFunc = func(context.Context, ...kafka.Message) error { return errors.New("rebalance") }
	c := newTestConsumer(t, newTestConsumerConfig(), r)

	_, err := c.Fetch(context.Background(), "tasks")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeMessagingError))
}

func TestConsumer_FetchCancelled(t *testing.T) {
	c := newTestConsumer(t, newTestConsumerConfig(), queuedReader())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Fetch(ctx, "tasks")
	assert.ErrorIs(t, err, context.Canceled)
}
