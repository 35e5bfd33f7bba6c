package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ResumeLens/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/ResumeLens/pkg/errors"
)

func newMockClient(t *testing.T) (*Client, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	t.Cleanup(func() { assert.NoError(t, mock.ExpectationsWereMet()) })
	return &Client{rdb: db, config: &RedisConfig{}, logger: logging.NewNopLogger()}, mock
}

func TestMutex_TryLockAndUnlock(t *testing.T) {
	client, mock := newMockClient(t)
	m := NewMutex(client, "corpus:./out", time.Minute)
	assert.Equal(t, "resumelens:lock:corpus:./out", m.Key())

	mock.ExpectSetNX(m.Key(), m.value, time.Minute).SetVal(true)
	mock.ExpectEvalSha(unlockScript.Hash(), []string{m.Key()}, m.value).SetVal(int64(1))

	require.NoError(t, m.TryLock(context.Background()))
	require.NoError(t, m.Unlock(context.Background()))
}

func TestMutex_HeldElsewhere(t *testing.T) {
	client, mock := newMockClient(t)
	m := NewMutex(client, "corpus:./out", 0)

	mock.ExpectSetNX(m.Key(), m.value, DefaultLockTTL).SetVal(false)

	err := m.TryLock(context.Background())
	assert.ErrorIs(t, err, ErrLockNotAcquired)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeConflict))
}

func TestMutex_UnlockNotHeld(t *testing.T) {
	client, mock := newMockClient(t)
	m := NewMutex(client, "x", time.Minute)

	mock.ExpectEvalSha(unlockScript.Hash(), []string{m.Key()}, m.value).SetVal(int64(0))

	assert.ErrorIs(t, m.Unlock(context.Background()), ErrLockNotHeld)
}

func TestMutex_DistinctOwners(t *testing.T) {
	client, _ := newMockClient(t)
	a := NewMutex(client, "x", 0)
	b := NewMutex(client, "x", 0)
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.value, b.value)
}
