package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/ResumeLens/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/ResumeLens/pkg/errors"
)

type CacheTestSuite struct {
	suite.Suite
	client *Client
	mock   redismock.ClientMock
	cache  *Cache
}

func (s *CacheTestSuite) SetupTest() {
	db, mock := redismock.NewClientMock()
	s.mock = mock
	s.client = &Client{rdb: db, config: &RedisConfig{}, logger: logging.NewNopLogger()}
	s.cache = NewCache(s.client, logging.NewNopLogger(), WithPrefix("test:"), WithDefaultTTL(time.Hour))
}

func (s *CacheTestSuite) TearDownTest() {
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
}

type entities struct {
	Skill []string `json:"Skill"`
}

func (s *CacheTestSuite) TestGet_Hit() {
	val := entities{Skill: []string{"Go", "Docker"}}
	data, _ := json.Marshal(val)
	s.mock.ExpectGet("test:soft_break:regex_v1:abc").SetVal(string(data))

	var dest entities
	err := s.cache.Get(context.Background(), "soft_break:regex_v1:abc", &dest)
	s.NoError(err)
	s.Equal(val, dest)
}

func (s *CacheTestSuite) TestGet_Miss() {
	s.mock.ExpectGet("test:missing").RedisNil()

	var dest entities
	err := s.cache.Get(context.Background(), "missing", &dest)
	s.ErrorIs(err, ErrCacheMiss)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeNotFound))
}

func (s *CacheTestSuite) TestGet_ServerError() {
	s.mock.ExpectGet("test:k").SetErr(fmt.Errorf("connection reset"))

	var dest entities
	err := s.cache.Get(context.Background(), "k", &dest)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeCacheError))
}

func (s *CacheTestSuite) TestGet_CorruptValue() {
	s.mock.ExpectGet("test:k").SetVal("{not json")

	var dest entities
	err := s.cache.Get(context.Background(), "k", &dest)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeSerialization))
}

func (s *CacheTestSuite) TestSet_JitteredTTL() {
	val := entities{Skill: []string{"Python"}}
	data, _ := json.Marshal(val)

	s.mock.CustomMatch(func(expected, actual []interface{}) error {
		if len(actual) < 3 {
			return fmt.Errorf("short command %v", actual)
		}
		if actual[0] != "set" || actual[1] != "test:k" {
			return fmt.Errorf("unexpected command %v", actual)
		}
		got, ok := actual[2].([]byte)
		if !ok || string(got) != string(data) {
			return fmt.Errorf("unexpected value %v", actual[2])
		}
		return nil
	}).ExpectSet("test:k", data, time.Hour).SetVal("OK")

	s.NoError(s.cache.Set(context.Background(), "k", val, 0))
}

func (s *CacheTestSuite) TestDelete() {
	s.mock.ExpectDel("test:a", "test:b").SetVal(2)
	s.NoError(s.cache.Delete(context.Background(), "a", "b"))
	s.NoError(s.cache.Delete(context.Background()))
}

func (s *CacheTestSuite) TestClosedClient() {
	s.client.closed = true

	var dest entities
	err := s.cache.Get(context.Background(), "k", &dest)
	s.ErrorIs(err, ErrClientClosed)
}

func TestCacheTestSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}

func TestJitterTTL(t *testing.T) {
	assert.Zero(t, jitterTTL(0))
	for i := 0; i < 100; i++ {
		got := jitterTTL(time.Hour)
		assert.GreaterOrEqual(t, got, 54*time.Minute)
		assert.LessOrEqual(t, got, 66*time.Minute)
	}
}
