package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/ResumeLens/internal/application/corpus"
	"github.com/turtacn/ResumeLens/internal/application/ingest"
	pkgerrors "github.com/turtacn/ResumeLens/pkg/errors"
)

var (
	_ ingest.ObjectSource = (*MinIOClient)(nil)
	_ corpus.ObjectStore  = (*MinIOClient)(nil)
)

type MockMinIOAPI struct {
	mock.Mock
}

func (m *MockMinIOAPI) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *MockMinIOAPI) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return m.Called(ctx, bucketName, opts).Error(0)
}

func (m *MockMinIOAPI) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, reader, objectSize, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

func (m *MockMinIOAPI) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockMinIOAPI) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	return args.Get(0).(minio.ObjectInfo), args.Error(1)
}

type ClientTestSuite struct {
	suite.Suite
	api    *MockMinIOAPI
	client *MinIOClient
}

func (s *ClientTestSuite) SetupTest() {
	s.api = new(MockMinIOAPI)
	s.client = NewMinIOClientWithAPI(s.api, &MinIOConfig{}, nil)
}

func (s *ClientTestSuite) TearDownTest() {
	s.api.AssertExpectations(s.T())
}

func (s *ClientTestSuite) TestApplyDefaults() {
	cfg := &MinIOConfig{}
	applyDefaults(cfg)
	s.Equal("us-east-1", cfg.Region)
	s.Equal(uint64(16*1024*1024), cfg.PartSize)
}

func (s *ClientTestSuite) TestEnsureBucket_Creates() {
	s.api.On("BucketExists", mock.Anything, "corpora").Return(false, nil)
	s.api.On("MakeBucket", mock.Anything, "corpora", minio.MakeBucketOptions{Region: "us-east-1"}).Return(nil)

	s.NoError(s.client.EnsureBucket(context.Background(), "corpora"))
}

func (s *ClientTestSuite) TestEnsureBucket_Exists() {
	s.api.On("BucketExists", mock.Anything, "corpora").Return(true, nil)
	s.NoError(s.client.EnsureBucket(context.Background(), "corpora"))
}

func (s *ClientTestSuite) TestEnsureBucket_Error() {
	s.api.On("BucketExists", mock.Anything, "corpora").Return(false, errors.New("dial tcp"))
	err := s.client.EnsureBucket(context.Background(), "corpora")
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeStorageError))
}

func (s *ClientTestSuite) TestOpen_Success() {
	s.api.On("StatObject", mock.Anything, "exports", "tasks.json", mock.Anything).
		Return(minio.ObjectInfo{Key: "tasks.json", Size: 2}, nil)
	s.api.On("GetObject", mock.Anything, "exports", "tasks.json", mock.Anything).
		Return(io.NopCloser(bytes.NewBufferString("[]")), nil)

	rc, err := s.client.Open(context.Background(), "exports", "tasks.json")
	require.NoError(s.T(), err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	s.NoError(err)
	s.Equal("[]", string(data))
}

func (s *ClientTestSuite) TestOpen_NotFound() {
	s.api.On("StatObject", mock.Anything, "exports", "missing.json", mock.Anything).
		Return(minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey"})

	_, err := s.client.Open(context.Background(), "exports", "missing.json")
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeNotFound))
}

func (s *ClientTestSuite) TestPut() {
	body := bytes.NewReader([]byte("corpus"))
	s.api.On("PutObject", mock.Anything, "corpora", "run/train.corpus", body, int64(6),
		minio.PutObjectOptions{ContentType: corpus.ContentType, PartSize: 16 * 1024 * 1024}).
		Return(minio.UploadInfo{Bucket: "corpora", Key: "run/train.corpus", Size: 6}, nil)

	s.NoError(s.client.Put(context.Background(), "corpora", "run/train.corpus", body, 6, corpus.ContentType))
}

func (s *ClientTestSuite) TestPut_Error() {
	s.api.On("PutObject", mock.Anything, "corpora", "k", mock.Anything, int64(1), mock.Anything).
		Return(minio.UploadInfo{}, errors.New("access denied"))

	err := s.client.Put(context.Background(), "corpora", "k", bytes.NewReader([]byte("x")), 1, "")
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeStorageError))
}

func (s *ClientTestSuite) TestClosed() {
	s.NoError(s.client.Close())
	_, err := s.client.Open(context.Background(), "b", "k")
	s.ErrorIs(err, ErrClientClosed)
	s.ErrorIs(s.client.Put(context.Background(), "b", "k", bytes.NewReader(nil), 0, ""), ErrClientClosed)
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NoSuchBucket"}))
	assert.False(t, isNotFound(minio.ErrorResponse{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("boom")))
}
