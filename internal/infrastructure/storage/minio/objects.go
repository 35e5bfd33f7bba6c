package minio

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/ResumeLens/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ResumeLens/pkg/errors"
)

var ErrClientClosed = errors.New(errors.ErrCodeStorageError, "minio client is closed")

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

// Open returns a reader over bucket/key. A missing object is reported with
// ErrCodeNotFound before any byte is read.
func (c *MinIOClient) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}
	if _, err := c.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil, errors.NotFound("object not found").WithDetailf("s3://%s/%s", bucket, key)
		}
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "stat object").WithDetailf("s3://%s/%s", bucket, key)
	}
	obj, err := c.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "get object").WithDetailf("s3://%s/%s", bucket, key)
	}
	return obj, nil
}

// Put uploads size bytes from r to bucket/key.
func (c *MinIOClient) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	info, err := c.client.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
		PartSize:    c.config.PartSize,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "put object").WithDetailf("s3://%s/%s", bucket, key)
	}
	c.logger.Debug("uploaded object",
		logging.String("bucket", bucket),
		logging.String("key", key),
		logging.Int64("size", info.Size),
	)
	return nil
}
