package corpus

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/turtacn/ResumeLens/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ResumeLens/pkg/errors"
)

// FileExt is the extension of partition containers.
const FileExt = ".corpus"

// ContentType is the MIME type used when uploading containers.
const ContentType = "application/x-resumelens-corpus"

// Sink opens a destination for one partition container.
type Sink interface {
	Create(ctx context.Context, partition string) (io.WriteCloser, error)
	// Location describes where a partition ends up, for reports and logs.
	Location(partition string) string
}

// ObjectStore uploads whole objects.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error
}

// OpenSink resolves output as s3://bucket/prefix or a local directory.
func OpenSink(output string, store ObjectStore) (Sink, error) {
	if strings.HasPrefix(output, "s3://") {
		u, err := url.Parse(output)
		if err != nil || u.Host == "" {
			return nil, errors.Validation("output", "expected s3://bucket/prefix")
		}
		if store == nil {
			return nil, errors.Configuration("corpus: s3 output requires minio to be enabled")
		}
		return &ObjectSink{Store: store, Bucket: u.Host, Prefix: strings.Trim(u.Path, "/")}, nil
	}
	if output == "" {
		return nil, errors.Validation("output", "output location is required")
	}
	return &DirSink{Dir: output}, nil
}

// DirSink writes <dir>/<partition>.corpus.
type DirSink struct {
	Dir string
}

func (s *DirSink) Create(_ context.Context, partition string) (io.WriteCloser, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "corpus: create output dir")
	}
	f, err := os.Create(s.Location(partition))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "corpus: create container")
	}
	return f, nil
}

func (s *DirSink) Location(partition string) string {
	return filepath.Join(s.Dir, partition+FileExt)
}

// ObjectSink buffers a container and uploads it on Close.
type ObjectSink struct {
	Store  ObjectStore
	Bucket string
	Prefix string
}

func (s *ObjectSink) key(partition string) string {
	return path.Join(s.Prefix, partition+FileExt)
}

func (s *ObjectSink) Create(ctx context.Context, partition string) (io.WriteCloser, error) {
	return &objectWriter{ctx: ctx, sink: s, key: s.key(partition)}, nil
}

func (s *ObjectSink) Location(partition string) string {
	return "s3://" + s.Bucket + "/" + s.key(partition)
}

type objectWriter struct {
	ctx  context.Context
	sink *ObjectSink
	key  string
	buf  bytes.Buffer
}

func (w *objectWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *objectWriter) Close() error {
	err := w.sink.Store.Put(w.ctx, w.sink.Bucket, w.key, bytes.NewReader(w.buf.Bytes()), int64(w.buf.Len()), ContentType)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "corpus: upload "+w.key)
	}
	return nil
}

// Write stores every partition of c in sink and returns the location of
// each.
func Write(ctx context.Context, sink Sink, c *Corpus, logger logging.Logger) (map[string]string, error) {
	logger = logging.OrNop(logger)
	locations := make(map[string]string, len(c.Partitions))
	for _, part := range c.Partitions {
		if err := writePartition(ctx, sink, c, part); err != nil {
			return locations, err
		}
		locations[part.Name] = sink.Location(part.Name)
		logger.Info("wrote partition",
			logging.String("partition", part.Name),
			logging.Int("examples", len(part.Examples)),
			logging.String("location", locations[part.Name]),
		)
	}
	return locations, nil
}

func writePartition(ctx context.Context, sink Sink, c *Corpus, part Partition) (err error) {
	out, err := sink.Create(ctx, part.Name)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	w, err := NewWriter(out, Header{
		Partition:   part.Name,
		Mode:        c.Mode,
		LabelSource: c.Source,
		RunID:       c.RunID,
		CreatedUnix: c.CreatedAt.Unix(),
	})
	if err != nil {
		return err
	}
	for _, ex := range part.Examples {
		if err := w.WriteExample(ex); err != nil {
			_ = w.Close()
			return err
		}
	}
	return w.Close()
}
