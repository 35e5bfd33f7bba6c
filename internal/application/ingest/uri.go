package ingest

import (
	"context"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/turtacn/ResumeLens/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ResumeLens/pkg/errors"
	"github.com/turtacn/ResumeLens/pkg/types/resume"
)

// ObjectSource reads exports from an object store.
type ObjectSource interface {
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// StreamSource drains task records from a message topic.
type StreamSource interface {
	Fetch(ctx context.Context, topic string) ([][]byte, error)
}

// Location is a parsed task source.
type Location struct {
	Scheme string // file | s3 | kafka
	Bucket string
	Path   string // file path, object key or topic
}

// ParseLocation accepts plain paths, file://, s3://bucket/key and
// kafka://topic.
func ParseLocation(uri string) (Location, error) {
	if uri == "" {
		return Location{}, errors.Validation("uri", "task source is required")
	}
	if !strings.Contains(uri, "://") {
		return Location{Scheme: "file", Path: uri}, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, errors.Wrap(err, errors.ErrCodeValidation, "ingest: parse source uri")
	}
	switch u.Scheme {
	case "file":
		return Location{Scheme: "file", Path: u.Host + u.Path}, nil
	case "s3":
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return Location{}, errors.Validation("uri", "s3 source needs s3://bucket/key")
		}
		return Location{Scheme: "s3", Bucket: u.Host, Path: key}, nil
	case "kafka":
		topic := u.Host + strings.TrimSuffix(u.Path, "/")
		if topic == "" {
			return Location{}, errors.Validation("uri", "kafka source needs kafka://topic")
		}
		return Location{Scheme: "kafka", Path: topic}, nil
	}
	return Location{}, errors.Validation("uri", "unsupported source scheme "+u.Scheme)
}

// IngestURI reads tasks from a file, object or topic.
func (i *Ingester) IngestURI(ctx context.Context, uri string) ([]resume.Task, Stats, error) {
	loc, err := ParseLocation(uri)
	if err != nil {
		return nil, Stats{}, err
	}

	var (
		tasks []resume.Task
		stats Stats
	)
	switch loc.Scheme {
	case "file":
		f, err := os.Open(loc.Path)
		if err != nil {
			return nil, Stats{}, errors.Wrap(err, errors.ErrCodeNotFound, "ingest: open "+loc.Path)
		}
		defer f.Close()
		tasks, stats, err = i.Ingest(f)
		if err != nil {
			return nil, stats, err
		}
	case "s3":
		if i.objects == nil {
			return nil, Stats{}, errors.Configuration("ingest: s3 source requires minio to be enabled")
		}
		rc, err := i.objects.Open(ctx, loc.Bucket, loc.Path)
		if err != nil {
			return nil, Stats{}, errors.Wrap(err, errors.ErrCodeStorageError, "ingest: open "+uri)
		}
		defer rc.Close()
		tasks, stats, err = i.Ingest(rc)
		if err != nil {
			return nil, stats, err
		}
	case "kafka":
		if i.stream == nil {
			return nil, Stats{}, errors.Configuration("ingest: kafka source requires kafka brokers")
		}
		records, err := i.stream.Fetch(ctx, loc.Path)
		if err != nil {
			return nil, Stats{}, errors.Wrap(err, errors.ErrCodeMessagingError, "ingest: fetch "+uri)
		}
		tasks, stats = i.IngestRecords(records)
	}

	i.logger.Info("ingested tasks",
		logging.String("source", uri),
		logging.Int("records", stats.Records),
		logging.Int("tasks", stats.Tasks),
		logging.Int("malformed", stats.Malformed),
		logging.Int("dropped_labels", stats.DroppedLabels),
	)
	return tasks, stats, nil
}
