package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/turtacn/ResumeLens/internal/application/corpus"
	"github.com/turtacn/ResumeLens/internal/application/ingest"
	"github.com/turtacn/ResumeLens/pkg/errors"
)

// stdioPath selects stdin or stdout.
const stdioPath = "-"

const jsonContentType = "application/json"

// readSource reads a whole export from stdin, a local path or s3://bucket/key.
func readSource(ctx context.Context, cmd *cobra.Command, rt *runtime, src string) ([]byte, error) {
	if src == stdioPath {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeMalformedInput, "read stdin")
		}
		return data, nil
	}

	loc, err := ingest.ParseLocation(src)
	if err != nil {
		return nil, err
	}
	switch loc.Scheme {
	case "file":
		data, err := os.ReadFile(loc.Path)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeNotFound, "read "+loc.Path)
		}
		return data, nil
	case "s3":
		store, err := rt.objectStore(ctx)
		if err != nil {
			return nil, err
		}
		if store == nil {
			return nil, errors.Configuration("s3 source requires minio to be enabled")
		}
		rc, err := store.Open(ctx, loc.Bucket, loc.Path)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeStorageError, "read "+src)
		}
		return data, nil
	}
	return nil, errors.Validation("source", "unsupported source "+src)
}

// openSource is readSource for container files, which are streamed.
func openSource(ctx context.Context, cmd *cobra.Command, rt *runtime, src string) (io.ReadCloser, error) {
	if src != stdioPath {
		if loc, err := ingest.ParseLocation(src); err == nil && loc.Scheme == "file" {
			f, err := os.Open(loc.Path)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeNotFound, "open "+loc.Path)
			}
			return f, nil
		}
	}
	data, err := readSource(ctx, cmd, rt, src)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// writeDest writes data to stdout, a local path or s3://bucket/key.
func writeDest(ctx context.Context, cmd *cobra.Command, rt *runtime, dest string, data []byte) error {
	if dest == "" || dest == stdioPath {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}

	loc, err := ingest.ParseLocation(dest)
	if err != nil {
		return err
	}
	switch loc.Scheme {
	case "file":
		if dir := filepath.Dir(loc.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return errors.Wrap(err, errors.ErrCodeStorageError, "create "+dir)
			}
		}
		if err := os.WriteFile(loc.Path, data, 0o644); err != nil {
			return errors.Wrap(err, errors.ErrCodeStorageError, "write "+loc.Path)
		}
		return nil
	case "s3":
		store, err := rt.objectStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.Configuration("s3 destination requires minio to be enabled")
		}
		return store.Put(ctx, loc.Bucket, loc.Path, bytes.NewReader(data), int64(len(data)), jsonContentType)
	}
	return errors.Validation("dest", "unsupported destination "+dest)
}

// objectStoreOrNil keeps a disabled MinIO client out of the interface, so
// callers can test the result against nil.
func objectStoreOrNil(ctx context.Context, rt *runtime) (corpus.ObjectStore, error) {
	store, err := rt.objectStore(ctx)
	if err != nil || store == nil {
		return nil, err
	}
	return store, nil
}
