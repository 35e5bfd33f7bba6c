package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/turtacn/ResumeLens/internal/application/corpus"
	"github.com/turtacn/ResumeLens/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ResumeLens/pkg/errors"
)

// queryExecutor abstracts sql.DB and sql.Tx.
type queryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const insertReport = `INSERT INTO build_reports
	(id, run_id, normalization_mode, label_source, partitions, total_examples, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

const selectReports = `SELECT id, run_id, normalization_mode, label_source, partitions, created_at
	FROM build_reports ORDER BY created_at DESC LIMIT $1`

// ReportStore persists corpus build reports in build_reports.
type ReportStore struct {
	db     queryExecutor
	logger logging.Logger
}

var _ corpus.ReportStore = (*ReportStore)(nil)

func NewReportStore(conn *Connection, log logging.Logger) *ReportStore {
	return &ReportStore{db: conn.DB(), logger: logging.OrNop(log).Named("reports")}
}

func (s *ReportStore) SaveReport(ctx context.Context, r *corpus.Report) error {
	parts, err := json.Marshal(r.Partitions)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "encode partitions")
	}
	total := r.Total()
	examples := total.WithEntities + total.WithoutEntities
	if _, err := s.db.ExecContext(ctx, insertReport,
		r.ID, r.RunID, r.Mode, r.LabelSource, parts, examples, r.CreatedAt); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "insert build report").WithDetail("run_id=" + r.RunID)
	}
	s.logger.Info("saved build report", logging.String("run_id", r.RunID), logging.Int("examples", examples))
	return nil
}

// ListReports returns the newest reports first.
func (s *ReportStore) ListReports(ctx context.Context, limit int) ([]*corpus.Report, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, selectReports, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "query build reports")
	}
	defer rows.Close()

	var out []*corpus.Report
	for rows.Next() {
		var (
			r     corpus.Report
			parts []byte
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.Mode, &r.LabelSource, &parts, &r.CreatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "scan build report")
		}
		if err := json.Unmarshal(parts, &r.Partitions); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "decode partitions").WithDetail("id=" + r.ID)
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "iterate build reports")
	}
	return out, nil
}
