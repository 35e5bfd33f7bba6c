// Package ingest parses annotation-tool exports into Tasks. Exports are a
// JSON array or NDJSON; malformed records are skipped and counted, never
// fatal.
package ingest

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"

	"github.com/turtacn/ResumeLens/internal/infrastructure/monitoring/logging"
	metrics "github.com/turtacn/ResumeLens/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ResumeLens/pkg/errors"
	"github.com/turtacn/ResumeLens/pkg/types/resume"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Stats counts what one ingestion saw.
type Stats struct {
	Records          int `json:"records"`
	Tasks            int `json:"tasks"`
	Malformed        int `json:"malformed"`
	MalformedResults int `json:"malformed_results"`
	DroppedLabels    int `json:"dropped_labels"`
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Records += o.Records
	s.Tasks += o.Tasks
	s.Malformed += o.Malformed
	s.MalformedResults += o.MalformedResults
	s.DroppedLabels += o.DroppedLabels
}

// Ingester parses exports. The zero value is not usable; use New.
type Ingester struct {
	logger  logging.Logger
	metrics metrics.PipelineMetrics
	objects ObjectSource
	stream  StreamSource
}

// Option configures an Ingester.
type Option func(*Ingester)

func WithLogger(l logging.Logger) Option {
	return func(i *Ingester) { i.logger = logging.OrNop(l) }
}

func WithMetrics(m metrics.PipelineMetrics) Option {
	return func(i *Ingester) { i.metrics = metrics.OrNoop(m) }
}

// WithObjectSource enables s3:// URIs.
func WithObjectSource(s ObjectSource) Option {
	return func(i *Ingester) { i.objects = s }
}

// WithStreamSource enables kafka:// URIs.
func WithStreamSource(s StreamSource) Option {
	return func(i *Ingester) { i.stream = s }
}

// New returns an Ingester.
func New(opts ...Option) *Ingester {
	i := &Ingester{
		logger:  logging.NewNopLogger(),
		metrics: metrics.NewNoopPipelineMetrics(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ingest reads a whole export from r. The error is non-nil only when r
// itself fails.
func (i *Ingester) Ingest(r io.Reader) ([]resume.Task, Stats, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, Stats{}, errors.Wrap(err, errors.ErrCodeStorageError, "ingest: read export")
	}
	tasks, stats := i.Parse(data)
	return tasks, stats, nil
}

// Parse decodes one export held in memory.
func (i *Ingester) Parse(data []byte) ([]resume.Task, Stats) {
	data = bytes.TrimPrefix(data, utf8BOM)
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var elems []json.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			i.logger.Debug("malformed export array", logging.Err(errors.MalformedInput("ingest: export array").WithCause(err)))
			stats := Stats{Records: 1, Malformed: 1}
			i.metrics.RecordIngested("array", stats.Records, stats.Malformed)
			return nil, stats
		}
		records := make([][]byte, len(elems))
		for idx, e := range elems {
			records[idx] = e
		}
		return i.decodeAll("array", records)
	}

	var lines [][]byte
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			lines = append(lines, line)
		}
	}
	return i.decodeAll("ndjson", lines)
}

// IngestRecords decodes one task per record, e.g. messages from a stream.
// Blank records are ignored.
func (i *Ingester) IngestRecords(records [][]byte) ([]resume.Task, Stats) {
	nonBlank := make([][]byte, 0, len(records))
	for _, r := range records {
		r = bytes.TrimSpace(bytes.TrimPrefix(r, utf8BOM))
		if len(r) > 0 {
			nonBlank = append(nonBlank, r)
		}
	}
	return i.decodeAll("records", nonBlank)
}

func (i *Ingester) decodeAll(source string, records [][]byte) ([]resume.Task, Stats) {
	var stats Stats
	tasks := make([]resume.Task, 0, len(records))
	for idx, rec := range records {
		stats.Records++
		task, ts, err := decodeTask(rec, idx)
		if err != nil {
			stats.Malformed++
			i.logger.Debug("skipping malformed record", logging.String("source", source), logging.Int("index", idx), logging.Err(err))
			continue
		}
		stats.MalformedResults += ts.MalformedResults
		stats.DroppedLabels += ts.DroppedLabels
		stats.Tasks++
		tasks = append(tasks, task)
	}
	i.metrics.RecordIngested(source, stats.Records, stats.Malformed)
	i.metrics.RecordSpanRejects(metrics.RejectLabel, stats.DroppedLabels)
	return tasks, stats
}

// ---------------------------------------------------------------------------
// Record decoding
// ---------------------------------------------------------------------------

type rawTask struct {
	ID   json.RawMessage `json:"id"`
	Text string          `json:"text"`
	Data *struct {
		Text string                 `json:"text"`
		Meta map[string]interface{} `json:"meta"`
	} `json:"data"`
	Meta        map[string]interface{} `json:"meta"`
	Annotations []rawAnnotation        `json:"annotations"`
	Predictions []rawAnnotation        `json:"predictions"`
}

type rawAnnotation struct {
	Result []rawResult `json:"result"`
}

type rawResult struct {
	Type  string `json:"type"`
	Value struct {
		Start  json.RawMessage `json:"start"`
		End    json.RawMessage `json:"end"`
		Labels []string        `json:"labels"`
	} `json:"value"`
}

func decodeTask(rec []byte, idx int) (resume.Task, Stats, error) {
	var raw rawTask
	if err := json.Unmarshal(rec, &raw); err != nil {
		return resume.Task{}, Stats{}, errors.MalformedInput("ingest: task record").WithCause(err)
	}

	task := resume.Task{ID: taskID(raw.ID, idx), Text: raw.Text, Meta: raw.Meta}
	if raw.Data != nil {
		if raw.Data.Text != "" {
			task.Text = raw.Data.Text
		}
		if raw.Data.Meta != nil {
			task.Meta = raw.Data.Meta
		}
	}

	var stats Stats
	task.Annotations = extractSpans(raw.Annotations, resume.SourceGold, &stats)
	task.Predictions = extractSpans(raw.Predictions, resume.SourcePrediction, &stats)
	return task, stats, nil
}

// extractSpans reads the first label of every "labels" result.
func extractSpans(anns []rawAnnotation, src resume.Source, stats *Stats) resume.SpanSet {
	var out resume.SpanSet
	for _, ann := range anns {
		for _, r := range ann.Result {
			if r.Type != "labels" || len(r.Value.Labels) == 0 {
				continue
			}
			label, ok := resume.ParseLabel(r.Value.Labels[0])
			if !ok {
				stats.DroppedLabels++
				continue
			}
			start, okStart := parseOffset(r.Value.Start)
			end, okEnd := parseOffset(r.Value.End)
			if !okStart || !okEnd {
				stats.MalformedResults++
				continue
			}
			out = append(out, resume.Span{Start: start, End: end, Label: label, Source: src})
		}
	}
	return out
}

func parseOffset(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(string(raw))
	return n, err == nil
}

func taskID(raw json.RawMessage, idx int) string {
	if len(raw) > 0 {
		var s string
		if json.Unmarshal(raw, &s) == nil && s != "" {
			return s
		}
		var n json.Number
		if json.Unmarshal(raw, &n) == nil && n != "" {
			return n.String()
		}
	}
	return strconv.Itoa(idx)
}
