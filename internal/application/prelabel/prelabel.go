// Package prelabel prepares raw resume records for the annotation tool:
// batch text cleaning and task export with optional regex predictions.
package prelabel

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strconv"

	"github.com/turtacn/ResumeLens/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ResumeLens/internal/intelligence/normalize"
	"github.com/turtacn/ResumeLens/internal/intelligence/termmatch"
	"github.com/turtacn/ResumeLens/pkg/errors"
	"github.com/turtacn/ResumeLens/pkg/types/resume"
)

// MetaModeKey is the meta field recording the normalization mode.
const MetaModeKey = "normalization_mode"

// Result is one labelled region in annotation-tool prediction format.
type Result struct {
	FromName string `json:"from_name"`
	ToName   string `json:"to_name"`
	Type     string `json:"type"`
	Value    Value  `json:"value"`
}

// Value holds the offsets and label of a Result.
type Value struct {
	Start  int      `json:"start"`
	End    int      `json:"end"`
	Text   string   `json:"text"`
	Labels []string `json:"labels"`
}

// Prediction is the set of results produced by one model version.
type Prediction struct {
	Result       []Result `json:"result"`
	Score        float64  `json:"score"`
	ModelVersion string   `json:"model_version"`
}

// TaskData is the data block of an exported task.
type TaskData struct {
	Text string                 `json:"text"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}

// Task is one exported annotation task.
type Task struct {
	Data        TaskData     `json:"data"`
	Predictions []Prediction `json:"predictions,omitempty"`
}

// Stats counts one export.
type Stats struct {
	Records   int `json:"records"`
	Malformed int `json:"malformed"`
	Spans     int `json:"spans"`
}

// Exporter normalizes records and attaches weak labels.
type Exporter struct {
	normalizer *normalize.Normalizer
	matcher    *termmatch.Matcher
	logger     logging.Logger
}

// NewExporter returns an Exporter. matcher may be nil when predictions are
// never requested.
func NewExporter(n *normalize.Normalizer, m *termmatch.Matcher, logger logging.Logger) *Exporter {
	return &Exporter{normalizer: n, matcher: m, logger: logging.OrNop(logger).Named("prelabel")}
}

// Clean normalizes the "text" field of every object and leaves the other
// fields untouched. A missing text becomes "".
func (e *Exporter) Clean(data []byte) ([]map[string]interface{}, Stats) {
	objs, stats := DecodeObjects(data)
	for _, obj := range objs {
		raw, _ := obj["text"].(string)
		obj["text"] = e.normalizer.Normalize(raw)
	}
	e.logger.Info("cleaned records", logging.Int("records", stats.Records), logging.Int("malformed", stats.Malformed))
	return objs, stats
}

// Prelabel builds one task per object. The text comes from "text" or
// "data.text"; "meta" is carried over and records the normalization mode.
func (e *Exporter) Prelabel(data []byte, withPredictions bool) ([]Task, Stats, error) {
	if withPredictions && e.matcher == nil {
		return nil, Stats{}, errors.Configuration("prelabel: predictions need a pattern table")
	}
	objs, stats := DecodeObjects(data)
	tasks := make([]Task, 0, len(objs))
	for _, obj := range objs {
		text := e.normalizer.Normalize(recordText(obj))
		meta := map[string]interface{}{}
		if m, ok := obj["meta"].(map[string]interface{}); ok {
			for k, v := range m {
				meta[k] = v
			}
		}
		meta[MetaModeKey] = e.normalizer.Mode().String()

		task := Task{Data: TaskData{Text: text, Meta: meta}}
		if withPredictions {
			pred := e.Predict(text)
			stats.Spans += len(pred.Result)
			task.Predictions = []Prediction{pred}
		}
		tasks = append(tasks, task)
	}
	e.logger.Info("built prelabel tasks",
		logging.Int("tasks", len(tasks)),
		logging.Int("malformed", stats.Malformed),
		logging.Int("spans", stats.Spans),
		logging.Bool("predictions", withPredictions),
	)
	return tasks, stats, nil
}

// Predict runs the pattern table over normalized text.
func (e *Exporter) Predict(text string) Prediction {
	runes := []rune(text)
	spans := e.matcher.FindCandidates(text)
	results := make([]Result, 0, len(spans))
	for _, s := range spans {
		results = append(results, resultFor(s, runes))
	}
	return Prediction{Result: results, Score: e.matcher.Score(), ModelVersion: e.matcher.Version()}
}

func resultFor(s resume.Span, runes []rune) Result {
	return Result{
		FromName: "label",
		ToName:   "text",
		Type:     "labels",
		Value:    Value{Start: s.Start, End: s.End, Text: s.Text(runes), Labels: []string{s.Label.String()}},
	}
}

func recordText(obj map[string]interface{}) string {
	if s, ok := obj["text"].(string); ok && s != "" {
		return s
	}
	if d, ok := obj["data"].(map[string]interface{}); ok {
		if s, ok := d["text"].(string); ok {
			return s
		}
	}
	return ""
}

// DecodeObjects reads a JSON array of objects or NDJSON. Elements that are
// not objects are counted as malformed.
func DecodeObjects(data []byte) ([]map[string]interface{}, Stats) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	trimmed := bytes.TrimSpace(data)
	var raws []json.RawMessage
	var stats Stats
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, Stats{Records: 1, Malformed: 1}
		}
	} else {
		for _, line := range bytes.Split(trimmed, []byte("\n")) {
			if line = bytes.TrimSpace(line); len(line) > 0 {
				raws = append(raws, line)
			}
		}
	}
	objs := make([]map[string]interface{}, 0, len(raws))
	for _, raw := range raws {
		stats.Records++
		var obj map[string]interface{}
		if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
			stats.Malformed++
			continue
		}
		objs = append(objs, obj)
	}
	return objs, stats
}

// ---------------------------------------------------------------------------
// Output
// ---------------------------------------------------------------------------

// WriteJSON writes v as an indented JSON array without HTML escaping.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "prelabel: encode output")
	}
	return nil
}

// Message is one keyed record for a message stream.
type Message struct {
	Key   []byte
	Value []byte
}

// Publisher sends messages to a topic.
type Publisher interface {
	Publish(ctx context.Context, msgs ...Message) error
}

// Publish sends one message per task, keyed by task position.
func Publish(ctx context.Context, pub Publisher, tasks []Task) error {
	msgs := make([]Message, 0, len(tasks))
	for i, t := range tasks {
		value, err := json.Marshal(t)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "prelabel: encode task")
		}
		msgs = append(msgs, Message{Key: []byte(strconv.Itoa(i)), Value: value})
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := pub.Publish(ctx, msgs...); err != nil {
		return errors.Wrap(err, errors.ErrCodeMessagingError, "prelabel: publish tasks")
	}
	return nil
}
