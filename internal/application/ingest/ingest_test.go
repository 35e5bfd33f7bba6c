package ingest

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ResumeLens/pkg/errors"
	"github.com/turtacn/ResumeLens/pkg/types/resume"
)

const arrayExport = `[
  {"id": 17, "data": {"text": "Go developer", "meta": {"file": "a.pdf"}},
   "annotations": [{"result": [
     {"type": "labels", "value": {"start": 0, "end": 2, "labels": ["Skill", "Language"]}},
     {"type": "choices", "value": {"choices": ["ok"]}},
     {"type": "labels", "value": {"start": 3, "end": 12, "labels": ["Title"]}}
   ]}],
   "predictions": [{"result": [
     {"type": "labels", "value": {"start": 0, "end": 12, "labels": ["Work_Experience"]}}
   ]}]},
  {"text": "English fluent", "meta": {"src": "top"}},
  42
]`

func TestIngest_Array(t *testing.T) {
	tasks, stats, err := New().Ingest(strings.NewReader(arrayExport))
	require.NoError(t, err)

	assert.Equal(t, Stats{Records: 3, Tasks: 2, Malformed: 1, DroppedLabels: 1}, stats)
	require.Len(t, tasks, 2)

	first := tasks[0]
	assert.Equal(t, "17", first.ID)
	assert.Equal(t, "Go developer", first.Text)
	assert.Equal(t, map[string]interface{}{"file": "a.pdf"}, first.Meta)
	assert.Equal(t, resume.SpanSet{{Start: 0, End: 2, Label: resume.LabelSkill, Source: resume.SourceGold}}, first.Annotations)
	assert.Equal(t, resume.SpanSet{{Start: 0, End: 12, Label: resume.LabelWorkExperience, Source: resume.SourcePrediction}}, first.Predictions)
	assert.Equal(t, first.Predictions, first.Candidates(true))

	second := tasks[1]
	assert.Equal(t, "1", second.ID)
	assert.Equal(t, "English fluent", second.Text)
	assert.Equal(t, "top", second.Meta["src"])
	assert.Empty(t, second.Annotations)
}

func TestParse_ArrayAndNDJSONAgree(t *testing.T) {
	recs := []string{
		`{"id":"a","data":{"text":"Python developer"},"annotations":[{"result":[{"type":"labels","value":{"start":0,"end":6,"labels":["Skill"]}}]}]}`,
		`{"id":"b","data":{"text":"Fluent in German"}}`,
	}
	in := New()

	fromArray, arrayStats := in.Parse([]byte("[" + strings.Join(recs, ",\n") + "]"))
	fromLines, lineStats := in.Parse([]byte(strings.Join(recs, "\n")))

	require.Len(t, fromArray, 2)
	assert.Equal(t, fromLines, fromArray)
	assert.Equal(t, lineStats, arrayStats)
	assert.Equal(t, "a", fromArray[0].ID)
	assert.Equal(t, resume.SpanSet{{Start: 0, End: 6, Label: resume.LabelSkill, Source: resume.SourceGold}}, fromArray[0].Annotations)
}

func TestIngest_NDJSONWithBOM(t *testing.T) {
	input := "\xEF\xBB\xBF" + `{"id":"t-1","data":{"text":"Python"}}` + "\n\n" +
		`{"data": {"text": ` + "\n" +
		`{"data":{"text":"Rust"},"annotations":[{"result":[{"type":"labels","value":{"start":"0","end":4,"labels":["Skill"]}}]}]}` + "\n"

	tasks, stats, err := New().Ingest(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Records)
	assert.Equal(t, 1, stats.Malformed)
	assert.Equal(t, 1, stats.MalformedResults)
	require.Len(t, tasks, 2)
	assert.Equal(t, "t-1", tasks[0].ID)
	assert.Empty(t, tasks[1].Annotations)
}

func TestIngest_DataTextFallsBackToText(t *testing.T) {
	tasks, _, err := New().Ingest(strings.NewReader(`[{"data":{"text":""},"text":"fallback"}]`))
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "fallback", tasks[0].Text)
}

func TestIngest_NonIntegerOffsets(t *testing.T) {
	input := `[{"text":"abc","annotations":[{"result":[
		{"type":"labels","value":{"start":0.5,"end":2,"labels":["Skill"]}},
		{"type":"labels","value":{"end":2,"labels":["Skill"]}},
		{"type":"labels","value":{"start":0,"end":2,"labels":[]}}
	]}]}]`
	tasks, stats, err := New().Ingest(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.MalformedResults)
	assert.Empty(t, tasks[0].Annotations)
}

func TestIngest_WhollyMalformedArray(t *testing.T) {
	tasks, stats, err := New().Ingest(strings.NewReader(`[{"text":"a"},`))
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Equal(t, Stats{Records: 1, Malformed: 1}, stats)
}

func TestIngest_Empty(t *testing.T) {
	tasks, stats, err := New().Ingest(strings.NewReader("  \n"))
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Zero(t, stats.Records)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestIngest_ReadError(t *testing.T) {
	_, _, err := New().Ingest(failingReader{})
	assert.Error(t, err)
}

func TestIngestRecords(t *testing.T) {
	tasks, stats := New().IngestRecords([][]byte{
		[]byte(`{"text":"one"}`),
		[]byte("   "),
		[]byte(`not json`),
	})
	assert.Len(t, tasks, 1)
	assert.Equal(t, Stats{Records: 2, Tasks: 1, Malformed: 1}, stats)
}

func TestStats_Add(t *testing.T) {
	s := Stats{Records: 1, Tasks: 1}
	s.Add(Stats{Records: 2, Malformed: 2, DroppedLabels: 3})
	assert.Equal(t, Stats{Records: 3, Tasks: 1, Malformed: 2, DroppedLabels: 3}, s)
}

// ---------------------------------------------------------------------------
// URI sources
// ---------------------------------------------------------------------------

type mockObjects struct {
	OpenFunc func(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

func (m *mockObjects) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	return m.OpenFunc(ctx, bucket, key)
}

type mockStream struct {
	FetchFunc func(ctx context.Context, topic string) ([][]byte, error)
}

func (m *mockStream) Fetch(ctx context.Context, topic string) ([][]byte, error) {
	return m.FetchFunc(ctx, topic)
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		uri     string
		want    Location
		wantErr bool
	}{
		{uri: "exports/train.json", want: Location{Scheme: "file", Path: "exports/train.json"}},
		{uri: "file:///data/train.json", want: Location{Scheme: "file", Path: "/data/train.json"}},
		{uri: "s3://labels/2024/train.json", want: Location{Scheme: "s3", Bucket: "labels", Path: "2024/train.json"}},
		{uri: "kafka://resume-tasks", want: Location{Scheme: "kafka", Path: "resume-tasks"}},
		{uri: "s3://labels", wantErr: true},
		{uri: "gs://bucket/key", wantErr: true},
		{uri: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := ParseLocation(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIngestURI_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"text":"a"}`+"\n"+`{"text":"b"}`), 0o644))

	tasks, stats, err := New().IngestURI(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
	assert.Equal(t, 2, stats.Tasks)

	_, _, err = New().IngestURI(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

func TestIngestURI_S3(t *testing.T) {
	objects := &mockObjects{OpenFunc: func(_ context.Context, bucket, key string) (io.ReadCloser, error) {
		assert.Equal(t, "labels", bucket)
		assert.Equal(t, "train.json", key)
		return io.NopCloser(strings.NewReader(`[{"text":"Go"}]`)), nil
	}}
	tasks, _, err := New(WithObjectSource(objects)).IngestURI(context.Background(), "s3://labels/train.json")
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	_, _, err = New().IngestURI(context.Background(), "s3://labels/train.json")
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfiguration))
}

func TestIngestURI_Kafka(t *testing.T) {
	stream := &mockStream{FetchFunc: func(_ context.Context, topic string) ([][]byte, error) {
		assert.Equal(t, "tasks", topic)
		return [][]byte{[]byte(`{"text":"Go"}`), []byte(`{"text":"Rust"}`)}, nil
	}}
	tasks, stats, err := New(WithStreamSource(stream)).IngestURI(context.Background(), "kafka://tasks")
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
	assert.Equal(t, 2, stats.Records)

	failing := &mockStream{FetchFunc: func(context.Context, string) ([][]byte, error) {
		return nil, io.ErrClosedPipe
	}}
	_, _, err = New(WithStreamSource(failing)).IngestURI(context.Background(), "kafka://tasks")
	assert.True(t, errors.IsCode(err, errors.ErrCodeMessagingError))
}
