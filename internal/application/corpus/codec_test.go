package corpus

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ResumeLens/pkg/errors"
	"github.com/turtacn/ResumeLens/pkg/types/resume"
)

func sampleHeader() Header {
	return Header{Partition: "train", Mode: "soft_break", LabelSource: "annotations", RunID: "run-1", CreatedUnix: 1700000000}
}

func TestCodec_StreamExamples(t *testing.T) {
	examples := []Example{
		{ID: "a", Text: "Go and Rust in Zürich", Spans: resume.SpanSet{
			{Start: 0, End: 2, Label: resume.LabelSkill, Source: resume.SourceGold},
			{Start: 7, End: 11, Label: resume.LabelSkill, Source: resume.SourceGold},
		}},
		{ID: "b", Text: "no entities"},
	}

	var buf bytes.Buffer
	w, err := NewWriter(&buf, sampleHeader())
	require.NoError(t, err)
	for _, ex := range examples {
		require.NoError(t, w.WriteExample(ex))
	}
	require.NoError(t, w.Close())
	assert.Equal(t, 2, w.Count())
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("RLCORPUS\x01")))

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, sampleHeader(), r.Header())

	got, err := r.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, examples, got)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestNewReader_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", []byte("NOTACORP\x01")},
		{"bad version", []byte("RLCORPUS\x07")},
		{"not zstd", []byte("RLCORPUS\x01garbage-bytes")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(bytes.NewReader(tt.data))
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeMalformedInput), err.Error())
		})
	}
}

func TestReader_TruncatedStream(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, sampleHeader())
	require.NoError(t, err)
	require.NoError(t, w.WriteExample(Example{ID: "x", Text: "some text that is long enough to matter"}))
	require.NoError(t, w.Close())

	data := buf.Bytes()[:buf.Len()-6]
	r, err := NewReader(bytes.NewReader(data))
	if err != nil {
		assert.True(t, errors.IsCode(err, errors.ErrCodeMalformedInput))
		return
	}
	defer r.Close()
	_, err = r.ReadAll()
	assert.Error(t, err)
}

func TestDecodeSpan_UnknownLabel(t *testing.T) {
	rec := encodeExample(Example{ID: "x", Text: "t", Spans: resume.SpanSet{{Start: 0, End: 1, Label: "Hobby"}}})
	_, err := decodeExample(rec)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMalformedInput))
}

func TestDecodeExample_SkipsUnknownFields(t *testing.T) {
	rec := encodeExample(Example{ID: "x", Text: "t"})
	rec = appendString(rec, 15, "future field")
	ex, err := decodeExample(rec)
	require.NoError(t, err)
	assert.Equal(t, "x", ex.ID)
}
