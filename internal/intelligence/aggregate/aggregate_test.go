package aggregate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ResumeLens/pkg/types/resume"
)

// spansOf lays the words out space-separated and returns one span per word.
func spansOf(label resume.Label, words ...string) (resume.SpanSet, string) {
	var text []rune
	var spans resume.SpanSet
	for i, w := range words {
		if i > 0 {
			text = append(text, ' ')
		}
		start := len(text)
		text = append(text, []rune(w)...)
		spans = append(spans, resume.Span{Start: start, End: len(text), Label: label})
	}
	return spans, string(text)
}

func TestGroup_CaseInsensitiveDedupe(t *testing.T) {
	spans, text := spansOf(resume.LabelSkill, "Python", "python", "PYTHON", "Java")
	got := Group(spans, text)
	assert.Equal(t, []string{"Python", "Java"}, got[resume.LabelSkill])
	assert.Empty(t, got[resume.LabelLanguage])
}

func TestGroup_FoldsBeyondASCII(t *testing.T) {
	spans, text := spansOf(resume.LabelEducation, "Universität", "UNIVERSITÄT", "École")
	got := Group(spans, text)
	assert.Equal(t, []string{"Universität", "École"}, got[resume.LabelEducation])
}

func TestGroup_NoCrossLabelDedupe(t *testing.T) {
	text := "Go Go"
	spans := resume.SpanSet{
		{Start: 0, End: 2, Label: resume.LabelSkill},
		{Start: 3, End: 5, Label: resume.LabelLanguage},
	}
	got := Group(spans, text)
	assert.Equal(t, []string{"Go"}, got[resume.LabelSkill])
	assert.Equal(t, []string{"Go"}, got[resume.LabelLanguage])
}

func TestGroup_SkipsBadSpans(t *testing.T) {
	text := " Go   Rust"
	spans := resume.SpanSet{
		{Start: 0, End: 4, Label: resume.LabelSkill},
		{Start: 3, End: 5, Label: resume.LabelSkill},
		{Start: 6, End: 40, Label: resume.LabelSkill},
		{Start: 6, End: 10, Label: "Hobby"},
	}
	got := Group(spans, text)
	assert.Equal(t, []string{"Go"}, got[resume.LabelSkill])
	assert.Equal(t, 1, got.Total())
}

func TestGroup_Empty(t *testing.T) {
	got := Group(nil, "")
	assert.Len(t, got, 4)
	assert.Zero(t, got.Total())
}

func TestResponse_JSON(t *testing.T) {
	spans, text := spansOf(resume.LabelSkill, "Go")
	data, err := json.Marshal(Response{Entities: Group(spans, text)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"entities":{"Skill":["Go"],"Work_Experience":[],"Education":[],"Language":[]}}`, string(data))
}

func TestNewDocument(t *testing.T) {
	doc := NewDocument("cv.txt", "Zürich", nil)
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"filename": "cv.txt",
		"length_chars": 6,
		"data": {"text": "Zürich", "entities": {"Skill":[],"Work_Experience":[],"Education":[],"Language":[]}}
	}`, string(data))
}
