package normalize

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ResumeLens/pkg/errors"
	"github.com/turtacn/ResumeLens/pkg/types/resume"
)

func TestParseMode(t *testing.T) {
	for _, m := range Modes() {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}

	_, err := ParseMode("")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfiguration))

	_, err = ParseMode("lowercase")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lowercase")
}

func TestNew_UnknownMode(t *testing.T) {
	_, err := New("fancy")
	assert.Error(t, err)
	assert.Panics(t, func() { MustNew("") })
}

func TestNormalize_SoftBreak(t *testing.T) {
	n := MustNew(ModeSoftBreak)
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"crlf", "Line one\r\n\r\nLine 2\rend", "Line one\n\nLine 2\nend"},
		{"cid", "Python(cid:12)Go", "Python Go"},
		{"soft break", "Machine\nLearning", "Machine Learning"},
		{"soft break chain", "a\nb\nc", "a b c"},
		{"digit keeps newline", "2019\nBerlin", "2019\nBerlin"},
		{"hyphen kept", "data-\nbase", "data-\nbase"},
		{"spaces", "Go  \t Rust", "Go Rust"},
		{"blank lines", "A.\n\n\n\nB.", "A.\n\nB."},
		{"trim", "  \n Skills \n ", "Skills"},
		{"cid before newline", "Team(cid:3)\nwork", "Team \nwork"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Normalize(tt.in))
		})
	}
}

func TestNormalize_Dehyphenate(t *testing.T) {
	n := MustNew(ModeDehyphenate)
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"hyphen break", "data-\nbase", "database"},
		{"hyphen with spaces", "Kuber- \n  netes", "Kubernetes"},
		{"crlf hyphen", "micro-\r\nservices", "microservices"},
		{"soft break kept", "Machine\nLearning", "Machine\nLearning"},
		{"cid", "(cid:7)Docker", "Docker"},
		{"reassembled cid", "x (ci-\nd:12) y", "x y"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	fragments := []string{
		"a", "B", "z", "7", "-", " ", "\t", "\n", "\r", "\r\n", "(cid:", "12)", "(cid:3)",
		"ä", "é", "Python", "C++", ".", " ", "ci", "d:9)",
	}
	rng := rand.New(rand.NewSource(42))
	for _, m := range Modes() {
		n := MustNew(m)
		for i := 0; i < 2000; i++ {
			var sb strings.Builder
			for j := rng.Intn(24); j >= 0; j-- {
				sb.WriteString(fragments[rng.Intn(len(fragments))])
			}
			once := n.Normalize(sb.String())
			require.Equal(t, once, n.Normalize(once), "mode=%s input=%q", m, sb.String())
		}
	}
}

func TestDocument(t *testing.T) {
	n := MustNew(ModeSoftBreak)
	doc := n.Document("  Go\nlang ")
	assert.Equal(t, "  Go\nlang ", doc.Raw)
	assert.Equal(t, "Go lang", doc.Normalized)
	assert.Equal(t, "soft_break", doc.Mode)
	assert.Equal(t, ModeSoftBreak, n.Mode())
}

func TestNormalizeWithOffsets(t *testing.T) {
	tests := []struct {
		name       string
		mode       Mode
		raw        string
		start, end int
		want       string
	}{
		{"crlf soft break", ModeSoftBreak, "Python developer\r\nJava", 18, 22, "Java"},
		{"unchanged prefix", ModeSoftBreak, "Python developer\r\nJava", 0, 6, "Python"},
		{"trimmed", ModeSoftBreak, "  Skills  ", 2, 8, "Skills"},
		{"collapsed spaces", ModeSoftBreak, "Go  \t developer", 6, 15, "developer"},
		{"cid", ModeSoftBreak, "Python(cid:12)Go", 14, 16, "Go"},
		{"dehyphenated", ModeDehyphenate, "data-\nbase engineer", 0, 10, "database"},
		{"after join", ModeDehyphenate, "data-\nbase engineer", 11, 19, "engineer"},
		{"span end inside whitespace", ModeSoftBreak, "Docker   Go", 0, 8, "Docker"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := MustNew(tt.mode)
			text, m := n.NormalizeWithOffsets(tt.raw)
			assert.Equal(t, n.Normalize(tt.raw), text)
			assert.Equal(t, resume.RuneLen(tt.raw), m.Len())

			s, e, ok := m.Span(tt.start, tt.end)
			require.True(t, ok)
			assert.Equal(t, tt.want, string([]rune(text)[s:e]))
		})
	}
}

func TestNormalizeWithOffsets_Lost(t *testing.T) {
	_, m := MustNew(ModeSoftBreak).NormalizeWithOffsets("  Skills  ")
	_, _, ok := m.Span(0, 2)
	assert.False(t, ok, "trimmed whitespace has no image")
	_, _, ok = m.Span(3, 11)
	assert.False(t, ok, "out of range")

	text, m := MustNew(ModeSoftBreak).NormalizeWithOffsets("")
	assert.Empty(t, text)
	_, _, ok = m.Span(0, 0)
	assert.False(t, ok)
}

func TestNormalizeWithOffsets_WordSurvives(t *testing.T) {
	fragments := []string{
		"a", "B", "7", "-", " ", "\t", "\n", "\r", "\r\n", "(cid:", "12)", "(cid:3)", "ä", "C++", ".", "ci", "d:9)",
	}
	random := func(rng *rand.Rand) string {
		var sb strings.Builder
		for j := rng.Intn(12); j > 0; j-- {
			sb.WriteString(fragments[rng.Intn(len(fragments))])
		}
		return sb.String()
	}
	rng := rand.New(rand.NewSource(7))
	for _, mode := range Modes() {
		n := MustNew(mode)
		for i := 0; i < 1000; i++ {
			prefix := random(rng) + " "
			raw := prefix + "Python " + random(rng)
			start := resume.RuneLen(prefix)

			text, m := n.NormalizeWithOffsets(raw)
			require.Equal(t, n.Normalize(raw), text)
			s, e, ok := m.Span(start, start+6)
			require.True(t, ok, "mode=%s raw=%q", mode, raw)
			require.Equal(t, "Python", string([]rune(text)[s:e]), "mode=%s raw=%q", mode, raw)
		}
	}
}
