package extraction

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ResumeLens/internal/intelligence/common"
	"github.com/turtacn/ResumeLens/internal/intelligence/normalize"
	"github.com/turtacn/ResumeLens/internal/intelligence/termmatch"
	"github.com/turtacn/ResumeLens/internal/intelligence/tokenize"
	"github.com/turtacn/ResumeLens/pkg/errors"
	"github.com/turtacn/ResumeLens/pkg/types/resume"
)

const sampleText = "Jane Doe.\nSenior engineer skilled in Python and Docker, speaks English."

type mockCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	GetFunc func(ctx context.Context, key string, dest interface{}) error
}

func newMockCache() *mockCache {
	return &mockCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *mockCache) Get(ctx context.Context, key string, dest interface{}) error {
	if c.GetFunc != nil {
		return c.GetFunc(ctx, key, dest)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[key]
	if !ok {
		return errors.NotFound("cache miss")
	}
	return json.Unmarshal(b, dest)
}

func (c *mockCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = b
	c.ttls[key] = ttl
	return nil
}

func newService(t *testing.T, r common.Recognizer, opts ...Option) *Service {
	t.Helper()
	svc, err := NewService(normalize.MustNew(normalize.ModeSoftBreak), r, opts...)
	require.NoError(t, err)
	return svc
}

func TestNewService_RequiresDependencies(t *testing.T) {
	_, err := NewService(nil, &common.MockRecognizer{})
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfiguration))

	_, err = NewService(normalize.MustNew(normalize.ModeSoftBreak), nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfiguration))

	_, err = NewService(normalize.MustNew(normalize.ModeSoftBreak), &common.MockRecognizer{}, WithMinChars(-1))
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfiguration))
}

func TestExtract_RegexRecognizer(t *testing.T) {
	table, err := termmatch.Builtin("regex_v1")
	require.NoError(t, err)
	rec := common.NewRegexRecognizer(termmatch.MustCompile(table))
	svc := newService(t, rec, WithAligner(tokenize.New()))

	doc, err := svc.Extract(context.Background(), "jane.txt", sampleText)
	require.NoError(t, err)

	assert.Equal(t, "jane.txt", doc.Filename)
	assert.Equal(t, resume.RuneLen(sampleText), doc.LengthChars)
	assert.Equal(t, sampleText, doc.Data.Text)
	assert.Contains(t, doc.Data.Entities[resume.LabelSkill], "Python")
	assert.Contains(t, doc.Data.Entities[resume.LabelSkill], "Docker")
	assert.Equal(t, []string{"English"}, doc.Data.Entities[resume.LabelLanguage])
}

func TestExtract_SlashStacksStayAligned(t *testing.T) {
	table, err := termmatch.Builtin("regex_v1")
	require.NoError(t, err)
	rec := common.NewRegexRecognizer(termmatch.MustCompile(table))
	svc := newService(t, rec, WithAligner(tokenize.New()))

	doc, err := svc.Extract(context.Background(), "stack.txt",
		"Backend engineer. Stack: Python/Django, React/Redux, Docker and PostgreSQL.")
	require.NoError(t, err)
	skills := doc.Data.Entities[resume.LabelSkill]
	for _, want := range []string{"Python", "Django", "Redux", "Docker", "PostgreSQL"} {
		assert.Contains(t, skills, want)
	}
}

func TestExtract_TooShort(t *testing.T) {
	rec := &common.MockRecognizer{}
	svc := newService(t, rec)

	_, err := svc.Extract(context.Background(), "short.txt", "  tiny  \n")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMalformedInput))
	assert.Zero(t, rec.Calls())
}

func TestExtract_ResolvesOverlaps(t *testing.T) {
	text := strings.Repeat("x", 10) + " Acme University and more filler text"
	rec := &common.MockRecognizer{Spans: resume.SpanSet{
		{Start: 11, End: 15, Label: resume.LabelWorkExperience},
		{Start: 11, End: 26, Label: resume.LabelEducation},
		{Start: 0, End: 500, Label: resume.LabelSkill},
	}}
	svc := newService(t, rec)

	doc, err := svc.Extract(context.Background(), "a.txt", text)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme"}, doc.Data.Entities[resume.LabelWorkExperience])
	assert.Empty(t, doc.Data.Entities[resume.LabelEducation])
	assert.Empty(t, doc.Data.Entities[resume.LabelSkill])
}

func TestExtract_RecognizerError(t *testing.T) {
	rec := &common.MockRecognizer{RecognizeFunc: func(context.Context, string) (resume.SpanSet, error) {
		return nil, errors.New(errors.ErrCodeExternalService, "model down")
	}}
	svc := newService(t, rec)

	_, err := svc.Extract(context.Background(), "a.txt", sampleText)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeExternalService))
}

func TestExtract_CacheHit(t *testing.T) {
	rec := &common.MockRecognizer{ModelVersion: "m1", Spans: resume.SpanSet{
		{Start: 0, End: 8, Label: resume.LabelWorkExperience},
	}}
	cache := newMockCache()
	svc := newService(t, rec, WithCache(cache, time.Hour))

	first, err := svc.Extract(context.Background(), "a.txt", sampleText)
	require.NoError(t, err)
	second, err := svc.Extract(context.Background(), "b.txt", sampleText)
	require.NoError(t, err)

	assert.EqualValues(t, 1, rec.Calls())
	assert.Equal(t, "b.txt", second.Filename)
	assert.Equal(t, first.Data.Entities[resume.LabelWorkExperience], second.Data.Entities[resume.LabelWorkExperience])
	assert.Equal(t, time.Hour, cache.ttls[svc.CacheKey(sampleText)])
}

func TestExtract_CacheErrorFallsThrough(t *testing.T) {
	rec := &common.MockRecognizer{}
	cache := newMockCache()
	cache.GetFunc = func(context.Context, string, interface{}) error {
		return errors.New(errors.ErrCodeCacheError, "connection refused")
	}
	svc := newService(t, rec, WithCache(cache, time.Minute))

	_, err := svc.Extract(context.Background(), "a.txt", sampleText)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rec.Calls())
}

func TestCacheKey(t *testing.T) {
	a := newService(t, &common.MockRecognizer{ModelVersion: "m1"})
	b := newService(t, &common.MockRecognizer{ModelVersion: "m2"})

	key := a.CacheKey(sampleText)
	assert.True(t, strings.HasPrefix(key, "soft_break:m1:"))
	assert.Equal(t, key, a.CacheKey(sampleText))
	assert.NotEqual(t, key, a.CacheKey(sampleText+"!"))
	assert.NotEqual(t, key, b.CacheKey(sampleText))
}

func TestExtract_ConcurrentCallsCollapse(t *testing.T) {
	release := make(chan struct{})
	rec := &common.MockRecognizer{RecognizeFunc: func(context.Context, string) (resume.SpanSet, error) {
		<-release
		return resume.SpanSet{}, nil
	}}
	svc := newService(t, rec)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Extract(context.Background(), "a.txt", sampleText)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, rec.Calls(), int64(8))
	assert.GreaterOrEqual(t, rec.Calls(), int64(1))
}

func TestExtract_CancelledCallerDoesNotFailOthers(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	rec := &common.MockRecognizer{RecognizeFunc: func(ctx context.Context, _ string) (resume.SpanSet, error) {
		once.Do(func() { close(started) })
		select {
		case <-release:
			return resume.SpanSet{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}
	svc := newService(t, rec)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Extract(ctx, "a.txt", sampleText)
		firstErr <- err
	}()
	<-started

	secondErr := make(chan error, 1)
	go func() {
		_, err := svc.Extract(context.Background(), "b.txt", sampleText)
		secondErr <- err
	}()

	cancel()
	assert.Error(t, <-firstErr)
	close(release)
	assert.NoError(t, <-secondErr)
}
