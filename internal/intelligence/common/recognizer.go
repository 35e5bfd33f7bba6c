// Package common holds the model boundary of the inference path: the
// Recognizer contract and its implementations.
package common

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/turtacn/ResumeLens/internal/intelligence/termmatch"
	"github.com/turtacn/ResumeLens/pkg/types/resume"
)

// Recognizer produces candidate spans for a normalized text. Offsets are
// code points. Implementations are read-only after construction and safe
// for concurrent use.
type Recognizer interface {
	Recognize(ctx context.Context, text string) (resume.SpanSet, error)
	// Version identifies the model or table; it is part of cache keys.
	Version() string
	Close() error
}

// ---------------------------------------------------------------------------
// RegexRecognizer
// ---------------------------------------------------------------------------

// RegexRecognizer serves weak-label candidates from a compiled table.
type RegexRecognizer struct {
	matcher *termmatch.Matcher
}

// NewRegexRecognizer wraps m.
func NewRegexRecognizer(m *termmatch.Matcher) *RegexRecognizer {
	return &RegexRecognizer{matcher: m}
}

func (r *RegexRecognizer) Recognize(ctx context.Context, text string) (resume.SpanSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.matcher.FindCandidates(text), nil
}

func (r *RegexRecognizer) Version() string { return r.matcher.Version() }

func (r *RegexRecognizer) Close() error { return nil }

// ---------------------------------------------------------------------------
// MockRecognizer
// ---------------------------------------------------------------------------

// MockRecognizer is a Recognizer for tests. RecognizeFunc defaults to
// returning Spans.
type MockRecognizer struct {
	RecognizeFunc func(ctx context.Context, text string) (resume.SpanSet, error)
	Spans         resume.SpanSet
	ModelVersion  string

	calls  atomic.Int64
	mu     sync.Mutex
	closed bool
}

func (m *MockRecognizer) Recognize(ctx context.Context, text string) (resume.SpanSet, error) {
	m.calls.Add(1)
	if m.RecognizeFunc != nil {
		return m.RecognizeFunc(ctx, text)
	}
	out := make(resume.SpanSet, len(m.Spans))
	copy(out, m.Spans)
	return out, nil
}

func (m *MockRecognizer) Version() string {
	if m.ModelVersion == "" {
		return "mock"
	}
	return m.ModelVersion
}

func (m *MockRecognizer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Calls returns how many times Recognize ran.
func (m *MockRecognizer) Calls() int64 { return m.calls.Load() }

// Closed reports whether Close was called.
func (m *MockRecognizer) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
