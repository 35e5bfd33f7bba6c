// Package extraction runs the inference path: one raw resume text in, one
// grouped entity document out.
package extraction

import (
	"context"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/ResumeLens/internal/infrastructure/monitoring/logging"
	metrics "github.com/turtacn/ResumeLens/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ResumeLens/internal/intelligence/aggregate"
	"github.com/turtacn/ResumeLens/internal/intelligence/common"
	"github.com/turtacn/ResumeLens/internal/intelligence/normalize"
	"github.com/turtacn/ResumeLens/internal/intelligence/spanresolve"
	"github.com/turtacn/ResumeLens/pkg/errors"
	"github.com/turtacn/ResumeLens/pkg/types/resume"
)

// DefaultMinChars is the shortest normalized text worth recognizing.
const DefaultMinChars = 30

// Aligner supplies token boundaries for a normalized text.
type Aligner interface {
	Boundaries(text string) (*spanresolve.Boundaries, error)
}

// Cache stores extraction results. Get must return an error with code
// ErrCodeNotFound on a miss.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables result caching with the given TTL.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithAligner enables token alignment of recognized spans.
func WithAligner(a Aligner) Option {
	return func(s *Service) { s.aligner = a }
}

// WithMinChars overrides DefaultMinChars.
func WithMinChars(n int) Option {
	return func(s *Service) { s.minChars = n }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithMetrics(m metrics.PipelineMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service extracts entities from resume texts. The recognizer is shared
// read-only across calls.
type Service struct {
	normalizer *normalize.Normalizer
	recognizer common.Recognizer
	aligner    Aligner
	cache      Cache
	cacheTTL   time.Duration
	minChars   int
	logger     logging.Logger
	metrics    metrics.PipelineMetrics
	group      singleflight.Group
}

// NewService returns a Service over n and r.
func NewService(n *normalize.Normalizer, r common.Recognizer, opts ...Option) (*Service, error) {
	if n == nil {
		return nil, errors.Configuration("extraction: a normalizer is required")
	}
	if r == nil {
		return nil, errors.Configuration("extraction: a recognizer is required")
	}
	s := &Service{
		normalizer: n,
		recognizer: r,
		minChars:   DefaultMinChars,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.minChars < 0 {
		return nil, errors.Configuration("extraction: min_chars must not be negative")
	}
	s.logger = logging.OrNop(s.logger).Named("extraction")
	s.metrics = metrics.OrNoop(s.metrics)
	return s, nil
}

type cachedEntities struct {
	LengthChars int                 `json:"length_chars"`
	Entities    resume.EntityBucket `json:"entities"`
}

// Extract normalizes raw, recognizes and resolves its spans, and groups the
// surviving surfaces by label. Texts shorter than the minimum length are
// rejected with a malformed-input error.
func (s *Service) Extract(ctx context.Context, filename, raw string) (*aggregate.Document, error) {
	text := s.normalizer.Normalize(raw)
	length := resume.RuneLen(text)
	if length < s.minChars {
		return nil, errors.MalformedInput("extracted text too short").
			WithDetailf("file=%s chars=%d min=%d", filename, length, s.minChars)
	}

	key := s.CacheKey(text)
	// The shared call outlives any single caller's cancellation.
	flightCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		return s.extractCached(flightCtx, key, text, length)
	})
	var r singleflight.Result
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), errors.ErrCodeInternal, "extraction cancelled").WithDetail("file=" + filename)
	case r = <-ch:
	}
	if r.Err != nil {
		return nil, r.Err
	}
	if r.Shared {
		s.logger.Debug("collapsed duplicate extraction", logging.String("file", filename))
	}
	res := r.Val.(cachedEntities)
	doc := &aggregate.Document{
		Filename:    filename,
		LengthChars: res.LengthChars,
		Data:        aggregate.DocumentData{Text: text, Entities: res.Entities},
	}
	return doc, nil
}

// CacheKey is mode:model_version:xxhash(text).
func (s *Service) CacheKey(text string) string {
	return s.normalizer.Mode().String() + ":" + s.recognizer.Version() + ":" +
		strconv.FormatUint(xxhash.Sum64String(text), 16)
}

func (s *Service) extractCached(ctx context.Context, key, text string, length int) (cachedEntities, error) {
	if s.cache != nil {
		var hit cachedEntities
		err := s.cache.Get(ctx, key, &hit)
		switch {
		case err == nil:
			s.metrics.RecordCache(true)
			return hit, nil
		case errors.IsCode(err, errors.ErrCodeNotFound):
			s.metrics.RecordCache(false)
		default:
			s.metrics.RecordCache(false)
			s.logger.Warn("extraction cache read failed", logging.Err(err))
		}
	}

	res, err := s.run(ctx, text, length)
	if err != nil {
		return cachedEntities{}, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, res, s.cacheTTL); err != nil {
			s.logger.Warn("extraction cache write failed", logging.Err(err))
		}
	}
	return res, nil
}

func (s *Service) run(ctx context.Context, text string, length int) (cachedEntities, error) {
	candidates, err := s.recognizer.Recognize(ctx, text)
	if err != nil {
		return cachedEntities{}, errors.Wrap(err, errors.CodeUnknown, "recognize")
	}

	var bounds *spanresolve.Boundaries
	if s.aligner != nil {
		bounds, err = s.aligner.Boundaries(text)
		if err != nil {
			return cachedEntities{}, errors.Wrap(err, errors.ErrCodeInternal, "tokenize")
		}
	}

	start := time.Now()
	result := spanresolve.Resolve(length, candidates, bounds)
	s.metrics.ObserveResolve(time.Since(start))
	s.metrics.RecordSpanRejects(metrics.RejectInvalid, result.Invalid)
	s.metrics.RecordSpanRejects(metrics.RejectOverlapping, result.Overlapping)
	s.metrics.RecordSpanRejects(metrics.RejectUnaligned, result.Unaligned)

	return cachedEntities{
		LengthChars: length,
		Entities:    aggregate.Group(result.Spans, text),
	}, nil
}
