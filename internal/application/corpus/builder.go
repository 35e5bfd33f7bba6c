// Package corpus turns ingested tasks into training partitions of resolved,
// token-aligned examples and persists them in a compact container format.
package corpus

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/ResumeLens/internal/infrastructure/monitoring/logging"
	metrics "github.com/turtacn/ResumeLens/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ResumeLens/internal/intelligence/normalize"
	"github.com/turtacn/ResumeLens/internal/intelligence/spanresolve"
	"github.com/turtacn/ResumeLens/pkg/errors"
	"github.com/turtacn/ResumeLens/pkg/types/resume"
)

// exampleNamespace seeds deterministic example IDs.
var exampleNamespace = uuid.MustParse("6f1c9a52-7d0e-4b8a-9a43-3c1f4e2d8b70")

// Aligner supplies token boundaries for a normalized text.
type Aligner interface {
	Boundaries(text string) (*spanresolve.Boundaries, error)
}

// Example is one training record.
type Example struct {
	ID    string
	Text  string
	Spans resume.SpanSet
}

// Partition is a named, ordered list of examples.
type Partition struct {
	Name     string
	Examples []Example
}

// Stats counts the outcome of one build.
type Stats struct {
	Tasks           int `json:"tasks"`
	WithEntities    int `json:"with_entities"`
	WithoutEntities int `json:"without_entities"`
	Skipped         int `json:"skipped"`
	Drifted         int `json:"drifted"`
	Invalid         int `json:"invalid"`
	Overlapping     int `json:"overlapping"`
	Unaligned       int `json:"unaligned"`
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Tasks += o.Tasks
	s.WithEntities += o.WithEntities
	s.WithoutEntities += o.WithoutEntities
	s.Skipped += o.Skipped
	s.Drifted += o.Drifted
	s.Invalid += o.Invalid
	s.Overlapping += o.Overlapping
	s.Unaligned += o.Unaligned
}

// Options tunes a Builder.
type Options struct {
	UsePredictions bool
	Workers        int
	// RemapOffsets reads span offsets against the raw task text and moves
	// them into the normalized text. Without it offsets are taken to point
	// into the normalized text already.
	RemapOffsets bool
}

// LabelSource names the task field spans are read from.
func (o Options) LabelSource() string {
	if o.UsePredictions {
		return "predictions"
	}
	return "annotations"
}

// Builder resolves tasks into examples. It holds no mutable state and may
// run several builds at once.
type Builder struct {
	normalizer *normalize.Normalizer
	aligner    Aligner
	opts       Options
	logger     logging.Logger
	metrics    metrics.PipelineMetrics
}

// NewBuilder returns a Builder. aligner may be nil to skip token alignment.
func NewBuilder(n *normalize.Normalizer, aligner Aligner, opts Options, logger logging.Logger, m metrics.PipelineMetrics) (*Builder, error) {
	if n == nil {
		return nil, errors.Configuration("corpus: a normalizer is required")
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Builder{
		normalizer: n,
		aligner:    aligner,
		opts:       opts,
		logger:     logging.OrNop(logger).Named("corpus"),
		metrics:    metrics.OrNoop(m),
	}, nil
}

// Mode returns the normalization mode of produced examples.
func (b *Builder) Mode() normalize.Mode { return b.normalizer.Mode() }

// Options returns the build options.
func (b *Builder) Options() Options { return b.opts }

type taskOutcome struct {
	example *Example
	outcome string
	drifted bool
	lost    int
	result  spanresolve.Result
}

// Build resolves every task of one partition. Output order follows input
// order. Each task with non-empty text yields exactly one example, with or
// without entities. Empty tasks yield none and are counted as skipped.
func (b *Builder) Build(ctx context.Context, name string, tasks []resume.Task) (Partition, Stats, error) {
	outcomes := make([]taskOutcome, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)
	for i := range tasks {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := b.buildOne(i, tasks[i])
			if err != nil {
				return err
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Partition{}, Stats{}, err
	}

	part := Partition{Name: name, Examples: make([]Example, 0, len(tasks))}
	stats := Stats{Tasks: len(tasks)}
	for _, o := range outcomes {
		switch o.outcome {
		case metrics.OutcomeSkipped:
			stats.Skipped++
		case metrics.OutcomeWithEntities:
			stats.WithEntities++
		case metrics.OutcomeWithoutEntities:
			stats.WithoutEntities++
		}
		if o.drifted {
			stats.Drifted++
		}
		stats.Invalid += o.result.Invalid + o.lost
		stats.Overlapping += o.result.Overlapping
		stats.Unaligned += o.result.Unaligned
		b.metrics.RecordExample(name, o.outcome)
		if o.example != nil {
			part.Examples = append(part.Examples, *o.example)
		}
	}
	b.metrics.RecordSpanRejects(metrics.RejectInvalid, stats.Invalid)
	b.metrics.RecordSpanRejects(metrics.RejectOverlapping, stats.Overlapping)
	b.metrics.RecordSpanRejects(metrics.RejectUnaligned, stats.Unaligned)

	b.logger.Info("built partition",
		logging.String("partition", name),
		logging.Int("tasks", stats.Tasks),
		logging.Int("with_entities", stats.WithEntities),
		logging.Int("without_entities", stats.WithoutEntities),
		logging.Int("skipped", stats.Skipped),
		logging.Int("drifted", stats.Drifted),
		logging.Int("invalid", stats.Invalid),
		logging.Int("overlapping", stats.Overlapping),
		logging.Int("unaligned", stats.Unaligned),
	)
	return part, stats, nil
}

func (b *Builder) buildOne(idx int, task resume.Task) (taskOutcome, error) {
	text, offsets := b.normalizer.NormalizeWithOffsets(task.Text)
	if text == "" {
		return taskOutcome{outcome: metrics.OutcomeSkipped}, nil
	}
	candidates := task.Candidates(b.opts.UsePredictions)
	var drifted bool
	var lost int
	if text != task.Text && len(candidates) > 0 {
		drifted = true
		if b.opts.RemapOffsets {
			candidates, lost = remap(candidates, offsets)
		}
		b.logger.Debug("offsets drift under normalization",
			logging.String("task", task.ID),
			logging.String("mode", b.normalizer.Mode().String()),
			logging.Bool("remapped", b.opts.RemapOffsets),
			logging.Int("lost", lost))
	}

	var bounds *spanresolve.Boundaries
	if b.aligner != nil {
		var err error
		if bounds, err = b.aligner.Boundaries(text); err != nil {
			return taskOutcome{}, errors.Wrap(err, errors.CodeUnknown, "corpus: tokenize task "+task.ID)
		}
	}

	start := time.Now()
	res := spanresolve.Resolve(resume.RuneLen(text), candidates, bounds)
	b.metrics.ObserveResolve(time.Since(start))

	outcome := metrics.OutcomeWithoutEntities
	if len(res.Spans) > 0 {
		outcome = metrics.OutcomeWithEntities
	}
	return taskOutcome{
		example: &Example{ID: ExampleID(text, idx), Text: text, Spans: res.Spans},
		outcome: outcome,
		drifted: drifted,
		lost:    lost,
		result:  res,
	}, nil
}

// remap moves raw-text spans into the normalized text. Spans that do not
// survive normalization are dropped and counted.
func remap(spans resume.SpanSet, offsets normalize.OffsetMap) (resume.SpanSet, int) {
	out := make(resume.SpanSet, 0, len(spans))
	lost := 0
	for _, sp := range spans {
		start, end, ok := offsets.Span(sp.Start, sp.End)
		if !ok {
			lost++
			continue
		}
		sp.Start, sp.End = start, end
		out = append(out, sp)
	}
	return out, lost
}

// ExampleID derives a stable identifier from the normalized text and the
// task's position in its input.
func ExampleID(text string, idx int) string {
	return uuid.NewSHA1(exampleNamespace, []byte(strconv.Itoa(idx)+"\x00"+text)).String()
}
