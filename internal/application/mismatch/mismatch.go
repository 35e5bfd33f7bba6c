// Package mismatch compares gold corpus spans with recognizer output and
// reports, per resume, every span the two disagree on.
package mismatch

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/turtacn/ResumeLens/internal/application/corpus"
	"github.com/turtacn/ResumeLens/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ResumeLens/internal/intelligence/common"
	"github.com/turtacn/ResumeLens/internal/intelligence/nameguess"
	"github.com/turtacn/ResumeLens/internal/intelligence/spanresolve"
	"github.com/turtacn/ResumeLens/pkg/errors"
	"github.com/turtacn/ResumeLens/pkg/types/resume"
)

// NoLabel marks the side of a mismatch that has no span at that range.
const NoLabel = "No label"

// NoMismatches is printed when every example agrees.
const NoMismatches = "No mismatches found: predictions match gold spans exactly for the selected labels."

// Mismatch is one disagreement at a character range.
type Mismatch struct {
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Fragment  string `json:"fragment"`
	Predicted string `json:"predicted"`
	Gold      string `json:"gold"`
}

// Report lists the mismatches of one example. Index is 1-based.
type Report struct {
	Index      int        `json:"index"`
	ExampleID  string     `json:"example_id"`
	Name       string     `json:"name"`
	Mismatches []Mismatch `json:"mismatches"`
}

// Comparer runs a recognizer over gold examples.
type Comparer struct {
	recognizer common.Recognizer
	aligner    corpus.Aligner
	labels     map[resume.Label]bool
	logger     logging.Logger
}

// NewComparer restricts comparison to labels, or to every target label when
// labels is empty. aligner may be nil.
func NewComparer(r common.Recognizer, aligner corpus.Aligner, labels []resume.Label, logger logging.Logger) (*Comparer, error) {
	if r == nil {
		return nil, errors.Configuration("mismatch: a recognizer is required")
	}
	if len(labels) == 0 {
		labels = resume.Labels()
	}
	set := make(map[resume.Label]bool, len(labels))
	for _, l := range labels {
		if !l.Valid() {
			return nil, errors.Configuration("mismatch: unknown label").WithDetailf("label=%q", l)
		}
		set[l] = true
	}
	return &Comparer{
		recognizer: r,
		aligner:    aligner,
		labels:     set,
		logger:     logging.OrNop(logger).Named("mismatch"),
	}, nil
}

// Compare returns a report for every example with at least one mismatch,
// in input order.
func (c *Comparer) Compare(ctx context.Context, examples []corpus.Example) ([]Report, error) {
	var reports []Report
	for i, ex := range examples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		predicted, err := c.predict(ctx, ex.Text)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeUnknown, "predict").WithDetail("example=" + ex.ID)
		}
		ms := Diff(ex.Text, c.filter(ex.Spans), c.filter(predicted))
		if len(ms) == 0 {
			continue
		}
		reports = append(reports, Report{
			Index:      i + 1,
			ExampleID:  ex.ID,
			Name:       nameguess.Guess(ex.Text),
			Mismatches: ms,
		})
	}
	c.logger.Info("compared examples",
		logging.Int("examples", len(examples)),
		logging.Int("with_mismatches", len(reports)),
		logging.String("model_version", c.recognizer.Version()),
	)
	return reports, nil
}

func (c *Comparer) predict(ctx context.Context, text string) (resume.SpanSet, error) {
	candidates, err := c.recognizer.Recognize(ctx, text)
	if err != nil {
		return nil, err
	}
	var bounds *spanresolve.Boundaries
	if c.aligner != nil {
		if bounds, err = c.aligner.Boundaries(text); err != nil {
			return nil, err
		}
	}
	return spanresolve.Resolve(resume.RuneLen(text), candidates, bounds).Spans, nil
}

func (c *Comparer) filter(spans resume.SpanSet) resume.SpanSet {
	out := make(resume.SpanSet, 0, len(spans))
	for _, s := range spans {
		if c.labels[s.Label] {
			out = append(out, s)
		}
	}
	return out
}

type rangeKey struct{ start, end int }

// Diff reports gold spans whose range was predicted with another label or
// not at all, followed by predicted ranges with no gold span. Both groups
// are ordered by position. Fragments have their whitespace collapsed.
func Diff(text string, gold, predicted resume.SpanSet) []Mismatch {
	runes := []rune(text)
	goldBy := indexByRange(gold)
	predBy := indexByRange(predicted)

	var out []Mismatch
	seen := make(map[rangeKey]bool, len(goldBy))
	for _, g := range gold.Sorted() {
		k := rangeKey{g.Start, g.End}
		if seen[k] {
			continue
		}
		seen[k] = true
		g.Label = goldBy[k]
		p, ok := predBy[k]
		switch {
		case !ok:
			out = append(out, newMismatch(runes, g, NoLabel, string(g.Label)))
		case p != g.Label:
			out = append(out, newMismatch(runes, g, string(p), string(g.Label)))
		}
	}
	for _, p := range predicted.Sorted() {
		k := rangeKey{p.Start, p.End}
		if _, ok := goldBy[k]; ok || seen[k] {
			continue
		}
		seen[k] = true
		p.Label = predBy[k]
		out = append(out, newMismatch(runes, p, string(p.Label), NoLabel))
	}
	return out
}

// indexByRange keeps the last label seen per range.
func indexByRange(spans resume.SpanSet) map[rangeKey]resume.Label {
	m := make(map[rangeKey]resume.Label, len(spans))
	for _, s := range spans {
		m[rangeKey{s.Start, s.End}] = s.Label
	}
	return m
}

func newMismatch(runes []rune, s resume.Span, predicted, gold string) Mismatch {
	return Mismatch{
		Start:     s.Start,
		End:       s.End,
		Fragment:  strings.Join(strings.Fields(s.Text(runes)), " "),
		Predicted: predicted,
		Gold:      gold,
	}
}

// WriteText prints reports in the plain review format, or NoMismatches when
// there are none.
func WriteText(w io.Writer, reports []Report) error {
	if len(reports) == 0 {
		_, err := fmt.Fprintln(w, NoMismatches)
		return err
	}
	for _, r := range reports {
		if _, err := fmt.Fprintf(w, "Resume # %d %s\n", r.Index, r.Name); err != nil {
			return err
		}
		for _, m := range r.Mismatches {
			if _, err := fmt.Fprintf(w, "\"%s\" \"%s\" \"%s\"\n", m.Fragment, m.Predicted, m.Gold); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}
