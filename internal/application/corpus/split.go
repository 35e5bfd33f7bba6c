package corpus

import (
	"context"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/turtacn/ResumeLens/pkg/errors"
	"github.com/turtacn/ResumeLens/pkg/types/resume"
)

// Partition names.
const (
	PartitionTrain = "train"
	PartitionDev   = "dev"
	PartitionTest  = "test"
)

// PartitionNames returns the partitions in output order.
func PartitionNames() []string {
	return []string{PartitionTrain, PartitionDev, PartitionTest}
}

const splitBuckets = 10000

// Ratios divides a single task set into partitions.
type Ratios struct {
	Train, Dev, Test float64
}

// Validate checks that the ratios are non-negative and sum to one.
func (r Ratios) Validate() error {
	if r.Train < 0 || r.Dev < 0 || r.Test < 0 {
		return errors.Validation("split", "ratios must be non-negative")
	}
	if math.Abs(r.Train+r.Dev+r.Test-1) > 1e-6 {
		return errors.Validation("split", "ratios must sum to 1")
	}
	return nil
}

// Corpus is the result of a full build.
type Corpus struct {
	RunID      string
	Mode       string
	Source     string
	CreatedAt  time.Time
	Partitions []Partition
	Stats      map[string]Stats
}

// Total sums the stats of every partition.
func (c *Corpus) Total() Stats {
	var s Stats
	for _, name := range PartitionNames() {
		s.Add(c.Stats[name])
	}
	return s
}

// BuildPartitions builds the three given task sets.
func (b *Builder) BuildPartitions(ctx context.Context, train, dev, test []resume.Task) (*Corpus, error) {
	c := &Corpus{
		RunID:     uuid.New().String(),
		Mode:      b.Mode().String(),
		Source:    b.opts.LabelSource(),
		CreatedAt: time.Now().UTC(),
		Stats:     make(map[string]Stats, 3),
	}
	sets := map[string][]resume.Task{PartitionTrain: train, PartitionDev: dev, PartitionTest: test}
	for _, name := range PartitionNames() {
		part, stats, err := b.Build(ctx, name, sets[name])
		if err != nil {
			return nil, err
		}
		c.Partitions = append(c.Partitions, part)
		c.Stats[name] = stats
	}
	return c, nil
}

// BuildSplit assigns each task of one set to a partition by a hash of its
// normalized text, then builds the partitions. Assignment does not depend on
// task order, and each partition keeps input order.
func (b *Builder) BuildSplit(ctx context.Context, tasks []resume.Task, r Ratios) (*Corpus, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	train, dev, test := b.Assign(tasks, r)
	return b.BuildPartitions(ctx, train, dev, test)
}

// Assign splits tasks by ratio.
func (b *Builder) Assign(tasks []resume.Task, r Ratios) (train, dev, test []resume.Task) {
	trainCut := uint64(math.Round(r.Train * splitBuckets))
	devCut := uint64(math.Round((r.Train + r.Dev) * splitBuckets))
	for _, t := range tasks {
		bucket := xxhash.Sum64String(b.normalizer.Normalize(t.Text)) % splitBuckets
		switch {
		case bucket < trainCut:
			train = append(train, t)
		case bucket < devCut:
			dev = append(dev, t)
		default:
			test = append(test, t)
		}
	}
	return train, dev, test
}
