package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/ResumeLens/internal/application/corpus"
	"github.com/turtacn/ResumeLens/internal/infrastructure/database/postgres"
	"github.com/turtacn/ResumeLens/internal/infrastructure/database/redis"
	"github.com/turtacn/ResumeLens/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ResumeLens/pkg/errors"
	"github.com/turtacn/ResumeLens/pkg/types/resume"
)

type buildOptions struct {
	output         string
	split          []float64
	usePredictions bool
	workers        int
}

func newBuildCorpusCmd() *cobra.Command {
	opts := &buildOptions{}
	cmd := &cobra.Command{
		Use:   "build-corpus TRAIN DEV TEST | build-corpus TASKS --split 0.8,0.1,0.1",
		Short: "Resolve annotated tasks into train, dev and test corpus containers",
		Long: "Builds token-aligned, non-overlapping examples from annotation exports.\n" +
			"With three sources each becomes one partition. With one source the tasks\n" +
			"are split by --split or the configured corpus.split ratios. Sources may be\n" +
			"paths, s3://bucket/key or kafka://topic.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 && len(args) != 3 {
				return errors.Validation("args", "expected one source with a split or three sources")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuildCorpus(cmd, args, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.output, "out", "", "output directory or s3://bucket/prefix (default: corpus.output)")
	f.Float64SliceVar(&opts.split, "split", nil, "train,dev,test ratios for a single source")
	f.BoolVar(&opts.usePredictions, "use-predictions", false, "read spans from predictions instead of annotations")
	f.IntVar(&opts.workers, "workers", 0, "resolution workers per partition (default: corpus.workers)")
	return cmd
}

func runBuildCorpus(cmd *cobra.Command, args []string, opts *buildOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	cfg := cliCtx.Config
	rt := newRuntime(cliCtx)
	defer rt.Close()

	buildOpts := corpus.Options{
		UsePredictions: cfg.Corpus.UsePredictions || opts.usePredictions,
		Workers:        cfg.Corpus.Workers,
		RemapOffsets:   cfg.Corpus.RemapOffsets,
	}
	if opts.workers > 0 {
		buildOpts.Workers = opts.workers
	}
	output := cfg.Corpus.Output
	if opts.output != "" {
		output = opts.output
	}

	var ratios corpus.Ratios
	if len(args) == 1 {
		if ratios, err = splitRatios(opts.split, cliCtx); err != nil {
			return err
		}
	} else if len(opts.split) > 0 {
		return errors.Validation("split", "--split only applies to a single source")
	}

	store, err := objectStoreOrNil(ctx, rt)
	if err != nil {
		return err
	}
	sink, err := corpus.OpenSink(output, store)
	if err != nil {
		return err
	}

	n, err := rt.normalizer()
	if err != nil {
		return err
	}
	builder, err := corpus.NewBuilder(n, rt.aligner(), buildOpts, cliCtx.Logger, cliCtx.Metrics)
	if err != nil {
		return err
	}
	ingester, err := rt.ingester(ctx, cliCtx)
	if err != nil {
		return err
	}

	unlock, err := lockOutput(cmd, rt, output)
	if err != nil {
		return err
	}
	defer unlock()

	sets := make([][]resume.Task, len(args))
	for i, src := range args {
		tasks, stats, err := ingester.IngestURI(ctx, src)
		if err != nil {
			return err
		}
		cliCtx.Logger.Info("ingested tasks",
			logging.String("source", src),
			logging.Int("records", stats.Records),
			logging.Int("malformed", stats.Malformed))
		sets[i] = tasks
	}

	var c *corpus.Corpus
	if len(sets) == 1 {
		c, err = builder.BuildSplit(ctx, sets[0], ratios)
	} else {
		c, err = builder.BuildPartitions(ctx, sets[0], sets[1], sets[2])
	}
	if err != nil {
		return err
	}

	locations, err := corpus.Write(ctx, sink, c, cliCtx.Logger)
	if err != nil {
		return err
	}
	report := corpus.NewReport(c, locations)

	if cfg.Postgres.Enabled {
		conn, err := rt.postgres(ctx)
		if err != nil {
			return err
		}
		if err := postgres.NewReportStore(conn, cliCtx.Logger).SaveReport(ctx, report); err != nil {
			return err
		}
	}
	return PrintResult(cmd, reportView{report})
}

// splitRatios prefers the flag, then the configured ratios.
func splitRatios(flag []float64, cliCtx *CLIContext) (corpus.Ratios, error) {
	var r corpus.Ratios
	switch {
	case len(flag) == 3:
		r = corpus.Ratios{Train: flag[0], Dev: flag[1], Test: flag[2]}
	case len(flag) != 0:
		return r, errors.Validation("split", "expected three ratios: train,dev,test")
	case !cliCtx.Config.Corpus.Split.IsZero():
		s := cliCtx.Config.Corpus.Split
		r = corpus.Ratios{Train: s.Train, Dev: s.Dev, Test: s.Test}
	default:
		return r, errors.Validation("split", "a single source needs --split or corpus.split")
	}
	return r, r.Validate()
}

// lockOutput takes the build lock for output when Redis is enabled. The
// returned func releases it.
func lockOutput(cmd *cobra.Command, rt *runtime, output string) (func(), error) {
	client, err := rt.redisClient(cmd.Context())
	if err != nil {
		return nil, err
	}
	if client == nil {
		return func() {}, nil
	}
	mu := redis.NewMutex(client, "build:"+output, 0)
	if err := mu.TryLock(cmd.Context()); err != nil {
		return nil, err
	}
	rt.logger.Debug("acquired build lock", logging.String("key", mu.Key()))
	return func() {
		if err := mu.Unlock(cmd.Context()); err != nil {
			rt.logger.Warn("release build lock", logging.Err(err))
		}
	}, nil
}

// reportView renders a build report.
type reportView struct {
	*corpus.Report
}

func (v reportView) partitionNames() []string {
	names := make([]string, 0, len(v.Partitions))
	for _, name := range corpus.PartitionNames() {
		if _, ok := v.Partitions[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

func (v reportView) TableHeaders() []string {
	return []string{"PARTITION", "TASKS", "WITH_ENTITIES", "WITHOUT_ENTITIES", "SKIPPED", "DRIFTED", "INVALID", "OVERLAPPING", "UNALIGNED", "LOCATION"}
}

func (v reportView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Partitions))
	for _, name := range v.partitionNames() {
		p := v.Partitions[name]
		rows = append(rows, append([]string{name}, statsColumns(p.Stats, p.Location)...))
	}
	return rows
}

func (v reportView) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "run %s (mode=%s, labels=%s)\n", v.RunID, v.Mode, v.LabelSource)
	for _, name := range v.partitionNames() {
		p := v.Partitions[name]
		fmt.Fprintf(&sb, "  %-5s %d with entities, %d without, %d skipped -> %s\n",
			name, p.Stats.WithEntities, p.Stats.WithoutEntities, p.Stats.Skipped, p.Location)
	}
	t := v.Total()
	fmt.Fprintf(&sb, "  spans rejected: %d invalid, %d overlapping, %d unaligned; %d tasks drifted",
		t.Invalid, t.Overlapping, t.Unaligned, t.Drifted)
	return sb.String()
}

func statsColumns(s corpus.Stats, location string) []string {
	return []string{
		strconv.Itoa(s.Tasks),
		strconv.Itoa(s.WithEntities),
		strconv.Itoa(s.WithoutEntities),
		strconv.Itoa(s.Skipped),
		strconv.Itoa(s.Drifted),
		strconv.Itoa(s.Invalid),
		strconv.Itoa(s.Overlapping),
		strconv.Itoa(s.Unaligned),
		location,
	}
}

// reportList renders stored build reports, newest first.
type reportList []*corpus.Report

func (l reportList) TableHeaders() []string {
	return []string{"ID", "CREATED", "MODE", "LABELS", "EXAMPLES"}
}

func (l reportList) TableRows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, r := range l {
		t := r.Total()
		rows = append(rows, []string{
			r.ID,
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			r.Mode,
			r.LabelSource,
			strconv.Itoa(t.WithEntities + t.WithoutEntities),
		})
	}
	return rows
}

func (l reportList) String() string {
	if len(l) == 0 {
		return "no build reports"
	}
	lines := make([]string, 0, len(l))
	for _, r := range l {
		lines = append(lines, reportView{r}.String())
	}
	return strings.Join(lines, "\n\n")
}
