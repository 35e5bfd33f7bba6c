package cli

import (
	"bytes"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/ResumeLens/internal/application/prelabel"
	"github.com/turtacn/ResumeLens/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ResumeLens/internal/intelligence/termmatch"
	"github.com/turtacn/ResumeLens/pkg/errors"
)

const kafkaScheme = "kafka://"

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean SOURCE [DEST]",
		Short: "Normalize the text of every record in an export",
		Long: "Reads a JSON array or JSON Lines export, normalizes the text of every record\n" +
			"and writes the records back as a JSON array. SOURCE and DEST may be a path,\n" +
			"\"-\" for stdin/stdout or s3://bucket/key. DEST defaults to stdout.",
		Args: cobra.RangeArgs(1, 2),
		RunE: runClean,
	}
}

func runClean(cmd *cobra.Command, args []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	rt := newRuntime(cliCtx)
	defer rt.Close()

	n, err := rt.normalizer()
	if err != nil {
		return err
	}
	data, err := readSource(ctx, cmd, rt, args[0])
	if err != nil {
		return err
	}

	records, stats := prelabel.NewExporter(n, nil, cliCtx.Logger).Clean(data)
	cliCtx.Metrics.RecordIngested("export", stats.Records, stats.Malformed)

	var buf bytes.Buffer
	if err := prelabel.WriteJSON(&buf, records); err != nil {
		return err
	}
	if err := writeDest(ctx, cmd, rt, destArg(args), buf.Bytes()); err != nil {
		return err
	}
	cliCtx.Logger.Info("clean complete",
		logging.String("source", args[0]),
		logging.Int("records", stats.Records),
		logging.Int("malformed", stats.Malformed))
	return nil
}

func newPrelabelCmd() *cobra.Command {
	var withPredictions bool
	cmd := &cobra.Command{
		Use:   "prelabel SOURCE [DEST]",
		Short: "Turn an export into annotation tasks with optional weak-label predictions",
		Long: "Normalizes every record of SOURCE into an annotation task. With\n" +
			"--with-predictions the pattern table attaches candidate spans as a\n" +
			"prediction. DEST may be a path, \"-\", s3://bucket/key or kafka://topic.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrelabel(cmd, args, withPredictions)
		},
	}
	cmd.Flags().BoolVar(&withPredictions, "with-predictions", false, "attach pattern-table predictions to every task")
	return cmd
}

func runPrelabel(cmd *cobra.Command, args []string, withPredictions bool) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	rt := newRuntime(cliCtx)
	defer rt.Close()

	n, err := rt.normalizer()
	if err != nil {
		return err
	}
	var m *termmatch.Matcher
	if withPredictions {
		if m, err = rt.matcher(); err != nil {
			return err
		}
	}
	exporter := prelabel.NewExporter(n, m, cliCtx.Logger)

	data, err := readSource(ctx, cmd, rt, args[0])
	if err != nil {
		return err
	}
	tasks, stats, err := exporter.Prelabel(data, withPredictions)
	if err != nil {
		return err
	}
	cliCtx.Metrics.RecordIngested("export", stats.Records, stats.Malformed)

	dest := destArg(args)
	if strings.HasPrefix(dest, kafkaScheme) {
		topic := strings.TrimPrefix(dest, kafkaScheme)
		if topic == "" {
			return errors.Validation("dest", "kafka destination needs kafka://topic")
		}
		producer, err := rt.producer(topic)
		if err != nil {
			return err
		}
		if err := prelabel.Publish(ctx, producer, tasks); err != nil {
			return err
		}
	} else {
		var buf bytes.Buffer
		if err := prelabel.WriteJSON(&buf, tasks); err != nil {
			return err
		}
		if err := writeDest(ctx, cmd, rt, dest, buf.Bytes()); err != nil {
			return err
		}
	}

	cliCtx.Logger.Info("prelabel complete",
		logging.String("source", args[0]),
		logging.String("dest", dest),
		logging.Int("tasks", len(tasks)),
		logging.Int("spans", stats.Spans),
		logging.Int("malformed", stats.Malformed))
	return nil
}

// destArg returns the optional second argument, or stdout.
func destArg(args []string) string {
	if len(args) > 1 {
		return args[1]
	}
	return stdioPath
}
