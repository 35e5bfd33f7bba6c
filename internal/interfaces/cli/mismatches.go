package cli

import (
	"bytes"

	"github.com/spf13/cobra"

	"github.com/turtacn/ResumeLens/internal/application/corpus"
	"github.com/turtacn/ResumeLens/internal/application/mismatch"
	"github.com/turtacn/ResumeLens/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ResumeLens/pkg/errors"
	"github.com/turtacn/ResumeLens/pkg/types/resume"
)

func newMismatchesCmd() *cobra.Command {
	var labels []string
	cmd := &cobra.Command{
		Use:   "mismatches CORPUS",
		Short: "Print every span where the recognizer disagrees with a gold corpus",
		Long: "Reads a corpus container (a path or s3://bucket/key), runs the configured\n" +
			"recognizer over each example and prints, per resume, the fragments whose\n" +
			"predicted and gold labels differ.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMismatches(cmd, args[0], labels)
		},
	}
	cmd.Flags().StringSliceVar(&labels, "labels", nil, "labels to compare (default: all)")
	return cmd
}

func runMismatches(cmd *cobra.Command, src string, labelNames []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	rt := newRuntime(cliCtx)
	defer rt.Close()

	labels := make([]resume.Label, 0, len(labelNames))
	for _, name := range labelNames {
		l, ok := resume.ParseLabel(name)
		if !ok {
			return errors.Validation("labels", "unknown label "+name)
		}
		labels = append(labels, l)
	}

	rc, err := openSource(ctx, cmd, rt, src)
	if err != nil {
		return err
	}
	defer rc.Close()
	reader, err := corpus.NewReader(rc)
	if err != nil {
		return err
	}
	defer reader.Close()
	if h := reader.Header(); h.Mode != cliCtx.Config.Normalization.Mode {
		cliCtx.Logger.Warn("corpus was built under a different normalization mode",
			logging.String("corpus_mode", h.Mode),
			logging.String("config_mode", cliCtx.Config.Normalization.Mode))
	}
	examples, err := reader.ReadAll()
	if err != nil {
		return err
	}

	rec, err := rt.recognizer()
	if err != nil {
		return err
	}
	comparer, err := mismatch.NewComparer(rec, rt.aligner(), labels, cliCtx.Logger)
	if err != nil {
		return err
	}
	reports, err := comparer.Compare(ctx, examples)
	if err != nil {
		return err
	}

	if cliCtx.OutputFormat == "json" {
		if reports == nil {
			reports = []mismatch.Report{}
		}
		return printJSON(cmd, reports)
	}
	var buf bytes.Buffer
	if err := mismatch.WriteText(&buf, reports); err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(buf.Bytes())
	return err
}
