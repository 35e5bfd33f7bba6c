package cli

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/ResumeLens/internal/application/extraction"
	"github.com/turtacn/ResumeLens/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ResumeLens/internal/intelligence/aggregate"
	"github.com/turtacn/ResumeLens/pkg/errors"
	"github.com/turtacn/ResumeLens/pkg/types/resume"
)

const textExt = ".txt"

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract PATH...",
		Short: "Extract grouped entities from plain-text resumes",
		Long: "Runs the recognizer over every .txt file named on the command line or\n" +
			"found under a named directory and prints one document per file with\n" +
			"its normalized text and its entities grouped by label. Files that are\n" +
			"too short or not text are skipped with a warning.",
		Args: cobra.MinimumNArgs(1),
		RunE: runExtract,
	}
}

func runExtract(cmd *cobra.Command, args []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	cfg := cliCtx.Config
	rt := newRuntime(cliCtx)
	defer rt.Close()

	files, err := collectTextFiles(args)
	if err != nil {
		return err
	}

	n, err := rt.normalizer()
	if err != nil {
		return err
	}
	rec, err := rt.recognizer()
	if err != nil {
		return err
	}
	opts := []extraction.Option{
		extraction.WithMinChars(cfg.Extraction.MinChars),
		extraction.WithLogger(cliCtx.Logger),
		extraction.WithMetrics(cliCtx.Metrics),
	}
	if a := rt.aligner(); a != nil {
		opts = append(opts, extraction.WithAligner(a))
	}
	cache, err := rt.cache(ctx)
	if err != nil {
		return err
	}
	if cache != nil {
		opts = append(opts, extraction.WithCache(cache, cfg.Extraction.CacheTTL))
	}
	svc, err := extraction.NewService(n, rec, opts...)
	if err != nil {
		return err
	}

	docs := make(documentList, 0, len(files))
	for _, file := range files {
		raw, err := readText(file)
		if err == nil {
			var doc *aggregate.Document
			if doc, err = svc.Extract(ctx, filepath.Base(file), raw); err == nil {
				docs = append(docs, doc)
				continue
			}
		}
		if !errors.IsSkippable(errors.GetCode(err)) {
			return err
		}
		cliCtx.Logger.Warn("skipped file", logging.String("file", file), logging.Err(err))
	}
	return PrintResult(cmd, docs)
}

// collectTextFiles expands directories to the .txt files below them, in
// lexical order. Files named explicitly are kept whatever their extension so
// that readText can reject them individually.
func collectTextFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeNotFound, "stat "+p)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), textExt) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeStorageError, "walk "+p)
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}

// readText loads a .txt file. Bytes that are not valid UTF-8 are dropped.
func readText(path string) (string, error) {
	if !strings.EqualFold(filepath.Ext(path), textExt) {
		return "", errors.MalformedInput("unsupported file type").WithDetail("file=" + path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeNotFound, "read "+path)
	}
	return strings.ToValidUTF8(string(data), ""), nil
}

// documentList renders extraction results. Its text form is the JSON
// payload, since there is no shorter faithful rendering of a document.
type documentList []*aggregate.Document

func (l documentList) TableHeaders() []string {
	headers := []string{"FILE", "CHARS"}
	for _, label := range resume.Labels() {
		headers = append(headers, strings.ToUpper(string(label)))
	}
	return headers
}

func (l documentList) TableRows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, d := range l {
		row := []string{d.Filename, strconv.Itoa(d.LengthChars)}
		for _, label := range resume.Labels() {
			row = append(row, strings.Join(d.Data.Entities[label], ", "))
		}
		rows = append(rows, row)
	}
	return rows
}

func (l documentList) String() string {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(data)
}
