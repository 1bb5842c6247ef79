package cmd

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gostage/internal/observability"
	"github.com/3leaps/gostage/pkg/match"
	"github.com/3leaps/gostage/pkg/output"
	"github.com/3leaps/gostage/pkg/provider"
	"github.com/3leaps/gostage/pkg/resource"
	"github.com/3leaps/gostage/pkg/resourceutil"
)

var pullCmd = &cobra.Command{
	Use:   "pull <remote>... --dest <dir>",
	Short: "Copy remote files into a local directory",
	Long: `Copy remote files into a local working directory under their bare names.

A location ending in '/' is listed first and every selected file below it
is copied; directories are never copied. Existing files are replaced whole.
A failed file is reported and the remaining files are still copied.

Example:
  gostage pull ftp://ftp.example.org/outgoing/report.csv --dest ./work
  gostage pull -r --include '**/*.txt' s3://staging/study/ --dest ./work`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPull,
}

var pushCmd = &cobra.Command{
	Use:   "push <local>... --dest <remote-dir>",
	Short: "Publish local files to a remote directory",
	Long: `Upload local files into a remote directory under their bare names.

Arguments may be doublestar globs ('./out/**/*.csv'); directories matched by
a glob are skipped. Uploads are staged and published whole.

Example:
  gostage push ./out/summary.csv --dest sftp://sftp.example.org/incoming/
  gostage push './out/*.csv' --dest minio://publish/study/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPush,
}

var (
	pullDest  string
	pullFlags selectionFlags
	pushDest  string
)

func init() {
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(pushCmd)

	pullCmd.Flags().StringVarP(&pullDest, "dest", "d", "", "Local destination directory (required)")
	pullFlags.register(pullCmd, true)
	_ = pullCmd.MarkFlagRequired("dest")

	pushCmd.Flags().StringVarP(&pushDest, "dest", "d", "", "Remote destination directory (required)")
	_ = pushCmd.MarkFlagRequired("dest")
}

// newLocalUtils is replaced in tests.
var newLocalUtils = func() *resourceutil.Utils {
	return resourceutil.New(resourceutil.WithLogger(observability.CLILogger))
}

func runPull(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	sources, err := parseLocations(args)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid source", err)
	}
	dest, err := parseLocation(pullDest)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid destination", err)
	}
	if dest.Scheme() != resource.SchemeFile {
		return exitError(foundry.ExitInvalidArgument, "Invalid destination", &resource.WrongSchemeError{URL: dest.URL(), Expected: resource.SchemeFile, Got: dest.Scheme()})
	}
	sel, err := pullFlags.selector()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid selection", err)
	}

	prov, err := openProvider(ctx, sources[0])
	if err != nil {
		observability.CLILogger.Error("Failed to create provider", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to storage backend", err)
	}
	defer func() { _ = prov.Close() }()

	w, jobID, err := newRecordWriter(cmd, prov.Type())
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid output format", err)
	}
	defer func() { _ = w.Close() }()

	observability.CLILogger.Info("Starting pull",
		zap.String("job_id", jobID),
		zap.Strings("sources", args),
		zap.String("dest", dest.URL()))

	sum := &output.SummaryRecord{Command: "pull", Locations: urls(sources)}

	var items []resource.Resource
	for i, src := range sources {
		if !strings.HasSuffix(args[i], "/") {
			items = append(items, src)
			continue
		}
		listed, err := prov.List(ctx, src, provider.ListOptions{Recursive: pullFlags.recursive, ExcludeDirectories: true})
		if err != nil {
			sum.Errors++
			writeFailure(ctx, w, src.URL(), err)
			observability.CLILogger.Error("List failed", zap.String("location", src.URL()), zap.Error(err))
			continue
		}
		for _, r := range listed {
			if sel.selects(src, r) {
				items = append(items, r)
			}
		}
	}

	results := provider.CopyAllFromRemote(ctx, prov, dest.AsDirectory(), items)
	return reportCopies(ctx, w, sum, results, output.DirectionPull, start)
}

func runPush(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	dest, err := parseLocation(pushDest)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid destination", err)
	}
	items, err := expandLocal(ctx, newLocalUtils(), args)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid source", err)
	}

	prov, err := openProvider(ctx, dest)
	if err != nil {
		observability.CLILogger.Error("Failed to create provider", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to storage backend", err)
	}
	defer func() { _ = prov.Close() }()

	w, jobID, err := newRecordWriter(cmd, prov.Type())
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid output format", err)
	}
	defer func() { _ = w.Close() }()

	observability.CLILogger.Info("Starting push",
		zap.String("job_id", jobID),
		zap.Int("files", len(items)),
		zap.String("dest", dest.URL()))

	sum := &output.SummaryRecord{Command: "push", Locations: args}
	results := provider.CopyAllToRemote(ctx, prov, dest.AsDirectory(), items)
	return reportCopies(ctx, w, sum, results, output.DirectionPush, start)
}

// expandLocal resolves local arguments, expanding doublestar globs.
func expandLocal(ctx context.Context, utils *resourceutil.Utils, args []string) ([]resource.Resource, error) {
	var out []resource.Resource
	for _, arg := range args {
		r, err := parseLocation(arg)
		if err != nil {
			return nil, err
		}
		if r.Scheme() != resource.SchemeFile {
			return nil, &resource.WrongSchemeError{URL: r.URL(), Expected: resource.SchemeFile, Got: r.Scheme()}
		}
		if !match.IsGlobPattern(r.Path()) {
			out = append(out, r)
			continue
		}
		matches, err := utils.GetResources(ctx, r.URL())
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if !m.IsDirectory() {
				out = append(out, m)
			}
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no local files matched")
	}
	return out, nil
}

func reportCopies(ctx context.Context, w output.Writer, sum *output.SummaryRecord, results []provider.Result, direction string, start time.Time) error {
	for _, res := range results {
		if !res.OK() {
			sum.Errors++
			writeFailure(ctx, w, res.Source.URL(), res.Err)
			observability.CLILogger.Warn("Copy failed", zap.String("source", res.Source.URL()), zap.Error(res.Err))
			continue
		}
		rec := &output.CopyRecord{
			Direction:   direction,
			Source:      res.Source.URL(),
			Destination: res.Destination.URL(),
		}
		if size := res.Destination.Size(); size >= 0 {
			rec.Bytes = &size
			sum.BytesTotal += size
		}
		if err := w.WriteCopy(ctx, rec); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write record", err)
		}
		sum.Files++
	}
	writeSummary(ctx, w, sum, start)

	observability.CLILogger.Info("Copy completed",
		zap.String("direction", direction),
		zap.Int64("files", sum.Files),
		zap.Int64("errors", sum.Errors),
		zap.Duration("duration", time.Since(start)))

	switch {
	case ctx.Err() != nil:
		return exitError(foundry.ExitSignalInt, "Copy cancelled", ctx.Err())
	case sum.Errors > 0:
		code := foundry.ExitExternalServiceUnavailable
		if direction == output.DirectionPull {
			code = foundry.ExitFileWriteError
		}
		return exitError(code, "Copy completed with errors", errors.New(pluralErrors(sum.Errors)))
	}
	return nil
}

func pluralErrors(n int64) string {
	if n == 1 {
		return "1 item failed"
	}
	return strconv.FormatInt(n, 10) + " items failed"
}
