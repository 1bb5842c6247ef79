package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gostage/internal/config"
	"github.com/3leaps/gostage/internal/observability"
	"github.com/3leaps/gostage/pkg/match"
	"github.com/3leaps/gostage/pkg/output"
	"github.com/3leaps/gostage/pkg/provider"
	"github.com/3leaps/gostage/pkg/resource"
)

var listCmd = &cobra.Command{
	Use:   "list <location>...",
	Short: "List the contents of scan locations",
	Long: `List the resources below one or more scan locations of the same endpoint.

Each resource is emitted with its path relative to its scan location.
Listing is all-or-nothing: a failure of any location emits an error record
and no resources.

Example:
  gostage list ftp://ftp.example.org/outgoing/
  gostage list -r --exclude-dirs s3://staging/study/
  gostage list -r --include '**/*.csv' --min-size 1KB ./work/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runList,
}

// selectionFlags are shared by list and pull.
type selectionFlags struct {
	recursive     bool
	excludeDirs   bool
	includes      []string
	excludes      []string
	includeHidden bool
	minSize       string
	maxSize       string
	after         string
	before        string
	pathRegex     string
}

var listFlags selectionFlags

func init() {
	rootCmd.AddCommand(listCmd)
	listFlags.register(listCmd, false)
}

func (f *selectionFlags) register(cmd *cobra.Command, filesOnly bool) {
	cmd.Flags().BoolVarP(&f.recursive, "recursive", "r", false, "Descend into subdirectories")
	if !filesOnly {
		cmd.Flags().BoolVar(&f.excludeDirs, "exclude-dirs", false, "Omit directories from the output")
	}
	cmd.Flags().StringArrayVar(&f.includes, "include", nil, "Glob a relative path must match (repeatable)")
	cmd.Flags().StringArrayVar(&f.excludes, "exclude", nil, "Glob a relative path must not match (repeatable)")
	cmd.Flags().BoolVar(&f.includeHidden, "include-hidden", false, "Keep paths with a segment starting with '.'")
	cmd.Flags().StringVar(&f.minSize, "min-size", "", "Minimum file size (e.g. 1KB, 10MiB)")
	cmd.Flags().StringVar(&f.maxSize, "max-size", "", "Maximum file size")
	cmd.Flags().StringVar(&f.after, "after", "", "Modified at or after (ISO 8601)")
	cmd.Flags().StringVar(&f.before, "before", "", "Modified before (ISO 8601)")
	cmd.Flags().StringVar(&f.pathRegex, "path-regex", "", "Regular expression on the relative path")
}

// selector combines glob selection with metadata filters.
type selector struct {
	matcher *match.Matcher
	filter  *match.CompositeFilter
}

func (f *selectionFlags) selector() (*selector, error) {
	m, err := match.New(match.Config{
		Includes:      f.includes,
		Excludes:      f.excludes,
		ExcludeHidden: !f.includeHidden,
	})
	if err != nil {
		return nil, err
	}

	fc := &match.FilterConfig{PathRegex: f.pathRegex}
	if f.minSize != "" || f.maxSize != "" {
		fc.Size = &match.SizeFilterConfig{Min: f.minSize, Max: f.maxSize}
	}
	if f.after != "" || f.before != "" {
		fc.Modified = &match.DateFilterConfig{After: f.after, Before: f.before}
	}
	filter, err := match.NewFilterFromConfig(fc)
	if err != nil {
		return nil, err
	}
	return &selector{matcher: m, filter: filter}, nil
}

func (s *selector) selects(scan, r resource.Resource) bool {
	rel := resource.RelativePath(scan, r)
	if !s.matcher.Match(rel) {
		return false
	}
	return s.filter.Match(match.Item{Resource: r, RelPath: rel})
}

// newRecordWriter opens the configured output format on stdout.
func newRecordWriter(cmd *cobra.Command, p provider.Type) (output.Writer, string, error) {
	format := output.FormatJSONL
	if cfg := config.GetConfig(); cfg != nil {
		format = cfg.Output.Format
	}
	jobID := uuid.New().String()
	w, err := output.NewWriter(format, cmd.OutOrStdout(), jobID, p.String())
	if err != nil {
		return nil, "", err
	}
	return w, jobID, nil
}

func listingConcurrency() int {
	if cfg := config.GetConfig(); cfg != nil {
		return cfg.Listing.Concurrency
	}
	return 0
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	locations, err := parseLocations(args)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid location", err)
	}
	sel, err := listFlags.selector()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid selection", err)
	}

	prov, err := openProvider(ctx, locations[0])
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

	observability.CLILogger.Info("Starting list",
		zap.String("job_id", jobID),
		zap.Strings("locations", args),
		zap.Bool("recursive", listFlags.recursive))

	opts := provider.ListOptions{Recursive: listFlags.recursive, ExcludeDirectories: listFlags.excludeDirs}
	sum := &output.SummaryRecord{Command: "list", Locations: urls(locations)}

	listings, err := provider.ListMany(ctx, prov, locations, opts, listingConcurrency())
	if err != nil {
		sum.Errors++
		writeFailure(ctx, w, failedURL(err, locations), err)
		writeSummary(ctx, w, sum, start)
		observability.CLILogger.Error("List failed", zap.Error(err))
		return exitError(listExitCode(ctx, err), "List failed", err)
	}

	for i, items := range listings {
		for _, r := range items {
			if !sel.selects(locations[i], r) {
				continue
			}
			if err := w.WriteResource(ctx, output.NewResourceRecord(locations[i], r)); err != nil {
				return exitError(foundry.ExitFileWriteError, "Failed to write record", err)
			}
			if r.IsDirectory() {
				sum.Directories++
				continue
			}
			sum.Files++
			if r.Size() > 0 {
				sum.BytesTotal += r.Size()
			}
		}
	}

	writeSummary(ctx, w, sum, start)
	observability.CLILogger.Info("List completed",
		zap.Int64("files", sum.Files),
		zap.Int64("directories", sum.Directories),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func urls(rs []resource.Resource) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.URL()
	}
	return out
}

// failedURL extracts the resource named by a CollectionError.
func failedURL(err error, fallback []resource.Resource) string {
	var ce *resource.CollectionError
	if errors.As(err, &ce) {
		return ce.URL
	}
	if len(fallback) == 1 {
		return fallback[0].URL()
	}
	return ""
}

func listExitCode(ctx context.Context, err error) int {
	switch {
	case ctx.Err() != nil:
		return foundry.ExitSignalInt
	case resource.IsNotFound(err):
		return foundry.ExitFileNotFound
	case resource.IsInvalidHost(err), resource.IsWrongScheme(err), errors.Is(err, resource.ErrNotDirectory):
		return foundry.ExitInvalidArgument
	}
	return foundry.ExitExternalServiceUnavailable
}

func writeFailure(ctx context.Context, w output.Writer, url string, err error) {
	if werr := w.WriteError(context.WithoutCancel(ctx), output.NewErrorRecord(url, err)); werr != nil {
		observability.CLILogger.Debug("Failed to emit error record", zap.Error(werr))
	}
}

func writeSummary(ctx context.Context, w output.Writer, sum *output.SummaryRecord, start time.Time) {
	sum.Duration = time.Since(start)
	sum.DurationHuman = sum.Duration.Round(time.Millisecond).String()
	if err := w.WriteSummary(context.WithoutCancel(ctx), sum); err != nil {
		observability.CLILogger.Debug("Failed to emit summary record", zap.Error(err))
	}
}

