// Package cmd implements the gostage command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gostage/internal/config"
	"github.com/3leaps/gostage/internal/observability"
)

const serviceName = "gostage"

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "unknown",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata injected through ldflags.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	cfgFile   string
	verbose   bool
	logLevel  string
	outFormat string
)

var rootCmd = &cobra.Command{
	Use:   serviceName,
	Short: "List and stage files across filesystem, FTP/SFTP and object storage",
	Long: `gostage lists the contents of scan locations and copies files between
remote locations and a local working directory.

Locations are URLs:
  file:///data/in/          local filesystem (plain paths are accepted too)
  ftp://host/dir/           FTP
  sftp://host/dir/          SFTP
  s3://bucket/prefix/       AWS S3
  minio://bucket/prefix/    MinIO

Backend credentials come from the config file or GOSTAGE_* variables.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadRuntime,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (default $GOSTAGE_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVarP(&outFormat, "format", "f", "", "Output format (jsonl|yaml|text)")
}

// flagOverrides maps explicitly set persistent flags onto config keys.
func flagOverrides(cmd *cobra.Command) map[string]any {
	overrides := map[string]any{}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		overrides["logging"] = map[string]any{"level": logLevel}
	}
	if flags.Changed("verbose") && verbose {
		overrides["logging"] = map[string]any{"level": "debug"}
	}
	if flags.Changed("format") {
		overrides["output"] = map[string]any{"format": outFormat}
	}
	return overrides
}

func loadRuntime(cmd *cobra.Command, _ []string) error {
	config.SetConfigFile(cfgFile)
	cfg, err := config.Load(cmd.Context(), flagOverrides(cmd))
	if err != nil {
		observability.InitCLILogger(serviceName, verbose)
		observability.CLILogger.Error("Failed to load configuration", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	if err := observability.Configure(serviceName, cfg.Logging.Level, cfg.Logging.Profile); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
	}
	observability.CLILogger.Debug("Configuration loaded",
		zap.String("backend", cfg.Backend.Type),
		zap.String("format", cfg.Output.Format),
		zap.Int("max_depth", cfg.Listing.MaxDepth))
	return nil
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitCode(err)
	}
	return 0
}

// cliError carries the process exit code of a failed command.
type cliError struct {
	code    int
	message string
	err     error
}

func (e *cliError) Error() string {
	return fmt.Sprintf("%s: %v (exit code %d)", e.message, e.err, e.code)
}

func (e *cliError) Unwrap() error { return e.err }

func exitError(code int, message string, err error) error {
	return &cliError{code: code, message: message, err: err}
}

func exitCode(err error) int {
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return foundry.ExitInvalidArgument
}
