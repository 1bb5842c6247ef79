package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, "GOSTAGE_") {
			t.Setenv(name, "")
		}
	}
	resetFlags()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// resetFlags clears flag state left over from a previous run.
func resetFlags() {
	cfgFile, verbose, logLevel, outFormat = "", false, "", ""
	listFlags = selectionFlags{}
	pullFlags = selectionFlags{}
	pullDest, pushDest = "", ""

	var visit func(c *cobra.Command)
	visit = func(c *cobra.Command) {
		reset := func(f *pflag.Flag) { f.Changed = false }
		c.Flags().VisitAll(reset)
		c.PersistentFlags().VisitAll(reset)
		for _, sub := range c.Commands() {
			visit(sub)
		}
	}
	visit(rootCmd)
}

func TestSetVersionInfo(t *testing.T) {
	orig := versionInfo
	defer func() { versionInfo = orig }()

	tests := []struct {
		name      string
		version   string
		commit    string
		buildDate string
	}{
		{"set all values", "1.0.0", "abc123", "2024-01-15"},
		{"set dev version", "dev", "HEAD", "unknown"},
		{"set empty values", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetVersionInfo(tt.version, tt.commit, tt.buildDate)

			assert.Equal(t, tt.version, versionInfo.Version)
			assert.Equal(t, tt.commit, versionInfo.Commit)
			assert.Equal(t, tt.buildDate, versionInfo.BuildDate)
		})
	}
}

func TestVersionCommand(t *testing.T) {
	orig := versionInfo
	defer func() { versionInfo = orig }()
	SetVersionInfo("1.2.3", "abc123", "2026-01-02")

	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "gostage 1.2.3 (commit abc123, built 2026-01-02, "), out)
}

func TestExitError(t *testing.T) {
	cause := errors.New("boom")
	err := exitError(foundry.ExitFileNotFound, "List failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "List failed: boom")
	assert.Equal(t, foundry.ExitFileNotFound, exitCode(err))
	assert.Equal(t, foundry.ExitFileNotFound, exitCode(errors.Join(errors.New("ctx"), err)))
	assert.Equal(t, foundry.ExitInvalidArgument, exitCode(cause))
}

func TestInvalidConfiguration(t *testing.T) {
	_, err := runCLI(t, "list", "--format", "xml", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, foundry.ExitInvalidArgument, exitCode(err))
	assert.Contains(t, err.Error(), "output.format")
}

func TestFlagOverrides(t *testing.T) {
	_, err := runCLI(t, "list", "--log-level", "warn", "--format", "text", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"logging": map[string]any{"level": "warn"},
		"output":  map[string]any{"format": "text"},
	}, flagOverrides(listCmd))
}
