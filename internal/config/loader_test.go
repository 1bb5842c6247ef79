package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gostage/pkg/provider"
)

// isolate clears gostage variables inherited from the test environment.
func isolate(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, EnvPrefix+"_") {
			t.Setenv(name, "")
		}
	}
	SetConfigFile("")
	t.Cleanup(func() { SetConfigFile("") })
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		isolate(t)
		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "", cfg.Backend.Type)
		assert.Equal(t, 21, cfg.FTP.Port)
		assert.Equal(t, 30*time.Second, cfg.FTP.Timeout)
		assert.Equal(t, 22, cfg.SFTP.Port)
		assert.Equal(t, 1000, cfg.S3.MaxKeys)
		assert.True(t, cfg.Minio.UseSSL)

		assert.Equal(t, 64, cfg.Listing.MaxDepth)
		assert.Equal(t, 4, cfg.Listing.Concurrency)
		assert.Equal(t, "jsonl", cfg.Output.Format)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, ProfileConsole, cfg.Logging.Profile)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		isolate(t)
		overrides := map[string]any{
			"ftp": map[string]any{
				"host": "ftp.example.org",
				"port": 2121,
			},
			"logging": map[string]any{
				"level": "debug",
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		assert.Equal(t, "ftp.example.org", cfg.FTP.Host)
		assert.Equal(t, 2121, cfg.FTP.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, ProfileConsole, cfg.Logging.Profile)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		isolate(t)
		t.Setenv("GOSTAGE_FTP_HOST", "env.example.org")
		t.Setenv("GOSTAGE_LOG_LEVEL", "warn")
		t.Setenv("GOSTAGE_MINIO_USE_SSL", "false")
		t.Setenv("GOSTAGE_BACKEND", "FTP")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, "env.example.org", cfg.FTP.Host)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.False(t, cfg.Minio.UseSSL)
		assert.Equal(t, "ftp", cfg.Backend.Type)
	})

	t.Run("LongEnvName", func(t *testing.T) {
		isolate(t)
		t.Setenv("GOSTAGE_LOGGING_LEVEL", "error")

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "error", cfg.Logging.Level)
	})

	t.Run("ConfigPrecedence", func(t *testing.T) {
		isolate(t)
		t.Setenv("GOSTAGE_MAX_DEPTH", "10")

		cfg, err := Load(ctx, map[string]any{
			"listing": map[string]any{"max_depth": 5},
		})
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.Listing.MaxDepth)

		cfg, err = Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 10, cfg.Listing.MaxDepth)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		isolate(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := Load(cctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLoad_ConfigFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "gostage.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend:
  type: s3
s3:
  bucket: staging
  region: eu-west-1
listing:
  max_depth: 8
output:
  format: text
`), 0o600))

	t.Run("ReadsFile", func(t *testing.T) {
		isolate(t)
		SetConfigFile(path)

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "s3", cfg.Backend.Type)
		assert.Equal(t, "staging", cfg.S3.Bucket)
		assert.Equal(t, "eu-west-1", cfg.S3.Region)
		assert.Equal(t, 8, cfg.Listing.MaxDepth)
		assert.Equal(t, "text", cfg.Output.Format)
		assert.Equal(t, 1000, cfg.S3.MaxKeys)
	})

	t.Run("EnvBeatsFile", func(t *testing.T) {
		isolate(t)
		t.Setenv(EnvConfigFile, path)
		t.Setenv("GOSTAGE_S3_BUCKET", "override")

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "override", cfg.S3.Bucket)
		assert.Equal(t, "eu-west-1", cfg.S3.Region)
	})

	t.Run("MissingFile", func(t *testing.T) {
		isolate(t)
		SetConfigFile(filepath.Join(dir, "absent.yaml"))

		_, err := Load(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "absent.yaml")
	})
}

func TestLoad_Invalid(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		overrides map[string]any
		field     string
	}{
		{"backend", map[string]any{"backend": map[string]any{"type": "gcs"}}, "backend.type"},
		{"level", map[string]any{"logging": map[string]any{"level": "loud"}}, "logging.level"},
		{"profile", map[string]any{"logging": map[string]any{"profile": "fancy"}}, "logging.profile"},
		{"format", map[string]any{"output": map[string]any{"format": "xml"}}, "output.format"},
		{"depth", map[string]any{"listing": map[string]any{"max_depth": -1}}, "listing.max_depth"},
		{"concurrency", map[string]any{"listing": map[string]any{"concurrency": -2}}, "listing.concurrency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			_, err := Load(ctx, tt.overrides)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestGetConfig(t *testing.T) {
	isolate(t)
	ctx := context.Background()

	cfg, err := Load(ctx)
	require.NoError(t, err)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Listing.MaxDepth, retrieved.Listing.MaxDepth)
	assert.Equal(t, cfg.Logging.Level, retrieved.Logging.Level)
}

func TestConfigReload(t *testing.T) {
	isolate(t)
	ctx := context.Background()

	cfg1, err := Load(ctx)
	require.NoError(t, err)

	cfg2, err := Load(ctx, map[string]any{
		"listing": map[string]any{"max_depth": cfg1.Listing.MaxDepth + 10},
	})
	require.NoError(t, err)
	assert.Equal(t, cfg1.Listing.MaxDepth+10, cfg2.Listing.MaxDepth)
	assert.Equal(t, cfg2.Listing.MaxDepth, GetConfig().Listing.MaxDepth)
}

func TestEnvSpecs(t *testing.T) {
	specs := getEnvSpecs()
	require.NotEmpty(t, specs)

	names := make(map[string]bool)
	for _, spec := range specs {
		names[spec.Name] = true
		assert.True(t, strings.HasPrefix(spec.Name, "GOSTAGE_"), spec.Name)
		assert.NotEmpty(t, spec.Path, "env var %s should have a path", spec.Name)
	}

	assert.True(t, names["GOSTAGE_LOG_LEVEL"])
	assert.True(t, names["GOSTAGE_BACKEND"])
	assert.True(t, names["GOSTAGE_FORMAT"])
}

func TestDurationParsing(t *testing.T) {
	isolate(t)
	t.Setenv("GOSTAGE_FTP_TIMEOUT", "45s")
	t.Setenv("GOSTAGE_SFTP_TIMEOUT", "5m")

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.FTP.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.SFTP.Timeout)
}

func TestProviderConfig(t *testing.T) {
	isolate(t)
	cfg, err := Load(context.Background(), map[string]any{
		"ftp":     map[string]any{"host": "ftp.example.org", "username": "u"},
		"s3":      map[string]any{"bucket": "staging", "force_path_style": true},
		"listing": map[string]any{"max_depth": 3},
	})
	require.NoError(t, err)

	pc := cfg.ProviderConfig(provider.TypeFTP)
	assert.Equal(t, provider.TypeFTP, pc.Type)
	assert.Equal(t, "ftp.example.org", pc.FTP.Host)
	assert.Equal(t, "u", pc.FTP.Username)
	assert.Equal(t, 3, pc.MaxDepth)
	require.NoError(t, pc.Validate())

	pc = cfg.ProviderConfig(provider.TypeS3)
	assert.Equal(t, "staging", pc.S3.Bucket)
	assert.True(t, pc.S3.ForcePathStyle)
	assert.Equal(t, 1000, pc.S3.MaxKeys)
}
