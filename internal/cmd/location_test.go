package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gostage/internal/config"
	"github.com/3leaps/gostage/pkg/provider"
	"github.com/3leaps/gostage/pkg/resource"
)

func TestParseLocation(t *testing.T) {
	cwd, err := filepath.Abs(".")
	require.NoError(t, err)
	cwd = filepath.ToSlash(cwd)

	tests := []struct {
		name    string
		raw     string
		wantURL string
		wantErr error
	}{
		{name: "ftp", raw: "ftp://FTP.example.org/in/", wantURL: "ftp://ftp.example.org/in"},
		{name: "s3 prefix", raw: "s3://staging/study/", wantURL: "s3://staging/study/"},
		{name: "minio key", raw: "minio://publish/a.txt", wantURL: "minio://publish/a.txt"},
		{name: "file url", raw: "file:///data/in", wantURL: "file:///data/in"},
		{name: "absolute path", raw: "/data/in", wantURL: "file:///data/in"},
		{name: "relative path", raw: "work", wantURL: "file://" + cwd + "/work"},
		{name: "glob kept", raw: "/out/*.csv", wantURL: "file:///out/*.csv"},
		{name: "empty", raw: "  ", wantErr: resource.ErrInvalidURL},
		{name: "unknown scheme", raw: "gcs://bucket/key", wantErr: resource.ErrUnsupportedScheme},
		{name: "missing host", raw: "ftp:///in", wantErr: resource.ErrMissingHost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLocation(tt.raw)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, got.URL())
		})
	}
}

func TestParseLocations(t *testing.T) {
	got, err := parseLocations([]string{"ftp://host/a", "ftp://HOST/b/"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ftp://host/b", got[1].URL())

	_, err = parseLocations([]string{"ftp://host/a", "sftp://host/a"})
	assert.ErrorIs(t, err, ErrMixedEndpoints)

	_, err = parseLocations([]string{"s3://one/a", "s3://two/a"})
	assert.ErrorIs(t, err, ErrMixedEndpoints)
}

func TestProviderConfig(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.Config
		location string
		wantHost string
		wantType provider.Type
		wantErr  bool
	}{
		{name: "file", location: "file:///data/in", wantType: provider.TypeFile},
		{name: "ftp host from url", location: "ftp://ftp.example.org/in", wantType: provider.TypeFTP, wantHost: "ftp.example.org"},
		{
			name:     "configured ftp host kept",
			cfg:      config.Config{FTP: config.FTPConfig{Host: "other.example.org"}},
			location: "ftp://ftp.example.org/in",
			wantType: provider.TypeFTP,
			wantHost: "other.example.org",
		},
		{name: "sftp", location: "sftp://sftp.example.org/in", wantType: provider.TypeSFTP, wantHost: "sftp.example.org"},
		{name: "s3 bucket from url", location: "s3://staging/study/", wantType: provider.TypeS3, wantHost: "staging"},
		{name: "minio bucket from url", location: "minio://publish/", wantType: provider.TypeMinio, wantHost: "publish"},
		{
			name:     "backend type conflict",
			cfg:      config.Config{Backend: config.BackendConfig{Type: "s3"}},
			location: "ftp://ftp.example.org/in",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			pc, err := providerConfig(&cfg, resource.MustParse(tt.location))
			if tt.wantErr {
				assert.True(t, resource.IsWrongScheme(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, pc.Type)

			var host string
			switch pc.Type {
			case provider.TypeFTP:
				host = pc.FTP.Host
			case provider.TypeSFTP:
				host = pc.SFTP.Host
			case provider.TypeS3:
				host = pc.S3.Bucket
			case provider.TypeMinio:
				host = pc.Minio.Bucket
			}
			assert.Equal(t, tt.wantHost, host)
		})
	}
}
