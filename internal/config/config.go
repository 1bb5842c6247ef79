// Package config loads gostage configuration from defaults, an optional
// YAML file, GOSTAGE_* environment variables and runtime overrides, in
// increasing order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/3leaps/gostage/pkg/gateway/objectstore/minio"
	"github.com/3leaps/gostage/pkg/gateway/objectstore/s3"
	"github.com/3leaps/gostage/pkg/gateway/remote/ftp"
	"github.com/3leaps/gostage/pkg/gateway/remote/sftp"
	"github.com/3leaps/gostage/pkg/output"
	"github.com/3leaps/gostage/pkg/provider"
	"github.com/3leaps/gostage/pkg/provider/factory"
)

// Config is the complete gostage configuration.
type Config struct {
	Backend BackendConfig `mapstructure:"backend"`
	FTP     FTPConfig     `mapstructure:"ftp"`
	SFTP    SFTPConfig    `mapstructure:"sftp"`
	S3      S3Config      `mapstructure:"s3"`
	Minio   MinioConfig   `mapstructure:"minio"`
	Listing ListingConfig `mapstructure:"listing"`
	Output  OutputConfig  `mapstructure:"output"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// BackendConfig selects the storage backend. An empty type lets the CLI
// derive it from the scheme of the first location argument.
type BackendConfig struct {
	Type string `mapstructure:"type"`
}

// FTPConfig holds FTP session settings.
type FTPConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	Timeout            time.Duration `mapstructure:"timeout"`
	ExplicitTLS        bool          `mapstructure:"explicit_tls"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

// SFTPConfig holds SFTP session settings.
type SFTPConfig struct {
	Host                  string        `mapstructure:"host"`
	Port                  int           `mapstructure:"port"`
	Username              string        `mapstructure:"username"`
	Password              string        `mapstructure:"password"`
	PrivateKeyPath        string        `mapstructure:"private_key_path"`
	PrivateKeyPassphrase  string        `mapstructure:"private_key_passphrase"`
	KnownHostsPath        string        `mapstructure:"known_hosts_path"`
	InsecureIgnoreHostKey bool          `mapstructure:"insecure_ignore_host_key"`
	Timeout               time.Duration `mapstructure:"timeout"`
}

// S3Config holds AWS S3 (or S3-compatible) settings.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	Profile         string `mapstructure:"profile"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	MaxKeys         int    `mapstructure:"max_keys"`
}

// MinioConfig holds MinIO settings.
type MinioConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// ListingConfig tunes listings.
type ListingConfig struct {
	// MaxDepth bounds recursive FTP/SFTP listings.
	MaxDepth int `mapstructure:"max_depth"`

	// Concurrency bounds parallel listings of several locations.
	Concurrency int `mapstructure:"concurrency"`
}

// OutputConfig selects the record format.
type OutputConfig struct {
	Format string `mapstructure:"format"`
}

// LoggingConfig configures the CLI logger.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// Logging profiles.
const (
	ProfileConsole    = "console"
	ProfileStructured = "structured"
)

// ValidationError reports an invalid configuration value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "config: " + e.Field + ": " + e.Message
}

// Validate checks generic settings. Backend sections are validated by
// the provider factory once the backend type is known.
func (c *Config) Validate() error {
	if c.Backend.Type != "" {
		if _, err := provider.ParseType(c.Backend.Type); err != nil {
			return &ValidationError{Field: "backend.type", Message: err.Error()}
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return &ValidationError{Field: "logging.level", Message: fmt.Sprintf("unknown level %q", c.Logging.Level)}
	}

	switch c.Logging.Profile {
	case ProfileConsole, ProfileStructured:
	default:
		return &ValidationError{Field: "logging.profile", Message: fmt.Sprintf("unknown profile %q", c.Logging.Profile)}
	}

	formatOK := false
	for _, f := range output.Formats() {
		if c.Output.Format == f {
			formatOK = true
		}
	}
	if !formatOK {
		return &ValidationError{Field: "output.format", Message: fmt.Sprintf("unknown format %q", c.Output.Format)}
	}

	if c.Listing.MaxDepth < 0 {
		return &ValidationError{Field: "listing.max_depth", Message: "must not be negative"}
	}
	if c.Listing.Concurrency < 0 {
		return &ValidationError{Field: "listing.concurrency", Message: "must not be negative"}
	}
	return nil
}

// normalize lowercases enumerations so validation is case insensitive.
func (c *Config) normalize() {
	c.Backend.Type = strings.ToLower(strings.TrimSpace(c.Backend.Type))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Profile = strings.ToLower(strings.TrimSpace(c.Logging.Profile))
	c.Output.Format = strings.ToLower(strings.TrimSpace(c.Output.Format))
}

// ProviderConfig maps the configuration of backend type t to the
// provider factory input.
func (c *Config) ProviderConfig(t provider.Type) factory.Config {
	return factory.Config{
		Type: t,
		FTP: ftp.Config{
			Host:               c.FTP.Host,
			Port:               c.FTP.Port,
			Username:           c.FTP.Username,
			Password:           c.FTP.Password,
			Timeout:            c.FTP.Timeout,
			ExplicitTLS:        c.FTP.ExplicitTLS,
			InsecureSkipVerify: c.FTP.InsecureSkipVerify,
		},
		SFTP: sftp.Config{
			Host:                  c.SFTP.Host,
			Port:                  c.SFTP.Port,
			Username:              c.SFTP.Username,
			Password:              c.SFTP.Password,
			PrivateKeyPath:        c.SFTP.PrivateKeyPath,
			PrivateKeyPassphrase:  c.SFTP.PrivateKeyPassphrase,
			KnownHostsPath:        c.SFTP.KnownHostsPath,
			InsecureIgnoreHostKey: c.SFTP.InsecureIgnoreHostKey,
			Timeout:               c.SFTP.Timeout,
		},
		S3: s3.Config{
			Bucket:          c.S3.Bucket,
			Region:          c.S3.Region,
			Endpoint:        c.S3.Endpoint,
			Profile:         c.S3.Profile,
			AccessKeyID:     c.S3.AccessKeyID,
			SecretAccessKey: c.S3.SecretAccessKey,
			ForcePathStyle:  c.S3.ForcePathStyle,
			MaxKeys:         c.S3.MaxKeys,
		},
		Minio: minio.Config{
			Endpoint:        c.Minio.Endpoint,
			Bucket:          c.Minio.Bucket,
			Region:          c.Minio.Region,
			AccessKeyID:     c.Minio.AccessKeyID,
			SecretAccessKey: c.Minio.SecretAccessKey,
			UseSSL:          c.Minio.UseSSL,
		},
		MaxDepth: c.Listing.MaxDepth,
	}
}
