// Package factory selects and builds the Resource Provider for one
// configured backend. Selection happens once, at start-up.
package factory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/3leaps/gostage/pkg/gateway/objectstore"
	miniogw "github.com/3leaps/gostage/pkg/gateway/objectstore/minio"
	s3gw "github.com/3leaps/gostage/pkg/gateway/objectstore/s3"
	"github.com/3leaps/gostage/pkg/gateway/remote"
	ftpgw "github.com/3leaps/gostage/pkg/gateway/remote/ftp"
	sftpgw "github.com/3leaps/gostage/pkg/gateway/remote/sftp"
	"github.com/3leaps/gostage/pkg/provider"
	fileprovider "github.com/3leaps/gostage/pkg/provider/file"
	ftpprovider "github.com/3leaps/gostage/pkg/provider/ftp"
	osprovider "github.com/3leaps/gostage/pkg/provider/objectstore"
	"github.com/3leaps/gostage/pkg/resource"
	"github.com/3leaps/gostage/pkg/resourceutil"
)

// Config selects a backend and carries the settings of its gateway. Only
// the section matching Type is used.
type Config struct {
	Type provider.Type

	FTP   ftpgw.Config
	SFTP  sftpgw.Config
	S3    s3gw.Config
	Minio miniogw.Config

	// MaxDepth bounds recursive FTP/SFTP listings. Zero uses the provider
	// default.
	MaxDepth int
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "provider config: " + e.Field + ": " + e.Message
}

// Validate checks the selected backend section.
func (c *Config) Validate() error {
	if c.MaxDepth < 0 {
		return &ConfigError{Field: "MaxDepth", Message: "must not be negative"}
	}
	switch c.Type {
	case provider.TypeFile:
		return nil
	case provider.TypeFTP:
		return c.FTP.Validate()
	case provider.TypeSFTP:
		return c.SFTP.Validate()
	case provider.TypeS3:
		return c.S3.Validate()
	case provider.TypeMinio:
		return c.Minio.Validate()
	case "":
		return &ConfigError{Field: "Type", Message: "backend type is required"}
	}
	return &ConfigError{Field: "Type", Message: fmt.Sprintf("unknown backend type %q", c.Type)}
}

// Endpoint returns the endpoint the configured provider serves.
func (c *Config) Endpoint() resource.Endpoint {
	switch c.Type {
	case provider.TypeFTP:
		return resource.NewEndpoint(resource.SchemeFTP, c.FTP.Host)
	case provider.TypeSFTP:
		return resource.NewEndpoint(resource.SchemeSFTP, c.SFTP.Host)
	case provider.TypeS3:
		return resource.NewEndpoint(resource.SchemeS3, c.S3.Bucket)
	case provider.TypeMinio:
		return resource.NewEndpoint(resource.SchemeMinio, c.Minio.Bucket)
	}
	return resource.FileEndpoint
}

// Option configures New.
type Option func(*options)

type options struct {
	utils  *resourceutil.Utils
	logger *zap.Logger
}

// WithUtils shares a resource utilities facade with the provider. By
// default a facade over the OS filesystem is created.
func WithUtils(u *resourceutil.Utils) Option {
	return func(o *options) { o.utils = u }
}

// WithLogger sets the logger handed to the provider and its facade.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Gateway constructors, replaced in tests.
var (
	dialFTP  = func(ctx context.Context, cfg ftpgw.Config) (remote.Gateway, error) { return ftpgw.Dial(ctx, cfg) }
	dialSFTP = func(ctx context.Context, cfg sftpgw.Config) (remote.Gateway, error) { return sftpgw.Dial(ctx, cfg) }
	newS3    = func(ctx context.Context, cfg s3gw.Config) (objectstore.Gateway, error) { return s3gw.New(ctx, cfg) }
	newMinio = func(cfg miniogw.Config) (objectstore.Gateway, error) { return miniogw.New(cfg) }
)

// New validates cfg, opens the backend gateway and returns its provider.
// Remote sessions are opened eagerly; the caller must Close the provider.
func New(ctx context.Context, cfg Config, opts ...Option) (provider.ResourceProvider, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.utils == nil {
		o.utils = resourceutil.New(resourceutil.WithLogger(o.logger))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	endpoint := cfg.Endpoint()

	switch cfg.Type {
	case provider.TypeFile:
		p, err := fileprovider.New(o.utils, fileprovider.WithLogger(o.logger))
		if err != nil {
			return nil, err
		}
		return p, nil

	case provider.TypeFTP, provider.TypeSFTP:
		var (
			gw  remote.Gateway
			err error
		)
		if cfg.Type == provider.TypeFTP {
			gw, err = dialFTP(ctx, cfg.FTP)
		} else {
			gw, err = dialSFTP(ctx, cfg.SFTP)
		}
		if err != nil {
			return nil, err
		}
		p, err := ftpprovider.New(endpoint, gw, o.utils,
			ftpprovider.WithMaxDepth(cfg.MaxDepth),
			ftpprovider.WithLogger(o.logger),
		)
		if err != nil {
			_ = gw.Close()
			return nil, err
		}
		return p, nil

	default:
		var (
			gw  objectstore.Gateway
			err error
		)
		if cfg.Type == provider.TypeS3 {
			gw, err = newS3(ctx, cfg.S3)
		} else {
			gw, err = newMinio(cfg.Minio)
		}
		if err != nil {
			return nil, err
		}
		p, err := osprovider.New(endpoint, gw, o.utils, osprovider.WithLogger(o.logger))
		if err != nil {
			_ = gw.Close()
			return nil, err
		}
		return p, nil
	}
}
