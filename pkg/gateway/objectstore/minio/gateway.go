// Package minio implements the object-store gateway on top of minio-go.
//
// It serves MinIO deployments and any S3-compatible endpoint that prefers
// the MinIO client. Listing is delegated to the client's internal
// paginator, so every List call returns a complete, untruncated page.
package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/3leaps/gostage/pkg/gateway/objectstore"
)

// Config configures a MinIO gateway.
type Config struct {
	// Endpoint is host[:port] without scheme, e.g. "localhost:9000" (required).
	Endpoint string

	// Bucket is the bucket name (required).
	Bucket string

	// Region is optional; most MinIO deployments ignore it.
	Region string

	// AccessKeyID and SecretAccessKey are passed to the client verbatim.
	// When both are empty the MINIO_* and AWS_* environment variables are used.
	AccessKeyID     string
	SecretAccessKey string

	// UseSSL selects https.
	UseSSL bool
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return &ConfigError{Field: "Endpoint", Message: "endpoint is required"}
	}
	if strings.Contains(c.Endpoint, "://") {
		return &ConfigError{Field: "Endpoint", Message: "endpoint must be host[:port] without scheme"}
	}
	if c.Bucket == "" {
		return &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	}
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "minio config: " + e.Field + ": " + e.Message
}

var errUnsupportedDelimiter = errors.New("only \"/\" is supported as list delimiter")

// Gateway implements objectstore.Gateway with minio-go.
type Gateway struct {
	client *minio.Client
	bucket string
}

var _ objectstore.Gateway = (*Gateway)(nil)

// New creates a MinIO gateway. No network call is made until first use.
func New(cfg Config) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  resolveCredentials(cfg),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, &objectstore.GatewayError{Op: "New", Gateway: objectstore.TypeMinio, Bucket: cfg.Bucket, Err: err}
	}

	return &Gateway{client: client, bucket: cfg.Bucket}, nil
}

func resolveCredentials(cfg Config) *credentials.Credentials {
	if cfg.AccessKeyID != "" {
		return credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	return credentials.NewChainCredentials([]credentials.Provider{
		&credentials.EnvMinio{},
		&credentials.EnvAWS{},
	})
}

// List returns every object (and, with a "/" delimiter, every common
// prefix) under opts.Prefix. Only "/" is supported as a delimiter.
func (g *Gateway) List(ctx context.Context, opts objectstore.ListOptions) (*objectstore.ListResult, error) {
	if opts.Delimiter != "" && opts.Delimiter != "/" {
		return nil, g.wrapError("List", opts.Prefix, errUnsupportedDelimiter)
	}

	listOpts := minio.ListObjectsOptions{
		Prefix:    opts.Prefix,
		Recursive: opts.Delimiter == "",
		MaxKeys:   opts.MaxKeys,
	}

	result := &objectstore.ListResult{}
	for obj := range g.client.ListObjects(ctx, g.bucket, listOpts) {
		if obj.Err != nil {
			return nil, g.wrapError("List", opts.Prefix, obj.Err)
		}
		// The client reports common prefixes as zero-size entries ending in "/".
		if !listOpts.Recursive && strings.HasSuffix(obj.Key, "/") && obj.Key != opts.Prefix {
			result.CommonPrefixes = append(result.CommonPrefixes, obj.Key)
			continue
		}
		result.Objects = append(result.Objects, objectstore.ObjectSummary{
			Key:          obj.Key,
			Size:         obj.Size,
			ETag:         strings.Trim(obj.ETag, "\""),
			LastModified: obj.LastModified,
		})
	}
	return result, nil
}

// Head returns metadata for a single object.
func (g *Gateway) Head(ctx context.Context, key string) (*objectstore.ObjectMeta, error) {
	info, err := g.client.StatObject(ctx, g.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, g.wrapError("Head", key, err)
	}
	return &objectstore.ObjectMeta{
		ObjectSummary: objectstore.ObjectSummary{
			Key:          key,
			Size:         info.Size,
			ETag:         strings.Trim(info.ETag, "\""),
			LastModified: info.LastModified,
		},
		ContentType: info.ContentType,
		Metadata:    info.UserMetadata,
	}, nil
}

// GetObject opens the object body for streaming. minio-go defers the
// request until first use, so the object is stat'ed eagerly to surface
// a missing key here rather than on the first Read.
func (g *Gateway) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	obj, err := g.client.GetObject(ctx, g.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, g.wrapError("GetObject", key, err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, 0, g.wrapError("GetObject", key, err)
	}
	return obj, info.Size, nil
}

// PutObject uploads an object. A negative contentLength streams with
// unknown size.
func (g *Gateway) PutObject(ctx context.Context, key string, body io.Reader, contentLength int64) error {
	_, err := g.client.PutObject(ctx, g.bucket, key, body, contentLength, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return g.wrapError("PutObject", key, err)
	}
	return nil
}

// DeleteObject deletes an object.
func (g *Gateway) DeleteObject(ctx context.Context, key string) error {
	if err := g.client.RemoveObject(ctx, g.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return g.wrapError("DeleteObject", key, err)
	}
	return nil
}

// Close is a no-op; the client holds no long-lived connections of its own.
func (g *Gateway) Close() error {
	return nil
}

func (g *Gateway) wrapError(op, key string, err error) error {
	wrapped := &objectstore.GatewayError{
		Op:      op,
		Gateway: objectstore.TypeMinio,
		Bucket:  g.bucket,
		Key:     key,
		Err:     err,
	}
	if sentinel := classify(err); sentinel != nil {
		wrapped.Err = fmt.Errorf("%w: %w", sentinel, err)
	}
	return wrapped
}

func classify(err error) error {
	resp := minio.ToErrorResponse(err)
	if sentinel := objectstore.ClassifyCode(resp.Code); sentinel != nil {
		return sentinel
	}
	switch resp.StatusCode {
	case 404:
		return objectstore.ErrNotFound
	case 403:
		return objectstore.ErrAccessDenied
	case 429:
		return objectstore.ErrThrottled
	case 503:
		return objectstore.ErrUnavailable
	}
	return nil
}
