package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/3leaps/gostage/pkg/gateway/objectstore"
)

// Gateway implements objectstore.Gateway for AWS S3 and S3-compatible storage.
type Gateway struct {
	client  *s3.Client
	bucket  string
	maxKeys int
}

var _ objectstore.Gateway = (*Gateway)(nil)

// New creates a new S3 gateway with the given configuration.
func New(ctx context.Context, cfg Config) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &objectstore.GatewayError{
			Op:      "New",
			Gateway: objectstore.TypeS3,
			Bucket:  cfg.Bucket,
			Err:     err,
		}
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
		},
	}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	maxKeys := cfg.MaxKeys
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}

	return &Gateway{
		client:  s3.NewFromConfig(awsCfg, s3Opts...),
		bucket:  cfg.Bucket,
		maxKeys: maxKeys,
	}, nil
}

func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	awsCfg.Region = resolveRegion(cfg.Endpoint, awsCfg.Region)
	return awsCfg, nil
}

// Bucket returns the bucket this gateway addresses.
func (g *Gateway) Bucket() string {
	return g.bucket
}

// List returns a page of objects with the given prefix.
func (g *Gateway) List(ctx context.Context, opts objectstore.ListOptions) (*objectstore.ListResult, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(g.bucket),
		MaxKeys: aws.Int32(int32(clampMaxKeys(opts.MaxKeys, g.maxKeys))),
	}
	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}
	if opts.Delimiter != "" {
		input.Delimiter = aws.String(opts.Delimiter)
	}
	if opts.ContinuationToken != "" {
		input.ContinuationToken = aws.String(opts.ContinuationToken)
	}

	output, err := g.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, g.wrapError("List", opts.Prefix, err)
	}

	return convertListOutput(output), nil
}

func convertListOutput(output *s3.ListObjectsV2Output) *objectstore.ListResult {
	objects := make([]objectstore.ObjectSummary, 0, len(output.Contents))
	for _, obj := range output.Contents {
		objects = append(objects, objectstore.ObjectSummary{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			ETag:         cleanETag(aws.ToString(obj.ETag)),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}

	prefixes := make([]string, 0, len(output.CommonPrefixes))
	for _, cp := range output.CommonPrefixes {
		if p := aws.ToString(cp.Prefix); p != "" {
			prefixes = append(prefixes, p)
		}
	}

	return &objectstore.ListResult{
		Objects:           objects,
		CommonPrefixes:    prefixes,
		IsTruncated:       aws.ToBool(output.IsTruncated),
		ContinuationToken: aws.ToString(output.NextContinuationToken),
	}
}

// Head returns metadata for a single object.
func (g *Gateway) Head(ctx context.Context, key string) (*objectstore.ObjectMeta, error) {
	output, err := g.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, g.wrapError("Head", key, err)
	}

	return &objectstore.ObjectMeta{
		ObjectSummary: objectstore.ObjectSummary{
			Key:          key,
			Size:         aws.ToInt64(output.ContentLength),
			ETag:         cleanETag(aws.ToString(output.ETag)),
			LastModified: aws.ToTime(output.LastModified),
		},
		ContentType: aws.ToString(output.ContentType),
		Metadata:    output.Metadata,
	}, nil
}

// GetObject opens the object body for streaming.
func (g *Gateway) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	output, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, 0, g.wrapError("GetObject", key, err)
	}
	size := int64(-1)
	if output.ContentLength != nil {
		size = *output.ContentLength
	}
	return output.Body, size, nil
}

// PutObject uploads an object. S3 only exposes the key once the request
// has completed, so readers never observe a partial object.
func (g *Gateway) PutObject(ctx context.Context, key string, body io.Reader, contentLength int64) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentLength >= 0 {
		input.ContentLength = aws.Int64(contentLength)
	}

	if _, err := g.client.PutObject(ctx, input); err != nil {
		return g.wrapError("PutObject", key, err)
	}
	return nil
}

// DeleteObject deletes an object.
func (g *Gateway) DeleteObject(ctx context.Context, key string) error {
	_, err := g.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(g.bucket), Key: aws.String(key)})
	if err != nil {
		return g.wrapError("DeleteObject", key, err)
	}
	return nil
}

// Close releases any resources held by the gateway.
// The S3 client doesn't require explicit cleanup.
func (g *Gateway) Close() error {
	return nil
}

// wrapError converts S3 errors to gateway errors with appropriate sentinel errors.
func (g *Gateway) wrapError(op, key string, err error) error {
	wrapped := &objectstore.GatewayError{
		Op:      op,
		Gateway: objectstore.TypeS3,
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
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket

	switch {
	case errors.As(err, &notFound), errors.As(err, &noSuchKey):
		return objectstore.ErrNotFound
	case errors.As(err, &noSuchBucket):
		return objectstore.ErrBucketNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return objectstore.ClassifyCode(apiErr.ErrorCode())
	}

	// Fallback for transport-level errors that carry only a status text.
	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "NoSuchBucket"):
		return objectstore.ErrBucketNotFound
	case strings.Contains(errMsg, "NoSuchKey") || strings.Contains(errMsg, "NotFound") || strings.Contains(errMsg, "404"):
		return objectstore.ErrNotFound
	case strings.Contains(errMsg, "AccessDenied") || strings.Contains(errMsg, "Forbidden") || strings.Contains(errMsg, "403"):
		return objectstore.ErrAccessDenied
	case strings.Contains(errMsg, "SlowDown") || strings.Contains(errMsg, "429"):
		return objectstore.ErrThrottled
	case strings.Contains(errMsg, "ServiceUnavailable") || strings.Contains(errMsg, "503"):
		return objectstore.ErrUnavailable
	}
	return nil
}

// cleanETag removes surrounding quotes from an ETag value.
func cleanETag(etag string) string {
	return strings.Trim(etag, "\"")
}

// clampMaxKeys applies defaults and limits to maxKeys values.
func clampMaxKeys(requested, gatewayDefault int) int {
	if requested <= 0 {
		requested = gatewayDefault
	}
	if requested > MaxAllowedKeys {
		return MaxAllowedKeys
	}
	return requested
}

// resolveRegion applies the us-east-1 fallback for AWS S3 only; the SDK
// has already resolved explicit, environment and profile regions.
func resolveRegion(endpoint, sdkRegion string) string {
	if sdkRegion != "" {
		return sdkRegion
	}
	if endpoint == "" {
		return DefaultAWSRegion
	}
	return ""
}
