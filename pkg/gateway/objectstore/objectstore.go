// Package objectstore defines the gateway contract for flat key-space
// object stores (AWS S3, S3-compatible stores, MinIO).
//
// Gateways execute raw list and transfer primitives. Authentication uses
// the SDK's own mechanisms; gateways never retry on their own beyond what
// the SDK does.
package objectstore

import (
	"context"
	"io"
	"time"
)

// Gateway abstracts object-store listing and transfer operations.
//
// Implementations should:
//   - Support pagination via continuation tokens
//   - Support delimiter listing (CommonPrefixes) when Delimiter is set
//   - Be safe for concurrent use
type Gateway interface {
	// List returns a page of objects with the given prefix.
	// Use ContinuationToken from ListResult for subsequent pages.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	// Head returns metadata for a single object.
	// Returns ErrNotFound if the object does not exist.
	Head(ctx context.Context, key string) (*ObjectMeta, error)

	// GetObject opens the object body for streaming. The caller closes it.
	GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error)

	// PutObject uploads an object. The object becomes visible only once
	// the upload has completed.
	PutObject(ctx context.Context, key string, body io.Reader, contentLength int64) error

	// DeleteObject removes an object. Deleting a missing key is not an error.
	DeleteObject(ctx context.Context, key string) error

	// Close releases any resources held by the gateway.
	Close() error
}

// ListOptions configures a List operation.
type ListOptions struct {
	// Prefix filters results to keys starting with this value.
	// Empty string lists all objects.
	Prefix string

	// Delimiter groups keys below the prefix into CommonPrefixes
	// (e.g. "/"). Empty lists every key below the prefix.
	Delimiter string

	// ContinuationToken resumes listing from a previous ListResult.
	ContinuationToken string

	// MaxKeys limits the number of keys returned per page.
	// Zero uses the gateway default.
	MaxKeys int
}

// ListResult contains a page of objects from a List operation.
type ListResult struct {
	// Objects contains the object summaries for this page.
	Objects []ObjectSummary

	// CommonPrefixes are the immediate child prefixes when a delimiter
	// was requested.
	CommonPrefixes []string

	// ContinuationToken is used to retrieve the next page.
	// Empty string indicates no more pages.
	ContinuationToken string

	// IsTruncated indicates whether more results are available.
	IsTruncated bool
}

// ObjectSummary contains basic metadata returned from List operations.
type ObjectSummary struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// ObjectMeta contains full metadata for a single object.
type ObjectMeta struct {
	ObjectSummary

	ContentType string
	Metadata    map[string]string
}

// Type identifies an object-store gateway implementation.
type Type string

const (
	// TypeS3 represents AWS S3 or S3-compatible storage via aws-sdk-go-v2.
	TypeS3 Type = "s3"

	// TypeMinio represents MinIO or S3-compatible storage via minio-go.
	TypeMinio Type = "minio"
)

// String returns the string representation of the gateway type.
func (t Type) String() string {
	return string(t)
}

// ListAll drains every page of a listing. It is all-or-nothing: on any
// page error no objects are returned.
func ListAll(ctx context.Context, gw Gateway, opts ListOptions) (*ListResult, error) {
	out := &ListResult{}
	seenPrefixes := make(map[string]struct{})
	for {
		page, err := gw.List(ctx, opts)
		if err != nil {
			return nil, err
		}
		out.Objects = append(out.Objects, page.Objects...)
		for _, p := range page.CommonPrefixes {
			if _, ok := seenPrefixes[p]; ok {
				continue
			}
			seenPrefixes[p] = struct{}{}
			out.CommonPrefixes = append(out.CommonPrefixes, p)
		}
		if !page.IsTruncated || page.ContinuationToken == "" {
			return out, nil
		}
		opts.ContinuationToken = page.ContinuationToken
	}
}
