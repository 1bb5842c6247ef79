// Package output renders listing and copy results as typed records.
//
// Each record is an envelope with a type-specific payload. The JSONL
// writer emits one self-contained JSON object per line; the YAML writer
// emits one document per record; the text writer prints one short line
// per record for humans.
package output

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/3leaps/gostage/pkg/gateway/objectstore"
	"github.com/3leaps/gostage/pkg/gateway/remote"
	"github.com/3leaps/gostage/pkg/resource"
)

// Record type constants define the envelope types.
// These follow the pattern: gostage.<type>.v<version>
const (
	// TypeResource identifies listed resources.
	TypeResource = "gostage.resource.v1"

	// TypeCopy identifies completed copies.
	TypeCopy = "gostage.copy.v1"

	// TypeError identifies error records.
	TypeError = "gostage.error.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "gostage.summary.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	// Type identifies the record type (e.g., "gostage.resource.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// JobID is the correlation ID for this run.
	JobID string `json:"job_id"`

	// Provider identifies the backend type (e.g., "ftp", "s3").
	Provider string `json:"provider"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// ResourceRecord is the data payload for one listed resource.
type ResourceRecord struct {
	// URL is the normalized resource URL.
	URL string `json:"url" yaml:"url"`

	// RelativePath is the path below the scan location.
	RelativePath string `json:"relative_path" yaml:"relative_path"`

	// Filename is the bare name.
	Filename string `json:"filename" yaml:"filename"`

	// IsDirectory marks directories and object-store prefixes.
	IsDirectory bool `json:"is_directory" yaml:"is_directory"`

	// Size in bytes; omitted when unknown.
	Size *int64 `json:"size,omitempty" yaml:"size,omitempty"`

	// LastModified as reported by the backend; omitted when unknown.
	LastModified *time.Time `json:"last_modified,omitempty" yaml:"last_modified,omitempty"`
}

// NewResourceRecord describes r relative to scanLocation.
func NewResourceRecord(scanLocation, r resource.Resource) *ResourceRecord {
	rec := &ResourceRecord{
		URL:          r.URL(),
		RelativePath: resource.RelativePath(scanLocation, r),
		Filename:     r.Filename(),
		IsDirectory:  r.IsDirectory(),
	}
	if size := r.Size(); size >= 0 {
		rec.Size = &size
	}
	if mod := r.LastModified(); !mod.IsZero() {
		mod = mod.UTC()
		rec.LastModified = &mod
	}
	return rec
}

// CopyRecord is the data payload for one completed copy.
type CopyRecord struct {
	// Direction is "pull" (remote to local) or "push" (local to remote).
	Direction string `json:"direction" yaml:"direction"`

	// Source is the URL that was read.
	Source string `json:"source" yaml:"source"`

	// Destination is the URL that was published.
	Destination string `json:"destination" yaml:"destination"`

	// Bytes is the destination size when the backend reports it.
	Bytes *int64 `json:"bytes,omitempty" yaml:"bytes,omitempty"`
}

// Copy directions.
const (
	DirectionPull = "pull"
	DirectionPush = "push"
)

// ErrorRecord is the data payload for errors.
//
// Errors are emitted as records so a batch can report every failed item
// and still finish the others.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code" yaml:"code"`

	// Message is a human-readable error description.
	Message string `json:"message" yaml:"message"`

	// URL is the resource related to this error, if applicable.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Details contains additional error context.
	Details any `json:"details,omitempty" yaml:"details,omitempty"`
}

// Error codes for ErrorRecord.
const (
	ErrCodeAccessDenied  = "ACCESS_DENIED"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeNotDirectory  = "NOT_DIRECTORY"
	ErrCodeInvalidHost   = "INVALID_HOST"
	ErrCodeWrongScheme   = "WRONG_SCHEME"
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeTraversal     = "TRAVERSAL_LIMIT"
	ErrCodeTimeout       = "TIMEOUT"
	ErrCodeThrottled     = "THROTTLED"
	ErrCodeUnavailable   = "UNAVAILABLE"
	ErrCodeInternal      = "INTERNAL"
	ErrCodeCanceled      = "CANCELED"
	ErrCodeNotWritable   = "NOT_WRITABLE"
	ErrCodeUnsupported   = "UNSUPPORTED"
	ErrCodeAuthFailed    = "AUTH_FAILED"
	ErrCodeMissingBucket = "BUCKET_NOT_FOUND"
)

// ErrorCode classifies err into one of the ErrCode constants.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return ErrCodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	case resource.IsInvalidHost(err):
		return ErrCodeInvalidHost
	case resource.IsWrongScheme(err):
		return ErrCodeWrongScheme
	case errors.Is(err, resource.ErrNotDirectory):
		return ErrCodeNotDirectory
	case errors.Is(err, resource.ErrTraversalCycle), errors.Is(err, resource.ErrTraversalDepth):
		return ErrCodeTraversal
	case errors.Is(err, resource.ErrNotWritable):
		return ErrCodeNotWritable
	case errors.Is(err, resource.ErrUnsupportedScheme):
		return ErrCodeUnsupported
	case errors.Is(err, resource.ErrInvalidURL),
		errors.Is(err, resource.ErrInvalidPattern),
		errors.Is(err, resource.ErrInvalidFilename),
		errors.Is(err, resource.ErrMissingHost):
		return ErrCodeInvalidInput
	case objectstore.IsBucketNotFound(err):
		return ErrCodeMissingBucket
	case resource.IsNotFound(err), objectstore.IsNotFound(err), remote.IsNotFound(err):
		return ErrCodeNotFound
	case objectstore.IsAccessDenied(err):
		return ErrCodeAccessDenied
	case errors.Is(err, objectstore.ErrInvalidCredentials):
		return ErrCodeAuthFailed
	case objectstore.IsThrottled(err):
		return ErrCodeThrottled
	case errors.Is(err, objectstore.ErrUnavailable), errors.Is(err, remote.ErrClosed):
		return ErrCodeUnavailable
	}
	return ErrCodeInternal
}

// NewErrorRecord builds an error record for err on url.
func NewErrorRecord(url string, err error) *ErrorRecord {
	return &ErrorRecord{
		Code:    ErrorCode(err),
		Message: err.Error(),
		URL:     url,
	}
}

// SummaryRecord is the data payload for final summaries.
type SummaryRecord struct {
	// Command is the CLI command that produced the run (list, pull, push).
	Command string `json:"command" yaml:"command"`

	// Locations lists the scan locations or copy sources of the run.
	Locations []string `json:"locations,omitempty" yaml:"locations,omitempty"`

	// Files is the number of file resources listed or copied.
	Files int64 `json:"files" yaml:"files"`

	// Directories is the number of directory resources listed.
	Directories int64 `json:"directories" yaml:"directories"`

	// BytesTotal is the cumulative size of files with a known size.
	BytesTotal int64 `json:"bytes_total" yaml:"bytes_total"`

	// Errors is the count of failed items.
	Errors int64 `json:"errors" yaml:"errors"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration_ns" yaml:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration" yaml:"duration"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")

	// ErrUnknownFormat is returned by NewWriter for unsupported formats.
	ErrUnknownFormat = errors.New("unknown output format")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
