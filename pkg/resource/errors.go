package resource

import (
	"errors"
	"fmt"
)

// Sentinel errors for resource operations.
var (
	// ErrInvalidURL indicates a resource URL could not be parsed.
	ErrInvalidURL = errors.New("invalid resource URL")

	// ErrUnsupportedScheme indicates the URL scheme has no backend.
	ErrUnsupportedScheme = errors.New("unsupported scheme")

	// ErrMissingHost indicates a remote URL without host or bucket.
	ErrMissingHost = errors.New("missing host")

	// ErrNotFound indicates the resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrScanLocationNotFound indicates the scan location does not exist.
	ErrScanLocationNotFound = errors.New("scan location does not exist")

	// ErrNotDirectory indicates the scan location is a plain file.
	ErrNotDirectory = errors.New("scan location is not a directory")

	// ErrTraversalCycle indicates a recursive listing revisited a directory.
	ErrTraversalCycle = errors.New("directory cycle detected")

	// ErrTraversalDepth indicates a recursive listing exceeded its depth bound.
	ErrTraversalDepth = errors.New("maximum listing depth exceeded")

	// ErrInvalidPattern indicates a malformed glob pattern.
	ErrInvalidPattern = errors.New("invalid glob pattern")

	// ErrInvalidFilename indicates a destination filename that is empty or
	// contains a separator.
	ErrInvalidFilename = errors.New("invalid filename")

	// ErrNotWritable indicates the backend cannot write the resource in place.
	ErrNotWritable = errors.New("resource is not writable in place")
)

// InvalidHostError reports a resource whose host does not match the
// backend instance it was handed to.
type InvalidHostError struct {
	URL      string
	Expected string
	Got      string
}

// Error implements the error interface.
func (e *InvalidHostError) Error() string {
	return fmt.Sprintf("invalid host %q in %s (expected %q)", e.Got, e.URL, e.Expected)
}

// WrongSchemeError reports a resource of another backend type.
type WrongSchemeError struct {
	URL      string
	Expected string
	Got      string
}

// Error implements the error interface.
func (e *WrongSchemeError) Error() string {
	return fmt.Sprintf("wrong scheme %q in %s (expected %q)", e.Got, e.URL, e.Expected)
}

// CollectionError wraps listing and copy failures at the backend level,
// including violated listing preconditions.
type CollectionError struct {
	// Op is the operation that failed (e.g. "List", "CopyFromRemote").
	Op string

	// URL is the resource being processed.
	URL string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *CollectionError) Error() string {
	return fmt.Sprintf("collect %s %s: %v", e.Op, e.URL, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CollectionError) Unwrap() error { return e.Err }

// UtilsError wraps generic I/O failures in the resource utilities.
type UtilsError struct {
	Op  string
	URL string
	Err error
}

// Error implements the error interface.
func (e *UtilsError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("resource %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("resource %s %s: %v", e.Op, e.URL, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *UtilsError) Unwrap() error { return e.Err }

// NewCollectionError wraps err for op on r. Identity errors and errors that
// already carry a *CollectionError are returned unchanged so callers can
// match them directly and messages are not doubled.
func NewCollectionError(op string, r Resource, err error) error {
	if err == nil {
		return nil
	}
	var ce *CollectionError
	if errors.As(err, &ce) || IsInvalidHost(err) || IsWrongScheme(err) {
		return err
	}
	return &CollectionError{Op: op, URL: r.URL(), Err: err}
}

// IsInvalidHost reports whether err is or wraps an *InvalidHostError.
func IsInvalidHost(err error) bool {
	var e *InvalidHostError
	return errors.As(err, &e)
}

// IsWrongScheme reports whether err is or wraps a *WrongSchemeError.
func IsWrongScheme(err error) bool {
	var e *WrongSchemeError
	return errors.As(err, &e)
}

// IsCollection reports whether err is or wraps a *CollectionError.
func IsCollection(err error) bool {
	var e *CollectionError
	return errors.As(err, &e)
}

// IsUtils reports whether err is or wraps a *UtilsError.
func IsUtils(err error) bool {
	var e *UtilsError
	return errors.As(err, &e)
}

// IsNotFound reports whether err indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrScanLocationNotFound)
}
