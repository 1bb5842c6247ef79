package resourceutil

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/3leaps/gostage/pkg/match"
	"github.com/3leaps/gostage/pkg/resource"
)

// Backend is the capability set one endpoint contributes to the facade.
//
// Implementations report missing resources with errors that match
// resource.ErrNotFound under errors.Is.
type Backend interface {
	// Stat returns r populated with backend metadata.
	Stat(ctx context.Context, r resource.Resource) (resource.Resource, error)

	// Open streams the content of a file resource.
	Open(ctx context.Context, r resource.Resource) (io.ReadCloser, error)

	// Stage prepares a write of r. Nothing is visible under r until
	// Commit succeeds. Missing parent directories are created.
	Stage(ctx context.Context, r resource.Resource) (StagedWriter, error)
}

// StagedWriter receives the bytes of a pending write.
//
// Exactly one of Commit or Abort finishes the write; later calls return
// ErrStageFinished (Commit) or nil (Abort), so Abort is safe in defers.
type StagedWriter interface {
	io.Writer

	// Commit publishes the staged bytes under the final name, replacing
	// any existing resource.
	Commit(ctx context.Context) error

	// Abort discards the staged bytes.
	Abort(ctx context.Context) error
}

// WritableBackend is implemented by backends that can write a resource in
// place (append or truncate).
type WritableBackend interface {
	Backend

	// OpenWriter opens r for writing, creating it and its parents when
	// absent. With appendMode the writer appends, otherwise it truncates.
	OpenWriter(ctx context.Context, r resource.Resource, appendMode bool) (io.WriteCloser, error)
}

// ErrStageFinished is returned by Commit on a writer that was already
// committed or aborted.
var ErrStageFinished = errors.New("staged write already finished")

// ErrIsDirectory is returned when file content is requested from a
// directory.
var ErrIsDirectory = errors.New("resource is a directory")

// WritableResource is a resource whose backend supports in-place writes.
type WritableResource struct {
	res     resource.Resource
	backend WritableBackend
}

// Resource returns the target resource.
func (w *WritableResource) Resource() resource.Resource { return w.res }

// OpenWriter opens the resource for writing. The caller must close it.
func (w *WritableResource) OpenWriter(ctx context.Context, appendMode bool) (io.WriteCloser, error) {
	return w.backend.OpenWriter(ctx, w.res, appendMode)
}

const (
	stagingPrefix = "."
	stagingSuffix = ".partial"
)

// StagingName returns a hidden, unique temporary name for filename in the
// same directory: ".<filename>.<uuid>.partial".
func StagingName(filename string) string {
	return stagingPrefix + filename + "." + uuid.NewString() + stagingSuffix
}

// IsStagingName reports whether name has the exact shape produced by
// StagingName. Listings skip such entries; other hidden names ending in
// ".partial" are user files.
func IsStagingName(name string) bool {
	if !strings.HasPrefix(name, stagingPrefix) || !strings.HasSuffix(name, stagingSuffix) {
		return false
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(name, stagingPrefix), stagingSuffix)
	i := strings.LastIndexByte(inner, '.')
	if i <= 0 {
		return false
	}
	id := inner[i+1:]
	if len(id) != uuidLen {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// uuidLen is the length of the canonical textual UUID form.
const uuidLen = 36

// EscapeGlob quotes glob metacharacters in a literal path so it can be
// used as the root of a GetResources pattern.
func EscapeGlob(p string) string {
	return match.EscapeGlob(p)
}

// ValidateFilename checks that name is a single path segment.
func ValidateFilename(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return resource.ErrInvalidFilename
	case strings.Contains(name, resource.Separator):
		return resource.ErrInvalidFilename
	}
	return nil
}

// contextReader fails reads once its context is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// CopyStaged streams src into w and commits it. src is closed before the
// commit so that serialized sessions are free for the finalizing calls.
// On any failure the staged write is aborted.
func CopyStaged(ctx context.Context, w StagedWriter, src io.ReadCloser) (int64, error) {
	n, err := io.Copy(w, contextReader{ctx: ctx, r: src})
	closeErr := src.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = w.Abort(ctx)
		return n, err
	}
	if err := w.Commit(ctx); err != nil {
		_ = w.Abort(ctx)
		return n, err
	}
	return n, nil
}
