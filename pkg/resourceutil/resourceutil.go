// Package resourceutil provides backend-agnostic resource operations:
// existence checks, glob listing of the local filesystem, staged copies
// between any two registered backends and scoped writes.
//
// Utils dispatches each resource to the Backend registered for its
// endpoint. The local filesystem is registered at construction; providers
// register their remote endpoints.
package resourceutil

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/3leaps/gostage/pkg/match"
	"github.com/3leaps/gostage/pkg/resource"
)

// Utils is the resource utilities facade. Safe for concurrent use.
type Utils struct {
	fs     afero.Fs
	logger *zap.Logger

	mu sync.RWMutex
	// backends holds the registrations of each endpoint; the last one
	// serves requests.
	backends map[resource.Endpoint][]Backend
}

// Option configures Utils.
type Option func(*Utils)

// WithFs sets the local filesystem. Defaults to afero.NewOsFs().
func WithFs(fsys afero.Fs) Option {
	return func(u *Utils) { u.fs = fsys }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(u *Utils) { u.logger = l }
}

// New returns a facade with the local filesystem registered.
func New(opts ...Option) *Utils {
	u := &Utils{
		fs:       afero.NewOsFs(),
		logger:   zap.NewNop(),
		backends: make(map[resource.Endpoint][]Backend),
	}
	for _, opt := range opts {
		opt(u)
	}
	u.backends[resource.FileEndpoint] = []Backend{NewFileBackend(u.fs)}
	return u
}

// Fs returns the local filesystem.
func (u *Utils) Fs() afero.Fs { return u.fs }

// Register installs b for every resource on ep. It shadows earlier
// registrations of ep until it is unregistered.
func (u *Utils) Register(ep resource.Endpoint, b Backend) {
	ep = resource.NewEndpoint(ep.Scheme, ep.Host)
	u.mu.Lock()
	defer u.mu.Unlock()
	u.backends[ep] = append(without(u.backends[ep], b), b)
}

// Unregister removes the registration of b for ep. Other registrations
// of ep stay in place; the most recent remaining one serves requests.
func (u *Utils) Unregister(ep resource.Endpoint, b Backend) {
	ep = resource.NewEndpoint(ep.Scheme, ep.Host)
	u.mu.Lock()
	defer u.mu.Unlock()
	rest := without(u.backends[ep], b)
	if len(rest) == 0 {
		delete(u.backends, ep)
		return
	}
	u.backends[ep] = rest
}

func without(bs []Backend, b Backend) []Backend {
	out := make([]Backend, 0, len(bs))
	for _, cur := range bs {
		if cur != b {
			out = append(out, cur)
		}
	}
	return out
}

func (u *Utils) backend(r resource.Resource) (Backend, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	bs := u.backends[r.Endpoint()]
	if len(bs) == 0 {
		return nil, fmt.Errorf("%w: no backend registered for %s", resource.ErrUnsupportedScheme, r.Endpoint())
	}
	return bs[len(bs)-1], nil
}

// Stat returns r populated with backend metadata.
func (u *Utils) Stat(ctx context.Context, r resource.Resource) (resource.Resource, error) {
	b, err := u.backend(r)
	if err != nil {
		return resource.Resource{}, &resource.UtilsError{Op: "Stat", URL: r.URL(), Err: err}
	}
	st, err := b.Stat(ctx, r)
	if err != nil {
		return resource.Resource{}, &resource.UtilsError{Op: "Stat", URL: r.URL(), Err: err}
	}
	return st, nil
}

// Exists reports whether r exists. A missing resource is not an error.
func (u *Utils) Exists(ctx context.Context, r resource.Resource) (bool, error) {
	_, err := u.Stat(ctx, r)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, resource.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// IsReadable reports whether r exists and, for files, can be opened.
func (u *Utils) IsReadable(ctx context.Context, r resource.Resource) bool {
	st, err := u.Stat(ctx, r)
	if err != nil {
		return false
	}
	if st.IsDirectory() {
		return true
	}
	b, err := u.backend(r)
	if err != nil {
		return false
	}
	rc, err := b.Open(ctx, r)
	if err != nil {
		return false
	}
	_ = rc.Close()
	return true
}

// GetResources resolves a glob over the local filesystem.
//
// The pattern is a file: URL or an absolute path using doublestar syntax.
// Literal path parts containing glob metacharacters must be quoted with
// EscapeGlob. Results carry directory, size and time metadata; the
// pattern root itself and staging files are never returned. A missing
// root yields no matches.
func (u *Utils) GetResources(ctx context.Context, pattern string) ([]resource.Resource, error) {
	const op = "GetResources"

	root, err := resource.Parse(pattern)
	if err != nil {
		return nil, &resource.UtilsError{Op: op, URL: pattern, Err: err}
	}
	if root.Scheme() != resource.SchemeFile {
		return nil, &resource.UtilsError{Op: op, URL: pattern,
			Err: fmt.Errorf("%w: glob listing is only available for file resources", resource.ErrUnsupportedScheme)}
	}

	base, rest := match.SplitPattern(root.Path())
	if rest == "" || !doublestar.ValidatePattern(rest) {
		return nil, &resource.UtilsError{Op: op, URL: pattern, Err: resource.ErrInvalidPattern}
	}
	if base == "." {
		base = resource.Separator
	}

	info, err := u.fs.Stat(nativePath(base))
	if err != nil {
		if errors.Is(normalizeFsError(err), resource.ErrNotFound) {
			return []resource.Resource{}, nil
		}
		return nil, &resource.UtilsError{Op: op, URL: pattern, Err: err}
	}
	if !info.IsDir() {
		return []resource.Resource{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, &resource.UtilsError{Op: op, URL: pattern, Err: err}
	}

	fsys := afero.NewIOFS(afero.NewBasePathFs(u.fs, nativePath(base)))
	matches, err := doublestar.Glob(fsys, rest, doublestar.WithFailOnIOErrors())
	if err != nil {
		if errors.Is(err, doublestar.ErrBadPattern) {
			err = fmt.Errorf("%w: %w", resource.ErrInvalidPattern, err)
		}
		return nil, &resource.UtilsError{Op: op, URL: pattern, Err: err}
	}

	out := make([]resource.Resource, 0, len(matches))
	for _, m := range matches {
		if m == "." || m == "" || IsStagingName(resource.BareName(m)) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, &resource.UtilsError{Op: op, URL: pattern, Err: err}
		}
		full := path.Join(base, m)
		st, err := u.fs.Stat(nativePath(full))
		if err != nil {
			return nil, &resource.UtilsError{Op: op, URL: resource.FileEndpoint.Resource(full).URL(), Err: normalizeFsError(err)}
		}
		out = append(out, fileResource(full, st))
	}

	u.logger.Debug("glob resolved",
		zap.String("pattern", pattern),
		zap.Int("matches", len(out)),
	)
	return out, nil
}

// CopyResource streams source into destinationDir/filename.
//
// The bytes are staged by the destination backend and published under
// the final name only after the whole stream was copied; a failed copy
// leaves any previous destination untouched. Parent directories are
// created. The returned resource carries the destination metadata.
func (u *Utils) CopyResource(ctx context.Context, destinationDir, source resource.Resource, filename string) (resource.Resource, error) {
	const op = "CopyResource"

	if err := ValidateFilename(filename); err != nil {
		return resource.Resource{}, &resource.UtilsError{Op: op, URL: source.URL(), Err: fmt.Errorf("%w: %q", err, filename)}
	}
	dest := destinationDir.Join(filename)

	srcBackend, err := u.backend(source)
	if err != nil {
		return resource.Resource{}, &resource.UtilsError{Op: op, URL: source.URL(), Err: err}
	}
	dstBackend, err := u.backend(dest)
	if err != nil {
		return resource.Resource{}, &resource.UtilsError{Op: op, URL: dest.URL(), Err: err}
	}

	// Stage before Open: a serialized session (FTP) is held while a source
	// body is open.
	w, err := dstBackend.Stage(ctx, dest)
	if err != nil {
		return resource.Resource{}, &resource.UtilsError{Op: op, URL: dest.URL(), Err: err}
	}
	body, err := srcBackend.Open(ctx, source)
	if err != nil {
		_ = w.Abort(context.WithoutCancel(ctx))
		return resource.Resource{}, &resource.UtilsError{Op: op, URL: source.URL(), Err: err}
	}
	n, err := CopyStaged(ctx, w, body)
	if err != nil {
		return resource.Resource{}, &resource.UtilsError{Op: op, URL: dest.URL(), Err: err}
	}

	st, err := dstBackend.Stat(ctx, dest)
	if err != nil {
		return resource.Resource{}, &resource.UtilsError{Op: op, URL: dest.URL(), Err: err}
	}

	u.logger.Debug("resource copied",
		zap.String("source", source.URL()),
		zap.String("destination", dest.URL()),
		zap.Int64("bytes", n),
	)
	return st, nil
}

// CopyPreservingRelative copies item under destinationRoot, keeping its
// directory relative to root. Items outside root keep their full path
// below destinationRoot.
func (u *Utils) CopyPreservingRelative(ctx context.Context, root, item, destinationRoot resource.Resource) (resource.Resource, error) {
	rel := resource.RelativePath(root, item)
	destDir := destinationRoot
	if dir := path.Dir(rel); dir != "." && dir != resource.Separator {
		destDir = destinationRoot.Join(dir)
	}
	return u.CopyResource(ctx, destDir, item, item.Filename())
}

// WriteToFile writes content to r, appending or truncating. The write
// handle is always closed; a close failure is reported when the write
// itself succeeded.
func (u *Utils) WriteToFile(ctx context.Context, r resource.Resource, content []byte, appendMode bool) (err error) {
	const op = "WriteToFile"

	wr := u.GetWritableResource(r)
	if wr == nil {
		return &resource.UtilsError{Op: op, URL: r.URL(), Err: resource.ErrNotWritable}
	}
	w, err := wr.OpenWriter(ctx, appendMode)
	if err != nil {
		return &resource.UtilsError{Op: op, URL: r.URL(), Err: err}
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = &resource.UtilsError{Op: op, URL: r.URL(), Err: cerr}
		}
	}()

	if _, err := w.Write(content); err != nil {
		return &resource.UtilsError{Op: op, URL: r.URL(), Err: err}
	}
	return nil
}

// GetWritableResource returns a handle for in-place writes, or nil when
// the backend of r cannot write in place (object stores). Callers then
// fall back to write-then-upload.
func (u *Utils) GetWritableResource(r resource.Resource) *WritableResource {
	b, err := u.backend(r)
	if err != nil {
		return nil
	}
	wb, ok := b.(WritableBackend)
	if !ok {
		return nil
	}
	return &WritableResource{res: r, backend: wb}
}
