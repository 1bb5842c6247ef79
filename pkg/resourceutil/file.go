package resourceutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/3leaps/gostage/pkg/resource"
)

// FileBackend serves file: resources from an afero filesystem.
type FileBackend struct {
	fs afero.Fs
}

var _ WritableBackend = (*FileBackend)(nil)

// NewFileBackend returns a backend over fsys.
func NewFileBackend(fsys afero.Fs) *FileBackend {
	return &FileBackend{fs: fsys}
}

// Fs returns the underlying filesystem.
func (b *FileBackend) Fs() afero.Fs { return b.fs }

// Stat implements Backend.
func (b *FileBackend) Stat(ctx context.Context, r resource.Resource) (resource.Resource, error) {
	if err := ctx.Err(); err != nil {
		return resource.Resource{}, err
	}
	info, err := b.fs.Stat(nativePath(r.Path()))
	if err != nil {
		return resource.Resource{}, normalizeFsError(err)
	}
	return fileResource(r.Path(), info), nil
}

// Open implements Backend.
func (b *FileBackend) Open(ctx context.Context, r resource.Resource) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := b.fs.Open(nativePath(r.Path()))
	if err != nil {
		return nil, normalizeFsError(err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, normalizeFsError(err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, ErrIsDirectory
	}
	return f, nil
}

// Stage implements Backend. Bytes go to a hidden staging file next to the
// target, renamed over it on Commit.
func (b *FileBackend) Stage(ctx context.Context, r resource.Resource) (StagedWriter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, name := path.Split(r.Path())
	if err := ValidateFilename(name); err != nil {
		return nil, err
	}
	if err := b.fs.MkdirAll(nativePath(dir), 0o755); err != nil {
		return nil, normalizeFsError(err)
	}

	tmp := path.Join(dir, StagingName(name))
	f, err := b.fs.OpenFile(nativePath(tmp), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, normalizeFsError(err)
	}
	return &fileStage{fs: b.fs, file: f, tmp: nativePath(tmp), final: nativePath(r.Path())}, nil
}

// OpenWriter implements WritableBackend.
func (b *FileBackend) OpenWriter(ctx context.Context, r resource.Resource, appendMode bool) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.fs.MkdirAll(nativePath(path.Dir(r.Path())), 0o755); err != nil {
		return nil, normalizeFsError(err)
	}
	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := b.fs.OpenFile(nativePath(r.Path()), flags, 0o644)
	if err != nil {
		return nil, normalizeFsError(err)
	}
	return f, nil
}

type fileStage struct {
	fs    afero.Fs
	file  afero.File
	tmp   string
	final string
	done  bool
}

func (s *fileStage) Write(p []byte) (int, error) {
	if s.done {
		return 0, ErrStageFinished
	}
	return s.file.Write(p)
}

func (s *fileStage) Commit(ctx context.Context) error {
	if s.done {
		return ErrStageFinished
	}
	s.done = true

	if err := s.file.Close(); err != nil {
		_ = s.fs.Remove(s.tmp)
		return err
	}
	if err := ctx.Err(); err != nil {
		_ = s.fs.Remove(s.tmp)
		return err
	}
	if err := s.fs.Rename(s.tmp, s.final); err != nil {
		_ = s.fs.Remove(s.tmp)
		return normalizeFsError(err)
	}
	return nil
}

func (s *fileStage) Abort(_ context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	_ = s.file.Close()
	if err := s.fs.Remove(s.tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func fileResource(p string, info fs.FileInfo) resource.Resource {
	opts := []resource.Option{
		resource.WithDirectory(info.IsDir()),
		resource.WithLastModified(info.ModTime()),
	}
	if !info.IsDir() {
		opts = append(opts, resource.WithSize(info.Size()))
	}
	return resource.FileEndpoint.Resource(p, opts...)
}

func nativePath(p string) string {
	return filepath.FromSlash(p)
}

// normalizeFsError maps filesystem errors onto resource sentinels while
// keeping the original error in the chain.
func normalizeFsError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", resource.ErrNotFound, err)
	default:
		return err
	}
}
