package ftp

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/spf13/afero"

	"github.com/3leaps/gostage/pkg/gateway/remote"
	"github.com/3leaps/gostage/pkg/resource"
	"github.com/3leaps/gostage/pkg/resourceutil"
)

// backend adapts a remote gateway to resourceutil.WritableBackend.
type backend struct {
	endpoint resource.Endpoint
	gw       remote.Gateway
	spoolFs  afero.Fs
}

var _ resourceutil.WritableBackend = (*backend)(nil)

func (b *backend) Stat(ctx context.Context, r resource.Resource) (resource.Resource, error) {
	if r.Path() == resource.Separator {
		return b.endpoint.Resource(resource.Separator, resource.WithDirectory(true)), nil
	}
	fi, err := b.gw.Stat(ctx, r.Path())
	if err != nil {
		return resource.Resource{}, normalizeError(err)
	}
	return b.endpoint.Resource(r.Path(), infoOptions(fi)...), nil
}

func (b *backend) Open(ctx context.Context, r resource.Resource) (io.ReadCloser, error) {
	body, err := b.gw.Retrieve(ctx, r.Path())
	if err != nil {
		return nil, normalizeError(err)
	}
	return body, nil
}

// Stage spools the body locally. Commit stores it under a hidden staging
// name in the target directory and renames it into place.
func (b *backend) Stage(ctx context.Context, r resource.Resource) (resourceutil.StagedWriter, error) {
	dir, name := remote.ParentDir(r.Path())
	if err := resourceutil.ValidateFilename(name); err != nil {
		return nil, err
	}
	if err := b.gw.MakeDirAll(ctx, dir); err != nil {
		return nil, normalizeError(err)
	}
	return &stagedUpload{
		gw:    b.gw,
		spool: resourceutil.NewSpool(b.spoolFs, 0),
		tmp:   path.Join(dir, resourceutil.StagingName(name)),
		final: r.Path(),
	}, nil
}

// OpenWriter spools writes and sends them with STOR or APPE on Close.
func (b *backend) OpenWriter(ctx context.Context, r resource.Resource, appendMode bool) (io.WriteCloser, error) {
	dir, name := remote.ParentDir(r.Path())
	if err := resourceutil.ValidateFilename(name); err != nil {
		return nil, err
	}
	if err := b.gw.MakeDirAll(ctx, dir); err != nil {
		return nil, normalizeError(err)
	}
	return &remoteWriter{
		ctx:        ctx,
		gw:         b.gw,
		spool:      resourceutil.NewSpool(b.spoolFs, 0),
		path:       r.Path(),
		appendMode: appendMode,
	}, nil
}

type stagedUpload struct {
	gw    remote.Gateway
	spool *resourceutil.Spool
	tmp   string
	final string
	done  bool
}

func (s *stagedUpload) Write(p []byte) (int, error) {
	if s.done {
		return 0, resourceutil.ErrStageFinished
	}
	return s.spool.Write(p)
}

func (s *stagedUpload) Commit(ctx context.Context) error {
	if s.done {
		return resourceutil.ErrStageFinished
	}
	s.done = true
	defer func() { _ = s.spool.Close() }()

	body, err := s.spool.Reader()
	if err != nil {
		return err
	}
	if err := s.gw.Store(ctx, s.tmp, body); err != nil {
		_ = s.gw.Remove(context.WithoutCancel(ctx), s.tmp)
		return normalizeError(err)
	}
	if err := s.gw.Rename(ctx, s.tmp, s.final); err != nil {
		_ = s.gw.Remove(context.WithoutCancel(ctx), s.tmp)
		return normalizeError(err)
	}
	return nil
}

func (s *stagedUpload) Abort(context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	return s.spool.Close()
}

type remoteWriter struct {
	ctx        context.Context
	gw         remote.Gateway
	spool      *resourceutil.Spool
	path       string
	appendMode bool
	closed     bool
}

func (w *remoteWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, remote.ErrClosed
	}
	return w.spool.Write(p)
}

func (w *remoteWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	defer func() { _ = w.spool.Close() }()

	body, err := w.spool.Reader()
	if err != nil {
		return err
	}
	if w.appendMode {
		err = w.gw.Append(w.ctx, w.path, body)
	} else {
		err = w.gw.Store(w.ctx, w.path, body)
	}
	return normalizeError(err)
}

func infoOptions(fi remote.FileInfo) []resource.Option {
	opts := []resource.Option{
		resource.WithDirectory(fi.IsDir()),
		resource.WithLastModified(fi.ModTime),
	}
	if !fi.IsDir() && fi.Size >= 0 {
		opts = append(opts, resource.WithSize(fi.Size))
	}
	return opts
}

// normalizeError adds resource.ErrNotFound to missing-path errors while
// keeping the gateway error in the chain.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	if remote.IsNotFound(err) {
		return fmt.Errorf("%w: %w", resource.ErrNotFound, err)
	}
	return err
}
