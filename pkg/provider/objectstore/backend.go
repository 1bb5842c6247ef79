package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"

	store "github.com/3leaps/gostage/pkg/gateway/objectstore"
	"github.com/3leaps/gostage/pkg/resource"
	"github.com/3leaps/gostage/pkg/resourceutil"
)

// backend adapts an object-store gateway to resourceutil.Backend. Object
// stores cannot write in place, so it is not a WritableBackend.
type backend struct {
	endpoint resource.Endpoint
	gw       store.Gateway
	spoolFs  afero.Fs
}

var _ resourceutil.Backend = (*backend)(nil)

// objectKey maps a resource path to its key: keys carry no leading "/".
func objectKey(p string) string {
	return strings.TrimPrefix(p, resource.Separator)
}

// prefixOf returns the listing prefix of a directory path ("" for the root).
func prefixOf(p string) string {
	key := objectKey(p)
	if key != "" && !strings.HasSuffix(key, resource.Separator) {
		key += resource.Separator
	}
	return key
}

// Stat resolves files with Head and directories by probing the prefix.
// A key without a trailing "/" that names no object is a directory when
// any key lives below it.
func (b *backend) Stat(ctx context.Context, r resource.Resource) (resource.Resource, error) {
	if r.Path() == resource.Separator {
		if _, err := b.gw.List(ctx, store.ListOptions{MaxKeys: 1}); err != nil {
			return resource.Resource{}, normalizeError(err)
		}
		return b.endpoint.Resource(resource.Separator, resource.WithDirectory(true)), nil
	}

	if !r.IsDirectory() {
		meta, err := b.gw.Head(ctx, objectKey(r.Path()))
		if err == nil {
			return b.endpoint.Resource(r.Path(), summaryOptions(meta.ObjectSummary)...), nil
		}
		if !store.IsNotFound(err) {
			return resource.Resource{}, normalizeError(err)
		}
	}

	prefix := prefixOf(r.Path())
	page, err := b.gw.List(ctx, store.ListOptions{Prefix: prefix, MaxKeys: 1})
	if err != nil {
		return resource.Resource{}, normalizeError(err)
	}
	if len(page.Objects) == 0 && len(page.CommonPrefixes) == 0 {
		return resource.Resource{}, fmt.Errorf("%w: %s", resource.ErrNotFound, r.URL())
	}
	return b.endpoint.Resource(resource.Separator+prefix, resource.WithDirectory(true)), nil
}

func (b *backend) Open(ctx context.Context, r resource.Resource) (io.ReadCloser, error) {
	if r.IsDirectory() {
		return nil, resourceutil.ErrIsDirectory
	}
	body, _, err := b.gw.GetObject(ctx, objectKey(r.Path()))
	if err != nil {
		return nil, normalizeError(err)
	}
	return body, nil
}

// Stage spools the body and uploads it with a single PUT on Commit. The
// store publishes the object only once the PUT completes.
func (b *backend) Stage(_ context.Context, r resource.Resource) (resourceutil.StagedWriter, error) {
	if r.IsDirectory() {
		return nil, resourceutil.ErrIsDirectory
	}
	if err := resourceutil.ValidateFilename(r.Filename()); err != nil {
		return nil, err
	}
	return &objectStage{
		gw:    b.gw,
		key:   objectKey(r.Path()),
		spool: resourceutil.NewSpool(b.spoolFs, 0),
	}, nil
}

type objectStage struct {
	gw    store.Gateway
	key   string
	spool *resourceutil.Spool
	done  bool
}

func (s *objectStage) Write(p []byte) (int, error) {
	if s.done {
		return 0, resourceutil.ErrStageFinished
	}
	return s.spool.Write(p)
}

func (s *objectStage) Commit(ctx context.Context) error {
	if s.done {
		return resourceutil.ErrStageFinished
	}
	s.done = true
	defer func() { _ = s.spool.Close() }()

	body, err := s.spool.Reader()
	if err != nil {
		return err
	}
	return normalizeError(s.gw.PutObject(ctx, s.key, body, s.spool.Size()))
}

func (s *objectStage) Abort(context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	return s.spool.Close()
}

func summaryOptions(o store.ObjectSummary) []resource.Option {
	return []resource.Option{
		resource.WithSize(o.Size),
		resource.WithLastModified(o.LastModified),
	}
}

// normalizeError adds resource.ErrNotFound to missing-object errors while
// keeping the gateway error in the chain.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	if store.IsNotFound(err) {
		return fmt.Errorf("%w: %w", resource.ErrNotFound, err)
	}
	return err
}
