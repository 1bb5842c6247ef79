// Package ftp implements the Resource Provider for hierarchical remote file
// servers. It drives any remote.Gateway, so the same provider serves FTP
// and SFTP endpoints.
//
// Recursive listing is depth-first in gateway order. Traversal is bounded:
// revisiting a remote directory or exceeding the maximum depth fails the
// whole listing (resource.ErrTraversalCycle, resource.ErrTraversalDepth).
// Symlinked directory loops surface as the depth failure, since every
// loop iteration has a new path.
package ftp

import (
	"context"
	"errors"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/3leaps/gostage/pkg/gateway/remote"
	"github.com/3leaps/gostage/pkg/provider"
	"github.com/3leaps/gostage/pkg/resource"
	"github.com/3leaps/gostage/pkg/resourceutil"
)

// DefaultMaxDepth bounds recursive listings.
const DefaultMaxDepth = 64

// Provider implements provider.ResourceProvider over a remote.Gateway.
type Provider struct {
	endpoint resource.Endpoint
	gw       remote.Gateway
	utils    *resourceutil.Utils
	maxDepth int
	logger   *zap.Logger
	backend  *backend
}

var _ provider.ResourceProvider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithMaxDepth sets the recursion bound. Values <= 0 use DefaultMaxDepth.
func WithMaxDepth(depth int) Option {
	return func(p *Provider) {
		if depth > 0 {
			p.maxDepth = depth
		}
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// New returns a provider for endpoint (scheme ftp or sftp) driving gw, and
// registers the endpoint's backend with utils.
func New(endpoint resource.Endpoint, gw remote.Gateway, utils *resourceutil.Utils, opts ...Option) (*Provider, error) {
	endpoint = resource.NewEndpoint(endpoint.Scheme, endpoint.Host)
	switch {
	case endpoint.Scheme != resource.SchemeFTP && endpoint.Scheme != resource.SchemeSFTP:
		return nil, fmt.Errorf("%w: ftp provider cannot serve %q", resource.ErrUnsupportedScheme, endpoint.Scheme)
	case endpoint.Host == "":
		return nil, fmt.Errorf("%w: ftp provider endpoint", resource.ErrMissingHost)
	case gw == nil:
		return nil, errors.New("ftp provider: gateway is required")
	case utils == nil:
		return nil, errors.New("ftp provider: resource utils are required")
	}

	p := &Provider{
		endpoint: endpoint,
		gw:       gw,
		utils:    utils,
		maxDepth: DefaultMaxDepth,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.backend = &backend{endpoint: endpoint, gw: gw, spoolFs: utils.Fs()}
	utils.Register(endpoint, p.backend)
	return p, nil
}

// Type implements provider.ResourceProvider.
func (p *Provider) Type() provider.Type {
	if p.endpoint.Scheme == resource.SchemeSFTP {
		return provider.TypeSFTP
	}
	return provider.TypeFTP
}

// Endpoint returns the endpoint served by the provider.
func (p *Provider) Endpoint() resource.Endpoint { return p.endpoint }

// Close unregisters the backend and ends the gateway session.
func (p *Provider) Close() error {
	p.utils.Unregister(p.endpoint, p.backend)
	return p.gw.Close()
}

// GetResource implements provider.ResourceProvider.
func (p *Provider) GetResource(raw string) (resource.Resource, error) {
	r, err := resource.Parse(raw)
	if err != nil {
		return resource.Resource{}, err
	}
	if err := p.endpoint.Owns(r); err != nil {
		return resource.Resource{}, err
	}
	return r, nil
}

// List implements provider.ResourceProvider.
func (p *Provider) List(ctx context.Context, scanLocation resource.Resource, opts provider.ListOptions) ([]resource.Resource, error) {
	dir, err := p.endpoint.RemotePath(scanLocation)
	if err != nil {
		return nil, err
	}
	if _, err := provider.CheckScanLocation(ctx, p.utils, scanLocation); err != nil {
		return nil, err
	}

	w := walker{
		p:       p,
		opts:    opts,
		visited: make(map[string]struct{}),
	}
	if err := w.walk(ctx, dir, 0); err != nil {
		return nil, resource.NewCollectionError("List", scanLocation, err)
	}

	p.logger.Debug("listed scan location",
		zap.String("location", scanLocation.URL()),
		zap.Bool("recursive", opts.Recursive),
		zap.Int("items", len(w.out)),
		zap.Int("directories_listed", len(w.visited)),
	)
	return w.out, nil
}

type walker struct {
	p       *Provider
	opts    provider.ListOptions
	visited map[string]struct{}
	out     []resource.Resource
}

func (w *walker) walk(ctx context.Context, dir string, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := path.Clean("/" + dir)
	if _, seen := w.visited[key]; seen {
		return fmt.Errorf("%w: %s", resource.ErrTraversalCycle, key)
	}
	w.visited[key] = struct{}{}

	infos, err := w.p.gw.ListDirectory(ctx, dir)
	if err != nil {
		return err
	}

	for _, fi := range infos {
		if resourceutil.IsStagingName(fi.Filename) {
			continue
		}
		if !(fi.IsDir() && w.opts.ExcludeDirectories) {
			r := w.p.endpoint.Resource(resource.JoinPath(fi.RemoteDirectory, fi.Filename), infoOptions(fi)...)
			w.out = append(w.out, r)
		}
		if fi.IsDir() && w.opts.Recursive {
			if depth+1 > w.p.maxDepth {
				return fmt.Errorf("%w: %s (max %d)", resource.ErrTraversalDepth, fi.Path(), w.p.maxDepth)
			}
			if err := w.walk(ctx, fi.Path(), depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// CopyFromRemote implements provider.ResourceProvider.
func (p *Provider) CopyFromRemote(ctx context.Context, destinationDir, remoteItem resource.Resource) (resource.Resource, error) {
	const op = "CopyFromRemote"
	if err := p.endpoint.Owns(remoteItem); err != nil {
		return resource.Resource{}, err
	}
	if err := resource.FileEndpoint.Owns(destinationDir); err != nil {
		return resource.Resource{}, err
	}
	if remoteItem.IsDirectory() {
		return resource.Resource{}, resource.NewCollectionError(op, remoteItem, resourceutil.ErrIsDirectory)
	}
	return p.copy(ctx, op, destinationDir, remoteItem)
}

// CopyToRemote implements provider.ResourceProvider. The upload is stored
// under a hidden staging name in destinationDir and renamed into place.
func (p *Provider) CopyToRemote(ctx context.Context, destinationDir, local resource.Resource) (resource.Resource, error) {
	const op = "CopyToRemote"
	if err := resource.FileEndpoint.Owns(local); err != nil {
		return resource.Resource{}, err
	}
	if err := p.endpoint.Owns(destinationDir); err != nil {
		return resource.Resource{}, err
	}
	if local.IsDirectory() {
		return resource.Resource{}, resource.NewCollectionError(op, local, resourceutil.ErrIsDirectory)
	}
	return p.copy(ctx, op, destinationDir, local)
}

func (p *Provider) copy(ctx context.Context, op string, destinationDir, source resource.Resource) (resource.Resource, error) {
	dest, err := p.utils.CopyResource(ctx, destinationDir, source, source.Filename())
	if err != nil {
		return resource.Resource{}, err
	}
	p.logger.Debug("copied resource",
		zap.String("op", op),
		zap.String("source", source.URL()),
		zap.String("destination", dest.URL()),
	)
	return dest, nil
}
