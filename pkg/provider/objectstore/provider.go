// Package objectstore implements the Resource Provider for flat key-space
// object stores (S3, MinIO).
//
// Object stores have no directories. A "directory" is a key prefix ending
// in "/" and is addressed by a URL with a trailing separator. Non-recursive
// listings use delimiter listing, so immediate child prefixes come back as
// directory resources. Recursive listings walk every key below the scan
// prefix and synthesize each intermediate prefix once, before its first
// child. A scan prefix without any keys is an empty placeholder location
// and lists as zero items.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	store "github.com/3leaps/gostage/pkg/gateway/objectstore"
	"github.com/3leaps/gostage/pkg/provider"
	"github.com/3leaps/gostage/pkg/resource"
	"github.com/3leaps/gostage/pkg/resourceutil"
)

// Provider implements provider.ResourceProvider over a store.Gateway.
type Provider struct {
	endpoint resource.Endpoint
	gw       store.Gateway
	utils    *resourceutil.Utils
	logger   *zap.Logger
	backend  *backend
}

var _ provider.ResourceProvider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// New returns a provider for endpoint (scheme s3 or minio, host = bucket)
// driving gw, and registers the endpoint's backend with utils.
func New(endpoint resource.Endpoint, gw store.Gateway, utils *resourceutil.Utils, opts ...Option) (*Provider, error) {
	endpoint = resource.NewEndpoint(endpoint.Scheme, endpoint.Host)
	switch {
	case !resource.IsObjectStoreScheme(endpoint.Scheme):
		return nil, fmt.Errorf("%w: object store provider cannot serve %q", resource.ErrUnsupportedScheme, endpoint.Scheme)
	case endpoint.Host == "":
		return nil, fmt.Errorf("%w: bucket", resource.ErrMissingHost)
	case gw == nil:
		return nil, errors.New("object store provider: gateway is required")
	case utils == nil:
		return nil, errors.New("object store provider: resource utils are required")
	}

	p := &Provider{
		endpoint: endpoint,
		gw:       gw,
		utils:    utils,
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
	if p.endpoint.Scheme == resource.SchemeMinio {
		return provider.TypeMinio
	}
	return provider.TypeS3
}

// Endpoint returns the endpoint served by the provider.
func (p *Provider) Endpoint() resource.Endpoint { return p.endpoint }

// Close unregisters the backend and releases the gateway.
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
	scanPath, err := p.endpoint.RemotePath(scanLocation)
	if err != nil {
		return nil, err
	}
	placeholder, err := provider.CheckScanLocation(ctx, p.utils, scanLocation)
	if err != nil {
		return nil, err
	}
	if placeholder {
		p.logger.Debug("scan location is an empty prefix", zap.String("location", scanLocation.URL()))
		return []resource.Resource{}, nil
	}

	prefix := prefixOf(scanPath)
	var out []resource.Resource
	if opts.Recursive {
		out, err = p.listRecursive(ctx, prefix, opts)
	} else {
		out, err = p.listDirectory(ctx, prefix, opts)
	}
	if err != nil {
		return nil, resource.NewCollectionError("List", scanLocation, err)
	}

	p.logger.Debug("listed scan location",
		zap.String("location", scanLocation.URL()),
		zap.String("prefix", prefix),
		zap.Bool("recursive", opts.Recursive),
		zap.Int("items", len(out)),
	)
	return out, nil
}

// listDirectory returns the immediate children of prefix.
func (p *Provider) listDirectory(ctx context.Context, prefix string, opts provider.ListOptions) ([]resource.Resource, error) {
	res, err := store.ListAll(ctx, p.gw, store.ListOptions{Prefix: prefix, Delimiter: resource.Separator})
	if err != nil {
		return nil, err
	}

	c := newCollector(p.endpoint, opts)
	for _, cp := range res.CommonPrefixes {
		c.directory(cp)
	}
	for _, obj := range res.Objects {
		if obj.Key == prefix {
			continue
		}
		c.object(obj)
	}
	return c.out, nil
}

// listRecursive returns every key below prefix plus the prefixes between.
func (p *Provider) listRecursive(ctx context.Context, prefix string, opts provider.ListOptions) ([]resource.Resource, error) {
	res, err := store.ListAll(ctx, p.gw, store.ListOptions{Prefix: prefix})
	if err != nil {
		return nil, err
	}

	c := newCollector(p.endpoint, opts)
	for _, obj := range res.Objects {
		if obj.Key == prefix || !strings.HasPrefix(obj.Key, prefix) {
			continue
		}
		if resourceutil.IsStagingName(resource.BareName(obj.Key)) {
			continue
		}
		rel := strings.TrimSuffix(obj.Key[len(prefix):], resource.Separator)
		segments := strings.Split(rel, resource.Separator)
		dir := prefix
		for _, seg := range segments[:len(segments)-1] {
			dir += seg + resource.Separator
			c.directory(dir)
		}
		c.object(obj)
	}
	return c.out, nil
}

// collector turns keys into resources once each, in first-seen order.
type collector struct {
	endpoint resource.Endpoint
	opts     provider.ListOptions
	seen     map[string]struct{}
	out      []resource.Resource
}

func newCollector(ep resource.Endpoint, opts provider.ListOptions) *collector {
	return &collector{endpoint: ep, opts: opts, seen: make(map[string]struct{})}
}

func (c *collector) add(r resource.Resource) {
	if _, ok := c.seen[r.URL()]; ok {
		return
	}
	c.seen[r.URL()] = struct{}{}
	c.out = append(c.out, r)
}

// directory records a prefix ending in "/".
func (c *collector) directory(prefix string) {
	if c.opts.ExcludeDirectories {
		return
	}
	c.add(c.endpoint.Resource(resource.Separator+prefix, resource.WithDirectory(true)))
}

func (c *collector) object(obj store.ObjectSummary) {
	if strings.HasSuffix(obj.Key, resource.Separator) {
		c.directory(obj.Key)
		return
	}
	if resourceutil.IsStagingName(resource.BareName(obj.Key)) {
		return
	}
	c.add(c.endpoint.Resource(resource.Separator+obj.Key, summaryOptions(obj)...))
}

// CopyFromRemote implements provider.ResourceProvider. The local file is
// named by the bare name of the key, whatever prefix the key sits under.
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

// CopyToRemote implements provider.ResourceProvider. The object is
// visible only once its PUT completes.
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
	dest, err := p.utils.CopyResource(ctx, destinationDir, source, resource.BareName(source.Path()))
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
