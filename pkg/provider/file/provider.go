// Package file implements the Resource Provider for the local filesystem.
//
// Listing resolves a doublestar glob rooted at the scan location
// ("<root>/*" or "<root>/**") through the resource utilities; directory
// typing comes from the filesystem node, never from the name.
package file

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/3leaps/gostage/pkg/provider"
	"github.com/3leaps/gostage/pkg/resource"
	"github.com/3leaps/gostage/pkg/resourceutil"
)

// Provider implements provider.ResourceProvider for file: resources.
type Provider struct {
	utils  *resourceutil.Utils
	logger *zap.Logger
}

var _ provider.ResourceProvider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// New returns a filesystem provider working through utils.
func New(utils *resourceutil.Utils, opts ...Option) (*Provider, error) {
	if utils == nil {
		return nil, errors.New("file provider: resource utils are required")
	}
	p := &Provider{utils: utils, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Type implements provider.ResourceProvider.
func (p *Provider) Type() provider.Type { return provider.TypeFile }

// Close implements provider.ResourceProvider.
func (p *Provider) Close() error { return nil }

// GetResource implements provider.ResourceProvider.
func (p *Provider) GetResource(raw string) (resource.Resource, error) {
	r, err := resource.Parse(raw)
	if err != nil {
		return resource.Resource{}, err
	}
	if err := resource.FileEndpoint.Owns(r); err != nil {
		return resource.Resource{}, err
	}
	return r, nil
}

// List implements provider.ResourceProvider.
func (p *Provider) List(ctx context.Context, scanLocation resource.Resource, opts provider.ListOptions) ([]resource.Resource, error) {
	if err := resource.FileEndpoint.Owns(scanLocation); err != nil {
		return nil, err
	}
	if _, err := provider.CheckScanLocation(ctx, p.utils, scanLocation); err != nil {
		return nil, err
	}

	pattern := resourceutil.EscapeGlob(scanLocation.Path()) + "/*"
	if opts.Recursive {
		pattern = resourceutil.EscapeGlob(scanLocation.Path()) + "/**"
	}

	matches, err := p.utils.GetResources(ctx, pattern)
	if err != nil {
		return nil, resource.NewCollectionError("List", scanLocation, err)
	}

	out := make([]resource.Resource, 0, len(matches))
	for _, r := range matches {
		if opts.ExcludeDirectories && r.IsDirectory() {
			continue
		}
		out = append(out, r)
	}

	p.logger.Debug("listed scan location",
		zap.String("location", scanLocation.URL()),
		zap.Bool("recursive", opts.Recursive),
		zap.Int("items", len(out)),
	)
	return out, nil
}

// CopyFromRemote implements provider.ResourceProvider. For the filesystem
// backend "remote" is simply another local path.
func (p *Provider) CopyFromRemote(ctx context.Context, destinationDir, remote resource.Resource) (resource.Resource, error) {
	return p.copy(ctx, "CopyFromRemote", destinationDir, remote)
}

// CopyToRemote implements provider.ResourceProvider.
func (p *Provider) CopyToRemote(ctx context.Context, destinationDir, local resource.Resource) (resource.Resource, error) {
	return p.copy(ctx, "CopyToRemote", destinationDir, local)
}

func (p *Provider) copy(ctx context.Context, op string, destinationDir, source resource.Resource) (resource.Resource, error) {
	if err := resource.FileEndpoint.Owns(source); err != nil {
		return resource.Resource{}, err
	}
	if err := resource.FileEndpoint.Owns(destinationDir); err != nil {
		return resource.Resource{}, err
	}
	if source.IsDirectory() {
		return resource.Resource{}, resource.NewCollectionError(op, source, resourceutil.ErrIsDirectory)
	}

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
