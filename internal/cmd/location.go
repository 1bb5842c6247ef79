package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/gostage/internal/config"
	"github.com/3leaps/gostage/internal/observability"
	"github.com/3leaps/gostage/pkg/provider"
	"github.com/3leaps/gostage/pkg/provider/factory"
	"github.com/3leaps/gostage/pkg/resource"
)

// ErrMixedEndpoints is returned when one invocation names locations of
// more than one backend endpoint.
var ErrMixedEndpoints = errors.New("locations span more than one endpoint")

// parseLocation parses a location argument. Arguments without a scheme
// are local paths, made absolute against the working directory.
func parseLocation(raw string) (resource.Resource, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return resource.Resource{}, fmt.Errorf("%w: empty location", resource.ErrInvalidURL)
	}
	if strings.Contains(raw, "://") || strings.HasPrefix(strings.ToLower(raw), resource.SchemeFile+":") {
		return resource.Parse(raw)
	}

	dir := strings.HasSuffix(raw, "/") || strings.HasSuffix(raw, string(filepath.Separator))
	abs, err := filepath.Abs(raw)
	if err != nil {
		return resource.Resource{}, fmt.Errorf("%w: %s: %w", resource.ErrInvalidURL, raw, err)
	}
	abs = filepath.ToSlash(abs)
	if dir && abs != "/" {
		abs += "/"
	}
	return resource.Parse(abs)
}

// parseLocations parses every argument and checks they share one endpoint.
func parseLocations(args []string) ([]resource.Resource, error) {
	out := make([]resource.Resource, 0, len(args))
	for _, arg := range args {
		r, err := parseLocation(arg)
		if err != nil {
			return nil, err
		}
		if len(out) > 0 && r.Endpoint() != out[0].Endpoint() {
			return nil, fmt.Errorf("%w: %s and %s", ErrMixedEndpoints, out[0].Endpoint(), r.Endpoint())
		}
		out = append(out, r)
	}
	return out, nil
}

// backendType maps a location scheme onto a backend type.
func backendType(r resource.Resource) (provider.Type, error) {
	return provider.ParseType(r.Scheme())
}

// providerConfig builds the factory input for endpoint. The endpoint host
// fills an empty host or bucket setting; a configured value that differs
// is kept so the provider rejects the location with an InvalidHostError.
func providerConfig(cfg *config.Config, endpoint resource.Resource) (factory.Config, error) {
	t, err := backendType(endpoint)
	if err != nil {
		return factory.Config{}, err
	}
	if cfg.Backend.Type != "" && cfg.Backend.Type != t.String() {
		return factory.Config{}, &resource.WrongSchemeError{URL: endpoint.URL(), Expected: cfg.Backend.Type, Got: endpoint.Scheme()}
	}

	pc := cfg.ProviderConfig(t)
	host := endpoint.Host()
	switch t {
	case provider.TypeFTP:
		if pc.FTP.Host == "" {
			pc.FTP.Host = host
		}
	case provider.TypeSFTP:
		if pc.SFTP.Host == "" {
			pc.SFTP.Host = host
		}
	case provider.TypeS3:
		if pc.S3.Bucket == "" {
			pc.S3.Bucket = host
		}
	case provider.TypeMinio:
		if pc.Minio.Bucket == "" {
			pc.Minio.Bucket = host
		}
	}
	return pc, nil
}

// newProvider is replaced in tests.
var newProvider = func(ctx context.Context, cfg factory.Config) (provider.ResourceProvider, error) {
	return factory.New(ctx, cfg, factory.WithLogger(observability.CLILogger))
}

// openProvider builds the provider that serves endpoint.
func openProvider(ctx context.Context, endpoint resource.Resource) (provider.ResourceProvider, error) {
	cfg := config.GetConfig()
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	pc, err := providerConfig(cfg, endpoint)
	if err != nil {
		return nil, err
	}
	observability.CLILogger.Debug("Opening provider",
		zap.String("type", pc.Type.String()),
		zap.String("endpoint", endpoint.Endpoint().String()))
	return newProvider(ctx, pc)
}
