// Package provider defines the Resource Provider contract: one listing and
// transfer surface over every storage backend.
//
// A provider turns a scan location plus listing options into a flat
// sequence of resources, and a (destination, source) pair into a
// completed, atomically published copy. Backends are a closed set
// (file, ftp, sftp, s3, minio) selected once at start-up; see the
// factory package.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/3leaps/gostage/pkg/resource"
)

// ResourceProvider lists and transfers resources of one backend endpoint.
//
// Implementations:
//   - hold only read-only configuration after construction
//   - are safe for concurrent use on independent scan locations
//   - return resources from List that the same provider can copy later
type ResourceProvider interface {
	// List returns the contents of scanLocation. Listing is
	// all-or-nothing: on failure it returns nil and a
	// *resource.CollectionError. No ordering is guaranteed.
	List(ctx context.Context, scanLocation resource.Resource, opts ListOptions) ([]resource.Resource, error)

	// CopyFromRemote copies a resource of this provider into a local
	// directory under its bare filename.
	CopyFromRemote(ctx context.Context, destinationDir, remote resource.Resource) (resource.Resource, error)

	// CopyToRemote uploads a local resource into a directory of this
	// provider under its bare filename.
	CopyToRemote(ctx context.Context, destinationDir, local resource.Resource) (resource.Resource, error)

	// GetResource parses raw without touching the backend and checks that
	// it belongs to this provider.
	GetResource(raw string) (resource.Resource, error)

	// Type returns the backend type.
	Type() Type

	// Close releases the backend session.
	Close() error
}

// ListOptions configures a List call.
type ListOptions struct {
	// Recursive descends into every directory below the scan location.
	Recursive bool

	// ExcludeDirectories drops directory-typed resources from the result.
	// Directories are still traversed when Recursive is set.
	ExcludeDirectories bool
}

// Type identifies a provider backend.
type Type string

const (
	TypeFile  Type = "file"
	TypeFTP   Type = "ftp"
	TypeSFTP  Type = "sftp"
	TypeS3    Type = "s3"
	TypeMinio Type = "minio"
)

// String returns the string representation of the provider type.
func (t Type) String() string {
	return string(t)
}

// Types lists every supported backend type.
func Types() []Type {
	return []Type{TypeFile, TypeFTP, TypeSFTP, TypeS3, TypeMinio}
}

// ParseType returns the Type named by s (case insensitive).
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Types() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: provider type %q", resource.ErrUnsupportedScheme, s)
}

// Statter reports backend metadata for a resource. Implemented by
// *resourceutil.Utils and by every resourceutil.Backend.
type Statter interface {
	Stat(ctx context.Context, r resource.Resource) (resource.Resource, error)
}

// CheckScanLocation validates the preconditions of List: the scan
// location must exist and must not be a plain file.
//
// Object stores are the one exception. They have no directories, so a
// prefix without any keys is an empty placeholder location, not a
// missing one: CheckScanLocation reports it with placeholder == true and
// no error, and List returns zero items.
//
// Violations are returned as *resource.CollectionError wrapping
// resource.ErrScanLocationNotFound or resource.ErrNotDirectory.
func CheckScanLocation(ctx context.Context, s Statter, scanLocation resource.Resource) (placeholder bool, err error) {
	st, err := s.Stat(ctx, scanLocation)
	if err != nil {
		if !errors.Is(err, resource.ErrNotFound) {
			return false, resource.NewCollectionError("List", scanLocation, err)
		}
		if resource.IsObjectStoreScheme(scanLocation.Scheme()) {
			return true, nil
		}
		return false, resource.NewCollectionError("List", scanLocation,
			fmt.Errorf("%w: %w", resource.ErrScanLocationNotFound, err))
	}
	if !st.IsDirectory() {
		return false, resource.NewCollectionError("List", scanLocation, resource.ErrNotDirectory)
	}
	return false, nil
}
