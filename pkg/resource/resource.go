// Package resource models addressable resources across storage backends.
//
// A Resource is an immutable handle to one file, directory or object,
// identified by a URL:
//   - file:///data/in/file.txt
//   - ftp://ftp.example.org/outgoing/file.txt
//   - sftp://sftp.example.org/outgoing/file.txt
//   - s3://bucket/prefix/key.txt
//   - minio://bucket/prefix/key.txt
//
// Resources never touch a backend; providers populate metadata
// (directory flag, size, modification time) when they list.
package resource

import (
	"fmt"
	"strings"
	"time"
)

// Supported URL schemes.
const (
	SchemeFile  = "file"
	SchemeFTP   = "ftp"
	SchemeSFTP  = "sftp"
	SchemeS3    = "s3"
	SchemeMinio = "minio"
)

// Separator is the path separator used in every resource URL.
const Separator = "/"

// Resource identifies one addressable object in a backend.
//
// Resources are values; equality is by normalized URL (see Equal).
type Resource struct {
	scheme       string
	host         string
	path         string
	lastModified time.Time
	isDir        bool
	size         int64
}

// Option sets listing metadata on a Resource at construction time.
type Option func(*Resource)

// WithDirectory marks the resource as directory-typed.
func WithDirectory(isDir bool) Option {
	return func(r *Resource) { r.isDir = isDir }
}

// WithSize records the size in bytes reported by the backend.
func WithSize(size int64) Option {
	return func(r *Resource) { r.size = size }
}

// WithLastModified records the modification time reported by the backend.
func WithLastModified(t time.Time) Option {
	return func(r *Resource) { r.lastModified = t }
}

// New builds a Resource from its components.
//
// The path is normalized: a leading separator is added and duplicate
// separators are collapsed. Object-store paths keep a trailing separator,
// which marks the resource as a synthetic directory (prefix). Other
// schemes drop it.
func New(scheme, host, p string, opts ...Option) Resource {
	r := Resource{
		scheme: strings.ToLower(scheme),
		host:   strings.ToLower(host),
		size:   -1,
	}
	r.path = normalizePath(r.scheme, p)
	if IsObjectStoreScheme(r.scheme) && strings.HasSuffix(r.path, Separator) {
		r.isDir = true
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// Parse builds a Resource from a URL string without touching any backend.
//
// Accepted forms:
//   - /abs/path               (local filesystem)
//   - file:/abs/path
//   - file:///abs/path
//   - ftp://host/path, sftp://host/path
//   - s3://bucket/key, minio://bucket/key
//
// URLs are split manually rather than through net/url so that glob
// metacharacters and '?' in keys survive unchanged.
func Parse(raw string) (Resource, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Resource{}, fmt.Errorf("%w: empty URL", ErrInvalidURL)
	}

	if strings.HasPrefix(raw, Separator) {
		return New(SchemeFile, "", raw), nil
	}

	schemeEnd := strings.Index(raw, ":")
	if schemeEnd <= 0 {
		return Resource{}, fmt.Errorf("%w: missing scheme in %q", ErrInvalidURL, raw)
	}
	scheme := strings.ToLower(raw[:schemeEnd])
	rest := raw[schemeEnd+1:]

	if scheme == SchemeFile {
		return parseFile(raw, rest)
	}

	if !isKnownScheme(scheme) {
		return Resource{}, fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}
	if !strings.HasPrefix(rest, "//") {
		return Resource{}, fmt.Errorf("%w: expected %s://host/path, got %q", ErrInvalidURL, scheme, raw)
	}
	rest = rest[2:]

	host, p := rest, Separator
	if idx := strings.Index(rest, Separator); idx >= 0 {
		host, p = rest[:idx], rest[idx:]
	}
	// Credentials embedded in URLs are dropped; gateways own authentication.
	if at := strings.LastIndex(host, "@"); at >= 0 {
		host = host[at+1:]
	}
	if host == "" {
		return Resource{}, fmt.Errorf("%w: in %q", ErrMissingHost, raw)
	}

	return New(scheme, host, p), nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level constants.
func MustParse(raw string) Resource {
	r, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return r
}

func parseFile(raw, rest string) (Resource, error) {
	switch {
	case strings.HasPrefix(rest, "//"):
		rest = rest[2:]
		idx := strings.Index(rest, Separator)
		host := rest
		p := Separator
		if idx >= 0 {
			host, p = rest[:idx], rest[idx:]
		}
		if host != "" && !strings.EqualFold(host, "localhost") {
			return Resource{}, fmt.Errorf("%w: file URLs must not name a remote host (%q)", ErrInvalidURL, raw)
		}
		return New(SchemeFile, "", p), nil
	case strings.HasPrefix(rest, Separator):
		return New(SchemeFile, "", rest), nil
	default:
		return Resource{}, fmt.Errorf("%w: file URL must be absolute (%q)", ErrInvalidURL, raw)
	}
}

// Scheme returns the URL scheme.
func (r Resource) Scheme() string { return r.scheme }

// Host returns the host (bucket for object stores, empty for file).
func (r Resource) Host() string { return r.host }

// Path returns the absolute path component, always starting with "/".
func (r Resource) Path() string { return r.path }

// Filename returns the final path segment.
func (r Resource) Filename() string { return BareName(r.path) }

// IsDirectory reports whether the resource is directory-typed.
func (r Resource) IsDirectory() bool { return r.isDir }

// Size returns the size in bytes, or -1 when unknown.
func (r Resource) Size() int64 { return r.size }

// LastModified returns the backend-reported modification time, or the
// zero time when unknown.
func (r Resource) LastModified() time.Time { return r.lastModified }

// IsZero reports whether r is the zero Resource.
func (r Resource) IsZero() bool { return r.scheme == "" && r.path == "" }

// Endpoint returns the backend coordinates of r.
func (r Resource) Endpoint() Endpoint { return Endpoint{Scheme: r.scheme, Host: r.host} }

// URL returns the normalized absolute URL.
func (r Resource) URL() string {
	if r.scheme == SchemeFile {
		return "file://" + r.path
	}
	return r.scheme + "://" + r.host + r.path
}

// String implements fmt.Stringer.
func (r Resource) String() string { return r.URL() }

// Equal reports whether both resources address the same object.
// Metadata is ignored.
func (r Resource) Equal(other Resource) bool { return r.URL() == other.URL() }

// Join returns a new resource addressing elem under r.
// Metadata is not carried over.
func (r Resource) Join(elem ...string) Resource {
	parts := append([]string{r.path}, elem...)
	return New(r.scheme, r.host, JoinPath(parts...))
}

// AsDirectory returns a copy of r marked as a directory. Object-store
// resources gain a trailing separator so the URL carries the type.
func (r Resource) AsDirectory() Resource {
	out := r
	out.isDir = true
	if IsObjectStoreScheme(r.scheme) && !strings.HasSuffix(r.path, Separator) {
		out.path = r.path + Separator
	}
	return out
}

// IsObjectStoreScheme reports whether scheme addresses a flat key space.
func IsObjectStoreScheme(scheme string) bool {
	return scheme == SchemeS3 || scheme == SchemeMinio
}

func isKnownScheme(scheme string) bool {
	switch scheme {
	case SchemeFile, SchemeFTP, SchemeSFTP, SchemeS3, SchemeMinio:
		return true
	}
	return false
}

func normalizePath(scheme, p string) string {
	p = collapseSeparators(Separator + p)
	if p != Separator && !IsObjectStoreScheme(scheme) {
		p = strings.TrimSuffix(p, Separator)
	}
	return p
}

func collapseSeparators(p string) string {
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", Separator)
	}
	return p
}
