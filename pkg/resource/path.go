package resource

import (
	"strings"
)

// Endpoint identifies one configured backend instance: a scheme plus the
// host (FTP/SFTP server, object-store bucket). The local filesystem has an
// empty host.
//
// Endpoints are immutable and safe to share between goroutines.
type Endpoint struct {
	Scheme string
	Host   string
}

// FileEndpoint is the endpoint of the local filesystem.
var FileEndpoint = Endpoint{Scheme: SchemeFile}

// NewEndpoint returns a normalized Endpoint.
func NewEndpoint(scheme, host string) Endpoint {
	return Endpoint{Scheme: strings.ToLower(scheme), Host: strings.ToLower(host)}
}

// String returns scheme://host.
func (e Endpoint) String() string {
	return e.Scheme + "://" + e.Host
}

// Owns validates that r belongs to this endpoint.
//
// The scheme is checked before the host, so a file: URL handed to an FTP
// endpoint reports a *WrongSchemeError rather than a host mismatch.
func (e Endpoint) Owns(r Resource) error {
	if r.scheme != e.Scheme {
		return &WrongSchemeError{URL: r.URL(), Expected: e.Scheme, Got: r.scheme}
	}
	if r.host != e.Host {
		return &InvalidHostError{URL: r.URL(), Expected: e.Host, Got: r.host}
	}
	return nil
}

// RemotePath returns the backend-native path of r.
//
// Fails with *WrongSchemeError or *InvalidHostError when r does not belong
// to this endpoint.
func (e Endpoint) RemotePath(r Resource) (string, error) {
	if err := e.Owns(r); err != nil {
		return "", err
	}
	return r.path, nil
}

// BuildRemoteURL composes a URL on this endpoint from raw listing fields.
// Duplicate separators are collapsed.
func (e Endpoint) BuildRemoteURL(remoteDirectory, filename string) string {
	return e.Resource(JoinPath(remoteDirectory, filename)).URL()
}

// Resource builds a Resource on this endpoint.
func (e Endpoint) Resource(p string, opts ...Option) Resource {
	return New(e.Scheme, e.Host, p, opts...)
}

// RelativePath returns the path of item relative to root.
//
// The root URL is removed from the item URL as a literal prefix; leading
// and trailing separators of the remainder are trimmed. When item is not
// under root the unmodified item path is returned. Callers treat that as
// "unchanged", not as an error: publishers pass items outside the root on
// purpose.
func RelativePath(root, item Resource) string {
	rootURL := strings.TrimSuffix(root.URL(), Separator) + Separator
	itemURL := item.URL()
	if !strings.HasPrefix(itemURL, rootURL) {
		if itemURL+Separator == rootURL {
			return ""
		}
		return item.path
	}
	return strings.Trim(itemURL[len(rootURL):], Separator)
}

// BareName returns the final segment of a key or path. A trailing
// separator is ignored. A key without any separator is returned as is.
//
//	"scan.location/study/meta_study.txt" -> "meta_study.txt"
//	"meta_study.txt"                      -> "meta_study.txt"
//	"scan.location/study/"                -> "study"
func BareName(key string) string {
	key = strings.TrimSuffix(key, Separator)
	if idx := strings.LastIndex(key, Separator); idx >= 0 {
		return key[idx+1:]
	}
	return key
}

// JoinPath joins path elements with "/" and collapses duplicate
// separators. A trailing separator on the last element is kept, since it
// is meaningful for object-store prefixes. Dot segments are not resolved;
// keys are opaque.
func JoinPath(elem ...string) string {
	nonEmpty := make([]string, 0, len(elem))
	for _, e := range elem {
		if e != "" {
			nonEmpty = append(nonEmpty, e)
		}
	}
	return collapseSeparators(strings.Join(nonEmpty, Separator))
}
