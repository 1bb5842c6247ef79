// Package remote defines the gateway contract for hierarchical remote file
// servers (FTP, SFTP).
//
// A Gateway speaks in raw remote paths ("/root_dir/file1.txt"). It knows
// nothing about resource URLs; providers translate between the two.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
)

// FileInfo is one raw listing record returned by a Gateway.
type FileInfo struct {
	// RemoteDirectory is the directory that was listed.
	RemoteDirectory string

	// Filename is the entry name within RemoteDirectory.
	Filename string

	// Dir is true for directory entries.
	Dir bool

	// Size in bytes; -1 when the server did not report it.
	Size int64

	// ModTime as reported by the server; zero when unknown.
	ModTime time.Time
}

// IsDir reports whether the record describes a directory.
func (f FileInfo) IsDir() bool { return f.Dir }

// Path returns the full remote path of the entry.
func (f FileInfo) Path() string {
	return path.Join("/", f.RemoteDirectory, f.Filename)
}

// Gateway abstracts one authenticated session with a remote file server.
//
// Implementations must be safe for concurrent use. Servers that only
// allow one command at a time (FTP) serialize internally.
type Gateway interface {
	// ListDirectory returns the entries of dir, excluding "." and "..",
	// in server order.
	ListDirectory(ctx context.Context, dir string) ([]FileInfo, error)

	// Stat returns the record for a single path. Returns ErrNotFound when
	// the path does not exist.
	Stat(ctx context.Context, p string) (FileInfo, error)

	// Retrieve opens p for reading. The caller must Close the body before
	// issuing further commands on serialized gateways.
	Retrieve(ctx context.Context, p string) (io.ReadCloser, error)

	// Store creates or truncates p with the contents of r.
	Store(ctx context.Context, p string, r io.Reader) error

	// Append appends r to p, creating it if needed.
	Append(ctx context.Context, p string, r io.Reader) error

	// Rename moves from to to, replacing an existing file at to.
	Rename(ctx context.Context, from, to string) error

	// MakeDirAll creates dir and any missing parents.
	MakeDirAll(ctx context.Context, dir string) error

	// Remove deletes a file. Removing a missing file returns ErrNotFound.
	Remove(ctx context.Context, p string) error

	// Close ends the session.
	Close() error
}

// Type identifies a remote gateway implementation.
type Type string

const (
	TypeFTP  Type = "ftp"
	TypeSFTP Type = "sftp"
)

// Sentinel errors for remote gateway operations.
var (
	// ErrNotFound indicates the remote path does not exist.
	ErrNotFound = errors.New("remote path not found")

	// ErrClosed indicates the gateway session was already closed.
	ErrClosed = errors.New("remote session closed")

	// ErrNotDirectory indicates a directory operation hit a file.
	ErrNotDirectory = errors.New("remote path is not a directory")
)

// Error wraps a remote failure with its operation context.
type Error struct {
	Op      string
	Gateway Type
	Host    string
	Path    string
	Err     error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %s%s: %v", e.Gateway, e.Op, e.Host, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Gateway, e.Op, e.Host, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsNotFound reports whether err indicates a missing remote path.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ParentDir returns the parent directory and base name of p.
// The root directory has no parent: ParentDir("/") returns ("/", "").
func ParentDir(p string) (dir, name string) {
	p = path.Clean("/" + p)
	if p == "/" {
		return "/", ""
	}
	return path.Dir(p), path.Base(p)
}

// BackupPath returns a hidden, unique sibling of p used to park a file
// while it is being replaced. The name has the ".<name>.<uuid>.partial"
// shape that listings skip.
func BackupPath(p string) string {
	dir, name := ParentDir(p)
	return path.Join(dir, "."+name+"."+uuid.NewString()+".partial")
}
