// Package ftp implements remote.Gateway over a single FTP control
// connection using github.com/jlaffaye/ftp.
//
// An FTP control connection processes one command at a time, and a data
// transfer must finish before the next command. The gateway therefore
// serializes every call with a mutex; a Retrieve body holds the lock until
// it is closed.
package ftp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/3leaps/gostage/pkg/gateway/remote"
)

// DefaultPort is the standard FTP control port.
const DefaultPort = 21

// DefaultTimeout bounds dialing and individual control-channel replies.
const DefaultTimeout = 30 * time.Second

// Config configures an FTP gateway. Credentials are passed to the server
// verbatim.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// Timeout for dial and control replies. Zero uses DefaultTimeout.
	Timeout time.Duration

	// ExplicitTLS upgrades the control connection with AUTH TLS.
	ExplicitTLS bool

	// InsecureSkipVerify disables certificate verification for ExplicitTLS.
	InsecureSkipVerify bool
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Host == "" {
		return &ConfigError{Field: "Host", Message: "host is required"}
	}
	if c.Port < 0 || c.Port > 65535 {
		return &ConfigError{Field: "Port", Message: "port out of range"}
	}
	return nil
}

// Addr returns host:port with defaults applied.
func (c *Config) Addr() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "ftp config: " + e.Field + ": " + e.Message
}

// conn is the subset of *ftp.ServerConn the gateway drives.
type conn interface {
	List(p string) ([]*ftp.Entry, error)
	Retr(p string) (io.ReadCloser, error)
	Stor(p string, r io.Reader) error
	Append(p string, r io.Reader) error
	Rename(from, to string) error
	MakeDir(p string) error
	Delete(p string) error
	Quit() error
}

type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retr(p string) (io.ReadCloser, error) {
	resp, err := c.ServerConn.Retr(p)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Gateway implements remote.Gateway over FTP.
type Gateway struct {
	host string

	mu     sync.Mutex
	conn   conn
	closed bool
}

var _ remote.Gateway = (*Gateway)(nil)

// Dial connects and logs in.
func Dial(ctx context.Context, cfg Config) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(timeout),
	}
	if cfg.ExplicitTLS {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for self-signed staging servers
		}))
	}

	c, err := ftp.Dial(cfg.Addr(), opts...)
	if err != nil {
		return nil, &remote.Error{Op: "Dial", Gateway: remote.TypeFTP, Host: cfg.Host, Err: err}
	}

	user := cfg.Username
	if user == "" {
		user = "anonymous"
	}
	if err := c.Login(user, cfg.Password); err != nil {
		_ = c.Quit()
		return nil, &remote.Error{Op: "Login", Gateway: remote.TypeFTP, Host: cfg.Host, Err: err}
	}

	return newGateway(cfg.Host, serverConn{c}), nil
}

func newGateway(host string, c conn) *Gateway {
	return &Gateway{host: host, conn: c}
}

// lock acquires the connection; callers must unlock.
func (g *Gateway) lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return remote.ErrClosed
	}
	return nil
}

// ListDirectory returns the entries of dir in server order.
func (g *Gateway) ListDirectory(ctx context.Context, dir string) ([]remote.FileInfo, error) {
	if err := g.lock(ctx); err != nil {
		return nil, g.wrap("List", dir, err)
	}
	defer g.mu.Unlock()

	entries, err := g.conn.List(dir)
	if err != nil {
		return nil, g.wrap("List", dir, err)
	}
	return toFileInfos(dir, entries), nil
}

func toFileInfos(dir string, entries []*ftp.Entry) []remote.FileInfo {
	out := make([]remote.FileInfo, 0, len(entries))
	for _, e := range entries {
		if e == nil || e.Name == "." || e.Name == ".." || e.Name == "" {
			continue
		}
		// Some servers return full paths in NLST-style listings.
		name := path.Base(e.Name)
		out = append(out, remote.FileInfo{
			RemoteDirectory: dir,
			Filename:        name,
			Dir:             e.Type == ftp.EntryTypeFolder,
			Size:            int64(e.Size),
			ModTime:         e.Time,
		})
	}
	return out
}

// Stat lists the parent directory and picks the entry. MLST is not
// assumed to be available.
func (g *Gateway) Stat(ctx context.Context, p string) (remote.FileInfo, error) {
	dir, name := remote.ParentDir(p)
	if name == "" {
		return remote.FileInfo{RemoteDirectory: "/", Dir: true, Size: -1}, nil
	}

	entries, err := g.ListDirectory(ctx, dir)
	if err != nil {
		if isFTPNotFound(err) {
			return remote.FileInfo{}, g.wrap("Stat", p, remote.ErrNotFound)
		}
		return remote.FileInfo{}, err
	}
	for _, e := range entries {
		if e.Filename == name {
			return e, nil
		}
	}
	return remote.FileInfo{}, g.wrap("Stat", p, remote.ErrNotFound)
}

// Retrieve opens p for reading. The connection stays locked until the
// returned body is closed.
func (g *Gateway) Retrieve(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := g.lock(ctx); err != nil {
		return nil, g.wrap("Retrieve", p, err)
	}

	body, err := g.conn.Retr(p)
	if err != nil {
		g.mu.Unlock()
		return nil, g.wrap("Retrieve", p, err)
	}
	return &lockedBody{ReadCloser: body, unlock: g.mu.Unlock}, nil
}

type lockedBody struct {
	io.ReadCloser
	once   sync.Once
	unlock func()
}

func (b *lockedBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.unlock)
	return err
}

// Store creates or truncates p.
func (g *Gateway) Store(ctx context.Context, p string, r io.Reader) error {
	if err := g.lock(ctx); err != nil {
		return g.wrap("Store", p, err)
	}
	defer g.mu.Unlock()

	if err := g.conn.Stor(p, r); err != nil {
		return g.wrap("Store", p, err)
	}
	return nil
}

// Append appends r to p.
func (g *Gateway) Append(ctx context.Context, p string, r io.Reader) error {
	if err := g.lock(ctx); err != nil {
		return g.wrap("Append", p, err)
	}
	defer g.mu.Unlock()

	if err := g.conn.Append(p, r); err != nil {
		return g.wrap("Append", p, err)
	}
	return nil
}

// Rename moves from to to. Servers that refuse to overwrite get the
// existing destination parked under remote.BackupPath while the rename is
// retried; it is restored if the retry fails and removed otherwise.
func (g *Gateway) Rename(ctx context.Context, from, to string) error {
	if err := g.lock(ctx); err != nil {
		return g.wrap("Rename", from, err)
	}
	defer g.mu.Unlock()

	err := g.conn.Rename(from, to)
	if err == nil {
		return nil
	}
	if !g.exists(from) || !g.exists(to) {
		return g.wrap("Rename", from, err)
	}

	backup := remote.BackupPath(to)
	if bErr := g.conn.Rename(to, backup); bErr != nil {
		return g.wrap("Rename", from, err)
	}
	if err := g.conn.Rename(from, to); err != nil {
		if rErr := g.conn.Rename(backup, to); rErr != nil {
			return g.wrap("Rename", from, errors.Join(err, fmt.Errorf("restore %s: %w", to, rErr)))
		}
		return g.wrap("Rename", from, err)
	}
	_ = g.conn.Delete(backup)
	return nil
}

// exists reports whether p is listed in its parent directory. The caller
// holds the lock.
func (g *Gateway) exists(p string) bool {
	dir, name := remote.ParentDir(p)
	entries, err := g.conn.List(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e != nil && path.Base(e.Name) == name {
			return true
		}
	}
	return false
}

// MakeDirAll creates dir and its parents. MKD failures on intermediate
// segments are expected (the directory usually exists); the result is
// verified with Stat.
func (g *Gateway) MakeDirAll(ctx context.Context, dir string) error {
	dir = path.Clean("/" + dir)
	if dir == "/" {
		return nil
	}

	if err := g.lock(ctx); err != nil {
		return g.wrap("MakeDirAll", dir, err)
	}
	current := ""
	for _, seg := range strings.Split(strings.TrimPrefix(dir, "/"), "/") {
		current += "/" + seg
		_ = g.conn.MakeDir(current)
	}
	g.mu.Unlock()

	info, err := g.Stat(ctx, dir)
	if err != nil {
		return g.wrap("MakeDirAll", dir, err)
	}
	if !info.IsDir() {
		return g.wrap("MakeDirAll", dir, remote.ErrNotDirectory)
	}
	return nil
}

// Remove deletes a file.
func (g *Gateway) Remove(ctx context.Context, p string) error {
	if err := g.lock(ctx); err != nil {
		return g.wrap("Remove", p, err)
	}
	defer g.mu.Unlock()

	if err := g.conn.Delete(p); err != nil {
		if isFTPNotFound(err) {
			return g.wrap("Remove", p, remote.ErrNotFound)
		}
		return g.wrap("Remove", p, err)
	}
	return nil
}

// Close sends QUIT. Subsequent calls return remote.ErrClosed.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	return g.conn.Quit()
}

func (g *Gateway) wrap(op, p string, err error) error {
	var re *remote.Error
	if errors.As(err, &re) {
		return err
	}
	return &remote.Error{Op: op, Gateway: remote.TypeFTP, Host: g.host, Path: p, Err: err}
}

// isFTPNotFound reports a 550 reply ("requested action not taken; file
// unavailable").
func isFTPNotFound(err error) bool {
	if errors.Is(err, remote.ErrNotFound) {
		return true
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code == ftp.StatusFileUnavailable
	}
	return false
}
