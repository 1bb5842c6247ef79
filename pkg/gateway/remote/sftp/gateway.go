// Package sftp implements remote.Gateway over SSH using github.com/pkg/sftp.
package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/3leaps/gostage/pkg/gateway/remote"
)

// DefaultPort is the standard SSH port.
const DefaultPort = 22

// DefaultTimeout bounds the TCP dial and SSH handshake.
const DefaultTimeout = 30 * time.Second

// Config configures an SFTP gateway. Credentials are passed to the SSH
// client verbatim.
type Config struct {
	Host     string
	Port     int
	Username string

	// Password enables password authentication when set.
	Password string

	// PrivateKeyPath enables public-key authentication when set.
	PrivateKeyPath       string
	PrivateKeyPassphrase string

	// KnownHostsPath is the OpenSSH known_hosts file used to verify the
	// server key. Required unless InsecureIgnoreHostKey is set.
	KnownHostsPath string

	// InsecureIgnoreHostKey disables host-key verification.
	InsecureIgnoreHostKey bool

	// Timeout for dial and handshake. Zero uses DefaultTimeout.
	Timeout time.Duration
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	switch {
	case c.Host == "":
		return &ConfigError{Field: "Host", Message: "host is required"}
	case c.Port < 0 || c.Port > 65535:
		return &ConfigError{Field: "Port", Message: "port out of range"}
	case c.Username == "":
		return &ConfigError{Field: "Username", Message: "username is required"}
	case c.Password == "" && c.PrivateKeyPath == "":
		return &ConfigError{Field: "Password/PrivateKeyPath", Message: "one authentication method is required"}
	case c.KnownHostsPath == "" && !c.InsecureIgnoreHostKey:
		return &ConfigError{Field: "KnownHostsPath", Message: "known_hosts file is required unless host key checking is disabled"}
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
	return "sftp config: " + e.Field + ": " + e.Message
}

// Gateway implements remote.Gateway over one SSH connection. The SFTP
// client multiplexes requests, so no extra locking is needed.
type Gateway struct {
	host   string
	conn   io.Closer
	client *sftp.Client
}

var _ remote.Gateway = (*Gateway)(nil)

// Dial opens the SSH connection and starts the SFTP subsystem.
func Dial(ctx context.Context, cfg Config) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clientCfg, err := clientConfig(cfg)
	if err != nil {
		return nil, &remote.Error{Op: "Dial", Gateway: remote.TypeSFTP, Host: cfg.Host, Err: err}
	}

	dialer := net.Dialer{Timeout: clientCfg.Timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", cfg.Addr())
	if err != nil {
		return nil, &remote.Error{Op: "Dial", Gateway: remote.TypeSFTP, Host: cfg.Host, Err: err}
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, cfg.Addr(), clientCfg)
	if err != nil {
		_ = netConn.Close()
		return nil, &remote.Error{Op: "Handshake", Gateway: remote.TypeSFTP, Host: cfg.Host, Err: err}
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return nil, &remote.Error{Op: "Subsystem", Gateway: remote.TypeSFTP, Host: cfg.Host, Err: err}
	}

	return newGateway(cfg.Host, client, sshClient), nil
}

func newGateway(host string, client *sftp.Client, conn io.Closer) *Gateway {
	return &Gateway{host: host, conn: conn, client: client}
}

func clientConfig(cfg Config) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if cfg.PrivateKeyPath != "" {
		signer, err := loadSigner(cfg.PrivateKeyPath, cfg.PrivateKeyPassphrase)
		if err != nil {
			return nil, err
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}

	hostKey, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}, nil
}

func loadSigner(keyPath, passphrase string) (ssh.Signer, error) {
	pem, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(pem)
	}
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return signer, nil
}

func hostKeyCallback(cfg Config) (ssh.HostKeyCallback, error) {
	if cfg.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // explicit opt-out
	}
	cb, err := knownhosts.New(cfg.KnownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts: %w", err)
	}
	return cb, nil
}

// ListDirectory returns the entries of dir.
func (g *Gateway) ListDirectory(ctx context.Context, dir string) ([]remote.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, g.wrap("List", dir, err)
	}
	entries, err := g.client.ReadDir(dir)
	if err != nil {
		return nil, g.wrap("List", dir, err)
	}
	out := make([]remote.FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.Name() == "." || e.Name() == ".." {
			continue
		}
		out = append(out, toFileInfo(dir, e))
	}
	return out, nil
}

func toFileInfo(dir string, fi fs.FileInfo) remote.FileInfo {
	return remote.FileInfo{
		RemoteDirectory: dir,
		Filename:        fi.Name(),
		Dir:             fi.IsDir(),
		Size:            fi.Size(),
		ModTime:         fi.ModTime(),
	}
}

// Stat returns the record for p. Symbolic links are followed.
func (g *Gateway) Stat(ctx context.Context, p string) (remote.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return remote.FileInfo{}, g.wrap("Stat", p, err)
	}
	fi, err := g.client.Stat(p)
	if err != nil {
		return remote.FileInfo{}, g.wrap("Stat", p, err)
	}
	dir, name := remote.ParentDir(p)
	info := toFileInfo(dir, fi)
	info.Filename = name
	return info, nil
}

// Retrieve opens p for reading.
func (g *Gateway) Retrieve(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, g.wrap("Retrieve", p, err)
	}
	f, err := g.client.Open(p)
	if err != nil {
		return nil, g.wrap("Retrieve", p, err)
	}
	return f, nil
}

// Store creates or truncates p.
func (g *Gateway) Store(ctx context.Context, p string, r io.Reader) error {
	return g.write(ctx, "Store", p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, r)
}

// Append appends r to p.
func (g *Gateway) Append(ctx context.Context, p string, r io.Reader) error {
	return g.write(ctx, "Append", p, os.O_WRONLY|os.O_CREATE|os.O_APPEND, r)
}

func (g *Gateway) write(ctx context.Context, op, p string, flags int, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return g.wrap(op, p, err)
	}
	f, err := g.client.OpenFile(p, flags)
	if err != nil {
		return g.wrap(op, p, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return g.wrap(op, p, err)
	}
	if err := f.Close(); err != nil {
		return g.wrap(op, p, err)
	}
	return nil
}

// Rename moves from to to, replacing to. Uses the posix-rename extension
// when the server offers it. Otherwise the existing destination is parked
// under remote.BackupPath, restored if the rename fails and removed once
// it succeeds.
func (g *Gateway) Rename(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return g.wrap("Rename", from, err)
	}
	err := g.client.PosixRename(from, to)
	if err == nil {
		return nil
	}
	if _, statErr := g.client.Stat(from); statErr != nil {
		return g.wrap("Rename", from, err)
	}
	if _, statErr := g.client.Stat(to); statErr != nil {
		if !errors.Is(statErr, fs.ErrNotExist) {
			return g.wrap("Rename", from, err)
		}
		if err := g.client.Rename(from, to); err != nil {
			return g.wrap("Rename", from, err)
		}
		return nil
	}

	// Plain SSH_FXP_RENAME refuses to overwrite.
	backup := remote.BackupPath(to)
	if bErr := g.client.Rename(to, backup); bErr != nil {
		return g.wrap("Rename", from, err)
	}
	if err := g.client.Rename(from, to); err != nil {
		if rErr := g.client.Rename(backup, to); rErr != nil {
			return g.wrap("Rename", from, errors.Join(err, fmt.Errorf("restore %s: %w", to, rErr)))
		}
		return g.wrap("Rename", from, err)
	}
	_ = g.client.Remove(backup)
	return nil
}

// MakeDirAll creates dir and its parents.
func (g *Gateway) MakeDirAll(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return g.wrap("MakeDirAll", dir, err)
	}
	if err := g.client.MkdirAll(dir); err != nil {
		return g.wrap("MakeDirAll", dir, err)
	}
	return nil
}

// Remove deletes a file.
func (g *Gateway) Remove(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return g.wrap("Remove", p, err)
	}
	if err := g.client.Remove(p); err != nil {
		return g.wrap("Remove", p, err)
	}
	return nil
}

// Close ends the SFTP session and the SSH connection.
func (g *Gateway) Close() error {
	clientErr := g.client.Close()
	connErr := g.conn.Close()
	if clientErr != nil {
		return clientErr
	}
	if connErr != nil && !errors.Is(connErr, net.ErrClosed) {
		return connErr
	}
	return nil
}

func (g *Gateway) wrap(op, p string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		err = fmt.Errorf("%w: %w", remote.ErrNotFound, err)
	}
	return &remote.Error{Op: op, Gateway: remote.TypeSFTP, Host: g.host, Path: p, Err: err}
}
