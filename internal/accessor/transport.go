package accessor

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/guianderson/terrama2/internal/catalog"
	"github.com/guianderson/terrama2/internal/errors"
)

// Provider option keys.
const (
	OptionTimeout         = "timeout"           // Go duration, default 30s
	OptionKnownHosts      = "known_hosts"       // SFTP known_hosts file
	OptionPrivateKey      = "private_key_path"  // SFTP private key file
	OptionInsecureHostKey = "insecure_host_key" // "true" skips SFTP host key checks
)

const defaultTransportTimeout = 30 * time.Second

// Fetcher opens one named file of a provider.
type Fetcher interface {
	Open(ctx context.Context, provider *catalog.DataProvider, name string) (io.ReadCloser, error)
}

// DefaultFetchers returns the transports for every file-based provider kind.
func DefaultFetchers() map[catalog.ProviderKind]Fetcher {
	return map[catalog.ProviderKind]Fetcher{
		catalog.ProviderFile: FileFetcher{},
		catalog.ProviderHTTP: NewHTTPFetcher(nil),
		catalog.ProviderFTP:  FTPFetcher{},
		catalog.ProviderSFTP: SFTPFetcher{},
	}
}

func providerTimeout(p *catalog.DataProvider) time.Duration {
	if raw, ok := p.Options[OptionTimeout]; ok {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return defaultTransportTimeout
}

func transportError(err error, p *catalog.DataProvider, name string) error {
	return errors.New(err).
		Category(errors.CategoryDataUnavailable).
		Component("accessor").
		Context("provider_id", p.ID).
		Context("provider_kind", string(p.Kind)).
		Context("file", name).
		Build()
}

// FileFetcher reads from the local filesystem. The provider URI is a
// file:// URL or a plain directory path.
type FileFetcher struct{}

// Open implements Fetcher.
func (FileFetcher) Open(_ context.Context, p *catalog.DataProvider, name string) (io.ReadCloser, error) {
	dir := p.URI
	if u, err := url.Parse(p.URI); err == nil && u.Scheme == "file" {
		dir = u.Host + u.Path
	}
	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(name))) //nolint:gosec // path built from catalog configuration
	if err != nil {
		return nil, transportError(err, p, name)
	}
	return f, nil
}

// HTTPFetcher downloads files with GET relative to the provider URI.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher returns an HTTPFetcher using client, or a fresh client when nil.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPFetcher{Client: client}
}

// Open implements Fetcher.
func (f *HTTPFetcher) Open(ctx context.Context, p *catalog.DataProvider, name string) (io.ReadCloser, error) {
	target, err := url.JoinPath(p.URI, name)
	if err != nil {
		return nil, transportError(err, p, name)
	}

	ctx, cancel := context.WithTimeout(ctx, providerTimeout(p))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		cancel()
		return nil, transportError(err, p, name)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		cancel()
		return nil, transportError(err, p, name)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		cancel()
		return nil, transportError(fmt.Errorf("GET %s: unexpected status %s", target, resp.Status), p, name)
	}
	return &closers{Reader: resp.Body, close: []func() error{resp.Body.Close, func() error { cancel(); return nil }}}, nil
}

// FTPFetcher retrieves files over FTP. Credentials come from the URI user info.
type FTPFetcher struct{}

// Open implements Fetcher.
func (FTPFetcher) Open(ctx context.Context, p *catalog.DataProvider, name string) (io.ReadCloser, error) {
	u, err := url.Parse(p.URI)
	if err != nil {
		return nil, transportError(err, p, name)
	}

	conn, err := ftp.Dial(hostWithDefaultPort(u, "21"),
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(providerTimeout(p)))
	if err != nil {
		return nil, transportError(fmt.Errorf("ftp dial: %w", err), p, name)
	}

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			pass = pw
		}
	}
	if err := conn.Login(user, pass); err != nil {
		_ = conn.Quit()
		return nil, transportError(fmt.Errorf("ftp login: %w", err), p, name)
	}

	resp, err := conn.Retr(path.Join(u.Path, name))
	if err != nil {
		_ = conn.Quit()
		return nil, transportError(fmt.Errorf("ftp retrieve: %w", err), p, name)
	}
	return &closers{Reader: resp, close: []func() error{resp.Close, conn.Quit}}, nil
}

// SFTPFetcher retrieves files over SFTP.
type SFTPFetcher struct{}

// Open implements Fetcher.
func (SFTPFetcher) Open(_ context.Context, p *catalog.DataProvider, name string) (io.ReadCloser, error) {
	u, err := url.Parse(p.URI)
	if err != nil {
		return nil, transportError(err, p, name)
	}

	config, err := sshClientConfig(u, p)
	if err != nil {
		return nil, transportError(err, p, name)
	}

	sshConn, err := ssh.Dial("tcp", hostWithDefaultPort(u, "22"), config)
	if err != nil {
		return nil, transportError(fmt.Errorf("ssh dial: %w", err), p, name)
	}
	client, err := sftp.NewClient(sshConn)
	if err != nil {
		_ = sshConn.Close()
		return nil, transportError(fmt.Errorf("sftp session: %w", err), p, name)
	}

	f, err := client.Open(path.Join(u.Path, name))
	if err != nil {
		_ = client.Close()
		_ = sshConn.Close()
		return nil, transportError(fmt.Errorf("sftp open: %w", err), p, name)
	}
	return &closers{Reader: f, close: []func() error{f.Close, client.Close, sshConn.Close}}, nil
}

func sshClientConfig(u *url.URL, p *catalog.DataProvider) (*ssh.ClientConfig, error) {
	config := &ssh.ClientConfig{Timeout: providerTimeout(p)}
	if u.User != nil {
		config.User = u.User.Username()
	}

	switch {
	case p.Options[OptionKnownHosts] != "":
		callback, err := knownhosts.New(p.Options[OptionKnownHosts])
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
		config.HostKeyCallback = callback
	case strings.EqualFold(p.Options[OptionInsecureHostKey], "true"):
		config.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // explicitly requested by provider options
	default:
		return nil, fmt.Errorf("sftp provider %d needs %s or %s=true", p.ID, OptionKnownHosts, OptionInsecureHostKey)
	}

	if keyPath := p.Options[OptionPrivateKey]; keyPath != "" {
		key, err := os.ReadFile(keyPath) //nolint:gosec // operator-configured key path
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		config.Auth = []ssh.AuthMethod{ssh.PublicKeys(signer)}
	} else if u.User != nil {
		pw, _ := u.User.Password()
		config.Auth = []ssh.AuthMethod{ssh.Password(pw)}
	}
	return config, nil
}

func hostWithDefaultPort(u *url.URL, port string) string {
	if u.Port() != "" {
		return u.Host
	}
	return net.JoinHostPort(u.Hostname(), port)
}

// closers is a reader that releases a chain of resources on Close.
type closers struct {
	io.Reader
	close []func() error
}

func (c *closers) Close() error {
	var errs []error
	for _, fn := range c.close {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
