// Package session orchestrates a single sync run: credential
// resolution, selective-sync reconciliation, bootstrap negotiation and
// the bounded-retry supervision of the sync engine.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// DefaultDavPath is the server's default file-access endpoint.
	DefaultDavPath = "remote.php/webdav/"

	// DefaultMaxSyncRetries bounds follow-up sync restarts.
	DefaultMaxSyncRetries = 3
)

// Options is the parsed-once session configuration. It is built from
// CLI input before any component runs and never mutated afterward.
type Options struct {
	SourceDir string
	TargetURL string

	User     string
	Password string

	Proxy           *ProxyConfig
	TrustSSL        bool
	UseNetrc        bool
	Interactive     bool
	SyncHiddenFiles bool

	ExcludeFile     string
	UnsyncedFolders string
	DavPath         string

	MaxSyncRetries int

	// MaxParallel caps concurrent transfers, 0 picks the engine default.
	MaxParallel int

	// Rate limits in bytes per second, 0 means unlimited.
	UploadLimit   int64
	DownloadLimit int64
}

// Validate checks the positional inputs and resolves the source
// directory to an absolute path with a trailing separator.
func (o *Options) Validate() error {
	if o.TargetURL == "" {
		return fmt.Errorf("target url is required")
	}
	if o.SourceDir == "" {
		return fmt.Errorf("source dir is required")
	}
	if o.MaxSyncRetries < 0 {
		return fmt.Errorf("max sync retries must not be negative")
	}

	fi, err := os.Stat(o.SourceDir)
	if err != nil {
		return fmt.Errorf("source dir '%s' does not exist", o.SourceDir)
	}
	if !fi.IsDir() {
		return fmt.Errorf("source dir '%s' is not a directory", o.SourceDir)
	}

	abs, err := filepath.Abs(o.SourceDir)
	if err != nil {
		return fmt.Errorf("resolve source dir: %w", err)
	}
	o.SourceDir = abs + string(os.PathSeparator)

	return nil
}

// ProxyConfig is a manual http proxy.
type ProxyConfig struct {
	Host string
	Port int
}

// URL renders the proxy as a proxy url for the http client.
func (p *ProxyConfig) URL() string {
	return fmt.Sprintf("http://%s:%d", p.Host, p.Port)
}

// ParseProxy parses a manual proxy descriptor. The only accepted shape
// is exactly three colon-separated tokens, "scheme://host:port".
func ParseProxy(s string) (*ProxyConfig, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("could not read httpproxy %q, expected format \"http://hostname:port\"", s)
	}

	host := strings.TrimPrefix(parts[1], "//")
	if host == "" {
		return nil, fmt.Errorf("could not read httpproxy %q, missing host", s)
	}

	port, err := strconv.Atoi(parts[2])
	if err != nil || port <= 0 {
		return nil, fmt.Errorf("could not read httpproxy %q, invalid port", s)
	}

	return &ProxyConfig{Host: host, Port: port}, nil
}
