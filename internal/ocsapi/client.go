// Package ocsapi is the JSON/WebDAV client for the sync server: the two
// OCS bootstrap endpoints (capabilities, current user) and the dav
// file-access endpoint used by the sync engine.
package ocsapi

import (
	"time"

	"github.com/davsync/davsync/internal/version"
	"github.com/imroc/req/v3"
)

const (
	capabilitiesPath = "/ocs/v1.php/cloud/capabilities"
	currentUserPath  = "/ocs/v1.php/cloud/user"
)

// ClientOptions configures the HTTP client for one session.
type ClientOptions struct {
	// BaseURL is the credential-free server root, without the dav path.
	BaseURL string
	// DavPath is the server's file-access suffix, e.g. "remote.php/webdav/".
	DavPath string

	Username string
	Password string

	// TrustSSL accepts the server certificate unconditionally. It is
	// applied at client construction so the very first request (the
	// capabilities call) already runs under the trust setting.
	TrustSSL bool

	// ProxyURL is an optional "http://host:port" manual proxy.
	ProxyURL string
}

// Client talks to the server's OCS and dav endpoints.
type Client struct {
	http    *req.Client
	davPath string
}

func NewClient(opts *ClientOptions) *Client {
	c := req.C().
		SetBaseURL(opts.BaseURL).
		SetUserAgent("davsync/"+version.Version).
		SetTimeout(5*time.Minute).
		SetCommonBasicAuth(opts.Username, opts.Password).
		SetCommonHeader("OCS-APIRequest", "true").
		SetCommonQueryParam("format", "json")

	if opts.TrustSSL {
		c.EnableInsecureSkipVerify()
	}
	if opts.ProxyURL != "" {
		c.SetProxyURL(opts.ProxyURL)
	}

	return &Client{
		http:    c,
		davPath: opts.DavPath,
	}
}
