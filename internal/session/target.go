package session

import (
	"fmt"
	"net/url"
	"strings"
)

// Target is the immutable descriptor of where this session syncs to,
// derived once from the target URL and the dav path.
type Target struct {
	// ServerURL is the credential-free server root, without the dav
	// path. It identifies the account for display and for the journal.
	ServerURL *url.URL

	// Folder is the remote folder below the dav root. It always begins
	// with "/" and never ends with "/" unless it is exactly "/".
	Folder string

	// DavPath is the normalized file-access suffix, trailing slash
	// included.
	DavPath string

	// URLUser and URLPassword are credentials embedded in the target
	// URL, the lowest-precedence credential source.
	URLUser     string
	URLPassword string
}

// DeriveTarget splits the user-supplied target URL into the server
// root, the dav path and the remote folder.
func DeriveTarget(targetURL, davPath string) (*Target, error) {
	if davPath == "" {
		davPath = DefaultDavPath
	}
	davPath = strings.Trim(davPath, "/") + "/"

	if !strings.HasSuffix(targetURL, "/") {
		targetURL += "/"
	}
	// append the dav path if the url does not already carry it
	if !strings.Contains(targetURL, davPath) {
		targetURL += davPath
	}
	if !strings.Contains(targetURL, "://") {
		targetURL = "https://" + targetURL
	}

	u, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("parse target url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("target url %q has no host", targetURL)
	}

	var urlUser, urlPassword string
	if u.User != nil {
		urlUser = u.User.Username()
		urlPassword, _ = u.User.Password()
	}

	// split the path into the server base path and the remote folder
	base, folder, _ := strings.Cut(u.Path, "/"+davPath)

	server := *u
	server.Path = base
	server.User = nil

	return &Target{
		ServerURL:   &server,
		Folder:      normalizeRemoteFolder(folder),
		DavPath:     davPath,
		URLUser:     urlUser,
		URLPassword: urlPassword,
	}, nil
}

// normalizeRemoteFolder gives the remote folder its canonical shape: a
// leading "/" and no trailing "/" unless it is the root itself.
func normalizeRemoteFolder(folder string) string {
	if !strings.HasPrefix(folder, "/") {
		folder = "/" + folder
	}
	if folder != "/" {
		folder = strings.TrimSuffix(folder, "/")
	}
	return folder
}
