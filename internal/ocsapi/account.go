package ocsapi

import "net/url"

// Account accumulates the per-session server state negotiated during
// bootstrap. The URL it carries is credential-free; it is the identity
// used for display and for deriving the journal name.
type Account struct {
	// URL is the credential-free server root.
	URL *url.URL
	// User is the effective login name resolved for the session.
	User string

	capabilities   map[string]any
	serverVersion  string
	davUser        string
	davDisplayName string
}

func NewAccount(serverURL *url.URL, user string) *Account {
	return &Account{URL: serverURL, User: user}
}

func (a *Account) SetCapabilities(caps map[string]any) {
	a.capabilities = caps
}

func (a *Account) Capabilities() map[string]any {
	return a.capabilities
}

func (a *Account) SetServerVersion(v string) {
	a.serverVersion = v
}

func (a *Account) ServerVersion() string {
	return a.serverVersion
}

// SetDavUser records the opaque server-side user id.
func (a *Account) SetDavUser(id string) {
	a.davUser = id
}

func (a *Account) DavUser() string {
	return a.davUser
}

func (a *Account) SetDavDisplayName(name string) {
	a.davDisplayName = name
}

func (a *Account) DavDisplayName() string {
	return a.davDisplayName
}
