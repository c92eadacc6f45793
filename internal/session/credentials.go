package session

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bgentry/go-netrc/netrc"
	"golang.org/x/term"
)

// Credentials is the resolved (user, password) pair for the session.
type Credentials struct {
	User     string
	Password string
}

// Prompter reads credentials interactively.
type Prompter interface {
	ReadLine(prompt string) (string, error)
	// ReadPassword reads a line with terminal echo disabled. The
	// previous terminal state is restored on every exit path.
	ReadPassword(prompt string) (string, error)
}

// NetrcLookup resolves credentials for a host from a netrc source. A
// miss reports ok=false and must leave the caller's values unchanged.
type NetrcLookup interface {
	Lookup(host string) (user, password string, ok bool)
}

// CredentialResolver computes the effective credentials from the
// layered precedence chain: URL, CLI flags, netrc, interactive prompt.
type CredentialResolver struct {
	Prompter Prompter
	Netrc    NetrcLookup
}

// Resolve applies the precedence chain. Later sources override earlier
// ones, each only when non-empty. With interactivity disabled, empty
// fields are returned as-is and left for the bootstrap phase to reject.
func (r *CredentialResolver) Resolve(target *Target, opts *Options) (Credentials, error) {
	user := target.URLUser
	password := target.URLPassword

	if opts.User != "" {
		user = opts.User
	}
	if opts.Password != "" {
		password = opts.Password
	}

	if opts.UseNetrc && r.Netrc != nil {
		if u, p, ok := r.Netrc.Lookup(target.ServerURL.Hostname()); ok {
			if u != "" {
				user = u
			}
			if p != "" {
				password = p
			}
		}
	}

	if opts.Interactive {
		if user == "" {
			u, err := r.Prompter.ReadLine("Please enter user name: ")
			if err != nil {
				return Credentials{}, fmt.Errorf("read user name: %w", err)
			}
			user = u
		}
		if password == "" {
			p, err := r.Prompter.ReadPassword(fmt.Sprintf("Password for user %s: ", user))
			if err != nil {
				return Credentials{}, fmt.Errorf("read password: %w", err)
			}
			password = p
		}
	}

	return Credentials{User: user, Password: password}, nil
}

// TerminalPrompter prompts on the controlling terminal.
type TerminalPrompter struct{}

func (TerminalPrompter) ReadLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (TerminalPrompter) ReadPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)

	// term.ReadPassword disables echo and restores the prior terminal
	// mode before returning, also when the read fails.
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// netrcFile looks up credentials in a netrc file on disk.
type netrcFile struct {
	path string
}

// NetrcFile returns a NetrcLookup backed by the file at path. An empty
// path uses ~/.netrc.
func NetrcFile(path string) NetrcLookup {
	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, ".netrc")
	}
	return &netrcFile{path: path}
}

func (n *netrcFile) Lookup(host string) (string, string, bool) {
	rc, err := netrc.ParseFile(n.path)
	if err != nil {
		return "", "", false
	}
	m := rc.FindMachine(host)
	if m == nil {
		return "", "", false
	}
	return m.Login, m.Password, true
}
