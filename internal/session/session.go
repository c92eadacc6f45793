package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/davsync/davsync/internal/engine"
	"github.com/davsync/davsync/internal/exclude"
	"github.com/davsync/davsync/internal/journal"
	"github.com/davsync/davsync/internal/ocsapi"
)

var (
	// ErrConnectingToServer is the user-facing bootstrap failure.
	ErrConnectingToServer = errors.New("error connecting to server")

	// ErrSyncFailed means the engine finished with a failure result.
	ErrSyncFailed = errors.New("synchronization failed")
)

// Session holds everything a single sync run needs. Built once, run
// once.
type Session struct {
	opts    *Options
	target  *Target
	creds   Credentials
	account *ocsapi.Account
	api     *ocsapi.Client

	// SystemExcludeFile overrides the well-known system exclude list,
	// for tests and packaging.
	SystemExcludeFile string
}

// New derives the sync target, resolves credentials and prepares the
// server client. No network traffic happens here.
func New(opts *Options) (*Session, error) {
	target, err := DeriveTarget(opts.TargetURL, opts.DavPath)
	if err != nil {
		return nil, err
	}

	resolver := &CredentialResolver{
		Prompter: TerminalPrompter{},
		Netrc:    NetrcFile(""),
	}
	creds, err := resolver.Resolve(target, opts)
	if err != nil {
		return nil, err
	}

	var proxyURL string
	if opts.Proxy != nil {
		proxyURL = opts.Proxy.URL()
	}

	api := ocsapi.NewClient(&ocsapi.ClientOptions{
		BaseURL:  target.ServerURL.String(),
		DavPath:  target.DavPath,
		Username: creds.User,
		Password: creds.Password,
		TrustSSL: opts.TrustSSL,
		ProxyURL: proxyURL,
	})

	return &Session{
		opts:              opts,
		target:            target,
		creds:             creds,
		account:           ocsapi.NewAccount(target.ServerURL, creds.User),
		api:               api,
		SystemExcludeFile: exclude.DefaultSystemExcludeFile,
	}, nil
}

// Target returns the derived sync target.
func (s *Session) Target() *Target {
	return s.target
}

// Run performs the whole session: bootstrap negotiation, then the
// supervised sync phase. The returned error is the fatal condition to
// report; nil means the sync finished successfully.
func (s *Session) Run(ctx context.Context) error {
	negotiator := NewNegotiator(s.api)
	result, err := negotiator.Negotiate(ctx, s.account)
	if err != nil {
		var berr *BootstrapError
		if errors.As(err, &berr) && berr.Step == StepCapabilities {
			return fmt.Errorf("%w: %w", ErrConnectingToServer, berr.Err)
		}
		return fmt.Errorf("error fetching user identity: %w", err)
	}

	slog.Info("connected",
		"server", s.target.ServerURL.String(),
		"version", result.ServerVersion,
		"user", result.UserID,
		"display_name", result.DisplayName)

	supervisor := NewRetrySupervisor(s.opts.MaxSyncRetries)
	engineResult, err := supervisor.Run(ctx, s.syncPhase)
	if err != nil {
		return err
	}

	slog.Info("sync finished",
		"success", engineResult.Success,
		"uploaded", engineResult.Uploaded,
		"downloaded", engineResult.Downloaded,
		"deleted", engineResult.Deleted,
		"errors", engineResult.Errors,
		"restarts", supervisor.Restarts())

	if !engineResult.Success {
		return ErrSyncFailed
	}
	return nil
}

// syncPhase is one supervised pass: reload the selective-sync list,
// reconcile it, compose and reload the exclude rules, then run the
// engine. Every restart repeats all of it.
func (s *Session) syncPhase(ctx context.Context) (engine.Result, error) {
	dbPath := journal.DBPath(
		s.opts.SourceDir,
		s.target.ServerURL.String(),
		s.target.Folder,
		s.creds.User,
	)

	var unsynced []string
	if s.opts.UnsyncedFolders != "" {
		list, err := LoadUnsyncedFolders(s.opts.UnsyncedFolders)
		if err != nil {
			slog.Error("could not open file containing the list of unsynced folders", "error", err)
		} else {
			unsynced = list
		}
	}
	if len(unsynced) > 0 {
		ReconcileSelectiveSync(dbPath, unsynced)
	}

	excludeEngine := exclude.NewEngine()
	for _, f := range exclude.Compose(s.opts.ExcludeFile, s.SystemExcludeFile) {
		excludeEngine.AddExcludeFilePath(f)
	}
	if err := excludeEngine.Reload(); err != nil {
		return engine.Result{}, fmt.Errorf("cannot load exclude list: %w", err)
	}

	j, err := journal.Open(dbPath)
	if err != nil {
		return engine.Result{}, fmt.Errorf("open sync journal: %w", err)
	}
	defer j.Close()

	blacklist, err := j.SelectiveSyncList()
	if err != nil {
		return engine.Result{}, fmt.Errorf("read selective sync list: %w", err)
	}

	e := engine.New(&engine.Config{
		SourceDir:       s.opts.SourceDir,
		RemoteFolder:    s.target.Folder,
		Journal:         j,
		Remote:          s.api,
		Exclude:         excludeEngine,
		Blacklist:       blacklist,
		SyncHiddenFiles: s.opts.SyncHiddenFiles,
		MaxParallel:     s.opts.MaxParallel,
		UploadLimit:     s.opts.UploadLimit,
		DownloadLimit:   s.opts.DownloadLimit,
	})
	return e.Run(ctx)
}
