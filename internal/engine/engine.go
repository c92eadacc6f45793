// Package engine performs one sync pass between a local directory and
// a remote dav folder, comparing both sides against the journal.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/davsync/davsync/internal/exclude"
	"github.com/davsync/davsync/internal/journal"
	"github.com/davsync/davsync/internal/ocsapi"
	"golang.org/x/time/rate"
)

const defaultMaxParallel = 4

// RemoteClient is the slice of the server client the engine needs.
type RemoteClient interface {
	ListFolder(ctx context.Context, folder string) ([]*ocsapi.DavEntry, error)
	FolderETag(ctx context.Context, folder string) (string, error)
	Download(ctx context.Context, remotePath string, w io.Writer) (string, error)
	Upload(ctx context.Context, remotePath string, body io.Reader) (string, error)
	MkDir(ctx context.Context, remotePath string) error
	Delete(ctx context.Context, remotePath string) error
}

// Progress describes one completed transfer.
type Progress struct {
	Op    string
	Path  string
	Bytes int64
}

// Config wires one engine run.
type Config struct {
	SourceDir    string
	RemoteFolder string

	Journal *journal.Journal
	Remote  RemoteClient
	Exclude *exclude.Engine

	// Blacklist holds '/'-terminated folder paths excluded by
	// selective sync, relative to the remote folder.
	Blacklist []string

	SyncHiddenFiles bool

	// Rate limits in bytes per second, 0 means unlimited.
	UploadLimit   int64
	DownloadLimit int64

	MaxParallel int

	// OnProgress, when set, observes completed transfers.
	OnProgress func(Progress)
	// OnSyncError, when set, observes non-fatal mid-run errors. They
	// are logged either way and never stop the run.
	OnSyncError func(error)
}

// Result is the terminal outcome of one engine run.
type Result struct {
	Success bool
	// AnotherSyncNeeded signals that server or local state moved during
	// the run and a fresh pass is warranted.
	AnotherSyncNeeded bool

	Uploaded   int
	Downloaded int
	Deleted    int
	Errors     int
}

// Engine runs a single sync pass. A restart is a brand-new Run call,
// never a resumption.
type Engine struct {
	cfg         *Config
	blacklist   []string
	upLimiter   *rate.Limiter
	downLimiter *rate.Limiter

	errCount   atomic.Int64
	etagMoved  atomic.Bool
	uploads    atomic.Int64
	downloads  atomic.Int64
	deletes    atomic.Int64
}

func New(cfg *Config) *Engine {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = defaultMaxParallel
	}
	return &Engine{
		cfg:         cfg,
		blacklist:   cfg.Blacklist,
		upLimiter:   newLimiter(cfg.UploadLimit),
		downLimiter: newLimiter(cfg.DownloadLimit),
	}
}

// Run executes one full pass: scan both sides, plan, transfer. The
// returned error means the pass could not run at all; transfer-level
// failures are reported through Result instead.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	startETag, err := e.cfg.Remote.FolderETag(ctx, e.cfg.RemoteFolder)
	if err != nil {
		return Result{}, fmt.Errorf("fetch remote folder etag: %w", err)
	}

	remote, err := e.scanRemote(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list remote folder: %w", err)
	}

	local, err := e.scanLocal()
	if err != nil {
		return Result{}, fmt.Errorf("scan source dir: %w", err)
	}

	journalFiles, err := e.cfg.Journal.Files()
	if err != nil {
		return Result{}, fmt.Errorf("read journal: %w", err)
	}

	ops := plan(local, remote, journalFiles)
	slog.Info("sync pass planned",
		"local", len(local), "remote", len(remote), "operations", len(ops))

	remoteModified := e.execute(ctx, ops)

	needsAnother := e.etagMoved.Load()
	if !remoteModified && !needsAnother {
		endETag, err := e.cfg.Remote.FolderETag(ctx, e.cfg.RemoteFolder)
		if err != nil {
			e.syncError(fmt.Errorf("re-fetch remote folder etag: %w", err))
		} else if endETag != startETag {
			// the server moved underneath us during the pass
			needsAnother = true
		}
	}

	errs := int(e.errCount.Load())
	return Result{
		Success:           errs == 0,
		AnotherSyncNeeded: needsAnother,
		Uploaded:          int(e.uploads.Load()),
		Downloaded:        int(e.downloads.Load()),
		Deleted:           int(e.deletes.Load()),
		Errors:            errs,
	}, nil
}

// syncError records a non-fatal mid-run error.
func (e *Engine) syncError(err error) {
	e.errCount.Add(1)
	slog.Warn("sync error", "error", err)
	if e.cfg.OnSyncError != nil {
		e.cfg.OnSyncError(err)
	}
}

func (e *Engine) progress(op, path string, bytes int64) {
	if e.cfg.OnProgress != nil {
		e.cfg.OnProgress(Progress{Op: op, Path: path, Bytes: bytes})
	}
}

// isBlacklisted reports whether the '/'-terminated form of rel falls
// under a selective-sync blacklist entry.
func (e *Engine) isBlacklisted(rel string) bool {
	probe := rel
	if !strings.HasSuffix(probe, "/") {
		probe += "/"
	}
	for _, entry := range e.blacklist {
		if strings.HasPrefix(probe, entry) {
			return true
		}
	}
	return false
}

func newLimiter(bytesPerSec int64) *rate.Limiter {
	if bytesPerSec <= 0 {
		return nil
	}
	burst := int(bytesPerSec)
	if burst < rateChunk {
		burst = rateChunk
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}
