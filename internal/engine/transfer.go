package engine

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/davsync/davsync/internal/journal"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
	"log/slog"
)

// execute runs the planned operations with bounded parallelism and
// reports whether the remote side was modified by this pass.
func (e *Engine) execute(ctx context.Context, ops []syncOp) (remoteModified bool) {
	// remote folders first, sequentially, so parallel uploads always
	// have their parent collections
	dirs := make(map[string]struct{})
	for _, op := range ops {
		if op.kind != opUpload {
			continue
		}
		for dir := path.Dir(op.rel); dir != "." && dir != "/"; dir = path.Dir(dir) {
			dirs[dir] = struct{}{}
		}
	}
	for _, dir := range sortedKeys(dirs) {
		if err := e.cfg.Remote.MkDir(ctx, path.Join(e.cfg.RemoteFolder, dir)); err != nil {
			e.syncError(err)
		}
		remoteModified = true
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxParallel)

	for _, op := range ops {
		op := op
		switch op.kind {
		case opUpload, opDeleteRemote:
			remoteModified = true
		}

		g.Go(func() error {
			if err := e.runOp(gctx, op); err != nil {
				e.syncError(fmt.Errorf("%s %s: %w", op.kind, op.rel, err))
			}
			// transfer errors never abort the pass
			return nil
		})
	}
	g.Wait()

	return remoteModified
}

// sortedKeys orders parent collections before their children, which
// MKCOL requires.
func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (e *Engine) runOp(ctx context.Context, op syncOp) error {
	switch op.kind {
	case opUpload:
		return e.upload(ctx, op)
	case opDownload:
		return e.download(ctx, op)
	case opDeleteLocal:
		return e.deleteLocal(op)
	case opDeleteRemote:
		return e.deleteRemote(ctx, op)
	case opRecord:
		return e.cfg.Journal.SetFile(&journal.FileRecord{
			Path:         op.rel,
			ETag:         op.remote.ETag,
			Size:         op.local.Size,
			LastModified: op.local.MTime,
		})
	case opForget:
		return e.cfg.Journal.DeleteFile(op.rel)
	case opConflict:
		return e.conflict(ctx, op)
	default:
		return fmt.Errorf("unknown operation %d", op.kind)
	}
}

func (e *Engine) upload(ctx context.Context, op syncOp) error {
	localPath := filepath.Join(e.cfg.SourceDir, filepath.FromSlash(op.rel))
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	body := newRateLimitedReader(ctx, f, e.upLimiter)
	etag, err := e.cfg.Remote.Upload(ctx, path.Join(e.cfg.RemoteFolder, op.rel), body)
	if err != nil {
		return err
	}

	e.uploads.Add(1)
	e.progress("upload", op.rel, op.local.Size)
	slog.Info("uploaded", "path", op.rel, "size", humanize.Bytes(uint64(op.local.Size)))

	return e.cfg.Journal.SetFile(&journal.FileRecord{
		Path:         op.rel,
		ETag:         etag,
		Size:         op.local.Size,
		LastModified: op.local.MTime,
	})
}

func (e *Engine) download(ctx context.Context, op syncOp) error {
	localPath := filepath.Join(e.cfg.SourceDir, filepath.FromSlash(op.rel))
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(localPath), ".davsync-dl-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := newRateLimitedWriter(ctx, tmp, e.downLimiter)
	etag, err := e.cfg.Remote.Download(ctx, path.Join(e.cfg.RemoteFolder, op.rel), w)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	if etag != "" && etag != op.remote.ETag {
		// the file changed between listing and download
		e.etagMoved.Store(true)
	}

	if err := os.Rename(tmp.Name(), localPath); err != nil {
		return err
	}
	if !op.remote.LastModified.IsZero() {
		os.Chtimes(localPath, time.Now(), op.remote.LastModified)
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return err
	}

	e.downloads.Add(1)
	e.progress("download", op.rel, info.Size())
	slog.Info("downloaded", "path", op.rel, "size", humanize.Bytes(uint64(info.Size())))

	if etag == "" {
		etag = op.remote.ETag
	}
	return e.cfg.Journal.SetFile(&journal.FileRecord{
		Path:         op.rel,
		ETag:         etag,
		Size:         info.Size(),
		LastModified: info.ModTime(),
	})
}

// conflict keeps both versions of a file that changed on both sides:
// the local copy moves aside under a conflict name, then the server
// version is downloaded into place. The conflict copy is a plain new
// local file, so a follow-up pass uploads it.
func (e *Engine) conflict(ctx context.Context, op syncOp) error {
	localPath := filepath.Join(e.cfg.SourceDir, filepath.FromSlash(op.rel))
	conflictPath := conflictCopyPath(localPath, time.Now())

	if err := os.Rename(localPath, conflictPath); err != nil {
		return fmt.Errorf("move conflict copy aside: %w", err)
	}
	slog.Warn("conflict, keeping both copies",
		"path", op.rel, "copy", filepath.Base(conflictPath))

	return e.download(ctx, op)
}

// conflictCopyPath derives the conflict-copy name for p, keeping the
// extension so the copy still opens with the right application.
func conflictCopyPath(p string, now time.Time) string {
	ext := filepath.Ext(p)
	base := strings.TrimSuffix(p, ext)
	return base + "_conflict-" + now.Format("20060102-150405") + ext
}

func (e *Engine) deleteLocal(op syncOp) error {
	localPath := filepath.Join(e.cfg.SourceDir, filepath.FromSlash(op.rel))
	if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	e.deletes.Add(1)
	e.progress("delete local", op.rel, 0)
	slog.Info("deleted locally", "path", op.rel)
	return e.cfg.Journal.DeleteFile(op.rel)
}

func (e *Engine) deleteRemote(ctx context.Context, op syncOp) error {
	if err := e.cfg.Remote.Delete(ctx, path.Join(e.cfg.RemoteFolder, op.rel)); err != nil {
		return err
	}

	e.deletes.Add(1)
	e.progress("delete remote", op.rel, 0)
	slog.Info("deleted remotely", "path", op.rel)
	return e.cfg.Journal.DeleteFile(op.rel)
}
