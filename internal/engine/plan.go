package engine

import (
	"context"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/davsync/davsync/internal/journal"
	"github.com/davsync/davsync/internal/ocsapi"
)

type opKind int

const (
	opUpload opKind = iota
	opDownload
	opDeleteLocal
	opDeleteRemote
	// opRecord notes an already-identical pair in the journal without
	// transferring anything.
	opRecord
	// opForget drops a journal entry that matches neither side anymore.
	opForget
	// opConflict marks a pair that changed on both sides.
	opConflict
)

func (k opKind) String() string {
	switch k {
	case opUpload:
		return "upload"
	case opDownload:
		return "download"
	case opDeleteLocal:
		return "delete local"
	case opDeleteRemote:
		return "delete remote"
	case opRecord:
		return "record"
	case opForget:
		return "forget"
	case opConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

type syncOp struct {
	kind   opKind
	rel    string
	local  *localFile
	remote *ocsapi.DavEntry
}

type localFile struct {
	Size  int64
	MTime time.Time
}

// scanLocal walks the source directory, honoring the hidden-file
// policy, the exclusion rules and the selective-sync blacklist.
func (e *Engine) scanLocal() (map[string]*localFile, error) {
	files := make(map[string]*localFile)

	root := filepath.Clean(e.cfg.SourceDir)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		name := d.Name()

		// the journal lives inside the source dir
		if strings.HasPrefix(name, ".davsync_") {
			return nil
		}
		if !e.cfg.SyncHiddenFiles && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if e.isBlacklisted(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if e.cfg.Exclude != nil && e.cfg.Exclude.Matches(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		files[rel] = &localFile{Size: info.Size(), MTime: info.ModTime()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// scanRemote walks the remote folder breadth-first, skipping
// blacklisted subtrees. The hidden-file policy applies here the same
// way it does locally, so an ignored name is invisible on both sides
// and never enters the journal. Only files end up in the map.
func (e *Engine) scanRemote(ctx context.Context) (map[string]*ocsapi.DavEntry, error) {
	files := make(map[string]*ocsapi.DavEntry)

	queue := []string{""}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		entries, err := e.cfg.Remote.ListFolder(ctx, path.Join(e.cfg.RemoteFolder, dir))
		if err != nil {
			return nil, err
		}

		for _, entry := range entries {
			rel := path.Join(dir, entry.Path)
			if !e.cfg.SyncHiddenFiles && strings.HasPrefix(path.Base(rel), ".") {
				continue
			}
			if e.isBlacklisted(rel) {
				continue
			}
			if e.cfg.Exclude != nil && e.cfg.Exclude.Matches(rel) {
				continue
			}
			if entry.IsDir {
				queue = append(queue, rel)
				continue
			}
			clone := *entry
			clone.Path = rel
			files[rel] = &clone
		}
	}
	return files, nil
}

// plan derives the operation list from the three states. Pure function;
// ordering is stable for predictable logs.
func plan(local map[string]*localFile, remote map[string]*ocsapi.DavEntry, journalFiles map[string]*journal.FileRecord) []syncOp {
	seen := make(map[string]struct{}, len(local)+len(remote))
	var ops []syncOp

	add := func(op syncOp) {
		ops = append(ops, op)
	}

	for rel, lf := range local {
		seen[rel] = struct{}{}
		jr := journalFiles[rel]
		re, onRemote := remote[rel]

		switch {
		case onRemote:
			remoteChanged := jr == nil || jr.ETag != re.ETag
			localChanged := jr == nil || jr.Size != lf.Size || !sameMTime(jr.LastModified, lf.MTime)

			switch {
			case jr == nil && lf.Size == re.Size:
				// both sides new and same size, adopt as in sync
				add(syncOp{kind: opRecord, rel: rel, local: lf, remote: re})
			case remoteChanged && localChanged:
				add(syncOp{kind: opConflict, rel: rel, local: lf, remote: re})
			case remoteChanged:
				add(syncOp{kind: opDownload, rel: rel, local: lf, remote: re})
			case localChanged:
				add(syncOp{kind: opUpload, rel: rel, local: lf, remote: re})
			}
		case jr != nil:
			// present in journal, gone on the server
			add(syncOp{kind: opDeleteLocal, rel: rel, local: lf})
		default:
			add(syncOp{kind: opUpload, rel: rel, local: lf})
		}
	}

	for rel, re := range remote {
		if _, ok := seen[rel]; ok {
			continue
		}
		seen[rel] = struct{}{}
		if journalFiles[rel] != nil {
			// present in journal, gone locally
			add(syncOp{kind: opDeleteRemote, rel: rel, remote: re})
		} else {
			add(syncOp{kind: opDownload, rel: rel, remote: re})
		}
	}

	for rel := range journalFiles {
		if _, ok := seen[rel]; !ok {
			add(syncOp{kind: opForget, rel: rel})
		}
	}

	sort.Slice(ops, func(i, j int) bool { return ops[i].rel < ops[j].rel })
	return ops
}

// sameMTime compares modification times at second precision; dav
// servers do not report finer.
func sameMTime(a, b time.Time) bool {
	return a.Truncate(time.Second).Equal(b.Truncate(time.Second))
}
