package engine

import (
	"testing"
	"time"

	"github.com/davsync/davsync/internal/journal"
	"github.com/davsync/davsync/internal/ocsapi"
	"github.com/stretchr/testify/assert"
)

var baseTime = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func record(etag string, size int64, mtime time.Time) *journal.FileRecord {
	return &journal.FileRecord{ETag: etag, Size: size, LastModified: mtime}
}

func kindsByPath(ops []syncOp) map[string]opKind {
	m := make(map[string]opKind, len(ops))
	for _, op := range ops {
		m[op.rel] = op.kind
	}
	return m
}

func TestPlan(t *testing.T) {
	local := map[string]*localFile{
		"new-local.txt":      {Size: 5, MTime: baseTime},
		"unchanged.txt":      {Size: 10, MTime: baseTime},
		"locally-edited.txt": {Size: 12, MTime: baseTime.Add(time.Hour)},
		"remote-edited.txt":  {Size: 10, MTime: baseTime},
		"both-edited.txt":    {Size: 99, MTime: baseTime.Add(time.Hour)},
		"server-deleted.txt": {Size: 3, MTime: baseTime},
		"adopted.txt":        {Size: 7, MTime: baseTime},
	}
	remote := map[string]*ocsapi.DavEntry{
		"new-remote.txt":     {Path: "new-remote.txt", ETag: "r1", Size: 4},
		"unchanged.txt":      {Path: "unchanged.txt", ETag: "e1", Size: 10},
		"locally-edited.txt": {Path: "locally-edited.txt", ETag: "e2", Size: 10},
		"remote-edited.txt":  {Path: "remote-edited.txt", ETag: "e3-new", Size: 11},
		"both-edited.txt":    {Path: "both-edited.txt", ETag: "e4-new", Size: 11},
		"local-deleted.txt":  {Path: "local-deleted.txt", ETag: "e5", Size: 2},
		"adopted.txt":        {Path: "adopted.txt", ETag: "r2", Size: 7},
	}
	journalFiles := map[string]*journal.FileRecord{
		"unchanged.txt":      record("e1", 10, baseTime),
		"locally-edited.txt": record("e2", 10, baseTime),
		"remote-edited.txt":  record("e3-old", 10, baseTime),
		"both-edited.txt":    record("e4-old", 10, baseTime),
		"server-deleted.txt": record("e6", 3, baseTime),
		"local-deleted.txt":  record("e5", 2, baseTime),
		"gone-both.txt":      record("e7", 1, baseTime),
	}

	ops := plan(local, remote, journalFiles)
	kinds := kindsByPath(ops)

	assert.Equal(t, opUpload, kinds["new-local.txt"])
	assert.Equal(t, opDownload, kinds["new-remote.txt"])
	assert.Equal(t, opUpload, kinds["locally-edited.txt"])
	assert.Equal(t, opDownload, kinds["remote-edited.txt"])
	assert.Equal(t, opConflict, kinds["both-edited.txt"])
	assert.Equal(t, opDeleteLocal, kinds["server-deleted.txt"])
	assert.Equal(t, opDeleteRemote, kinds["local-deleted.txt"])
	assert.Equal(t, opRecord, kinds["adopted.txt"])
	assert.Equal(t, opForget, kinds["gone-both.txt"])

	// unchanged files produce no operation
	_, present := kinds["unchanged.txt"]
	assert.False(t, present)
	assert.Len(t, ops, 9)
}

func TestPlan_EmptyStates(t *testing.T) {
	assert.Empty(t, plan(nil, nil, nil))
}

func TestPlan_InvalidatedEtagForcesDownload(t *testing.T) {
	// a rediscovery-scheduled entry never matches the server etag, so
	// an otherwise unchanged file is re-fetched
	local := map[string]*localFile{"a.txt": {Size: 10, MTime: baseTime}}
	remote := map[string]*ocsapi.DavEntry{"a.txt": {Path: "a.txt", ETag: "e1", Size: 10}}
	journalFiles := map[string]*journal.FileRecord{"a.txt": record("_invalid_", 10, baseTime)}

	kinds := kindsByPath(plan(local, remote, journalFiles))
	assert.Equal(t, opDownload, kinds["a.txt"])
}

func TestSameMTime_SecondPrecision(t *testing.T) {
	a := baseTime.Add(300 * time.Millisecond)
	b := baseTime.Add(700 * time.Millisecond)
	assert.True(t, sameMTime(a, b))
	assert.False(t, sameMTime(a, a.Add(time.Second)))
}

func TestIsBlacklisted(t *testing.T) {
	e := New(&Config{Blacklist: []string{"photos/", "music/archive/"}})

	assert.True(t, e.isBlacklisted("photos"))
	assert.True(t, e.isBlacklisted("photos/2026/a.jpg"))
	assert.True(t, e.isBlacklisted("music/archive"))
	assert.False(t, e.isBlacklisted("music"))
	assert.False(t, e.isBlacklisted("music/new/song.mp3"))
	assert.False(t, e.isBlacklisted("photos.txt"))
}

func TestOpKind_String(t *testing.T) {
	assert.Equal(t, "upload", opUpload.String())
	assert.Equal(t, "conflict", opConflict.String())
}
