package session

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/davsync/davsync/internal/journal"
)

// NormalizeFolderSlash gives a selective-sync entry its canonical
// trailing slash. It is idempotent and leaves the root "/" alone.
func NormalizeFolderSlash(p string) string {
	if strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}

// LoadUnsyncedFolders reads the newline-delimited selective-sync list.
// Blank lines and lines starting with '#' are skipped; every retained
// path is normalized to end with '/'.
func LoadUnsyncedFolders(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open unsynced folders list %s: %w", path, err)
	}

	var folders []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		folders = append(folders, NormalizeFolderSlash(line))
	}
	return folders, nil
}

// ReconcileSelectiveSync diffs the persisted blacklist against newList,
// schedules every changed path for remote re-discovery and overwrites
// the persisted list. A store that cannot be opened or read means
// nothing to reconcile; the sync engine rebuilds it.
func ReconcileSelectiveSync(dbPath string, newList []string) {
	j, err := journal.Open(dbPath)
	if err != nil {
		slog.Debug("selective sync store not available, skipping reconciliation", "path", dbPath, "error", err)
		return
	}
	defer j.Close()

	oldList, err := j.SelectiveSyncList()
	if err != nil {
		slog.Debug("selective sync list not readable, skipping reconciliation", "error", err)
		return
	}

	for _, changed := range symmetricDiff(oldList, newList) {
		if err := j.SchedulePathForRemoteDiscovery(changed); err != nil {
			slog.Warn("could not schedule path for remote discovery", "path", changed, "error", err)
		}
	}

	if err := j.SetSelectiveSyncList(newList); err != nil {
		slog.Warn("could not persist selective sync list", "error", err)
	}
}

// symmetricDiff returns the paths present in exactly one of the two
// sets, each exactly once. Order is not significant.
func symmetricDiff(a, b []string) []string {
	inA := make(map[string]struct{}, len(a))
	for _, p := range a {
		inA[p] = struct{}{}
	}
	inB := make(map[string]struct{}, len(b))
	for _, p := range b {
		inB[p] = struct{}{}
	}

	var diff []string
	for _, p := range a {
		if _, ok := inB[p]; !ok {
			diff = append(diff, p)
		}
	}
	for _, p := range b {
		if _, ok := inA[p]; !ok {
			diff = append(diff, p)
		}
	}
	return diff
}
