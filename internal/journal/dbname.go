package journal

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

// DBName derives the journal file name for a sync target. The name is
// keyed on the credential-free server URL, the remote folder and the
// user so that several targets can share one source directory without
// stepping on each other's state.
func DBName(serverURL, folder, user string) string {
	key := fmt.Sprintf("%s@%s%s", user, serverURL, folder)
	sum := sha1.Sum([]byte(key))
	return fmt.Sprintf(".davsync_%s.db", hex.EncodeToString(sum[:])[:12])
}

// DBPath returns the full journal path for a target, placed inside the
// source directory like the rest of the client's hidden state.
func DBPath(sourceDir, serverURL, folder, user string) string {
	return filepath.Join(sourceDir, DBName(serverURL, folder, user))
}
