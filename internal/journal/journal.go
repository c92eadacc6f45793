package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// etagInvalid marks a file entry whose remote state must be re-fetched
// instead of trusted from the journal.
const etagInvalid = "_invalid_"

const defaultPragma = `
PRAGMA journal_mode=WAL;
PRAGMA busy_timeout=5000;
PRAGMA foreign_keys=ON;
PRAGMA temp_store=MEMORY;
`

const schema = `
CREATE TABLE IF NOT EXISTS file_index (
    path TEXT PRIMARY KEY,
    etag TEXT NOT NULL,
    size INTEGER NOT NULL,
    last_modified TEXT NOT NULL -- RFC3339
);

CREATE TABLE IF NOT EXISTS selective_sync (
    path TEXT PRIMARY KEY
);
`

// FileRecord is the journal entry for a single synced file.
type FileRecord struct {
	Path         string `db:"path"`
	ETag         string `db:"etag"`
	Size         int64  `db:"size"`
	LastModified time.Time
}

type fileRow struct {
	Path         string `db:"path"`
	ETag         string `db:"etag"`
	Size         int64  `db:"size"`
	LastModified string `db:"last_modified"`
}

// Journal is the persistent per-target sync state, backed by SQLite.
// It stores the file index the engine compares against and the
// selective-sync blacklist the session reconciles.
type Journal struct {
	db   *sqlx.DB
	path string
}

// Open creates or opens the journal database at path.
func Open(path string) (*Journal, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&mode=rwc", path)
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}

	// single writer, WAL
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(defaultPragma); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}

	return &Journal{db: db, path: path}, nil
}

// Path returns the on-disk location of the journal database.
func (j *Journal) Path() string {
	return j.path
}

func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// SelectiveSyncList returns the persisted selective-sync blacklist.
func (j *Journal) SelectiveSyncList() ([]string, error) {
	var paths []string
	if err := j.db.Select(&paths, "SELECT path FROM selective_sync ORDER BY path"); err != nil {
		return nil, fmt.Errorf("query selective sync list: %w", err)
	}
	return paths, nil
}

// SetSelectiveSyncList replaces the persisted blacklist with paths.
func (j *Journal) SetSelectiveSyncList(paths []string) error {
	tx, err := j.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin selective sync update: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM selective_sync"); err != nil {
		return fmt.Errorf("clear selective sync list: %w", err)
	}
	for _, p := range paths {
		if _, err := tx.Exec("INSERT OR REPLACE INTO selective_sync (path) VALUES (?)", p); err != nil {
			return fmt.Errorf("insert selective sync path %s: %w", p, err)
		}
	}
	return tx.Commit()
}

// SchedulePathForRemoteDiscovery invalidates the stored remote state for
// path and everything below it, forcing a fresh server listing on the
// next sync pass.
func (j *Journal) SchedulePathForRemoteDiscovery(path string) error {
	_, err := j.db.Exec(
		`UPDATE file_index SET etag = ? WHERE path = ? OR path LIKE ? ESCAPE '\'`,
		etagInvalid, path, likePrefix(path),
	)
	if err != nil {
		return fmt.Errorf("schedule remote discovery for %s: %w", path, err)
	}
	return nil
}

// likePrefix turns path into a LIKE prefix pattern, escaping the SQL
// wildcards so a path containing '%' or '_' matches only literally.
func likePrefix(path string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(path) + "%"
}

// NeedsRemoteDiscovery reports whether the entry at path was invalidated.
func (j *Journal) NeedsRemoteDiscovery(path string) (bool, error) {
	rec, err := j.GetFile(path)
	if err != nil {
		return false, err
	}
	return rec != nil && rec.ETag == etagInvalid, nil
}

// GetFile returns the journal entry for path, or nil if none exists.
func (j *Journal) GetFile(path string) (*FileRecord, error) {
	var row fileRow
	err := j.db.Get(&row, "SELECT path, etag, size, last_modified FROM file_index WHERE path = ?", path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query file %s: %w", path, err)
	}
	return row.record()
}

// SetFile inserts or updates the journal entry for rec.Path.
func (j *Journal) SetFile(rec *FileRecord) error {
	if rec == nil {
		return errors.New("cannot set nil file record")
	}
	_, err := j.db.Exec(
		"INSERT OR REPLACE INTO file_index (path, etag, size, last_modified) VALUES (?, ?, ?, ?)",
		rec.Path, rec.ETag, rec.Size, rec.LastModified.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("set file %s: %w", rec.Path, err)
	}
	return nil
}

// DeleteFile removes the journal entry for path.
func (j *Journal) DeleteFile(path string) error {
	if _, err := j.db.Exec("DELETE FROM file_index WHERE path = ?", path); err != nil {
		return fmt.Errorf("delete file %s: %w", path, err)
	}
	return nil
}

// Files returns the entire file index keyed by path.
func (j *Journal) Files() (map[string]*FileRecord, error) {
	var rows []fileRow
	if err := j.db.Select(&rows, "SELECT path, etag, size, last_modified FROM file_index"); err != nil {
		return nil, fmt.Errorf("query file index: %w", err)
	}

	files := make(map[string]*FileRecord, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		files[rec.Path] = rec
	}
	return files, nil
}

func (r *fileRow) record() (*FileRecord, error) {
	mtime, err := time.Parse(time.RFC3339, r.LastModified)
	if err != nil {
		return nil, fmt.Errorf("parse stored timestamp for %s: %w", r.Path, err)
	}
	return &FileRecord{
		Path:         r.Path,
		ETag:         r.ETag,
		Size:         r.Size,
		LastModified: mtime,
	}, nil
}
