// Package store is the SQLite-backed Record Store holding hikes and their
// observations together with their sync bookkeeping.
//
// Only this package may open or query the database. All other packages receive
// a [*Store] and call its methods.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS hikes (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    remote_id         TEXT    NOT NULL DEFAULT '',
    name              TEXT    NOT NULL,
    location          TEXT    NOT NULL DEFAULT '',
    date              TEXT    NOT NULL DEFAULT '',
    time              TEXT    NOT NULL DEFAULT '',
    length_km         REAL    NOT NULL DEFAULT 0,
    difficulty        TEXT    NOT NULL DEFAULT 'Easy',
    parking_available INTEGER NOT NULL DEFAULT 0,
    description       TEXT    NOT NULL DEFAULT '',
    privacy           TEXT    NOT NULL DEFAULT 'Private',
    latitude          REAL,
    longitude         REAL,
    sync_state        INTEGER NOT NULL DEFAULT 0,
    is_deleted        INTEGER NOT NULL DEFAULT 0,
    created_at        INTEGER NOT NULL,
    updated_at        INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_hikes_remote_id ON hikes (remote_id) WHERE remote_id != '';
CREATE INDEX        IF NOT EXISTS idx_hikes_sync      ON hikes (sync_state, is_deleted);

CREATE TABLE IF NOT EXISTS observations (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    remote_id     TEXT    NOT NULL DEFAULT '',
    hike_id       INTEGER NOT NULL REFERENCES hikes (id) ON DELETE CASCADE,
    title         TEXT    NOT NULL,
    time          TEXT    NOT NULL DEFAULT '',
    comments      TEXT    NOT NULL DEFAULT '',
    image_ref     TEXT    NOT NULL DEFAULT '',
    image_url     TEXT    NOT NULL DEFAULT '',
    latitude      REAL,
    longitude     REAL,
    status        TEXT    NOT NULL DEFAULT 'Open',
    confirmations INTEGER NOT NULL DEFAULT 0,
    disputes      INTEGER NOT NULL DEFAULT 0,
    sync_state    INTEGER NOT NULL DEFAULT 0,
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_observations_remote_id ON observations (remote_id) WHERE remote_id != '';
CREATE INDEX        IF NOT EXISTS idx_observations_hike_id   ON observations (hike_id);
`

// Store is the SQLite-backed record repository.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// DefaultDBPath returns the default path for the database:
// ~/.local/share/trailsync/trailsync.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "trailsync", "trailsync.db"), nil
}

// Open opens (or creates) the SQLite database at path, applies the schema, and
// configures WAL mode and foreign keys so observation rows cascade with their
// hike.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetClock replaces the time source used for createdAt/updatedAt stamps.
// Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// migrate applies the schema DDL idempotently (CREATE IF NOT EXISTS).
func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// --- helpers -----------------------------------------------------------------

// scanner matches both *sql.Row and *sql.Rows so the scan helpers can be reused.
type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) stamp() int64 {
	return s.now().UnixMilli()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	f := n.Float64
	return &f
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
