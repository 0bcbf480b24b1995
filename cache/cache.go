// Package cache persists parsed-archive lookups (entry tables, mission
// footers, resolved scene prototypes) in a local SQLite database keyed
// by the source file's path, size, and modification time, so repeated
// loads of the same unmodified file skip re-parsing.
package cache

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/ncruces/go-strftime"
	_ "modernc.org/sqlite"
)

// Key identifies a cached entry: the absolute path of the file that
// was parsed, plus the size and modification time it had at parse
// time. A stale Key (file touched since) is a cache miss.
type Key struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// KeyForFile stats path and builds the Key a cache lookup or store for
// it should use.
func KeyForFile(path string) (Key, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Key{}, fmt.Errorf("cache: stat %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Key{}, fmt.Errorf("cache: absolute path of %s: %w", path, err)
	}
	return Key{Path: abs, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Store is a handle to the on-disk cache database. A nil *Store is
// valid and behaves as a disabled cache: Get always misses and Put is
// a no-op, so callers can hold a *Store unconditionally without a
// "caching enabled" branch at every call site.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	path     TEXT NOT NULL,
	size     INTEGER NOT NULL,
	mod_time INTEGER NOT NULL,
	kind     TEXT NOT NULL,
	value    BLOB NOT NULL,
	PRIMARY KEY (path, kind)
);`

// Open opens (creating if necessary) the SQLite database at path. An
// empty path disables the cache outright. A database that can't be
// opened, pinged, or migrated also degrades to a disabled Store rather
// than failing the caller's load — the cache is strictly an
// accelerator, never a load dependency — but the triggering error is
// still returned so callers can log it.
func Open(path string) (*Store, error) {
	if path == "" {
		return &Store{}, nil
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return &Store{}, fmt.Errorf("cache: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return &Store{}, fmt.Errorf("cache: ping %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return &Store{}, fmt.Errorf("cache: create schema: %w", err)
	}

	log.Printf("Cache opened at %s (%s)", path, strftime.Format("%Y-%m-%d %H:%M:%S", time.Now()))
	return &Store{db: db}, nil
}

// Close releases the underlying database handle. Close on a disabled
// (nil-db) Store is a no-op.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get looks up a cached value for key under kind (a caller-chosen
// namespace such as "nres-entries" or "mission-footer"). It reports a
// miss, rather than an error, whenever the stored row's size or
// mod_time no longer matches key — the file changed since it was
// cached.
func (s *Store) Get(key Key, kind string) ([]byte, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, nil
	}

	var size int64
	var modTime int64
	var value []byte
	row := s.db.QueryRow(
		`SELECT size, mod_time, value FROM entries WHERE path = ? AND kind = ?`,
		key.Path, kind,
	)
	if err := row.Scan(&size, &modTime, &value); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache: get %s/%s: %w", key.Path, kind, err)
	}

	if size != key.Size || modTime != key.ModTime.UnixNano() {
		return nil, false, nil
	}
	return value, true, nil
}

// Put stores value for key under kind, replacing any prior entry.
func (s *Store) Put(key Key, kind string, value []byte) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.Exec(
		`INSERT INTO entries (path, size, mod_time, kind, value) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (path, kind) DO UPDATE SET size = excluded.size, mod_time = excluded.mod_time, value = excluded.value`,
		key.Path, key.Size, key.ModTime.UnixNano(), kind, value,
	)
	if err != nil {
		return fmt.Errorf("cache: put %s/%s: %w", key.Path, kind, err)
	}
	return nil
}
