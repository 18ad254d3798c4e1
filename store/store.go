// Package store persists traceback snapshots in SQLite.
package store

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/chazu/pyframe/vm/dist"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("pyframe.store")

// ErrSnapshotNotFound indicates the requested snapshot doesn't exist
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Entry is the listing form of a stored snapshot.
type Entry struct {
	ID        uuid.UUID
	ExcType   string
	Message   string
	CreatedAt int64
	Digest    string
}

// Store handles SQLite storage for snapshots
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		exc_type TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		digest TEXT NOT NULL,
		data BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS snapshots_digest ON snapshots (digest)"); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating index: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save persists a snapshot, replacing any snapshot with the same ID.
func (s *Store) Save(snap *dist.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := dist.MarshalSnapshot(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	digest, err := dist.Digest(snap)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO snapshots (id, exc_type, message, created_at, digest, data)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snap.ID.String(), snap.ExcType, snap.Message, snap.CreatedAt, hex.EncodeToString(digest[:]), data,
	)
	if err != nil {
		log.Warningf("saving snapshot %s: %s", snap.ID, err)
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

// Load retrieves a snapshot by ID.
func (s *Store) Load(id uuid.UUID) (*dist.Snapshot, error) {
	var data []byte
	err := s.db.QueryRow("SELECT data FROM snapshots WHERE id = ?", id.String()).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}
	return dist.UnmarshalSnapshot(data)
}

// List returns the most recent snapshots first; limit <= 0 means all.
func (s *Store) List(limit int) ([]Entry, error) {
	query := "SELECT id, exc_type, message, created_at, digest FROM snapshots ORDER BY created_at DESC, id"
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.db.Query(query+" LIMIT ?", limit)
	} else {
		rows, err = s.db.Query(query)
	}
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e  Entry
			id string
		)
		if err := rows.Scan(&id, &e.ExcType, &e.Message, &e.CreatedAt, &e.Digest); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			log.Warningf("skipping snapshot with malformed id %q", id)
			continue
		}
		e.ID = parsed
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Occurrences counts stored snapshots sharing digest.
func (s *Store) Occurrences(digest string) (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM snapshots WHERE digest = ?", digest).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting snapshots: %w", err)
	}
	return n, nil
}

// Delete removes a snapshot.
func (s *Store) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM snapshots WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSnapshotNotFound
	}
	return nil
}
