// Package store provides the SQLite storage layer for Chronicle.
//
// All timeline data lives in a single SQLite database file, including:
// - Events with transcriptions and word-level timestamps
// - Document attachments with parsed text content
// - The FTS5 search index (maintained by the index package)
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.chronicle/chronicle.db"

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Event is a single dated entry on a timeline.
type Event struct {
	ID                 string
	Title              string
	Description        string
	Date               time.Time
	Timeline           string
	Actor              string
	Tags               string // comma-separated
	AudioFile          string
	TranscriptionWords string // JSON array of {word, start, end}
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Attachment is a document attached to an event. ParsedContent holds the
// extracted text used for indexing; the raw file lives on disk.
type Attachment struct {
	ID               string
	EventID          string
	Filename         string
	OriginalFilename string
	ContentType      string
	FileSize         int64
	ParsedContent    string
	PageCount        int
	WordCount        int
	CreatedAt        time.Time
}

// ListOpts controls filtering for ListEvents.
type ListOpts struct {
	Timeline string
	Limit    int
	Offset   int
}

// Config holds configuration for NewStore.
type Config struct {
	DBPath string
}

// Store defines the primary record store interface.
type Store interface {
	// Events
	CreateEvent(ctx context.Context, e *Event) error
	GetEvent(ctx context.Context, id string) (*Event, error)
	ListEvents(ctx context.Context, opts ListOpts) ([]*Event, error)
	EventsByIDs(ctx context.Context, ids []string) ([]*Event, error)
	UpdateEvent(ctx context.Context, e *Event) error
	DeleteEvent(ctx context.Context, id string) error
	Timelines(ctx context.Context) ([]string, error)

	// Attachments
	CreateAttachment(ctx context.Context, a *Attachment) error
	GetAttachment(ctx context.Context, id string) (*Attachment, error)
	ListAttachments(ctx context.Context, eventID string) ([]*Attachment, error)
	AllAttachments(ctx context.Context) ([]*Attachment, error)
	DeleteAttachment(ctx context.Context, id string) error

	// DB exposes the underlying handle so the index package can share it.
	DB() *sql.DB
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg Config) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}

	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: cfg.DBPath}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// DB returns the underlying database handle.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
