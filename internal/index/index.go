// Package index provides the FTS5 full-text search index over timeline
// events and document attachments.
//
// The index is a denormalized projection of the primary store, never a
// source of truth: every entry can be regenerated from the events and
// attachments tables via Rebuild. Entries are keyed by entry_id (the
// owning event's ID, or "doc_<event_id>:<attachment_id>" for document
// entries) and
// upserts are transactional delete-then-insert, so there is exactly one
// row per entry_id at all times.
package index

import (
	"context"
	"database/sql"
	"fmt"
)

// DocEntryPrefix namespaces attachment entries so they stay distinct from
// the event entry sharing the same timeline.
const DocEntryPrefix = "doc_"

// Snippet window sizes in FTS5 tokens (SQLite caps these at 64).
const (
	titleSnippetTokens = 8
	bodySnippetTokens  = 24
)

// Highlight markers wrapped around matched terms in snippets.
const (
	HighlightOpen   = "<mark>"
	HighlightClose  = "</mark>"
	snippetEllipsis = "..."
)

// Entry is one searchable unit in the index.
type Entry struct {
	EntryID  string
	Title    string
	Body     string
	Tags     string
	Timeline string
}

// Hit is a raw, unhydrated search result. Rank follows BM25 semantics:
// lower (more negative) is a better match.
type Hit struct {
	EntryID      string
	Title        string
	TitleSnippet string
	BodySnippet  string
	Rank         float64
}

// Index wraps the event_fts virtual table. It shares the database handle
// with the primary store so index maintenance and record mutations run on
// the same connection pool.
type Index struct {
	db *sql.DB
}

// New returns an Index over the given database handle. Call Create before
// first use.
func New(db *sql.DB) *Index {
	return &Index{db: db}
}

// Create creates the FTS5 virtual table if absent. Safe to call on every
// startup.
func (ix *Index) Create(ctx context.Context) error {
	_, err := ix.db.ExecContext(ctx, `
		CREATE VIRTUAL TABLE IF NOT EXISTS event_fts USING fts5(
			entry_id UNINDEXED,
			title,
			body,
			tags,
			timeline,
			tokenize='porter unicode61'
		)`)
	if err != nil {
		return fmt.Errorf("creating fts table: %w", err)
	}
	return nil
}

// Upsert replaces any existing entry with the same entry_id and inserts
// the new content, in a single transaction. Queries never observe a state
// where old and new rows coexist.
func (ix *Index) Upsert(ctx context.Context, e Entry) error {
	if e.EntryID == "" {
		return fmt.Errorf("entry_id is required")
	}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM event_fts WHERE entry_id = ?", e.EntryID); err != nil {
		return fmt.Errorf("deleting stale entry %s: %w", e.EntryID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO event_fts (entry_id, title, body, tags, timeline) VALUES (?, ?, ?, ?, ?)`,
		e.EntryID, e.Title, e.Body, e.Tags, e.Timeline,
	); err != nil {
		return fmt.Errorf("inserting entry %s: %w", e.EntryID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing upsert: %w", err)
	}
	return nil
}

// Delete removes an entry. Absent entry_id is not an error.
func (ix *Index) Delete(ctx context.Context, entryID string) error {
	if _, err := ix.db.ExecContext(ctx, "DELETE FROM event_fts WHERE entry_id = ?", entryID); err != nil {
		return fmt.Errorf("deleting entry %s: %w", entryID, err)
	}
	return nil
}

// Replace clears the index and inserts the given entries inside one
// transaction, returning the number inserted. Concurrent readers observe
// either the old index or the new one, never a partial state.
func (ix *Index) Replace(ctx context.Context, entries []Entry) (int, error) {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning rebuild transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM event_fts"); err != nil {
		return 0, fmt.Errorf("clearing index: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO event_fts (entry_id, title, body, tags, timeline) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.EntryID, e.Title, e.Body, e.Tags, e.Timeline); err != nil {
			return 0, fmt.Errorf("inserting entry %s: %w", e.EntryID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing rebuild: %w", err)
	}
	return len(entries), nil
}

// Count returns the number of indexed entries.
func (ix *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := ix.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM event_fts").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}
	return n, nil
}
