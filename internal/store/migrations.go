package store

import "fmt"

// migrate creates all tables if they don't exist. Every statement is
// idempotent so this is safe to run on each startup.
func (s *SQLiteStore) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id                  TEXT PRIMARY KEY,
			title               TEXT NOT NULL,
			description         TEXT NOT NULL DEFAULT '',
			date                DATETIME NOT NULL,
			timeline            TEXT NOT NULL DEFAULT '',
			actor               TEXT NOT NULL DEFAULT '',
			tags                TEXT NOT NULL DEFAULT '',
			audio_file          TEXT NOT NULL DEFAULT '',
			transcription_words TEXT NOT NULL DEFAULT '',
			created_at          DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at          DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_events_timeline ON events(timeline)`,
		`CREATE INDEX IF NOT EXISTS idx_events_date ON events(date)`,

		`CREATE TABLE IF NOT EXISTS attachments (
			id                TEXT PRIMARY KEY,
			event_id          TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			filename          TEXT NOT NULL,
			original_filename TEXT NOT NULL DEFAULT '',
			content_type      TEXT NOT NULL DEFAULT '',
			file_size         INTEGER NOT NULL DEFAULT 0,
			parsed_content    TEXT NOT NULL DEFAULT '',
			page_count        INTEGER NOT NULL DEFAULT 0,
			word_count        INTEGER NOT NULL DEFAULT 0,
			created_at        DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_attachments_event_id ON attachments(event_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration %q: %w", truncate(stmt, 60), err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
