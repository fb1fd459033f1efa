package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateAttachment inserts an attachment row. Assigns a UUID if needed.
// The attachment is stored even when parsing failed upstream; in that case
// ParsedContent is empty and the document is simply not searchable.
func (s *SQLiteStore) CreateAttachment(ctx context.Context, a *Attachment) error {
	if a.EventID == "" {
		return fmt.Errorf("attachment event_id is required")
	}
	if a.Filename == "" {
		return fmt.Errorf("attachment filename is required")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attachments (id, event_id, filename, original_filename, content_type, file_size, parsed_content, page_count, word_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.EventID, a.Filename, a.OriginalFilename, a.ContentType,
		a.FileSize, a.ParsedContent, a.PageCount, a.WordCount, now,
	)
	if err != nil {
		return fmt.Errorf("inserting attachment: %w", err)
	}

	a.CreatedAt = now
	return nil
}

// GetAttachment retrieves an attachment by ID. Returns ErrNotFound if absent.
func (s *SQLiteStore) GetAttachment(ctx context.Context, id string) (*Attachment, error) {
	a := &Attachment{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, event_id, filename, original_filename, content_type, file_size, parsed_content, page_count, word_count, created_at
		 FROM attachments WHERE id = ?`, id,
	).Scan(&a.ID, &a.EventID, &a.Filename, &a.OriginalFilename, &a.ContentType,
		&a.FileSize, &a.ParsedContent, &a.PageCount, &a.WordCount, &a.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting attachment %s: %w", id, err)
	}
	return a, nil
}

// ListAttachments returns the attachments for a single event.
func (s *SQLiteStore) ListAttachments(ctx context.Context, eventID string) ([]*Attachment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, filename, original_filename, content_type, file_size, parsed_content, page_count, word_count, created_at
		 FROM attachments WHERE event_id = ? ORDER BY created_at`, eventID)
	if err != nil {
		return nil, fmt.Errorf("listing attachments for event %s: %w", eventID, err)
	}
	defer rows.Close()

	return scanAttachments(rows)
}

// AllAttachments returns every attachment. Used by index rebuild.
func (s *SQLiteStore) AllAttachments(ctx context.Context) ([]*Attachment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, filename, original_filename, content_type, file_size, parsed_content, page_count, word_count, created_at
		 FROM attachments ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing all attachments: %w", err)
	}
	defer rows.Close()

	return scanAttachments(rows)
}

// DeleteAttachment removes a single attachment row. Idempotent.
func (s *SQLiteStore) DeleteAttachment(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM attachments WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting attachment %s: %w", id, err)
	}
	return nil
}

func scanAttachments(rows *sql.Rows) ([]*Attachment, error) {
	var attachments []*Attachment
	for rows.Next() {
		a := &Attachment{}
		if err := rows.Scan(&a.ID, &a.EventID, &a.Filename, &a.OriginalFilename,
			&a.ContentType, &a.FileSize, &a.ParsedContent, &a.PageCount,
			&a.WordCount, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning attachment row: %w", err)
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}
