package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateEvent inserts a new event. Assigns a UUID if the ID is empty.
func (s *SQLiteStore) CreateEvent(ctx context.Context, e *Event) error {
	if e.Title == "" {
		return fmt.Errorf("event title cannot be empty")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Date.IsZero() {
		e.Date = time.Now().UTC()
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, title, description, date, timeline, actor, tags, audio_file, transcription_words, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, e.Description, e.Date.UTC(), e.Timeline, e.Actor, e.Tags,
		e.AudioFile, e.TranscriptionWords, now, now,
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	e.CreatedAt = now
	e.UpdatedAt = now
	return nil
}

// GetEvent retrieves an event by ID. Returns ErrNotFound if absent.
func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*Event, error) {
	e := &Event{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, date, timeline, actor, tags, audio_file, transcription_words, created_at, updated_at
		 FROM events WHERE id = ?`, id,
	).Scan(&e.ID, &e.Title, &e.Description, &e.Date, &e.Timeline, &e.Actor,
		&e.Tags, &e.AudioFile, &e.TranscriptionWords, &e.CreatedAt, &e.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting event %s: %w", id, err)
	}
	return e, nil
}

// ListEvents returns events ordered by date, optionally scoped to a timeline.
// A negative Limit means unbounded (used by index rebuild).
func (s *SQLiteStore) ListEvents(ctx context.Context, opts ListOpts) ([]*Event, error) {
	if opts.Limit == 0 {
		opts.Limit = 500
	}

	query := `SELECT id, title, description, date, timeline, actor, tags, audio_file, transcription_words, created_at, updated_at
			  FROM events`
	args := []interface{}{}

	if opts.Timeline != "" {
		query += " WHERE timeline = ?"
		args = append(args, opts.Timeline)
	}

	query += " ORDER BY date"
	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// EventsByIDs fetches the events for the given IDs. Missing IDs are simply
// absent from the result; callers treat that as a stale index entry.
func (s *SQLiteStore) EventsByIDs(ctx context.Context, ids []string) ([]*Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, date, timeline, actor, tags, audio_file, transcription_words, created_at, updated_at
		 FROM events WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching events by ids: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// UpdateEvent updates an event's mutable fields.
func (s *SQLiteStore) UpdateEvent(ctx context.Context, e *Event) error {
	if e.ID == "" {
		return fmt.Errorf("event id is required")
	}
	if e.Title == "" {
		return fmt.Errorf("event title cannot be empty")
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE events SET title = ?, description = ?, date = ?, timeline = ?, actor = ?, tags = ?,
		        audio_file = ?, transcription_words = ?, updated_at = ?
		 WHERE id = ?`,
		e.Title, e.Description, e.Date.UTC(), e.Timeline, e.Actor, e.Tags,
		e.AudioFile, e.TranscriptionWords, now, e.ID,
	)
	if err != nil {
		return fmt.Errorf("updating event %s: %w", e.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	e.UpdatedAt = now
	return nil
}

// DeleteEvent removes an event. Attachments cascade at the SQL level.
func (s *SQLiteStore) DeleteEvent(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting event %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Timelines returns the distinct timeline names in use.
func (s *SQLiteStore) Timelines(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT timeline FROM events WHERE timeline != '' ORDER BY timeline`)
	if err != nil {
		return nil, fmt.Errorf("listing timelines: %w", err)
	}
	defer rows.Close()

	var timelines []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scanning timeline: %w", err)
		}
		timelines = append(timelines, t)
	}
	return timelines, rows.Err()
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		e := &Event{}
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.Date, &e.Timeline,
			&e.Actor, &e.Tags, &e.AudioFile, &e.TranscriptionWords,
			&e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
