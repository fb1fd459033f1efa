package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// newTestStore creates an in-memory store for testing.
func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewStore(Config{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStore(t *testing.T) {
	s, err := NewStore(Config{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer s.Close()

	ss := s.(*SQLiteStore)
	for _, table := range []string{"events", "attachments"} {
		var name string
		err := ss.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestCreateAndGetEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := &Event{
		Title:       "Town Council Meeting",
		Description: "Discussed the new parking ordinance",
		Date:        time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		Timeline:    "Civic",
		Tags:        "meeting,ordinance",
	}
	if err := s.CreateEvent(ctx, e); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	if e.ID == "" {
		t.Fatal("expected server-assigned ID")
	}

	got, err := s.GetEvent(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if got.Title != e.Title || got.Timeline != "Civic" {
		t.Errorf("round trip mismatch: got %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
}

func TestCreateEventRequiresTitle(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateEvent(context.Background(), &Event{}); err == nil {
		t.Fatal("expected error for empty title")
	}
}

func TestGetEventNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetEvent(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := &Event{Title: "Original"}
	if err := s.CreateEvent(ctx, e); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	e.Title = "Amended"
	e.Description = "now with details"
	if err := s.UpdateEvent(ctx, e); err != nil {
		t.Fatalf("UpdateEvent failed: %v", err)
	}

	got, err := s.GetEvent(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if got.Title != "Amended" || got.Description != "now with details" {
		t.Errorf("update not persisted: %+v", got)
	}
}

func TestUpdateEventNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateEvent(context.Background(), &Event{ID: "ghost", Title: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := &Event{Title: "Doomed"}
	if err := s.CreateEvent(ctx, e); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	if err := s.DeleteEvent(ctx, e.ID); err != nil {
		t.Fatalf("DeleteEvent failed: %v", err)
	}
	if _, err := s.GetEvent(ctx, e.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteEvent(ctx, e.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestListEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := &Event{
			Title:    fmt.Sprintf("Event %d", i),
			Date:     time.Date(2025, 1, 10-i, 0, 0, 0, 0, time.UTC),
			Timeline: "Work",
		}
		if err := s.CreateEvent(ctx, e); err != nil {
			t.Fatalf("CreateEvent failed: %v", err)
		}
	}
	if err := s.CreateEvent(ctx, &Event{Title: "Elsewhere", Timeline: "Personal"}); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	events, err := s.ListEvents(ctx, ListOpts{Timeline: "Work"})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].Date.Before(events[i-1].Date) {
			t.Error("events not ordered by date")
		}
	}

	limited, err := s.ListEvents(ctx, ListOpts{Timeline: "Work", Limit: 2})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 events, got %d", len(limited))
	}

	all, err := s.ListEvents(ctx, ListOpts{Limit: -1})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(all) != 6 {
		t.Fatalf("expected 6 events unbounded, got %d", len(all))
	}
}

func TestEventsByIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &Event{Title: "A"}
	b := &Event{Title: "B"}
	for _, e := range []*Event{a, b} {
		if err := s.CreateEvent(ctx, e); err != nil {
			t.Fatalf("CreateEvent failed: %v", err)
		}
	}

	events, err := s.EventsByIDs(ctx, []string{a.ID, "missing", b.ID})
	if err != nil {
		t.Fatalf("EventsByIDs failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	none, err := s.EventsByIDs(ctx, nil)
	if err != nil || none != nil {
		t.Fatalf("expected empty result for no ids, got %v, %v", none, err)
	}
}

func TestTimelines(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, tl := range []string{"Work", "Personal", "Work", ""} {
		if err := s.CreateEvent(ctx, &Event{Title: "e", Timeline: tl}); err != nil {
			t.Fatalf("CreateEvent failed: %v", err)
		}
	}

	timelines, err := s.Timelines(ctx)
	if err != nil {
		t.Fatalf("Timelines failed: %v", err)
	}
	if len(timelines) != 2 {
		t.Fatalf("expected 2 distinct timelines, got %v", timelines)
	}
	if timelines[0] != "Personal" || timelines[1] != "Work" {
		t.Errorf("expected sorted timelines, got %v", timelines)
	}
}

func TestAttachmentLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := &Event{Title: "With docs"}
	if err := s.CreateEvent(ctx, e); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	a := &Attachment{
		EventID:          e.ID,
		Filename:         "abc123.pdf",
		OriginalFilename: "contract.pdf",
		ContentType:      "application/pdf",
		FileSize:         1024,
		ParsedContent:    "the quick brown fox",
		PageCount:        2,
		WordCount:        4,
	}
	if err := s.CreateAttachment(ctx, a); err != nil {
		t.Fatalf("CreateAttachment failed: %v", err)
	}
	if a.ID == "" {
		t.Fatal("expected server-assigned attachment ID")
	}

	got, err := s.GetAttachment(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAttachment failed: %v", err)
	}
	if got.ParsedContent != "the quick brown fox" || got.PageCount != 2 {
		t.Errorf("round trip mismatch: %+v", got)
	}

	list, err := s.ListAttachments(ctx, e.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected 1 attachment, got %d (%v)", len(list), err)
	}

	if err := s.DeleteAttachment(ctx, a.ID); err != nil {
		t.Fatalf("DeleteAttachment failed: %v", err)
	}
	// Attachment deletes are idempotent.
	if err := s.DeleteAttachment(ctx, a.ID); err != nil {
		t.Fatalf("expected idempotent delete, got %v", err)
	}
}

func TestAttachmentStoredWithoutParsedContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := &Event{Title: "Scan"}
	if err := s.CreateEvent(ctx, e); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	a := &Attachment{EventID: e.ID, Filename: "x.pdf", OriginalFilename: "scan.pdf"}
	if err := s.CreateAttachment(ctx, a); err != nil {
		t.Fatalf("expected unparseable attachment to store, got %v", err)
	}
}

func TestDeleteEventCascadesAttachments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := &Event{Title: "Parent"}
	if err := s.CreateEvent(ctx, e); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	a := &Attachment{EventID: e.ID, Filename: "f", OriginalFilename: "f.txt"}
	if err := s.CreateAttachment(ctx, a); err != nil {
		t.Fatalf("CreateAttachment failed: %v", err)
	}

	if err := s.DeleteEvent(ctx, e.ID); err != nil {
		t.Fatalf("DeleteEvent failed: %v", err)
	}
	if _, err := s.GetAttachment(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected attachment to cascade, got %v", err)
	}
}
