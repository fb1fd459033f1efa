package index

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ix := New(db)
	if err := ix.Create(context.Background()); err != nil {
		t.Fatalf("creating index: %v", err)
	}
	return ix
}

func mustUpsert(t *testing.T, ix *Index, e Entry) {
	t.Helper()
	if err := ix.Upsert(context.Background(), e); err != nil {
		t.Fatalf("Upsert(%s) failed: %v", e.EntryID, err)
	}
}

func TestCreateIsIdempotent(t *testing.T) {
	ix := newTestIndex(t)
	if err := ix.Create(context.Background()); err != nil {
		t.Fatalf("second Create failed: %v", err)
	}
}

func TestUpsertReplacesExistingEntry(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	mustUpsert(t, ix, Entry{EntryID: "e1", Title: "Dentist appointment", Body: "routine cleaning"})
	mustUpsert(t, ix, Entry{EntryID: "e1", Title: "Dentist appointment", Body: "root canal rescheduled"})

	count, err := ix.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 row after double upsert, got %d", count)
	}

	hits, err := ix.Query(ctx, "canal", 10)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected new content to match, got %d hits", len(hits))
	}
	if hits2, _ := ix.Query(ctx, "cleaning", 10); len(hits2) != 0 {
		t.Error("old content still matches after upsert")
	}
}

func TestUpsertRequiresEntryID(t *testing.T) {
	ix := newTestIndex(t)
	if err := ix.Upsert(context.Background(), Entry{Title: "no id"}); err == nil {
		t.Fatal("expected error for empty entry_id")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	mustUpsert(t, ix, Entry{EntryID: "e1", Title: "Lease signing", Body: "signed the apartment lease"})
	if err := ix.Delete(ctx, "e1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if hits, _ := ix.Query(ctx, "lease", 10); len(hits) != 0 {
		t.Fatal("entry still matches after delete")
	}
	if err := ix.Delete(ctx, "e1"); err != nil {
		t.Fatalf("expected absent delete to succeed, got %v", err)
	}
}

func TestQueryRankOrdering(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	mustUpsert(t, ix, Entry{EntryID: "dense", Title: "ordinance ordinance",
		Body: "ordinance debate about the ordinance, amended ordinance text"})
	mustUpsert(t, ix, Entry{EntryID: "sparse", Title: "Council meeting",
		Body: "one mention of the ordinance among many other unrelated words here"})
	mustUpsert(t, ix, Entry{EntryID: "unrelated", Title: "Grocery run", Body: "milk and eggs"})

	hits, err := ix.Query(ctx, "ordinance", 10)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].EntryID != "dense" {
		t.Errorf("expected term-dense entry first, got %s", hits[0].EntryID)
	}
	if hits[0].Rank > hits[1].Rank {
		t.Errorf("ranks not ascending: %f then %f", hits[0].Rank, hits[1].Rank)
	}
}

func TestQuerySnippetHighlighting(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	long := strings.Repeat("filler words before the match ", 20) +
		"subpoena arrived today " + strings.Repeat("and trailing filler after it ", 20)
	mustUpsert(t, ix, Entry{EntryID: "e1", Title: "Legal mail", Body: long})

	hits, err := ix.Query(ctx, "subpoena", 10)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	snippet := hits[0].BodySnippet
	if !strings.Contains(snippet, HighlightOpen+"subpoena"+HighlightClose) {
		t.Errorf("expected highlighted term in snippet, got %q", snippet)
	}
	if len(snippet) >= len(long) {
		t.Error("snippet not truncated around the match")
	}
}

func TestQueryLimit(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d"} {
		mustUpsert(t, ix, Entry{EntryID: id, Title: "meeting " + id, Body: "notes"})
	}
	hits, err := ix.Query(ctx, "meeting", 2)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected limit to cap hits at 2, got %d", len(hits))
	}
}

func TestQuerySyntaxError(t *testing.T) {
	ix := newTestIndex(t)
	mustUpsert(t, ix, Entry{EntryID: "e1", Title: "anything", Body: "anything"})

	// A lone unbalanced quote is a single token, so sanitization passes it
	// through and FTS5 rejects it.
	_, err := ix.Query(context.Background(), `"meeting`, 10)
	if err == nil {
		t.Fatal("expected syntax error for unbalanced quote")
	}
	if !errors.Is(err, ErrQuerySyntax) {
		t.Fatalf("expected ErrQuerySyntax, got %v", err)
	}
	var qerr *QueryError
	if !errors.As(err, &qerr) {
		t.Fatalf("expected *QueryError, got %T", err)
	}
}

func TestQueryMatchesTagsAndTimeline(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	mustUpsert(t, ix, Entry{EntryID: "e1", Title: "Checkup", Body: "annual physical",
		Tags: "health,doctor", Timeline: "Medical"})

	if hits, _ := ix.Query(ctx, "doctor", 10); len(hits) != 1 {
		t.Error("expected tag text to be searchable")
	}
	if hits, _ := ix.Query(ctx, "Medical", 10); len(hits) != 1 {
		t.Error("expected timeline text to be searchable")
	}
}

func TestReplace(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	mustUpsert(t, ix, Entry{EntryID: "old", Title: "stale entry", Body: "obsolete"})

	n, err := ix.Replace(ctx, []Entry{
		{EntryID: "n1", Title: "fresh one", Body: "rebuilt"},
		{EntryID: "n2", Title: "fresh two", Body: "rebuilt"},
	})
	if err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 entries inserted, got %d", n)
	}

	if hits, _ := ix.Query(ctx, "obsolete", 10); len(hits) != 0 {
		t.Error("old entries survived replace")
	}
	if hits, _ := ix.Query(ctx, "rebuilt", 10); len(hits) != 2 {
		t.Error("new entries not searchable after replace")
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"meeting notes", "meeting OR notes"},
		{"meeting notes from march", "meeting OR notes OR from OR march"},
		{"meeting", "meeting"},
		{"meeting AND notes", "meeting AND notes"},
		{"meeting OR notes", "meeting OR notes"},
		{"meeting NOT notes", "meeting NOT notes"},
		// Lowercase operators are plain words.
		{"cats and dogs", "cats OR and OR dogs"},
		{`"exact phrase"`, `"exact phrase"`},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStripSyntax(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`meeting "notes" (draft)`, "meeting notes draft"},
		{"col:value AND x*", "col value AND x"},
		{"  spaced   out  ", "spaced out"},
		{"!!!", ""},
		{"plain words", "plain words"},
	}
	for _, tt := range tests {
		if got := StripSyntax(tt.in); got != tt.want {
			t.Errorf("StripSyntax(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
