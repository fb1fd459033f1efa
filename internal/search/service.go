// Package search provides full-text search over the timeline: query
// sanitization and ranking via the FTS index, hydration of hits against
// the primary store, and the administrative index rebuild.
package search

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/chronicle-app/chronicle/internal/index"
	"github.com/chronicle-app/chronicle/internal/store"
	"github.com/chronicle-app/chronicle/internal/transcribe"
)

const (
	// DefaultLimit is the result cap when the caller does not specify one.
	DefaultLimit = 50
	// MaxLimit bounds the caller-supplied limit.
	MaxLimit = 100
)

// Result is a hydrated, snippeted search hit. Rank follows BM25 semantics:
// lower is a better match.
type Result struct {
	Event          *store.Event              `json:"event"`
	EntryID        string                    `json:"entry_id"`
	TitleSnippet   string                    `json:"title_snippet"`
	BodySnippet    string                    `json:"body_snippet"`
	Rank           float64                   `json:"rank"`
	HasAudio       bool                      `json:"has_audio"`
	WordTimestamps []transcribe.WordTimestamp `json:"word_timestamps,omitempty"`
}

// Service executes searches against the index and hydrates results.
type Service struct {
	store  store.Store
	index  *index.Index
	logger *zap.Logger
}

// NewService creates a search service.
func NewService(st store.Store, ix *index.Index, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, index: ix, logger: logger}
}

// Search runs the query against the index and joins each hit back to its
// owning event. Hits whose event was deleted after indexing are dropped
// silently; they are stale index entries, not errors, and disappear for
// good on the next rebuild. Malformed queries surface an
// index.ErrQuerySyntax error rather than an empty result, so "bad query"
// stays distinguishable from "no matches".
func (s *Service) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	limit = clampLimit(limit)

	hits, err := s.index.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	events, err := s.hydrate(ctx, hits)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		event, ok := events[eventIDForEntry(h.EntryID)]
		if !ok {
			s.logger.Debug("dropping stale index hit",
				zap.String("entry_id", h.EntryID))
			continue
		}
		results = append(results, Result{
			Event:          event,
			EntryID:        h.EntryID,
			TitleSnippet:   h.TitleSnippet,
			BodySnippet:    h.BodySnippet,
			Rank:           h.Rank,
			HasAudio:       event.AudioFile != "",
			WordTimestamps: transcribe.UnmarshalWords(event.TranscriptionWords),
		})
	}

	s.logger.Info("search executed",
		zap.String("query", query),
		zap.Int("hits", len(hits)),
		zap.Int("results", len(results)))
	return results, nil
}

// hydrate fetches the owning events for a set of hits, keyed by event ID.
func (s *Service) hydrate(ctx context.Context, hits []index.Hit) (map[string]*store.Event, error) {
	seen := make(map[string]bool, len(hits))
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		id := eventIDForEntry(h.EntryID)
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	events, err := s.store.EventsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*store.Event, len(events))
	for _, e := range events {
		byID[e.ID] = e
	}
	return byID, nil
}

// eventIDForEntry maps an index entry ID back to its owning event.
// Document entries are namespaced as doc_<event_id>:<attachment_id>, so
// the parent event is recoverable without an attachment lookup.
func eventIDForEntry(entryID string) string {
	if rest, ok := strings.CutPrefix(entryID, index.DocEntryPrefix); ok {
		if i := strings.IndexByte(rest, ':'); i > 0 {
			return rest[:i]
		}
		return rest
	}
	return entryID
}

// Suggestions returns deduplicated titles matching the partial input as a
// prefix query. Best-effort autocomplete: every failure degrades to an
// empty list, never an error surfaced to the end user.
func (s *Service) Suggestions(ctx context.Context, partial string, limit int) []string {
	partial = strings.TrimSpace(partial)
	if partial == "" {
		return nil
	}
	if limit <= 0 || limit > MaxLimit {
		limit = 10
	}

	hits, err := s.index.Query(ctx, index.StripSyntax(partial)+"*", limit)
	if err != nil {
		s.logger.Debug("suggestions query failed", zap.Error(err))
		return nil
	}

	var suggestions []string
	seen := make(map[string]bool)
	for _, h := range hits {
		if h.Title == "" || seen[h.Title] {
			continue
		}
		seen[h.Title] = true
		suggestions = append(suggestions, h.Title)
		if len(suggestions) >= limit {
			break
		}
	}
	return suggestions
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
