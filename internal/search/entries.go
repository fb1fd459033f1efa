package search

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/chronicle-app/chronicle/internal/index"
	"github.com/chronicle-app/chronicle/internal/store"
	"github.com/chronicle-app/chronicle/internal/transcribe"
)

// DocEntryID builds the namespaced index entry ID for an attachment.
// Keeping the event ID in the entry ID lets hydration recover the parent
// without an extra lookup, and deleting one attachment entry never
// touches its siblings.
func DocEntryID(eventID, attachmentID string) string {
	return index.DocEntryPrefix + eventID + ":" + attachmentID
}

// EventEntry builds the index entry for an event. The body concatenates
// the description, the audio transcript, and every attachment's parsed
// content so event-level search sees all of the event's text.
func EventEntry(e *store.Event, attachments []*store.Attachment) index.Entry {
	var body strings.Builder
	body.WriteString(e.Description)
	if words := transcribe.UnmarshalWords(e.TranscriptionWords); len(words) > 0 {
		body.WriteString("\n\n")
		for i, w := range words {
			if i > 0 {
				body.WriteByte(' ')
			}
			body.WriteString(w.Word)
		}
	}
	for _, a := range attachments {
		if a.ParsedContent == "" {
			continue
		}
		body.WriteString("\n\n")
		body.WriteString(a.ParsedContent)
	}
	return index.Entry{
		EntryID:  e.ID,
		Title:    e.Title,
		Body:     body.String(),
		Tags:     e.Tags,
		Timeline: e.Timeline,
	}
}

// AttachmentEntry builds the standalone index entry for one attachment,
// so a document can be searched and attributed to its parent timeline
// independently of the event's own entry.
func AttachmentEntry(a *store.Attachment, parent *store.Event) index.Entry {
	return index.Entry{
		EntryID:  DocEntryID(a.EventID, a.ID),
		Title:    a.OriginalFilename,
		Body:     a.ParsedContent,
		Tags:     parent.Tags,
		Timeline: parent.Timeline,
	}
}

// Rebuild clears the index and repopulates it from the primary store's
// current state, returning the number of entries rebuilt. This is the
// authoritative repair path for any suspected drift between the primary
// store and the index.
func (s *Service) Rebuild(ctx context.Context) (int, error) {
	events, err := s.store.ListEvents(ctx, store.ListOpts{Limit: -1})
	if err != nil {
		return 0, fmt.Errorf("loading events for rebuild: %w", err)
	}
	attachments, err := s.store.AllAttachments(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading attachments for rebuild: %w", err)
	}

	byEvent := make(map[string][]*store.Attachment)
	for _, a := range attachments {
		byEvent[a.EventID] = append(byEvent[a.EventID], a)
	}
	eventByID := make(map[string]*store.Event, len(events))
	for _, e := range events {
		eventByID[e.ID] = e
	}

	entries := make([]index.Entry, 0, len(events)+len(attachments))
	for _, e := range events {
		entries = append(entries, EventEntry(e, byEvent[e.ID]))
	}
	for _, a := range attachments {
		parent, ok := eventByID[a.EventID]
		if !ok {
			continue
		}
		entries = append(entries, AttachmentEntry(a, parent))
	}

	count, err := s.index.Replace(ctx, entries)
	if err != nil {
		return 0, fmt.Errorf("rebuilding index: %w", err)
	}

	s.logger.Info("search index rebuilt", zap.Int("entries", count))
	return count, nil
}
