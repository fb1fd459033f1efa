// Package timeline is the mutation surface for events and attachments.
// Every create, update, delete, and attach operation goes through this
// service so the search index is maintained in the same call path as the
// primary-store write: a caller is never told a mutation succeeded while
// search visibility silently diverged.
package timeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chronicle-app/chronicle/internal/extract"
	"github.com/chronicle-app/chronicle/internal/index"
	"github.com/chronicle-app/chronicle/internal/search"
	"github.com/chronicle-app/chronicle/internal/store"
	"github.com/chronicle-app/chronicle/internal/transcribe"
)

// Service coordinates primary-store mutations with index maintenance.
type Service struct {
	store  store.Store
	index  *index.Index
	logger *zap.Logger
}

// NewService creates a timeline service.
func NewService(st store.Store, ix *index.Index, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, index: ix, logger: logger}
}

// CreateEvent stores a new event, then indexes it. The index upsert runs
// strictly after the primary write commits — never before, to avoid
// indexing content that is then rolled back. An upsert failure fails the
// whole operation.
func (s *Service) CreateEvent(ctx context.Context, e *store.Event) error {
	if err := s.store.CreateEvent(ctx, e); err != nil {
		return err
	}
	if err := s.index.Upsert(ctx, search.EventEntry(e, nil)); err != nil {
		return fmt.Errorf("indexing event %s: %w", e.ID, err)
	}
	return nil
}

// UpdateEvent updates an event and re-indexes its combined searchable
// text, including any attachments' parsed content.
func (s *Service) UpdateEvent(ctx context.Context, e *store.Event) error {
	if err := s.store.UpdateEvent(ctx, e); err != nil {
		return err
	}
	if err := s.reindexEvent(ctx, e); err != nil {
		return fmt.Errorf("indexing event %s: %w", e.ID, err)
	}
	return nil
}

// DeleteEvent removes the event and its attachments from the primary
// store and the index. Index-delete failures are logged rather than
// propagated: a missing index entry for a deleted record self-heals via
// rebuild, but both deletes are always attempted because a leftover entry
// would be a user-visible ghost result.
func (s *Service) DeleteEvent(ctx context.Context, id string) error {
	attachments, err := s.store.ListAttachments(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.DeleteEvent(ctx, id); err != nil {
		return err
	}

	if err := s.index.Delete(ctx, id); err != nil {
		s.logger.Error("failed to remove event from index; rebuild will repair",
			zap.String("event_id", id), zap.Error(err))
	}
	for _, a := range attachments {
		if err := s.index.Delete(ctx, search.DocEntryID(id, a.ID)); err != nil {
			s.logger.Error("failed to remove attachment from index; rebuild will repair",
				zap.String("attachment_id", a.ID), zap.Error(err))
		}
	}
	return nil
}

// AttachDocument stores a document attachment on an event and indexes its
// parsed text. Parse and index failures never block the attachment: the
// file stays stored and downloadable, merely unsearchable until repaired.
func (s *Service) AttachDocument(ctx context.Context, eventID string, content []byte, filename, storedName, contentType string) (*store.Attachment, error) {
	if !extract.IsSupported(filename) {
		return nil, fmt.Errorf("%w: %s", extract.ErrUnsupportedType, filename)
	}

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	a := &store.Attachment{
		EventID:          eventID,
		Filename:         storedName,
		OriginalFilename: filename,
		ContentType:      contentType,
		FileSize:         int64(len(content)),
	}

	parsed, err := extract.Parse(content, filename)
	if err != nil {
		s.logger.Warn("document parse failed; attachment stored unsearchable",
			zap.String("filename", filename), zap.Error(err))
	} else {
		a.ParsedContent = parsed.Content
		a.PageCount = parsed.PageCount
		a.WordCount = parsed.WordCount
	}

	if err := s.store.CreateAttachment(ctx, a); err != nil {
		return nil, err
	}

	if a.ParsedContent != "" {
		if err := s.index.Upsert(ctx, search.AttachmentEntry(a, event)); err != nil {
			s.logger.Error("failed to index attachment; rebuild will repair",
				zap.String("attachment_id", a.ID), zap.Error(err))
		}
		// Refresh the event entry so event-level search sees the new
		// document text as well.
		if err := s.reindexEvent(ctx, event); err != nil {
			s.logger.Error("failed to refresh event entry; rebuild will repair",
				zap.String("event_id", eventID), zap.Error(err))
		}
	}

	return a, nil
}

// DetachDocument removes one attachment and its index entry, then
// refreshes the sibling event entry. The document namespace keeps this
// from recomputing anything beyond the one event.
func (s *Service) DetachDocument(ctx context.Context, eventID, attachmentID string) error {
	if err := s.store.DeleteAttachment(ctx, attachmentID); err != nil {
		return err
	}
	if err := s.index.Delete(ctx, search.DocEntryID(eventID, attachmentID)); err != nil {
		s.logger.Error("failed to remove attachment from index; rebuild will repair",
			zap.String("attachment_id", attachmentID), zap.Error(err))
	}

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil
		}
		return err
	}
	if err := s.reindexEvent(ctx, event); err != nil {
		s.logger.Error("failed to refresh event entry; rebuild will repair",
			zap.String("event_id", eventID), zap.Error(err))
	}
	return nil
}

// SetAudio records a transcribed audio file on an event and re-indexes it
// so the transcript text becomes searchable.
func (s *Service) SetAudio(ctx context.Context, eventID, storedName string, result *transcribe.Result) (*store.Event, error) {
	e, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	e.AudioFile = storedName
	e.TranscriptionWords = transcribe.MarshalWords(result.Words)
	if err := s.store.UpdateEvent(ctx, e); err != nil {
		return nil, err
	}
	if err := s.reindexEvent(ctx, e); err != nil {
		return nil, fmt.Errorf("indexing event %s: %w", e.ID, err)
	}
	return e, nil
}

// reindexEvent upserts the event's entry with its current combined text.
func (s *Service) reindexEvent(ctx context.Context, e *store.Event) error {
	attachments, err := s.store.ListAttachments(ctx, e.ID)
	if err != nil {
		return err
	}
	return s.index.Upsert(ctx, search.EventEntry(e, attachments))
}
