package server

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chronicle-app/chronicle/internal/ask"
	"github.com/chronicle-app/chronicle/internal/extract"
	"github.com/chronicle-app/chronicle/internal/index"
	"github.com/chronicle-app/chronicle/internal/llm"
	"github.com/chronicle-app/chronicle/internal/search"
	"github.com/chronicle-app/chronicle/internal/store"
)

// maxUploadBytes caps attachment uploads at 50 MB.
const maxUploadBytes = 50 << 20

const dateLayout = "2006-01-02"

// eventPayload is the wire form of an event.
type eventPayload struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Date        string `json:"date,omitempty"`
	Timeline    string `json:"timeline,omitempty"`
	Actor       string `json:"actor,omitempty"`
	Tags        string `json:"tags,omitempty"`
	AudioFile   string `json:"audio_file,omitempty"`
	HasAudio    bool   `json:"has_audio"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

func eventToPayload(e *store.Event) eventPayload {
	return eventPayload{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Date:        e.Date.Format(dateLayout),
		Timeline:    e.Timeline,
		Actor:       e.Actor,
		Tags:        e.Tags,
		AudioFile:   e.AudioFile,
		HasAudio:    e.AudioFile != "",
		CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// parseDate accepts a plain date or a full RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func (p eventPayload) toEvent() (*store.Event, error) {
	date, err := parseDate(p.Date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", p.Date)
	}
	return &store.Event{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Date:        date,
		Timeline:    p.Timeline,
		Actor:       p.Actor,
		Tags:        p.Tags,
		AudioFile:   p.AudioFile,
	}, nil
}

type attachmentPayload struct {
	ID               string `json:"id"`
	EventID          string `json:"event_id"`
	Filename         string `json:"filename"`
	OriginalFilename string `json:"original_filename"`
	ContentType      string `json:"content_type"`
	FileSize         int64  `json:"file_size"`
	PageCount        int    `json:"page_count"`
	WordCount        int    `json:"word_count"`
	Searchable       bool   `json:"searchable"`
	CreatedAt        string `json:"created_at,omitempty"`
}

func attachmentToPayload(a *store.Attachment) attachmentPayload {
	return attachmentPayload{
		ID:               a.ID,
		EventID:          a.EventID,
		Filename:         a.Filename,
		OriginalFilename: a.OriginalFilename,
		ContentType:      a.ContentType,
		FileSize:         a.FileSize,
		PageCount:        a.PageCount,
		WordCount:        a.WordCount,
		Searchable:       a.ParsedContent != "",
		CreatedAt:        a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var p eventPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if p.Title == "" {
		s.respondError(w, http.StatusBadRequest, "title is required")
		return
	}
	e, err := p.toEvent()
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	e.ID = "" // server-assigned
	if err := s.timeline.CreateEvent(r.Context(), e); err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, eventToPayload(e))
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	opts := store.ListOpts{
		Timeline: r.URL.Query().Get("timeline"),
		Limit:    queryInt(r, "limit"),
		Offset:   queryInt(r, "offset"),
	}
	events, err := s.store.ListEvents(r.Context(), opts)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	payloads := make([]eventPayload, 0, len(events))
	for _, e := range events {
		payloads = append(payloads, eventToPayload(e))
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"events": payloads, "count": len(payloads)})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	e, err := s.store.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, eventToPayload(e))
}

// handleUpdateEvent applies the payload's editable fields onto the stored
// event. AudioFile and TranscriptionWords are owned by the audio upload
// path and survive every edit; rebuilding the row from the payload alone
// would wipe the transcript on a title-only edit.
func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var p eventPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if p.Title == "" {
		s.respondError(w, http.StatusBadRequest, "title is required")
		return
	}
	date, err := parseDate(p.Date)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid date %q (want YYYY-MM-DD)", p.Date))
		return
	}

	e, err := s.store.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	e.Title = p.Title
	e.Description = p.Description
	e.Timeline = p.Timeline
	e.Actor = p.Actor
	e.Tags = p.Tags
	if !date.IsZero() {
		e.Date = date
	}

	if err := s.timeline.UpdateEvent(r.Context(), e); err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, eventToPayload(e))
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.timeline.DeleteEvent(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleAttachDocument(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "reading upload")
		return
	}

	storedName := uuid.NewString() + filepath.Ext(header.Filename)
	if s.config.UploadDir != "" {
		if err := os.MkdirAll(s.config.UploadDir, 0755); err != nil {
			s.logger.Warn("creating upload dir failed", zap.Error(err))
		} else if err := os.WriteFile(filepath.Join(s.config.UploadDir, storedName), content, 0644); err != nil {
			s.logger.Warn("saving upload to disk failed", zap.Error(err))
		}
	}

	a, err := s.timeline.AttachDocument(r.Context(), eventID, content,
		header.Filename, storedName, header.Header.Get("Content-Type"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, attachmentToPayload(a))
}

// handleAttachAudio transcribes an uploaded recording and attaches it to
// the event, making the transcript searchable.
func (s *Server) handleAttachAudio(w http.ResponseWriter, r *http.Request) {
	if s.transcriber == nil {
		s.respondError(w, http.StatusServiceUnavailable, "transcription service is not configured")
		return
	}
	eventID := chi.URLParam(r, "id")
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "reading upload")
		return
	}

	result, err := s.transcriber.Transcribe(r.Context(), audio, header.Filename)
	if err != nil {
		s.logger.Error("transcription failed", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, "transcription failed")
		return
	}

	storedName := uuid.NewString() + filepath.Ext(header.Filename)
	if s.config.UploadDir != "" {
		if err := os.MkdirAll(s.config.UploadDir, 0755); err != nil {
			s.logger.Warn("creating upload dir failed", zap.Error(err))
		} else if err := os.WriteFile(filepath.Join(s.config.UploadDir, storedName), audio, 0644); err != nil {
			s.logger.Warn("saving upload to disk failed", zap.Error(err))
		}
	}

	e, err := s.timeline.SetAudio(r.Context(), eventID, storedName, result)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"event":      eventToPayload(e),
		"transcript": result.Text,
		"word_count": len(result.Words),
	})
}

func (s *Server) handleListAttachments(w http.ResponseWriter, r *http.Request) {
	attachments, err := s.store.ListAttachments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	payloads := make([]attachmentPayload, 0, len(attachments))
	for _, a := range attachments {
		payloads = append(payloads, attachmentToPayload(a))
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"attachments": payloads})
}

func (s *Server) handleDetachDocument(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")
	attachmentID := chi.URLParam(r, "attachmentID")
	if err := s.timeline.DetachDocument(r.Context(), eventID, attachmentID); err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleTimelines(w http.ResponseWriter, r *http.Request) {
	timelines, err := s.store.Timelines(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	if timelines == nil {
		timelines = []string{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"timelines": timelines})
}

// handleExportCSV streams all events (optionally one timeline) as CSV.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.ListEvents(r.Context(), store.ListOpts{
		Timeline: r.URL.Query().Get("timeline"),
		Limit:    -1,
	})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="chronicle-events.csv"`)

	cw := csv.NewWriter(w)
	cw.Write([]string{"id", "date", "timeline", "title", "description", "actor", "tags", "audio_file"})
	for _, e := range events {
		cw.Write([]string{
			e.ID, e.Date.Format(dateLayout), e.Timeline, e.Title,
			e.Description, e.Actor, e.Tags, e.AudioFile,
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		s.logger.Error("csv export failed mid-stream", zap.Error(err))
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "q parameter is required")
		return
	}
	results, err := s.search.Search(r.Context(), query, queryInt(r, "limit"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	if results == nil {
		results = []search.Result{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"query":   query,
		"results": results,
		"count":   len(results),
	})
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions := s.search.Suggestions(r.Context(), r.URL.Query().Get("q"), queryInt(r, "limit"))
	if suggestions == nil {
		suggestions = []string{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"suggestions": suggestions})
}

func (s *Server) handleRebuildIndex(w http.ResponseWriter, r *http.Request) {
	count, err := s.search.Rebuild(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "rebuilt",
		"entries_indexed": count,
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req ask.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		s.respondError(w, http.StatusBadRequest, "question is required")
		return
	}
	resp, err := s.engine.Ask(r.Context(), req)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAskStatus(w http.ResponseWriter, r *http.Request) {
	available := s.provider != nil && s.provider.Available(r.Context())
	status := map[string]interface{}{"available": available}
	if s.provider != nil {
		status["provider"] = s.provider.Name()
		status["model"] = s.provider.Model()
	}
	s.respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondServiceError maps domain errors to HTTP status codes.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	var qerr *index.QueryError
	switch {
	case errors.As(err, &qerr):
		s.respondError(w, http.StatusBadRequest, qerr.Error())
	case errors.Is(err, store.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, extract.ErrUnsupportedType):
		s.respondError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, llm.ErrUnavailable):
		s.respondError(w, http.StatusServiceUnavailable,
			"AI service is not available; is Ollama running?")
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response failed", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}
