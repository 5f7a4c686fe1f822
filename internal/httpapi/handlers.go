package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/dshills/notecontext/internal/indexer"
	"github.com/dshills/notecontext/internal/logging"
	"github.com/dshills/notecontext/internal/searcher"
	"github.com/dshills/notecontext/internal/service"
	"github.com/dshills/notecontext/internal/storage"
	"github.com/dshills/notecontext/pkg/types"
)

type handlers struct {
	svc     *service.Service
	version string
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SearchResponse is the payload of GET /api/search
type SearchResponse struct {
	Query     string          `json:"query"`
	DateRange *DateRange      `json:"date_range,omitempty"`
	Results   []PassageResult `json:"results"`
	CacheHit  bool            `json:"cache_hit"`
}

type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// PassageResult is one passage of a search response
type PassageResult struct {
	Rank     int     `json:"rank,omitempty"`
	Path     string  `json:"path"`
	Name     string  `json:"name"`
	Heading  string  `json:"heading,omitempty"`
	Date     string  `json:"date,omitempty"`
	Content  string  `json:"content"`
	Snippet  string  `json:"snippet,omitempty"`
	Score    float64 `json:"score"`
	Lexical  float64 `json:"lexical"`
	Semantic float64 `json:"semantic"`
	Pinned   bool    `json:"pinned,omitempty"`
}

// AskRequest is the body of POST /api/ask
type AskRequest struct {
	Question        string `json:"question"`
	ConversationID  string `json:"conversation_id,omitempty"`
	NewConversation bool   `json:"new_conversation,omitempty"`
}

// AskResponse is the reply of POST /api/ask
type AskResponse struct {
	Answer         string         `json:"answer"`
	Sources        []types.Source `json:"sources"`
	NothingFound   bool           `json:"nothing_found,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
}

// PathRequest carries a single path
type PathRequest struct {
	Path string `json:"path"`
}

// SaveFileRequest is the body of POST /api/files
type SaveFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// FileResponse describes an indexed file without its content
type FileResponse struct {
	Path      string `json:"path"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	Date      string `json:"date"`
	UpdatedAt string `json:"updated_at"`
}

func toFileResponse(f *storage.File) FileResponse {
	return FileResponse{
		Path:      f.Path,
		Name:      f.Name,
		Size:      f.Size,
		Date:      f.EffectiveDate(),
		UpdatedAt: f.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": h.version})
}

func (h *handlers) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 50 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 50")
			return
		}
		limit = n
	}

	ret, err := h.svc.Search(r.Context(), query, limit)
	if err != nil {
		h.handleServiceError(w, r, err, "Search failed")
		return
	}

	resp := SearchResponse{
		Query:    ret.Query,
		Results:  make([]PassageResult, 0, len(ret.Pinned)+len(ret.Results)),
		CacheHit: ret.CacheHit,
	}
	if ret.DateRange != nil {
		start, end := ret.DateRange.Dates()
		resp.DateRange = &DateRange{Start: start, End: end}
	}
	for _, p := range ret.Passages() {
		resp.Results = append(resp.Results, PassageResult{
			Rank:     p.Rank,
			Path:     p.Path,
			Name:     p.Name,
			Heading:  p.HeadingPath,
			Date:     p.NoteDate,
			Content:  p.Content,
			Snippet:  p.Snippet,
			Score:    p.Score,
			Lexical:  p.LexicalScore,
			Semantic: p.VectorScore,
			Pinned:   p.Pinned,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ask answers a question. With ?stream=true the reply is sent as Server-Sent
// Events: one "data" event per text chunk, then a "done" event carrying the
// full AskResponse.
func (h *handlers) ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	svcReq := service.AskRequest{
		Query:           req.Question,
		ConversationID:  req.ConversationID,
		NewConversation: req.NewConversation,
	}

	if r.URL.Query().Get("stream") == "true" {
		h.askStream(w, r, svcReq)
		return
	}

	resp, err := h.svc.Ask(r.Context(), svcReq, nil)
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to answer")
		return
	}
	writeJSON(w, http.StatusOK, toAskResponse(resp))
}

func toAskResponse(resp *service.AskResponse) AskResponse {
	sources := resp.Sources
	if sources == nil {
		sources = []types.Source{}
	}
	return AskResponse{
		Answer:         resp.Text,
		Sources:        sources,
		NothingFound:   resp.NothingFound,
		ConversationID: resp.ConversationID,
	}
}

func (h *handlers) askStream(w http.ResponseWriter, r *http.Request, req service.AskRequest) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	started := false
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
	}

	resp, err := h.svc.Ask(ctx, req, func(chunk string) error {
		start()
		data, err := json.Marshal(map[string]string{"delta": chunk})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		if !started {
			// Nothing was sent yet, so a regular error status still works
			h.handleServiceError(w, r, err, "Failed to answer")
			return
		}
		logger.Error("error streaming answer", "err", err)
		data, _ := json.Marshal(ErrorResponse{Error: err.Error()})
		_, _ = fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
		flusher.Flush()
		return
	}

	start()
	data, err := json.Marshal(toAskResponse(resp))
	if err != nil {
		logger.Error("failed to encode answer", "err", err)
		return
	}
	_, _ = fmt.Fprintf(w, "event: done\ndata: %s\n\n", data)
	flusher.Flush()
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to get stats")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handlers) listFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.svc.Files(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to list files")
		return
	}
	out := make([]FileResponse, len(files))
	for i, f := range files {
		out[i] = toFileResponse(f)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) saveFile(w http.ResponseWriter, r *http.Request) {
	var req SaveFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	f, err := h.svc.SaveNote(r.Context(), req.Path, req.Content)
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to save note")
		return
	}
	writeJSON(w, http.StatusCreated, toFileResponse(f))
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	req, ok := decodePath(w, r)
	if !ok {
		return
	}
	stats, err := h.svc.Index(r.Context(), req.Path)
	if err != nil {
		h.handleServiceError(w, r, err, "Indexing failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handlers) watch(w http.ResponseWriter, r *http.Request) {
	req, ok := decodePath(w, r)
	if !ok {
		return
	}
	stats, err := h.svc.Watch(r.Context(), req.Path)
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to watch directory")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"path":  h.svc.NotesRoot(),
		"state": indexer.StateWatching,
		"scan":  stats,
	})
}

func (h *handlers) stopWatch(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.StopWatching(); err != nil {
		h.handleServiceError(w, r, err, "Failed to stop watcher")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) listPins(w http.ResponseWriter, r *http.Request) {
	files, err := h.svc.Pins(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to list pins")
		return
	}
	out := make([]FileResponse, len(files))
	for i, f := range files {
		out[i] = toFileResponse(f)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) pin(w http.ResponseWriter, r *http.Request) {
	req, ok := decodePath(w, r)
	if !ok {
		return
	}
	if err := h.svc.Pin(r.Context(), req.Path); err != nil {
		h.handleServiceError(w, r, err, "Failed to pin file")
		return
	}
	h.listPins(w, r)
}

func (h *handlers) unpin(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Unpin(r.Context(), r.URL.Query().Get("path")); err != nil {
		h.handleServiceError(w, r, err, "Failed to unpin file")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) embed(w http.ResponseWriter, r *http.Request) {
	processed, failed, err := h.svc.EmbedPending(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err, "Embedding failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"processed": processed, "failed": failed})
}

func (h *handlers) conversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.svc.Conversations(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to list conversations")
		return
	}
	if convs == nil {
		convs = []storage.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

// decodePath reads an optional {"path": ...} body; an empty body is allowed.
func decodePath(w http.ResponseWriter, r *http.Request) (PathRequest, bool) {
	var req PathRequest
	if r.ContentLength == 0 {
		return req, true
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return req, false
	}
	return req, true
}

// handleServiceError maps service errors to appropriate HTTP status codes and responses.
func (h *handlers) handleServiceError(w http.ResponseWriter, r *http.Request, err error, defaultMsg string) {
	logger := logging.FromContext(r.Context())

	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		logger.Warn("invalid request", "err", err)
		writeError(w, http.StatusBadRequest, validationErr.Error())
	case errors.Is(err, service.ErrOutsideNotesDir), errors.Is(err, indexer.ErrIgnored),
		errors.Is(err, searcher.ErrEmptyQuery):
		logger.Warn("invalid request", "err", err)
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Resource not found")
	case errors.Is(err, indexer.ErrIndexingInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrNoNotesDir), errors.Is(err, searcher.ErrNoChatModel),
		errors.Is(err, service.ErrEmbeddingsDisabled), errors.Is(err, indexer.ErrWatcherStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		logger.Error("service error", "err", err)
		writeError(w, http.StatusInternalServerError, defaultMsg)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{Error: message})
}
