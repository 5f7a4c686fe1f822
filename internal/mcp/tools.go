package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/notecontext/internal/indexer"
	"github.com/dshills/notecontext/internal/searcher"
	"github.com/dshills/notecontext/internal/service"
	"github.com/dshills/notecontext/internal/storage"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeNoNotesDir         = -32001 // No notes directory given or configured
	ErrorCodeIndexingInProgress = -32002 // Another scan is already running
	ErrorCodeNotFound           = -32003 // Path or conversation does not exist
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
	ErrorCodeNoChatModel        = -32005 // ask needs a chat model
)

// handleIndexNotes handles the index_notes tool invocation
func (s *Server) handleIndexNotes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	path := getStringDefault(args, "path", "")
	watch := getBoolDefault(args, "watch", false)

	var stats *indexer.Statistics
	if watch {
		stats, err = s.svc.Watch(ctx, path)
	} else {
		stats, err = s.svc.Index(ctx, path)
	}
	if err != nil {
		return nil, toMCPError("indexing failed", err)
	}

	response := map[string]interface{}{
		"indexed":       true,
		"path":          s.svc.NotesRoot(),
		"watching":      watch,
		"files_found":   stats.FilesFound,
		"files_indexed": stats.FilesIndexed,
		"files_skipped": stats.FilesSkipped,
		"files_failed":  stats.FilesFailed,
		"files_removed": stats.FilesRemoved,
		"duration_ms":   stats.Duration.Milliseconds(),
	}
	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchNotes handles the search_notes tool invocation
func (s *Server) handleSearchNotes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	query := getStringDefault(args, "query", "")
	if query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}
	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > 50 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 50", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	r, err := s.svc.Search(ctx, query, limit)
	if err != nil {
		return nil, toMCPError("search failed", err)
	}

	results := make([]map[string]interface{}, 0, len(r.Pinned)+len(r.Results))
	for _, p := range r.Passages() {
		item := map[string]interface{}{
			"path":    p.Path,
			"name":    p.Name,
			"content": p.Content,
			"score":   fmt.Sprintf("%.3f", p.Score),
		}
		if p.Rank > 0 {
			item["rank"] = p.Rank
		}
		if p.HeadingPath != "" {
			item["heading"] = p.HeadingPath
		}
		if p.NoteDate != "" {
			item["date"] = p.NoteDate
		}
		if p.Pinned {
			item["pinned"] = true
		}
		results = append(results, item)
	}

	response := map[string]interface{}{
		"query":        r.Query,
		"results":      results,
		"total":        len(results),
		"used_vectors": r.UsedVectors,
		"duration_ms":  r.Duration.Milliseconds(),
	}
	if r.DateRange != nil {
		start, end := r.DateRange.Dates()
		response["date_range"] = map[string]string{"start": start, "end": end}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleAsk handles the ask tool invocation
func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	question := getStringDefault(args, "question", "")
	if question == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "question parameter is required and cannot be empty", map[string]interface{}{
			"param":  "question",
			"reason": "missing or empty",
		})
	}

	resp, err := s.svc.Ask(ctx, service.AskRequest{
		Query:           question,
		ConversationID:  getStringDefault(args, "conversation_id", ""),
		NewConversation: getBoolDefault(args, "new_conversation", false),
	}, nil)
	if err != nil {
		return nil, toMCPError("ask failed", err)
	}

	response := map[string]interface{}{
		"answer":  resp.Text,
		"sources": resp.Sources,
	}
	if resp.NothingFound {
		response["nothing_found"] = true
	}
	if resp.ConversationID != "" {
		response["conversation_id"] = resp.ConversationID
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.svc.Status(ctx)
	if err != nil {
		return nil, toMCPError("failed to get status", err)
	}

	response := map[string]interface{}{
		"summary":   st.Summary(),
		"notes_dir": st.NotesDir,
		"watch":     st.WatchState,
		"indexing":  st.Indexing,
		"statistics": map[string]interface{}{
			"files_count":        st.Files,
			"chunks_count":       st.Chunks,
			"embeddings_count":   st.Embeddings,
			"embedding_coverage": fmt.Sprintf("%.2f", st.EmbeddingCoverage),
			"index_size":         st.IndexSize,
			"schema_version":     st.SchemaVersion,
		},
		"models": map[string]interface{}{
			"chat":      st.ChatModel,
			"embedding": st.EmbeddingModel,
		},
	}
	if st.Pool != nil {
		response["embedding_pool"] = st.Pool
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSaveNote handles the save_note tool invocation
func (s *Server) handleSaveNote(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	path := getStringDefault(args, "path", "")
	if path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	content, ok := args["content"].(string)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "content parameter is required", map[string]interface{}{
			"param":  "content",
			"reason": "missing",
		})
	}

	file, err := s.svc.SaveNote(ctx, path, content)
	if err != nil {
		return nil, toMCPError("failed to save note", err)
	}
	response := map[string]interface{}{
		"saved": true,
		"path":  file.Path,
		"date":  file.EffectiveDate(),
		"size":  file.Size,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handlePinFile handles the pin_file tool invocation
func (s *Server) handlePinFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	path := getStringDefault(args, "path", "")
	if path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	if getBoolDefault(args, "unpin", false) {
		err = s.svc.Unpin(ctx, path)
	} else {
		err = s.svc.Pin(ctx, path)
	}
	if err != nil {
		return nil, toMCPError("failed to update pins", err)
	}

	pins, err := s.svc.Pins(ctx)
	if err != nil {
		return nil, toMCPError("failed to list pins", err)
	}
	paths := make([]string, len(pins))
	for i, f := range pins {
		paths[i] = f.Path
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"pinned": paths})), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// toMCPError maps service errors onto MCP error codes
func toMCPError(message string, err error) error {
	data := map[string]interface{}{"error": err.Error()}
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrOutsideNotesDir),
		errors.Is(err, indexer.ErrIgnored):
		return newMCPError(ErrorCodeInvalidParams, message, data)
	case errors.Is(err, service.ErrNoNotesDir):
		return newMCPError(ErrorCodeNoNotesDir, message, data)
	case errors.Is(err, indexer.ErrIndexingInProgress):
		return newMCPError(ErrorCodeIndexingInProgress, message, data)
	case errors.Is(err, searcher.ErrEmptyQuery):
		return newMCPError(ErrorCodeEmptyQuery, message, data)
	case errors.Is(err, searcher.ErrNoChatModel):
		return newMCPError(ErrorCodeNoChatModel, message, data)
	case errors.Is(err, os.ErrNotExist), errors.Is(err, storage.ErrNotFound):
		return newMCPError(ErrorCodeNotFound, message, data)
	default:
		return newMCPError(ErrorCodeInternalError, message, data)
	}
}

// arguments returns the tool arguments; a call without any is treated as empty
func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
