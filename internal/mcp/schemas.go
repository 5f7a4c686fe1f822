package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// indexNotesTool returns the tool definition for index_notes
func indexNotesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_notes",
		Description: "Index a directory of notes so it can be searched. Switching to a directory outside the current one replaces the index.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Notes directory. Defaults to the configured or currently watched directory",
				},
				"watch": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, keep the index in sync with the directory after the initial scan",
					"default":     false,
				},
			},
		},
	}
}

// searchNotesTool returns the tool definition for search_notes
func searchNotesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_notes",
		Description: "Search the indexed notes with keywords or natural language. Date phrases such as 'yesterday' or 'last week' restrict results to notes from that period.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of passages to return (1-50)",
					"default":     10,
					"minimum":     1,
					"maximum":     50,
				},
			},
			Required: []string{"query"},
		},
	}
}

// askTool returns the tool definition for ask
func askTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from the notes using the configured chat model. The answer cites the passages it used.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "The question to answer",
				},
				"conversation_id": map[string]interface{}{
					"type":        "string",
					"description": "Continue this conversation; recent turns are used as context",
				},
				"new_conversation": map[string]interface{}{
					"type":        "boolean",
					"description": "Start a new conversation and record this turn in it",
					"default":     false,
				},
			},
			Required: []string{"question"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report index statistics, watcher state and embedding progress",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// saveNoteTool returns the tool definition for save_note
func saveNoteTool() mcp.Tool {
	return mcp.Tool{
		Name:        "save_note",
		Description: "Write a note into the notes directory and index it immediately",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Path relative to the notes directory; '.md' is appended when there is no extension",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Full note text",
				},
			},
			Required: []string{"path", "content"},
		},
	}
}

// pinFileTool returns the tool definition for pin_file
func pinFileTool() mcp.Tool {
	return mcp.Tool{
		Name:        "pin_file",
		Description: "Pin a note so a snippet of it is included in every answer, or unpin it",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path of the note",
				},
				"unpin": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, remove the pin instead",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}
