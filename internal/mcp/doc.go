// Package mcp implements the Model Context Protocol (MCP) server for notecontext.
//
// The server exposes the notes to AI assistants as six tools:
//   - index_notes: scan a notes directory, optionally keep watching it
//   - search_notes: hybrid keyword and semantic search over passages
//   - ask: answer a question from the notes with the chat model
//   - get_status: index statistics, watcher state and embedding progress
//   - save_note: write a note into the notes directory and index it
//   - pin_file: pin or unpin a note whose snippet accompanies every answer
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started with:
//
//	notecontext mcp
//
// It reads requests from stdin and writes responses to stdout, so all
// logging goes to stderr.
//
// # Tool: search_notes
//
//	Request:
//	{
//	  "name": "search_notes",
//	  "arguments": {"query": "what did I cook last week", "limit": 5}
//	}
//
//	Response:
//	{
//	  "query": "what did I cook last week",
//	  "date_range": {"start": "2024-02-26", "end": "2024-03-04"},
//	  "results": [
//	    {"rank": 1, "path": "/notes/2024-02-28.md", "date": "2024-02-28", "score": "0.912", ...}
//	  ]
//	}
//
// Date phrases in the query restrict results to notes dated in that range
// and are removed from the text that is searched.
//
// # Tool: ask
//
// Retrieves passages the same way and hands them to the chat model. When
// nothing relevant is found the model is not called and the answer is a
// fixed "nothing found" sentence with nothing_found set.
//
// # Error Handling
//
// Tool errors are returned as *MCPError with a JSON-RPC code:
//
//	-32602  Invalid parameters (missing path, limit out of range)
//	-32603  Internal error
//	-32001  No notes directory configured
//	-32002  A scan is already running
//	-32003  Path or conversation not found
//	-32004  Empty query
//	-32005  No chat model configured
package mcp
