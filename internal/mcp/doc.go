// Package mcp implements the Model Context Protocol (MCP) server for codebase-context.
//
// The MCP server exposes three tools to AI coding assistants:
//   - retrieve_context: Retrieve context items relevant to a query
//   - index_workspace: Index a workspace on its current branch
//   - get_status: Check indexing status and statistics
//
// The server speaks JSON-RPC 2.0 over stdio and is started with:
//
//	codectx serve
//
// # Tool: retrieve_context
//
//	Request:
//	{
//	  "name": "retrieve_context",
//	  "arguments": {"query": "user authentication", "directory": "/repo/internal/auth"}
//	}
//
// The response text is a JSON array of context items. Every snippet item is
// named "<basename> (<start>-<end>)" and described by its full path and
// range. The last item always carries the consumer instructions:
//
//	[
//	  {"name": "login.go (12-40)", "description": "/repo/internal/auth/login.go (12-40)", "content": "```login.go (12-40)\n...\n```"},
//	  {"name": "Instructions", "description": "Instructions", "content": "..."}
//	]
//
// # Tool: index_workspace
//
//	{"name": "index_workspace", "arguments": {"path": "/repo", "include_tests": true}}
//
// # Tool: get_status
//
//	{"name": "get_status", "arguments": {"path": "/repo"}}
//
// # Error Handling
//
// Failures are returned as error tool results whose text is a JSON object:
//
//	{"code": -32005, "message": "no workspace directories found"}
//
// Error codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (database, filesystem, etc.)
//   - -32002: Indexing in progress
//   - -32005: No workspace
//   - -32006: No results
//
// Logs go to stderr; stdout is reserved for the protocol.
package mcp
